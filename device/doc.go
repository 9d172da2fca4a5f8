// Package device implements the device-mode driver of a USB OTG full-speed
// controller (DWC2 register map, as found on STM32F4 OTG_FS) serving a USB
// Audio Class 2.0 speaker.
//
// It is platform-agnostic and interacts with hardware via the [hal.Bus]
// interface defined in the [github.com/ardnew/uac2speaker/device/hal]
// package. Register layout and FIFO word access live in
// [github.com/ardnew/uac2speaker/device/hal/otg].
//
// # Architecture
//
// The driver is organized into a few cooperating parts:
//
//   - [EndpointState] owns endpoint configuration and the register writes
//     that arm, stall and disable endpoints
//   - [ControlEngine] runs the SETUP, DATA and STATUS stages of endpoint 0
//     and splits IN responses into max-packet-size chunks
//   - [StandardRequestHandler] decodes SETUP packets and carries out the
//     standard requests, forwarding class requests to a [ClassHandler]
//   - [Driver] is the interrupt dispatcher tying them together
//
// Descriptors are not built here. A [DescriptorStore] supplies immutable
// byte tables that are served verbatim.
//
// # Concurrency
//
// All protocol handling happens in [Driver.HandleInterrupt], which runs to
// completion under one lock. It can be called straight from an interrupt
// vector, or from [Driver.Run], an event loop fed by an interrupt request
// channel:
//
//	drv := device.NewDriver(bus, store)
//	if err := drv.Init(); err != nil {
//	    return err
//	}
//	return drv.Run(ctx, irq)
//
// # Device States
//
// The driver follows the USB 2.0 device state machine:
//
//	Attached → Powered → Default → Address → Configured
//
// SET_CONFIGURATION selects a configuration but arms no endpoint. The
// isochronous streaming endpoints are enabled by SET_INTERFACE selecting
// alternate setting 1 of the audio-streaming interface, and disabled by
// alternate setting 0, SET_CONFIGURATION or a bus reset.
//
// # Errors
//
// The host only ever sees a STALL. Request handlers return sentinel errors
// from [github.com/ardnew/uac2speaker/pkg]; [pkg.ErrInvalidDescriptor] stalls
// endpoint 0 IN and anything else stalls both directions. The next SETUP
// clears the stall.
//
// A simulated controller for testing is available in
// [github.com/ardnew/uac2speaker/device/hal/sim].
package device
