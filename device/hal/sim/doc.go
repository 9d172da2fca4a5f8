// Package sim provides a behavioral model of the OTG_FS device core and a
// host-side transaction driver for exercising USB device firmware off
// target.
//
// [Core] implements [hal.Bus], so the same driver code that runs against
// memory-mapped registers on the microcontroller runs unchanged against
// the model. [Host] plays the other end of the cable:
//
//	core := sim.New()
//	drv := device.NewDriver(core, store)
//	core.Attach(drv.HandleInterrupt)
//	drv.Init()
//
//	host := sim.NewHost(core)
//	host.Reset()
//	desc, err := host.GetDescriptor(sim.DescriptorDevice, 0, 18)
//
// # Interrupt Delivery
//
// With a handler installed by [Core.Attach], every host event that leaves
// an unmasked interrupt pending runs the handler synchronously, again and
// again until the core stops requesting service. A handler that fails to
// acknowledge a source is detected as an interrupt storm and reported as
// [pkg.ErrProtocol].
//
// [Core.Interrupts] instead returns a signal channel for an event loop
// running in its own goroutine; the host then polls until the device has
// serviced each event.
//
// # Address Timing
//
// A device address written to DCFG.DAD during a control transfer takes
// effect once the IN status stage of that transfer completes, as on the
// real core. Outside a control transfer it applies immediately.
package sim
