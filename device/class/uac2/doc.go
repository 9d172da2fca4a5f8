// Package uac2 holds the USB Audio Class 2.0 speaker function served by the
// [github.com/ardnew/uac2speaker/device] driver.
//
// It owns no driver logic. It provides:
//
//   - the device and configuration descriptor tables, served verbatim by a
//     [device.StaticStore] from [NewStore]
//   - [ClockHandler], which answers the clock source class requests a host
//     issues while binding the function
//
// # Topology
//
// The AudioControl interface describes a fixed internal clock feeding a
// clock selector and a clock multiplier that clock a USB streaming input
// terminal wired to a speaker output terminal. The AudioStreaming interface
// has a zero-bandwidth alternate setting 0 and an operational alternate
// setting 1 carrying 48 kHz, 2-channel, 16-bit PCM over an adaptive
// isochronous OUT endpoint of [MaxPacketSize] bytes.
//
// # Usage
//
//	drv := device.NewDriver(bus, uac2.NewStore(),
//	    device.WithStreaming(uac2.InterfaceAudioStreaming, uac2.StreamingEndpoint, uac2.MaxPacketSize),
//	    device.WithClassHandler(uac2.NewClockHandler(uac2.SampleRate)),
//	)
package uac2
