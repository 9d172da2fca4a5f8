// Package mmio provides a [hal.Bus] over the memory-mapped OTG_FS register
// block of the target microcontroller.
//
// The implementation is built only by TinyGo, which supplies the volatile
// register accessors. Off target the package is empty; use
// [github.com/ardnew/uac2speaker/device/hal/sim] instead.
//
//	bus := mmio.New(otg.Base)
//	drv := device.NewDriver(bus, uac2.NewStore())
package mmio
