// Package hal defines the register-level hardware abstraction used by the
// device driver.
//
// The driver talks to the USB peripheral exclusively through [Bus], a pair
// of 32-bit register accessors keyed by byte offset. Everything above the
// bus (register layout, bit fields, FIFO word packing, protocol) lives in
// portable Go, so the same driver runs against:
//
//   - [github.com/ardnew/uac2speaker/device/hal/mmio], volatile
//     memory-mapped access on the target microcontroller (TinyGo)
//   - [github.com/ardnew/uac2speaker/device/hal/sim], a behavioral model of
//     the controller with a scripted host, used by tests and the simulator
//
// # Implementing a Bus
//
// A Bus must forward every access, in program order, with the peripheral's
// read and write side effects intact. It performs no buffering and never
// blocks: FIFO readiness is guaranteed by the interrupt that caused the
// access.
//
//	type MyBus struct{ base uintptr }
//
//	func (b *MyBus) Load(r hal.Reg) uint32     { /* volatile read */ }
//	func (b *MyBus) Store(r hal.Reg, v uint32) { /* volatile write */ }
package hal
