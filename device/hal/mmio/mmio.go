//go:build tinygo

package mmio

import (
	"runtime/volatile"
	"unsafe"

	"github.com/ardnew/uac2speaker/device/hal"
)

// Bus accesses the peripheral registers at base with volatile 32-bit loads
// and stores.
type Bus struct {
	base uintptr
}

// New returns a bus for the peripheral mapped at base.
func New(base uintptr) *Bus {
	return &Bus{base: base}
}

func (b *Bus) reg(r hal.Reg) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(b.base + uintptr(r)))
}

// Load implements [hal.Bus].
func (b *Bus) Load(r hal.Reg) uint32 {
	return b.reg(r).Get()
}

// Store implements [hal.Bus].
func (b *Bus) Store(r hal.Reg, v uint32) {
	b.reg(r).Set(v)
}

var _ hal.Bus = (*Bus)(nil)
