package hal

// Reg is the byte offset of a 32-bit register from the peripheral base.
type Reg uint32

// Bus is the register access contract between the driver and the USB
// peripheral.
//
// Load and Store are single, synchronous 32-bit accesses with the side
// effects the peripheral defines for that register: reading a pop register
// (receive status, FIFO data port) consumes an entry, and writing a
// write-1-to-clear register acknowledges the written bits. Implementations
// must not reorder accesses and must never block.
type Bus interface {
	// Load reads the register at offset r.
	Load(r Reg) uint32

	// Store writes v to the register at offset r.
	Store(r Reg, v uint32)
}

// Speed represents the USB connection speed.
type Speed uint8

// USB speed constants (USB 2.0 Specification).
const (
	SpeedUnknown Speed = iota // Not connected or unknown
	SpeedLow                  // Low Speed (1.5 Mbit/s)
	SpeedFull                 // Full Speed (12 Mbit/s)
	SpeedHigh                 // High Speed (480 Mbit/s)
)

// String returns a human-readable speed name.
func (s Speed) String() string {
	switch s {
	case SpeedLow:
		return "Low Speed"
	case SpeedFull:
		return "Full Speed"
	case SpeedHigh:
		return "High Speed"
	default:
		return "Unknown"
	}
}
