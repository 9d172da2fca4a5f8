package device

import "fmt"

// Fixed limits of the controller and this driver.
const (
	// EP0MaxPacketSize is the control endpoint packet size. It never changes
	// after a bus reset.
	EP0MaxPacketSize = 64

	// MaxInterfaces bounds the interface numbers tracked for alternate settings.
	MaxInterfaces = 8

	// MaxIsoPacketSize is the largest full-speed isochronous packet.
	MaxIsoPacketSize = 1023
)

// Streaming defaults, matching the UAC2 speaker configuration:
// 48 kHz, 2 channels, 16 bits, one packet per 1 ms frame.
const (
	DefaultStreamingInterface     = 1
	DefaultStreamingEndpoint      = 1
	DefaultStreamingMaxPacketSize = 192
)

// Device states as defined in USB 2.0 specification section 9.1.
const (
	StateAttached   State = 0 // Not yet initialized
	StatePowered    State = 1 // Initialized and connected, awaiting reset
	StateDefault    State = 2 // Reset, answering at address 0
	StateAddress    State = 3 // Assigned a unique address
	StateConfigured State = 4 // Configuration selected
)

// State represents USB device state.
type State uint8

// String returns a human-readable state description.
func (s State) String() string {
	switch s {
	case StateAttached:
		return "Attached"
	case StatePowered:
		return "Powered"
	case StateDefault:
		return "Default"
	case StateAddress:
		return "Address"
	case StateConfigured:
		return "Configured"
	default:
		return fmt.Sprintf("Unknown State (%d)", s)
	}
}
