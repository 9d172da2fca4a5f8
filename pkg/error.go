package pkg

import "errors"

// USB protocol errors.
var (
	// ErrStall indicates an endpoint answered with a STALL handshake.
	ErrStall = errors.New("endpoint stalled")

	// ErrNAK indicates a NAK handshake (endpoint not armed).
	ErrNAK = errors.New("NAK received")

	// ErrTimeout indicates a transaction that never completed.
	ErrTimeout = errors.New("transfer timeout")

	// ErrProtocol indicates a protocol violation.
	ErrProtocol = errors.New("protocol error")

	// ErrNoDevice indicates no device answers at the addressed USB address.
	ErrNoDevice = errors.New("device not present")
)

// Driver errors.
var (
	// ErrInvalidRequest indicates an invalid or unsupported request.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrInvalidDescriptor indicates an unknown descriptor type or index.
	ErrInvalidDescriptor = errors.New("invalid descriptor")

	// ErrDescriptorTooShort indicates descriptor data shorter than its header.
	ErrDescriptorTooShort = errors.New("descriptor too short")

	// ErrDescriptorTypeMismatch indicates an unexpected bDescriptorType.
	ErrDescriptorTypeMismatch = errors.New("descriptor type mismatch")

	// ErrInvalidEndpoint indicates an invalid endpoint address.
	ErrInvalidEndpoint = errors.New("invalid endpoint")

	// ErrInvalidParameter indicates an invalid parameter was provided.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrSetupPacketTooShort indicates the setup packet data is too short.
	ErrSetupPacketTooShort = errors.New("setup packet too short")

	// ErrAlreadyRunning indicates the event loop is already running.
	ErrAlreadyRunning = errors.New("already running")

	// ErrNotRunning indicates the controller has not been initialized.
	ErrNotRunning = errors.New("not running")
)

// Handshake is the outcome of a single bus transaction as seen by the host.
type Handshake int

// Handshake values.
const (
	HandshakeACK     Handshake = iota // Data accepted or delivered
	HandshakeNAK                      // Endpoint not ready
	HandshakeStall                    // Endpoint halted
	HandshakeTimeout                  // No response (wrong address, disabled endpoint)
)

// String returns a string representation of the handshake.
func (h Handshake) String() string {
	switch h {
	case HandshakeACK:
		return "ack"
	case HandshakeNAK:
		return "nak"
	case HandshakeStall:
		return "stall"
	case HandshakeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Error returns the error corresponding to the handshake, or nil for ACK.
func (h Handshake) Error() error {
	switch h {
	case HandshakeACK:
		return nil
	case HandshakeNAK:
		return ErrNAK
	case HandshakeStall:
		return ErrStall
	case HandshakeTimeout:
		return ErrTimeout
	default:
		return ErrProtocol
	}
}
