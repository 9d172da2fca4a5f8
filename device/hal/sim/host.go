package sim

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/ardnew/uac2speaker/pkg"
)

// EP0MaxPacketSize is the control pipe packet size the host assumes.
const EP0MaxPacketSize = 64

// Host defaults.
const (
	DefaultRetries    = 8
	DefaultRetryDelay = 100 * time.Microsecond
)

// Standard request codes and descriptor types used by the host.
const (
	requestGetStatus        = 0x00
	requestSetAddress       = 0x05
	requestGetDescriptor    = 0x06
	requestGetConfiguration = 0x08
	requestSetConfiguration = 0x09
	requestGetInterface     = 0x0A
	requestSetInterface     = 0x0B

	DescriptorDevice        = 0x01
	DescriptorConfiguration = 0x02
	DescriptorString        = 0x03
)

// bmRequestType bits.
const (
	RequestIn        = 0x80
	RequestClass     = 0x20
	RequestInterface = 0x01
	RequestEndpoint  = 0x02
)

// Request is the content of a SETUP packet as sent by the host.
type Request struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

// Bytes returns the 8-byte wire form of r.
func (r Request) Bytes() [8]byte {
	var b [8]byte
	b[0] = r.RequestType
	b[1] = r.Request
	binary.LittleEndian.PutUint16(b[2:4], r.Value)
	binary.LittleEndian.PutUint16(b[4:6], r.Index)
	binary.LittleEndian.PutUint16(b[6:8], r.Length)
	return b
}

// IsIn reports whether the data stage, if any, moves device to host.
func (r Request) IsIn() bool {
	return r.RequestType&RequestIn != 0
}

// String returns a compact description of r.
func (r Request) String() string {
	return fmt.Sprintf("SETUP[%02X %02X %04X %04X %d]", r.RequestType, r.Request, r.Value, r.Index, r.Length)
}

// GetDescriptor returns a GET_DESCRIPTOR request.
func GetDescriptor(typ, index uint8, length uint16) Request {
	return Request{RequestIn, requestGetDescriptor, uint16(typ)<<8 | uint16(index), 0, length}
}

// SetAddress returns a SET_ADDRESS request.
func SetAddress(addr uint8) Request {
	return Request{0, requestSetAddress, uint16(addr), 0, 0}
}

// SetConfiguration returns a SET_CONFIGURATION request.
func SetConfiguration(value uint8) Request {
	return Request{0, requestSetConfiguration, uint16(value), 0, 0}
}

// GetConfiguration returns a GET_CONFIGURATION request.
func GetConfiguration() Request {
	return Request{RequestIn, requestGetConfiguration, 0, 0, 1}
}

// SetInterface returns a SET_INTERFACE request.
func SetInterface(iface, alt uint8) Request {
	return Request{RequestInterface, requestSetInterface, uint16(alt), uint16(iface), 0}
}

// GetInterface returns a GET_INTERFACE request.
func GetInterface(iface uint8) Request {
	return Request{RequestIn | RequestInterface, requestGetInterface, 0, uint16(iface), 1}
}

// GetStatus returns a GET_STATUS request for the given recipient bits.
func GetStatus(recipient uint8, index uint16) Request {
	return Request{RequestIn | recipient, requestGetStatus, 0, index, 2}
}

// Transfer is the outcome of a control transfer seen from the host.
type Transfer struct {
	Setup   Request
	Data    []byte
	Packets []int // data stage packet sizes, including a terminating ZLP
}

// HostOption configures a [Host].
type HostOption func(*Host)

// WithRetries sets how many times a NAKed transaction is retried.
func WithRetries(n int) HostOption {
	return func(h *Host) {
		if n > 0 {
			h.retries = n
		}
	}
}

// WithRetryDelay sets the wait between retries of a NAKed transaction and
// between polls for the device to service an interrupt.
func WithRetryDelay(d time.Duration) HostOption {
	return func(h *Host) {
		if d >= 0 {
			h.delay = d
		}
	}
}

// Host drives a [Core] from the bus side the way a USB host controller
// would: it issues resets and SETUP, IN and OUT transactions, retries NAKs
// within a budget and sequences control transfers through their stages.
type Host struct {
	core    *Core
	address uint8
	retries int
	delay   time.Duration
}

// NewHost returns a host attached to core, addressing the default address 0.
func NewHost(core *Core, opts ...HostOption) *Host {
	h := &Host{
		core:    core,
		retries: DefaultRetries,
		delay:   DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Core returns the simulated device core.
func (h *Host) Core() *Core {
	return h.core
}

// Address returns the device address the host currently targets.
func (h *Host) Address() uint8 {
	return h.address
}

// Reset drives a bus reset and returns the host to the default address.
// It fails with [pkg.ErrNoDevice] while the device is soft-disconnected.
func (h *Host) Reset() error {
	if hs := h.core.busReset(); hs != pkg.HandshakeACK {
		return fmt.Errorf("bus reset: %w", pkg.ErrNoDevice)
	}
	h.address = 0
	pkg.LogDebug(pkg.ComponentSim, "host reset")
	return h.settle()
}

// Setup sends a SETUP transaction and lets the device service it.
func (h *Host) Setup(req Request) error {
	if hs := h.core.setup(h.address, req.Bytes()); hs != pkg.HandshakeACK {
		return fmt.Errorf("%s: %w", req, hs.Error())
	}
	pkg.LogTrace(pkg.ComponentSim, "host setup", "request", req.String())
	return h.settle()
}

// In sends one IN token to ep and returns the packet and handshake. When
// the device ACKs, any resulting interrupt is serviced before returning.
func (h *Host) In(ep uint8) ([]byte, pkg.Handshake, error) {
	data, hs := h.core.inToken(h.address, ep)
	if hs != pkg.HandshakeACK {
		return nil, hs, nil
	}
	return data, hs, h.settle()
}

// Out sends one OUT transaction carrying data to ep.
func (h *Host) Out(ep uint8, data []byte) (pkg.Handshake, error) {
	hs := h.core.outToken(h.address, ep, data)
	if hs != pkg.HandshakeACK {
		return hs, nil
	}
	return hs, h.settle()
}

// ControlIn performs a control read: SETUP, IN data packets until a short
// packet or wLength bytes, then a zero-length OUT status. A request with
// wLength 0 has no data stage and reads a zero-length IN status instead.
func (h *Host) ControlIn(req Request) (*Transfer, error) {
	if req.Length == 0 {
		return &Transfer{Setup: req}, h.ControlOut(req, nil)
	}
	if err := h.Setup(req); err != nil {
		return nil, err
	}
	t := &Transfer{Setup: req}
	for {
		data, err := h.inRetry(0)
		if err != nil {
			return t, fmt.Errorf("%s data stage: %w", req, err)
		}
		t.Packets = append(t.Packets, len(data))
		t.Data = append(t.Data, data...)
		if len(data) > EP0MaxPacketSize || len(t.Data) > int(req.Length) {
			return t, fmt.Errorf("%s data stage: babble (%d bytes): %w", req, len(t.Data), pkg.ErrProtocol)
		}
		if len(data) < EP0MaxPacketSize || len(t.Data) == int(req.Length) {
			break
		}
	}
	if err := h.outRetry(0, nil); err != nil {
		return t, fmt.Errorf("%s status stage: %w", req, err)
	}
	return t, nil
}

// ControlOut performs a control write: SETUP, OUT data packets carrying
// data, then a zero-length IN status.
func (h *Host) ControlOut(req Request, data []byte) error {
	if err := h.Setup(req); err != nil {
		return err
	}
	for rest := data; len(rest) > 0; {
		n := min(len(rest), EP0MaxPacketSize)
		if err := h.outRetry(0, rest[:n]); err != nil {
			return fmt.Errorf("%s data stage: %w", req, err)
		}
		rest = rest[n:]
	}
	status, err := h.inRetry(0)
	if err != nil {
		return fmt.Errorf("%s status stage: %w", req, err)
	}
	if len(status) != 0 {
		return fmt.Errorf("%s status stage: %d byte status packet: %w", req, len(status), pkg.ErrProtocol)
	}
	return nil
}

// GetDescriptor reads a descriptor with the given wLength.
func (h *Host) GetDescriptor(typ, index uint8, length uint16) ([]byte, error) {
	t, err := h.ControlIn(GetDescriptor(typ, index, length))
	if err != nil {
		return nil, err
	}
	return t.Data, nil
}

// SetAddress assigns addr and targets it once the status stage completes.
func (h *Host) SetAddress(addr uint8) error {
	if err := h.ControlOut(SetAddress(addr), nil); err != nil {
		return err
	}
	h.address = addr & 0x7F
	return nil
}

// SetConfiguration selects a configuration.
func (h *Host) SetConfiguration(value uint8) error {
	return h.ControlOut(SetConfiguration(value), nil)
}

// SetInterface selects an alternate setting of an interface.
func (h *Host) SetInterface(iface, alt uint8) error {
	return h.ControlOut(SetInterface(iface, alt), nil)
}

// inRetry issues IN tokens to ep until the device ACKs or the NAK budget
// runs out.
func (h *Host) inRetry(ep uint8) ([]byte, error) {
	for i := 0; ; i++ {
		data, hs, err := h.In(ep)
		if err != nil {
			return nil, err
		}
		switch hs {
		case pkg.HandshakeACK:
			return data, nil
		case pkg.HandshakeNAK:
			if i >= h.retries {
				return nil, fmt.Errorf("IN ep%d NAKed %d times: %w", ep, i+1, pkg.ErrTimeout)
			}
			time.Sleep(h.delay)
		default:
			return nil, fmt.Errorf("IN ep%d: %w", ep, hs.Error())
		}
	}
}

// outRetry sends data to ep until the device ACKs or the NAK budget runs out.
func (h *Host) outRetry(ep uint8, data []byte) error {
	for i := 0; ; i++ {
		hs, err := h.Out(ep, data)
		if err != nil {
			return err
		}
		switch hs {
		case pkg.HandshakeACK:
			return nil
		case pkg.HandshakeNAK:
			if i >= h.retries {
				return fmt.Errorf("OUT ep%d NAKed %d times: %w", ep, i+1, pkg.ErrTimeout)
			}
			time.Sleep(h.delay)
		default:
			return fmt.Errorf("OUT ep%d: %w", ep, hs.Error())
		}
	}
}

// settle raises the interrupt for the last event and, when the device is
// serviced asynchronously, waits for it to stop requesting service.
func (h *Host) settle() error {
	if err := h.core.raise(); err != nil {
		return err
	}
	for i := 0; h.core.Pending(); i++ {
		if i >= h.retries*16 {
			return fmt.Errorf("interrupt not serviced: %w", pkg.ErrTimeout)
		}
		time.Sleep(h.delay)
	}
	return nil
}
