package device

import (
	"fmt"

	"github.com/ardnew/uac2speaker/device/hal"
	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/pkg"
)

// Endpoint transfer types (USB 2.0 Spec Table 9-13).
const (
	EndpointTypeControl     = 0x00 // Control transfer
	EndpointTypeIsochronous = 0x01 // Isochronous transfer
	EndpointTypeBulk        = 0x02 // Bulk transfer
	EndpointTypeInterrupt   = 0x03 // Interrupt transfer
)

// Direction is the direction bit of an endpoint address.
type Direction uint8

// Endpoint directions.
const (
	DirectionOut Direction = 0x00 // Host to device
	DirectionIn  Direction = 0x80 // Device to host
)

// String returns "IN" or "OUT".
func (d Direction) String() string {
	if d == DirectionIn {
		return "IN"
	}
	return "OUT"
}

// EndpointDescriptor is the runtime state of one endpoint direction.
type EndpointDescriptor struct {
	Direction     Direction
	Number        uint8
	Type          uint8 // EndpointType*
	MaxPacketSize uint16
	Enabled       bool
	Stalled       bool
}

// Address returns the endpoint address including the direction bit.
func (e EndpointDescriptor) Address() uint8 {
	return e.Number | uint8(e.Direction)
}

// String returns a human-readable representation of the endpoint.
func (e EndpointDescriptor) String() string {
	return fmt.Sprintf("EP%d %s [mps=%d enabled=%t stalled=%t]",
		e.Number, e.Direction, e.MaxPacketSize, e.Enabled, e.Stalled)
}

// EndpointState owns the endpoint configuration of the controller and the
// register writes that apply it. It is not safe for concurrent use; the
// [Driver] serializes every call.
type EndpointState struct {
	core *otg.Core
	in   [otg.NumEndpoints]EndpointDescriptor
	out  [otg.NumEndpoints]EndpointDescriptor
}

// NewEndpointState returns the endpoint state of core with every endpoint
// disabled.
func NewEndpointState(core *otg.Core) *EndpointState {
	s := &EndpointState{core: core}
	for n := range uint8(otg.NumEndpoints) {
		s.in[n] = EndpointDescriptor{Direction: DirectionIn, Number: n}
		s.out[n] = EndpointDescriptor{Direction: DirectionOut, Number: n}
	}
	return s
}

// ResetEP0 activates both directions of endpoint 0 with a 64-byte max packet
// size, clears NAK and arms OUT for the next SETUP. Called on every bus reset.
func (s *EndpointState) ResetEP0() {
	c := s.core
	c.FlushTxFIFO(0)
	c.Store(otg.DIEPCTL(0), otg.EPCTLUSBAEP|otg.EP0MPS64|otg.EPCTLCNAK)
	c.Store(otg.DOEPCTL(0), otg.EPCTLUSBAEP|otg.EP0MPS64|otg.EPCTLCNAK)
	c.SetBits(otg.DAINTMSK, 1<<otg.DAINTIEPPos|1<<otg.DAINTOEPPos)
	s.ArmEP0Out()

	for _, e := range []*EndpointDescriptor{&s.in[0], &s.out[0]} {
		e.Type = EndpointTypeControl
		e.MaxPacketSize = EP0MaxPacketSize
		e.Enabled = true
		e.Stalled = false
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "EP0 reset", "mps", EP0MaxPacketSize)
}

// ArmEP0Out prepares endpoint 0 OUT to receive up to three back-to-back
// SETUP packets or one data packet.
func (s *EndpointState) ArmEP0Out() {
	s.core.Store(otg.DOEPTSIZ(0), otg.OutTransferSize(3, 1, EP0MaxPacketSize))
	s.core.SetBits(otg.DOEPCTL(0), otg.EPCTLCNAK|otg.EPCTLEPENA)
}

// ArmOut re-arms OUT endpoint n for one more packet. A disabled endpoint is
// left alone.
func (s *EndpointState) ArmOut(n uint8) {
	switch {
	case n == 0:
		s.ArmEP0Out()
	case int(n) < otg.NumEndpoints && s.out[n].Enabled:
		s.core.Store(otg.DOEPTSIZ(n), otg.OutTransferSize(0, 1, int(s.out[n].MaxPacketSize)))
		s.core.SetBits(otg.DOEPCTL(n), otg.EPCTLCNAK|otg.EPCTLEPENA)
	}
}

// EnableStreaming activates the isochronous IN and OUT endpoints numbered n
// with max packet size mps, clears NAK on both and arms OUT reception.
func (s *EndpointState) EnableStreaming(n uint8, mps uint16) error {
	if n == 0 || int(n) >= otg.NumEndpoints {
		return fmt.Errorf("streaming endpoint %d: %w", n, pkg.ErrInvalidEndpoint)
	}
	if mps == 0 || mps > MaxIsoPacketSize {
		return fmt.Errorf("streaming max packet size %d: %w", mps, pkg.ErrInvalidParameter)
	}

	ctl := otg.EPCTLUSBAEP |
		otg.EPTypeIsochronous<<otg.EPCTLEPTYPPos |
		otg.EPCTLSD0PID | // even frame
		uint32(mps)&otg.EPCTLMPSIZMask
	s.core.Store(otg.DIEPCTL(n), ctl|uint32(n)<<otg.EPCTLTXFNUMPos|otg.EPCTLCNAK)
	s.core.Store(otg.DOEPTSIZ(n), otg.OutTransferSize(0, 1, int(mps)))
	s.core.Store(otg.DOEPCTL(n), ctl|otg.EPCTLCNAK|otg.EPCTLEPENA)

	for _, e := range []*EndpointDescriptor{&s.in[n], &s.out[n]} {
		e.Type = EndpointTypeIsochronous
		e.MaxPacketSize = mps
		e.Enabled = true
		e.Stalled = false
	}
	pkg.LogDebug(pkg.ComponentEndpoint, "streaming enabled", "ep", n, "mps", mps)
	return nil
}

// DisableStreaming deactivates the IN and OUT endpoints numbered n. An
// endpoint with a transfer in flight is disabled and set to NAK.
func (s *EndpointState) DisableStreaming(n uint8) error {
	if n == 0 || int(n) >= otg.NumEndpoints {
		return fmt.Errorf("streaming endpoint %d: %w", n, pkg.ErrInvalidEndpoint)
	}
	s.deactivate(otg.DIEPCTL(n))
	s.deactivate(otg.DOEPCTL(n))
	s.core.FlushTxFIFO(n)

	s.in[n].Enabled = false
	s.out[n].Enabled = false
	pkg.LogDebug(pkg.ComponentEndpoint, "streaming disabled", "ep", n)
	return nil
}

// deactivate clears USBAEP and sets NAK in one write, adding EPDIS when the
// endpoint is enabled.
func (s *EndpointState) deactivate(r hal.Reg) {
	ctl := s.core.Load(r)
	set := uint32(otg.EPCTLSNAK)
	if ctl&otg.EPCTLEPENA != 0 {
		set |= otg.EPCTLEPDIS
	}
	s.core.Store(r, ctl&^otg.EPCTLUSBAEP|set)
}

// Stall sets the STALL condition on the endpoint at addr.
func (s *EndpointState) Stall(addr uint8) error {
	e, ok := s.lookup(addr)
	if !ok {
		return fmt.Errorf("stall 0x%02X: %w", addr, pkg.ErrInvalidEndpoint)
	}
	if e.Direction == DirectionIn {
		s.core.SetBits(otg.DIEPCTL(e.Number), otg.EPCTLSTALL)
	} else {
		s.core.SetBits(otg.DOEPCTL(e.Number), otg.EPCTLSTALL)
	}
	e.Stalled = true
	pkg.LogDebug(pkg.ComponentEndpoint, "stall", "ep", fmt.Sprintf("0x%02X", addr))
	return nil
}

// StallControl stalls both directions of endpoint 0.
func (s *EndpointState) StallControl() {
	_ = s.Stall(0x80)
	_ = s.Stall(0x00)
}

// SetupReceived records that the core cleared the endpoint 0 STALL
// condition on receipt of a SETUP packet.
func (s *EndpointState) SetupReceived() {
	s.in[0].Stalled = false
	s.out[0].Stalled = false
}

// Descriptor returns a snapshot of the endpoint at addr.
func (s *EndpointState) Descriptor(addr uint8) (EndpointDescriptor, bool) {
	e, ok := s.lookup(addr)
	if !ok {
		return EndpointDescriptor{}, false
	}
	return *e, true
}

func (s *EndpointState) lookup(addr uint8) (*EndpointDescriptor, bool) {
	n := addr & 0x0F
	if int(n) >= otg.NumEndpoints || addr&0x70 != 0 {
		return nil, false
	}
	if Direction(addr&0x80) == DirectionIn {
		return &s.in[n], true
	}
	return &s.out[n], true
}
