package device

import (
	"fmt"

	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/pkg"
)

// ControlState is the state of the endpoint 0 control transfer engine.
type ControlState uint8

// Control transfer engine states.
const (
	ControlIdle          ControlState = iota // No transfer in progress
	ControlSetupReceived                     // SETUP decoded, response not yet chosen
	ControlTxInProgress                      // IN data stage being transmitted
	ControlStatusPending                     // Zero-length IN status queued
)

// String returns the state name.
func (s ControlState) String() string {
	switch s {
	case ControlIdle:
		return "Idle"
	case ControlSetupReceived:
		return "SetupReceived"
	case ControlTxInProgress:
		return "TxInProgress"
	case ControlStatusPending:
		return "StatusPending"
	default:
		return fmt.Sprintf("ControlState(%d)", uint8(s))
	}
}

// ControlTransferContext is the progress of an IN data stage on endpoint 0.
// It views the response bytes without copying them.
type ControlTransferContext struct {
	data      []byte // bytes not yet queued
	length    int    // total response length
	maxPacket int
	zlp       bool // a zero-length packet must follow the last full packet
}

// Remaining returns the number of bytes not yet queued for transmission.
func (c ControlTransferContext) Remaining() int {
	return len(c.data)
}

// Length returns the total length of the response.
func (c ControlTransferContext) Length() int {
	return c.length
}

// next removes and returns the next packet's bytes.
func (c *ControlTransferContext) next() []byte {
	n := min(c.maxPacket, len(c.data))
	chunk := c.data[:n]
	c.data = c.data[n:]
	return chunk
}

// ControlEngine runs the SETUP, DATA and STATUS stages of endpoint 0. IN
// data larger than one packet is queued one packet per transfer-complete
// interrupt. There is exactly one [ControlTransferContext]; a new SETUP
// replaces it.
type ControlEngine struct {
	core      *otg.Core
	endpoints *EndpointState
	stats     *Stats
	state     ControlState
	ctx       ControlTransferContext
}

// NewControlEngine returns an idle engine for endpoint 0 of core.
func NewControlEngine(core *otg.Core, endpoints *EndpointState, stats *Stats) *ControlEngine {
	return &ControlEngine{core: core, endpoints: endpoints, stats: stats}
}

// State returns the current engine state.
func (e *ControlEngine) State() ControlState {
	return e.state
}

// Context returns the transfer context of the current data stage.
func (e *ControlEngine) Context() ControlTransferContext {
	return e.ctx
}

// Reset abandons any transfer and returns to Idle. Used on bus reset, where
// the core has already dropped endpoint 0 traffic.
func (e *ControlEngine) Reset() {
	e.state = ControlIdle
	e.ctx = ControlTransferContext{}
}

// Setup moves to SetupReceived. A response still queued from a previous
// transfer is withdrawn from endpoint 0 IN first.
func (e *ControlEngine) Setup() {
	if e.state == ControlTxInProgress || e.state == ControlStatusPending {
		if e.core.HasBits(otg.DIEPCTL(0), otg.EPCTLEPENA) {
			e.core.SetBits(otg.DIEPCTL(0), otg.EPCTLEPDIS|otg.EPCTLSNAK)
		}
		e.core.FlushTxFIFO(0)
		e.stats.Cancelled.Add(1)
		pkg.LogDebug(pkg.ComponentControl, "transfer cancelled",
			"state", e.state.String(), "remaining", e.ctx.Remaining())
	}
	e.ctx = ControlTransferContext{}
	e.state = ControlSetupReceived
}

// SendData starts an IN data stage of min(len(data), wLength) bytes.
//
// The data stage ends with a short packet. When the response is a non-zero
// multiple of the packet size and shorter than wLength, a zero-length packet
// follows the last full packet. A response of exactly wLength bytes needs
// none, since the host stops reading at wLength. An empty response is sent
// as a single zero-length packet, which the host takes as the status stage.
func (e *ControlEngine) SendData(data []byte, wLength uint16) {
	n := min(len(data), int(wLength))
	if n == 0 {
		e.SendStatus()
		return
	}
	e.ctx = ControlTransferContext{
		data:      data[:n],
		length:    n,
		maxPacket: EP0MaxPacketSize,
		zlp:       n%EP0MaxPacketSize == 0 && n < int(wLength),
	}
	e.state = ControlTxInProgress
	pkg.LogDebug(pkg.ComponentControl, "data stage", "length", n, "zlp", e.ctx.zlp)
	e.transmit(e.ctx.next())
}

// SendStatus queues a zero-length IN status packet.
func (e *ControlEngine) SendStatus() {
	e.ctx = ControlTransferContext{}
	e.state = ControlStatusPending
	e.transmit(nil)
}

// Stall stalls both directions of endpoint 0 and returns to Idle.
func (e *ControlEngine) Stall() {
	e.endpoints.StallControl()
	e.stats.Stalls.Add(1)
	e.Reset()
}

// StallIn stalls endpoint 0 IN only and returns to Idle.
func (e *ControlEngine) StallIn() {
	_ = e.endpoints.Stall(0x80)
	e.stats.Stalls.Add(1)
	e.Reset()
}

// InComplete handles a transfer-complete interrupt on endpoint 0 IN.
func (e *ControlEngine) InComplete() {
	switch e.state {
	case ControlTxInProgress:
		switch {
		case e.ctx.Remaining() > 0:
			e.transmit(e.ctx.next())
			return
		case e.ctx.zlp:
			e.ctx.zlp = false
			e.transmit(nil)
			return
		}
		pkg.LogDebug(pkg.ComponentControl, "data stage complete", "length", e.ctx.Length())
		e.Reset()
	case ControlStatusPending:
		pkg.LogTrace(pkg.ComponentControl, "status stage complete")
		e.Reset()
	default:
		pkg.LogDebug(pkg.ComponentControl, "unexpected IN complete", "state", e.state.String())
	}
	// The host's OUT status, or the next SETUP, lands here.
	e.endpoints.ArmEP0Out()
}

// transmit queues one packet on endpoint 0 IN: transfer size first, then
// enable and clear NAK, then the FIFO words.
func (e *ControlEngine) transmit(chunk []byte) {
	e.core.Store(otg.DIEPTSIZ(0), otg.InTransferSize(1, len(chunk)))
	e.core.SetBits(otg.DIEPCTL(0), otg.EPCTLCNAK|otg.EPCTLEPENA)
	e.core.PushBytes(0, chunk)
	e.stats.InPackets.Add(1)
	pkg.LogTrace(pkg.ComponentControl, "packet queued", "size", len(chunk), "remaining", e.ctx.Remaining())
}
