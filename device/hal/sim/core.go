package sim

import (
	"fmt"
	"sync"

	"github.com/ardnew/uac2speaker/device/hal"
	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/pkg"
)

// DefaultMaxHandlerRuns bounds how many times a raised interrupt re-enters
// the attached handler before the core reports an interrupt storm.
const DefaultMaxHandlerRuns = 64

// Endpoint register slots within one 0x20-byte endpoint block.
const (
	slotCtl    hal.Reg = 0x00
	slotInt    hal.Reg = 0x08
	slotTsiz   hal.Reg = 0x10
	slotTxfsts hal.Reg = 0x18
)

// direction selects the IN or OUT half of an endpoint.
type direction int

const (
	dirIn direction = iota
	dirOut
)

// endpoint is the modeled state of one endpoint direction.
type endpoint struct {
	ctl  uint32 // DxEPCTL without write-only and status bits
	tsiz uint32
	intr uint32
	nak  bool
}

// Core is a behavioral model of the OTG_FS device core. It implements
// [hal.Bus] for the driver side and is stimulated from the bus side by a
// [Host].
//
// The model covers what a device-mode control pipe and an isochronous
// endpoint pair need: latched write-1-to-clear interrupt flags, the shared
// receive FIFO with its status entries, one transmit FIFO per IN endpoint,
// per-endpoint control and transfer-size registers, STALL and NAK handshakes
// and device address matching. Anything else reads back as written.
//
// Core is safe for concurrent use: the driver may run in one goroutine while
// a [Host] drives the bus from another.
type Core struct {
	mu sync.Mutex

	regs    map[hal.Reg]uint32
	gintsts uint32 // latched write-1-to-clear bits
	in      [otg.NumEndpoints]endpoint
	out     [otg.NumEndpoints]endpoint
	rx      []uint32 // status entries, each followed by its data words
	tx      [otg.NumEndpoints][]uint32

	address     uint8 // address the core answers to
	pending     uint8 // address written during a control transfer
	hasPending  bool
	controlOpen bool // SETUP seen, EP0 IN not yet completed

	isr      func()
	irq      chan struct{}
	maxRuns  int
	storms   int
	handlers int
}

// Option configures a [Core].
type Option func(*Core)

// WithMaxHandlerRuns sets how many consecutive handler runs a single raised
// interrupt may take before it is reported as a storm.
func WithMaxHandlerRuns(n int) Option {
	return func(c *Core) {
		if n > 0 {
			c.maxRuns = n
		}
	}
}

// New returns a core in its power-on state: soft disconnected, interrupts
// masked, every endpoint inactive and NAKing.
func New(opts ...Option) *Core {
	c := &Core{
		regs:    make(map[hal.Reg]uint32),
		maxRuns: DefaultMaxHandlerRuns,
	}
	c.regs[otg.DCTL] = otg.DCTLSDIS
	c.regs[otg.GUSBCFG] = otg.GUSBCFGPHYSEL
	c.resetEndpoints()
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Attach installs the interrupt handler. Host events that leave an unmasked
// interrupt pending call isr synchronously, repeatedly, until the core no
// longer requests service.
func (c *Core) Attach(isr func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.isr = isr
}

// Interrupts switches the core to asynchronous delivery and returns the
// interrupt request line. Host events send a non-blocking signal on it; the
// receiver must service the core until [Core.Pending] reports false.
func (c *Core) Interrupts() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.irq == nil {
		c.irq = make(chan struct{}, 1)
	}
	return c.irq
}

// Pending reports whether the core is requesting an interrupt.
func (c *Core) Pending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingLocked()
}

// Connected reports whether the device is attached to the bus (DCTL.SDIS
// clear).
func (c *Core) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.regs[otg.DCTL]&otg.DCTLSDIS == 0
}

// DeviceAddress returns the address the core currently answers to. It lags
// DCFG.DAD while a control transfer that changed the address is still open.
func (c *Core) DeviceAddress() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.address
}

// TxLevel returns the number of words queued in the transmit FIFO of IN
// endpoint ep.
func (c *Core) TxLevel(ep uint8) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if int(ep) >= otg.NumEndpoints {
		return 0
	}
	return len(c.tx[ep])
}

// RxLevel returns the number of words queued in the receive FIFO.
func (c *Core) RxLevel() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx)
}

// Storms returns how many raised interrupts were abandoned because the
// handler left them pending.
func (c *Core) Storms() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.storms
}

// HandlerRuns returns how many times the attached handler has been called.
func (c *Core) HandlerRuns() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.handlers
}

// Load implements [hal.Bus].
func (c *Core) Load(r hal.Reg) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r {
	case otg.GINTSTS:
		return c.gintstsLocked()
	case otg.GRXSTSR:
		if len(c.rx) == 0 {
			return 0
		}
		return c.rx[0]
	case otg.GRXSTSP:
		return c.popRxLocked()
	case otg.GRSTCTL:
		return c.regs[r] | otg.GRSTCTLAHBIDL
	case otg.DAINT:
		return c.daintLocked()
	}
	if _, ok := otg.IsFIFO(r); ok {
		return c.popRxLocked()
	}
	if dir, n, slot, ok := decodeEndpoint(r); ok {
		e := c.endpoint(dir, n)
		switch slot {
		case slotCtl:
			if e.nak {
				return e.ctl | otg.EPCTLNAKSTS
			}
			return e.ctl
		case slotInt:
			return e.intr
		case slotTsiz:
			return e.tsiz
		case slotTxfsts:
			if dir == dirIn {
				return uint32(max(0, c.txDepthLocked(n)-len(c.tx[n])))
			}
		}
		return 0
	}
	return c.regs[r]
}

// Store implements [hal.Bus].
func (c *Core) Store(r hal.Reg, v uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch r {
	case otg.GINTSTS:
		c.gintsts &^= v & otg.GINTW1CMask
		return
	case otg.GRXSTSR, otg.GRXSTSP, otg.DAINT:
		return
	case otg.GRSTCTL:
		c.resetControlLocked(v)
		return
	case otg.DCFG:
		c.regs[r] = v
		addr := uint8((v & otg.DCFGDADMask) >> otg.DCFGDADPos)
		if c.controlOpen {
			c.pending, c.hasPending = addr, true
		} else {
			c.address = addr
		}
		return
	}
	if n, ok := otg.IsFIFO(r); ok {
		c.tx[n] = append(c.tx[n], v)
		return
	}
	if dir, n, slot, ok := decodeEndpoint(r); ok {
		e := c.endpoint(dir, n)
		switch slot {
		case slotCtl:
			if v&otg.EPCTLCNAK != 0 {
				e.nak = false
			}
			if v&otg.EPCTLSNAK != 0 {
				e.nak = true
			}
			w := v &^ (otg.EPCTLCNAK | otg.EPCTLSNAK | otg.EPCTLEPDIS | otg.EPCTLNAKSTS)
			if v&otg.EPCTLEPDIS != 0 {
				w &^= otg.EPCTLEPENA
			}
			e.ctl = w
		case slotInt:
			e.intr &^= v
		case slotTsiz:
			e.tsiz = v
		}
		return
	}
	c.regs[r] = v
}

// raise delivers the interrupt for a host event.
func (c *Core) raise() error {
	c.mu.Lock()
	irq, isr := c.irq, c.isr
	c.mu.Unlock()

	if irq != nil {
		select {
		case irq <- struct{}{}:
		default:
		}
		return nil
	}
	if isr == nil {
		return nil
	}
	for runs := 0; c.Pending(); runs++ {
		if runs >= c.maxRuns {
			c.mu.Lock()
			c.storms++
			status := c.gintstsLocked() & c.regs[otg.GINTMSK]
			c.mu.Unlock()
			pkg.LogWarn(pkg.ComponentSim, "interrupt storm", "runs", runs, "gintsts", fmt.Sprintf("%#08x", status))
			return fmt.Errorf("interrupt pending after %d handler runs (GINTSTS %#08x): %w", runs, status, pkg.ErrProtocol)
		}
		c.mu.Lock()
		c.handlers++
		c.mu.Unlock()
		isr()
	}
	return nil
}

// busReset models a USB reset followed by full-speed enumeration.
func (c *Core) busReset() pkg.Handshake {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.regs[otg.DCTL]&otg.DCTLSDIS != 0 {
		return pkg.HandshakeTimeout
	}
	c.gintsts |= otg.GINTUSBRST | otg.GINTENUMDNE
	c.regs[otg.DSTS] = c.regs[otg.DSTS]&^otg.DSTSENUMSPDMask | otg.DSTSENUMSPDFull
	c.controlOpen, c.hasPending = false, false
	c.address = uint8((c.regs[otg.DCFG] & otg.DCFGDADMask) >> otg.DCFGDADPos)
	pkg.LogDebug(pkg.ComponentSim, "bus reset", "address", c.address)
	return pkg.HandshakeACK
}

// setup delivers a SETUP transaction to endpoint 0. Control endpoints accept
// SETUP regardless of NAK or STALL, and receiving one clears STALL on both
// directions.
func (c *Core) setup(addr uint8, packet [8]byte) pkg.Handshake {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs := c.selectLocked(addr, 0); hs != pkg.HandshakeACK {
		return hs
	}
	c.in[0].ctl &^= otg.EPCTLSTALL
	c.out[0].ctl &^= otg.EPCTLSTALL
	c.controlOpen = true
	c.rx = append(c.rx,
		uint32(otg.NewRxStatus(0, otg.PacketSetupData, len(packet), 0)),
		otg.PackWord(packet[0:4]),
		otg.PackWord(packet[4:8]),
		uint32(otg.NewRxStatus(0, otg.PacketSetupComplete, 0, 0)),
	)
	c.out[0].intr |= otg.DOEPINTSTUP
	return pkg.HandshakeACK
}

// inToken delivers an IN token to endpoint ep and returns the packet sent back.
func (c *Core) inToken(addr, ep uint8) ([]byte, pkg.Handshake) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs := c.selectLocked(addr, ep); hs != pkg.HandshakeACK {
		return nil, hs
	}
	e := &c.in[ep]
	if hs := e.handshake(); hs != pkg.HandshakeACK {
		return nil, hs
	}
	pktcnt := (e.tsiz & otg.TSIZPKTCNTMask) >> otg.TSIZPKTCNTPos
	size := int(e.tsiz & otg.TSIZXFRSIZMask)
	if pktcnt == 0 {
		return nil, pkg.HandshakeNAK
	}
	n := min(size, maxPacket(ep, e.ctl))
	words := otg.WordCount(n)
	if len(c.tx[ep]) < words {
		// The application has not finished filling the FIFO.
		return nil, pkg.HandshakeNAK
	}
	data := make([]byte, n)
	for i := 0; i < words; i++ {
		otg.UnpackWord(c.tx[ep][i], data[4*i:min(n, 4*i+4)])
	}
	c.tx[ep] = c.tx[ep][words:]

	pktcnt--
	size -= n
	e.tsiz = e.tsiz&^(otg.TSIZPKTCNTMask|otg.TSIZXFRSIZMask) |
		pktcnt<<otg.TSIZPKTCNTPos | uint32(size)&otg.TSIZXFRSIZMask
	if pktcnt == 0 {
		e.ctl &^= otg.EPCTLEPENA
		e.intr |= otg.DIEPINTXFRC
		if ep == 0 {
			c.controlOpen = false
			if c.hasPending {
				c.address, c.hasPending = c.pending, false
			}
		}
	}
	return data, pkg.HandshakeACK
}

// outToken delivers an OUT transaction carrying data to endpoint ep.
func (c *Core) outToken(addr, ep uint8, data []byte) pkg.Handshake {
	c.mu.Lock()
	defer c.mu.Unlock()

	if hs := c.selectLocked(addr, ep); hs != pkg.HandshakeACK {
		return hs
	}
	e := &c.out[ep]
	if hs := e.handshake(); hs != pkg.HandshakeACK {
		return hs
	}
	if len(data) > maxPacket(ep, e.ctl) {
		// Babble: the device drops the packet without a handshake.
		return pkg.HandshakeTimeout
	}
	c.rx = append(c.rx, uint32(otg.NewRxStatus(ep, otg.PacketOutData, len(data), 0)))
	for rest := data; len(rest) > 0; rest = rest[min(4, len(rest)):] {
		c.rx = append(c.rx, otg.PackWord(rest))
	}
	c.rx = append(c.rx, uint32(otg.NewRxStatus(ep, otg.PacketOutComplete, 0, 0)))

	pktcnt := (e.tsiz & otg.TSIZPKTCNTMask) >> otg.TSIZPKTCNTPos
	if pktcnt > 0 {
		pktcnt--
	}
	e.tsiz = e.tsiz&^otg.TSIZPKTCNTMask | pktcnt<<otg.TSIZPKTCNTPos
	e.ctl &^= otg.EPCTLEPENA
	e.intr |= otg.DOEPINTXFRC
	return pkg.HandshakeACK
}

// handshake returns the response of an endpoint to a token: STALL wins over
// everything, and an endpoint that is not enabled or is NAKing answers NAK.
func (e *endpoint) handshake() pkg.Handshake {
	switch {
	case e.ctl&otg.EPCTLSTALL != 0:
		return pkg.HandshakeStall
	case e.ctl&otg.EPCTLEPENA == 0, e.nak:
		return pkg.HandshakeNAK
	default:
		return pkg.HandshakeACK
	}
}

// selectLocked decides whether a token addressed to (addr, ep) reaches the
// device at all.
func (c *Core) selectLocked(addr, ep uint8) pkg.Handshake {
	switch {
	case c.regs[otg.DCTL]&otg.DCTLSDIS != 0:
		return pkg.HandshakeTimeout
	case addr != c.address:
		return pkg.HandshakeTimeout
	case int(ep) >= otg.NumEndpoints:
		return pkg.HandshakeTimeout
	case ep != 0 && c.in[ep].ctl&otg.EPCTLUSBAEP == 0 && c.out[ep].ctl&otg.EPCTLUSBAEP == 0:
		return pkg.HandshakeTimeout
	}
	return pkg.HandshakeACK
}

// maxPacket decodes the max packet size field of a DxEPCTL value.
func maxPacket(ep uint8, ctl uint32) int {
	if ep != 0 {
		return int(ctl & otg.EPCTLMPSIZMask)
	}
	switch ctl & otg.EPCTLEP0MPSMask {
	case otg.EP0MPS64:
		return 64
	case otg.EP0MPS32:
		return 32
	case otg.EP0MPS16:
		return 16
	default:
		return 8
	}
}

func (c *Core) endpoint(dir direction, n uint8) *endpoint {
	if dir == dirIn {
		return &c.in[n]
	}
	return &c.out[n]
}

func (c *Core) pendingLocked() bool {
	if c.regs[otg.GAHBCFG]&otg.GAHBCFGGINT == 0 {
		return false
	}
	return c.gintstsLocked()&c.regs[otg.GINTMSK] != 0
}

func (c *Core) gintstsLocked() uint32 {
	s := c.gintsts
	if len(c.rx) > 0 {
		s |= otg.GINTRXFLVL
	}
	daint := c.daintLocked() & c.regs[otg.DAINTMSK]
	if daint&0xFFFF != 0 {
		s |= otg.GINTIEPINT
	}
	if daint>>otg.DAINTOEPPos != 0 {
		s |= otg.GINTOEPINT
	}
	return s
}

func (c *Core) daintLocked() uint32 {
	var daint uint32
	for n := range otg.NumEndpoints {
		if c.in[n].intr&c.regs[otg.DIEPMSK] != 0 {
			daint |= 1 << (otg.DAINTIEPPos + n)
		}
		if c.out[n].intr&c.regs[otg.DOEPMSK] != 0 {
			daint |= 1 << (otg.DAINTOEPPos + n)
		}
	}
	return daint
}

func (c *Core) popRxLocked() uint32 {
	if len(c.rx) == 0 {
		return 0
	}
	w := c.rx[0]
	c.rx = c.rx[1:]
	return w
}

func (c *Core) txDepthLocked(n uint8) int {
	r := otg.DIEPTXF0
	if n > 0 {
		r = otg.DIEPTXF(n)
	}
	return int(c.regs[r] >> otg.TXFDepthPos)
}

// resetControlLocked applies a GRSTCTL write. Every reset and flush
// completes immediately, so the bits always read back clear.
func (c *Core) resetControlLocked(v uint32) {
	if v&otg.GRSTCTLCSRST != 0 {
		c.gintsts = 0
		c.rx = nil
		for n := range c.tx {
			c.tx[n] = nil
		}
		c.resetEndpoints()
		c.controlOpen, c.hasPending = false, false
		pkg.LogDebug(pkg.ComponentSim, "core soft reset")
	}
	if v&otg.GRSTCTLRXFFLSH != 0 {
		c.rx = nil
	}
	if v&otg.GRSTCTLTXFFLSH != 0 {
		num := (v & otg.GRSTCTLTXFNUMMask) >> otg.GRSTCTLTXFNUMPos
		for n := range c.tx {
			if num == otg.GRSTCTLTXFNUMAll>>otg.GRSTCTLTXFNUMPos || uint32(n) == num {
				c.tx[n] = nil
			}
		}
	}
}

func (c *Core) resetEndpoints() {
	for n := range otg.NumEndpoints {
		c.in[n] = endpoint{nak: true}
		c.out[n] = endpoint{nak: true}
	}
	// Endpoint 0 is always active.
	c.in[0].ctl = otg.EPCTLUSBAEP
	c.out[0].ctl = otg.EPCTLUSBAEP
}

// decodeEndpoint maps r to an endpoint register slot.
func decodeEndpoint(r hal.Reg) (direction, uint8, hal.Reg, bool) {
	stride := otg.DIEPCTL(1) - otg.DIEPCTL(0)
	for _, b := range []struct {
		dir  direction
		base hal.Reg
	}{
		{dirIn, otg.DIEPCTL(0)},
		{dirOut, otg.DOEPCTL(0)},
	} {
		if r >= b.base && r < b.base+otg.NumEndpoints*stride {
			off := r - b.base
			return b.dir, uint8(off / stride), off % stride, true
		}
	}
	return 0, 0, 0, false
}
