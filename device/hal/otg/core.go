package otg

import (
	"fmt"

	"github.com/ardnew/uac2speaker/device/hal"
	"github.com/ardnew/uac2speaker/pkg"
)

// Core is a typed view of the OTG_FS register block over a [hal.Bus].
//
// Core owns no state beyond the bus; every method is a fixed sequence of
// register accesses. Read-modify-write helpers are not atomic with respect to
// the hardware, so callers must serialize access (the driver does this by
// running all USB handling under one lock).
type Core struct {
	bus hal.Bus
}

// New returns a Core that accesses registers through bus.
func New(bus hal.Bus) *Core {
	return &Core{bus: bus}
}

// Bus returns the underlying register bus.
func (c *Core) Bus() hal.Bus {
	return c.bus
}

// Load reads register r.
func (c *Core) Load(r hal.Reg) uint32 {
	return c.bus.Load(r)
}

// Store writes v to register r.
func (c *Core) Store(r hal.Reg, v uint32) {
	c.bus.Store(r, v)
}

// SetBits sets mask in register r.
func (c *Core) SetBits(r hal.Reg, mask uint32) {
	c.bus.Store(r, c.bus.Load(r)|mask)
}

// ClearBits clears mask in register r.
func (c *Core) ClearBits(r hal.Reg, mask uint32) {
	c.bus.Store(r, c.bus.Load(r)&^mask)
}

// Modify clears the bits in clear, then sets the bits in set, with one write.
func (c *Core) Modify(r hal.Reg, clear, set uint32) {
	c.bus.Store(r, c.bus.Load(r)&^clear|set)
}

// HasBits reports whether every bit of mask is set in register r.
func (c *Core) HasBits(r hal.Reg, mask uint32) bool {
	return c.bus.Load(r)&mask == mask
}

// SoftReset performs a core soft reset and waits for the core to report
// completion. It returns [pkg.ErrTimeout] if the reset bit is still set
// after maxPolls reads.
func (c *Core) SoftReset(maxPolls int) error {
	for i := 0; !c.HasBits(GRSTCTL, GRSTCTLAHBIDL); i++ {
		if i >= maxPolls {
			return fmt.Errorf("wait for AHB idle: %w", pkg.ErrTimeout)
		}
	}
	c.SetBits(GRSTCTL, GRSTCTLCSRST)
	for i := 0; c.HasBits(GRSTCTL, GRSTCTLCSRST); i++ {
		if i >= maxPolls {
			return fmt.Errorf("core soft reset: %w", pkg.ErrTimeout)
		}
	}
	return nil
}

// flushPolls bounds the wait for a FIFO flush to self-clear.
const flushPolls = 1000

// FlushTxFIFO flushes the transmit FIFO of IN endpoint n, or every transmit
// FIFO when n is [GRSTCTLTXFNUMAll]>>[GRSTCTLTXFNUMPos].
func (c *Core) FlushTxFIFO(n uint8) {
	c.Store(GRSTCTL, GRSTCTLTXFFLSH|uint32(n)<<GRSTCTLTXFNUMPos&GRSTCTLTXFNUMMask)
	for i := 0; i < flushPolls && c.HasBits(GRSTCTL, GRSTCTLTXFFLSH); i++ {
	}
}

// FlushRxFIFO flushes the receive FIFO.
func (c *Core) FlushRxFIFO() {
	c.Store(GRSTCTL, GRSTCTLRXFFLSH)
	for i := 0; i < flushPolls && c.HasBits(GRSTCTL, GRSTCTLRXFFLSH); i++ {
	}
}

// FlushFIFOs flushes the receive FIFO and every transmit FIFO.
func (c *Core) FlushFIFOs() {
	c.FlushTxFIFO(GRSTCTLTXFNUMAll >> GRSTCTLTXFNUMPos)
	c.FlushRxFIFO()
}

// InterruptStatus reads the core interrupt status once, limited to the
// unmasked sources.
func (c *Core) InterruptStatus() uint32 {
	return c.bus.Load(GINTSTS) & c.bus.Load(GINTMSK)
}

// AckInterrupt acknowledges the write-1-to-clear bits of mask in GINTSTS.
// Level-triggered sources (RXFLVL, IEPINT) are cleared at their origin and
// are never written here.
func (c *Core) AckInterrupt(mask uint32) {
	if w := mask & GINTW1CMask; w != 0 {
		c.bus.Store(GINTSTS, w)
	}
}

// SetAddress programs the 7-bit device address into DCFG.DAD.
func (c *Core) SetAddress(address uint8) {
	c.Modify(DCFG, DCFGDADMask, uint32(address&0x7F)<<DCFGDADPos)
}

// Address returns the device address currently programmed in DCFG.DAD.
func (c *Core) Address() uint8 {
	return uint8((c.bus.Load(DCFG) & DCFGDADMask) >> DCFGDADPos)
}

// EnumeratedSpeed returns the speed reported in DSTS after enumeration.
func (c *Core) EnumeratedSpeed() hal.Speed {
	switch (c.bus.Load(DSTS) & DSTSENUMSPDMask) >> DSTSENUMSPDPos {
	case 0:
		return hal.SpeedHigh
	case 1, 3:
		return hal.SpeedFull
	case 2:
		return hal.SpeedLow
	default:
		return hal.SpeedUnknown
	}
}

// PacketStatus is the PKTSTS field of a receive status entry.
type PacketStatus uint8

// Device mode packet status codes.
const (
	PacketGlobalOutNAK  PacketStatus = 0x1 // Global OUT NAK effective
	PacketOutData       PacketStatus = 0x2 // OUT data packet received
	PacketOutComplete   PacketStatus = 0x3 // OUT transfer completed
	PacketSetupComplete PacketStatus = 0x4 // SETUP transaction completed
	PacketSetupData     PacketStatus = 0x6 // SETUP data packet received
)

// String returns the packet status name.
func (p PacketStatus) String() string {
	switch p {
	case PacketGlobalOutNAK:
		return "GlobalOutNAK"
	case PacketOutData:
		return "OutData"
	case PacketOutComplete:
		return "OutComplete"
	case PacketSetupComplete:
		return "SetupComplete"
	case PacketSetupData:
		return "SetupData"
	default:
		return fmt.Sprintf("PacketStatus(%d)", uint8(p))
	}
}

// RxStatus is one receive status entry popped from GRXSTSP.
type RxStatus uint32

// NewRxStatus encodes a receive status entry.
func NewRxStatus(ep uint8, status PacketStatus, byteCount int, dpid uint8) RxStatus {
	return RxStatus(uint32(ep)&GRXSTSEPNUMMask |
		uint32(byteCount)<<GRXSTSBCNTPos&GRXSTSBCNTMask |
		uint32(dpid)<<GRXSTSDPIDPos&GRXSTSDPIDMask |
		uint32(status)<<GRXSTSPKTSTSPos&GRXSTSPKTSTSMask)
}

// Endpoint returns the endpoint number the entry belongs to.
func (s RxStatus) Endpoint() uint8 {
	return uint8(uint32(s) & GRXSTSEPNUMMask)
}

// ByteCount returns the number of data bytes that follow in the FIFO.
func (s RxStatus) ByteCount() int {
	return int((uint32(s) & GRXSTSBCNTMask) >> GRXSTSBCNTPos)
}

// DataPID returns the data PID of the received packet.
func (s RxStatus) DataPID() uint8 {
	return uint8((uint32(s) & GRXSTSDPIDMask) >> GRXSTSDPIDPos)
}

// PacketStatus returns the packet status code.
func (s RxStatus) PacketStatus() PacketStatus {
	return PacketStatus((uint32(s) & GRXSTSPKTSTSMask) >> GRXSTSPKTSTSPos)
}

// String returns a compact description of the entry.
func (s RxStatus) String() string {
	return fmt.Sprintf("RX[ep=%d %s bcnt=%d]", s.Endpoint(), s.PacketStatus(), s.ByteCount())
}

// PopRxStatus pops the next receive status entry. The entry's data words,
// if any, must be read from the FIFO before the next pop.
func (c *Core) PopRxStatus() RxStatus {
	return RxStatus(c.bus.Load(GRXSTSP))
}

// InTransferSize encodes DIEPTSIZ for a transfer of size bytes in pktcnt packets.
func InTransferSize(pktcnt, size int) uint32 {
	return uint32(pktcnt)<<TSIZPKTCNTPos&TSIZPKTCNTMask | uint32(size)&TSIZXFRSIZMask
}

// OutTransferSize encodes DOEPTSIZ for one or more packets. For endpoint 0,
// setupCount sets STUPCNT, the number of back-to-back SETUP packets the
// endpoint can accept.
func OutTransferSize(setupCount, pktcnt, size int) uint32 {
	return uint32(setupCount)<<TSIZMCNTPos&TSIZSTUPCNTMask |
		uint32(pktcnt)<<TSIZPKTCNTPos&TSIZPKTCNTMask |
		uint32(size)&TSIZXFRSIZMask
}

// TxFIFOSize encodes a DIEPTXFx / DIEPTXF0 value from a start address and
// depth, both in 32-bit words.
func TxFIFOSize(start, depth uint16) uint32 {
	return uint32(depth)<<TXFDepthPos | uint32(start)<<TXFStartPos
}
