package otg

import "github.com/ardnew/uac2speaker/device/hal"

// Base is the OTG_FS peripheral base address on STM32F4.
const Base uintptr = 0x50000000

// Global register offsets.
const (
	GOTGCTL  hal.Reg = 0x000 // OTG control and status
	GAHBCFG  hal.Reg = 0x008 // AHB configuration
	GUSBCFG  hal.Reg = 0x00C // USB configuration
	GRSTCTL  hal.Reg = 0x010 // Reset control
	GINTSTS  hal.Reg = 0x014 // Core interrupt status
	GINTMSK  hal.Reg = 0x018 // Core interrupt mask
	GRXSTSR  hal.Reg = 0x01C // Receive status debug read
	GRXSTSP  hal.Reg = 0x020 // Receive status read and pop
	GRXFSIZ  hal.Reg = 0x024 // Receive FIFO size
	DIEPTXF0 hal.Reg = 0x028 // EP0 transmit FIFO size
	GCCFG    hal.Reg = 0x038 // General core configuration
	CID      hal.Reg = 0x03C // Core ID
)

// Device register offsets.
const (
	DCFG       hal.Reg = 0x800 // Device configuration
	DCTL       hal.Reg = 0x804 // Device control
	DSTS       hal.Reg = 0x808 // Device status
	DIEPMSK    hal.Reg = 0x810 // IN endpoint common interrupt mask
	DOEPMSK    hal.Reg = 0x814 // OUT endpoint common interrupt mask
	DAINT      hal.Reg = 0x818 // All endpoints interrupt
	DAINTMSK   hal.Reg = 0x81C // All endpoints interrupt mask
	DIEPEMPMSK hal.Reg = 0x834 // IN endpoint FIFO empty interrupt mask
)

// Per-endpoint register blocks.
const (
	inEndpointBase  hal.Reg = 0x900
	outEndpointBase hal.Reg = 0xB00
	endpointStride  hal.Reg = 0x20
	fifoBase        hal.Reg = 0x1000
	fifoStride      hal.Reg = 0x1000
)

// NumEndpoints is the number of bidirectional endpoints on OTG_FS.
const NumEndpoints = 4

// DIEPTXF returns the transmit FIFO size register for IN endpoint n (n >= 1).
func DIEPTXF(n uint8) hal.Reg { return 0x104 + hal.Reg(n-1)*4 }

// DIEPCTL returns the control register of IN endpoint n.
func DIEPCTL(n uint8) hal.Reg { return inEndpointBase + hal.Reg(n)*endpointStride }

// DIEPINT returns the interrupt register of IN endpoint n.
func DIEPINT(n uint8) hal.Reg { return inEndpointBase + 0x08 + hal.Reg(n)*endpointStride }

// DIEPTSIZ returns the transfer size register of IN endpoint n.
func DIEPTSIZ(n uint8) hal.Reg { return inEndpointBase + 0x10 + hal.Reg(n)*endpointStride }

// DTXFSTS returns the transmit FIFO status register of IN endpoint n.
func DTXFSTS(n uint8) hal.Reg { return inEndpointBase + 0x18 + hal.Reg(n)*endpointStride }

// DOEPCTL returns the control register of OUT endpoint n.
func DOEPCTL(n uint8) hal.Reg { return outEndpointBase + hal.Reg(n)*endpointStride }

// DOEPINT returns the interrupt register of OUT endpoint n.
func DOEPINT(n uint8) hal.Reg { return outEndpointBase + 0x08 + hal.Reg(n)*endpointStride }

// DOEPTSIZ returns the transfer size register of OUT endpoint n.
func DOEPTSIZ(n uint8) hal.Reg { return outEndpointBase + 0x10 + hal.Reg(n)*endpointStride }

// FIFO returns the data port of endpoint n. Stores push into the IN
// endpoint's transmit FIFO; loads from any port pop the shared receive FIFO.
func FIFO(n uint8) hal.Reg { return fifoBase + hal.Reg(n)*fifoStride }

// IsFIFO reports whether r lies in the FIFO data port window and returns
// the endpoint number of the port.
func IsFIFO(r hal.Reg) (uint8, bool) {
	if r < fifoBase || r >= fifoBase+NumEndpoints*fifoStride {
		return 0, false
	}
	return uint8((r - fifoBase) / fifoStride), true
}

// GAHBCFG bits.
const (
	GAHBCFGGINT = 1 << 0 // Global interrupt enable
)

// GUSBCFG bits.
const (
	GUSBCFGPHYSEL = 1 << 6  // Full-speed serial transceiver (always 1 on OTG_FS)
	GUSBCFGFDMOD  = 1 << 30 // Force device mode
)

// GRSTCTL bits.
const (
	GRSTCTLCSRST   = 1 << 0  // Core soft reset
	GRSTCTLRXFFLSH = 1 << 4  // Receive FIFO flush
	GRSTCTLTXFFLSH = 1 << 5  // Transmit FIFO flush
	GRSTCTLAHBIDL  = 1 << 31 // AHB master idle
)

// GRSTCTL TXFNUM field, selecting the transmit FIFO to flush.
const (
	GRSTCTLTXFNUMPos  = 6
	GRSTCTLTXFNUMMask = 0x1F << GRSTCTLTXFNUMPos
	GRSTCTLTXFNUMAll  = 0x10 << GRSTCTLTXFNUMPos
)

// GINTSTS and GINTMSK bits.
const (
	GINTRXFLVL  = 1 << 4  // Receive FIFO non-empty
	GINTUSBSUSP = 1 << 11 // USB suspend
	GINTUSBRST  = 1 << 12 // USB reset
	GINTENUMDNE = 1 << 13 // Enumeration done
	GINTIEPINT  = 1 << 18 // IN endpoint interrupt
	GINTOEPINT  = 1 << 19 // OUT endpoint interrupt
)

// GINTSTS bits that are cleared by writing 1.
const GINTW1CMask = GINTUSBSUSP | GINTUSBRST | GINTENUMDNE

// GRXSTSP fields.
const (
	GRXSTSEPNUMMask  = 0xF
	GRXSTSBCNTPos    = 4
	GRXSTSBCNTMask   = 0x7FF << GRXSTSBCNTPos
	GRXSTSDPIDPos    = 15
	GRXSTSDPIDMask   = 0x3 << GRXSTSDPIDPos
	GRXSTSPKTSTSPos  = 17
	GRXSTSPKTSTSMask = 0xF << GRXSTSPKTSTSPos
)

// GCCFG bits.
const (
	GCCFGPWRDWN     = 1 << 16 // Transceiver powered (not in power down)
	GCCFGVBUSBSEN   = 1 << 19 // VBUS "B" sensing enable
	GCCFGNOVBUSSENS = 1 << 21 // VBUS sensing disable
)

// DIEPTXF fields.
const (
	TXFStartPos = 0
	TXFDepthPos = 16
)

// DCFG fields.
const (
	DCFGDSPDMask = 0x3
	DCFGDSPDFull = 0x3    // Full speed using the internal PHY
	DCFGNZLSOHSK = 1 << 2 // Non-zero-length status OUT handshake
	DCFGDADPos   = 4
	DCFGDADMask  = 0x7F << DCFGDADPos
)

// DCTL bits.
const (
	DCTLRWUSIG = 1 << 0  // Remote wakeup signaling
	DCTLSDIS   = 1 << 1  // Soft disconnect
	DCTLCGINAK = 1 << 8  // Clear global IN NAK
	DCTLCGONAK = 1 << 10 // Clear global OUT NAK
)

// DSTS fields.
const (
	DSTSSUSPSTS     = 1 << 0
	DSTSENUMSPDPos  = 1
	DSTSENUMSPDMask = 0x3 << DSTSENUMSPDPos
	DSTSENUMSPDFull = 0x3 << DSTSENUMSPDPos // Full speed (48 MHz PHY clock)
)

// DIEPMSK / DIEPINT bits.
const (
	DIEPINTXFRC   = 1 << 0 // Transfer completed
	DIEPINTEPDISD = 1 << 1 // Endpoint disabled
	DIEPINTTOC    = 1 << 3 // Timeout (control IN)
	DIEPINTITTXFE = 1 << 4 // IN token received when TxFIFO empty
	DIEPINTINEPNE = 1 << 6 // IN endpoint NAK effective
	DIEPINTTXFE   = 1 << 7 // TxFIFO empty (read only)
)

// DOEPMSK / DOEPINT bits.
const (
	DOEPINTXFRC    = 1 << 0 // Transfer completed
	DOEPINTEPDISD  = 1 << 1 // Endpoint disabled
	DOEPINTSTUP    = 1 << 3 // SETUP phase done
	DOEPINTOTEPDIS = 1 << 4 // OUT token received when endpoint disabled
)

// DAINT / DAINTMSK fields.
const (
	DAINTIEPPos = 0
	DAINTOEPPos = 16
)

// DxEPCTL fields.
const (
	EPCTLMPSIZMask  = 0x7FF
	EPCTLEP0MPSMask = 0x3
	EPCTLUSBAEP     = 1 << 15
	EPCTLNAKSTS     = 1 << 17
	EPCTLEPTYPPos   = 18
	EPCTLEPTYPMask  = 0x3 << EPCTLEPTYPPos
	EPCTLSTALL      = 1 << 21
	EPCTLTXFNUMPos  = 22
	EPCTLTXFNUMMask = 0xF << EPCTLTXFNUMPos
	EPCTLCNAK       = 1 << 26
	EPCTLSNAK       = 1 << 27
	EPCTLSD0PID     = 1 << 28 // Also SEVNFRM for isochronous endpoints
	EPCTLSODDFRM    = 1 << 29
	EPCTLEPDIS      = 1 << 30
	EPCTLEPENA      = 1 << 31
)

// EP0 max packet size encodings for DIEPCTL0/DOEPCTL0 MPSIZ.
const (
	EP0MPS64 = 0x0
	EP0MPS32 = 0x1
	EP0MPS16 = 0x2
	EP0MPS8  = 0x3
)

// Endpoint type encodings for EPTYP.
const (
	EPTypeControl     = 0x0
	EPTypeIsochronous = 0x1
	EPTypeBulk        = 0x2
	EPTypeInterrupt   = 0x3
)

// DxEPTSIZ fields.
const (
	TSIZXFRSIZMask    = 0x7FFFF
	TSIZEP0XFRSIZMask = 0x7F
	TSIZPKTCNTPos     = 19
	TSIZPKTCNTMask    = 0x3FF << TSIZPKTCNTPos
	TSIZEP0PKTCNTMask = 0x3 << TSIZPKTCNTPos
	TSIZMCNTPos       = 29 // IN: multi count; OUT EP0: STUPCNT
	TSIZSTUPCNTMask   = 0x3 << TSIZMCNTPos
)
