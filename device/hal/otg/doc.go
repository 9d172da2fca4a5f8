// Package otg describes the STM32F4 OTG_FS (Synopsys DWC2) device-mode
// register block and provides typed access to it over a [hal.Bus].
//
// Register offsets are relative to [Base]. Bit fields are exported as named
// constants so that driver code never spells out raw masks:
//
//	core := otg.New(bus)
//	core.SetBits(otg.DIEPCTL(0), otg.EPCTLCNAK|otg.EPCTLEPENA)
//
// # Packet FIFOs
//
// The core exposes one data port per endpoint. A store to port n pushes a
// word into the transmit FIFO of IN endpoint n; a load from any port pops
// the shared receive FIFO. [Core.PushBytes] and [Core.PopBytes] pack bytes
// little-endian, four per word, zero-padding the final word.
//
// # Receive Status
//
// Each received packet is announced by a status entry popped from GRXSTSP
// with [Core.PopRxStatus]. The entry's byte count tells how many data bytes
// must be drained from the FIFO before the next entry can be popped.
package otg
