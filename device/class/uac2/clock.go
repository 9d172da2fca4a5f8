package uac2

import (
	"encoding/binary"

	"github.com/ardnew/uac2speaker/device"
	"github.com/ardnew/uac2speaker/pkg"
)

// rangeLength is the size of a 4-byte parameter block with one subrange:
// wNumSubRanges followed by dMIN, dMAX and dRES.
const rangeLength = 2 + 3*4

// ClockHandler answers the class requests of the clock source: the current
// sampling frequency, its range, and clock validity. The clock is fixed, so
// every other request, including any SET, is refused.
//
// ClockHandler implements [device.ClassHandler].
type ClockHandler struct {
	sampleRate uint32

	// Response buffer; the returned slice references it.
	buf [rangeLength]byte
}

// NewClockHandler returns a handler reporting a fixed sampleRate in Hz.
func NewClockHandler(sampleRate uint32) *ClockHandler {
	return &ClockHandler{sampleRate: sampleRate}
}

// SampleRate returns the reported sampling frequency in Hz.
func (h *ClockHandler) SampleRate() uint32 {
	return h.sampleRate
}

// HandleClass implements [device.ClassHandler].
func (h *ClockHandler) HandleClass(setup *device.SetupPacket) ([]byte, bool, error) {
	if !setup.IsInterfaceRecipient() || setup.InterfaceNumber() != InterfaceAudioControl {
		return nil, false, nil
	}
	if setup.EntityID() != ClockSourceID || !setup.IsDeviceToHost() {
		return nil, false, nil
	}
	// The channel number in the wValue low byte must be the master channel.
	if setup.Value&0xFF != 0 {
		return nil, false, pkg.ErrInvalidParameter
	}

	switch setup.ControlSelector() {
	case ClockSamplingFrequencyControl:
		switch setup.Request {
		case RequestCur:
			binary.LittleEndian.PutUint32(h.buf[:4], h.sampleRate)
			return h.buf[:4], true, nil
		case RequestRange:
			binary.LittleEndian.PutUint16(h.buf[0:2], 1)
			binary.LittleEndian.PutUint32(h.buf[2:6], h.sampleRate)  // dMIN
			binary.LittleEndian.PutUint32(h.buf[6:10], h.sampleRate) // dMAX
			binary.LittleEndian.PutUint32(h.buf[10:14], 0)           // dRES
			return h.buf[:rangeLength], true, nil
		}
	case ClockValidityControl:
		if setup.Request == RequestCur {
			h.buf[0] = 1
			return h.buf[:1], true, nil
		}
	}
	pkg.LogDebug(pkg.ComponentRequest, "unsupported clock request",
		"request", setup.Request, "selector", setup.ControlSelector())
	return nil, false, nil
}
