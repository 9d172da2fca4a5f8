package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/device/hal/sim"
	"github.com/ardnew/uac2speaker/pkg"
)

func TestGetDeviceDescriptor(t *testing.T) {
	r := newTestRig(t, 150)

	tr, err := r.host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, 64))
	require.NoError(t, err)
	assert.Equal(t, testDeviceDescriptor(), tr.Data)
	assert.Equal(t, []int{18}, tr.Packets)

	// Hosts read the first 8 bytes for bMaxPacketSize0 before anything else.
	tr, err = r.host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, 8))
	require.NoError(t, err)
	assert.Equal(t, testDeviceDescriptor()[:8], tr.Data)
	assert.Equal(t, uint8(EP0MaxPacketSize), tr.Data[7])

	assert.Equal(t, uint64(18+8), r.drv.Stats().DescriptorBytes)
}

func TestGetConfigurationDescriptor(t *testing.T) {
	tests := []struct {
		name        string
		length      int
		wLength     uint16
		wantPackets []int
	}{
		{"full, not a multiple", 150, 255, []int{64, 64, 22}},
		{"full, multiple", 128, 255, []int{64, 64, 0}},
		{"full, exactly wLength", 128, 128, []int{64, 64}},
		{"header only", 150, 9, []int{9}},
		{"truncated", 150, 100, []int{64, 36}},
		{"header only descriptor", 9, 255, []int{9}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t, tt.length)
			tr, err := r.host.ControlIn(sim.GetDescriptor(sim.DescriptorConfiguration, 0, tt.wLength))
			require.NoError(t, err)

			n := min(tt.length, int(tt.wLength))
			assert.Equal(t, testConfiguration(tt.length)[:n], tr.Data)
			assert.Equal(t, tt.wantPackets, tr.Packets)
			assert.Equal(t, ControlIdle, r.drv.State())
		})
	}
}

func TestUnknownDescriptorStallsIn(t *testing.T) {
	tests := []struct {
		name  string
		typ   uint8
		index uint8
	}{
		{"string", sim.DescriptorString, 0},
		{"device qualifier", DescriptorTypeDeviceQualifier, 0},
		{"missing configuration", sim.DescriptorConfiguration, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t, 150)
			before := r.drv.Stats()

			_, err := r.host.ControlIn(sim.GetDescriptor(tt.typ, tt.index, 255))
			require.ErrorIs(t, err, pkg.ErrStall)

			in, out := r.stalled()
			assert.True(t, in, "EP0 IN stalled")
			assert.False(t, out, "EP0 OUT stalled")
			after := r.drv.Stats()
			assert.Equal(t, before.Stalls+1, after.Stalls)
			assert.Equal(t, before.InPackets, after.InPackets, "data transmitted")

			// The next SETUP clears the stall and is answered.
			_, err = r.host.GetDescriptor(sim.DescriptorDevice, 0, 18)
			require.NoError(t, err)
		})
	}
}

func TestUnsupportedRequestStallsBoth(t *testing.T) {
	tests := []struct {
		name string
		req  sim.Request
		data []byte
	}{
		{"SET_FEATURE", sim.Request{Request: RequestSetFeature, Value: 1}, nil},
		{"CLEAR_FEATURE endpoint", sim.Request{RequestType: sim.RequestEndpoint, Request: RequestClearFeature, Index: 0x81}, nil},
		{"SYNCH_FRAME", sim.Request{RequestType: sim.RequestIn | sim.RequestEndpoint, Request: RequestSynchFrame, Index: 0x01, Length: 2}, nil},
		{"vendor IN", sim.Request{RequestType: 0xC0, Request: 0x01, Length: 4}, nil},
		{"vendor OUT", sim.Request{RequestType: 0x40, Request: 0x01}, nil},
		{"unknown code", sim.Request{RequestType: sim.RequestIn, Request: 0x42, Length: 2}, nil},
		{"OUT data stage", sim.Request{Request: RequestSetDescriptor, Value: 0x0100, Length: 4}, []byte{1, 2, 3, 4}},
		{"class without handler", sim.Request{RequestType: 0xA1, Request: 0x01, Value: 0x0100, Index: 0x0A00, Length: 4}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t, 150)
			before := r.drv.Stats()

			var err error
			if tt.req.IsIn() {
				_, err = r.host.ControlIn(tt.req)
			} else {
				err = r.host.ControlOut(tt.req, tt.data)
			}
			require.ErrorIs(t, err, pkg.ErrStall)

			in, out := r.stalled()
			assert.True(t, in, "EP0 IN stalled")
			assert.True(t, out, "EP0 OUT stalled")
			after := r.drv.Stats()
			assert.Equal(t, before.InPackets, after.InPackets, "data transmitted")
			assert.Zero(t, r.core.TxLevel(0))
			assert.Equal(t, ControlIdle, r.drv.State())

			_, err = r.host.GetDescriptor(sim.DescriptorDevice, 0, 18)
			require.NoError(t, err, "device unresponsive after stall")
		})
	}
}

func TestSetAddress(t *testing.T) {
	r := newTestRig(t, 150)
	assert.Equal(t, StateDefault, r.drv.DeviceState())

	require.NoError(t, r.host.SetAddress(5))
	assert.Equal(t, uint8(5), r.drv.Address())
	assert.Equal(t, uint8(5), r.core.DeviceAddress())
	assert.Equal(t, StateAddress, r.drv.DeviceState())

	for range 3 {
		_, err := r.host.GetDescriptor(sim.DescriptorConfiguration, 0, 255)
		require.NoError(t, err)
		assert.Equal(t, uint8(5), r.drv.Address())
	}

	require.NoError(t, r.host.Reset())
	assert.Zero(t, r.drv.Address())
	assert.Zero(t, r.core.DeviceAddress())
	assert.Equal(t, StateDefault, r.drv.DeviceState())
}

func TestSetAddressMasksToSevenBits(t *testing.T) {
	r := newTestRig(t, 150)
	require.NoError(t, r.host.ControlOut(sim.SetAddress(0x85), nil))
	assert.Equal(t, uint8(0x05), r.drv.Address())
}

func TestSetAddressZero(t *testing.T) {
	r := newTestRig(t, 150)
	require.NoError(t, r.host.SetAddress(3))
	require.NoError(t, r.host.SetAddress(0))
	assert.Zero(t, r.drv.Address())
	assert.Equal(t, StateDefault, r.drv.DeviceState())
}

func TestSetConfiguration(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)
	assert.Equal(t, uint8(1), r.drv.Configuration())
	assert.Equal(t, StateConfigured, r.drv.DeviceState())
	assert.False(t, r.drv.StreamingEnabled(), "SET_CONFIGURATION arms no endpoint")

	tr, err := r.host.ControlIn(sim.GetConfiguration())
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, tr.Data)

	require.ErrorIs(t, r.host.SetConfiguration(2), pkg.ErrStall)
	assert.Equal(t, uint8(1), r.drv.Configuration())

	require.NoError(t, r.host.SetConfiguration(0))
	assert.Zero(t, r.drv.Configuration())
	assert.Equal(t, StateAddress, r.drv.DeviceState())
}

func TestSetInterfaceStreaming(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)

	require.NoError(t, r.host.SetInterface(1, 1))
	assert.True(t, r.drv.StreamingEnabled())
	assert.Equal(t, uint8(1), r.drv.AlternateSetting(1))

	for _, reg := range []struct {
		name string
		ctl  uint32
	}{
		{"IN", r.regs.Load(otg.DIEPCTL(1))},
		{"OUT", r.regs.Load(otg.DOEPCTL(1))},
	} {
		assert.NotZero(t, reg.ctl&otg.EPCTLUSBAEP, "%s active", reg.name)
		assert.Equal(t, uint32(DefaultStreamingMaxPacketSize), reg.ctl&otg.EPCTLMPSIZMask, "%s mps", reg.name)
		assert.Zero(t, reg.ctl&otg.EPCTLNAKSTS, "%s NAKing", reg.name)
	}
	e, ok := r.drv.Endpoint(0x01)
	require.True(t, ok)
	assert.True(t, e.Enabled)
	assert.Equal(t, uint16(192), e.MaxPacketSize)

	tr, err := r.host.ControlIn(sim.GetInterface(1))
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, tr.Data)

	// OUT reception is armed and re-armed after every packet.
	before := r.drv.Stats()
	for range 3 {
		hs, err := r.host.Out(1, pattern(192))
		require.NoError(t, err)
		require.Equal(t, pkg.HandshakeACK, hs)
	}
	after := r.drv.Stats()
	assert.Equal(t, before.OutPackets+3, after.OutPackets)
	assert.Equal(t, before.OutBytes+3*192, after.OutBytes)
	assert.Zero(t, r.core.RxLevel())

	require.NoError(t, r.host.SetInterface(1, 0))
	assert.False(t, r.drv.StreamingEnabled())
	assert.Zero(t, r.regs.Load(otg.DIEPCTL(1))&(otg.EPCTLUSBAEP|otg.EPCTLEPENA))
	assert.Zero(t, r.regs.Load(otg.DOEPCTL(1))&(otg.EPCTLUSBAEP|otg.EPCTLEPENA))

	hs, err := r.host.Out(1, pattern(192))
	require.NoError(t, err)
	assert.Equal(t, pkg.HandshakeTimeout, hs)
}

func TestSetInterfaceConfiguredPacketSize(t *testing.T) {
	r := newTestRig(t, 150, WithStreaming(1, 2, 288))
	r.configure(t)
	require.NoError(t, r.host.SetInterface(1, 1))

	assert.Equal(t, uint32(288), r.regs.Load(otg.DOEPCTL(2))&otg.EPCTLMPSIZMask)
	assert.Equal(t, otg.TxFIFOSize(RxFIFOWords+TxFIFO0Words, 72), r.regs.Load(otg.DIEPTXF(2)))
	e, ok := r.drv.Endpoint(0x82)
	require.True(t, ok)
	assert.True(t, e.Enabled)
	assert.Equal(t, uint16(288), e.MaxPacketSize)
}

func TestSetInterfaceInvalid(t *testing.T) {
	tests := []struct {
		name       string
		iface, alt uint8
	}{
		{"streaming alternate 2", 1, 2},
		{"control interface alternate 1", 0, 1},
		{"no such interface", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRig(t, 150)
			r.configure(t)
			require.ErrorIs(t, r.host.SetInterface(tt.iface, tt.alt), pkg.ErrStall)
			assert.False(t, r.drv.StreamingEnabled())
		})
	}

	r := newTestRig(t, 150)
	r.configure(t)
	require.NoError(t, r.host.SetInterface(0, 0))

	// Alternate settings are one byte; a set high byte is not truncated.
	wide := sim.SetInterface(1, 1)
	wide.Value = 0x0101
	require.ErrorIs(t, r.host.ControlOut(wide, nil), pkg.ErrStall)
	assert.False(t, r.drv.StreamingEnabled())
	assert.Equal(t, uint64(1), r.drv.Stats().Stalls)
}

func TestSetConfigurationDisablesStreaming(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)
	require.NoError(t, r.host.SetInterface(1, 1))

	require.NoError(t, r.host.SetConfiguration(1))
	assert.False(t, r.drv.StreamingEnabled())
	assert.Zero(t, r.drv.AlternateSetting(1))
}

func TestGetStatus(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)

	tests := []struct {
		name    string
		req     sim.Request
		want    []byte
		wantErr error
	}{
		{"device", sim.GetStatus(0, 0), []byte{0, 0}, nil},
		{"interface", sim.GetStatus(sim.RequestInterface, 1), []byte{0, 0}, nil},
		{"no such interface", sim.GetStatus(sim.RequestInterface, 4), nil, pkg.ErrStall},
		{"endpoint 0", sim.GetStatus(sim.RequestEndpoint, 0x80), []byte{0, 0}, nil},
		{"inactive endpoint", sim.GetStatus(sim.RequestEndpoint, 0x81), nil, pkg.ErrStall},
		{"invalid endpoint", sim.GetStatus(sim.RequestEndpoint, 0x87), nil, pkg.ErrStall},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr, err := r.host.ControlIn(tt.req)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, tr.Data)
		})
	}

	require.NoError(t, r.host.SetInterface(1, 1))
	tr, err := r.host.ControlIn(sim.GetStatus(sim.RequestEndpoint, 0x81))
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 0}, tr.Data)
}

func TestClassRequests(t *testing.T) {
	var seen []SetupPacket
	handler := ClassHandlerFunc(func(setup *SetupPacket) ([]byte, bool, error) {
		seen = append(seen, *setup)
		switch {
		case setup.Request == 0x01 && setup.EntityID() == 0x0A:
			return []byte{0x80, 0xBB, 0x00, 0x00}, true, nil
		case setup.Request == 0x02:
			return nil, false, pkg.ErrInvalidParameter
		default:
			return nil, false, nil
		}
	})
	r := newTestRig(t, 150, WithClassHandler(handler))

	cur := sim.Request{RequestType: 0xA1, Request: 0x01, Value: 0x0100, Index: 0x0A00, Length: 4}
	tr, err := r.host.ControlIn(cur)
	require.NoError(t, err)
	assert.Equal(t, []byte{0x80, 0xBB, 0x00, 0x00}, tr.Data)
	require.Len(t, seen, 1)
	assert.Equal(t, uint8(0x01), seen[0].ControlSelector())

	_, err = r.host.ControlIn(sim.Request{RequestType: 0xA1, Request: 0x02, Index: 0x0A00, Length: 14})
	require.ErrorIs(t, err, pkg.ErrStall, "handler error")

	_, err = r.host.ControlIn(sim.Request{RequestType: 0xA1, Request: 0x01, Index: 0x0B00, Length: 4})
	require.ErrorIs(t, err, pkg.ErrStall, "unrecognized")
	in, out := r.stalled()
	assert.True(t, in)
	assert.True(t, out)
}
