package device

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/device/hal/sim"
)

// testDeviceDescriptor is an 18-byte device descriptor with the
// interface-association class triple.
func testDeviceDescriptor() []byte {
	return []byte{
		18, DescriptorTypeDevice,
		0x00, 0x02, // bcdUSB 2.00
		ClassMisc, 0x02, 0x01,
		EP0MaxPacketSize,
		0x83, 0x04, // idVendor
		0x30, 0x57, // idProduct
		0x00, 0x01, // bcdDevice
		0, 0, 0, // no strings
		1,
	}
}

// testConfiguration returns a well-formed configuration descriptor of n
// bytes (n >= 9) with two interfaces and bConfigurationValue 1. The body is
// a chain of class-specific descriptors filled with a counting pattern.
func testConfiguration(n int) []byte {
	b := make([]byte, n)
	b[0] = ConfigurationDescriptorSize
	b[1] = DescriptorTypeConfiguration
	binary.LittleEndian.PutUint16(b[2:4], uint16(n))
	b[4] = 2    // bNumInterfaces
	b[5] = 1    // bConfigurationValue
	b[7] = 0x80 // bus powered
	b[8] = 50   // 100 mA
	for off := ConfigurationDescriptorSize; off < n; {
		l := n - off
		if l > 255 {
			l = 128
		}
		b[off] = uint8(l)
		b[off+1] = DescriptorTypeCSInterface
		for i := 2; i < l; i++ {
			b[off+i] = uint8(off + i)
		}
		off += l
	}
	return b
}

// testRig is a driver running against a simulated core, serviced
// synchronously from the host's goroutine.
type testRig struct {
	core  *sim.Core
	regs  *otg.Core
	host  *sim.Host
	drv   *Driver
	store *StaticStore
}

// newTestRig returns an initialized driver whose host has driven one bus
// reset, leaving the device in the Default state.
func newTestRig(t *testing.T, configLen int, opts ...Option) *testRig {
	t.Helper()
	core := sim.New()
	store := &StaticStore{
		Device:         testDeviceDescriptor(),
		Configurations: [][]byte{testConfiguration(configLen)},
	}
	drv := NewDriver(core, store, opts...)
	core.Attach(drv.HandleInterrupt)
	require.NoError(t, drv.Init())

	host := sim.NewHost(core, sim.WithRetryDelay(0))
	require.NoError(t, host.Reset())
	return &testRig{core: core, regs: otg.New(core), host: host, drv: drv, store: store}
}

// configure assigns address 7 and selects configuration 1.
func (r *testRig) configure(t *testing.T) {
	t.Helper()
	require.NoError(t, r.host.SetAddress(7))
	require.NoError(t, r.host.SetConfiguration(1))
}

// stalled reports the STALL bits of endpoint 0 IN and OUT.
func (r *testRig) stalled() (in, out bool) {
	return r.regs.HasBits(otg.DIEPCTL(0), otg.EPCTLSTALL),
		r.regs.HasBits(otg.DOEPCTL(0), otg.EPCTLSTALL)
}
