package device

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/device/hal/sim"
	"github.com/ardnew/uac2speaker/pkg"
)

func TestDriverInit(t *testing.T) {
	core := sim.New()
	regs := otg.New(core)
	drv := NewDriver(core, &StaticStore{Device: testDeviceDescriptor()})

	assert.Equal(t, StateAttached, drv.DeviceState())
	assert.False(t, core.Connected())
	require.NoError(t, drv.Init())

	assert.True(t, core.Connected())
	assert.Equal(t, StatePowered, drv.DeviceState())
	assert.True(t, regs.HasBits(otg.GUSBCFG, otg.GUSBCFGFDMOD))
	assert.True(t, regs.HasBits(otg.GCCFG, otg.GCCFGPWRDWN))
	assert.True(t, regs.HasBits(otg.GAHBCFG, otg.GAHBCFGGINT))
	assert.Equal(t, uint32(RxFIFOWords), regs.Load(otg.GRXFSIZ))
	assert.Equal(t, otg.TxFIFOSize(RxFIFOWords, TxFIFO0Words), regs.Load(otg.DIEPTXF0))
	assert.Equal(t, otg.TxFIFOSize(RxFIFOWords+TxFIFO0Words, 48), regs.Load(otg.DIEPTXF(1)))
	assert.Equal(t, uint32(otg.DCFGDSPDFull), regs.Load(otg.DCFG)&otg.DCFGDSPDMask)
	assert.Equal(t, uint32(otg.GINTUSBRST|otg.GINTENUMDNE|otg.GINTRXFLVL|otg.GINTIEPINT), regs.Load(otg.GINTMSK))
	assert.Zero(t, regs.InterruptStatus(), "interrupt pending before bus reset")
}

func TestDriverInitInvalidOptions(t *testing.T) {
	tests := []struct {
		name string
		opt  Option
		want error
	}{
		{"endpoint 0", WithStreaming(1, 0, 192), pkg.ErrInvalidEndpoint},
		{"endpoint 4", WithStreaming(1, 4, 192), pkg.ErrInvalidEndpoint},
		{"zero packet size", WithStreaming(1, 1, 0), pkg.ErrInvalidParameter},
		{"oversized packet", WithStreaming(1, 1, 1024), pkg.ErrInvalidParameter},
		{"interface out of range", WithStreaming(MaxInterfaces, 1, 192), pkg.ErrInvalidParameter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core := sim.New()
			drv := NewDriver(core, &StaticStore{}, tt.opt)
			require.ErrorIs(t, drv.Init(), tt.want)
			assert.False(t, core.Connected())
		})
	}
}

func TestDriverOptions(t *testing.T) {
	drv := NewDriver(sim.New(), &StaticStore{})
	assert.Equal(t, DefaultOptions(), drv.Options())

	h := ClassHandlerFunc(func(*SetupPacket) ([]byte, bool, error) { return nil, false, nil })
	drv = NewDriver(sim.New(), &StaticStore{}, WithStreaming(2, 3, 96), WithClassHandler(h))
	o := drv.Options()
	assert.Equal(t, uint8(2), o.StreamingInterface)
	assert.Equal(t, uint8(3), o.StreamingEndpoint)
	assert.Equal(t, uint16(96), o.StreamingMaxPacketSize)
	assert.NotNil(t, o.ClassHandler)
}

func TestBusResetRestoresEP0(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)
	require.NoError(t, r.host.SetInterface(1, 1))
	require.True(t, r.drv.StreamingEnabled())

	// Leave a data stage half sent and EP0 stalled.
	require.NoError(t, r.host.Setup(sim.GetDescriptor(sim.DescriptorConfiguration, 0, 255)))
	require.NotZero(t, r.core.TxLevel(0))
	require.Equal(t, ControlTxInProgress, r.drv.State())
	_ = r.drv.endpoints.Stall(0x80)

	require.NoError(t, r.host.Reset())

	assert.Equal(t, StateDefault, r.drv.DeviceState())
	assert.Equal(t, ControlIdle, r.drv.State())
	assert.Zero(t, r.drv.Address())
	assert.Zero(t, r.drv.Configuration())
	assert.Zero(t, r.drv.AlternateSetting(1))
	assert.False(t, r.drv.StreamingEnabled())
	assert.Zero(t, r.core.TxLevel(0))
	assert.Zero(t, r.regs.Load(otg.DIEPCTL(1))&otg.EPCTLUSBAEP)

	in, out := r.stalled()
	assert.False(t, in)
	assert.False(t, out)
	for _, addr := range []uint8{0x00, 0x80} {
		e, _ := r.drv.Endpoint(addr)
		assert.True(t, e.Enabled)
		assert.Equal(t, uint16(EP0MaxPacketSize), e.MaxPacketSize)
	}
	assert.Equal(t, uint32(otg.EP0MPS64), r.regs.Load(otg.DIEPCTL(0))&otg.EPCTLEP0MPSMask)
	assert.Equal(t, uint64(2), r.drv.Stats().Resets)

	// Enumeration starts over at address 0.
	tr, err := r.host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, 64))
	require.NoError(t, err)
	assert.Len(t, tr.Data, 18)
}

func TestNewSetupCancelsTransfer(t *testing.T) {
	r := newTestRig(t, 150)

	require.NoError(t, r.host.Setup(sim.GetDescriptor(sim.DescriptorConfiguration, 0, 255)))
	data, hs, err := r.host.In(0)
	require.NoError(t, err)
	require.Equal(t, pkg.HandshakeACK, hs)
	require.Len(t, data, 64)

	// The host abandons the transfer and starts another.
	tr, err := r.host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, 64))
	require.NoError(t, err)
	assert.Equal(t, testDeviceDescriptor(), tr.Data)
	assert.Equal(t, uint64(1), r.drv.Stats().Cancelled)
	assert.Equal(t, ControlIdle, r.drv.State())
}

func TestInterruptFlagsAcknowledged(t *testing.T) {
	r := newTestRig(t, 150)
	r.configure(t)
	require.NoError(t, r.host.SetInterface(1, 1))
	_, err := r.host.GetDescriptor(sim.DescriptorString, 0, 255)
	require.ErrorIs(t, err, pkg.ErrStall)
	_, err = r.host.GetDescriptor(sim.DescriptorConfiguration, 0, 128)
	require.NoError(t, err)

	assert.Zero(t, r.core.Storms())
	assert.False(t, r.core.Pending())
	assert.Zero(t, r.regs.InterruptStatus())
	assert.Zero(t, r.regs.Load(otg.DIEPINT(0)))
	assert.Zero(t, r.core.RxLevel())

	// Every handler run was requested by the core.
	s := r.drv.Stats()
	assert.Equal(t, uint64(r.core.HandlerRuns()), s.Interrupts)
}

func TestEnumerationStats(t *testing.T) {
	r := newTestRig(t, 150)

	_, err := r.host.GetDescriptor(sim.DescriptorDevice, 0, 64)
	require.NoError(t, err)
	require.NoError(t, r.host.SetAddress(12))
	_, err = r.host.GetDescriptor(sim.DescriptorConfiguration, 0, 9)
	require.NoError(t, err)
	_, err = r.host.GetDescriptor(sim.DescriptorConfiguration, 0, 150)
	require.NoError(t, err)
	require.NoError(t, r.host.SetConfiguration(1))
	require.NoError(t, r.host.SetInterface(1, 1))

	s := r.drv.Stats()
	assert.Equal(t, uint64(1), s.Resets)
	assert.Equal(t, uint64(6), s.Setups)
	assert.Zero(t, s.Stalls)
	assert.Equal(t, uint64(18+9+150), s.DescriptorBytes)
	// 5 data packets and 3 status packets.
	assert.Equal(t, uint64(8), s.InPackets)
	assert.Zero(t, s.IgnoredPackets)
	assert.Zero(t, s.Cancelled)
	assert.Zero(t, s.OutPackets, "status stages counted as OUT data")
	assert.Zero(t, s.OutBytes)
}

func TestOutStatsExcludeStatusStages(t *testing.T) {
	r := newTestRig(t, 64)

	for range 3 {
		_, err := r.host.GetDescriptor(sim.DescriptorDevice, 0, 18)
		require.NoError(t, err)
	}
	s := r.drv.Stats()
	assert.Equal(t, uint64(3), s.Setups)
	assert.Zero(t, s.OutPackets)
	assert.Zero(t, s.OutBytes)
}

func TestDriverRun(t *testing.T) {
	core := sim.New()
	store := &StaticStore{
		Device:         testDeviceDescriptor(),
		Configurations: [][]byte{testConfiguration(150)},
	}
	drv := NewDriver(core, store)
	irq := core.Interrupts()

	require.ErrorIs(t, drv.Run(context.Background(), irq), pkg.ErrNotRunning)
	require.NoError(t, drv.Init())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- drv.Run(ctx, irq) }()
	require.Eventually(t, drv.IsRunning, time.Second, time.Millisecond)
	require.ErrorIs(t, drv.Run(ctx, irq), pkg.ErrAlreadyRunning)

	host := sim.NewHost(core, sim.WithRetries(2000), sim.WithRetryDelay(50*time.Microsecond))
	require.NoError(t, host.Reset())
	dev, err := host.GetDescriptor(sim.DescriptorDevice, 0, 64)
	require.NoError(t, err)
	assert.Equal(t, testDeviceDescriptor(), dev)
	require.NoError(t, host.SetAddress(9))
	cfg, err := host.GetDescriptor(sim.DescriptorConfiguration, 0, 255)
	require.NoError(t, err)
	assert.Equal(t, testConfiguration(150), cfg)
	require.NoError(t, host.SetConfiguration(1))
	require.NoError(t, host.SetInterface(1, 1))

	assert.Equal(t, uint8(9), drv.Address())
	assert.True(t, drv.StreamingEnabled())
	assert.Zero(t, core.Storms())

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.False(t, drv.IsRunning())
}

func TestDriverRunDeadline(t *testing.T) {
	core := sim.New()
	drv := NewDriver(core, &StaticStore{})
	require.NoError(t, drv.Init())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, drv.Run(ctx, core.Interrupts()), context.DeadlineExceeded)
}

func TestHandleInterruptConcurrent(t *testing.T) {
	r := newTestRig(t, 150)

	// Introspection and spurious handler calls from other goroutines must
	// not disturb a running enumeration.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					r.drv.HandleInterrupt()
					_ = r.drv.State()
					_ = r.drv.Stats()
					_ = r.drv.Address()
				}
			}
		}()
	}

	for range 5 {
		_, err := r.host.GetDescriptor(sim.DescriptorConfiguration, 0, 255)
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()
	assert.Zero(t, r.core.Storms())
}
