package metrics

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uac2speaker/device"
	"github.com/ardnew/uac2speaker/device/class/uac2"
	"github.com/ardnew/uac2speaker/device/hal/sim"
)

type fakeSource struct {
	stats     device.StatsSnapshot
	streaming bool
	address   uint8
	config    uint8
}

func (f *fakeSource) Stats() device.StatsSnapshot { return f.stats }
func (f *fakeSource) StreamingEnabled() bool      { return f.streaming }
func (f *fakeSource) Address() uint8              { return f.address }
func (f *fakeSource) Configuration() uint8        { return f.config }

func TestCollector(t *testing.T) {
	src := &fakeSource{
		stats: device.StatsSnapshot{
			Interrupts:      40,
			Resets:          2,
			Setups:          9,
			Stalls:          1,
			InPackets:       12,
			DescriptorBytes: 177,
			OutPackets:      3,
			OutBytes:        576,
		},
		streaming: true,
		address:   7,
		config:    1,
	}
	c := NewCollector(src)

	assert.Equal(t, 13, testutil.CollectAndCount(c))

	expected := `
# HELP uac2_device_bus_resets_total USB bus resets handled.
# TYPE uac2_device_bus_resets_total counter
uac2_device_bus_resets_total 2
# HELP uac2_device_descriptor_bytes_total Descriptor bytes served to the host.
# TYPE uac2_device_descriptor_bytes_total counter
uac2_device_descriptor_bytes_total 177
# HELP uac2_device_streaming_enabled Whether the audio streaming endpoint is enabled.
# TYPE uac2_device_streaming_enabled gauge
uac2_device_streaming_enabled 1
# HELP uac2_device_address Current USB device address.
# TYPE uac2_device_address gauge
uac2_device_address 7
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"uac2_device_bus_resets_total",
		"uac2_device_descriptor_bytes_total",
		"uac2_device_streaming_enabled",
		"uac2_device_address",
	))

	src.streaming = false
	src.stats.Resets = 3
	expected = `
# HELP uac2_device_bus_resets_total USB bus resets handled.
# TYPE uac2_device_bus_resets_total counter
uac2_device_bus_resets_total 3
# HELP uac2_device_streaming_enabled Whether the audio streaming endpoint is enabled.
# TYPE uac2_device_streaming_enabled gauge
uac2_device_streaming_enabled 0
`
	require.NoError(t, testutil.CollectAndCompare(c, strings.NewReader(expected),
		"uac2_device_bus_resets_total",
		"uac2_device_streaming_enabled",
	))
}

func TestCollectorLint(t *testing.T) {
	problems, err := testutil.CollectAndLint(NewCollector(&fakeSource{}))
	require.NoError(t, err)
	assert.Empty(t, problems)
}

func TestCollectorOverDriver(t *testing.T) {
	core := sim.New()
	drv := device.NewDriver(core, uac2.NewStore(), device.WithClassHandler(uac2.NewClockHandler(uac2.SampleRate)))
	core.Attach(drv.HandleInterrupt)
	require.NoError(t, drv.Init())

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(NewCollector(drv)))

	host := sim.NewHost(core, sim.WithRetryDelay(0))
	require.NoError(t, host.Reset())
	require.NoError(t, host.SetAddress(5))
	require.NoError(t, host.SetConfiguration(1))

	expected := `
# HELP uac2_device_address Current USB device address.
# TYPE uac2_device_address gauge
uac2_device_address 5
# HELP uac2_device_bus_resets_total USB bus resets handled.
# TYPE uac2_device_bus_resets_total counter
uac2_device_bus_resets_total 1
# HELP uac2_device_configuration Current configuration value, 0 when unconfigured.
# TYPE uac2_device_configuration gauge
uac2_device_configuration 1
# HELP uac2_device_setup_packets_total SETUP packets decoded.
# TYPE uac2_device_setup_packets_total counter
uac2_device_setup_packets_total 2
`
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"uac2_device_address",
		"uac2_device_bus_resets_total",
		"uac2_device_configuration",
		"uac2_device_setup_packets_total",
	))
}
