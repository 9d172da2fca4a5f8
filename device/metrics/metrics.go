// Package metrics exports driver counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ardnew/uac2speaker/device"
)

// Source is the read-only driver view the collector samples. [device.Driver]
// implements it.
type Source interface {
	Stats() device.StatsSnapshot
	StreamingEnabled() bool
	Address() uint8
	Configuration() uint8
}

// Collector is a [prometheus.Collector] that reads a [Source] on every
// scrape. The driver's counters stay atomics in the interrupt path; the
// collector only converts them.
type Collector struct {
	src Source

	interrupts      *prometheus.Desc
	resets          *prometheus.Desc
	setups          *prometheus.Desc
	stalls          *prometheus.Desc
	inPackets       *prometheus.Desc
	descriptorBytes *prometheus.Desc
	outPackets      *prometheus.Desc
	outBytes        *prometheus.Desc
	ignored         *prometheus.Desc
	cancelled       *prometheus.Desc
	streaming       *prometheus.Desc
	address         *prometheus.Desc
	configuration   *prometheus.Desc
}

// Namespace prefixes every metric name.
const Namespace = "uac2"

// NewCollector returns a collector over src.
func NewCollector(src Source) *Collector {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(Namespace, "device", name), help, nil, nil)
	}
	return &Collector{
		src:             src,
		interrupts:      desc("interrupts_total", "Interrupt handler invocations."),
		resets:          desc("bus_resets_total", "USB bus resets handled."),
		setups:          desc("setup_packets_total", "SETUP packets decoded."),
		stalls:          desc("stalls_total", "Control requests answered with STALL."),
		inPackets:       desc("ep0_in_packets_total", "Packets queued on endpoint 0 IN, including zero-length packets."),
		descriptorBytes: desc("descriptor_bytes_total", "Descriptor bytes served to the host."),
		outPackets:      desc("out_packets_total", "OUT data packets drained from the receive FIFO."),
		outBytes:        desc("out_bytes_total", "OUT data bytes drained from the receive FIFO."),
		ignored:         desc("ignored_packets_total", "Receive FIFO entries with an unhandled packet status."),
		cancelled:       desc("cancelled_transfers_total", "Control transfers abandoned for a new SETUP."),
		streaming:       desc("streaming_enabled", "Whether the audio streaming endpoint is enabled."),
		address:         desc("address", "Current USB device address."),
		configuration:   desc("configuration", "Current configuration value, 0 when unconfigured."),
	}
}

// Describe implements [prometheus.Collector].
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.interrupts
	ch <- c.resets
	ch <- c.setups
	ch <- c.stalls
	ch <- c.inPackets
	ch <- c.descriptorBytes
	ch <- c.outPackets
	ch <- c.outBytes
	ch <- c.ignored
	ch <- c.cancelled
	ch <- c.streaming
	ch <- c.address
	ch <- c.configuration
}

// Collect implements [prometheus.Collector].
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}

	counter(c.interrupts, s.Interrupts)
	counter(c.resets, s.Resets)
	counter(c.setups, s.Setups)
	counter(c.stalls, s.Stalls)
	counter(c.inPackets, s.InPackets)
	counter(c.descriptorBytes, s.DescriptorBytes)
	counter(c.outPackets, s.OutPackets)
	counter(c.outBytes, s.OutBytes)
	counter(c.ignored, s.IgnoredPackets)
	counter(c.cancelled, s.Cancelled)

	var streaming float64
	if c.src.StreamingEnabled() {
		streaming = 1
	}
	gauge(c.streaming, streaming)
	gauge(c.address, float64(c.src.Address()))
	gauge(c.configuration, float64(c.src.Configuration()))
}

var _ prometheus.Collector = (*Collector)(nil)
