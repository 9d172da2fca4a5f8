package main

import (
	"context"
	stderrors "errors"
	"io"
	"log/slog"
	"math"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/oklog/run"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"

	"github.com/ardnew/uac2speaker/device/class/uac2"
	"github.com/ardnew/uac2speaker/device/hal/sim"
	"github.com/ardnew/uac2speaker/device/metrics"
	"github.com/ardnew/uac2speaker/led"
	"github.com/ardnew/uac2speaker/pkg"
	"github.com/ardnew/uac2speaker/pkg/prof"
)

// RunCmd runs the driver event loop, the scripted host, the metrics
// server and the status LED until interrupted or the host has streamed the
// requested number of frames.
type RunCmd struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Host   HostFlags   `embed:"" prefix:"host."`

	Frames       int     `help:"Audio packets to stream before exiting (0 streams until interrupted)." default:"0" env:"UAC2SIM_FRAMES"`
	Tone         float64 `help:"Frequency in Hz of the test tone streamed to the speaker." default:"440" env:"UAC2SIM_TONE"`
	Listen       string  `help:"Metrics listen address (empty disables the server)." default:"localhost:9548" env:"UAC2SIM_LISTEN"`
	LEDFrequency string  `name:"led-frequency" help:"Status LED toggle rate." default:"1.25Hz" env:"UAC2SIM_LED_FREQUENCY"`
	CPUProfile   string  `name:"cpu-profile" help:"Write a CPU profile to this file (requires the profile build tag)." type:"path"`
}

// Run is called by kong when the run command is executed.
func (c *RunCmd) Run(logger *slog.Logger, out io.Writer) error {
	var freq physic.Frequency
	if err := freq.Set(c.LEDFrequency); err != nil {
		return errors.Wrapf(err, "parse LED frequency %q", c.LEDFrequency)
	}

	if c.CPUProfile != "" {
		if err := prof.StartCPU(c.CPUProfile); err != nil {
			return errors.Wrap(err, "start CPU profile")
		}
		defer prof.StopCPU()
	}

	core := sim.New()
	irq := core.Interrupts()
	drv := c.Device.newDriver(core)
	if err := drv.Init(); err != nil {
		return errors.Wrap(err, "init driver")
	}

	r := prometheus.NewRegistry()
	r.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		metrics.NewCollector(drv),
	)

	var g run.Group
	{
		// Service the core's interrupt line.
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return drv.Run(ctx, irq)
		}, func(error) {
			cancel()
		})
	}
	{
		// Enumerate, then stream audio.
		ctx, cancel := context.WithCancel(context.Background())
		host := c.Host.newHost(core)
		g.Add(func() error {
			if _, err := enumerate(host, c.Device, c.Host, out, logger); err != nil {
				return errors.Wrap(err, "enumerate")
			}
			return c.stream(ctx, host, logger)
		}, func(error) {
			cancel()
		})
	}
	if c.Listen != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
		mux.Handle("/metrics", promhttp.HandlerFor(r, promhttp.HandlerOpts{}))
		prof.Register(mux)

		l, err := net.Listen("tcp", c.Listen)
		if err != nil {
			return errors.Wrapf(err, "listen on %s", c.Listen)
		}
		logger.Info("serving metrics", "addr", l.Addr().String())
		g.Add(func() error {
			if err := http.Serve(l, mux); err != nil && !stderrors.Is(err, net.ErrClosed) {
				return errors.Wrap(err, "metrics server exited unexpectedly")
			}
			return nil
		}, func(error) {
			_ = l.Close()
		})
	}
	{
		// The simulated board's status LED.
		pin := &gpiotest.Pin{N: "PD15", Num: 63}
		b, err := led.New(pin, led.Config{Frequency: freq})
		if err != nil {
			return errors.Wrap(err, "status LED")
		}
		ctx, cancel := context.WithCancel(context.Background())
		g.Add(func() error {
			return b.Run(ctx)
		}, func(error) {
			cancel()
		})
	}
	g.Add(run.SignalHandler(context.Background(), os.Interrupt, syscall.SIGTERM))

	err := g.Run()
	var sig run.SignalError
	if stderrors.As(err, &sig) {
		logger.Info("caught signal, shutting down", "signal", sig.Signal)
		err = nil
	}

	st := drv.Stats()
	logger.Info("driver stopped",
		"resets", st.Resets,
		"setups", st.Setups,
		"stalls", st.Stalls,
		"out_packets", st.OutPackets,
		"out_bytes", st.OutBytes)
	return err
}

// stream sends one packet of a test tone per millisecond until ctx is done
// or c.Frames packets have been acknowledged.
func (c *RunCmd) stream(ctx context.Context, host *sim.Host, logger *slog.Logger) error {
	packet := make([]byte, c.Device.MaxPacketSize)
	tone := newToneGenerator(c.Tone, uac2.SampleRate)

	t := time.NewTicker(time.Millisecond)
	defer t.Stop()
	var sent, dropped int
	for c.Frames == 0 || sent < c.Frames {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
		}
		tone.fill(packet)
		hs, err := host.Out(c.Device.Endpoint, packet)
		if err != nil {
			return errors.Wrapf(err, "stream packet %d", sent)
		}
		if hs != pkg.HandshakeACK {
			// Isochronous data is not retried.
			dropped++
			pkg.LogDebug(pkg.ComponentSim, "packet dropped", "handshake", hs)
			continue
		}
		sent++
		if sent%1000 == 0 {
			logger.Debug("streaming", "packets", sent, "dropped", dropped)
		}
	}
	logger.Info("stream complete", "packets", sent, "dropped", dropped)
	return nil
}

// toneGenerator produces interleaved 16-bit little-endian stereo PCM.
type toneGenerator struct {
	phase float64
	step  float64
}

func newToneGenerator(freq float64, sampleRate int) *toneGenerator {
	return &toneGenerator{step: 2 * math.Pi * freq / float64(sampleRate)}
}

// fill writes whole frames into buf.
func (g *toneGenerator) fill(buf []byte) {
	for i := 0; i+uac2.FrameSize <= len(buf); i += uac2.FrameSize {
		v := int16(math.Sin(g.phase) * math.MaxInt16 / 4)
		for ch := range uac2.Channels {
			off := i + ch*uac2.SubslotSize
			buf[off] = byte(v)
			buf[off+1] = byte(uint16(v) >> 8)
		}
		g.phase += g.step
		if g.phase >= 2*math.Pi {
			g.phase -= 2 * math.Pi
		}
	}
}
