package device

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardnew/uac2speaker/device/hal"
	"github.com/ardnew/uac2speaker/device/hal/otg"
	"github.com/ardnew/uac2speaker/pkg"
)

// FIFO layout in 32-bit words. The transmit FIFO of the streaming endpoint
// number follows endpoint 0's and holds one max-size isochronous packet.
const (
	RxFIFOWords  = 128
	TxFIFO0Words = 64
)

// softResetPolls bounds the wait for the core soft reset to complete.
const softResetPolls = 100000

// maxServicePasses bounds the handler passes Run makes for one interrupt
// request before waiting for the next.
const maxServicePasses = 64

// Options configures a [Driver].
type Options struct {
	// StreamingInterface is the audio-streaming interface whose alternate
	// setting 1 enables the streaming endpoints.
	StreamingInterface uint8

	// StreamingEndpoint is the endpoint number of the streaming pair.
	StreamingEndpoint uint8

	// StreamingMaxPacketSize is the isochronous max packet size in bytes.
	StreamingMaxPacketSize uint16

	// ClassHandler answers class requests. Nil stalls every class request.
	ClassHandler ClassHandler
}

// Option modifies [Options].
type Option func(*Options)

// WithStreaming sets the streaming interface, endpoint number and max
// packet size.
func WithStreaming(iface, ep uint8, maxPacketSize uint16) Option {
	return func(o *Options) {
		o.StreamingInterface = iface
		o.StreamingEndpoint = ep
		o.StreamingMaxPacketSize = maxPacketSize
	}
}

// WithClassHandler installs the class request handler.
func WithClassHandler(h ClassHandler) Option {
	return func(o *Options) {
		o.ClassHandler = h
	}
}

// DefaultOptions returns the options of the UAC2 speaker configuration.
func DefaultOptions() Options {
	return Options{
		StreamingInterface:     DefaultStreamingInterface,
		StreamingEndpoint:      DefaultStreamingEndpoint,
		StreamingMaxPacketSize: DefaultStreamingMaxPacketSize,
	}
}

// Driver is the device-mode driver of one OTG_FS core.
//
// All USB protocol handling happens in [Driver.HandleInterrupt], which runs
// to completion under one lock. Calling it from an interrupt vector, from
// [Driver.Run], or from several goroutines at once behaves as a single
// interrupt priority. Introspection methods take the same lock and may be
// called from any goroutine.
type Driver struct {
	mu sync.Mutex

	core      *otg.Core
	store     DescriptorStore
	opts      Options
	endpoints *EndpointState
	control   *ControlEngine
	handler   *StandardRequestHandler
	stats     Stats

	state         State
	configuration uint8
	alternates    [MaxInterfaces]uint8
	streaming     bool

	initialized atomic.Bool
	running     atomic.Bool

	// Reusable SETUP buffers for zero-allocation reads.
	setupBuf [SetupPacketSize]byte
	setup    SetupPacket
}

// NewDriver returns a driver for the core behind bus that serves
// descriptors from store. The core is not touched until [Driver.Init].
func NewDriver(bus hal.Bus, store DescriptorStore, opts ...Option) *Driver {
	o := DefaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	core := otg.New(bus)
	d := &Driver{
		core:      core,
		store:     store,
		opts:      o,
		endpoints: NewEndpointState(core),
	}
	d.control = NewControlEngine(core, d.endpoints, &d.stats)
	d.handler = NewStandardRequestHandler(d)
	return d
}

// Init brings the core up in device mode and connects to the bus: core soft
// reset, forced device mode, FIFO sizing, full speed, interrupt masks and
// global interrupt enable, then soft connect. The host's bus reset follows.
func (d *Driver) Init() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.opts.StreamingEndpoint == 0 || int(d.opts.StreamingEndpoint) >= otg.NumEndpoints {
		return fmt.Errorf("streaming endpoint %d: %w", d.opts.StreamingEndpoint, pkg.ErrInvalidEndpoint)
	}
	if d.opts.StreamingMaxPacketSize == 0 || d.opts.StreamingMaxPacketSize > MaxIsoPacketSize {
		return fmt.Errorf("streaming max packet size %d: %w", d.opts.StreamingMaxPacketSize, pkg.ErrInvalidParameter)
	}
	if int(d.opts.StreamingInterface) >= MaxInterfaces {
		return fmt.Errorf("streaming interface %d: %w", d.opts.StreamingInterface, pkg.ErrInvalidParameter)
	}

	c := d.core
	c.Store(otg.GAHBCFG, 0)
	if err := c.SoftReset(softResetPolls); err != nil {
		return err
	}
	c.SetBits(otg.GCCFG, otg.GCCFGPWRDWN|otg.GCCFGVBUSBSEN)
	c.SetBits(otg.GUSBCFG, otg.GUSBCFGFDMOD)

	// FIFOs are laid out back to back: RX, TX0, then the streaming TX FIFO.
	ep := d.opts.StreamingEndpoint
	c.Store(otg.GRXFSIZ, RxFIFOWords)
	c.Store(otg.DIEPTXF0, otg.TxFIFOSize(RxFIFOWords, TxFIFO0Words))
	c.Store(otg.DIEPTXF(ep), otg.TxFIFOSize(RxFIFOWords+TxFIFO0Words,
		uint16(otg.WordCount(int(d.opts.StreamingMaxPacketSize)))))
	c.FlushFIFOs()

	c.Modify(otg.DCFG, otg.DCFGDSPDMask|otg.DCFGDADMask, otg.DCFGDSPDFull)
	c.Store(otg.DIEPMSK, otg.DIEPINTXFRC)
	c.Store(otg.GINTSTS, otg.GINTW1CMask)
	c.Store(otg.GINTMSK, otg.GINTUSBRST|otg.GINTENUMDNE|otg.GINTRXFLVL|otg.GINTIEPINT)
	c.SetBits(otg.GAHBCFG, otg.GAHBCFGGINT)
	c.ClearBits(otg.DCTL, otg.DCTLSDIS)

	d.state = StatePowered
	d.initialized.Store(true)
	pkg.LogInfo(pkg.ComponentDriver, "core initialized",
		"streaming_interface", d.opts.StreamingInterface,
		"streaming_endpoint", ep,
		"streaming_mps", d.opts.StreamingMaxPacketSize)
	return nil
}

// HandleInterrupt services the core once. It reads the masked interrupt
// status a single time and handles, in order: bus reset, one receive FIFO
// entry, enumeration done and IN endpoint interrupts. Every flag it handles
// is acknowledged before it returns.
func (d *Driver) HandleInterrupt() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stats.Interrupts.Add(1)
	status := d.core.InterruptStatus()
	if pkg.LogEnabled(pkg.LevelTrace) {
		pkg.LogTrace(pkg.ComponentDriver, "interrupt", "gintsts", fmt.Sprintf("%#08x", status))
	}

	if status&otg.GINTUSBRST != 0 {
		d.handleReset()
	}
	if status&otg.GINTRXFLVL != 0 {
		d.handleReceive()
	}
	if status&otg.GINTENUMDNE != 0 {
		d.handleEnumerationDone()
	}
	if status&otg.GINTIEPINT != 0 {
		d.handleInEndpoints()
	}
}

// Run services interrupt requests from irq until ctx is done. Each request
// is serviced until the core stops asserting an interrupt, so a request
// that coalesces several events is drained completely.
func (d *Driver) Run(ctx context.Context, irq <-chan struct{}) error {
	if !d.initialized.Load() {
		return pkg.ErrNotRunning
	}
	if !d.running.CompareAndSwap(false, true) {
		return pkg.ErrAlreadyRunning
	}
	defer d.running.Store(false)

	pkg.LogDebug(pkg.ComponentDriver, "event loop started")
	for {
		select {
		case <-ctx.Done():
			pkg.LogDebug(pkg.ComponentDriver, "event loop stopped")
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-irq:
			for range maxServicePasses {
				if !d.pending() {
					break
				}
				d.HandleInterrupt()
			}
		}
	}
}

// IsRunning reports whether [Driver.Run] is active.
func (d *Driver) IsRunning() bool {
	return d.running.Load()
}

// pending reports whether the core asserts its interrupt line.
func (d *Driver) pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.core.HasBits(otg.GAHBCFG, otg.GAHBCFGGINT) {
		return false
	}
	return d.core.InterruptStatus() != 0
}

// handleReset returns the device to the Default state at address 0 with
// only endpoint 0 active.
func (d *Driver) handleReset() {
	d.stats.Resets.Add(1)
	d.core.SetAddress(0)
	if d.streaming {
		_ = d.endpoints.DisableStreaming(d.opts.StreamingEndpoint)
		d.streaming = false
	}
	d.control.Reset()
	d.endpoints.ResetEP0()
	d.state = StateDefault
	d.configuration = 0
	d.alternates = [MaxInterfaces]uint8{}
	d.core.AckInterrupt(otg.GINTUSBRST)
	pkg.LogDebug(pkg.ComponentDriver, "bus reset", "count", d.stats.Resets.Load())
}

// handleEnumerationDone acknowledges the end of speed enumeration.
func (d *Driver) handleEnumerationDone() {
	speed := d.core.EnumeratedSpeed()
	d.core.AckInterrupt(otg.GINTENUMDNE)
	pkg.LogDebug(pkg.ComponentDriver, "enumeration done", "speed", speed.String())
}

// handleReceive pops one receive FIFO entry and consumes its data words.
func (d *Driver) handleReceive() {
	rx := d.core.PopRxStatus()
	pkg.LogTrace(pkg.ComponentFIFO, "receive", "status", rx.String())

	switch rx.PacketStatus() {
	case otg.PacketSetupData:
		n := d.core.PopBytes(d.setupBuf[:], rx.ByteCount())
		d.handleSetup(d.setupBuf[:n])
	case otg.PacketSetupComplete:
		d.endpoints.ArmEP0Out()
	case otg.PacketOutData:
		d.core.Discard(rx.ByteCount())
		// Zero-length packets on endpoint 0 are control status stages.
		if rx.Endpoint() != 0 || rx.ByteCount() > 0 {
			d.stats.OutPackets.Add(1)
			d.stats.OutBytes.Add(uint64(rx.ByteCount()))
		}
		d.endpoints.ArmOut(rx.Endpoint())
	case otg.PacketOutComplete:
	default:
		d.core.Discard(rx.ByteCount())
		d.stats.IgnoredPackets.Add(1)
		pkg.LogDebug(pkg.ComponentDriver, "ignored receive entry", "status", rx.String())
	}
}

// handleSetup decodes a SETUP packet, dispatches it and starts the response.
func (d *Driver) handleSetup(data []byte) {
	d.stats.Setups.Add(1)
	d.endpoints.SetupReceived()
	d.control.Setup()

	if err := ParseSetupPacket(data, &d.setup); err != nil {
		pkg.LogWarn(pkg.ComponentDriver, "malformed setup", "error", err, "length", len(data))
		d.control.Stall()
		return
	}
	setup := &d.setup
	pkg.LogDebug(pkg.ComponentDriver, "setup received", "request", setup.String())

	resp, err := d.handler.HandleSetup(setup)
	switch {
	case errors.Is(err, pkg.ErrInvalidDescriptor):
		pkg.LogDebug(pkg.ComponentDriver, "stall IN", "request", setup.String(), "error", err)
		d.control.StallIn()
	case err != nil:
		pkg.LogDebug(pkg.ComponentDriver, "stall", "request", setup.String(), "error", err)
		d.control.Stall()
	case setup.IsDeviceToHost():
		d.control.SendData(resp, setup.Length)
	default:
		d.control.SendStatus()
	}
}

// handleInEndpoints acknowledges IN endpoint interrupts and continues the
// endpoint 0 data stage on transfer complete.
func (d *Driver) handleInEndpoints() {
	daint := d.core.Load(otg.DAINT) & d.core.Load(otg.DAINTMSK)
	for n := range uint8(otg.NumEndpoints) {
		if daint&(1<<(otg.DAINTIEPPos+n)) == 0 {
			continue
		}
		flags := d.core.Load(otg.DIEPINT(n))
		d.core.Store(otg.DIEPINT(n), flags)
		if n == 0 && flags&otg.DIEPINTXFRC != 0 {
			d.control.InComplete()
		}
	}
}

// setStreaming enables or disables the streaming endpoint pair.
func (d *Driver) setStreaming(enable bool) error {
	ep := d.opts.StreamingEndpoint
	if enable {
		if err := d.endpoints.EnableStreaming(ep, d.opts.StreamingMaxPacketSize); err != nil {
			return err
		}
	} else if d.streaming {
		if err := d.endpoints.DisableStreaming(ep); err != nil {
			return err
		}
	}
	d.streaming = enable
	return nil
}

// configurationDescriptor returns the header of configuration 0.
func (d *Driver) configurationDescriptor() (ConfigurationDescriptor, bool) {
	var cfg ConfigurationDescriptor
	data, ok := d.store.Descriptor(DescriptorTypeConfiguration, 0)
	if !ok || ParseConfigurationDescriptor(data, &cfg) != nil {
		return cfg, false
	}
	return cfg, true
}

// hasInterface reports whether iface is an interface of the configuration.
func (d *Driver) hasInterface(iface uint8) bool {
	if int(iface) >= MaxInterfaces {
		return false
	}
	if cfg, ok := d.configurationDescriptor(); ok {
		return iface < cfg.NumInterfaces
	}
	return true
}

// Address returns the device address programmed in the core.
func (d *Driver) Address() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.core.Address()
}

// State returns the state of the endpoint 0 control transfer engine.
func (d *Driver) State() ControlState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.control.State()
}

// DeviceState returns the USB device state.
func (d *Driver) DeviceState() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// StreamingEnabled reports whether the streaming endpoints are active.
func (d *Driver) StreamingEnabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.streaming
}

// Configuration returns the selected configuration value, 0 if none.
func (d *Driver) Configuration() uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.configuration
}

// AlternateSetting returns the alternate setting of iface.
func (d *Driver) AlternateSetting(iface uint8) uint8 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if int(iface) >= MaxInterfaces {
		return 0
	}
	return d.alternates[iface]
}

// Endpoint returns a snapshot of the endpoint at addr.
func (d *Driver) Endpoint(addr uint8) (EndpointDescriptor, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.endpoints.Descriptor(addr)
}

// Options returns the driver options.
func (d *Driver) Options() Options {
	return d.opts
}

// Stats returns a snapshot of the event counters.
func (d *Driver) Stats() StatsSnapshot {
	return d.stats.Snapshot()
}
