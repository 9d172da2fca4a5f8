package main

import (
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/uac2speaker/device"
	"github.com/ardnew/uac2speaker/device/class/uac2"
	"github.com/ardnew/uac2speaker/device/hal/sim"
)

// Summary is what a host learns while enumerating the speaker.
type Summary struct {
	Device        device.DeviceDescriptor
	Configuration device.ConfigurationDescriptor
	Address       uint8
	SampleRate    uint32
	ClockValid    bool
}

// clockRequest returns a class GET request for a clock source control.
func clockRequest(request, selector uint8, length uint16) sim.Request {
	return sim.Request{
		RequestType: sim.RequestIn | sim.RequestClass | sim.RequestInterface,
		Request:     request,
		Value:       uint16(selector) << 8,
		Index:       uint16(uac2.ClockSourceID)<<8 | uac2.InterfaceAudioControl,
		Length:      length,
	}
}

// requestLabel names req the way a bus analyzer would, followed by its
// wire bytes.
func requestLabel(req sim.Request) string {
	pkt := device.SetupPacket{
		RequestType: req.RequestType,
		Request:     req.Request,
		Value:       req.Value,
		Index:       req.Index,
		Length:      req.Length,
	}
	var wire [device.SetupPacketSize]byte
	pkt.MarshalTo(wire[:])

	var name string
	switch {
	case pkt.IsClass():
		name = fmt.Sprintf("%s(entity %d, cs %d)", classRequestName(pkt.Request), pkt.EntityID(), pkt.ControlSelector())
	case pkt.IsVendor():
		name = fmt.Sprintf("VENDOR_%02X", pkt.Request)
	default:
		name = device.RequestName(pkt.Request)
	}

	var to string
	switch {
	case pkt.IsDeviceRecipient():
		to = "device"
	case pkt.IsInterfaceRecipient():
		to = fmt.Sprintf("if%d", pkt.InterfaceNumber())
	case pkt.IsEndpointRecipient():
		to = fmt.Sprintf("ep%02x", pkt.EndpointAddress())
	default:
		to = "other"
	}
	return fmt.Sprintf("%s %s [% x]", name, to, wire[:])
}

func classRequestName(code uint8) string {
	switch code {
	case uac2.RequestCur:
		return "CUR"
	case uac2.RequestRange:
		return "RANGE"
	case uac2.RequestMem:
		return "MEM"
	default:
		return fmt.Sprintf("CLASS_%02X", code)
	}
}

// transcript writes one aligned line per completed host step.
type transcript struct {
	tw *tabwriter.Writer
}

func newTranscript(w io.Writer) *transcript {
	return &transcript{tw: tabwriter.NewWriter(w, 0, 8, 2, ' ', 0)}
}

func (t *transcript) step(name, format string, args ...any) {
	fmt.Fprintf(t.tw, "%s\t%s\n", name, fmt.Sprintf(format, args...))
}

func (t *transcript) flush() error {
	return t.tw.Flush()
}

// enumerate walks the device through the sequence Linux uses for a UAC2
// function, ending with the operational streaming alternate selected.
func enumerate(host *sim.Host, dev DeviceFlags, hf HostFlags, w io.Writer, logger *slog.Logger) (Summary, error) {
	var s Summary
	t := newTranscript(w)
	defer func() { _ = t.flush() }()

	if err := host.Reset(); err != nil {
		return s, errors.Wrap(err, "bus reset")
	}
	t.step("bus reset", "ok")

	tr, err := host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, 64))
	if err != nil {
		return s, errors.Wrap(err, "read device descriptor")
	}
	t.step(requestLabel(tr.Setup), "%d bytes %v, bMaxPacketSize0 %d", len(tr.Data), tr.Packets, tr.Data[7])

	if err := host.Reset(); err != nil {
		return s, errors.Wrap(err, "second bus reset")
	}
	t.step("bus reset", "ok")

	if err := host.SetAddress(hf.Address); err != nil {
		return s, errors.Wrapf(err, "set address %d", hf.Address)
	}
	s.Address = host.Address()
	t.step(requestLabel(sim.SetAddress(hf.Address)), "address %d", s.Address)

	tr, err = host.ControlIn(sim.GetDescriptor(sim.DescriptorDevice, 0, device.DeviceDescriptorSize))
	if err != nil {
		return s, errors.Wrap(err, "read device descriptor")
	}
	if err := device.ParseDeviceDescriptor(tr.Data, &s.Device); err != nil {
		return s, errors.Wrap(err, "parse device descriptor")
	}
	if c := s.Device.DeviceClass; c != device.ClassMisc && c != device.ClassPerInterface {
		return s, errors.Newf("device class %02X carries no audio function", c)
	}
	t.step(requestLabel(tr.Setup), "VID %04X PID %04X class %02X/%02X/%02X, %d configuration(s)",
		s.Device.VendorID, s.Device.ProductID,
		s.Device.DeviceClass, s.Device.DeviceSubClass, s.Device.DeviceProtocol,
		s.Device.NumConfigurations)

	tr, err = host.ControlIn(sim.GetDescriptor(sim.DescriptorConfiguration, 0, device.ConfigurationDescriptorSize))
	if err != nil {
		return s, errors.Wrap(err, "read configuration header")
	}
	if err := device.ParseConfigurationDescriptor(tr.Data, &s.Configuration); err != nil {
		return s, errors.Wrap(err, "parse configuration header")
	}
	t.step(requestLabel(tr.Setup), "wTotalLength %d", s.Configuration.TotalLength)

	tr, err = host.ControlIn(sim.GetDescriptor(sim.DescriptorConfiguration, 0, s.Configuration.TotalLength))
	if err != nil {
		return s, errors.Wrap(err, "read configuration")
	}
	if err := device.ValidateConfiguration(tr.Data); err != nil {
		return s, errors.Wrap(err, "validate configuration")
	}
	t.step(requestLabel(tr.Setup), "%d bytes %v, %d interface(s)", len(tr.Data), tr.Packets, s.Configuration.NumInterfaces)

	if err := host.SetConfiguration(s.Configuration.ConfigurationValue); err != nil {
		return s, errors.Wrap(err, "set configuration")
	}
	t.step(requestLabel(sim.SetConfiguration(s.Configuration.ConfigurationValue)), "configured")

	req := clockRequest(uac2.RequestCur, uac2.ClockValidityControl, 1)
	if tr, err = host.ControlIn(req); err != nil {
		return s, errors.Wrap(err, "read clock validity")
	}
	s.ClockValid = tr.Data[0] != 0
	t.step(requestLabel(req), "clock valid %t", s.ClockValid)

	req = clockRequest(uac2.RequestRange, uac2.ClockSamplingFrequencyControl, 2)
	if tr, err = host.ControlIn(req); err != nil {
		return s, errors.Wrap(err, "read sampling frequency range count")
	}
	n := binary.LittleEndian.Uint16(tr.Data)
	t.step(requestLabel(req), "%d subrange(s)", n)

	req = clockRequest(uac2.RequestRange, uac2.ClockSamplingFrequencyControl, 2+12*n)
	if tr, err = host.ControlIn(req); err != nil {
		return s, errors.Wrap(err, "read sampling frequency ranges")
	}
	for i := 0; i < int(n) && 2+12*(i+1) <= len(tr.Data); i++ {
		r := tr.Data[2+12*i:]
		t.step(requestLabel(req), "range %d: %d..%d Hz step %d", i,
			binary.LittleEndian.Uint32(r[0:4]),
			binary.LittleEndian.Uint32(r[4:8]),
			binary.LittleEndian.Uint32(r[8:12]))
	}

	req = clockRequest(uac2.RequestCur, uac2.ClockSamplingFrequencyControl, 4)
	if tr, err = host.ControlIn(req); err != nil {
		return s, errors.Wrap(err, "read sampling frequency")
	}
	s.SampleRate = binary.LittleEndian.Uint32(tr.Data)
	t.step(requestLabel(req), "%d Hz", s.SampleRate)

	if err := host.SetInterface(dev.Interface, uac2.AlternateOperational); err != nil {
		return s, errors.Wrapf(err, "select alternate %d of interface %d", uac2.AlternateOperational, dev.Interface)
	}
	t.step(requestLabel(sim.SetInterface(dev.Interface, uac2.AlternateOperational)), "streaming on ep%d OUT", dev.Endpoint)

	logger.Info("enumerated",
		"vid", fmt.Sprintf("%04x", s.Device.VendorID),
		"pid", fmt.Sprintf("%04x", s.Device.ProductID),
		"address", s.Address,
		"rate", s.SampleRate)
	return s, nil
}

// EnumerateCmd enumerates the speaker once and exits.
type EnumerateCmd struct {
	Device DeviceFlags `embed:"" prefix:"device."`
	Host   HostFlags   `embed:"" prefix:"host."`
}

// Run is called by kong when the enumerate command is executed.
func (c *EnumerateCmd) Run(logger *slog.Logger, out io.Writer) error {
	core := sim.New()
	drv := c.Device.newDriver(core)
	core.Attach(drv.HandleInterrupt)
	if err := drv.Init(); err != nil {
		return errors.Wrap(err, "init driver")
	}
	if _, err := enumerate(c.Host.newHost(core), c.Device, c.Host, out, logger); err != nil {
		return err
	}
	st := drv.Stats()
	logger.Debug("driver stats",
		"setups", st.Setups,
		"in_packets", st.InPackets,
		"descriptor_bytes", st.DescriptorBytes,
		"stalls", st.Stalls)
	return nil
}
