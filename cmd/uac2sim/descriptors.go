package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"

	"github.com/efficientgo/core/errors"

	"github.com/ardnew/uac2speaker/device"
	"github.com/ardnew/uac2speaker/device/class/uac2"
)

// DescriptorsCmd prints the speaker's descriptor tables.
type DescriptorsCmd struct {
	Hex bool `help:"Also print a hex dump of each table."`
}

// descriptorName names a configuration sub-descriptor. Class-specific
// interface subtypes are read in the context of the audio interface
// subclass that precedes them.
func descriptorName(h device.DescriptorHeader, subclass uint8) string {
	switch h.Type {
	case device.DescriptorTypeConfiguration:
		return "configuration"
	case device.DescriptorTypeInterface:
		return "interface"
	case device.DescriptorTypeEndpoint:
		return "endpoint"
	case device.DescriptorTypeInterfaceAssociation:
		return "interface association"
	case device.DescriptorTypeCSEndpoint:
		return "cs endpoint"
	case device.DescriptorTypeCSInterface:
		if subclass == uac2.SubclassAudioStreaming {
			switch h.Subtype {
			case uac2.ASGeneral:
				return "as general"
			case uac2.ASFormatType:
				return "as format type"
			}
			return "cs interface"
		}
		switch h.Subtype {
		case uac2.ACHeader:
			return "ac header"
		case uac2.ACInputTerminal:
			return "ac input terminal"
		case uac2.ACOutputTerminal:
			return "ac output terminal"
		case uac2.ACClockSource:
			return "ac clock source"
		case uac2.ACClockSelector:
			return "ac clock selector"
		case uac2.ACClockMultiplier:
			return "ac clock multiplier"
		}
		return "cs interface"
	}
	return fmt.Sprintf("type 0x%02X", h.Type)
}

// Run is called by kong when the descriptors command is executed.
func (c *DescriptorsCmd) Run(logger *slog.Logger, out io.Writer) error {
	dev := uac2.DeviceDescriptor()
	var d device.DeviceDescriptor
	if err := device.ParseDeviceDescriptor(dev, &d); err != nil {
		return errors.Wrap(err, "device descriptor")
	}
	fmt.Fprintf(out, "device: %d bytes, USB %x.%02x, class %02X/%02X/%02X, EP0 %d, VID %04X PID %04X\n",
		len(dev), d.USBVersion>>8, d.USBVersion&0xFF,
		d.DeviceClass, d.DeviceSubClass, d.DeviceProtocol,
		d.MaxPacketSize0, d.VendorID, d.ProductID)
	if c.Hex {
		fmt.Fprint(out, hex.Dump(dev))
	}

	cfg := uac2.ConfigurationDescriptor()
	if err := device.ValidateConfiguration(cfg); err != nil {
		return errors.Wrap(err, "configuration descriptor")
	}
	fmt.Fprintf(out, "configuration: %d bytes\n", len(cfg))
	var subclass uint8
	err := device.WalkConfiguration(cfg, func(h device.DescriptorHeader) error {
		if h.Type == device.DescriptorTypeInterface && h.Length >= 7 {
			subclass = cfg[h.Offset+6]
		}
		fmt.Fprintf(out, "  %4d  %3d  %s\n", h.Offset, h.Length, descriptorName(h, subclass))
		return nil
	})
	if err != nil {
		return errors.Wrap(err, "walk configuration")
	}
	if c.Hex {
		fmt.Fprint(out, hex.Dump(cfg))
	}
	logger.Debug("descriptors printed", "device", len(dev), "configuration", len(cfg))
	return nil
}
