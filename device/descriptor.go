package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/uac2speaker/pkg"
)

// USB Descriptor Types (USB 2.0 Spec Table 9-5).
const (
	DescriptorTypeDevice               = 0x01
	DescriptorTypeConfiguration        = 0x02
	DescriptorTypeString               = 0x03
	DescriptorTypeInterface            = 0x04
	DescriptorTypeEndpoint             = 0x05
	DescriptorTypeDeviceQualifier      = 0x06
	DescriptorTypeInterfaceAssociation = 0x0B
	DescriptorTypeCSInterface          = 0x24 // Class-specific interface
	DescriptorTypeCSEndpoint           = 0x25 // Class-specific endpoint
)

// USB Class Codes.
const (
	ClassPerInterface = 0x00 // Class defined at interface level
	ClassAudio        = 0x01 // Audio class
	ClassMisc         = 0xEF // Miscellaneous (interface association)
)

// DescriptorStore supplies the descriptor bytes served to the host. The
// returned slice is served verbatim and must not be modified.
type DescriptorStore interface {
	// Descriptor returns the descriptor of type typ at index, or false if
	// there is none.
	Descriptor(typ, index uint8) ([]byte, bool)
}

// StaticStore is a [DescriptorStore] over fixed byte tables.
type StaticStore struct {
	Device         []byte   // Device descriptor
	Configurations [][]byte // Configuration descriptors by index
}

// Descriptor implements [DescriptorStore].
func (s *StaticStore) Descriptor(typ, index uint8) ([]byte, bool) {
	switch typ {
	case DescriptorTypeDevice:
		if index != 0 || len(s.Device) == 0 {
			return nil, false
		}
		return s.Device, true
	case DescriptorTypeConfiguration:
		if int(index) >= len(s.Configurations) {
			return nil, false
		}
		return s.Configurations[index], true
	default:
		return nil, false
	}
}

// DeviceDescriptor represents a USB device descriptor (18 bytes).
type DeviceDescriptor struct {
	Length            uint8  // Size of this descriptor (18)
	DescriptorType    uint8  // Device descriptor type (0x01)
	USBVersion        uint16 // USB specification version (BCD)
	DeviceClass       uint8  // Class code
	DeviceSubClass    uint8  // Subclass code
	DeviceProtocol    uint8  // Protocol code
	MaxPacketSize0    uint8  // Max packet size for EP0
	VendorID          uint16 // Vendor ID
	ProductID         uint16 // Product ID
	DeviceVersion     uint16 // Device release number (BCD)
	ManufacturerIndex uint8  // Index of manufacturer string
	ProductIndex      uint8  // Index of product string
	SerialNumberIndex uint8  // Index of serial number string
	NumConfigurations uint8  // Number of configurations
}

// DeviceDescriptorSize is the size of a device descriptor in bytes.
const DeviceDescriptorSize = 18

// ParseDeviceDescriptor parses a device descriptor from bytes into out.
// Returns an error if the data is too short or the descriptor type is wrong.
func ParseDeviceDescriptor(data []byte, out *DeviceDescriptor) error {
	if len(data) < DeviceDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeDevice {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.USBVersion = binary.LittleEndian.Uint16(data[2:4])
	out.DeviceClass = data[4]
	out.DeviceSubClass = data[5]
	out.DeviceProtocol = data[6]
	out.MaxPacketSize0 = data[7]
	out.VendorID = binary.LittleEndian.Uint16(data[8:10])
	out.ProductID = binary.LittleEndian.Uint16(data[10:12])
	out.DeviceVersion = binary.LittleEndian.Uint16(data[12:14])
	out.ManufacturerIndex = data[14]
	out.ProductIndex = data[15]
	out.SerialNumberIndex = data[16]
	out.NumConfigurations = data[17]
	return nil
}

// ConfigurationDescriptor is the 9-byte header of a configuration descriptor.
type ConfigurationDescriptor struct {
	Length             uint8  // Size of this descriptor (9)
	DescriptorType     uint8  // Configuration descriptor type (0x02)
	TotalLength        uint16 // Total length of all descriptors in the configuration
	NumInterfaces      uint8  // Number of interfaces
	ConfigurationValue uint8  // Value selecting this configuration
	ConfigurationIndex uint8  // Index of configuration string
	Attributes         uint8  // Self-powered, remote wakeup
	MaxPower           uint8  // Maximum power in 2 mA units
}

// ConfigurationDescriptorSize is the size of a configuration descriptor header.
const ConfigurationDescriptorSize = 9

// ParseConfigurationDescriptor parses a configuration descriptor header.
func ParseConfigurationDescriptor(data []byte, out *ConfigurationDescriptor) error {
	if len(data) < ConfigurationDescriptorSize {
		return pkg.ErrDescriptorTooShort
	}
	if data[1] != DescriptorTypeConfiguration {
		return pkg.ErrDescriptorTypeMismatch
	}
	out.Length = data[0]
	out.DescriptorType = data[1]
	out.TotalLength = binary.LittleEndian.Uint16(data[2:4])
	out.NumInterfaces = data[4]
	out.ConfigurationValue = data[5]
	out.ConfigurationIndex = data[6]
	out.Attributes = data[7]
	out.MaxPower = data[8]
	return nil
}

// DescriptorHeader is one sub-descriptor found while walking a configuration.
type DescriptorHeader struct {
	Offset  int   // Byte offset within the configuration
	Length  uint8 // bLength
	Type    uint8 // bDescriptorType
	Subtype uint8 // bDescriptorSubtype for class-specific descriptors, else 0
}

// WalkConfiguration calls fn for each sub-descriptor of a configuration
// descriptor, including the header itself. It stops at the first error.
func WalkConfiguration(data []byte, fn func(h DescriptorHeader) error) error {
	for off := 0; off < len(data); {
		if len(data)-off < 2 {
			return fmt.Errorf("offset %d: %w", off, pkg.ErrDescriptorTooShort)
		}
		n := int(data[off])
		if n < 2 || off+n > len(data) {
			return fmt.Errorf("offset %d: bLength %d: %w", off, n, pkg.ErrInvalidDescriptor)
		}
		h := DescriptorHeader{Offset: off, Length: data[off], Type: data[off+1]}
		if n > 2 && (h.Type == DescriptorTypeCSInterface || h.Type == DescriptorTypeCSEndpoint) {
			h.Subtype = data[off+2]
		}
		if err := fn(h); err != nil {
			return err
		}
		off += n
	}
	return nil
}

// ValidateConfiguration checks that a configuration descriptor is well
// formed: its header parses, wTotalLength equals the blob length, and every
// sub-descriptor's bLength chain ends exactly at the end of the blob.
func ValidateConfiguration(data []byte) error {
	var hdr ConfigurationDescriptor
	if err := ParseConfigurationDescriptor(data, &hdr); err != nil {
		return err
	}
	if int(hdr.TotalLength) != len(data) {
		return fmt.Errorf("wTotalLength %d, have %d bytes: %w", hdr.TotalLength, len(data), pkg.ErrInvalidDescriptor)
	}
	return WalkConfiguration(data, func(DescriptorHeader) error { return nil })
}
