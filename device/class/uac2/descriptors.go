package uac2

import (
	"github.com/ardnew/uac2speaker/device"
)

// USB identity of the speaker.
const (
	VendorID      = 0x0483
	ProductID     = 0x5711
	DeviceVersion = 0x0100
)

// deviceDescriptor uses the interface association class triple so hosts
// bind the audio function through its IAD.
var deviceDescriptor = [device.DeviceDescriptorSize]byte{
	device.DeviceDescriptorSize,
	device.DescriptorTypeDevice,
	0x00, 0x02,       // bcdUSB 2.00
	device.ClassMisc, // bDeviceClass
	0x02,             // bDeviceSubClass: common class
	0x01,             // bDeviceProtocol: interface association
	device.EP0MaxPacketSize,
	VendorID & 0xFF, VendorID >> 8,
	ProductID & 0xFF, ProductID >> 8,
	DeviceVersion & 0xFF, DeviceVersion >> 8,
	0x00, // iManufacturer
	0x00, // iProduct
	0x00, // iSerialNumber
	0x01, // bNumConfigurations
}

// Lengths of the class-specific AudioControl descriptors.
const (
	acHeaderLength          = 9
	clockSourceLength       = 8
	clockSelectorLength     = 8
	clockMultiplierLength   = 7
	inputTerminalLength     = 17
	outputTerminalLength    = 12
	classSpecificACLength   = acHeaderLength + clockSourceLength + clockSelectorLength + clockMultiplierLength + inputTerminalLength + outputTerminalLength
	configurationDescLength = 9 + 8 + 9 + classSpecificACLength + 9 + 9 + 16 + 6 + 7 + 8
)

// configurationDescriptor is the complete speaker configuration: one
// AudioControl interface with the clock and terminal topology, and one
// AudioStreaming interface whose alternate setting 1 carries 48 kHz stereo
// 16-bit PCM over an adaptive isochronous OUT endpoint.
var configurationDescriptor = [configurationDescLength]byte{
	// Configuration
	9, device.DescriptorTypeConfiguration,
	configurationDescLength & 0xFF, configurationDescLength >> 8,
	0x02, // bNumInterfaces
	0x01, // bConfigurationValue
	0x00, // iConfiguration
	0x80, // bmAttributes: bus powered
	50,   // bMaxPower: 100 mA

	// Interface association
	8, device.DescriptorTypeInterfaceAssociation,
	InterfaceAudioControl, // bFirstInterface
	0x02,                  // bInterfaceCount
	ClassAudio, SubclassUndefined, ProtocolVersion0200,
	0x00, // iFunction

	// Standard AudioControl interface
	9, device.DescriptorTypeInterface,
	InterfaceAudioControl, 0x00, // bInterfaceNumber, bAlternateSetting
	0x00,                        // bNumEndpoints
	ClassAudio, SubclassAudioControl, ProtocolVersion0200,
	0x00, // iInterface

	// Class-specific AudioControl header
	acHeaderLength, device.DescriptorTypeCSInterface, ACHeader,
	0x00, 0x02, // bcdADC 2.00
	FunctionCategorySpeaker,
	classSpecificACLength & 0xFF, classSpecificACLength >> 8,
	0x00, // bmControls

	// Clock source: internal fixed clock
	clockSourceLength, device.DescriptorTypeCSInterface, ACClockSource,
	ClockSourceID,
	0x01, // bmAttributes: internal fixed clock
	0x05, // bmControls: frequency read-only, validity read-only
	0x00, // bAssocTerminal
	0x00, // iClockSource

	// Clock selector with a single input
	clockSelectorLength, device.DescriptorTypeCSInterface, ACClockSelector,
	ClockSelectorID,
	0x01,          // bNrInPins
	ClockSourceID, // baCSourceID(1)
	0x00,          // bmControls
	0x00,          // iClockSelector

	// Clock multiplier
	clockMultiplierLength, device.DescriptorTypeCSInterface, ACClockMultiplier,
	ClockMultiplierID,
	ClockSelectorID, // bCSourceID
	0x00,            // bmControls
	0x00,            // iClockMultiplier

	// Input terminal: USB streaming
	inputTerminalLength, device.DescriptorTypeCSInterface, ACInputTerminal,
	InputTerminalID,
	TerminalUSBStreaming & 0xFF, TerminalUSBStreaming >> 8,
	0x00,                   // bAssocTerminal
	ClockMultiplierID,      // bCSourceID
	Channels,               // bNrChannels
	0x03, 0x00, 0x00, 0x00, // bmChannelConfig: front left, front right
	0x00,                   // iChannelNames
	0x00, 0x00,             // bmControls
	0x00,                   // iTerminal

	// Output terminal: speaker
	outputTerminalLength, device.DescriptorTypeCSInterface, ACOutputTerminal,
	OutputTerminalID,
	TerminalSpeaker & 0xFF, TerminalSpeaker >> 8,
	0x00,              // bAssocTerminal
	InputTerminalID,   // bSourceID
	ClockMultiplierID, // bCSourceID
	0x00, 0x00,        // bmControls
	0x00,              // iTerminal

	// Standard AudioStreaming interface, alternate 0: zero bandwidth
	9, device.DescriptorTypeInterface,
	InterfaceAudioStreaming, AlternateZeroBandwidth,
	0x00, // bNumEndpoints
	ClassAudio, SubclassAudioStreaming, ProtocolVersion0200,
	0x00, // iInterface

	// Standard AudioStreaming interface, alternate 1: operational
	9, device.DescriptorTypeInterface,
	InterfaceAudioStreaming, AlternateOperational,
	0x01, // bNumEndpoints
	ClassAudio, SubclassAudioStreaming, ProtocolVersion0200,
	0x00, // iInterface

	// Class-specific AudioStreaming general
	16, device.DescriptorTypeCSInterface, ASGeneral,
	InputTerminalID,        // bTerminalLink
	0x00,                   // bmControls
	0x01,                   // bFormatType: FORMAT_TYPE_I
	0x01, 0x00, 0x00, 0x00, // bmFormats: PCM
	Channels,               // bNrChannels
	0x03, 0x00, 0x00, 0x00, // bmChannelConfig
	0x00,                   // iChannelNames

	// Type I format
	6, device.DescriptorTypeCSInterface, ASFormatType,
	0x01,          // bFormatType: FORMAT_TYPE_I
	SubslotSize,   // bSubslotSize
	BitResolution, // bBitResolution

	// Standard isochronous OUT endpoint
	7, device.DescriptorTypeEndpoint,
	StreamingEndpoint, // bEndpointAddress: OUT 1
	0x09,              // bmAttributes: isochronous, adaptive
	MaxPacketSize & 0xFF, MaxPacketSize >> 8,
	0x01, // bInterval: every frame

	// Class-specific isochronous endpoint
	8, device.DescriptorTypeCSEndpoint, EPGeneral,
	0x00,       // bmAttributes
	0x00,       // bmControls
	0x00,       // bLockDelayUnits
	0x00, 0x00, // wLockDelay
}

// DeviceDescriptor returns the device descriptor.
func DeviceDescriptor() []byte {
	return deviceDescriptor[:]
}

// ConfigurationDescriptor returns the configuration descriptor with every
// interface, class-specific and endpoint descriptor it contains.
func ConfigurationDescriptor() []byte {
	return configurationDescriptor[:]
}

// NewStore returns a descriptor store serving the speaker descriptors.
func NewStore() *device.StaticStore {
	return &device.StaticStore{
		Device:         DeviceDescriptor(),
		Configurations: [][]byte{ConfigurationDescriptor()},
	}
}
