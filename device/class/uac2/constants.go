package uac2

// Audio interface class codes (UAC2 Appendix A.4 to A.6).
const (
	ClassAudio             = 0x01
	SubclassUndefined      = 0x00
	SubclassAudioControl   = 0x01
	SubclassAudioStreaming = 0x02
)

// ProtocolVersion0200 is IP_VERSION_02_00, the interface and function
// protocol of UAC2.
const ProtocolVersion0200 = 0x20

// FunctionCategorySpeaker is the DESKTOP_SPEAKER audio function category.
const FunctionCategorySpeaker = 0x01

// Interface numbers and alternate settings of the speaker function.
const (
	InterfaceAudioControl   = 0
	InterfaceAudioStreaming = 1
	AlternateZeroBandwidth  = 0
	AlternateOperational    = 1
)

// StreamingEndpoint is the number of the isochronous OUT endpoint carrying
// audio.
const StreamingEndpoint = 1

// Class-specific AudioControl interface descriptor subtypes (A.9).
const (
	ACHeader          = 0x01
	ACInputTerminal   = 0x02
	ACOutputTerminal  = 0x03
	ACClockSource     = 0x0A
	ACClockSelector   = 0x0B
	ACClockMultiplier = 0x0C
)

// Class-specific AudioStreaming interface descriptor subtypes (A.10).
const (
	ASGeneral    = 0x01
	ASFormatType = 0x02
)

// Class-specific endpoint descriptor subtype (A.13).
const EPGeneral = 0x01

// Terminal types (USB Audio Terminal Types 2.0).
const (
	TerminalUSBStreaming = 0x0101
	TerminalSpeaker      = 0x0301
)

// Entity IDs of the audio function topology:
// clock source → clock selector → clock multiplier clocks both terminals,
// USB streaming input terminal → speaker output terminal.
const (
	InputTerminalID   = 0x01
	OutputTerminalID  = 0x03
	ClockSourceID     = 0x10
	ClockSelectorID   = 0x11
	ClockMultiplierID = 0x12
)

// Class-specific request codes (A.14).
const (
	RequestCur   = 0x01
	RequestRange = 0x02
	RequestMem   = 0x03
)

// Clock source control selectors (A.17.1).
const (
	ClockSamplingFrequencyControl = 0x01
	ClockValidityControl          = 0x02
)

// Stream format of the operational alternate setting.
const (
	SampleRate       = 48000
	Channels         = 2
	SubslotSize      = 2 // bytes per sample
	BitResolution    = 16
	FrameSize        = Channels * SubslotSize
	PacketsPerSecond = 1000 // one packet per full-speed frame

	// MaxPacketSize is the bytes of one 1 ms packet at the nominal rate.
	MaxPacketSize = SampleRate / PacketsPerSecond * FrameSize
)
