package device

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/uac2speaker/pkg"
)

// StandardRequestHandler decodes SETUP packets and carries out standard
// requests against the [Driver]. Class requests are forwarded to the
// driver's [ClassHandler].
//
// Handlers return the IN response (nil for none) or an error. The caller
// turns [pkg.ErrInvalidDescriptor] into a STALL on endpoint 0 IN and any
// other error into a STALL on both directions.
type StandardRequestHandler struct {
	driver *Driver

	// Response buffer for generated replies. The returned slice from
	// HandleSetup references this buffer.
	responseBuf [2]byte
}

// NewStandardRequestHandler creates a new standard request handler.
func NewStandardRequestHandler(d *Driver) *StandardRequestHandler {
	return &StandardRequestHandler{driver: d}
}

// HandleSetup processes a SETUP request.
func (h *StandardRequestHandler) HandleSetup(setup *SetupPacket) ([]byte, error) {
	if setup.IsHostToDevice() && setup.Length > 0 {
		// No supported request has an OUT data stage.
		return nil, fmt.Errorf("%s: OUT data stage: %w", setup, pkg.ErrInvalidRequest)
	}

	switch setup.Type() {
	case RequestTypeStandard:
	case RequestTypeClass:
		return h.handleClassRequest(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}

	switch setup.Recipient() {
	case RequestRecipientDevice:
		return h.handleDeviceRequest(setup)
	case RequestRecipientInterface:
		return h.handleInterfaceRequest(setup)
	case RequestRecipientEndpoint:
		return h.handleEndpointRequest(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

// handleDeviceRequest handles device-level standard requests.
func (h *StandardRequestHandler) handleDeviceRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		return h.status(0), nil
	case RequestSetAddress:
		return h.setAddress(setup)
	case RequestGetDescriptor:
		return h.getDescriptor(setup)
	case RequestGetConfiguration:
		h.responseBuf[0] = h.driver.configuration
		return h.responseBuf[:1], nil
	case RequestSetConfiguration:
		return h.setConfiguration(setup)
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

// handleInterfaceRequest handles interface-level standard requests.
func (h *StandardRequestHandler) handleInterfaceRequest(setup *SetupPacket) ([]byte, error) {
	iface := setup.InterfaceNumber()
	if !h.driver.hasInterface(iface) {
		return nil, fmt.Errorf("interface %d: %w", iface, pkg.ErrInvalidRequest)
	}
	switch setup.Request {
	case RequestGetStatus:
		return h.status(0), nil
	case RequestGetInterface:
		h.responseBuf[0] = h.driver.alternates[iface]
		return h.responseBuf[:1], nil
	case RequestSetInterface:
		if setup.Value > 0xFF {
			return nil, fmt.Errorf("alternate setting %#04x: %w", setup.Value, pkg.ErrInvalidRequest)
		}
		return nil, h.setInterface(iface, uint8(setup.Value))
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

// handleEndpointRequest handles endpoint-level standard requests.
func (h *StandardRequestHandler) handleEndpointRequest(setup *SetupPacket) ([]byte, error) {
	switch setup.Request {
	case RequestGetStatus:
		ep, ok := h.driver.endpoints.Descriptor(setup.EndpointAddress())
		if !ok || !ep.Enabled {
			return nil, fmt.Errorf("endpoint 0x%02X: %w", setup.EndpointAddress(), pkg.ErrInvalidEndpoint)
		}
		var status uint16
		if ep.Stalled {
			status = 1 // ENDPOINT_HALT
		}
		return h.status(status), nil
	default:
		return nil, pkg.ErrInvalidRequest
	}
}

// handleClassRequest forwards a class request to the class handler.
func (h *StandardRequestHandler) handleClassRequest(setup *SetupPacket) ([]byte, error) {
	class := h.driver.opts.ClassHandler
	if class == nil {
		return nil, pkg.ErrInvalidRequest
	}
	data, ok, err := class.HandleClass(setup)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, pkg.ErrInvalidRequest
	}
	return data, nil
}

// status returns a 2-byte GET_STATUS response.
func (h *StandardRequestHandler) status(v uint16) []byte {
	binary.LittleEndian.PutUint16(h.responseBuf[:2], v)
	return h.responseBuf[:2]
}

// setAddress programs the device address at once. The core keeps answering
// at the old address until the status stage completes.
func (h *StandardRequestHandler) setAddress(setup *SetupPacket) ([]byte, error) {
	d := h.driver
	address := uint8(setup.Value & 0x7F)
	d.core.SetAddress(address)
	if address == 0 {
		d.state = StateDefault
	} else {
		d.state = StateAddress
	}
	pkg.LogDebug(pkg.ComponentRequest, "SET_ADDRESS", "address", address)
	return nil, nil
}

// getDescriptor serves device and configuration descriptors from the store.
// Any other type is answered with [pkg.ErrInvalidDescriptor].
func (h *StandardRequestHandler) getDescriptor(setup *SetupPacket) ([]byte, error) {
	typ, index := setup.DescriptorType(), setup.DescriptorIndex()
	switch typ {
	case DescriptorTypeDevice, DescriptorTypeConfiguration:
	default:
		return nil, fmt.Errorf("descriptor type 0x%02X: %w", typ, pkg.ErrInvalidDescriptor)
	}
	data, ok := h.driver.store.Descriptor(typ, index)
	if !ok {
		return nil, fmt.Errorf("descriptor type 0x%02X index %d: %w", typ, index, pkg.ErrInvalidDescriptor)
	}
	n := min(len(data), int(setup.Length))
	h.driver.stats.DescriptorBytes.Add(uint64(n))
	pkg.LogDebug(pkg.ComponentRequest, "GET_DESCRIPTOR",
		"type", typ, "index", index, "length", len(data), "requested", setup.Length)
	return data, nil
}

// setConfiguration selects a configuration. Value 0 returns to the Address
// state. Either way every interface returns to alternate setting 0, which
// disables streaming.
func (h *StandardRequestHandler) setConfiguration(setup *SetupPacket) ([]byte, error) {
	d := h.driver
	value := uint8(setup.Value)
	if value != 0 {
		cfg, ok := d.configurationDescriptor()
		if ok && cfg.ConfigurationValue != value {
			return nil, fmt.Errorf("configuration %d: %w", value, pkg.ErrInvalidRequest)
		}
	}
	if err := d.setStreaming(false); err != nil {
		return nil, err
	}
	d.alternates = [MaxInterfaces]uint8{}
	d.configuration = value
	if value == 0 {
		d.state = StateAddress
	} else {
		d.state = StateConfigured
	}
	pkg.LogDebug(pkg.ComponentRequest, "SET_CONFIGURATION", "value", value)
	return nil, nil
}

// setInterface selects an alternate setting. On the streaming interface,
// alternate 0 disables the streaming endpoints and alternate 1 enables them;
// other interfaces have only alternate 0.
func (h *StandardRequestHandler) setInterface(iface, alt uint8) error {
	d := h.driver
	if iface != d.opts.StreamingInterface {
		if alt != 0 {
			return fmt.Errorf("interface %d alternate %d: %w", iface, alt, pkg.ErrInvalidRequest)
		}
		d.alternates[iface] = 0
		return nil
	}
	switch alt {
	case 0, 1:
	default:
		return fmt.Errorf("interface %d alternate %d: %w", iface, alt, pkg.ErrInvalidRequest)
	}
	if err := d.setStreaming(alt == 1); err != nil {
		return err
	}
	d.alternates[iface] = alt
	pkg.LogDebug(pkg.ComponentRequest, "SET_INTERFACE", "interface", iface, "alternate", alt)
	return nil
}
