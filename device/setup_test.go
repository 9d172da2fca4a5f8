package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ardnew/uac2speaker/pkg"
)

func TestParseSetupPacket(t *testing.T) {
	tests := []struct {
		name    string
		data    []byte
		want    SetupPacket
		wantErr error
	}{
		{
			name: "GET_DESCRIPTOR device",
			data: []byte{0x80, 0x06, 0x00, 0x01, 0x00, 0x00, 0x40, 0x00},
			want: SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 64},
		},
		{
			name: "SET_ADDRESS",
			data: []byte{0x00, 0x05, 0x05, 0x00, 0x00, 0x00, 0x00, 0x00},
			want: SetupPacket{Request: 0x05, Value: 5},
		},
		{
			name: "SET_INTERFACE",
			data: []byte{0x01, 0x0B, 0x01, 0x00, 0x01, 0x00, 0x00, 0x00},
			want: SetupPacket{RequestType: 0x01, Request: 0x0B, Value: 1, Index: 1},
		},
		{
			name: "clock source CUR",
			data: []byte{0xA1, 0x01, 0x00, 0x01, 0x00, 0x0A, 0x04, 0x00},
			want: SetupPacket{RequestType: 0xA1, Request: 0x01, Value: 0x0100, Index: 0x0A00, Length: 4},
		},
		{
			name:    "too short",
			data:    []byte{0x80, 0x06, 0x00},
			wantErr: pkg.ErrSetupPacketTooShort,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got SetupPacket
			err := ParseSetupPacket(tt.data, &got)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSetupPacketMarshalTo(t *testing.T) {
	pkt := SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0200, Length: 255}

	var buf [SetupPacketSize]byte
	require.Equal(t, SetupPacketSize, pkt.MarshalTo(buf[:]))
	assert.Equal(t, [SetupPacketSize]byte{0x80, 0x06, 0x00, 0x02, 0x00, 0x00, 0xFF, 0x00}, buf)

	var parsed SetupPacket
	require.NoError(t, ParseSetupPacket(buf[:], &parsed))
	assert.Equal(t, pkt, parsed)

	assert.Zero(t, pkt.MarshalTo(buf[:4]), "short buffer")
}

func TestSetupPacketDirection(t *testing.T) {
	tests := []struct {
		name          string
		requestType   uint8
		wantDirection uint8
		wantD2H       bool
	}{
		{"device-to-host", 0x80, RequestDirectionDeviceToHost, true},
		{"host-to-device", 0x00, RequestDirectionHostToDevice, false},
		{"class IN", 0xA1, RequestDirectionDeviceToHost, true},
		{"vendor OUT", 0x40, RequestDirectionHostToDevice, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &SetupPacket{RequestType: tt.requestType}
			assert.Equal(t, tt.wantDirection, pkt.Direction())
			assert.Equal(t, tt.wantD2H, pkt.IsDeviceToHost())
			assert.Equal(t, !tt.wantD2H, pkt.IsHostToDevice())
		})
	}
}

func TestSetupPacketType(t *testing.T) {
	tests := []struct {
		name        string
		requestType uint8
		wantType    uint8
		wantStd     bool
		wantClass   bool
		wantVendor  bool
	}{
		{"standard", 0x00, RequestTypeStandard, true, false, false},
		{"class", 0x21, RequestTypeClass, false, true, false},
		{"vendor", 0x40, RequestTypeVendor, false, false, true},
		{"class IN", 0xA1, RequestTypeClass, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &SetupPacket{RequestType: tt.requestType}
			assert.Equal(t, tt.wantType, pkt.Type())
			assert.Equal(t, tt.wantStd, pkt.IsStandard())
			assert.Equal(t, tt.wantClass, pkt.IsClass())
			assert.Equal(t, tt.wantVendor, pkt.IsVendor())
		})
	}
}

func TestSetupPacketRecipient(t *testing.T) {
	tests := []struct {
		name        string
		requestType uint8
		wantRecip   uint8
		wantDevice  bool
		wantIface   bool
		wantEP      bool
	}{
		{"device", 0x00, RequestRecipientDevice, true, false, false},
		{"interface", 0x01, RequestRecipientInterface, false, true, false},
		{"endpoint", 0x02, RequestRecipientEndpoint, false, false, true},
		{"class interface", 0x21, RequestRecipientInterface, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pkt := &SetupPacket{RequestType: tt.requestType}
			assert.Equal(t, tt.wantRecip, pkt.Recipient())
			assert.Equal(t, tt.wantDevice, pkt.IsDeviceRecipient())
			assert.Equal(t, tt.wantIface, pkt.IsInterfaceRecipient())
			assert.Equal(t, tt.wantEP, pkt.IsEndpointRecipient())
		})
	}
}

func TestSetupPacketFields(t *testing.T) {
	pkt := &SetupPacket{Value: 0x0201, Index: 0x0A81}

	assert.Equal(t, uint8(0x02), pkt.DescriptorType())
	assert.Equal(t, uint8(0x01), pkt.DescriptorIndex())
	assert.Equal(t, uint8(0x81), pkt.InterfaceNumber())
	assert.Equal(t, uint8(0x81), pkt.EndpointAddress())
	assert.Equal(t, uint8(0x0A), pkt.EntityID())
	assert.Equal(t, uint8(0x02), pkt.ControlSelector())
}

func TestSetupPacketString(t *testing.T) {
	pkt := &SetupPacket{RequestType: 0x80, Request: 0x06, Value: 0x0100, Length: 18}
	assert.Equal(t,
		"SETUP[IN Standard Device] GET_DESCRIPTOR Value=0x0100 Index=0x0000 Length=18",
		pkt.String())

	class := &SetupPacket{RequestType: 0xA1, Request: 0x02, Value: 0x0100, Index: 0x0A00, Length: 14}
	assert.Equal(t,
		"SETUP[IN Class Interface] 0x02 Value=0x0100 Index=0x0A00 Length=14",
		class.String())
}

func TestRequestName(t *testing.T) {
	assert.Equal(t, "SET_ADDRESS", RequestName(RequestSetAddress))
	assert.Equal(t, "SET_INTERFACE", RequestName(RequestSetInterface))
	assert.Equal(t, "REQUEST(0x42)", RequestName(0x42))
}
