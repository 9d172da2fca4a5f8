package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateAttached, "Attached"},
		{StatePowered, "Powered"},
		{StateDefault, "Default"},
		{StateAddress, "Address"},
		{StateConfigured, "Configured"},
		{State(99), "Unknown State (99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.state.String())
		})
	}
}

func TestControlState_String(t *testing.T) {
	assert.Equal(t, "Idle", ControlIdle.String())
	assert.Equal(t, "SetupReceived", ControlSetupReceived.String())
	assert.Equal(t, "TxInProgress", ControlTxInProgress.String())
	assert.Equal(t, "StatusPending", ControlStatusPending.String())
	assert.Equal(t, "ControlState(9)", ControlState(9).String())
}

func TestDirection_String(t *testing.T) {
	assert.Equal(t, "IN", DirectionIn.String())
	assert.Equal(t, "OUT", DirectionOut.String())
}
