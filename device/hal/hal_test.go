package hal

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSpeedString(t *testing.T) {
	tests := []struct {
		speed Speed
		want  string
	}{
		{SpeedUnknown, "Unknown"},
		{SpeedLow, "Low Speed"},
		{SpeedFull, "Full Speed"},
		{SpeedHigh, "High Speed"},
		{Speed(9), "Unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.speed.String())
		})
	}
}
