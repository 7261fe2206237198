package acquisition

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStartCommand(t *testing.T) {
	assert.Equal(t, "START 2000 3000", StartCommand(2000, 3000))
}

func TestParseReading(t *testing.T) {
	r, ok := ParseReading(`{"current_mA": 812.5, "relay_state": true, "force_N": 1.25}`)
	require.True(t, ok)
	require.NotNil(t, r.CurrentMA)
	assert.Equal(t, 812.5, *r.CurrentMA)
	require.NotNil(t, r.RelayState)
	assert.True(t, *r.RelayState)
	assert.Equal(t, 1.25, value(r.ForceRaw))
	assert.Nil(t, r.VoltageSMA)
	assert.Equal(t, 0.0, value(r.VoltageRef))

	for _, line := range []string{"VALIDATED", "", "{broken", "[1,2]"} {
		_, ok := ParseReading(line)
		assert.False(t, ok, line)
	}
}
