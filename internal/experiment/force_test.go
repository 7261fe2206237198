package experiment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForceCalibrationPerRelayState(t *testing.T) {
	c := DefaultForceCalibration()
	assert.Equal(t, 5.0, c.Apply(5, false))
	assert.Equal(t, 5.0, c.Apply(5, true))

	c.CaptureZero(100, false)
	require.NoError(t, c.CaptureKnown(300, 10, false))
	assert.InDelta(t, 0.05, c.Scale, 1e-12)
	assert.InDelta(t, 5.0, c.Apply(200, false), 1e-12)

	c.CaptureZero(120, true)
	require.NoError(t, c.CaptureKnown(220, 10, true))
	assert.InDelta(t, 0.1, c.RelayScale, 1e-12)
	assert.InDelta(t, 2.0, c.Apply(140, true), 1e-12)

	// The relay-off calibration is untouched.
	assert.Equal(t, 100.0, c.Offset)
}

func TestCaptureKnownAtOffsetFails(t *testing.T) {
	c := DefaultForceCalibration()
	c.CaptureZero(50, false)
	err := c.CaptureKnown(50, 1, false)
	assert.ErrorIs(t, err, ErrDegenerateCalibration)
	assert.Equal(t, 1.0, c.Scale)
}
