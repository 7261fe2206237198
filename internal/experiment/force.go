package experiment

import (
	"errors"
	"fmt"
)

// ErrDegenerateCalibration means a known-weight reading equals the zero
// offset, which would give an infinite scale.
var ErrDegenerateCalibration = errors.New("reading equals zero offset")

// ForceCalibration maps raw load-cell readings to newtons. The relay that
// drives the SMA current shifts the cell, so each relay state has its own
// offset and scale.
type ForceCalibration struct {
	Offset      float64 `json:"offset"`
	Scale       float64 `json:"scale"`
	RelayOffset float64 `json:"relay_offset"`
	RelayScale  float64 `json:"relay_scale"`
}

// DefaultForceCalibration is the identity calibration.
func DefaultForceCalibration() ForceCalibration {
	return ForceCalibration{Scale: 1, RelayScale: 1}
}

// Apply converts a raw reading.
func (c ForceCalibration) Apply(raw float64, relayOn bool) float64 {
	if relayOn {
		return (raw - c.RelayOffset) * c.RelayScale
	}
	return (raw - c.Offset) * c.Scale
}

// CaptureZero stores raw as the zero-newton offset.
func (c *ForceCalibration) CaptureZero(raw float64, relayOn bool) {
	if relayOn {
		c.RelayOffset = raw
	} else {
		c.Offset = raw
	}
}

// CaptureKnown derives the scale from a reading taken under a known load.
func (c *ForceCalibration) CaptureKnown(raw, knownN float64, relayOn bool) error {
	offset := c.Offset
	if relayOn {
		offset = c.RelayOffset
	}
	if raw == offset {
		return fmt.Errorf("relay on=%v: %w", relayOn, ErrDegenerateCalibration)
	}
	if relayOn {
		c.RelayScale = knownN / (raw - offset)
	} else {
		c.Scale = knownN / (raw - offset)
	}
	return nil
}
