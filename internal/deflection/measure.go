// Package deflection measures the spring deflection of the test rig from
// two ArUco markers seen by the side camera.
package deflection

import (
	"errors"
	"fmt"

	"sma-lab/pkg/geometry"
)

// DefaultMarkerMM is the printed side length of the rig markers.
const DefaultMarkerMM = 20.0

// Rig geometry subtracted from the raw marker distance.
const (
	MarkerOffsetMM = 30.0
	SpringBaseMM   = 167.0
)

// ErrMarkersNotFound is returned unless exactly markers 0 and 1 are seen.
var ErrMarkersNotFound = errors.New("markers 0 and 1 not found")

// Marker is one detected marker. Corners are in detector order: top-left,
// top-right, bottom-right, bottom-left of the printed pattern.
type Marker struct {
	ID      int
	Corners [4]geometry.Point2D
}

// Center returns the mean of the corners.
func (m Marker) Center() geometry.Point2D {
	return geometry.Centroid(m.Corners[:])
}

// Measure returns the horizontal distance in millimeters between the
// centers of marker 0 and marker 1. The camera is mounted rotated, so the
// spring axis runs along image X. The pixel scale is the mean X extent of
// the four vertical marker edges divided by sizeMM.
func Measure(markers []Marker, sizeMM float64) (float64, error) {
	if sizeMM <= 0 {
		return 0, fmt.Errorf("invalid marker size %v", sizeMM)
	}
	var m0, m1 *Marker
	for i := range markers {
		switch markers[i].ID {
		case 0:
			m0 = &markers[i]
		case 1:
			m1 = &markers[i]
		}
	}
	if len(markers) != 2 || m0 == nil || m1 == nil {
		return 0, ErrMarkersNotFound
	}

	var scale float64
	for _, m := range []*Marker{m0, m1} {
		c := m.Corners
		scale += (c[3].X-c[0].X)/sizeMM + (c[2].X-c[1].X)/sizeMM
	}
	scale /= 4
	if scale == 0 {
		return 0, fmt.Errorf("degenerate marker geometry")
	}

	return (m0.Center().X - m1.Center().X) / scale, nil
}

// Corrected converts a raw marker distance to spring deflection.
func Corrected(rawMM float64) float64 {
	return rawMM - MarkerOffsetMM - SpringBaseMM
}
