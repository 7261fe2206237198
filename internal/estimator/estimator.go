// Package estimator infers temperatures from thermal false-color pixels.
//
// The inference is a Gaussian-kernel weighted average over the calibration
// samples (Nadaraya-Watson regression in RGB space). Colors far from every
// sample fall back to the nearest sample's temperature.
package estimator

import (
	"fmt"
	"math"

	"sma-lab/internal/calibration"
	"sma-lab/pkg/colorutil"

	"gonum.org/v1/gonum/floats"
)

// DefaultBandwidth is the kernel sharpness used by the lab tools.
const DefaultBandwidth = 10.0

// weightFloor is the total kernel weight below which the estimate switches
// to the nearest sample.
const weightFloor = 1e-8

// Estimate returns the inferred temperature for the color (r, g, b).
// bandwidth must be non-negative.
func Estimate(table *calibration.Table, r, g, b uint8, bandwidth float64) float64 {
	c := colorutil.RGB{R: r, G: g, B: b}
	n := table.Len()

	dist := make([]float64, n)
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		d := c.Distance(table.Sample(i).Color)
		dist[i] = d
		weights[i] = math.Exp(-bandwidth * d * d)
	}

	temps := table.Temperatures()
	sum := floats.Sum(weights)
	if sum < weightFloor {
		return temps[floats.MinIdx(dist)]
	}

	floats.Scale(1/sum, weights)
	est := floats.Dot(weights, temps)

	// Normalized weights can overshoot the calibrated range by a rounding ulp.
	lo, hi := table.Range()
	return math.Max(lo, math.Min(hi, est))
}

// Estimator binds a calibration table to a bandwidth.
type Estimator struct {
	table     *calibration.Table
	bandwidth float64
}

// New creates an estimator. A nil table or a negative bandwidth is rejected.
func New(table *calibration.Table, bandwidth float64) (*Estimator, error) {
	if table == nil {
		return nil, fmt.Errorf("estimator: %w", calibration.ErrMalformedCalibration)
	}
	if bandwidth < 0 || math.IsNaN(bandwidth) || math.IsInf(bandwidth, 0) {
		return nil, fmt.Errorf("estimator: invalid bandwidth %v", bandwidth)
	}
	return &Estimator{table: table, bandwidth: bandwidth}, nil
}

// Temperature infers the temperature of a color.
func (e *Estimator) Temperature(c colorutil.RGB) float64 {
	return Estimate(e.table, c.R, c.G, c.B, e.bandwidth)
}

// Bandwidth returns the kernel bandwidth.
func (e *Estimator) Bandwidth() float64 {
	return e.bandwidth
}

// Table returns the calibration table.
func (e *Estimator) Table() *calibration.Table {
	return e.table
}
