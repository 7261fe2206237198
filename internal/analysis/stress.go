package analysis

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/stat"
)

// Spring is the geometry of the SMA coil spring, in meters.
type Spring struct {
	CoilDiameter float64
	WireDiameter float64
	ActiveCoils  float64
}

// DefaultSpring is the 6 mm coil of 1 mm wire used on the rig.
var DefaultSpring = Spring{CoilDiameter: 6e-3, WireDiameter: 1e-3, ActiveCoils: 142}

// Index returns the spring index C = D/d.
func (s Spring) Index() float64 {
	return s.CoilDiameter / s.WireDiameter
}

// WahlFactor is the curvature correction for a spring of index c.
func WahlFactor(c float64) float64 {
	return (4*c-1)/(4*c-4) + 0.615/c
}

// ShearStress returns the corrected shear stress in Pa for a force in N.
func (s Spring) ShearStress(forceN float64) float64 {
	k := WahlFactor(s.Index())
	return 8 * forceN * s.CoilDiameter * k / (math.Pi * math.Pow(s.WireDiameter, 3))
}

// ShearStrain returns the shear strain for a deflection in mm.
func (s Spring) ShearStrain(deflectionMM float64) float64 {
	return deflectionMM * 1e-3 * s.WireDiameter / (math.Pi * s.ActiveCoils * s.CoilDiameter * s.CoilDiameter)
}

// Temperature windows of the two crystal phases, in °C.
const (
	MartensiteMin = 20.0
	MartensiteMax = 35.0
	AusteniteMin  = 55.0
)

// Crystal is a crystal phase of the alloy.
type Crystal int

const (
	Martensite Crystal = iota
	Austenite
)

func (c Crystal) String() string {
	if c == Austenite {
		return "austenite"
	}
	return "martensite"
}

func (c Crystal) contains(t float64) bool {
	if c == Austenite {
		return t >= AusteniteMin
	}
	return t >= MartensiteMin && t <= MartensiteMax
}

// CrystalForce returns the mean corrected force of the groups inside the
// crystal phase window.
func CrystalForce(groups []Group, c Crystal) (float64, bool) {
	var forces []float64
	for _, g := range groups {
		if !c.contains(g.Temperature) {
			continue
		}
		if f, ok := g.Mean(ColCorrectedForce); ok {
			forces = append(forces, f)
		}
	}
	if len(forces) == 0 {
		return 0, false
	}
	return stat.Mean(forces, nil), true
}

// ShearPoint is one experiment reduced to a stress/strain pair.
type ShearPoint struct {
	DeflectionMM float64
	ForceN       float64
	StressMPa    float64
	Strain       float64
}

// Modulus returns τ/γ in MPa.
func (p ShearPoint) Modulus() float64 {
	return p.StressMPa / p.Strain
}

// NewShearPoint computes the stress and strain of a constant-deflection
// experiment.
func (s Spring) NewShearPoint(deflectionMM, forceN float64) ShearPoint {
	return ShearPoint{
		DeflectionMM: deflectionMM,
		ForceN:       forceN,
		StressMPa:    s.ShearStress(forceN) / 1e6,
		Strain:       s.ShearStrain(deflectionMM),
	}
}

// ErrTooFewPoints is returned when a fit needs more points.
var ErrTooFewPoints = errors.New("need at least two points")

// FitShearModulus fits stress = G·strain + b by least squares and returns
// G in MPa.
func FitShearModulus(points []ShearPoint) (float64, error) {
	if len(points) < 2 {
		return 0, ErrTooFewPoints
	}
	x := make([]float64, len(points))
	y := make([]float64, len(points))
	for i, p := range points {
		x[i], y[i] = p.Strain, p.StressMPa
	}
	_, slope := stat.LinearRegression(x, y, nil, false)
	return slope, nil
}
