// Package calibration holds the RGB→temperature reference table used to read
// thermal-camera false-color images.
package calibration

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"sma-lab/internal/dataset"
	"sma-lab/pkg/colorutil"
)

// ErrMalformedCalibration matches every *MalformedCalibrationError.
var ErrMalformedCalibration = errors.New("malformed calibration table")

// MalformedCalibrationError reports why a calibration table was rejected.
// Row is the 1-based data row, or 0 when the problem is not row specific.
type MalformedCalibrationError struct {
	Row    int
	Column string
	Reason string
}

func (e *MalformedCalibrationError) Error() string {
	switch {
	case e.Row > 0:
		return fmt.Sprintf("malformed calibration table: row %d, column %s: %s", e.Row, e.Column, e.Reason)
	case e.Column != "":
		return fmt.Sprintf("malformed calibration table: column %s: %s", e.Column, e.Reason)
	default:
		return "malformed calibration table: " + e.Reason
	}
}

// Is makes errors.Is(err, ErrMalformedCalibration) work for wrapped errors.
func (e *MalformedCalibrationError) Is(target error) bool {
	return target == ErrMalformedCalibration
}

// Sample is one reference color with its measured temperature.
type Sample struct {
	Temperature float64
	Color       colorutil.RGB
}

// Table is an immutable, non-empty set of calibration samples.
type Table struct {
	samples []Sample
	temps   []float64
	minT    float64
	maxT    float64
}

// New builds a table from samples. An empty slice is rejected because no
// temperature can be inferred from it.
func New(samples []Sample) (*Table, error) {
	if len(samples) == 0 {
		return nil, &MalformedCalibrationError{Reason: "no samples"}
	}

	t := &Table{
		samples: append([]Sample(nil), samples...),
		temps:   make([]float64, len(samples)),
		minT:    math.Inf(1),
		maxT:    math.Inf(-1),
	}
	for i, s := range samples {
		if math.IsNaN(s.Temperature) || math.IsInf(s.Temperature, 0) {
			return nil, &MalformedCalibrationError{Row: i + 1, Column: dataset.ColCalTemperature, Reason: "not a finite number"}
		}
		t.temps[i] = s.Temperature
		t.minT = math.Min(t.minT, s.Temperature)
		t.maxT = math.Max(t.maxT, s.Temperature)
	}
	return t, nil
}

// Load reads a table with Temperature, R, G and B columns. Channel values may
// be written as decimals; they are rounded to the nearest 8-bit level.
func Load(tbl *dataset.Table) (*Table, error) {
	required := []string{dataset.ColCalTemperature, dataset.ColCalR, dataset.ColCalG, dataset.ColCalB}
	if missing := tbl.Missing(required...); len(missing) > 0 {
		return nil, &MalformedCalibrationError{
			Column: strings.Join(missing, ", "),
			Reason: "missing column",
		}
	}

	samples := make([]Sample, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		temp, err := parseNumber(tbl.Get(i, dataset.ColCalTemperature))
		if err != nil {
			return nil, &MalformedCalibrationError{Row: i + 1, Column: dataset.ColCalTemperature, Reason: err.Error()}
		}

		var ch [3]uint8
		for j, col := range []string{dataset.ColCalR, dataset.ColCalG, dataset.ColCalB} {
			v, err := parseNumber(tbl.Get(i, col))
			if err != nil {
				return nil, &MalformedCalibrationError{Row: i + 1, Column: col, Reason: err.Error()}
			}
			v = math.Round(v)
			if v < 0 || v > 255 {
				return nil, &MalformedCalibrationError{Row: i + 1, Column: col, Reason: "outside 0-255"}
			}
			ch[j] = uint8(v)
		}

		samples = append(samples, Sample{
			Temperature: temp,
			Color:       colorutil.RGB{R: ch[0], G: ch[1], B: ch[2]},
		})
	}

	return New(samples)
}

// LoadFile reads a calibration CSV from disk.
func LoadFile(path string) (*Table, error) {
	tbl, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, err := Load(tbl)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Len returns the number of samples.
func (t *Table) Len() int {
	return len(t.samples)
}

// Sample returns the i-th sample.
func (t *Table) Sample(i int) Sample {
	return t.samples[i]
}

// Samples returns a copy of all samples in load order.
func (t *Table) Samples() []Sample {
	return append([]Sample(nil), t.samples...)
}

// Temperatures returns the sample temperatures in load order. The slice is
// shared; callers must not modify it.
func (t *Table) Temperatures() []float64 {
	return t.temps
}

// Range returns the lowest and highest calibrated temperature.
func (t *Table) Range() (min, max float64) {
	return t.minT, t.maxT
}

func parseNumber(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, errors.New("empty value")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("not a number: %q", s)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("not a finite number: %q", s)
	}
	return v, nil
}
