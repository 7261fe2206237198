// Package analysis turns an annotated experiment table into per-phase
// temperature curves and spring shear properties.
package analysis

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"
	"strings"

	"sma-lab/internal/dataset"
	"sma-lab/internal/deflection"

	"gonum.org/v1/gonum/stat"
)

// Columns added by Process.
const (
	ColCorrectedDeflection = "deflexion_corregida_mm"
	ColCorrectedForce      = "fuerza_corregida_N"
	ColPhase               = "fase"
	ColKind                = "tipo_experimento"
	ColApplied             = "valor_aplicado"
	ColAppliedUnit         = "unidad_aplicada"
	ColObservations        = "num_observaciones"
)

// Output file names, written next to the source table.
const (
	HeatingFile = "sma_calentamiento.csv"
	CoolingFile = "sma_enfriamiento.csv"
)

// Phase of the heating cycle.
type Phase string

const (
	Heating Phase = "calentamiento"
	Cooling Phase = "enfriamiento"
)

// Kind is what the experiment held constant.
type Kind int

const (
	// ConstantDeflection holds the spring at a fixed stretch and measures
	// force.
	ConstantDeflection Kind = iota
	// ConstantForce hangs a weight and measures deflection.
	ConstantForce
)

func (k Kind) String() string {
	if k == ConstantForce {
		return "fuerza_constante"
	}
	return "deflexion_constante"
}

// ParseKind accepts "deflection"/"force" as well as the column values.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deflection", "deflexion", "deflexion_constante", "1":
		return ConstantDeflection, nil
	case "force", "fuerza", "fuerza_constante", "2":
		return ConstantForce, nil
	}
	return 0, fmt.Errorf("unknown experiment kind %q", s)
}

// Hanger mass and the grams-per-newton factor used for hung weights.
const (
	HangerGrams    = 50.0
	GramsPerNewton = 101.97
)

// HungWeightForce converts a hung weight in grams to the net force on the
// spring in newtons.
func HungWeightForce(grams float64) float64 {
	return (grams - HangerGrams) / GramsPerNewton
}

// Experiment describes the recorded run. Value is the constant deflection
// in mm or the hung weight in grams.
type Experiment struct {
	Kind  Kind
	Value float64
}

// Applied returns the constant the experiment held and its unit.
func (e Experiment) Applied() (float64, string) {
	if e.Kind == ConstantForce {
		return HungWeightForce(e.Value), "N"
	}
	return e.Value, "mm"
}

// averaged are the columns reduced to their mean per temperature.
var averaged = []string{
	dataset.ColCurrent,
	dataset.ColForce,
	dataset.ColVoltageSMA,
	dataset.ColVoltageRef,
	ColCorrectedDeflection,
	ColCorrectedForce,
	dataset.ColForceMod,
}

// Group is the mean of every averaged column at one temperature.
type Group struct {
	Temperature  float64
	Means        map[string]float64
	Observations int
}

// Mean returns the mean of col, false when no row had a value.
func (g Group) Mean(col string) (float64, bool) {
	v, ok := g.Means[col]
	return v, ok
}

// Result is the outcome of Process.
type Result struct {
	Experiment  Experiment
	Rows        int
	HeatingRows int
	CoolingRows int
	Heating     []Group
	Cooling     []Group
}

// Groups returns the groups of a phase.
func (r *Result) Groups(p Phase) []Group {
	if p == Heating {
		return r.Heating
	}
	return r.Cooling
}

// Process adds the corrected deflection and force columns to tbl, splits rows into heating and
// cooling and averages each phase per temperature. Rows without a
// temperature are ignored; rows with missing electrical readings belong
// to neither phase.
func Process(tbl *dataset.Table, exp Experiment) (*Result, error) {
	required := []string{dataset.ColTemperature, dataset.ColRawDistance, dataset.ColCurrent, dataset.ColVoltageSMA}
	if exp.Kind == ConstantDeflection {
		required = append(required, dataset.ColForceMod)
	}
	if missing := tbl.Missing(required...); len(missing) > 0 {
		return nil, fmt.Errorf("missing columns: %s", strings.Join(missing, ", "))
	}

	applied, _ := exp.Applied()
	for i := 0; i < tbl.Len(); i++ {
		if raw, ok := tbl.Float(i, dataset.ColRawDistance); ok {
			tbl.SetFloat(i, ColCorrectedDeflection, deflection.Corrected(raw))
		} else {
			tbl.Set(i, ColCorrectedDeflection, "")
		}
		if exp.Kind == ConstantForce {
			tbl.SetFloat(i, ColCorrectedForce, applied)
		} else {
			tbl.Set(i, ColCorrectedForce, tbl.Get(i, dataset.ColForceMod))
		}
	}

	res := &Result{Experiment: exp, Rows: tbl.Len()}
	var heat, cool []int
	for i := 0; i < tbl.Len(); i++ {
		switch classify(tbl, i) {
		case Heating:
			heat = append(heat, i)
		case Cooling:
			cool = append(cool, i)
		}
	}
	res.HeatingRows, res.CoolingRows = len(heat), len(cool)
	res.Heating = group(tbl, heat)
	res.Cooling = group(tbl, cool)
	return res, nil
}

func classify(tbl *dataset.Table, i int) Phase {
	current, okC := tbl.Float(i, dataset.ColCurrent)
	voltage, okV := tbl.Float(i, dataset.ColVoltageSMA)
	switch {
	case okC && current > 0, okV && voltage > 0:
		return Heating
	case okC && okV && current == 0 && voltage == 0:
		return Cooling
	}
	return ""
}

func group(tbl *dataset.Table, rows []int) []Group {
	type acc struct {
		n    int
		vals map[string][]float64
	}
	byTemp := make(map[float64]*acc)
	for _, i := range rows {
		t, ok := tbl.Float(i, dataset.ColTemperature)
		if !ok || math.IsNaN(t) {
			continue
		}
		a := byTemp[t]
		if a == nil {
			a = &acc{vals: make(map[string][]float64)}
			byTemp[t] = a
		}
		a.n++
		for _, col := range averaged {
			if v, ok := tbl.Float(i, col); ok && !math.IsNaN(v) {
				a.vals[col] = append(a.vals[col], v)
			}
		}
	}

	groups := make([]Group, 0, len(byTemp))
	for t, a := range byTemp {
		g := Group{Temperature: t, Means: make(map[string]float64), Observations: a.n}
		for col, vals := range a.vals {
			g.Means[col] = stat.Mean(vals, nil)
		}
		groups = append(groups, g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Temperature < groups[j].Temperature })
	return groups
}

// Table renders a phase the way the processed CSV files lay it out.
func (r *Result) Table(p Phase) *dataset.Table {
	header := append([]string{dataset.ColTemperature}, averaged...)
	header = append(header, ColPhase, ColKind, ColApplied, ColAppliedUnit, ColObservations)
	out := dataset.New(header...)

	applied, unit := r.Experiment.Applied()
	for i, g := range r.Groups(p) {
		out.Append()
		out.SetFloat(i, dataset.ColTemperature, g.Temperature)
		for _, col := range averaged {
			if v, ok := g.Mean(col); ok {
				out.SetFloat(i, col, v)
			}
		}
		out.Set(i, ColPhase, string(p))
		out.Set(i, ColKind, r.Experiment.Kind.String())
		out.SetFloat(i, ColApplied, applied)
		out.Set(i, ColAppliedUnit, unit)
		out.SetInt(i, ColObservations, g.Observations)
	}
	return out
}

// WriteFiles writes the non-empty phases into dir and returns the paths
// written.
func (r *Result) WriteFiles(dir string) ([]string, error) {
	var written []string
	for _, pf := range []struct {
		phase Phase
		name  string
	}{{Heating, HeatingFile}, {Cooling, CoolingFile}} {
		if len(r.Groups(pf.phase)) == 0 {
			continue
		}
		path := filepath.Join(dir, pf.name)
		if err := r.Table(pf.phase).WriteFile(path); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// ProcessFile processes a CSV file and writes the phase files next to it.
func ProcessFile(csvPath string, exp Experiment) (*Result, []string, error) {
	tbl, err := dataset.ReadFile(csvPath)
	if err != nil {
		return nil, nil, err
	}
	res, err := Process(tbl, exp)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", csvPath, err)
	}
	written, err := res.WriteFiles(filepath.Dir(csvPath))
	return res, written, err
}

// ReadPhase loads a processed phase file.
func ReadPhase(path string) ([]Group, error) {
	tbl, err := dataset.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if !tbl.Has(dataset.ColTemperature) {
		return nil, fmt.Errorf("%s: missing column %s", path, dataset.ColTemperature)
	}
	groups := make([]Group, 0, tbl.Len())
	for i := 0; i < tbl.Len(); i++ {
		t, ok := tbl.Float(i, dataset.ColTemperature)
		if !ok {
			continue
		}
		g := Group{Temperature: t, Means: make(map[string]float64)}
		for _, col := range averaged {
			if v, ok := tbl.Float(i, col); ok {
				g.Means[col] = v
			}
		}
		if n, ok := tbl.Float(i, ColObservations); ok {
			g.Observations = int(n)
		}
		groups = append(groups, g)
	}
	return groups, nil
}
