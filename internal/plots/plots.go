// Package plots renders experiment charts to PNG files with gonum/plot.
package plots

import (
	"fmt"
	"image/color"
	"os"
	"sort"

	"sma-lab/internal/analysis"
	"sma-lab/internal/dataset"
	"sma-lab/internal/points"

	"golang.org/x/image/colornames"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
	"gonum.org/v1/plot/vg/vgimg"
)

// Default output names.
const (
	TemperaturePointsFile = "temperature_points.png"
	PhaseGridFile         = "temperature_vs_deflexion_force.png"
)

// PhaseChartFile returns the processed chart name for an experiment kind.
func PhaseChartFile(k analysis.Kind) string {
	return "sma_grafica_" + k.String() + ".png"
}

var (
	heatColor  = colornames.Red
	coolColor  = colornames.Blue
	pointColor = []color.Color{colornames.Red, colornames.Green, colornames.Magenta}
)

func newPlot(title, x, y string) *plot.Plot {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = x
	p.Y.Label.Text = y
	p.BackgroundColor = colornames.Snow
	p.Add(plotter.NewGrid())
	p.Legend.Top = true
	p.Legend.Padding = vg.Points(5)
	return p
}

func addSeries(p *plot.Plot, name string, xys plotter.XYs, c color.Color, shape draw.GlyphDrawer) error {
	if len(xys) == 0 {
		return nil
	}
	line, pts, err := plotter.NewLinePoints(xys)
	if err != nil {
		return fmt.Errorf("series %s: %w", name, err)
	}
	line.Color = c
	pts.Color = c
	pts.Shape = shape
	p.Add(line, pts)
	p.Legend.Add(name, line, pts)
	return nil
}

// TemperaturePoints plots temp_point1..3 against seconds since the first
// row. Rows with an unparseable timestamp use the row number instead.
func TemperaturePoints(tbl *dataset.Table, out string) error {
	xs := elapsed(tbl)
	p := newPlot("Sample point temperatures", "Time (s)", "Temperature (°C)")

	plotted := 0
	for slot := 0; slot < points.Slots; slot++ {
		col, _, _ := dataset.PointColumns(slot)
		if !tbl.Has(col) {
			continue
		}
		var xys plotter.XYs
		for i := 0; i < tbl.Len(); i++ {
			if v, ok := tbl.Float(i, col); ok {
				xys = append(xys, plotter.XY{X: xs[i], Y: v})
			}
		}
		if err := addSeries(p, col, xys, pointColor[slot], draw.CircleGlyph{}); err != nil {
			return err
		}
		plotted += len(xys)
	}
	if plotted == 0 {
		return fmt.Errorf("no sample point temperatures to plot")
	}
	return p.Save(10*vg.Inch, 6*vg.Inch, out)
}

func elapsed(tbl *dataset.Table) []float64 {
	xs := make([]float64, tbl.Len())
	ts := tbl.Column(dataset.ColTimestamp)
	var first float64
	haveFirst := false
	for i := range xs {
		xs[i] = float64(i)
		if ts == nil {
			continue
		}
		t, err := dataset.ParseTimestamp(ts[i])
		if err != nil {
			continue
		}
		sec := float64(t.UnixMilli()) / 1000
		if !haveFirst {
			first, haveFirst = sec, true
		}
		xs[i] = sec - first
	}
	return xs
}

// PhaseGrid draws, for every sample point, the mean deflection and force
// per temperature during heating (current on) and cooling.
func PhaseGrid(tbl *dataset.Table, out string) error {
	if tbl.Missing(dataset.ColCurrent) != nil {
		return fmt.Errorf("missing column %s", dataset.ColCurrent)
	}
	yCols := []string{dataset.ColDeflection, dataset.ColForce}

	var heat, cool []int
	for i := 0; i < tbl.Len(); i++ {
		c, ok := tbl.Float(i, dataset.ColCurrent)
		switch {
		case !ok:
		case c != 0:
			heat = append(heat, i)
		default:
			cool = append(cool, i)
		}
	}

	grid := make([][]*plot.Plot, points.Slots)
	for slot := range grid {
		tempCol, _, _ := dataset.PointColumns(slot)
		grid[slot] = make([]*plot.Plot, len(yCols))
		for j, yCol := range yCols {
			p := newPlot(fmt.Sprintf("%s: %s vs Temperature", tempCol, yCol), "Temperature (°C)", yCol)
			if err := addSeries(p, "Heating", groupMean(tbl, heat, tempCol, yCol), heatColor, draw.CircleGlyph{}); err != nil {
				return err
			}
			if err := addSeries(p, "Cooling", groupMean(tbl, cool, tempCol, yCol), coolColor, draw.SquareGlyph{}); err != nil {
				return err
			}
			grid[slot][j] = p
		}
	}

	img := vgimg.New(14*vg.Inch, 18*vg.Inch)
	dc := draw.New(img)
	tiles := draw.Tiles{
		Rows:      len(grid),
		Cols:      len(yCols),
		PadX:      vg.Millimeter * 8,
		PadY:      vg.Millimeter * 10,
		PadTop:    vg.Millimeter * 5,
		PadBottom: vg.Millimeter * 5,
		PadLeft:   vg.Millimeter * 5,
		PadRight:  vg.Millimeter * 5,
	}
	canvases := plot.Align(grid, tiles, dc)
	for i := range grid {
		for j := range grid[i] {
			grid[i][j].Draw(canvases[i][j])
		}
	}
	return writePNG(img, out)
}

// groupMean averages valCol per distinct keyCol value over rows, sorted by
// key.
func groupMean(tbl *dataset.Table, rows []int, keyCol, valCol string) plotter.XYs {
	byKey := make(map[float64][]float64)
	for _, i := range rows {
		k, ok := tbl.Float(i, keyCol)
		if !ok {
			continue
		}
		v, ok := tbl.Float(i, valCol)
		if !ok {
			continue
		}
		byKey[k] = append(byKey[k], v)
	}
	xys := make(plotter.XYs, 0, len(byKey))
	for k, vals := range byKey {
		xys = append(xys, plotter.XY{X: k, Y: stat.Mean(vals, nil)})
	}
	sort.Slice(xys, func(i, j int) bool { return xys[i].X < xys[j].X })
	return xys
}

// PhaseChart draws the processed heating and cooling curves: corrected
// deflection for constant-force runs, corrected force otherwise.
func PhaseChart(res *analysis.Result, out string) error {
	applied, unit := res.Experiment.Applied()
	yCol, yLabel := analysis.ColCorrectedForce, "Corrected force (N)"
	title := fmt.Sprintf("SMA constant deflection (%g %s)", applied, unit)
	if res.Experiment.Kind == analysis.ConstantForce {
		yCol, yLabel = analysis.ColCorrectedDeflection, "Corrected deflection (mm)"
		title = fmt.Sprintf("SMA constant force (%.3f %s)", applied, unit)
	}

	p := newPlot(title, "Temperature (°C)", yLabel)
	series := func(groups []analysis.Group) plotter.XYs {
		var xys plotter.XYs
		for _, g := range groups {
			if v, ok := g.Mean(yCol); ok {
				xys = append(xys, plotter.XY{X: g.Temperature, Y: v})
			}
		}
		return xys
	}
	if err := addSeries(p, "Heating", series(res.Heating), heatColor, draw.CircleGlyph{}); err != nil {
		return err
	}
	if err := addSeries(p, "Cooling", series(res.Cooling), coolColor, draw.CircleGlyph{}); err != nil {
		return err
	}
	return p.Save(12*vg.Inch, 8*vg.Inch, out)
}

func writePNG(img *vgimg.Canvas, out string) error {
	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", out, err)
	}
	png := vgimg.PngCanvas{Canvas: img}
	if _, err := png.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", out, err)
	}
	return f.Close()
}
