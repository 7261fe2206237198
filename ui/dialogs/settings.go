// Package dialogs provides application dialogs.
package dialogs

import (
	"errors"
	"fmt"
	"image/color"
	"math"
	"strconv"
	"strings"

	"sma-lab/internal/calibration"
	"sma-lab/internal/estimator"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/widget"
)

// Settings are the analysis parameters edited by SettingsDialog.
type Settings struct {
	Bandwidth float64

	// Calibration, when set, is listed and used for the color picker.
	Calibration *calibration.Table
}

// SettingsDialog edits the estimator bandwidth and previews the
// calibration it applies to.
type SettingsDialog struct {
	settings *Settings
	window   fyne.Window

	bandwidthEntry *widget.Entry

	// Color picker
	rEntry       *widget.Entry
	gEntry       *widget.Entry
	bEntry       *widget.Entry
	pickerSwatch *fynecanvas.Rectangle
	pickerResult *widget.Label

	// Callback
	onSave func(*Settings)
}

// NewSettingsDialog creates a new settings dialog.
func NewSettingsDialog(settings *Settings, window fyne.Window, onSave func(*Settings)) *SettingsDialog {
	return &SettingsDialog{
		settings: settings,
		window:   window,
		onSave:   onSave,
	}
}

// Show displays the dialog.
func (d *SettingsDialog) Show() {
	content := d.createContent()

	dlg := dialog.NewCustomConfirm(
		"Analysis Settings",
		"Save",
		"Cancel",
		content,
		func(save bool) {
			if !save {
				return
			}
			if err := d.applyChanges(); err != nil {
				dialog.ShowError(err, d.window)
				return
			}
			if d.onSave != nil {
				d.onSave(d.settings)
			}
		},
		d.window,
	)
	dlg.Resize(fyne.NewSize(420, 560))
	dlg.Show()
}

func (d *SettingsDialog) createContent() fyne.CanvasObject {
	d.bandwidthEntry = widget.NewEntry()
	d.bandwidthEntry.SetText(strconv.FormatFloat(d.settings.Bandwidth, 'g', -1, 64))
	d.bandwidthEntry.OnChanged = func(string) { d.updatePicker() }

	estimatorForm := widget.NewForm(
		widget.NewFormItem("Bandwidth", d.bandwidthEntry),
	)

	d.rEntry = widget.NewEntry()
	d.gEntry = widget.NewEntry()
	d.bEntry = widget.NewEntry()
	for _, e := range []*widget.Entry{d.rEntry, d.gEntry, d.bEntry} {
		e.SetText("128")
		e.OnChanged = func(string) { d.updatePicker() }
	}
	d.pickerSwatch = fynecanvas.NewRectangle(color.RGBA{R: 128, G: 128, B: 128, A: 255})
	d.pickerSwatch.SetMinSize(fyne.NewSize(40, 24))
	d.pickerResult = widget.NewLabel("")

	picker := container.NewVBox(
		container.NewGridWithColumns(6,
			widget.NewLabel("R"), d.rEntry,
			widget.NewLabel("G"), d.gEntry,
			widget.NewLabel("B"), d.bEntry,
		),
		container.NewHBox(d.pickerSwatch, d.pickerResult),
	)
	d.updatePicker()

	return container.NewVBox(
		widget.NewCard("Estimator", "", estimatorForm),
		widget.NewCard("Color Picker", "", picker),
		widget.NewCard("Calibration", d.calibrationSummary(), d.calibrationList()),
	)
}

func (d *SettingsDialog) calibrationSummary() string {
	cal := d.settings.Calibration
	if cal == nil {
		return "No calibration file selected"
	}
	lo, hi := cal.Range()
	return fmt.Sprintf("%d samples, %.1f to %.1f °C", cal.Len(), lo, hi)
}

func (d *SettingsDialog) calibrationList() fyne.CanvasObject {
	cal := d.settings.Calibration
	if cal == nil {
		return widget.NewLabel("")
	}
	rows := container.NewVBox()
	for _, s := range cal.Samples() {
		swatch := fynecanvas.NewRectangle(color.RGBA{R: s.Color.R, G: s.Color.G, B: s.Color.B, A: 255})
		swatch.SetMinSize(fyne.NewSize(40, 18))
		rows.Add(container.NewHBox(swatch, widget.NewLabel(fmt.Sprintf("%.2f °C  %s", s.Temperature, s.Color))))
	}
	scroll := container.NewVScroll(rows)
	scroll.SetMinSize(fyne.NewSize(360, 200))
	return scroll
}

// updatePicker recolors the swatch and estimates its temperature.
func (d *SettingsDialog) updatePicker() {
	if d.pickerSwatch == nil {
		return
	}
	r, g, b, ok := parseRGB(d.rEntry.Text, d.gEntry.Text, d.bEntry.Text)
	if !ok {
		d.pickerResult.SetText("channels are 0-255")
		return
	}
	d.pickerSwatch.FillColor = color.RGBA{R: r, G: g, B: b, A: 255}
	fynecanvas.Refresh(d.pickerSwatch)

	bw, err := ParseBandwidth(d.bandwidthEntry.Text)
	switch {
	case err != nil:
		d.pickerResult.SetText(err.Error())
	case d.settings.Calibration == nil:
		d.pickerResult.SetText("-")
	default:
		t := estimator.Estimate(d.settings.Calibration, r, g, b, bw)
		d.pickerResult.SetText(fmt.Sprintf("%.2f °C", t))
	}
}

func (d *SettingsDialog) applyChanges() error {
	bw, err := ParseBandwidth(d.bandwidthEntry.Text)
	if err != nil {
		return err
	}
	d.settings.Bandwidth = bw
	return nil
}

// ParseBandwidth parses a non-negative finite bandwidth.
func ParseBandwidth(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("bandwidth %q is not a number", s)
	}
	if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, errors.New("bandwidth must be a non-negative number")
	}
	return v, nil
}

func parseRGB(rs, gs, bs string) (r, g, b uint8, ok bool) {
	var ch [3]uint8
	for i, s := range []string{rs, gs, bs} {
		v, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil || v < 0 || v > 255 {
			return 0, 0, 0, false
		}
		ch[i] = uint8(v)
	}
	return ch[0], ch[1], ch[2], true
}
