// Package analyzer provides the thermal image analyzer window.
package analyzer

import (
	"errors"
	"fmt"
	"path/filepath"

	"sma-lab/internal/app"
	"sma-lab/internal/calibration"
	"sma-lab/internal/session"
	"sma-lab/internal/version"
	"sma-lab/pkg/colorutil"
	"sma-lab/ui/canvas"
	"sma-lab/ui/dialogs"
	"sma-lab/ui/prefs"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"
)

const title = "SMA Thermal Analyzer"

// Window is the analyzer main window.
type Window struct {
	fyne.Window
	app   fyne.App
	state *app.State
	prefs *prefs.Prefs

	canvas    *canvas.ImageCanvas
	statusBar *widget.Label

	imagesLabel      *widget.Label
	datasetLabel     *widget.Label
	calibrationLabel *widget.Label
	frameLabel       *widget.Label
	pointLabels      [3]*fynecanvas.Text
	excludeBtn       *widget.Button
	navButtons       []*widget.Button
	saveBtn          *widget.Button

	fitToWindowItem *fyne.MenuItem
	recentItem      *fyne.MenuItem
}

// New creates the analyzer window.
func New(fyneApp fyne.App, state *app.State, p *prefs.Prefs) *Window {
	w := &Window{
		Window: fyneApp.NewWindow(title),
		app:    fyneApp,
		state:  state,
		prefs:  p,
	}

	w.restoreInputs()
	w.setupUI()
	w.setupMenus()
	w.setupEventHandlers()
	w.setupKeys()
	w.updateControls()

	size := fyne.NewSize(1200, 800)
	if v := p.Get(); v.WindowWidth > 0 && v.WindowHeight > 0 {
		size = fyne.NewSize(v.WindowWidth, v.WindowHeight)
	}
	w.Resize(size)
	return w
}

func (w *Window) setupUI() {
	w.canvas = canvas.NewImageCanvas()
	w.canvas.SetFitToWindow(w.prefs.Get().FitToWindow)
	w.canvas.OnLeftClick(w.onImageClick)
	w.statusBar = widget.NewLabel("Select the images folder, the dataset and the calibration file")

	split := container.NewHSplit(
		container.NewVScroll(w.createSidePanel()),
		container.NewBorder(w.createToolbar(), nil, nil, nil, w.canvas.Container()),
	)
	split.SetOffset(0.25)

	w.SetContent(container.NewBorder(nil, container.NewPadded(w.statusBar), nil, nil, split))
}

func (w *Window) createSidePanel() fyne.CanvasObject {
	in := w.state.Inputs
	w.imagesLabel = pathLabel(in.ImagesDir)
	w.datasetLabel = pathLabel(in.DatasetPath)
	w.calibrationLabel = pathLabel(in.CalibrationPath)

	w.frameLabel = widget.NewLabel("No frame")
	points := container.NewVBox()
	for i := range w.pointLabels {
		t := fynecanvas.NewText(fmt.Sprintf("Point %d: -", i+1), colorutil.PointColors[i])
		t.TextStyle = fyne.TextStyle{Bold: true}
		w.pointLabels[i] = t
		points.Add(t)
	}

	return container.NewVBox(
		widget.NewLabelWithStyle("Inputs", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		widget.NewButton("Images folder...", w.onSelectImages),
		w.imagesLabel,
		widget.NewButton("Dataset...", w.onSelectDataset),
		w.datasetLabel,
		widget.NewButton("Calibration...", w.onSelectCalibration),
		w.calibrationLabel,
		widget.NewButton("Start analysis", w.onStart),
		widget.NewSeparator(),
		widget.NewLabelWithStyle("Frame", fyne.TextAlignLeading, fyne.TextStyle{Bold: true}),
		w.frameLabel,
		points,
	)
}

func pathLabel(path string) *widget.Label {
	l := widget.NewLabel(shortPath(path))
	l.Truncation = fyne.TextTruncateEllipsis
	return l
}

func shortPath(path string) string {
	if path == "" {
		return "(none)"
	}
	return filepath.Base(path)
}

func (w *Window) createToolbar() fyne.CanvasObject {
	first := widget.NewButton("|<", func() { w.navigate(w.state.First) })
	prev := widget.NewButton("<", func() { w.navigate(w.state.Previous) })
	next := widget.NewButton(">", func() { w.navigate(w.state.Next) })
	last := widget.NewButton(">|", func() { w.navigate(w.state.Last) })
	w.navButtons = []*widget.Button{first, prev, next, last}

	w.excludeBtn = widget.NewButton("Exclude", w.onToggleExclude)
	w.saveBtn = widget.NewButton("Save", w.onSave)

	return container.NewHBox(
		first, prev, next, last,
		widget.NewSeparator(),
		w.excludeBtn,
		w.saveBtn,
		widget.NewSeparator(),
		widget.NewLabel("Zoom:"),
		widget.NewButton("-", w.onZoomOut),
		widget.NewButton("+", w.onZoomIn),
		widget.NewButton("Fit", w.onToggleFitToWindow),
		widget.NewButton("1:1", w.onActualSize),
	)
}

func (w *Window) setupMenus() {
	w.recentItem = fyne.NewMenuItem("Open Recent", nil)
	w.updateRecentMenu()

	fileMenu := fyne.NewMenu("File",
		w.recentItem,
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Select Images Folder...", w.onSelectImages),
		fyne.NewMenuItem("Select Dataset...", w.onSelectDataset),
		fyne.NewMenuItem("Select Calibration...", w.onSelectCalibration),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Start Analysis", w.onStart),
		fyne.NewMenuItem("Save", w.onSave),
	)

	editMenu := fyne.NewMenu("Edit",
		fyne.NewMenuItem("Exclude / Include Frame", w.onToggleExclude),
		fyne.NewMenuItemSeparator(),
		fyne.NewMenuItem("Settings...", w.onSettings),
	)

	w.fitToWindowItem = fyne.NewMenuItem("Fit to Window", w.onToggleFitToWindow)
	w.fitToWindowItem.Checked = w.canvas.FitsWindow()
	viewMenu := fyne.NewMenu("View",
		fyne.NewMenuItem("Zoom In", w.onZoomIn),
		fyne.NewMenuItem("Zoom Out", w.onZoomOut),
		w.fitToWindowItem,
		fyne.NewMenuItem("Actual Size", w.onActualSize),
	)

	helpMenu := fyne.NewMenu("Help",
		fyne.NewMenuItem("About", w.onAbout),
	)

	w.SetMainMenu(fyne.NewMainMenu(fileMenu, editMenu, viewMenu, helpMenu))
}

// updateRecentMenu lists the remembered sessions under File > Open Recent.
func (w *Window) updateRecentMenu() {
	recent := w.prefs.Get().Recent
	items := make([]*fyne.MenuItem, 0, len(recent))
	for _, s := range recent {
		s := s
		label := fmt.Sprintf("%s (%s)", filepath.Base(s.DatasetPath), filepath.Base(filepath.Dir(s.DatasetPath)))
		items = append(items, fyne.NewMenuItem(label, func() { w.openRecent(s) }))
	}
	w.recentItem.ChildMenu = fyne.NewMenu("", items...)
	w.recentItem.Disabled = len(items) == 0
}

func (w *Window) openRecent(s prefs.Session) {
	w.confirmDiscard(func() {
		w.setInputs(app.Inputs{ImagesDir: s.ImagesDir, DatasetPath: s.DatasetPath, CalibrationPath: s.CalibrationPath})
		w.start()
	})
}

// setInputs replaces the inputs and refreshes their labels.
func (w *Window) setInputs(in app.Inputs) {
	w.state.Inputs = in
	w.imagesLabel.SetText(shortPath(in.ImagesDir))
	w.datasetLabel.SetText(shortPath(in.DatasetPath))
	w.calibrationLabel.SetText(shortPath(in.CalibrationPath))
}

func (w *Window) setupEventHandlers() {
	w.state.On(app.EventFrameChanged, func(data interface{}) {
		if v, ok := data.(session.View); ok {
			w.showView(v)
		}
	})
	w.state.On(app.EventPointsChanged, func(data interface{}) {
		if v, ok := data.(session.View); ok {
			w.showPoints(v)
		}
	})
	w.state.On(app.EventModified, func(data interface{}) {
		modified, _ := data.(bool)
		t := title
		if in := w.state.Inputs; in.DatasetPath != "" {
			t += " - " + filepath.Base(in.DatasetPath)
		}
		if modified {
			t += " *"
		}
		w.SetTitle(t)
	})
	w.state.On(app.EventProblem, func(data interface{}) {
		if err, ok := data.(error); ok {
			dialog.ShowError(err, w.Window)
		}
	})
	w.state.On(app.EventSaved, func(data interface{}) {
		if r, ok := data.(session.SaveReport); ok {
			w.updateStatus(fmt.Sprintf("Saved %d rows (%d measured, %d auto-filled, %d excluded) to %s",
				r.Rows, r.Measured, r.AutoFilled, r.Excluded, filepath.Base(r.Path)))
		}
	})
}

func (w *Window) setupKeys() {
	w.Canvas().SetOnTypedKey(func(ev *fyne.KeyEvent) {
		switch ev.Name {
		case fyne.KeyLeft:
			w.navigate(w.state.Previous)
		case fyne.KeyRight:
			w.navigate(w.state.Next)
		case fyne.KeyHome:
			w.navigate(w.state.First)
		case fyne.KeyEnd:
			w.navigate(w.state.Last)
		}
	})
}

// updateStatus updates the status bar text.
func (w *Window) updateStatus(text string) {
	w.statusBar.SetText(text)
}

func (w *Window) updateControls() {
	running := w.state.Session() != nil && w.state.Session().Len() > 0
	for _, b := range w.navButtons {
		setEnabled(b, running)
	}
	setEnabled(w.excludeBtn, running)
	setEnabled(w.saveBtn, w.state.Session() != nil)
}

func setEnabled(b *widget.Button, on bool) {
	if on {
		b.Enable()
	} else {
		b.Disable()
	}
}

func (w *Window) showView(v session.View) {
	if v.Frame != nil {
		w.canvas.SetImage(v.Frame.Image)
	} else {
		w.canvas.SetImage(nil)
	}
	w.frameLabel.SetText(fmt.Sprintf("%d / %d\n%s", v.Position+1, v.Total, v.Filename))
	w.showPoints(v)
	if v.Frame == nil {
		w.updateStatus("Could not load " + v.Filename)
	} else {
		w.updateStatus(v.Timestamp)
	}
}

func (w *Window) showPoints(v session.View) {
	var markers []canvas.Marker
	for i, p := range v.Points {
		label := w.pointLabels[i]
		if p == nil {
			label.Text = fmt.Sprintf("Point %d: -", i+1)
			label.Refresh()
			continue
		}
		label.Text = fmt.Sprintf("Point %d: %.2f °C  (%d, %d)", i+1, p.Temperature, p.Pos.X, p.Pos.Y)
		label.Refresh()
		markers = append(markers, canvas.Marker{
			X:     float64(p.Pos.X),
			Y:     float64(p.Pos.Y),
			Color: colorutil.PointColors[i],
			Label: fmt.Sprintf("%.1f", p.Temperature),
		})
	}
	w.canvas.SetMarkers(markers)

	if v.Excluded {
		w.excludeBtn.SetText("Include")
		w.excludeBtn.Importance = widget.DangerImportance
	} else {
		w.excludeBtn.SetText("Exclude")
		w.excludeBtn.Importance = widget.MediumImportance
	}
	w.excludeBtn.Refresh()
}

// restoreInputs fills the inputs not set yet from the last session.
func (w *Window) restoreInputs() {
	v := w.prefs.Get()
	in := &w.state.Inputs
	if in.ImagesDir == "" {
		in.ImagesDir = v.Last.ImagesDir
	}
	if in.DatasetPath == "" {
		in.DatasetPath = v.Last.DatasetPath
	}
	if in.CalibrationPath == "" {
		in.CalibrationPath = v.Last.CalibrationPath
	}
	if v.Bandwidth > 0 {
		w.state.Bandwidth = v.Bandwidth
	}
}

func toSession(in app.Inputs) prefs.Session {
	return prefs.Session{ImagesDir: in.ImagesDir, DatasetPath: in.DatasetPath, CalibrationPath: in.CalibrationPath}
}

// SavePreferences stores the inputs, the view mode and the window size.
func (w *Window) SavePreferences() {
	w.prefs.Remember(toSession(w.state.Inputs))
	size := w.Canvas().Size()
	fit := w.canvas.FitsWindow()
	w.prefs.Update(func(v *prefs.Values) {
		if size.Width > 0 && size.Height > 0 {
			v.WindowWidth, v.WindowHeight = size.Width, size.Height
		}
		v.FitToWindow = fit
	})
	if err := w.prefs.Save(); err != nil {
		w.updateStatus("Failed to save preferences: " + err.Error())
	}
}

// lastDir returns the folder of a remembered path as a ListableURI, or nil.
func lastDir(path string) fyne.ListableURI {
	if path == "" {
		return nil
	}
	listable, err := storage.ListerForURI(storage.NewFileURI(path))
	if err != nil {
		return nil
	}
	return listable
}

func (w *Window) onSelectImages() {
	fd := dialog.NewFolderOpen(func(uri fyne.ListableURI, err error) {
		if err != nil || uri == nil {
			return
		}
		w.state.Inputs.ImagesDir = uri.Path()
		w.imagesLabel.SetText(shortPath(uri.Path()))
	}, w.Window)
	if loc := lastDir(w.state.Inputs.ImagesDir); loc != nil {
		fd.SetLocation(loc)
	}
	fd.Show()
}

func (w *Window) onSelectDataset() {
	w.openCSV(w.state.Inputs.DatasetPath, func(path string) {
		w.state.Inputs.DatasetPath = path
		w.datasetLabel.SetText(shortPath(path))
	})
}

func (w *Window) onSelectCalibration() {
	w.openCSV(w.state.Inputs.CalibrationPath, func(path string) {
		w.state.Inputs.CalibrationPath = path
		w.calibrationLabel.SetText(shortPath(path))
	})
}

func (w *Window) openCSV(current string, picked func(path string)) {
	fd := dialog.NewFileOpen(func(reader fyne.URIReadCloser, err error) {
		if err != nil || reader == nil {
			return
		}
		reader.Close()
		picked(reader.URI().Path())
	}, w.Window)
	fd.SetFilter(storage.NewExtensionFileFilter([]string{".csv"}))
	if current != "" {
		if loc := lastDir(filepath.Dir(current)); loc != nil {
			fd.SetLocation(loc)
		}
	}
	fd.Show()
}

// StartAnalysis opens a session on the selected inputs.
func (w *Window) StartAnalysis() {
	w.start()
}

func (w *Window) onStart() {
	w.confirmDiscard(w.start)
}

// confirmDiscard runs next, asking first when unsaved points would be lost.
func (w *Window) confirmDiscard(next func()) {
	if !w.state.Modified {
		next()
		return
	}
	dialog.ShowConfirm("Unsaved points", "Discard the points of the running analysis?", func(ok bool) {
		if ok {
			next()
		}
	}, w.Window)
}

func (w *Window) start() {
	if err := w.state.Start(); err != nil {
		dialog.ShowError(err, w.Window)
	}
	w.updateControls()
	w.SavePreferences()
	w.updateRecentMenu()
	if menu := w.MainMenu(); menu != nil {
		menu.Refresh()
	}
	if c := w.state.Session(); c != nil && c.Len() == 0 {
		w.canvas.SetImage(nil)
		w.canvas.SetMarkers(nil)
		w.frameLabel.SetText("No frame")
	}
}

func (w *Window) navigate(move func() error) {
	err := move()
	switch {
	case err == nil, errors.Is(err, app.ErrNoSession), errors.Is(err, session.ErrNothingToShow):
	case errors.Is(err, app.ErrBusy):
		w.updateStatus("Saving... wait for the save to finish")
	default:
		w.updateStatus(err.Error())
	}
}

func (w *Window) onImageClick(x, y int) {
	p := w.state.Click(x, y)
	switch {
	case p.Ignored:
		if p.Reason != nil && !errors.Is(p.Reason, session.ErrNothingToShow) && !errors.Is(p.Reason, app.ErrNoSession) {
			w.updateStatus(fmt.Sprintf("Click at (%d, %d) ignored: %v", x, y, p.Reason))
		}
	case p.DefaultsCommitted:
		w.updateStatus("Default point layout saved; new frames start with these points")
	case p.Moved:
		w.updateStatus(fmt.Sprintf("Point %d moved to (%d, %d)", p.Slot+1, x, y))
	default:
		w.updateStatus(fmt.Sprintf("Point %d placed at (%d, %d)", p.Slot+1, x, y))
	}
}

func (w *Window) onToggleExclude() {
	excluded, err := w.state.ToggleExclude()
	if err != nil {
		return
	}
	if excluded {
		w.updateStatus("Frame excluded; its row will be dropped on save")
	} else {
		w.updateStatus("Frame included")
	}
}

func (w *Window) onSave() {
	if w.state.Session() == nil || w.state.Busy() {
		return
	}
	if n := w.state.Pending(); n > 0 {
		msg := fmt.Sprintf("%d images unprocessed.\nFill them with the default points before saving?", n)
		dialog.ShowConfirm("Auto-fill", msg, func(ok bool) {
			w.runSave(ok)
		}, w.Window)
		return
	}
	w.runSave(false)
}

func (w *Window) runSave(autoFill bool) {
	bar := widget.NewProgressBar()
	progress := dialog.NewCustomWithoutButtons("Saving", container.NewVBox(widget.NewLabel("Writing dataset..."), bar), w.Window)
	progress.Show()
	w.setSaving(true)

	go func() {
		defer w.setSaving(false)
		_, err := w.state.Save(autoFill, func(current, total int) {
			bar.SetValue(float64(current) / float64(total))
		})
		progress.Hide()
		if err != nil {
			dialog.ShowError(err, w.Window)
		}
	}()
}

// setSaving locks the controls that reach the session while a save runs.
func (w *Window) setSaving(saving bool) {
	if saving {
		for _, b := range append([]*widget.Button{w.excludeBtn, w.saveBtn}, w.navButtons...) {
			b.Disable()
		}
		w.updateStatus("Saving...")
		return
	}
	w.updateControls()
}

func (w *Window) onSettings() {
	settings := &dialogs.Settings{Bandwidth: w.state.Bandwidth}
	if path := w.state.Inputs.CalibrationPath; path != "" {
		cal, err := calibration.LoadFile(path)
		if err != nil {
			w.updateStatus(err.Error())
		} else {
			settings.Calibration = cal
		}
	}
	dialogs.NewSettingsDialog(settings, w.Window, func(s *dialogs.Settings) {
		w.state.Bandwidth = s.Bandwidth
		w.prefs.Update(func(v *prefs.Values) { v.Bandwidth = s.Bandwidth })
		if w.state.Session() != nil {
			w.updateStatus("Bandwidth applies from the next analysis start")
		}
	}).Show()
}

func (w *Window) onZoomIn() {
	w.disableFitToWindow()
	w.canvas.ZoomIn()
}

func (w *Window) onZoomOut() {
	w.disableFitToWindow()
	w.canvas.ZoomOut()
}

func (w *Window) onToggleFitToWindow() {
	enabled := !w.canvas.FitsWindow()
	w.canvas.SetFitToWindow(enabled)
	w.fitToWindowItem.Checked = enabled
}

func (w *Window) onActualSize() {
	w.disableFitToWindow()
	w.canvas.SetZoom(1.0)
}

func (w *Window) disableFitToWindow() {
	if w.canvas.FitsWindow() {
		w.canvas.SetFitToWindow(false)
		w.fitToWindowItem.Checked = false
	}
}

func (w *Window) onAbout() {
	dialog.ShowInformation("About "+title,
		fmt.Sprintf("%s v%s\n\n"+
			"Reads sample point temperatures from thermal camera\n"+
			"frames of shape memory alloy experiments.\n\n"+
			"Built: %s\n"+
			"Commit: %s",
			title, version.Version, version.BuildTime, version.GitCommit),
		w.Window)
}
