// Package session drives an analysis of one experiment: navigation over the
// matched frames, point placement, exclusions and the final merge into the
// experiment dataset.
package session

import (
	"errors"
	"fmt"
	"path/filepath"

	"sma-lab/internal/calibration"
	"sma-lab/internal/dataset"
	"sma-lab/internal/estimator"
	"sma-lab/internal/image"
	"sma-lab/internal/logging"
	"sma-lab/internal/match"
	"sma-lab/internal/points"

	"github.com/sirupsen/logrus"
)

// Loader decodes the frame at path.
type Loader func(path string) (*image.Frame, error)

// Persister keeps a copy of the point store between runs.
type Persister interface {
	LoadSnapshot(key string) (points.Snapshot, bool, error)
	SaveSnapshot(key string, snap points.Snapshot) error
}

// Options configures Open.
type Options struct {
	DatasetPath string
	ImagesDir   string

	// Calibration is used as is when set; otherwise CalibrationPath is read.
	Calibration     *calibration.Table
	CalibrationPath string

	// Bandwidth of the estimator; zero selects estimator.DefaultBandwidth.
	Bandwidth float64

	Loader    Loader
	Persister Persister
	Logger    logrus.FieldLogger
}

// View is what the user sees at the cursor.
type View struct {
	Position  int
	Total     int
	Timestamp string
	Filename  string
	Frame     *image.Frame
	Points    [points.Slots]*points.Sample
	Excluded  bool
}

// Placement is the outcome of a click.
type Placement struct {
	Slot    int
	Moved   bool
	Ignored bool
	Reason  error

	// DefaultsCommitted is set on the click that committed the default
	// layout.
	DefaultsCommitted bool
}

// Controller owns all state of one analysis session. It is not safe for
// concurrent use.
type Controller struct {
	opts Options
	log  logrus.FieldLogger

	data     *dataset.Table
	est      *estimator.Estimator
	store    *points.Store
	index    match.Index
	problems []error

	cursor int
	frame  *image.Frame
}

// Open loads the dataset and calibration and pairs rows with images.
// Dataset problems that leave nothing to analyze are reported through
// Problems, not as an error; the returned controller then has an empty
// index. Unreadable files and a malformed calibration are errors.
func Open(opts Options) (*Controller, error) {
	if opts.Loader == nil {
		opts.Loader = image.Load
	}
	if opts.Bandwidth == 0 {
		opts.Bandwidth = estimator.DefaultBandwidth
	}
	log := logging.OrDiscard(opts.Logger)

	cal := opts.Calibration
	if cal == nil {
		var err error
		if cal, err = calibration.LoadFile(opts.CalibrationPath); err != nil {
			return nil, err
		}
	}
	est, err := estimator.New(cal, opts.Bandwidth)
	if err != nil {
		return nil, err
	}

	data, err := dataset.ReadFile(opts.DatasetPath)
	if err != nil {
		return nil, err
	}

	c := &Controller{
		opts:   opts,
		log:    log.WithField("dataset", filepath.Base(opts.DatasetPath)),
		data:   data,
		est:    est,
		store:  points.NewStore(est),
		cursor: -1,
	}

	if missing := data.Missing(dataset.ColTimestamp); len(missing) > 0 {
		c.report(&MissingColumnsError{Path: opts.DatasetPath, Columns: missing})
		return c, nil
	}
	if missing := data.Missing(dataset.ExperimentColumns...); len(missing) > 0 {
		c.log.WithField("columns", missing).Warn("Dataset lacks experiment columns")
	}

	files, err := match.ListImages(opts.ImagesDir)
	if err != nil {
		return nil, err
	}

	timestamps := data.Column(dataset.ColTimestamp)
	idx, unmatched := match.BuildIndex(timestamps, files)
	for _, row := range unmatched {
		c.report(&UnmatchedTimestampWarning{Row: row, Timestamp: timestamps[row]})
	}
	c.index = idx
	if len(idx) == 0 {
		c.report(ErrNoImages)
	}

	c.log.WithFields(logrus.Fields{
		"rows":      data.Len(),
		"images":    len(files),
		"matched":   len(idx),
		"unmatched": len(unmatched),
	}).Info("Analysis session opened")

	if err := c.resume(); err != nil {
		c.log.WithError(err).Warn("Could not resume previous session")
	}
	return c, nil
}

func (c *Controller) report(problem error) {
	c.problems = append(c.problems, problem)
	var warn *UnmatchedTimestampWarning
	if errors.As(problem, &warn) {
		c.log.WithField("timestamp", warn.Timestamp).Debug(problem.Error())
		return
	}
	c.log.Warn(problem.Error())
}

func (c *Controller) resume() error {
	if c.opts.Persister == nil {
		return nil
	}
	snap, ok, err := c.opts.Persister.LoadSnapshot(c.opts.DatasetPath)
	if err != nil || !ok {
		return err
	}
	if err := c.store.Restore(snap); err != nil {
		return err
	}
	c.log.WithField("records", c.store.Len()).Info("Resumed previous session")
	return nil
}

// Problems returns the non-fatal conditions found while opening.
func (c *Controller) Problems() []error {
	return append([]error(nil), c.problems...)
}

// Len returns the number of navigable frames.
func (c *Controller) Len() int {
	return len(c.index)
}

// Index returns the navigation index.
func (c *Controller) Index() match.Index {
	return append(match.Index(nil), c.index...)
}

// Estimator returns the temperature estimator of the session.
func (c *Controller) Estimator() *estimator.Estimator {
	return c.est
}

// Defaults returns the committed default layout.
func (c *Controller) Defaults() (points.Defaults, bool) {
	return c.store.Defaults()
}

// First moves to the first frame.
func (c *Controller) First() (View, error) { return c.Goto(0) }

// Last moves to the last frame.
func (c *Controller) Last() (View, error) { return c.Goto(len(c.index) - 1) }

// Previous moves back one frame, staying on the first.
func (c *Controller) Previous() (View, error) {
	if c.cursor <= 0 {
		return c.Goto(0)
	}
	return c.Goto(c.cursor - 1)
}

// Next moves forward one frame, staying on the last.
func (c *Controller) Next() (View, error) {
	if c.cursor >= len(c.index)-1 {
		return c.Goto(len(c.index) - 1)
	}
	return c.Goto(c.cursor + 1)
}

// Goto moves the cursor to position i. A frame seen for the first time gets
// the default layout when one is committed. When the frame cannot be loaded
// the cursor still moves and the error is returned with the view.
func (c *Controller) Goto(i int) (View, error) {
	if len(c.index) == 0 {
		return View{}, ErrNothingToShow
	}
	if i < 0 || i >= len(c.index) {
		return View{}, fmt.Errorf("position %d out of range [0,%d)", i, len(c.index))
	}

	c.cursor = i
	entry := c.index[i]
	frame, err := c.opts.Loader(filepath.Join(c.opts.ImagesDir, entry.Filename))
	if err != nil {
		c.frame = nil
		c.log.WithError(err).WithField("image", entry.Filename).Error("Failed to load image")
		return c.view(), err
	}
	c.frame = frame

	rec, seen := c.store.Record(entry.Timestamp)
	if !seen {
		rec = c.store.Ensure(entry.Timestamp)
		if _, err := c.store.ApplyDefaults(rec, frame); err != nil {
			c.log.WithError(err).WithField("timestamp", entry.Timestamp).Warn("Default points skipped")
		}
	}
	return c.view(), nil
}

// Current returns the view at the cursor.
func (c *Controller) Current() (View, error) {
	if c.cursor < 0 {
		return View{}, ErrNothingToShow
	}
	return c.view(), nil
}

func (c *Controller) view() View {
	entry := c.index[c.cursor]
	v := View{
		Position:  c.cursor,
		Total:     len(c.index),
		Timestamp: entry.Timestamp,
		Filename:  entry.Filename,
		Frame:     c.frame,
	}
	if rec, ok := c.store.Record(entry.Timestamp); ok {
		v.Points = rec.Points
		v.Excluded = rec.Excluded
	}
	return v
}

// Click places or moves a point on the current frame. Clicks that cannot
// be honored are reported as ignored.
func (c *Controller) Click(x, y int) Placement {
	if c.cursor < 0 || c.frame == nil {
		return Placement{Slot: -1, Ignored: true, Reason: ErrNothingToShow}
	}

	_, hadDefaults := c.store.Defaults()
	rec := c.store.Ensure(c.index[c.cursor].Timestamp)
	slot, moved, err := c.store.PlaceOrMove(rec, x, y, c.frame)
	if err != nil {
		c.log.WithError(err).WithFields(logrus.Fields{"x": x, "y": y}).Debug("Click ignored")
		return Placement{Slot: -1, Ignored: true, Reason: err}
	}

	_, hasDefaults := c.store.Defaults()
	p := Placement{Slot: slot, Moved: moved, DefaultsCommitted: hasDefaults && !hadDefaults}
	if p.DefaultsCommitted {
		c.log.Info("Default point layout committed")
	}
	return p
}

// ToggleExclude flips the exclusion flag of the current frame and returns
// the new state. Excluding discards the frame's points.
func (c *Controller) ToggleExclude() (bool, error) {
	if c.cursor < 0 {
		return false, ErrNothingToShow
	}
	rec := c.store.Ensure(c.index[c.cursor].Timestamp)
	c.store.SetExcluded(rec, !rec.Excluded)
	c.log.WithFields(logrus.Fields{
		"timestamp": rec.Timestamp,
		"excluded":  rec.Excluded,
	}).Info("Exclusion toggled")
	return rec.Excluded, nil
}
