package session

import (
	"path/filepath"

	"sma-lab/internal/dataset"
	"sma-lab/internal/match"
	"sma-lab/internal/points"

	"github.com/sirupsen/logrus"
)

// SaveOptions configures Save.
type SaveOptions struct {
	// AutoFill samples every pending frame at the default layout first.
	AutoFill bool

	// Progress receives (current, total) after each auto-filled frame.
	Progress func(current, total int)

	// Path overrides the output file. Empty writes back to the dataset.
	Path string
}

// SaveReport summarizes a save.
type SaveReport struct {
	Path       string
	Rows       int
	Measured   int
	AutoFilled int
	Failed     int
	Excluded   int
}

// Pending returns the frames auto-fill would process: matched frames that
// were never visited, only when a default layout is committed.
func (c *Controller) Pending() []match.Entry {
	if _, ok := c.store.Defaults(); !ok {
		return nil
	}
	var pending []match.Entry
	for _, e := range c.index {
		if _, seen := c.store.Record(e.Timestamp); !seen {
			pending = append(pending, e)
		}
	}
	return pending
}

// Save merges the point records into the dataset and writes it. Rows of
// excluded timestamps are dropped; rows without a record pass through.
func (c *Controller) Save(opts SaveOptions) (SaveReport, error) {
	if !c.data.Has(dataset.ColTimestamp) {
		return SaveReport{}, ErrNoDataset
	}
	report := SaveReport{Path: opts.Path}
	if report.Path == "" {
		report.Path = c.opts.DatasetPath
	}

	if opts.AutoFill {
		report.AutoFilled, report.Failed = c.autoFill(opts.Progress)
	}

	out := c.data.Subset(func(i int) bool {
		rec, ok := c.store.Record(c.data.Get(i, dataset.ColTimestamp))
		return !ok || !rec.Excluded
	})
	report.Excluded = c.data.Len() - out.Len()

	for slot := 0; slot < points.Slots; slot++ {
		temp, x, y := dataset.PointColumns(slot)
		out.EnsureColumn(temp)
		out.EnsureColumn(x)
		out.EnsureColumn(y)
	}

	for i := 0; i < out.Len(); i++ {
		rec, ok := c.store.Record(out.Get(i, dataset.ColTimestamp))
		if !ok || rec.Count() == 0 {
			continue
		}
		report.Measured++
		for slot, p := range rec.Points {
			if p == nil {
				continue
			}
			temp, x, y := dataset.PointColumns(slot)
			out.SetFloat(i, temp, p.Temperature)
			out.SetInt(i, x, p.Pos.X)
			out.SetInt(i, y, p.Pos.Y)
		}
	}
	report.Rows = out.Len()

	if err := out.WriteFile(report.Path); err != nil {
		return report, err
	}

	if c.opts.Persister != nil {
		if err := c.opts.Persister.SaveSnapshot(c.opts.DatasetPath, c.store.Snapshot()); err != nil {
			c.log.WithError(err).Warn("Failed to persist session")
		}
	}

	c.log.WithFields(logrus.Fields{
		"path":        report.Path,
		"rows":        report.Rows,
		"measured":    report.Measured,
		"auto_filled": report.AutoFilled,
		"failed":      report.Failed,
		"excluded":    report.Excluded,
	}).Info("Dataset saved")
	return report, nil
}

// autoFill samples every pending frame at the default layout. A frame that
// cannot be loaded is logged and left without a record.
func (c *Controller) autoFill(progress func(current, total int)) (filled, failed int) {
	pending := c.Pending()
	for n, e := range pending {
		frame, err := c.opts.Loader(filepath.Join(c.opts.ImagesDir, e.Filename))
		if err != nil {
			failed++
			c.log.WithError(err).WithField("image", e.Filename).Error("Auto-fill failed")
		} else {
			rec := c.store.Ensure(e.Timestamp)
			if _, err := c.store.ApplyDefaults(rec, frame); err != nil {
				c.log.WithError(err).WithField("timestamp", e.Timestamp).Warn("Default points skipped")
			}
			filled++
		}
		if progress != nil {
			progress(n+1, len(pending))
		}
	}
	return filled, failed
}
