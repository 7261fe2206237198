package deflection

import (
	"fmt"
	"os"
	"path/filepath"

	"sma-lab/internal/dataset"
	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
)

// Meter measures the marker distance in one image file.
type Meter interface {
	DistanceFile(path string) (float64, error)
}

// ProcessOptions configures ProcessDataset.
type ProcessOptions struct {
	CSVPath   string
	ImagesDir string

	// OutPath defaults to CSVPath.
	OutPath string

	Progress func(current, total int)
	Logger   logrus.FieldLogger
}

// Summary reports the outcome of ProcessDataset.
type Summary struct {
	OutPath  string
	Rows     int
	Measured int
	Failed   int
}

// ProcessDataset measures <timestamp>.jpg of every row and stores the raw
// distance in the distancia_raw_mm column. Rows without a measurement get
// an empty cell.
func ProcessDataset(m Meter, opts ProcessOptions) (Summary, error) {
	log := logging.OrDiscard(opts.Logger)

	tbl, err := dataset.ReadFile(opts.CSVPath)
	if err != nil {
		return Summary{}, err
	}
	if !tbl.Has(dataset.ColTimestamp) {
		return Summary{}, fmt.Errorf("%s: missing column %s", opts.CSVPath, dataset.ColTimestamp)
	}

	sum := Summary{OutPath: opts.OutPath, Rows: tbl.Len()}
	if sum.OutPath == "" {
		sum.OutPath = opts.CSVPath
	}

	tbl.EnsureColumn(dataset.ColRawDistance)
	for i := 0; i < tbl.Len(); i++ {
		ts := tbl.Get(i, dataset.ColTimestamp)
		path := filepath.Join(opts.ImagesDir, ts+".jpg")
		tbl.Set(i, dataset.ColRawDistance, "")

		if _, err := os.Stat(path); err != nil {
			sum.Failed++
			log.WithField("timestamp", ts).Warn("Image not found")
		} else if d, err := m.DistanceFile(path); err != nil {
			sum.Failed++
			log.WithError(err).WithField("timestamp", ts).Debug("No distance")
		} else {
			sum.Measured++
			tbl.SetFloat(i, dataset.ColRawDistance, d)
		}

		if opts.Progress != nil {
			opts.Progress(i+1, tbl.Len())
		}
	}

	if err := tbl.WriteFile(sum.OutPath); err != nil {
		return sum, err
	}
	log.WithFields(logrus.Fields{
		"out":      sum.OutPath,
		"measured": sum.Measured,
		"failed":   sum.Failed,
	}).Info("Marker distances measured")
	return sum, nil
}
