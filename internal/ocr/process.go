package ocr

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"sma-lab/internal/dataset"
	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Reader reads the overlay temperature of one image file.
type Reader interface {
	ReadFile(path string) (value float64, ok bool, err error)
}

// ProcessOptions configures ProcessDataset.
type ProcessOptions struct {
	CSVPath   string
	ImagesDir string

	// OutPath defaults to <stem>_with_temperature.csv next to CSVPath.
	OutPath string

	Progress func(current, total int)
	Logger   logrus.FieldLogger
}

// Summary reports the outcome of ProcessDataset.
type Summary struct {
	OutPath   string
	Processed int
	Extracted int
	Failed    int
	Missing   int
	Mean      float64
	Min       float64
	Max       float64
}

// DefaultOutPath returns <dir>/<stem>_with_temperature.csv for csvPath.
func DefaultOutPath(csvPath string) string {
	dir := filepath.Dir(csvPath)
	stem := strings.TrimSuffix(filepath.Base(csvPath), filepath.Ext(csvPath))
	return filepath.Join(dir, stem+"_with_temperature.csv")
}

// ProcessDataset reads <timestamp>.jpg for every row of the dataset and
// writes a copy with a temperature column. Rows whose image is missing or
// unreadable get an empty cell.
func ProcessDataset(r Reader, opts ProcessOptions) (Summary, error) {
	log := logging.OrDiscard(opts.Logger)

	tbl, err := dataset.ReadFile(opts.CSVPath)
	if err != nil {
		return Summary{}, err
	}
	if !tbl.Has(dataset.ColTimestamp) {
		return Summary{}, fmt.Errorf("%s: missing column %s", opts.CSVPath, dataset.ColTimestamp)
	}
	if info, err := os.Stat(opts.ImagesDir); err != nil || !info.IsDir() {
		return Summary{}, fmt.Errorf("images folder not found: %s", opts.ImagesDir)
	}

	sum := Summary{OutPath: opts.OutPath}
	if sum.OutPath == "" {
		sum.OutPath = DefaultOutPath(opts.CSVPath)
	}

	tbl.EnsureColumn(dataset.ColTemperature)
	var values []float64
	for i := 0; i < tbl.Len(); i++ {
		ts := tbl.Get(i, dataset.ColTimestamp)
		path := filepath.Join(opts.ImagesDir, ts+".jpg")
		entry := log.WithField("timestamp", ts)
		sum.Processed++

		tbl.Set(i, dataset.ColTemperature, "")
		if _, err := os.Stat(path); err != nil {
			sum.Missing++
			sum.Failed++
			entry.Warn("Image not found")
		} else if v, ok, err := r.ReadFile(path); err != nil {
			sum.Failed++
			entry.WithError(err).Warn("OCR failed")
		} else if !ok {
			sum.Failed++
			entry.Debug("No temperature in overlay")
		} else {
			sum.Extracted++
			values = append(values, v)
			tbl.SetFloat(i, dataset.ColTemperature, v)
			entry.WithField("temperature", v).Debug("Temperature extracted")
		}

		if opts.Progress != nil {
			opts.Progress(i+1, tbl.Len())
		}
	}

	if len(values) > 0 {
		sum.Mean = stat.Mean(values, nil)
		sum.Min = floats.Min(values)
		sum.Max = floats.Max(values)
	}

	if err := tbl.WriteFile(sum.OutPath); err != nil {
		return sum, err
	}

	log.WithFields(logrus.Fields{
		"out":       sum.OutPath,
		"processed": sum.Processed,
		"extracted": sum.Extracted,
		"failed":    sum.Failed,
	}).Info("Overlay temperatures extracted")
	return sum, nil
}
