package acquisition

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"sma-lab/internal/dataset"
	"sma-lab/internal/experiment"
	"sma-lab/internal/logging"

	"github.com/sirupsen/logrus"
)

// FrameSink saves the most recent frame of a camera.
type FrameSink interface {
	WriteLatest(path string) (bool, error)
}

// Sample is one row of data.csv.
type Sample struct {
	Time         time.Time
	CurrentMA    float64
	ForceN       float64
	VoltageSMA   float64
	VoltageRef   float64
	DeflectionMM float64
}

// FormatTimestamp renders t as YYYYMMDD_HHMMSS_mmm, the key shared by
// data.csv rows and frame file names.
func FormatTimestamp(t time.Time) string {
	return fmt.Sprintf("%s_%03d", t.Format(experiment.FolderLayout), t.Nanosecond()/int(time.Millisecond))
}

// Recorder writes one experiment folder: data.csv, a frame per camera per
// row, and the manifest.
type Recorder struct {
	dir      string
	manifest *experiment.Manifest
	file     *os.File
	csv      *csv.Writer
	cams     []FrameSink
	log      logrus.FieldLogger
}

// StartRecording creates <root>/<started>/ with a camera folder per sink
// and an empty data.csv.
func StartRecording(root string, started time.Time, activeMS, restMS int, cams []FrameSink, log logrus.FieldLogger) (*Recorder, error) {
	m := experiment.New(started, activeMS, restMS)
	dir := filepath.Join(root, m.Name)
	for _, sub := range []string{experiment.SideCamDir, experiment.ThermalDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create experiment folder: %w", err)
		}
	}

	f, err := os.Create(filepath.Join(dir, experiment.DataName))
	if err != nil {
		return nil, fmt.Errorf("failed to create data file: %w", err)
	}
	w := csv.NewWriter(f)
	if err := w.Write(dataset.ExperimentColumns); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	w.Flush()

	r := &Recorder{
		dir:      dir,
		manifest: m,
		file:     f,
		csv:      w,
		cams:     cams,
		log:      logging.OrDiscard(log).WithField("experiment", m.Name),
	}
	if err := m.Save(r.ManifestPath()); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write manifest: %w", err)
	}
	r.log.WithField("dir", dir).Info("Recording started")
	return r, nil
}

// Dir returns the experiment folder.
func (r *Recorder) Dir() string { return r.dir }

// ManifestPath returns the path of experiment.json.
func (r *Recorder) ManifestPath() string {
	return filepath.Join(r.dir, experiment.ManifestName)
}

// Rows returns the number of rows written.
func (r *Recorder) Rows() int { return r.manifest.Rows }

// Record appends a row and saves the current frame of every camera under
// the row's timestamp. Frame errors are logged; only data errors fail.
func (r *Recorder) Record(s Sample) (string, error) {
	ts := FormatTimestamp(s.Time)
	row := []string{
		ts,
		dataset.FormatFloat(s.CurrentMA),
		dataset.FormatFloat(s.ForceN),
		dataset.FormatFloat(s.VoltageSMA),
		dataset.FormatFloat(s.VoltageRef),
		dataset.FormatFloat(s.DeflectionMM),
	}
	if err := r.csv.Write(row); err != nil {
		return ts, fmt.Errorf("failed to write row: %w", err)
	}
	r.csv.Flush()
	if err := r.csv.Error(); err != nil {
		return ts, fmt.Errorf("failed to write row: %w", err)
	}
	r.manifest.Rows++

	for i, cam := range r.cams {
		if cam == nil {
			continue
		}
		path := filepath.Join(r.dir, fmt.Sprintf("cam%d", i+1), ts+".jpg")
		if _, err := cam.WriteLatest(path); err != nil {
			r.log.WithError(err).WithField("camera", i+1).Warn("Frame not saved")
		}
	}
	return ts, nil
}

// Finish closes data.csv and stores the final manifest.
func (r *Recorder) Finish(force experiment.ForceCalibration, zeroMM float64, finished bool) error {
	r.csv.Flush()
	closeErr := r.file.Close()

	r.manifest.Force = force
	r.manifest.ZeroDeformation = zeroMM
	r.manifest.Finished = finished
	if err := r.manifest.Save(r.ManifestPath()); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"rows":     r.manifest.Rows,
		"finished": finished,
	}).Info("Recording stopped")
	return closeErr
}
