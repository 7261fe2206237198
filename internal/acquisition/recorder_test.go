package acquisition

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"sma-lab/internal/dataset"
	"sma-lab/internal/experiment"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fileSink writes a marker file instead of an encoded frame.
type fileSink struct {
	mu    sync.Mutex
	paths []string
	empty bool
}

func (s *fileSink) WriteLatest(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.empty {
		return false, nil
	}
	s.paths = append(s.paths, path)
	return true, os.WriteFile(path, []byte("frame"), 0o644)
}

func TestFormatTimestamp(t *testing.T) {
	ts := time.Date(2025, 7, 8, 14, 15, 11, 100_900_000, time.Local)
	assert.Equal(t, "20250708_141511_100", FormatTimestamp(ts))

	ts = time.Date(2025, 1, 2, 3, 4, 5, 7_000_000, time.Local)
	assert.Equal(t, "20250102_030405_007", FormatTimestamp(ts))
}

func TestRecorderWritesFolder(t *testing.T) {
	root := t.TempDir()
	started := time.Date(2025, 7, 8, 14, 15, 0, 0, time.Local)
	side, thermal := &fileSink{}, &fileSink{empty: true}

	rec, err := StartRecording(root, started, 2000, 3000, []FrameSink{side, thermal}, nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "20250708_141500"), rec.Dir())
	assert.DirExists(t, filepath.Join(rec.Dir(), "cam1"))
	assert.DirExists(t, filepath.Join(rec.Dir(), "cam2"))

	ts, err := rec.Record(Sample{
		Time:         started.Add(1500 * time.Millisecond),
		CurrentMA:    812.5,
		ForceN:       1.5,
		VoltageSMA:   3.2,
		DeflectionMM: -0.25,
	})
	require.NoError(t, err)
	assert.Equal(t, "20250708_141501_500", ts)
	assert.FileExists(t, filepath.Join(rec.Dir(), "cam1", ts+".jpg"))
	assert.NoFileExists(t, filepath.Join(rec.Dir(), "cam2", ts+".jpg"))
	assert.Equal(t, 1, rec.Rows())

	force := experiment.ForceCalibration{Offset: 0.1, Scale: 2, RelayScale: 1}
	require.NoError(t, rec.Finish(force, 48.5, true))

	tbl, err := dataset.ReadFile(filepath.Join(rec.Dir(), experiment.DataName))
	require.NoError(t, err)
	assert.Equal(t, dataset.ExperimentColumns, tbl.Header())
	require.Equal(t, 1, tbl.Len())
	assert.Equal(t, []string{"20250708_141501_500", "812.5", "1.5", "3.2", "0", "-0.25"}, tbl.Row(0))

	m, err := experiment.LoadDir(rec.Dir())
	require.NoError(t, err)
	assert.True(t, m.Finished)
	assert.Equal(t, 1, m.Rows)
	assert.Equal(t, 48.5, m.ZeroDeformation)
	assert.Equal(t, force, m.Force)
	assert.Equal(t, 2000, m.ActiveMS)
}
