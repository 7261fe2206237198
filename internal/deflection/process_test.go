package deflection

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"sma-lab/internal/dataset"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubMeter map[string]float64

func (s stubMeter) DistanceFile(path string) (float64, error) {
	if d, ok := s[filepath.Base(path)]; ok {
		return d, nil
	}
	return 0, ErrMarkersNotFound
}

func TestProcessDataset(t *testing.T) {
	dir := t.TempDir()
	cam := filepath.Join(dir, "cam1")
	require.NoError(t, os.Mkdir(cam, 0o755))
	for _, name := range []string{"t1.jpg", "t2.jpg"} {
		require.NoError(t, os.WriteFile(filepath.Join(cam, name), nil, 0o644))
	}
	csvPath := filepath.Join(dir, "data.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte("timestamp,force_N\nt1,1\nt2,2\nt3,3\n"), 0o644))

	sum, err := ProcessDataset(stubMeter{"t1.jpg": 201.5}, ProcessOptions{CSVPath: csvPath, ImagesDir: cam})
	require.NoError(t, err)
	assert.Equal(t, Summary{OutPath: csvPath, Rows: 3, Measured: 1, Failed: 2}, sum)

	out, err := dataset.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"201.5", "", ""}, out.Column(dataset.ColRawDistance))
}

func TestProcessDatasetMissingCSV(t *testing.T) {
	_, err := ProcessDataset(stubMeter{}, ProcessOptions{CSVPath: filepath.Join(t.TempDir(), "none.csv")})
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrMarkersNotFound))
}
