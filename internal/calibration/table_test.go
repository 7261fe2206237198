package calibration

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sma-lab/internal/dataset"
	"sma-lab/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readTable(t *testing.T, csv string) *dataset.Table {
	t.Helper()
	tbl, err := dataset.Read(strings.NewReader(csv))
	require.NoError(t, err)
	return tbl
}

func TestLoad(t *testing.T) {
	tbl := readTable(t, "Temperature,R,G,B\n25,0,0,255\n60.5,255,0,0\n40,127.6,128,0\n")

	cal, err := Load(tbl)
	require.NoError(t, err)

	assert.Equal(t, 3, cal.Len())
	assert.Equal(t, colorutil.RGB{R: 128, G: 128, B: 0}, cal.Sample(2).Color)
	assert.Equal(t, []float64{25, 60.5, 40}, cal.Temperatures())

	lo, hi := cal.Range()
	assert.Equal(t, 25.0, lo)
	assert.Equal(t, 60.5, hi)
}

func TestLoadRejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"missing column": "Temperature,R,G\n25,0,0\n",
		"non numeric":    "Temperature,R,G,B\n25,0,x,0\n",
		"empty cell":     "Temperature,R,G,B\n,0,0,0\n",
		"out of range":   "Temperature,R,G,B\n25,0,300,0\n",
		"no rows":        "Temperature,R,G,B\n",
	}
	for name, csv := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(readTable(t, csv))
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedCalibration))

			var mce *MalformedCalibrationError
			assert.True(t, errors.As(err, &mce))
		})
	}
}

func TestMalformedErrorReportsRow(t *testing.T) {
	_, err := Load(readTable(t, "Temperature,R,G,B\n25,0,0,0\n30,1,nope,1\n"))

	var mce *MalformedCalibrationError
	require.True(t, errors.As(err, &mce))
	assert.Equal(t, 2, mce.Row)
	assert.Equal(t, "G", mce.Column)
	assert.Contains(t, err.Error(), "row 2")
}

func TestSamplesIsACopy(t *testing.T) {
	cal, err := New([]Sample{{Temperature: 20}, {Temperature: 30}})
	require.NoError(t, err)

	s := cal.Samples()
	s[0].Temperature = 999
	assert.Equal(t, 20.0, cal.Sample(0).Temperature)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rgb_corrected_temperature_data.csv")
	require.NoError(t, os.WriteFile(path, []byte("Temperature,R,G,B\n30,10,20,30\n"), 0o644))

	cal, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, cal.Len())

	_, err = LoadFile(filepath.Join(t.TempDir(), "missing.csv"))
	assert.Error(t, err)
}
