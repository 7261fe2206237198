package app

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"sma-lab/internal/dataset"
	"sma-lab/internal/session"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFrame(t *testing.T, path string, c color.Color) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 30, 30))
	for y := 0; y < 30; y++ {
		for x := 0; x < 30; x++ {
			img.Set(x, y, c)
		}
	}
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
}

func newInputs(t *testing.T) Inputs {
	t.Helper()
	dir := t.TempDir()
	in := Inputs{
		ImagesDir:       filepath.Join(dir, "cam2"),
		DatasetPath:     filepath.Join(dir, "data.csv"),
		CalibrationPath: filepath.Join(dir, "calibration.csv"),
	}
	require.NoError(t, os.Mkdir(in.ImagesDir, 0o755))
	require.NoError(t, os.WriteFile(in.CalibrationPath, []byte("Temperature,R,G,B\n20,0,0,255\n50,255,0,0\n"), 0o644))
	require.NoError(t, os.WriteFile(in.DatasetPath, []byte(
		"timestamp,current_mA\n20240101_120000_001,100\n20240101_120001_001,0\n20240101_120009_001,0\n"), 0o644))
	writeFrame(t, filepath.Join(in.ImagesDir, "20240101_120000_001.png"), color.RGBA{R: 255, A: 255})
	writeFrame(t, filepath.Join(in.ImagesDir, "20240101_120001_001.png"), color.RGBA{B: 255, A: 255})
	return in
}

func TestStartRequiresInputs(t *testing.T) {
	s := NewState(nil, nil)
	assert.Error(t, s.Start())
	assert.ErrorIs(t, s.Next(), ErrNoSession)
	p := s.Click(1, 1)
	assert.True(t, p.Ignored)
}

func TestAnalyzerFlow(t *testing.T) {
	s := NewState(nil, nil)
	s.Inputs = newInputs(t)

	var frames []session.View
	var modified []bool
	var problems []error
	s.On(EventFrameChanged, func(d interface{}) { frames = append(frames, d.(session.View)) })
	s.On(EventModified, func(d interface{}) { modified = append(modified, d.(bool)) })
	s.On(EventProblem, func(d interface{}) { problems = append(problems, d.(error)) })

	require.NoError(t, s.Start())
	assert.Empty(t, problems, "unmatched rows are not shown as problems")
	require.Len(t, frames, 1)
	assert.Equal(t, 0, frames[0].Position)
	assert.Equal(t, 2, frames[0].Total)

	for _, pt := range [][2]int{{5, 5}, {15, 15}, {25, 25}} {
		p := s.Click(pt[0], pt[1])
		require.False(t, p.Ignored)
	}
	require.NotNil(t, s.View().Points[1])
	assert.Equal(t, 15, s.View().Points[1].Pos.X)
	assert.InDelta(t, 50, s.View().Points[0].Temperature, 1e-9)
	assert.True(t, s.Modified)

	require.NoError(t, s.Next())
	v := s.View()
	assert.Equal(t, 1, v.Position)
	require.NotNil(t, v.Points[2])
	assert.InDelta(t, 20, v.Points[2].Temperature, 1e-9)

	excluded, err := s.ToggleExclude()
	require.NoError(t, err)
	assert.True(t, excluded)
	assert.True(t, s.View().Excluded)

	assert.Equal(t, 0, s.Pending())
	report, err := s.Save(false, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Excluded)
	assert.False(t, s.Modified)
	assert.Equal(t, false, modified[len(modified)-1])

	tbl, err := dataset.ReadFile(s.Inputs.DatasetPath)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.Len())
	assert.Equal(t, "50", tbl.Get(0, "temp_point1"))
}

func TestSaveHoldsSession(t *testing.T) {
	s := NewState(nil, nil)
	s.Inputs = newInputs(t)
	require.NoError(t, s.Start())
	for _, pt := range [][2]int{{5, 5}, {15, 15}, {25, 25}} {
		require.False(t, s.Click(pt[0], pt[1]).Ignored)
	}
	require.Equal(t, 1, s.Pending())

	var once sync.Once
	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		_, err := s.Save(true, func(current, total int) {
			once.Do(func() { close(entered) })
			<-release
		})
		done <- err
	}()
	<-entered

	assert.True(t, s.Busy())
	for i := 0; i < 200; i++ {
		assert.ErrorIs(t, s.Next(), ErrBusy)
	}
	p := s.Click(5, 5)
	assert.True(t, p.Ignored)
	assert.ErrorIs(t, p.Reason, ErrBusy)
	_, err := s.ToggleExclude()
	assert.ErrorIs(t, err, ErrBusy)
	_, err = s.Save(false, nil)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, s.Start(), ErrBusy)
	assert.Equal(t, 0, s.View().Position)

	close(release)
	require.NoError(t, <-done)
	assert.False(t, s.Busy())
	require.NoError(t, s.Next())
	assert.Equal(t, 1, s.View().Position)
	assert.Equal(t, 0, s.Pending())
}
