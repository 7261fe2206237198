package session

import (
	"errors"
	goimage "image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sma-lab/internal/dataset"
	"sma-lab/internal/image"
	"sma-lab/internal/points"
	"sma-lab/pkg/geometry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ts1 = "20240101_120000_001"
	ts2 = "20240101_120001_001"
	ts3 = "20240101_120002_001"
)

var (
	hot  = color.RGBA{R: 255, A: 255}
	cold = color.RGBA{B: 255, A: 255}
)

type fixture struct {
	dir      string
	images   string
	dataPath string
	calPath  string
}

func newFixture(t *testing.T, csv string) *fixture {
	t.Helper()
	dir := t.TempDir()
	f := &fixture{
		dir:      dir,
		images:   filepath.Join(dir, "cam2"),
		dataPath: filepath.Join(dir, "data.csv"),
		calPath:  filepath.Join(dir, "calibration.csv"),
	}
	require.NoError(t, os.Mkdir(f.images, 0o755))
	require.NoError(t, os.WriteFile(f.dataPath, []byte(csv), 0o644))
	require.NoError(t, os.WriteFile(f.calPath, []byte("Temperature,R,G,B\n20,0,0,255\n50,255,0,0\n"), 0o644))
	return f
}

func (f *fixture) frame(t *testing.T, name string, size int, c color.Color) {
	t.Helper()
	img := goimage.NewRGBA(goimage.Rect(0, 0, size, size))
	for y := 0; y < size; y++ {
		for x := 0; x < size; x++ {
			img.Set(x, y, c)
		}
	}
	out, err := os.Create(filepath.Join(f.images, name))
	require.NoError(t, err)
	require.NoError(t, png.Encode(out, img))
	require.NoError(t, out.Close())
}

func (f *fixture) open(t *testing.T) *Controller {
	t.Helper()
	c, err := Open(Options{
		DatasetPath:     f.dataPath,
		ImagesDir:       f.images,
		CalibrationPath: f.calPath,
	})
	require.NoError(t, err)
	return c
}

func threeRows() string {
	return "timestamp,current_mA,force_N,busVoltage_SMA_V,busVoltage_ref_V,deflexion_mm\n" +
		ts1 + ",100,1.5,3.3,5,0.1\n" +
		ts2 + ",110,1.6,3.3,5,0.2\n" +
		ts3 + ",0,1.7,0,5,0.3\n"
}

func clickLayout(t *testing.T, c *Controller, pts ...geometry.PointInt) {
	t.Helper()
	for _, p := range pts {
		pl := c.Click(p.X, p.Y)
		require.False(t, pl.Ignored, "click %v: %v", p, pl.Reason)
	}
}

func TestEndToEndExcludedAndAutoFilled(t *testing.T) {
	f := newFixture(t, threeRows())
	f.frame(t, ts1+".png", 20, hot)
	f.frame(t, ts2+".png", 20, hot)
	f.frame(t, ts3+".png", 20, cold)

	c := f.open(t)
	assert.Empty(t, c.Problems())
	require.Equal(t, 3, c.Len())

	v, err := c.First()
	require.NoError(t, err)
	assert.Equal(t, ts1, v.Timestamp)
	assert.Equal(t, [points.Slots]*points.Sample{}, v.Points)

	clickLayout(t, c, geometry.PointInt{X: 2, Y: 2}, geometry.PointInt{X: 10, Y: 2})
	last := c.Click(2, 10)
	require.True(t, last.DefaultsCommitted)

	v, err = c.Next()
	require.NoError(t, err)
	assert.Equal(t, ts2, v.Timestamp)
	require.NotNil(t, v.Points[0], "defaults applied on first visit")

	excluded, err := c.ToggleExclude()
	require.NoError(t, err)
	assert.True(t, excluded)

	assert.Len(t, c.Pending(), 1)

	var progress [][2]int
	report, err := c.Save(SaveOptions{
		AutoFill: true,
		Progress: func(cur, total int) { progress = append(progress, [2]int{cur, total}) },
	})
	require.NoError(t, err)
	assert.Equal(t, [][2]int{{1, 1}}, progress)
	assert.Equal(t, 1, report.AutoFilled)
	assert.Equal(t, 1, report.Excluded)
	assert.Equal(t, 2, report.Rows)

	out, err := dataset.ReadFile(f.dataPath)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	assert.Equal(t, []string{ts1, ts3}, out.Column(dataset.ColTimestamp))
	assert.Equal(t, "100", out.Get(0, dataset.ColCurrent), "pass-through columns kept")
	assert.Equal(t, "50", out.Get(0, "temp_point1"))
	assert.Equal(t, "2", out.Get(0, "x_point1"))
	assert.Equal(t, "10", out.Get(0, "y_point3"))
	assert.Equal(t, "20", out.Get(1, "temp_point2"))
	assert.Equal(t, "10", out.Get(1, "x_point2"))
}

func TestAutoFillSkipsOutOfBoundsDefaults(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n"+ts2+"\n")
	f.frame(t, ts1+".png", 40, hot)
	f.frame(t, ts2+".png", 8, cold)

	c := f.open(t)
	_, err := c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1}, geometry.PointInt{X: 30, Y: 1}, geometry.PointInt{X: 1, Y: 30})

	_, err = c.Save(SaveOptions{AutoFill: true})
	require.NoError(t, err)

	out, err := dataset.ReadFile(f.dataPath)
	require.NoError(t, err)
	assert.Equal(t, "20", out.Get(1, "temp_point1"))
	assert.Equal(t, "", out.Get(1, "temp_point2"))
	assert.Equal(t, "", out.Get(1, "x_point3"))
}

func TestSaveWithoutAutoFillLeavesUnvisitedRows(t *testing.T) {
	f := newFixture(t, threeRows())
	for _, ts := range []string{ts1, ts2, ts3} {
		f.frame(t, ts+".png", 20, hot)
	}

	c := f.open(t)
	_, err := c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1}, geometry.PointInt{X: 5, Y: 5}, geometry.PointInt{X: 9, Y: 9})

	report, err := c.Save(SaveOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, report.Rows)
	assert.Equal(t, 1, report.Measured)

	out, err := dataset.ReadFile(f.dataPath)
	require.NoError(t, err)
	assert.Equal(t, "", out.Get(2, "temp_point1"))
}

func TestVisitWithoutDefaultsCreatesEmptyRecord(t *testing.T) {
	f := newFixture(t, threeRows())
	for _, ts := range []string{ts1, ts2, ts3} {
		f.frame(t, ts+".png", 20, hot)
	}

	c := f.open(t)
	_, err := c.Last()
	require.NoError(t, err)
	_, err = c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1}, geometry.PointInt{X: 5, Y: 5}, geometry.PointInt{X: 9, Y: 9})

	// The last frame was seen before the layout existed.
	v, err := c.Last()
	require.NoError(t, err)
	assert.Nil(t, v.Points[0])

	pending := c.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, ts2, pending[0].Timestamp)
}

func TestNavigationBounds(t *testing.T) {
	f := newFixture(t, threeRows())
	for _, ts := range []string{ts1, ts2, ts3} {
		f.frame(t, ts+".png", 4, hot)
	}

	c := f.open(t)
	_, err := c.Current()
	assert.ErrorIs(t, err, ErrNothingToShow)

	v, err := c.Previous()
	require.NoError(t, err)
	assert.Equal(t, 0, v.Position)

	v, err = c.Last()
	require.NoError(t, err)
	assert.Equal(t, 2, v.Position)
	assert.Equal(t, 3, v.Total)

	v, err = c.Next()
	require.NoError(t, err)
	assert.Equal(t, 2, v.Position)

	v, err = c.Previous()
	require.NoError(t, err)
	assert.Equal(t, ts2, v.Timestamp)

	_, err = c.Goto(7)
	assert.Error(t, err)
}

func TestClickIgnoredWhenFull(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n")
	f.frame(t, ts1+".png", 100, hot)

	c := f.open(t)
	_, err := c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 10, Y: 10}, geometry.PointInt{X: 50, Y: 10}, geometry.PointInt{X: 10, Y: 50})

	p := c.Click(90, 90)
	assert.True(t, p.Ignored)
	assert.ErrorIs(t, p.Reason, points.ErrNoSlotAvailable)

	p = c.Click(52, 12)
	assert.False(t, p.Ignored)
	assert.True(t, p.Moved)
	assert.Equal(t, 1, p.Slot)
	assert.False(t, p.DefaultsCommitted)
}

func TestClickBeforeNavigation(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n")
	f.frame(t, ts1+".png", 10, hot)

	c := f.open(t)
	p := c.Click(1, 1)
	assert.True(t, p.Ignored)
	assert.ErrorIs(t, p.Reason, ErrNothingToShow)
}

func TestExcludeThenIncludeDoesNotRestorePoints(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n")
	f.frame(t, ts1+".png", 10, hot)

	c := f.open(t)
	_, err := c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1})

	_, err = c.ToggleExclude()
	require.NoError(t, err)
	assert.True(t, c.Click(1, 1).Ignored)

	excluded, err := c.ToggleExclude()
	require.NoError(t, err)
	assert.False(t, excluded)

	v, err := c.Current()
	require.NoError(t, err)
	assert.Nil(t, v.Points[0])
}

func TestMissingTimestampColumn(t *testing.T) {
	f := newFixture(t, "time,current_mA\n1,2\n")
	c := f.open(t)

	problems := c.Problems()
	require.Len(t, problems, 1)
	var missing *MissingColumnsError
	require.ErrorAs(t, problems[0], &missing)
	assert.Equal(t, []string{"timestamp"}, missing.Columns)

	assert.Zero(t, c.Len())
	_, err := c.First()
	assert.ErrorIs(t, err, ErrNothingToShow)

	_, err = c.Save(SaveOptions{AutoFill: true})
	assert.ErrorIs(t, err, ErrNoDataset)

	raw, err := os.ReadFile(f.dataPath)
	require.NoError(t, err)
	assert.Equal(t, "time,current_mA\n1,2\n", string(raw))
}

func TestUnmatchedRowsAreReportedAndKept(t *testing.T) {
	f := newFixture(t, "timestamp,note\n"+ts1+",a\n"+ts2+",b\n")
	f.frame(t, ts1+".png", 10, hot)

	c := f.open(t)
	problems := c.Problems()
	require.Len(t, problems, 1)
	var warn *UnmatchedTimestampWarning
	require.ErrorAs(t, problems[0], &warn)
	assert.Equal(t, 1, warn.Row)
	assert.Equal(t, ts2, warn.Timestamp)
	assert.Equal(t, 1, c.Len())

	_, err := c.Save(SaveOptions{})
	require.NoError(t, err)
	out, err := dataset.ReadFile(f.dataPath)
	require.NoError(t, err)
	assert.Equal(t, "b", out.Get(1, "note"))
}

func TestNoImagesMatched(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n")
	c := f.open(t)

	var sawNoImages bool
	for _, p := range c.Problems() {
		if errors.Is(p, ErrNoImages) {
			sawNoImages = true
		}
	}
	assert.True(t, sawNoImages)
	assert.Zero(t, c.Len())
}

func TestMalformedCalibrationIsFatal(t *testing.T) {
	f := newFixture(t, "timestamp\n"+ts1+"\n")
	require.NoError(t, os.WriteFile(f.calPath, []byte("Temperature,R,G,B\n"), 0o644))

	_, err := Open(Options{DatasetPath: f.dataPath, ImagesDir: f.images, CalibrationPath: f.calPath})
	assert.Error(t, err)
}

func TestAutoFillContinuesAfterUnreadableImage(t *testing.T) {
	f := newFixture(t, threeRows())
	for _, ts := range []string{ts1, ts2, ts3} {
		f.frame(t, ts+".png", 10, hot)
	}

	c, err := Open(Options{
		DatasetPath:     f.dataPath,
		ImagesDir:       f.images,
		CalibrationPath: f.calPath,
		Loader: func(path string) (*image.Frame, error) {
			if strings.Contains(path, ts2) {
				return nil, errors.New("corrupt")
			}
			return image.Load(path)
		},
	})
	require.NoError(t, err)

	_, err = c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1}, geometry.PointInt{X: 5, Y: 5}, geometry.PointInt{X: 9, Y: 9})

	var calls int
	report, err := c.Save(SaveOptions{AutoFill: true, Progress: func(int, int) { calls++ }})
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, report.AutoFilled)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 3, report.Rows)

	out, err := dataset.ReadFile(f.dataPath)
	require.NoError(t, err)
	assert.Equal(t, "", out.Get(1, "temp_point1"))
	assert.Equal(t, "50", out.Get(2, "temp_point1"))
}

type memPersister struct {
	snaps map[string]points.Snapshot
}

func (m *memPersister) LoadSnapshot(key string) (points.Snapshot, bool, error) {
	s, ok := m.snaps[key]
	return s, ok, nil
}

func (m *memPersister) SaveSnapshot(key string, snap points.Snapshot) error {
	m.snaps[key] = snap
	return nil
}

func TestSessionResumesFromPersister(t *testing.T) {
	f := newFixture(t, threeRows())
	for _, ts := range []string{ts1, ts2, ts3} {
		f.frame(t, ts+".png", 10, hot)
	}
	mem := &memPersister{snaps: map[string]points.Snapshot{}}
	opts := Options{
		DatasetPath:     f.dataPath,
		ImagesDir:       f.images,
		CalibrationPath: f.calPath,
		Persister:       mem,
	}

	c, err := Open(opts)
	require.NoError(t, err)
	_, err = c.First()
	require.NoError(t, err)
	clickLayout(t, c, geometry.PointInt{X: 1, Y: 1}, geometry.PointInt{X: 5, Y: 5}, geometry.PointInt{X: 9, Y: 9})
	_, err = c.Save(SaveOptions{})
	require.NoError(t, err)
	require.Contains(t, mem.snaps, f.dataPath)

	resumed, err := Open(opts)
	require.NoError(t, err)
	d, ok := resumed.Defaults()
	require.True(t, ok)
	assert.Equal(t, geometry.PointInt{X: 5, Y: 5}, d[1])

	v, err := resumed.First()
	require.NoError(t, err)
	require.NotNil(t, v.Points[2])
	assert.Equal(t, 50.0, v.Points[2].Temperature)
}
