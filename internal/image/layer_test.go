package image

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"sma-lab/pkg/colorutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePNG(t *testing.T, img image.Image) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "frame.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

func TestLoadAndSample(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 4, 3))
	src.Set(2, 1, color.RGBA{R: 200, G: 100, B: 50, A: 255})

	frame, err := Load(writePNG(t, src))
	require.NoError(t, err)

	assert.Equal(t, 4, frame.Width())
	assert.Equal(t, 3, frame.Height())

	c, ok := frame.RGBAt(2, 1)
	assert.True(t, ok)
	assert.Equal(t, colorutil.RGB{R: 200, G: 100, B: 50}, c)

	_, ok = frame.RGBAt(4, 0)
	assert.False(t, ok)
	_, ok = frame.RGBAt(0, -1)
	assert.False(t, ok)
}

func TestRGBAtHonorsImageOrigin(t *testing.T) {
	src := image.NewRGBA(image.Rect(10, 10, 12, 12))
	src.Set(10, 10, color.RGBA{R: 1, G: 2, B: 3, A: 255})

	frame := FromImage(src)
	c, ok := frame.RGBAt(0, 0)
	require.True(t, ok)
	assert.Equal(t, colorutil.RGB{R: 1, G: 2, B: 3}, c)
	assert.Equal(t, color.Black, frame.PixelAt(5, 5))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.png"))
	assert.Error(t, err)

	bad := filepath.Join(t.TempDir(), "bad.jpg")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestIsSupportedFormat(t *testing.T) {
	assert.True(t, IsSupportedFormat("a/20250708_141511_100.JPG"))
	assert.True(t, IsSupportedFormat("x.png"))
	assert.False(t, IsSupportedFormat("data.csv"))
}
