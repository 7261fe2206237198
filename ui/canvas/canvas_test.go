package canvas

import (
	"image"
	"image/color"
	"testing"

	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanvasToImage(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()

	x, y := ic.CanvasToImage(10.9, 3.2)
	assert.Equal(t, 10, x)
	assert.Equal(t, 3, y)

	ic.SetZoom(2)
	x, y = ic.CanvasToImage(10.9, 3.2)
	assert.Equal(t, 5, x)
	assert.Equal(t, 1, y)

	x, y = ic.CanvasToImage(-0.5, 0)
	assert.Equal(t, -1, x)
	assert.Equal(t, 0, y)

	cx, cy := ic.ImageToCanvas(5, 1)
	assert.Equal(t, 10.0, cx)
	assert.Equal(t, 2.0, cy)
}

func TestZoomIsClamped(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()
	ic.SetZoom(100)
	assert.Equal(t, maxZoom, ic.Zoom())
	ic.SetZoom(0)
	assert.Equal(t, minZoom, ic.Zoom())
}

func TestDrawImageAndMarker(t *testing.T) {
	test.NewApp()
	src := image.NewRGBA(image.Rect(0, 0, 40, 30))
	blue := color.RGBA{B: 200, A: 255}
	for i := 0; i < len(src.Pix); i += 4 {
		src.Pix[i+2], src.Pix[i+3] = 200, 255
	}

	ic := NewImageCanvas()
	ic.SetImage(src)
	ic.SetMarkers([]Marker{{X: 10, Y: 10, Color: color.RGBA{R: 255, A: 255}, Label: "41.5"}})

	out, ok := ic.draw(40, 30).(*image.RGBA)
	require.True(t, ok)
	assert.Equal(t, blue, out.RGBAAt(30, 25))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(10, 10))
	assert.Equal(t, color.RGBA{R: 255, A: 255}, out.RGBAAt(12, 10))
}

func TestClickReportsImagePixel(t *testing.T) {
	test.NewApp()
	ic := NewImageCanvas()
	ic.SetImage(image.NewRGBA(image.Rect(0, 0, 40, 30)))
	ic.SetZoom(2)

	var gotX, gotY int
	ic.OnLeftClick(func(x, y int) { gotX, gotY = x, y })
	ic.tapAt(21, 9)
	assert.Equal(t, 10, gotX)
	assert.Equal(t, 4, gotY)
}

func TestCharPatterns(t *testing.T) {
	assert.Equal(t, digitPatterns[7], getCharPattern('7'))
	assert.Equal(t, symbolPatterns['C'], getCharPattern('c'))
	assert.Equal(t, [5]uint8{}, getCharPattern('?'))
}
