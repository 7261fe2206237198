package colorutil

import (
	"image/color"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromColor(t *testing.T) {
	assert.Equal(t, RGB{R: 10, G: 20, B: 30}, FromColor(color.RGBA{R: 10, G: 20, B: 30, A: 255}))
	assert.Equal(t, RGB{R: 200, G: 0, B: 7}, FromColor(color.NRGBA{R: 200, G: 0, B: 7, A: 255}))
	assert.Equal(t, RGB{R: 128, G: 128, B: 128}, FromColor(color.Gray{Y: 128}))
}

func TestDistance(t *testing.T) {
	a := RGB{R: 0, G: 0, B: 0}
	b := RGB{R: 3, G: 4, B: 0}
	assert.InDelta(t, 5.0, a.Distance(b), 1e-12)
	assert.InDelta(t, 255*math.Sqrt(3), RGB{}.Distance(RGB{R: 255, G: 255, B: 255}), 1e-9)
}

func TestString(t *testing.T) {
	assert.Equal(t, "R=1, G=2, B=3", RGB{R: 1, G: 2, B: 3}.String())
}
