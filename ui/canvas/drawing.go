// Package canvas provides drawing primitives for the image canvas.
package canvas

import (
	"image"
	"image/color"
)

// digitPatterns contains 3x5 pixel patterns for digits 0-9.
// Each digit is represented as 5 rows of 3 bits.
var digitPatterns = [10][5]uint8{
	{0b111, 0b101, 0b101, 0b101, 0b111}, // 0
	{0b010, 0b110, 0b010, 0b010, 0b111}, // 1
	{0b111, 0b001, 0b111, 0b100, 0b111}, // 2
	{0b111, 0b001, 0b111, 0b001, 0b111}, // 3
	{0b101, 0b101, 0b111, 0b001, 0b001}, // 4
	{0b111, 0b100, 0b111, 0b001, 0b111}, // 5
	{0b111, 0b100, 0b111, 0b101, 0b111}, // 6
	{0b111, 0b001, 0b001, 0b001, 0b001}, // 7
	{0b111, 0b101, 0b111, 0b101, 0b111}, // 8
	{0b111, 0b101, 0b111, 0b001, 0b111}, // 9
}

// symbolPatterns covers the non-digit characters of temperature labels.
var symbolPatterns = map[rune][5]uint8{
	'.': {0b000, 0b000, 0b000, 0b000, 0b010},
	'-': {0b000, 0b000, 0b111, 0b000, 0b000},
	'C': {0b011, 0b100, 0b100, 0b100, 0b011},
	'P': {0b110, 0b101, 0b110, 0b100, 0b100},
	'X': {0b101, 0b101, 0b010, 0b101, 0b101},
	' ': {0b000, 0b000, 0b000, 0b000, 0b000},
}

// getCharPattern returns the 3x5 pixel pattern for a character.
// Returns a zero pattern for unsupported characters.
func getCharPattern(ch rune) [5]uint8 {
	if ch >= '0' && ch <= '9' {
		return digitPatterns[ch-'0']
	}
	if ch >= 'a' && ch <= 'z' {
		ch = ch - 'a' + 'A'
	}
	return symbolPatterns[ch]
}

var labelBackground = color.RGBA{A: 255}

// drawMarker draws a filled dot and its label.
func (ic *ImageCanvas) drawMarker(output *image.RGBA, m Marker) {
	r := m.Radius
	if r <= 0 {
		r = DefaultMarkerRadius
	}
	cx, cy := ic.ImageToCanvas(m.X+0.5, m.Y+0.5)
	radius := r * ic.zoom
	if radius < 2 {
		radius = 2
	}
	ic.drawCircle(output, cx, cy, radius, m.Color)

	if m.Label != "" {
		scale := labelScale(ic.zoom)
		ic.drawText(output, m.Label, int(cx+radius)+2*scale, int(cy)-5*scale/2, m.Color, scale)
	}
}

func labelScale(zoom float64) int {
	scale := int(zoom * 2)
	if scale < 2 {
		scale = 2
	}
	if scale > 6 {
		scale = 6
	}
	return scale
}

// drawCircle draws a filled circle centered at (cx, cy) in canvas pixels.
func (ic *ImageCanvas) drawCircle(output *image.RGBA, cx, cy, r float64, col color.RGBA) {
	bounds := output.Bounds()
	minX, maxX := int(cx-r-1), int(cx+r+1)
	minY, maxY := int(cy-r-1), int(cy+r+1)
	r2 := r * r

	for y := minY; y <= maxY; y++ {
		if y < bounds.Min.Y || y >= bounds.Max.Y {
			continue
		}
		for x := minX; x <= maxX; x++ {
			if x < bounds.Min.X || x >= bounds.Max.X {
				continue
			}
			dx := float64(x) + 0.5 - cx
			dy := float64(y) + 0.5 - cy
			if dx*dx+dy*dy <= r2 {
				output.SetRGBA(x, y, col)
			}
		}
	}
}

// drawText draws label with its top-left corner at (x, y) over a dark box
// so it stays readable on bright thermal colors.
func (ic *ImageCanvas) drawText(output *image.RGBA, label string, x, y int, col color.RGBA, scale int) {
	bounds := output.Bounds()
	charWidth := 3 * scale
	spacing := scale
	n := len([]rune(label))
	width := n*charWidth + (n-1)*spacing

	for py := y - scale; py < y+6*scale; py++ {
		for px := x - scale; px < x+width+scale; px++ {
			if (image.Point{X: px, Y: py}).In(bounds) {
				output.SetRGBA(px, py, labelBackground)
			}
		}
	}

	i := 0
	for _, ch := range label {
		pattern := getCharPattern(ch)
		charX := x + i*(charWidth+spacing)
		i++
		for row := 0; row < 5; row++ {
			for c := 0; c < 3; c++ {
				if pattern[row]&(1<<(2-c)) == 0 {
					continue
				}
				for dy := 0; dy < scale; dy++ {
					for dx := 0; dx < scale; dx++ {
						px := charX + c*scale + dx
						py := y + row*scale + dy
						if (image.Point{X: px, Y: py}).In(bounds) {
							output.SetRGBA(px, py, col)
						}
					}
				}
			}
		}
	}
}
