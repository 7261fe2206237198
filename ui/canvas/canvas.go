// Package canvas provides an image canvas with zoom and click-to-sample.
package canvas

import (
	"image"
	"image/color"
	"math"

	"fyne.io/fyne/v2"
	fynecanvas "fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/widget"
)

const (
	minZoom  = 0.1
	maxZoom  = 10.0
	zoomStep = 1.25

	// fitMargin leaves a border around a fitted frame.
	fitMargin = 0.95
)

var emptySize = fyne.NewSize(400, 300)

// ImageCanvas shows one frame with its sample markers inside a scroll
// view. Clicks are reported in frame pixels.
type ImageCanvas struct {
	widget.BaseWidget

	img     image.Image
	markers []Marker
	zoom    float64

	raster  *fynecanvas.Raster
	surface *surface
	view    *container.Scroll

	fit      bool
	fittedTo fyne.Size

	onLeftClick func(x, y int)
}

// NewImageCanvas creates an empty canvas.
func NewImageCanvas() *ImageCanvas {
	ic := &ImageCanvas{zoom: 1}
	ic.raster = fynecanvas.NewRaster(ic.draw)
	ic.raster.ScaleMode = fynecanvas.ImageScalePixels
	ic.surface = newSurface(ic)
	ic.view = container.NewScroll(ic.surface)
	ic.view.Direction = container.ScrollBoth
	ic.ExtendBaseWidget(ic)
	ic.resizeSurface()
	return ic
}

// Container returns the object to place in a layout.
func (ic *ImageCanvas) Container() fyne.CanvasObject {
	return ic
}

// SetImage replaces the displayed frame. nil clears the canvas.
func (ic *ImageCanvas) SetImage(img image.Image) {
	ic.img = img
	if ic.fit && ic.fitZoom() {
		return
	}
	ic.resizeSurface()
}

// Image returns the displayed frame.
func (ic *ImageCanvas) Image() image.Image {
	return ic.img
}

// SetMarkers replaces the markers.
func (ic *ImageCanvas) SetMarkers(markers []Marker) {
	ic.markers = append([]Marker(nil), markers...)
	ic.raster.Refresh()
}

// Markers returns the markers on screen.
func (ic *ImageCanvas) Markers() []Marker {
	return ic.markers
}

// Zoom returns the current scale factor.
func (ic *ImageCanvas) Zoom() float64 {
	return ic.zoom
}

// SetZoom sets the scale factor, clamped to the supported range.
func (ic *ImageCanvas) SetZoom(zoom float64) {
	ic.zoom = math.Max(minZoom, math.Min(maxZoom, zoom))
	ic.resizeSurface()
}

// ZoomIn enlarges the frame by one step.
func (ic *ImageCanvas) ZoomIn() {
	ic.SetZoom(ic.zoom * zoomStep)
}

// ZoomOut shrinks the frame by one step.
func (ic *ImageCanvas) ZoomOut() {
	ic.SetZoom(ic.zoom / zoomStep)
}

// FitToWindow scales the frame to the visible area once.
func (ic *ImageCanvas) FitToWindow() {
	ic.fitZoom()
}

// SetFitToWindow keeps the frame fitted to the view while enabled.
func (ic *ImageCanvas) SetFitToWindow(fit bool) {
	ic.fit = fit
	if fit {
		ic.fitZoom()
	}
}

// FitsWindow reports whether auto-fit is enabled.
func (ic *ImageCanvas) FitsWindow() bool {
	return ic.fit
}

// OnLeftClick sets the click callback. It receives the frame pixel under
// the pointer, which may lie outside the frame.
func (ic *ImageCanvas) OnLeftClick(callback func(x, y int)) {
	ic.onLeftClick = callback
}

// CanvasToImage converts content coordinates to the frame pixel they show.
func (ic *ImageCanvas) CanvasToImage(cx, cy float64) (x, y int) {
	return int(math.Floor(cx / ic.zoom)), int(math.Floor(cy / ic.zoom))
}

// ImageToCanvas converts frame coordinates to content coordinates.
func (ic *ImageCanvas) ImageToCanvas(x, y float64) (cx, cy float64) {
	return x * ic.zoom, y * ic.zoom
}

// Refresh redraws the frame and markers.
func (ic *ImageCanvas) Refresh() {
	ic.raster.Refresh()
}

// CreateRenderer implements fyne.Widget.
func (ic *ImageCanvas) CreateRenderer() fyne.WidgetRenderer {
	return &viewRenderer{ic: ic}
}

// tapAt handles a tap at view position (vx, vy).
func (ic *ImageCanvas) tapAt(vx, vy float64) {
	if ic.onLeftClick == nil {
		return
	}
	off := ic.view.Offset
	ic.onLeftClick(ic.CanvasToImage(vx+float64(off.X), vy+float64(off.Y)))
}

// frameSize is the size of the frame in pixels, zero without a frame.
func (ic *ImageCanvas) frameSize() (w, h int) {
	if ic.img == nil {
		return 0, 0
	}
	b := ic.img.Bounds()
	return b.Dx(), b.Dy()
}

// fitZoom picks the zoom that fits the frame into the view. It reports
// false when there is no frame or the view has no size yet.
func (ic *ImageCanvas) fitZoom() bool {
	fw, fh := ic.frameSize()
	size := ic.view.Size()
	if fw == 0 || fh == 0 || size.Width <= 0 || size.Height <= 0 {
		return false
	}
	zx := float64(size.Width) / float64(fw)
	zy := float64(size.Height) / float64(fh)
	ic.SetZoom(math.Min(zx, zy) * fitMargin)
	return true
}

func (ic *ImageCanvas) resizeSurface() {
	size := emptySize
	if fw, fh := ic.frameSize(); fw > 0 && fh > 0 {
		size = fyne.NewSize(float32(float64(fw)*ic.zoom), float32(float64(fh)*ic.zoom))
	}
	ic.raster.SetMinSize(size)
	ic.raster.Resize(size)
	ic.surface.Resize(size)
	ic.view.Refresh()
	ic.raster.Refresh()
}

// draw renders the visible content at w x h.
func (ic *ImageCanvas) draw(w, h int) image.Image {
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 3; i < len(out.Pix); i += 4 {
		out.Pix[i] = 0xff
	}
	if ic.img != nil {
		ic.drawImage(out)
	}
	for _, m := range ic.markers {
		ic.drawMarker(out, m)
	}
	return out
}

// drawImage scales the frame into out with nearest-neighbour sampling.
func (ic *ImageCanvas) drawImage(out *image.RGBA) {
	src := ic.img.Bounds()
	w := min(out.Rect.Dx(), int(math.Ceil(float64(src.Dx())*ic.zoom)))
	h := min(out.Rect.Dy(), int(math.Ceil(float64(src.Dy())*ic.zoom)))
	for y := 0; y < h; y++ {
		sy := src.Min.Y + int(float64(y)/ic.zoom)
		if sy >= src.Max.Y {
			break
		}
		for x := 0; x < w; x++ {
			sx := src.Min.X + int(float64(x)/ic.zoom)
			if sx >= src.Max.X {
				break
			}
			r, g, b, _ := ic.img.At(sx, sy).RGBA()
			out.SetRGBA(x, y, color.RGBA{R: uint8(r >> 8), G: uint8(g >> 8), B: uint8(b >> 8), A: 0xff})
		}
	}
}

// viewRenderer lays out the scroll view and re-fits on resize.
type viewRenderer struct {
	ic *ImageCanvas
}

func (r *viewRenderer) Layout(size fyne.Size) {
	r.ic.view.Resize(size)
	if r.ic.fit && size != r.ic.fittedTo && r.ic.fitZoom() {
		r.ic.fittedTo = size
	}
}

func (r *viewRenderer) MinSize() fyne.Size {
	return fyne.NewSize(100, 100)
}

func (r *viewRenderer) Refresh() {
	r.ic.raster.Refresh()
}

func (r *viewRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.ic.view}
}

func (r *viewRenderer) Destroy() {}

// surface is the scrolled content. It takes taps and turns the wheel into
// zoom.
type surface struct {
	widget.BaseWidget
	ic *ImageCanvas
}

func newSurface(ic *ImageCanvas) *surface {
	s := &surface{ic: ic}
	s.ExtendBaseWidget(s)
	return s
}

func (s *surface) CreateRenderer() fyne.WidgetRenderer {
	return widget.NewSimpleRenderer(s.ic.raster)
}

func (s *surface) MinSize() fyne.Size {
	return s.ic.raster.MinSize()
}

func (s *surface) Scrolled(ev *fyne.ScrollEvent) {
	switch {
	case ev.Scrolled.DY > 0:
		s.ic.ZoomIn()
	case ev.Scrolled.DY < 0:
		s.ic.ZoomOut()
	}
}

func (s *surface) Tapped(ev *fyne.PointEvent) {
	size := s.Size()
	p := ev.Position
	if p.X < 0 || p.Y < 0 || p.X > size.Width || p.Y > size.Height {
		return
	}
	s.ic.tapAt(float64(p.X), float64(p.Y))
}
