// Package ocr reads the spot temperature printed by the thermal camera in
// the corner of every frame.
package ocr

import (
	"fmt"
	"image"
	"strings"

	"sma-lab/pkg/geometry"

	"github.com/otiai10/gosseract/v2"
	"gocv.io/x/gocv"
)

// NumericChars is the character set of the temperature overlay.
const NumericChars = "0123456789.-"

// Default overlay region and binarization threshold.
var (
	DefaultRegion    = geometry.RectInt{X: 260, Y: 10, Width: 120, Height: 40}
	DefaultThreshold = 240.0
)

// Engine provides OCR of the overlay using Tesseract.
type Engine struct {
	client    *gosseract.Client
	region    geometry.RectInt
	threshold float64
}

// NewEngine creates an engine reading region with the given threshold.
func NewEngine(region geometry.RectInt, threshold float64) (*Engine, error) {
	client := gosseract.NewClient()

	if err := client.SetLanguage("eng"); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set OCR language: %w", err)
	}

	// Readings are not words.
	_ = client.SetVariable("load_system_dawg", "false")
	_ = client.SetVariable("load_freq_dawg", "false")

	// PSM 8 = treat the image as a single word
	if err := client.SetPageSegMode(gosseract.PSM_SINGLE_WORD); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set PSM: %w", err)
	}
	if err := client.SetWhitelist(NumericChars); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to set whitelist: %w", err)
	}

	return &Engine{client: client, region: region, threshold: threshold}, nil
}

// Close releases OCR resources.
func (e *Engine) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Region returns the overlay region.
func (e *Engine) Region() geometry.RectInt {
	return e.region
}

// Threshold returns the binarization threshold.
func (e *Engine) Threshold() float64 {
	return e.threshold
}

// SetThreshold changes the binarization threshold.
func (e *Engine) SetThreshold(t float64) {
	e.threshold = t
}

// ReadFile reads the overlay temperature of the image at path. ok is false
// when the text holds no number.
func (e *Engine) ReadFile(path string) (value float64, ok bool, err error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return 0, false, fmt.Errorf("failed to load image %s", path)
	}
	defer img.Close()

	text, err := e.RecognizeRegion(img, e.region, e.threshold)
	if err != nil {
		return 0, false, err
	}
	value, ok = ExtractNumericValue(text)
	return value, ok, nil
}

// RecognizeRegion performs OCR on a region of an image.
func (e *Engine) RecognizeRegion(img gocv.Mat, bounds geometry.RectInt, threshold float64) (string, error) {
	if img.Empty() {
		return "", fmt.Errorf("empty image")
	}

	r := bounds.Clip(image.Rect(0, 0, img.Cols(), img.Rows()))
	if r.Empty() {
		return "", fmt.Errorf("region %+v outside %dx%d image", bounds, img.Cols(), img.Rows())
	}

	region := img.Region(r.Rectangle())
	defer region.Close()

	processed := binarize(region, threshold)
	defer processed.Close()

	buf, err := gocv.IMEncode(gocv.PNGFileExt, processed)
	if err != nil {
		return "", fmt.Errorf("failed to encode image: %w", err)
	}
	defer buf.Close()

	if err := e.client.SetImageFromBytes(buf.GetBytes()); err != nil {
		return "", fmt.Errorf("failed to set image: %w", err)
	}

	text, err := e.client.Text()
	if err != nil {
		return "", fmt.Errorf("OCR failed: %w", err)
	}
	return strings.TrimSpace(text), nil
}

// binarize converts a BGR region to a black and white mask. Overlay digits
// are near white, so a fixed high threshold isolates them.
func binarize(region gocv.Mat, threshold float64) gocv.Mat {
	gray := gocv.NewMat()
	defer gray.Close()
	if region.Channels() == 1 {
		region.CopyTo(&gray)
	} else {
		gocv.CvtColor(region, &gray, gocv.ColorBGRToGray)
	}

	binary := gocv.NewMat()
	gocv.Threshold(gray, &binary, float32(threshold), 255, gocv.ThresholdBinary)
	return binary
}
