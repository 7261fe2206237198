package deflection

import (
	"fmt"

	"sma-lab/pkg/geometry"

	"gocv.io/x/gocv"
)

// Detector finds the rig markers in camera frames.
type Detector struct {
	detector gocv.ArucoDetector
	sizeMM   float64
}

// NewDetector creates a detector for 4x4_50 markers of the given size.
func NewDetector(sizeMM float64) *Detector {
	dict := gocv.GetPredefinedDictionary(gocv.ArucoDict4x4_50)
	params := gocv.NewArucoDetectorParameters()
	return &Detector{
		detector: gocv.NewArucoDetectorWithParams(dict, params),
		sizeMM:   sizeMM,
	}
}

// Close releases the detector.
func (d *Detector) Close() error {
	return d.detector.Close()
}

// Detect returns the markers found in img.
func (d *Detector) Detect(img gocv.Mat) ([]Marker, error) {
	if img.Empty() {
		return nil, fmt.Errorf("empty image")
	}

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	corners, ids, _ := d.detector.DetectMarkers(gray)
	markers := make([]Marker, 0, len(ids))
	for i, id := range ids {
		if len(corners[i]) != 4 {
			continue
		}
		m := Marker{ID: id}
		for j, p := range corners[i] {
			m.Corners[j] = geometry.Point2D{X: float64(p.X), Y: float64(p.Y)}
		}
		markers = append(markers, m)
	}
	return markers, nil
}

// Distance detects the markers in img and measures their distance.
func (d *Detector) Distance(img gocv.Mat) (float64, error) {
	markers, err := d.Detect(img)
	if err != nil {
		return 0, err
	}
	return Measure(markers, d.sizeMM)
}

// DistanceFile measures the marker distance in the image at path.
func (d *Detector) DistanceFile(path string) (float64, error) {
	img := gocv.IMRead(path, gocv.IMReadColor)
	if img.Empty() {
		return 0, fmt.Errorf("failed to load image %s", path)
	}
	defer img.Close()
	return d.Distance(img)
}

// Draw outlines markers on img.
func Draw(img *gocv.Mat, markers []Marker) {
	if len(markers) == 0 {
		return
	}
	corners := make([][]gocv.Point2f, len(markers))
	ids := make([]int, len(markers))
	for i, m := range markers {
		ids[i] = m.ID
		for _, c := range m.Corners {
			corners[i] = append(corners[i], gocv.Point2f{X: float32(c.X), Y: float32(c.Y)})
		}
	}
	gocv.ArucoDrawDetectedMarkers(*img, corners, ids, gocv.NewScalar(0, 255, 0, 0))
}
