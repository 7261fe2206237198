package ocr

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Threshold search range of TuneThreshold.
const (
	minTuneThreshold  = 50
	maxTuneThreshold  = 255
	tuneThresholdStep = 10
)

// TuneResult is the outcome of TuneThreshold.
type TuneResult struct {
	Threshold float64
	Text      string
	Value     float64
	Agreeing  int
}

// TuneThreshold picks the binarization threshold for the engine region on
// a sample frame. Every threshold in the search range is tried; the value
// read by the most thresholds wins and the highest threshold that read it
// is returned, which keeps the mask tight around the digits.
func (e *Engine) TuneThreshold(img gocv.Mat) (TuneResult, error) {
	type reading struct {
		text string
		t    float64
	}
	votes := make(map[float64]int)
	best := make(map[float64]reading)

	for t := maxTuneThreshold; t >= minTuneThreshold; t -= tuneThresholdStep {
		text, err := e.RecognizeRegion(img, e.region, float64(t))
		if err != nil {
			return TuneResult{}, err
		}
		v, ok := ExtractNumericValue(text)
		if !ok {
			continue
		}
		votes[v]++
		if _, seen := best[v]; !seen {
			best[v] = reading{text: text, t: float64(t)}
		}
	}

	if len(votes) == 0 {
		return TuneResult{}, fmt.Errorf("no threshold produced a reading")
	}

	var res TuneResult
	for v, n := range votes {
		r := best[v]
		if n > res.Agreeing || (n == res.Agreeing && r.t > res.Threshold) {
			res = TuneResult{Threshold: r.t, Text: r.text, Value: v, Agreeing: n}
		}
	}
	return res, nil
}
