package ocr

import (
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`-?\d+\.?\d*`)

// ExtractNumericValue returns the first number in OCR text. Whitespace is
// dropped first so "3 6.5" reads as 36.5.
func ExtractNumericValue(text string) (float64, bool) {
	cleaned := strings.Join(strings.Fields(text), "")
	m := numberPattern.FindString(cleaned)
	if m == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
