package session

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoImages means no dataset row could be paired with an image.
	ErrNoImages = errors.New("no images match the dataset timestamps")

	// ErrNothingToShow is returned by navigation when the index is empty.
	ErrNothingToShow = errors.New("no images to show")

	// ErrNoDataset is returned by Save when the dataset cannot be merged.
	ErrNoDataset = errors.New("no dataset to save")
)

// MissingColumnsError reports dataset columns the analyzer needs.
type MissingColumnsError struct {
	Path    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	return fmt.Sprintf("%s: missing columns %s", e.Path, strings.Join(e.Columns, ", "))
}

// UnmatchedTimestampWarning reports a dataset row without an image. The row
// is left out of navigation and written back unchanged.
type UnmatchedTimestampWarning struct {
	Row       int
	Timestamp string
}

func (w *UnmatchedTimestampWarning) Error() string {
	return fmt.Sprintf("row %d: no image for timestamp %q", w.Row+1, w.Timestamp)
}
