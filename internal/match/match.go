// Package match pairs dataset timestamps with captured image files.
package match

import (
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"sma-lab/internal/image"
)

var digitRun = regexp.MustCompile(`\d+`)

// Entry is one navigable position: a timestamp and its image file name.
type Entry struct {
	Timestamp string
	Filename  string
}

// Index is the ordered navigation space of an analysis session.
type Index []Entry

// Find returns the position of ts in the index, or -1.
func (idx Index) Find(ts string) int {
	for i, e := range idx {
		if e.Timestamp == ts {
			return i
		}
	}
	return -1
}

// File returns the filename matched to one timestamp.
// The timestamp must appear verbatim in the name, or equal one of the
// name's maximal digit runs. The first matching filename wins.
func File(ts string, filenames []string) (string, bool) {
	if ts == "" {
		return "", false
	}
	for _, name := range filenames {
		if strings.Contains(name, ts) {
			return name, true
		}
	}
	for _, name := range filenames {
		for _, run := range digitRun.FindAllString(name, -1) {
			if run == ts {
				return name, true
			}
		}
	}
	return "", false
}

// Match returns one filename per timestamp, "" where nothing matches.
func Match(timestamps, filenames []string) []string {
	out := make([]string, len(timestamps))
	for i, ts := range timestamps {
		out[i], _ = File(ts, filenames)
	}
	return out
}

// BuildIndex matches timestamps to filenames and keeps only the matched
// ones, in timestamp order. The positions of unmatched timestamps are
// returned separately. A timestamp listed more than once appears once in
// the index.
func BuildIndex(timestamps, filenames []string) (idx Index, unmatched []int) {
	seen := make(map[string]bool, len(timestamps))
	for i, name := range Match(timestamps, filenames) {
		ts := timestamps[i]
		if name == "" {
			unmatched = append(unmatched, i)
			continue
		}
		if seen[ts] {
			continue
		}
		seen[ts] = true
		idx = append(idx, Entry{Timestamp: ts, Filename: name})
	}
	return idx, unmatched
}

// ListImages returns the names of the supported image files in dir,
// sorted by name.
func ListImages(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || !image.IsSupportedFormat(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}
