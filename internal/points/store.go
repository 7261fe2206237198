// Package points keeps the up-to-three temperature sample points picked on
// each frame of an experiment, plus the default layout reused on frames the
// user never touched.
package points

import (
	"errors"
	"fmt"

	"sma-lab/pkg/colorutil"
	"sma-lab/pkg/geometry"
)

// Slots is the number of sample points per frame.
const Slots = 3

// MoveThreshold is the pixel distance below which a click grabs an existing
// point instead of creating a new one.
const MoveThreshold = 20.0

var (
	// ErrNoSlotAvailable is returned when all slots are used and the click is
	// not close enough to any of them to move it.
	ErrNoSlotAvailable = errors.New("all point slots are in use")

	// ErrOutOfBounds is returned when a position does not address a pixel.
	ErrOutOfBounds = errors.New("position outside image")

	// ErrExcluded is returned when editing an excluded record.
	ErrExcluded = errors.New("record is excluded")
)

// Sampler reads pixel colors in image space.
type Sampler interface {
	RGBAt(x, y int) (colorutil.RGB, bool)
}

// Thermometer converts a pixel color to a temperature.
type Thermometer interface {
	Temperature(c colorutil.RGB) float64
}

// Sample is one measured point. It is replaced, never edited.
type Sample struct {
	Pos         geometry.PointInt `json:"pos"`
	Color       colorutil.RGB     `json:"color"`
	Temperature float64           `json:"temperature"`
}

// Record holds the samples of one timestamp.
type Record struct {
	Timestamp string
	Points    [Slots]*Sample
	Excluded  bool
}

// Count returns the number of occupied slots.
func (r *Record) Count() int {
	n := 0
	for _, p := range r.Points {
		if p != nil {
			n++
		}
	}
	return n
}

// Full reports whether every slot is occupied.
func (r *Record) Full() bool {
	return r.Count() == Slots
}

// nearest returns the occupied slot closest to pos and strictly within
// MoveThreshold, or -1.
func (r *Record) nearest(pos geometry.PointInt) int {
	best := -1
	bestDist := MoveThreshold
	for i, p := range r.Points {
		if p == nil {
			continue
		}
		if d := p.Pos.Distance(pos); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (r *Record) firstEmpty() int {
	for i, p := range r.Points {
		if p == nil {
			return i
		}
	}
	return -1
}

// Defaults is the committed default layout: one position per slot.
type Defaults [Slots]geometry.PointInt

// Store owns every record of an analysis session and the default layout.
// It is not safe for concurrent use.
type Store struct {
	thermo  Thermometer
	records map[string]*Record
	order   []string

	defaults    Defaults
	defaultsSet bool
}

// NewStore creates an empty store that infers temperatures with thermo.
func NewStore(thermo Thermometer) *Store {
	return &Store{
		thermo:  thermo,
		records: make(map[string]*Record),
	}
}

// Record returns the record for ts if one exists.
func (s *Store) Record(ts string) (*Record, bool) {
	r, ok := s.records[ts]
	return r, ok
}

// Ensure returns the record for ts, creating an empty one on first use.
func (s *Store) Ensure(ts string) *Record {
	if r, ok := s.records[ts]; ok {
		return r
	}
	r := &Record{Timestamp: ts}
	s.records[ts] = r
	s.order = append(s.order, ts)
	return r
}

// Records returns all records in creation order.
func (s *Store) Records() []*Record {
	out := make([]*Record, 0, len(s.order))
	for _, ts := range s.order {
		out = append(out, s.records[ts])
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	return len(s.order)
}

// Defaults returns the committed default layout.
func (s *Store) Defaults() (Defaults, bool) {
	return s.defaults, s.defaultsSet
}

// PlaceOrMove handles a click at (x, y) on rec's frame. The nearest point
// within MoveThreshold is moved there; otherwise the first empty slot is
// filled. It returns the affected slot and whether an existing point moved.
func (s *Store) PlaceOrMove(rec *Record, x, y int, img Sampler) (slot int, moved bool, err error) {
	if rec.Excluded {
		return -1, false, ErrExcluded
	}

	pos := geometry.PointInt{X: x, Y: y}
	slot = rec.nearest(pos)
	moved = slot >= 0
	if !moved {
		slot = rec.firstEmpty()
		if slot < 0 {
			return -1, false, ErrNoSlotAvailable
		}
	}

	if err := s.SamplePoint(rec, slot, x, y, img); err != nil {
		return -1, false, err
	}

	s.latchDefaults(rec)
	return slot, moved, nil
}

// SamplePoint reads the pixel at (x, y), infers its temperature and stores
// the result in slot. The slot is untouched on error.
func (s *Store) SamplePoint(rec *Record, slot, x, y int, img Sampler) error {
	if slot < 0 || slot >= Slots {
		return fmt.Errorf("invalid slot %d", slot)
	}
	c, ok := img.RGBAt(x, y)
	if !ok {
		return fmt.Errorf("point %d at (%d,%d): %w", slot+1, x, y, ErrOutOfBounds)
	}
	rec.Points[slot] = &Sample{
		Pos:         geometry.PointInt{X: x, Y: y},
		Color:       c,
		Temperature: s.thermo.Temperature(c),
	}
	return nil
}

// ApplyDefaults samples rec at the default positions. Positions outside the
// frame are skipped and reported in the returned error; the other slots are
// still filled. It does nothing when no defaults are committed.
func (s *Store) ApplyDefaults(rec *Record, img Sampler) (filled int, err error) {
	if !s.defaultsSet || rec.Excluded {
		return 0, nil
	}
	var errs []error
	for slot, pos := range s.defaults {
		if e := s.SamplePoint(rec, slot, pos.X, pos.Y, img); e != nil {
			errs = append(errs, e)
			continue
		}
		filled++
	}
	return filled, errors.Join(errs...)
}

// SetExcluded flags or unflags rec. Excluding discards its samples; they are
// not restored when the flag is cleared.
func (s *Store) SetExcluded(rec *Record, excluded bool) {
	rec.Excluded = excluded
	if excluded {
		rec.Points = [Slots]*Sample{}
	}
}

// latchDefaults commits rec's layout the first time any record is full.
// Later complete layouts never replace it.
func (s *Store) latchDefaults(rec *Record) {
	if s.defaultsSet || !rec.Full() {
		return
	}
	for i, p := range rec.Points {
		s.defaults[i] = p.Pos
	}
	s.defaultsSet = true
}
