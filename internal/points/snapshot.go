package points

import "fmt"

// Snapshot is a serializable copy of a store's state.
type Snapshot struct {
	Records  []RecordSnapshot `json:"records"`
	Defaults *Defaults        `json:"defaults,omitempty"`
}

// RecordSnapshot is the serializable form of a Record.
type RecordSnapshot struct {
	Timestamp string         `json:"timestamp"`
	Points    [Slots]*Sample `json:"points"`
	Excluded  bool           `json:"excluded"`
}

// Snapshot copies the store's records and defaults.
func (s *Store) Snapshot() Snapshot {
	snap := Snapshot{Records: make([]RecordSnapshot, 0, len(s.order))}
	for _, ts := range s.order {
		r := s.records[ts]
		rs := RecordSnapshot{Timestamp: r.Timestamp, Excluded: r.Excluded}
		for i, p := range r.Points {
			if p != nil {
				cp := *p
				rs.Points[i] = &cp
			}
		}
		snap.Records = append(snap.Records, rs)
	}
	if s.defaultsSet {
		d := s.defaults
		snap.Defaults = &d
	}
	return snap
}

// Restore replaces the store's state with snap.
func (s *Store) Restore(snap Snapshot) error {
	records := make(map[string]*Record, len(snap.Records))
	order := make([]string, 0, len(snap.Records))
	for _, rs := range snap.Records {
		if _, dup := records[rs.Timestamp]; dup {
			return fmt.Errorf("duplicate record for timestamp %q", rs.Timestamp)
		}
		r := &Record{Timestamp: rs.Timestamp, Excluded: rs.Excluded}
		if !rs.Excluded {
			for i, p := range rs.Points {
				if p != nil {
					cp := *p
					r.Points[i] = &cp
				}
			}
		}
		records[rs.Timestamp] = r
		order = append(order, rs.Timestamp)
	}

	s.records = records
	s.order = order
	s.defaults = Defaults{}
	s.defaultsSet = snap.Defaults != nil
	if s.defaultsSet {
		s.defaults = *snap.Defaults
	}
	return nil
}
