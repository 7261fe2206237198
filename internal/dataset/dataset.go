// Package dataset provides the CSV tables exchanged by the lab tools.
//
// Every cell is kept as the string read from disk so columns the tools do not
// understand are written back untouched.
package dataset

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"
)

// Column names shared across the toolkit.
const (
	ColTimestamp      = "timestamp"
	ColCurrent        = "current_mA"
	ColForce          = "force_N"
	ColForceMod       = "force_N_mod"
	ColVoltageSMA     = "busVoltage_SMA_V"
	ColVoltageRef     = "busVoltage_ref_V"
	ColDeflection     = "deflexion_mm"
	ColRawDistance    = "distancia_raw_mm"
	ColTemperature    = "temperature"
	ColCalTemperature = "Temperature"
	ColCalR           = "R"
	ColCalG           = "G"
	ColCalB           = "B"
)

// ExperimentColumns is the header written by the acquisition rig.
var ExperimentColumns = []string{
	ColTimestamp, ColCurrent, ColForce, ColVoltageSMA, ColVoltageRef, ColDeflection,
}

// TimestampLayout is the second-resolution part of a row timestamp. The
// rig appends "_mmm" milliseconds.
const TimestampLayout = "20060102_150405"

// ParseTimestamp parses a YYYYMMDD_HHMMSS[_mmm] row timestamp in local
// time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if len(s) < len(TimestampLayout) {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	t, err := time.ParseInLocation(TimestampLayout, s[:len(TimestampLayout)], time.Local)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid timestamp %q: %w", s, err)
	}
	rest := s[len(TimestampLayout):]
	if rest == "" {
		return t, nil
	}
	ms, err := strconv.Atoi(strings.TrimPrefix(rest, "_"))
	if err != nil || !strings.HasPrefix(rest, "_") || ms < 0 || ms > 999 {
		return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
	}
	return t.Add(time.Duration(ms) * time.Millisecond), nil
}

// UnnamedColumn names a data column at index i that has no header cell.
func UnnamedColumn(i int) string {
	return "Unnamed: " + strconv.Itoa(i)
}

// PointColumns returns the temperature and position columns of sample
// point slot (zero based).
func PointColumns(slot int) (temp, x, y string) {
	n := strconv.Itoa(slot + 1)
	return "temp_point" + n, "x_point" + n, "y_point" + n
}

// Table is an in-memory CSV table with a header row.
type Table struct {
	header []string
	index  map[string]int
	rows   [][]string
}

// New creates an empty table with the given header.
func New(header ...string) *Table {
	t := &Table{header: append([]string(nil), header...)}
	t.reindex()
	return t
}

// Read parses a CSV stream. The first record is the header.
func Read(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse CSV: %w", err)
	}
	if len(records) == 0 {
		return New(), nil
	}

	header := records[0]
	if len(header) > 0 {
		// Spreadsheet exports often start with a UTF-8 BOM.
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	// Cells past the header get placeholder columns so they survive a
	// write-back.
	for _, rec := range records[1:] {
		for i := len(header); i < len(rec); i++ {
			header = append(header, UnnamedColumn(i))
		}
	}

	t := New(header...)
	for _, rec := range records[1:] {
		if len(rec) == 1 && strings.TrimSpace(rec[0]) == "" && len(header) > 1 {
			continue
		}
		t.rows = append(t.rows, t.fit(rec))
	}
	return t, nil
}

// ReadFile loads a CSV file.
func ReadFile(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	t, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}

// Write serializes the table as CSV.
func (t *Table) Write(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(t.header); err != nil {
		return err
	}
	if err := writer.WriteAll(t.rows); err != nil {
		return err
	}
	return writer.Error()
}

// WriteFile writes the table to path, replacing any existing file.
func (t *Table) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err := t.Write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// Header returns a copy of the column names.
func (t *Table) Header() []string {
	return append([]string(nil), t.header...)
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	return len(t.rows)
}

// Row returns a copy of row i.
func (t *Table) Row(i int) []string {
	return append([]string(nil), t.rows[i]...)
}

// Has reports whether the column exists.
func (t *Table) Has(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Missing returns the names not present in the header, in argument order.
func (t *Table) Missing(names ...string) []string {
	var missing []string
	for _, n := range names {
		if !t.Has(n) {
			missing = append(missing, n)
		}
	}
	return missing
}

// EnsureColumn appends an empty column if it does not exist yet.
func (t *Table) EnsureColumn(name string) {
	if t.Has(name) {
		return
	}
	t.header = append(t.header, name)
	t.index[name] = len(t.header) - 1
	for i := range t.rows {
		t.rows[i] = append(t.rows[i], "")
	}
}

// Get returns the cell at row i of the named column, or "" when the column
// does not exist.
func (t *Table) Get(i int, name string) string {
	col, ok := t.index[name]
	if !ok {
		return ""
	}
	return t.rows[i][col]
}

// Set stores a cell value, creating the column when needed.
func (t *Table) Set(i int, name, value string) {
	t.EnsureColumn(name)
	t.rows[i][t.index[name]] = value
}

// SetFloat stores a float cell using the shortest exact representation.
func (t *Table) SetFloat(i int, name string, v float64) {
	t.Set(i, name, FormatFloat(v))
}

// SetInt stores an integer cell.
func (t *Table) SetInt(i int, name string, v int) {
	t.Set(i, name, strconv.Itoa(v))
}

// Float parses a numeric cell. Empty or non-numeric cells report false.
func (t *Table) Float(i int, name string) (float64, bool) {
	s := strings.TrimSpace(t.Get(i, name))
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Column returns all values of the named column.
func (t *Table) Column(name string) []string {
	col, ok := t.index[name]
	if !ok {
		return nil
	}
	values := make([]string, len(t.rows))
	for i, row := range t.rows {
		values[i] = row[col]
	}
	return values
}

// Append adds a row. Missing trailing cells are filled with "".
func (t *Table) Append(values ...string) {
	t.rows = append(t.rows, t.fit(values))
}

// Keep retains only the rows for which keep returns true.
func (t *Table) Keep(keep func(i int) bool) {
	kept := t.rows[:0]
	for i, row := range t.rows {
		if keep(i) {
			kept = append(kept, row)
		}
	}
	t.rows = kept
}

// Subset returns a new table with the rows selected by keep.
func (t *Table) Subset(keep func(i int) bool) *Table {
	out := New(t.header...)
	for i, row := range t.rows {
		if keep(i) {
			out.rows = append(out.rows, append([]string(nil), row...))
		}
	}
	return out
}

func (t *Table) reindex() {
	t.index = make(map[string]int, len(t.header))
	for i, h := range t.header {
		if _, dup := t.index[h]; !dup {
			t.index[h] = i
		}
	}
}

func (t *Table) fit(rec []string) []string {
	row := make([]string, len(t.header))
	copy(row, rec)
	return row
}

// FormatFloat renders v the way the lab spreadsheets expect: no exponent for
// ordinary magnitudes and no trailing zeros.
func FormatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
