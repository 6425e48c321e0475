package models

import (
	"math"
	"time"
)

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CalendarDays returns every calendar day from start to end inclusive.
// Returns nil when end precedes start.
func CalendarDays(start, end time.Time) []time.Time {
	start = Day(start)
	end = Day(end)

	if end.Before(start) {
		return nil
	}

	days := int(end.Sub(start).Hours()/24) + 1
	dates := make([]time.Time, 0, days)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		dates = append(dates, d)
	}
	return dates
}

// DateFrame is a date-indexed table of float64 columns. Rows are calendar
// days in ascending order; NaN marks a missing observation. Column order is
// insertion order and is preserved by every operation.
type DateFrame struct {
	dates   []time.Time
	index   map[time.Time]int
	columns []string
	data    map[string][]float64
}

// NewDateFrame creates an empty frame over the given dates. Dates are
// truncated to the day and must already be ascending and unique.
func NewDateFrame(dates []time.Time) *DateFrame {
	f := &DateFrame{
		dates: make([]time.Time, len(dates)),
		index: make(map[time.Time]int, len(dates)),
		data:  make(map[string][]float64),
	}
	for i, d := range dates {
		d = Day(d)
		f.dates[i] = d
		f.index[d] = i
	}
	return f
}

// Dates returns the row index.
func (f *DateFrame) Dates() []time.Time { return f.dates }

// Len returns the number of rows.
func (f *DateFrame) Len() int { return len(f.dates) }

// Columns returns column names in insertion order.
func (f *DateFrame) Columns() []string { return f.columns }

// HasColumn reports whether the named column exists.
func (f *DateFrame) HasColumn(name string) bool {
	_, ok := f.data[name]
	return ok
}

// AddColumn creates a NaN-filled column, or returns the existing one.
func (f *DateFrame) AddColumn(name string) []float64 {
	if col, ok := f.data[name]; ok {
		return col
	}
	col := make([]float64, len(f.dates))
	for i := range col {
		col[i] = math.NaN()
	}
	f.columns = append(f.columns, name)
	f.data[name] = col
	return col
}

// SetColumn stores values as the named column. values must have Len() entries.
func (f *DateFrame) SetColumn(name string, values []float64) {
	if _, ok := f.data[name]; !ok {
		f.columns = append(f.columns, name)
	}
	f.data[name] = values
}

// Column returns the named column's backing slice.
func (f *DateFrame) Column(name string) ([]float64, bool) {
	col, ok := f.data[name]
	return col, ok
}

// IndexOf returns the row of the given day.
func (f *DateFrame) IndexOf(date time.Time) (int, bool) {
	i, ok := f.index[Day(date)]
	return i, ok
}

// Value returns the value of column name on date. The second result is
// false when the column or date is absent or the value is missing.
func (f *DateFrame) Value(name string, date time.Time) (float64, bool) {
	col, ok := f.data[name]
	if !ok {
		return 0, false
	}
	i, ok := f.IndexOf(date)
	if !ok || math.IsNaN(col[i]) {
		return 0, false
	}
	return col[i], true
}

// LastDate returns the final row's date, or the zero time for an empty frame.
func (f *DateFrame) LastDate() time.Time {
	if len(f.dates) == 0 {
		return time.Time{}
	}
	return f.dates[len(f.dates)-1]
}

// Set assigns a value by date, ignoring dates outside the index.
func (f *DateFrame) Set(name string, date time.Time, v float64) {
	i, ok := f.IndexOf(date)
	if !ok {
		return
	}
	f.AddColumn(name)[i] = v
}

// Rename moves a column to a new name in place. Renaming onto an existing
// column replaces it.
func (f *DateFrame) Rename(from, to string) {
	if from == to {
		return
	}
	col, ok := f.data[from]
	if !ok {
		return
	}
	if _, exists := f.data[to]; exists {
		f.Drop(to)
	}
	delete(f.data, from)
	f.data[to] = col
	for i, c := range f.columns {
		if c == from {
			f.columns[i] = to
		}
	}
}

// Drop removes a column.
func (f *DateFrame) Drop(name string) {
	if _, ok := f.data[name]; !ok {
		return
	}
	delete(f.data, name)
	for i, c := range f.columns {
		if c == name {
			f.columns = append(f.columns[:i], f.columns[i+1:]...)
			break
		}
	}
}

// Clone returns a deep copy.
func (f *DateFrame) Clone() *DateFrame {
	out := NewDateFrame(f.dates)
	for _, name := range f.columns {
		col := make([]float64, len(f.data[name]))
		copy(col, f.data[name])
		out.SetColumn(name, col)
	}
	return out
}

// ForwardFill replaces each missing value with the last observed value above it.
func (f *DateFrame) ForwardFill() {
	for _, name := range f.columns {
		col := f.data[name]
		last := math.NaN()
		for i, v := range col {
			if math.IsNaN(v) {
				col[i] = last
			} else {
				last = v
			}
		}
	}
}

// BackFill replaces each missing value with the next observed value below it.
func (f *DateFrame) BackFill() {
	for _, name := range f.columns {
		col := f.data[name]
		next := math.NaN()
		for i := len(col) - 1; i >= 0; i-- {
			if math.IsNaN(col[i]) {
				col[i] = next
			} else {
				next = col[i]
			}
		}
	}
}

// MissingRows returns the dates on which column name holds no value.
func (f *DateFrame) MissingRows(name string) []time.Time {
	col, ok := f.data[name]
	if !ok {
		return nil
	}
	var out []time.Time
	for i, v := range col {
		if math.IsNaN(v) {
			out = append(out, f.dates[i])
		}
	}
	return out
}
