// Package daterange works with inclusive calendar-day ranges as the Logs API
// understands them (date1..date2, both included).
package daterange

import (
	"errors"
	"fmt"
	"time"
)

// Layout is the date format used by the Logs API and on the command line.
const Layout = "2006-01-02"

// ErrNothingToLoad is returned by ForMode when the auto mode is already up to date.
var ErrNothingToLoad = errors.New("no new days to load")

// Range is an inclusive span of calendar days, stored as UTC midnights.
type Range struct {
	Start time.Time
	End   time.Time
}

// Parse reads a YYYY-MM-DD date.
func Parse(s string) (time.Time, error) {
	t, err := time.Parse(Layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q, expected YYYY-MM-DD: %w", s, err)
	}
	return t, nil
}

// Day truncates t to its calendar day in UTC, keeping the date t shows in its own zone.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// New builds a Range, rejecting an end before the start.
func New(start, end time.Time) (Range, error) {
	start, end = Day(start), Day(end)
	if end.Before(start) {
		return Range{}, fmt.Errorf("end date %s is before start date %s", end.Format(Layout), start.Format(Layout))
	}
	return Range{Start: start, End: end}, nil
}

// ParseRange parses both ends of a range.
func ParseRange(start, end string) (Range, error) {
	s, err := Parse(start)
	if err != nil {
		return Range{}, err
	}
	e, err := Parse(end)
	if err != nil {
		return Range{}, err
	}
	return New(s, e)
}

// Days returns the number of days covered, both ends included.
func (r Range) Days() int {
	return int(r.End.Sub(r.Start).Hours()/24) + 1
}

func (r Range) String() string {
	return r.Start.Format(Layout) + ".." + r.End.Format(Layout)
}

// List enumerates every day from start to end inclusive, ascending, as YYYY-MM-DD.
func List(start, end time.Time) ([]string, error) {
	r, err := New(start, end)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, r.Days())
	for d := r.Start; !d.After(r.End); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(Layout))
	}
	return out, nil
}

// Split partitions r into consecutive sub-ranges of interval days. The last sub-range
// holds the remainder. Sub-ranges neither overlap nor skip a day.
func Split(r Range, interval int) []Range {
	if interval < 1 {
		interval = 1
	}
	var out []Range
	for s := r.Start; !s.After(r.End); s = s.AddDate(0, 0, interval) {
		e := s.AddDate(0, 0, interval-1)
		if e.After(r.End) {
			e = r.End
		}
		out = append(out, Range{Start: s, End: e})
	}
	return out
}
