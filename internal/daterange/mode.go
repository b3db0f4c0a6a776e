package daterange

import (
	"fmt"
	"time"
)

// Mode selects the date range of a run without explicit dates.
type Mode string

const (
	// History loads the range configured for the project.
	History Mode = "history"
	// Regular loads the day before yesterday, once the counter data has settled.
	Regular Mode = "regular"
	// RegularEarly loads yesterday.
	RegularEarly Mode = "regular_early"
	// Auto continues from the last successfully loaded day up to yesterday.
	Auto Mode = "auto"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case History, Regular, RegularEarly, Auto:
		return m, nil
	}
	return "", fmt.Errorf("wrong mode %q, expected one of history, regular, regular_early, auto", s)
}

// ModeInputs carries what History and Auto need to resolve a range.
type ModeInputs struct {
	History    Range
	LastLoaded time.Time
}

// ForMode resolves a mode to a range relative to today.
func ForMode(m Mode, today time.Time, in ModeInputs) (Range, error) {
	today = Day(today)
	yesterday := today.AddDate(0, 0, -1)

	switch m {
	case Regular:
		d := today.AddDate(0, 0, -2)
		return Range{Start: d, End: d}, nil
	case RegularEarly:
		return Range{Start: yesterday, End: yesterday}, nil
	case History:
		if in.History.Start.IsZero() || in.History.End.IsZero() {
			return Range{}, fmt.Errorf("history mode needs start_date and end_date in the project file")
		}
		return New(in.History.Start, in.History.End)
	case Auto:
		if in.LastLoaded.IsZero() {
			return Range{Start: yesterday, End: yesterday}, nil
		}
		start := Day(in.LastLoaded).AddDate(0, 0, 1)
		if start.After(yesterday) {
			return Range{}, ErrNothingToLoad
		}
		return Range{Start: start, End: yesterday}, nil
	}
	return Range{}, fmt.Errorf("unknown mode %q", m)
}
