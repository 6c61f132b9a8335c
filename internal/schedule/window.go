package schedule

import "time"

// Weekday converts a time.Weekday to the Monday=0 index used by Days.
func Weekday(wd time.Weekday) int {
	return (int(wd) + 6) % DaysPerWeek
}

// Contains reports whether t falls inside the block's window.
// A disabled block, an unparsable time or start == end is never active.
// A window with start after end crosses midnight.
func (b Block) Contains(t time.Time) bool {
	if !b.Enabled || !b.Days.Contains(Weekday(t.Weekday())) {
		return false
	}
	start, err := ParseHHMM(b.StartHHMM)
	if err != nil {
		return false
	}
	end, err := ParseHHMM(b.EndHHMM)
	if err != nil {
		return false
	}
	now := t.Hour()*60 + t.Minute()

	switch {
	case start == end:
		return false
	case start < end:
		return start <= now && now < end
	default:
		return now >= start || now < end
	}
}

// ActiveAt reports whether any block is active at t.
func ActiveAt(blocks []Block, t time.Time) bool {
	for _, b := range blocks {
		if b.Contains(t) {
			return true
		}
	}
	return false
}
