// Package schedule holds the locally edited weekly schedule blocks and
// tracks whether they differ from the last persisted state.
package schedule

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Limits and defaults for schedule blocks.
const (
	MaxBlocks    = 5
	DaysPerWeek  = 7
	DefaultStart = "07:30"
	DefaultEnd   = "23:00"
)

// ErrInvalidTime is returned for values that are not HH:MM.
var ErrInvalidTime = errors.New("time must be HH:MM")

// Days is a set of weekday indices (Monday=0 ... Sunday=6).
// A nil Days means every day; a non-nil empty Days means no day at all.
type Days []int

// AllDays reports whether d is the "every day" sentinel.
func (d Days) AllDays() bool {
	return d == nil
}

// Contains reports whether day is active in d.
func (d Days) Contains(day int) bool {
	if d == nil {
		return true
	}
	for _, v := range d {
		if v == day {
			return true
		}
	}
	return false
}

// Equal compares two day sets. The sentinel only equals the sentinel.
func (d Days) Equal(other Days) bool {
	if d == nil || other == nil {
		return d == nil && other == nil
	}
	if len(d) != len(other) {
		return false
	}
	for i := range d {
		if d[i] != other[i] {
			return false
		}
	}
	return true
}

// Clone returns a copy that preserves the nil/empty distinction.
func (d Days) Clone() Days {
	if d == nil {
		return nil
	}
	out := make(Days, len(d))
	copy(out, d)
	return out
}

// Canonical sorts, deduplicates and range-checks d.
// A set covering all seven days collapses to the sentinel.
func (d Days) Canonical() Days {
	if d == nil {
		return nil
	}
	var seen [DaysPerWeek]bool
	out := make(Days, 0, len(d))
	for _, v := range d {
		if v < 0 || v >= DaysPerWeek || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Ints(out)
	if len(out) == DaysPerWeek {
		return nil
	}
	return out
}

// Toggle flips day in d and returns the canonical result.
func (d Days) Toggle(day int) Days {
	if d == nil {
		out := make(Days, 0, DaysPerWeek-1)
		for v := 0; v < DaysPerWeek; v++ {
			if v != day {
				out = append(out, v)
			}
		}
		return out
	}

	if d.Contains(day) {
		out := make(Days, 0, len(d))
		for _, v := range d {
			if v != day {
				out = append(out, v)
			}
		}
		return out
	}

	out := append(d.Clone(), day)
	sort.Ints(out)
	if len(out) == DaysPerWeek {
		return nil
	}
	return out
}

// Block is one schedule window.
type Block struct {
	StartHHMM string `json:"start_hhmm"`
	EndHHMM   string `json:"end_hhmm"`
	Days      Days   `json:"days"`
	Enabled   bool   `json:"enabled"`
}

// DefaultBlock returns the block created by "add block".
func DefaultBlock() Block {
	return Block{
		StartHHMM: DefaultStart,
		EndHHMM:   DefaultEnd,
		Days:      nil,
		Enabled:   true,
	}
}

// Equal reports an exact field match, including day-set identity.
func (b Block) Equal(other Block) bool {
	return b.StartHHMM == other.StartHHMM &&
		b.EndHHMM == other.EndHHMM &&
		b.Enabled == other.Enabled &&
		b.Days.Equal(other.Days)
}

// Clone returns a deep copy of b.
func (b Block) Clone() Block {
	b.Days = b.Days.Clone()
	return b
}

// ServerBlock is a block as reported by the tree server; any field may be
// missing.
type ServerBlock struct {
	StartHHMM string `json:"start_hhmm,omitempty"`
	EndHHMM   string `json:"end_hhmm,omitempty"`
	Days      Days   `json:"days"`
	Enabled   *bool  `json:"enabled,omitempty"`
}

// Normalize fills missing fields with the defaults used for new blocks.
func (s ServerBlock) Normalize() Block {
	b := Block{
		StartHHMM: s.StartHHMM,
		EndHHMM:   s.EndHHMM,
		Days:      s.Days.Canonical(),
		Enabled:   s.Enabled == nil || *s.Enabled,
	}
	if b.StartHHMM == "" {
		b.StartHHMM = DefaultStart
	}
	if b.EndHHMM == "" {
		b.EndHHMM = DefaultEnd
	}
	return b
}

// ParseHHMM parses a 24-hour HH:MM string into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, s)
	}
	return h*60 + m, nil
}

func cloneBlocks(blocks []Block) []Block {
	out := make([]Block, len(blocks))
	for i, b := range blocks {
		out[i] = b.Clone()
	}
	return out
}

func blocksEqual(a, b []Block) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}
