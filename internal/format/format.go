// Package format renders countdown and status strings for the view.
package format

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Clock is the hour cycle used for rendered times.
type Clock string

const (
	Clock24 Clock = "24h"
	Clock12 Clock = "12h"
)

// ParseClock parses a clock name, defaulting to 24h.
func ParseClock(s string) Clock {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "12h", "12":
		return Clock12
	default:
		return Clock24
	}
}

// Formatter renders times in a fixed location and hour cycle.
type Formatter struct {
	Clock    Clock
	Location *time.Location
}

// New creates a Formatter. A nil location means time.Local.
func New(clock Clock, loc *time.Location) Formatter {
	if loc == nil {
		loc = time.Local
	}
	return Formatter{Clock: clock, Location: loc}
}

// Time renders t as hour:minute.
func (f Formatter) Time(t time.Time) string {
	loc := f.Location
	if loc == nil {
		loc = time.Local
	}
	if f.Clock == Clock12 {
		return t.In(loc).Format("03:04 PM")
	}
	return t.In(loc).Format("15:04")
}

// Countdown describes how long the countdown keeps the tree on.
// Remaining minutes are rounded up so an active countdown never shows 0.
func (f Formatter) Countdown(until *time.Time, now time.Time) string {
	if until == nil || until.IsZero() {
		return "No countdown set."
	}
	remaining := until.Sub(now)
	if remaining <= 0 {
		return "Countdown expired."
	}

	mins := int(math.Ceil(float64(remaining) / float64(time.Minute)))
	if mins < 60 {
		return fmt.Sprintf("On for ~%d min more (until %s).", mins, f.Time(*until))
	}
	return fmt.Sprintf("On for ~%dh %dm more (until %s).", mins/60, mins%60, f.Time(*until))
}

// Status is the input of StatusLine.
type Status struct {
	Mode           string
	ProgramRunning bool
	ProgramID      string
	InWindow       bool
	Now            time.Time
}

// StatusLine joins mode, runner, schedule window and time into one line.
func (f Formatter) StatusLine(s Status) string {
	running := "Stopped"
	if s.ProgramRunning {
		running = "Running: " + s.ProgramID
	}
	window := "out of schedule"
	if s.InWindow {
		window = "in schedule"
	}
	return strings.Join([]string{ModeLabel(s.Mode), running, window, f.Time(s.Now)}, " • ")
}

// ModeLabel returns the short label of a mode. Unknown modes read as Auto.
func ModeLabel(mode string) string {
	switch mode {
	case "manual_on":
		return "On"
	case "manual_off":
		return "Off"
	default:
		return "Auto"
	}
}
