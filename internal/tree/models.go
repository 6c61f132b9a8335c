package tree

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/schedule"
)

// Mode is the power policy of the tree.
type Mode string

const (
	ModeManualOn  Mode = "manual_on"
	ModeManualOff Mode = "manual_off"
	ModeAuto      Mode = "auto"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeManualOn, ModeManualOff, ModeAuto:
		return true
	}
	return false
}

// Program is one selectable light program.
type Program struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	DefaultSpeed float64 `json:"default_speed,omitempty"`
}

// Brightness holds body and star brightness in percent.
type Brightness struct {
	BodyPct *float64 `json:"body_pct,omitempty"`
	StarPct *float64 `json:"star_pct,omitempty"`
}

// Runtime describes the program runner on the device.
type Runtime struct {
	ProgramRunning bool    `json:"program_running"`
	ProgramID      *string `json:"program_id"`
}

// LegacySchedule is the single-window schedule object of older servers.
type LegacySchedule struct {
	StartHHMM   string        `json:"start_hhmm"`
	EndHHMM     string        `json:"end_hhmm"`
	Days        schedule.Days `json:"days"`
	InWindowNow *bool         `json:"in_window_now"`
}

// State is the snapshot returned by GET /api/state. Optional fields are
// pointers so missing values can be told apart from zero values.
type State struct {
	Mode            Mode                   `json:"mode"`
	ProgramID       string                 `json:"program_id"`
	Programs        []Program              `json:"programs"`
	ProgramSpeed    *float64               `json:"program_speed"`
	ProgramSpeedMin *float64               `json:"program_speed_min"`
	ProgramSpeedMax *float64               `json:"program_speed_max"`
	Brightness      *Brightness            `json:"brightness"`
	ScheduleBlocks  []schedule.ServerBlock `json:"schedule_blocks"`
	Schedule        *LegacySchedule        `json:"schedule,omitempty"`
	InWindowNow     *bool                  `json:"in_window_now"`
	CountdownUntil  Timestamp              `json:"countdown_until"`
	Runtime         *Runtime               `json:"runtime"`
	Now             Timestamp              `json:"now"`
}

// UnmarshalJSON reads the speed fields leniently: numbers and numeric
// strings are accepted, anything else reads as missing.
func (s *State) UnmarshalJSON(data []byte) error {
	type plain State
	aux := struct {
		*plain
		ProgramSpeed    json.RawMessage `json:"program_speed"`
		ProgramSpeedMin json.RawMessage `json:"program_speed_min"`
		ProgramSpeedMax json.RawMessage `json:"program_speed_max"`
	}{plain: (*plain)(s)}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	s.ProgramSpeed = lenientNumber("program_speed", aux.ProgramSpeed)
	s.ProgramSpeedMin = lenientNumber("program_speed_min", aux.ProgramSpeedMin)
	s.ProgramSpeedMax = lenientNumber("program_speed_max", aux.ProgramSpeedMax)
	return nil
}

func lenientNumber(field string, raw json.RawMessage) *float64 {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		var str string
		if json.Unmarshal(raw, &str) != nil {
			log.Debug().Str("field", field).RawJSON("value", raw).Msg("Ignoring non-numeric field")
			return nil
		}
		parsed, err := strconv.ParseFloat(strings.TrimSpace(str), 64)
		if err != nil {
			log.Debug().Str("field", field).Str("value", str).Msg("Ignoring non-numeric field")
			return nil
		}
		v = parsed
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

// Blocks returns the server's schedule blocks, falling back to the legacy
// single schedule object.
func (s *State) Blocks() []schedule.ServerBlock {
	if s.ScheduleBlocks != nil || s.Schedule == nil {
		return s.ScheduleBlocks
	}
	return []schedule.ServerBlock{{
		StartHHMM: s.Schedule.StartHHMM,
		EndHHMM:   s.Schedule.EndHHMM,
		Days:      s.Schedule.Days,
	}}
}

// InWindow returns the server's in-window flag, or nil when not reported.
func (s *State) InWindow() *bool {
	if s.InWindowNow != nil {
		return s.InWindowNow
	}
	if s.Schedule != nil {
		return s.Schedule.InWindowNow
	}
	return nil
}

// Running returns whether a program is executing and its id.
func (s *State) Running() (bool, string) {
	if s.Runtime == nil || !s.Runtime.ProgramRunning {
		return false, ""
	}
	if s.Runtime.ProgramID == nil {
		return true, ""
	}
	return true, *s.Runtime.ProgramID
}

// BrightnessUpdate is a partial brightness change; nil fields are left alone.
type BrightnessUpdate struct {
	BodyPct *float64 `json:"body_pct,omitempty"`
	StarPct *float64 `json:"star_pct,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u BrightnessUpdate) Empty() bool {
	return u.BodyPct == nil && u.StarPct == nil
}

// timestampLayouts are tried in order; zone-less layouts are read in local time.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Timestamp is an ISO 8601 time that may lack a zone. The zero value means
// the field was absent or null.
type Timestamp struct {
	time.Time
}

// UnmarshalJSON accepts null, "" and ISO 8601 strings with or without zone.
// Anything else reads as absent.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	t.Time = time.Time{}
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		log.Debug().RawJSON("value", data).Msg("Ignoring non-string timestamp")
		return nil
	}
	parsed, err := ParseTimestamp(s)
	if err != nil {
		log.Debug().Err(err).Msg("Ignoring malformed timestamp")
		return nil
	}
	t.Time = parsed
	return nil
}

// MarshalJSON writes RFC 3339, or null for the zero value.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Time.Format(time.RFC3339))
}

// Ptr returns nil for the zero value, otherwise a pointer to the time.
func (t Timestamp) Ptr() *time.Time {
	if t.IsZero() {
		return nil
	}
	v := t.Time
	return &v
}

// ParseTimestamp parses an ISO 8601 string. An empty string yields the zero time.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	for i, layout := range timestampLayouts {
		var (
			parsed time.Time
			err    error
		)
		if i == 0 {
			parsed, err = time.Parse(layout, s)
		} else {
			parsed, err = time.ParseInLocation(layout, s, time.Local)
		}
		if err == nil {
			return parsed, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
