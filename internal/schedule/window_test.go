package schedule

import (
	"testing"
	"time"
)

// 2025-12-01 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2025, time.December, day, hour, minute, 0, 0, time.Local)
}

func TestWeekday(t *testing.T) {
	if got := Weekday(time.Monday); got != 0 {
		t.Errorf("Monday = %d, want 0", got)
	}
	if got := Weekday(time.Sunday); got != 6 {
		t.Errorf("Sunday = %d, want 6", got)
	}
}

func TestBlock_Contains(t *testing.T) {
	tests := []struct {
		name  string
		block Block
		at    time.Time
		want  bool
	}{
		{"inside", DefaultBlock(), at(1, 12, 0), true},
		{"at_start", DefaultBlock(), at(1, 7, 30), true},
		{"at_end_is_outside", DefaultBlock(), at(1, 23, 0), false},
		{"before_start", DefaultBlock(), at(1, 7, 29), false},
		{"disabled", Block{StartHHMM: "07:30", EndHHMM: "23:00", Enabled: false}, at(1, 12, 0), false},
		{"zero_length", Block{StartHHMM: "10:00", EndHHMM: "10:00", Enabled: true}, at(1, 10, 0), false},
		{"crosses_midnight_late", Block{StartHHMM: "22:00", EndHHMM: "06:00", Enabled: true}, at(1, 23, 30), true},
		{"crosses_midnight_early", Block{StartHHMM: "22:00", EndHHMM: "06:00", Enabled: true}, at(2, 5, 59), true},
		{"crosses_midnight_outside", Block{StartHHMM: "22:00", EndHHMM: "06:00", Enabled: true}, at(2, 12, 0), false},
		{"weekday_excluded", Block{StartHHMM: "07:30", EndHHMM: "23:00", Days: Days{5, 6}, Enabled: true}, at(1, 12, 0), false},
		{"weekday_included", Block{StartHHMM: "07:30", EndHHMM: "23:00", Days: Days{5, 6}, Enabled: true}, at(6, 12, 0), true},
		{"empty_days_never", Block{StartHHMM: "07:30", EndHHMM: "23:00", Days: Days{}, Enabled: true}, at(1, 12, 0), false},
		{"bad_time", Block{StartHHMM: "nope", EndHHMM: "23:00", Enabled: true}, at(1, 12, 0), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.block.Contains(tt.at); got != tt.want {
				t.Errorf("Contains = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestActiveAt(t *testing.T) {
	blocks := []Block{
		{StartHHMM: "06:00", EndHHMM: "08:00", Enabled: true},
		{StartHHMM: "18:00", EndHHMM: "22:00", Enabled: true},
	}
	if !ActiveAt(blocks, at(1, 19, 0)) {
		t.Error("expected active in second block")
	}
	if ActiveAt(blocks, at(1, 12, 0)) {
		t.Error("expected inactive between blocks")
	}
	if ActiveAt(nil, at(1, 12, 0)) {
		t.Error("no blocks should never be active")
	}
}
