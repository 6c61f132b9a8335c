package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dokzlo13/treeremote/internal/format"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/speed"
	"github.com/dokzlo13/treeremote/internal/tree"
)

type fakeSource struct {
	mu    sync.Mutex
	state *tree.State
	err   error
	calls int
}

func (f *fakeSource) State(ctx context.Context) (*tree.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.state, nil
}

func (f *fakeSource) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func ptr[T any](v T) *T { return &v }

func newTestReconciler(src StateSource) *Reconciler {
	return New(src, nil, format.New(format.Clock24, time.UTC), time.Hour)
}

func decodeState(t *testing.T, raw string) *tree.State {
	t.Helper()
	var st tree.State
	if err := json.Unmarshal([]byte(raw), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	return &st
}

// Monday 2024-01-01
var monday = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func TestApplySpeedAndBounds(t *testing.T) {
	r := newTestReconciler(&fakeSource{})

	view := r.Apply(&tree.State{
		ProgramSpeed:    ptr(1.0),
		ProgramSpeedMin: ptr(0.1),
		ProgramSpeedMax: ptr(10.0),
	}, monday)

	if !view.Speed.Ready {
		t.Fatal("speed should be ready after first snapshot")
	}
	if view.Speed.Percent != 50 {
		t.Errorf("percent = %d, want 50", view.Speed.Percent)
	}
	if view.Speed.Label != "Speed: 50% (1.00)" {
		t.Errorf("label = %q", view.Speed.Label)
	}
	if got := r.Bounds(); got != (speed.Bounds{Min: 0.1, Max: 10}) {
		t.Errorf("bounds = %+v", got)
	}
}

func TestApplyBoundsFallbackPerField(t *testing.T) {
	r := newTestReconciler(&fakeSource{})

	r.Apply(&tree.State{ProgramSpeedMax: ptr(4.0)}, monday)
	if got := r.Bounds(); got != (speed.Bounds{Min: speed.DefaultBounds.Min, Max: 4}) {
		t.Errorf("bounds = %+v", got)
	}

	// Missing fields keep the last known bounds.
	r.Apply(&tree.State{ProgramSpeedMin: ptr(0.5)}, monday)
	if got := r.Bounds(); got != (speed.Bounds{Min: 0.5, Max: 4}) {
		t.Errorf("bounds = %+v", got)
	}
}

func TestApplyDefaults(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	view := r.Apply(&tree.State{}, monday)

	if view.Speed.Value != DefaultSpeed {
		t.Errorf("speed value = %v, want %v", view.Speed.Value, DefaultSpeed)
	}
	if view.Brightness.BodyPct != 50 || view.Brightness.StarPct != 50 {
		t.Errorf("brightness = %+v", view.Brightness)
	}
	if view.Brightness.BodyLabel != "Body: 50%" || view.Brightness.StarLabel != "Star: 50%" {
		t.Errorf("labels = %q %q", view.Brightness.BodyLabel, view.Brightness.StarLabel)
	}
	if view.Countdown != "No countdown set." {
		t.Errorf("countdown = %q", view.Countdown)
	}
}

func TestViewBeforeFirstSnapshot(t *testing.T) {
	r := newTestReconciler(&fakeSource{})

	if r.Ready() {
		t.Fatal("should not be ready")
	}
	view := r.View()
	if view.Speed.Ready {
		t.Error("speed should not be ready")
	}
	if len(view.Schedule.Blocks) != 1 {
		t.Errorf("blocks = %d, want 1 default block", len(view.Schedule.Blocks))
	}
}

func TestApplyAdoptsScheduleWhenClean(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	st := decodeState(t, `{
		"schedule_blocks": [
			{"start_hhmm": "18:00", "end_hhmm": "22:00", "days": [4, 2, 2], "enabled": true},
			{"start_hhmm": "06:00", "end_hhmm": "08:00"}
		]
	}`)

	view := r.Apply(st, monday)

	if len(view.Schedule.Blocks) != 2 {
		t.Fatalf("blocks = %d, want 2", len(view.Schedule.Blocks))
	}
	first := view.Schedule.Blocks[0]
	if !first.Days.Equal(schedule.Days{2, 4}) {
		t.Errorf("days = %v, want [2 4]", first.Days)
	}
	if view.Schedule.Blocks[1].Days != nil {
		t.Errorf("missing days should mean all days, got %v", view.Schedule.Blocks[1].Days)
	}
	if view.Schedule.State != schedule.Clean {
		t.Errorf("state = %v, want clean", view.Schedule.State)
	}
}

func TestApplyKeepsLocalEdits(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.Apply(decodeState(t, `{"schedule_blocks":[{"start_hhmm":"18:00","end_hhmm":"22:00"}]}`), monday)

	if err := r.Store().SetTime(0, schedule.FieldStart, "19:00"); err != nil {
		t.Fatalf("SetTime: %v", err)
	}

	view := r.Apply(decodeState(t, `{"schedule_blocks":[{"start_hhmm":"05:00","end_hhmm":"06:00"}]}`), monday)

	if view.Schedule.State != schedule.Dirty {
		t.Errorf("state = %v, want dirty", view.Schedule.State)
	}
	if got := view.Schedule.Blocks[0].StartHHMM; got != "19:00" {
		t.Errorf("start = %q, want local edit 19:00", got)
	}
}

func TestApplyLegacySchedule(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	view := r.Apply(decodeState(t, `{
		"schedule": {"start_hhmm": "17:00", "end_hhmm": "23:30", "days": [0, 1], "in_window_now": true}
	}`), monday)

	if len(view.Schedule.Blocks) != 1 || view.Schedule.Blocks[0].StartHHMM != "17:00" {
		t.Fatalf("blocks = %+v", view.Schedule.Blocks)
	}
	if !view.Schedule.InWindow {
		t.Error("in_window_now from legacy schedule should be honored")
	}
}

func TestScheduleHint(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{
			name: "server says in window",
			raw:  `{"in_window_now": true, "schedule_blocks":[{"start_hhmm":"01:00","end_hhmm":"02:00"}]}`,
			want: "Currently within schedule window.",
		},
		{
			name: "server says out of window",
			raw:  `{"in_window_now": false, "schedule_blocks":[{"start_hhmm":"00:00","end_hhmm":"23:59"}]}`,
			want: "Currently outside schedule window.",
		},
		{
			name: "local evaluation inside",
			raw:  `{"schedule_blocks":[{"start_hhmm":"11:00","end_hhmm":"13:00"}]}`,
			want: "Currently within schedule window.",
		},
		{
			name: "local evaluation outside",
			raw:  `{"schedule_blocks":[{"start_hhmm":"13:00","end_hhmm":"14:00"}]}`,
			want: "Currently outside schedule window.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestReconciler(&fakeSource{})
			view := r.Apply(decodeState(t, tt.raw), monday)
			if view.Schedule.Hint != tt.want {
				t.Errorf("hint = %q, want %q", view.Schedule.Hint, tt.want)
			}
		})
	}
}

func TestApplyCountdownAndStatus(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	view := r.Apply(decodeState(t, `{
		"mode": "manual_on",
		"countdown_until": "2024-01-01T12:30:00Z",
		"runtime": {"program_running": true, "program_id": "sparkle"},
		"in_window_now": false,
		"now": "2024-01-01T12:00:00Z"
	}`), monday)

	if view.Countdown != "On for ~30 min more (until 12:30)." {
		t.Errorf("countdown = %q", view.Countdown)
	}
	want := "On • Running: sparkle • out of schedule • 12:00"
	if view.Status != want {
		t.Errorf("status = %q, want %q", view.Status, want)
	}
}

func TestCanAddAndRemove(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	view := r.Apply(&tree.State{}, monday)
	if !view.Schedule.CanAdd || view.Schedule.CanRemove {
		t.Errorf("one block: can_add=%v can_remove=%v", view.Schedule.CanAdd, view.Schedule.CanRemove)
	}

	for r.Store().Len() < schedule.MaxBlocks {
		if err := r.Store().Add(); err != nil {
			t.Fatalf("Add: %v", err)
		}
	}
	view = r.Rerender()
	if view.Schedule.CanAdd || !view.Schedule.CanRemove {
		t.Errorf("full: can_add=%v can_remove=%v", view.Schedule.CanAdd, view.Schedule.CanRemove)
	}
}

func TestRerenderDoesNotAdopt(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.Apply(decodeState(t, `{"schedule_blocks":[{"start_hhmm":"18:00","end_hhmm":"22:00"}]}`), monday)

	// Committed blocks differ from the last snapshot until the next poll.
	base := r.Store().Saved()
	posted := []schedule.Block{{StartHHMM: "10:00", EndHHMM: "11:00", Enabled: true}}
	r.Store().Commit(posted, base)

	view := r.Rerender()
	if got := view.Schedule.Blocks[0].StartHHMM; got != "10:00" {
		t.Errorf("start = %q, want committed 10:00", got)
	}
}

func TestRefresh(t *testing.T) {
	src := &fakeSource{state: &tree.State{Mode: tree.ModeAuto}}
	r := newTestReconciler(src)

	view, err := r.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if view.Mode != tree.ModeAuto {
		t.Errorf("mode = %q", view.Mode)
	}

	src.err = errors.New("boom")
	if _, err := r.Refresh(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if !r.Ready() {
		t.Error("failed poll should keep previous view")
	}
	if r.View().Mode != tree.ModeAuto {
		t.Error("failed poll should not change the view")
	}
}

func TestOnView(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	var got []ViewModel
	r.OnView(func(v ViewModel) { got = append(got, v) })

	r.Apply(&tree.State{}, monday)
	r.Rerender()

	if len(got) != 2 {
		t.Fatalf("listener called %d times, want 2", len(got))
	}
}

func TestSpeedPreview(t *testing.T) {
	r := newTestReconciler(&fakeSource{})
	r.Apply(&tree.State{ProgramSpeedMin: ptr(0.1), ProgramSpeedMax: ptr(10.0)}, monday)

	value, label := r.SpeedPreview(50)
	if value < 0.999 || value > 1.001 {
		t.Errorf("value = %v, want ~1.0", value)
	}
	if label != "Speed: 50% (1.00)" {
		t.Errorf("label = %q", label)
	}

	value, _ = r.SpeedPreview(150)
	if value < 9.999 || value > 10.001 {
		t.Errorf("clamped value = %v, want ~10", value)
	}
}

func TestRunPollsAndTriggers(t *testing.T) {
	src := &fakeSource{state: &tree.State{}}
	r := newTestReconciler(src)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	waitFor(t, func() bool { return src.Calls() >= 1 })
	r.Trigger()
	waitFor(t, func() bool { return src.Calls() >= 2 })

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met")
}
