// Package reconcile merges tree server snapshots with pending local
// schedule edits and derives the view-model on every poll tick.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/format"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/speed"
	"github.com/dokzlo13/treeremote/internal/tree"
)

// Defaults for values the server leaves out.
const (
	DefaultInterval      = 5 * time.Second
	DefaultSpeed         = 1.0
	DefaultBrightnessPct = 50.0
)

// StateSource fetches the authoritative device state.
type StateSource interface {
	State(ctx context.Context) (*tree.State, error)
}

// Reconciler owns the speed bounds and the schedule store for one session
// and turns server snapshots into view-models.
type Reconciler struct {
	source    StateSource
	store     *schedule.Store
	formatter format.Formatter
	interval  time.Duration
	now       func() time.Time

	mu     sync.Mutex
	bounds speed.Bounds
	last   *tree.State
	view   ViewModel
	ready  bool

	listenersMu sync.RWMutex
	listeners   []func(ViewModel)

	trigger chan struct{}
}

// New creates a Reconciler. A nil store starts with one default block.
func New(source StateSource, store *schedule.Store, formatter format.Formatter, interval time.Duration) *Reconciler {
	if store == nil {
		store = schedule.NewStore()
	}
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Reconciler{
		source:    source,
		store:     store,
		formatter: formatter,
		interval:  interval,
		now:       time.Now,
		bounds:    speed.DefaultBounds,
		trigger:   make(chan struct{}, 1),
	}
}

// Store returns the schedule store edited by the session.
func (r *Reconciler) Store() *schedule.Store {
	return r.store
}

// Bounds returns the last known speed bounds.
func (r *Reconciler) Bounds() speed.Bounds {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bounds
}

// Ready reports whether at least one snapshot has been applied.
func (r *Reconciler) Ready() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ready
}

// View returns the last derived view-model.
func (r *Reconciler) View() ViewModel {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.ready && r.view.UpdatedAt.IsZero() {
		r.view = r.build(&tree.State{}, r.now(), false)
	}
	return r.view
}

// OnView registers fn to be called with every new view-model.
func (r *Reconciler) OnView(fn func(ViewModel)) {
	r.listenersMu.Lock()
	defer r.listenersMu.Unlock()
	r.listeners = append(r.listeners, fn)
}

// Apply merges one server snapshot. Bounds are always taken from the
// server; schedule blocks are adopted only while there are no local edits.
func (r *Reconciler) Apply(st *tree.State, now time.Time) ViewModel {
	r.mu.Lock()
	r.updateBounds(st)
	if err := r.store.AdoptServerSnapshot(st.Blocks()); err != nil {
		log.Debug().Err(err).Msg("Keeping local schedule edits")
	}
	r.last = st
	r.ready = true
	view := r.build(st, now, true)
	r.view = view
	r.mu.Unlock()

	r.notify(view)
	return view
}

// Rerender rebuilds the view after a local edit without touching the
// schedule store.
func (r *Reconciler) Rerender() ViewModel {
	r.mu.Lock()
	st := r.last
	if st == nil {
		st = &tree.State{}
	}
	view := r.build(st, r.now(), r.ready)
	r.view = view
	r.mu.Unlock()

	r.notify(view)
	return view
}

// Refresh fetches the current state and applies it.
func (r *Reconciler) Refresh(ctx context.Context) (ViewModel, error) {
	st, err := r.source.State(ctx)
	if err != nil {
		return ViewModel{}, fmt.Errorf("failed to refresh state: %w", err)
	}
	return r.Apply(st, r.now()), nil
}

// SpeedPreview maps a slider position onto a speed and its label without
// sending anything.
func (r *Reconciler) SpeedPreview(pct float64) (float64, string) {
	value := r.Bounds().ToValue(pct)
	return value, speedLabel(speed.Round(clampPct(pct)), value)
}

// Trigger requests an immediate refresh from the Run loop.
func (r *Reconciler) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
		// Already triggered
	}
}

// Run polls the server every interval and on Trigger until ctx is done.
// Failed polls are logged and leave the last view in place.
func (r *Reconciler) Run(ctx context.Context) error {
	log.Info().Dur("interval", r.interval).Msg("Reconciler started")

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.poll(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Reconciler stopping")
			return nil
		case <-r.trigger:
			r.poll(ctx)
		case <-ticker.C:
			r.poll(ctx)
		}
	}
}

func (r *Reconciler) poll(ctx context.Context) {
	if _, err := r.Refresh(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		log.Warn().Err(err).Msg("Poll failed")
	}
}

func (r *Reconciler) updateBounds(st *tree.State) {
	b := r.bounds
	if st.ProgramSpeedMin != nil {
		b.Min = *st.ProgramSpeedMin
	}
	if st.ProgramSpeedMax != nil {
		b.Max = *st.ProgramSpeedMax
	}
	r.bounds = b
}

func (r *Reconciler) build(st *tree.State, now time.Time, ready bool) ViewModel {
	blocks := r.store.Blocks()
	editor := r.store.State()

	statusNow := now
	if !st.Now.IsZero() {
		statusNow = st.Now.Time
	}

	inWindow := schedule.ActiveAt(blocks, statusNow)
	if flag := st.InWindow(); flag != nil {
		inWindow = *flag
	}
	hint := "Currently outside schedule window."
	if inWindow {
		hint = "Currently within schedule window."
	}

	running, runningID := st.Running()

	return ViewModel{
		Mode:       st.Mode,
		ProgramID:  st.ProgramID,
		Programs:   append([]tree.Program(nil), st.Programs...),
		Speed:      r.speedView(st, ready),
		Brightness: brightnessView(st.Brightness),
		Schedule: ScheduleView{
			Blocks:    blocks,
			State:     editor,
			CanAdd:    len(blocks) < schedule.MaxBlocks,
			CanRemove: len(blocks) > 1,
			InWindow:  inWindow,
			Hint:      hint,
		},
		Countdown: r.formatter.Countdown(st.CountdownUntil.Ptr(), now),
		Status: r.formatter.StatusLine(format.Status{
			Mode:           string(st.Mode),
			ProgramRunning: running,
			ProgramID:      runningID,
			InWindow:       inWindow,
			Now:            statusNow,
		}),
		UpdatedAt: now,
	}
}

func (r *Reconciler) speedView(st *tree.State, ready bool) SpeedView {
	if !ready {
		return SpeedView{Label: "Speed: loading…", Bounds: r.bounds}
	}
	value := DefaultSpeed
	if st.ProgramSpeed != nil {
		value = *st.ProgramSpeed
	}
	pct := speed.Round(r.bounds.ToPercent(value))
	return SpeedView{
		Ready:   true,
		Percent: pct,
		Value:   value,
		Label:   speedLabel(pct, value),
		Bounds:  r.bounds,
	}
}

func brightnessView(b *tree.Brightness) BrightnessView {
	body, star := DefaultBrightnessPct, DefaultBrightnessPct
	if b != nil && b.BodyPct != nil {
		body = *b.BodyPct
	}
	if b != nil && b.StarPct != nil {
		star = *b.StarPct
	}
	return BrightnessView{
		BodyPct:   body,
		StarPct:   star,
		BodyLabel: fmt.Sprintf("Body: %.0f%%", body),
		StarLabel: fmt.Sprintf("Star: %.0f%%", star),
	}
}

func (r *Reconciler) notify(view ViewModel) {
	r.listenersMu.RLock()
	defer r.listenersMu.RUnlock()
	for _, fn := range r.listeners {
		fn(view)
	}
}

func speedLabel(pct int, value float64) string {
	return fmt.Sprintf("Speed: %d%% (%.2f)", pct, value)
}

func clampPct(pct float64) float64 {
	if pct != pct || pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}
