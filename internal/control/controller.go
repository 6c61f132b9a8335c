// Package control turns user gestures into tree server commands. Every
// command gets a request id, is recorded in the ledger, and is followed by
// an immediate refresh when it succeeds.
package control

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/eventbus"
	"github.com/dokzlo13/treeremote/internal/ledger"
	"github.com/dokzlo13/treeremote/internal/reconcile"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

var (
	ErrNotReady          = errors.New("speed bounds not loaded yet")
	ErrInvalidMode       = errors.New("invalid mode")
	ErrInvalidProgram    = errors.New("program id is required")
	ErrInvalidBrightness = errors.New("brightness must be between 0 and 100")
	ErrInvalidMinutes    = errors.New("countdown minutes must be positive")
	ErrLedgerDisabled    = errors.New("command ledger is disabled")
)

// Command names recorded in the ledger.
const (
	CmdSetMode        = "set_mode"
	CmdSetProgram     = "set_program"
	CmdSetSpeed       = "set_speed"
	CmdSetBrightness  = "set_brightness"
	CmdStartCountdown = "start_countdown"
	CmdClearCountdown = "clear_countdown"
	CmdSaveSchedule   = "save_schedule"
)

// Commander sends commands to the tree server.
type Commander interface {
	SetMode(ctx context.Context, mode tree.Mode) error
	SetProgram(ctx context.Context, programID string) error
	SetSpeed(ctx context.Context, speed float64) error
	SetBrightness(ctx context.Context, update tree.BrightnessUpdate) error
	StartCountdown(ctx context.Context, minutes int) error
	ClearCountdown(ctx context.Context) error
	SaveSchedule(ctx context.Context, blocks []schedule.Block) error
}

// History stores and lists dispatched commands.
type History interface {
	Append(ctx context.Context, e *ledger.Entry) error
	Recent(ctx context.Context, limit int) ([]*ledger.Entry, error)
}

// Publisher receives notices and command records.
type Publisher interface {
	Publish(event eventbus.Event)
}

// Controller dispatches commands on behalf of one source (surface, lua, cli).
type Controller struct {
	client  Commander
	rec     *reconcile.Reconciler
	history History
	bus     Publisher
	source  string
}

// New creates a Controller. history and bus may be nil.
func New(client Commander, rec *reconcile.Reconciler, history History, bus Publisher) *Controller {
	return &Controller{
		client:  client,
		rec:     rec,
		history: history,
		bus:     bus,
	}
}

// WithSource returns a copy that tags its ledger entries with source.
func (c *Controller) WithSource(source string) *Controller {
	cp := *c
	cp.source = source
	return &cp
}

// View returns the current view-model.
func (c *Controller) View() reconcile.ViewModel {
	return c.rec.View()
}

// Ready reports whether the first snapshot has arrived.
func (c *Controller) Ready() bool {
	return c.rec.Ready()
}

// Refresh fetches the server state now.
func (c *Controller) Refresh(ctx context.Context) (reconcile.ViewModel, error) {
	return c.rec.Refresh(ctx)
}

// SetMode switches the tree between manual on, manual off and auto.
func (c *Controller) SetMode(ctx context.Context, mode tree.Mode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidMode, mode)
	}
	return c.run(ctx, CmdSetMode, tree.PathMode, map[string]any{"mode": mode}, func(ctx context.Context) error {
		return c.client.SetMode(ctx, mode)
	})
}

// SelectProgram selects the running program.
func (c *Controller) SelectProgram(ctx context.Context, programID string) error {
	if programID == "" {
		return ErrInvalidProgram
	}
	return c.run(ctx, CmdSetProgram, tree.PathProgram, map[string]any{"program_id": programID}, func(ctx context.Context) error {
		return c.client.SetProgram(ctx, programID)
	})
}

// SetSpeedPercent commits a slider position. It is refused until the
// first poll has delivered the speed bounds.
func (c *Controller) SetSpeedPercent(ctx context.Context, pct float64) (float64, error) {
	if !c.rec.Ready() {
		return 0, ErrNotReady
	}
	value := c.rec.Bounds().ToValue(pct)
	err := c.run(ctx, CmdSetSpeed, tree.PathSpeed, map[string]any{"program_speed": value, "percent": pct}, func(ctx context.Context) error {
		return c.client.SetSpeed(ctx, value)
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// SpeedPreview returns the speed and label for a slider position without
// sending anything.
func (c *Controller) SpeedPreview(pct float64) (float64, string) {
	return c.rec.SpeedPreview(pct)
}

// SetBrightness applies a partial brightness update.
func (c *Controller) SetBrightness(ctx context.Context, update tree.BrightnessUpdate) error {
	if update.Empty() || !validPct(update.BodyPct) || !validPct(update.StarPct) {
		return ErrInvalidBrightness
	}
	payload := map[string]any{}
	if update.BodyPct != nil {
		payload["body_pct"] = *update.BodyPct
	}
	if update.StarPct != nil {
		payload["star_pct"] = *update.StarPct
	}
	return c.run(ctx, CmdSetBrightness, tree.PathBrightness, payload, func(ctx context.Context) error {
		return c.client.SetBrightness(ctx, update)
	})
}

// StartCountdown keeps the tree on for minutes.
func (c *Controller) StartCountdown(ctx context.Context, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidMinutes, minutes)
	}
	return c.run(ctx, CmdStartCountdown, tree.PathCountdown, map[string]any{"minutes": minutes}, func(ctx context.Context) error {
		return c.client.StartCountdown(ctx, minutes)
	})
}

// ClearCountdown cancels the running countdown.
func (c *Controller) ClearCountdown(ctx context.Context) error {
	return c.run(ctx, CmdClearCountdown, tree.PathCountdown, map[string]any{"clear": true}, func(ctx context.Context) error {
		return c.client.ClearCountdown(ctx)
	})
}

// SaveSchedule posts the local blocks. Only the posted list becomes the
// saved baseline, so edits made while the request is in flight stay dirty.
func (c *Controller) SaveSchedule(ctx context.Context) error {
	store := c.rec.Store()
	base := store.Saved()
	blocks := store.Blocks()

	err := c.dispatch(ctx, CmdSaveSchedule, tree.PathSchedule, map[string]any{"blocks": len(blocks)}, func(ctx context.Context) error {
		return c.client.SaveSchedule(ctx, blocks)
	})
	if err != nil {
		return err
	}
	store.Commit(blocks, base)
	c.refresh(ctx)
	return nil
}

// DiscardSchedule drops local schedule edits.
func (c *Controller) DiscardSchedule() {
	c.rec.Store().Discard()
	c.rec.Rerender()
}

// AddBlock appends a default schedule block.
func (c *Controller) AddBlock() error {
	return c.edit(c.rec.Store().Add())
}

// RemoveBlock removes the block at index.
func (c *Controller) RemoveBlock(index int) error {
	return c.edit(c.rec.Store().Remove(index))
}

// ToggleBlock flips the enabled flag of the block at index.
func (c *Controller) ToggleBlock(index int) error {
	return c.edit(c.rec.Store().ToggleEnabled(index))
}

// SetBlockTime sets the start or end time of the block at index.
func (c *Controller) SetBlockTime(index int, field schedule.TimeField, value string) error {
	return c.edit(c.rec.Store().SetTime(index, field, value))
}

// ToggleBlockDay flips one weekday of the block at index.
func (c *Controller) ToggleBlockDay(index, day int) error {
	return c.edit(c.rec.Store().ToggleDay(index, day))
}

// History returns the latest dispatched commands.
func (c *Controller) History(ctx context.Context, limit int) ([]*ledger.Entry, error) {
	if c.history == nil {
		return nil, ErrLedgerDisabled
	}
	return c.history.Recent(ctx, limit)
}

func (c *Controller) edit(err error) error {
	if err != nil {
		return err
	}
	c.rec.Rerender()
	return nil
}

// run dispatches a command and refreshes the view when it succeeds.
func (c *Controller) run(ctx context.Context, command, path string, payload map[string]any, send func(context.Context) error) error {
	if err := c.dispatch(ctx, command, path, payload, send); err != nil {
		return err
	}
	c.refresh(ctx)
	return nil
}

func (c *Controller) dispatch(ctx context.Context, command, path string, payload map[string]any, send func(context.Context) error) error {
	id := uuid.NewString()
	start := time.Now()

	err := send(tree.WithRequestID(ctx, id))

	entry := &ledger.Entry{
		ID:        id,
		Command:   command,
		Path:      path,
		Source:    c.source,
		Timestamp: start.UTC(),
		Duration:  time.Since(start),
		Status:    ledger.StatusOK,
		Payload:   payload,
	}
	if err != nil {
		entry.Status = ledger.StatusFailed
		entry.Error = err.Error()
		if httpErr, ok := tree.AsHTTPError(err); ok {
			entry.HTTPStatus = httpErr.Status
		}
		log.Warn().Err(err).
			Str("command", command).
			Str("request_id", id).
			Str("source", c.source).
			Msg("Command failed")
		c.publish(eventbus.Event{Type: eventbus.EventTypeNotice, Data: noticeFor(err)})
	} else {
		log.Info().
			Str("command", command).
			Str("request_id", id).
			Str("source", c.source).
			Dur("duration", entry.Duration).
			Msg("Command sent")
	}

	c.record(ctx, entry)
	c.publish(eventbus.Event{Type: eventbus.EventTypeCommand, Data: entry})
	return err
}

func (c *Controller) refresh(ctx context.Context) {
	if _, err := c.rec.Refresh(ctx); err != nil {
		log.Warn().Err(err).Msg("Refresh after command failed")
	}
}

func (c *Controller) record(ctx context.Context, entry *ledger.Entry) {
	if c.history == nil {
		return
	}
	// The command already happened; keep the record even if ctx is done.
	if err := c.history.Append(context.WithoutCancel(ctx), entry); err != nil {
		log.Error().Err(err).Str("request_id", entry.ID).Msg("Failed to record command")
	}
}

func (c *Controller) publish(event eventbus.Event) {
	if c.bus != nil {
		c.bus.Publish(event)
	}
}

func noticeFor(err error) eventbus.Notice {
	n := eventbus.Notice{Level: "error", Message: err.Error()}
	if httpErr, ok := tree.AsHTTPError(err); ok {
		n.Method = httpErr.Method
		n.Path = httpErr.Path
		n.Status = httpErr.Status
		n.Body = httpErr.Body
	}
	return n
}

func validPct(v *float64) bool {
	return v == nil || (*v >= 0 && *v <= 100)
}
