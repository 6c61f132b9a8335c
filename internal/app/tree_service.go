package app

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/config"
	"github.com/dokzlo13/treeremote/internal/eventbus"
	"github.com/dokzlo13/treeremote/internal/format"
	"github.com/dokzlo13/treeremote/internal/ledger"
	"github.com/dokzlo13/treeremote/internal/reconcile"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

// TreeService wraps the tree client, the reconciler and the event bus.
type TreeService struct {
	cfg *config.Config

	Client     *tree.Client
	Reconciler *reconcile.Reconciler
	Bus        *eventbus.Bus
}

// NewTreeService creates a TreeService with all components initialized but not started.
func NewTreeService(cfg *config.Config) (*TreeService, error) {
	loc, err := cfg.Display.Location()
	if err != nil {
		return nil, err
	}
	formatter := format.New(format.ParseClock(cfg.Display.Clock), loc)

	client := tree.NewClient(cfg.Tree.URL, cfg.Tree.Timeout.Duration(), cfg.Tree.RateLimitRPS)

	reconciler := reconcile.New(client, schedule.NewStore(), formatter, cfg.Poll.Interval.Duration())

	bus := eventbus.NewWithConfig(cfg.EventBus.GetWorkers(), cfg.EventBus.GetQueueSize())

	// Every derived view goes out on the bus
	reconciler.OnView(func(view reconcile.ViewModel) {
		bus.Publish(eventbus.Event{Type: eventbus.EventTypeView, Data: view})
	})

	return &TreeService{
		cfg:        cfg,
		Client:     client,
		Reconciler: reconciler,
		Bus:        bus,
	}, nil
}

// Start probes the tree server. An unreachable server is not fatal; the
// poll loop keeps retrying.
func (s *TreeService) Start(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, s.cfg.Tree.Timeout.Duration())
	defer cancel()

	if err := s.Client.Health(probeCtx); err != nil {
		log.Warn().Err(err).Str("tree", s.cfg.Tree.URL).Msg("Tree server not reachable yet")
		return
	}
	log.Info().Str("tree", s.cfg.Tree.URL).Msg("Connected to tree server")
}

// StartBackground starts the poll loop.
func (s *TreeService) StartBackground(ctx context.Context) {
	go func() {
		if err := s.Reconciler.Run(ctx); err != nil {
			log.Error().Err(err).Msg("Reconciler error")
		}
	}()
}

// SubscribeLogging logs notices and command records from the bus.
func (s *TreeService) SubscribeLogging() {
	s.Bus.Subscribe(eventbus.EventTypeNotice, func(event eventbus.Event) {
		if n, ok := event.Data.(eventbus.Notice); ok {
			log.Warn().Str("level", n.Level).Int("status", n.Status).Msg(n.Message)
		}
	})
	s.Bus.Subscribe(eventbus.EventTypeCommand, func(event eventbus.Event) {
		if e, ok := event.Data.(*ledger.Entry); ok {
			log.Debug().
				Str("command", e.Command).
				Str("request_id", e.ID).
				Str("status", string(e.Status)).
				Msg("Command recorded")
		}
	})
	s.Bus.Subscribe(eventbus.EventTypeView, func(event eventbus.Event) {
		if view, ok := event.Data.(reconcile.ViewModel); ok {
			log.Debug().
				Str("mode", string(view.Mode)).
				Str("schedule", view.Schedule.State.String()).
				Msg(view.Status)
		}
	})
}

// Close releases all resources.
func (s *TreeService) Close(timeout time.Duration) {
	if s.Bus != nil {
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		s.Bus.Close(ctx)
	}
	if s.Client != nil {
		s.Client.Close()
	}
}
