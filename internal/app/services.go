package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/config"
	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/db"
	"github.com/dokzlo13/treeremote/internal/ledger"
)

// Services is a container for all application services.
// It manages service initialization order and dependencies.
type Services struct {
	cfg *config.Config

	// Core infrastructure (nil when the ledger is disabled)
	DB     *db.DB
	Ledger *ledger.Ledger

	// Command dispatcher shared by the surface and Lua
	Controller *control.Controller

	// High-level services
	Tree    *TreeService
	Surface *SurfaceService
	Lua     *LuaService
}

// NewServices creates all services with proper dependency injection.
func NewServices(cfg *config.Config, configDir string) (*Services, error) {
	s := &Services{cfg: cfg}

	var history control.History
	if cfg.Ledger.IsEnabled() {
		database, err := db.Open(cfg.Database.Path)
		if err != nil {
			return nil, err
		}
		s.DB = database
		s.Ledger = ledger.New(database.DB)
		history = s.Ledger
	}

	treeSvc, err := NewTreeService(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.Tree = treeSvc

	s.Controller = control.New(treeSvc.Client, treeSvc.Reconciler, history, treeSvc.Bus)
	s.Surface = NewSurfaceService(cfg, s.Controller, treeSvc.Bus)
	s.Lua = NewLuaService(cfg, s.Controller, configDir)

	return s, nil
}

// Start starts all services in the correct order.
// The onFatalError callback is called when a fatal error occurs (e.g. the surface cannot listen).
func (s *Services) Start(ctx context.Context, onFatalError func(error)) error {
	s.Tree.Start(ctx)
	s.Tree.SubscribeLogging()

	// Load Lua script before starting worker
	if err := s.Lua.LoadScript(ctx); err != nil {
		return err
	}

	s.Lua.Start(ctx, s.Tree.Bus)
	s.Surface.Start(ctx, onFatalError)
	s.Tree.StartBackground(ctx)

	if s.Ledger != nil {
		go s.Ledger.RunCleanup(ctx, s.cfg.Ledger.CleanupInterval.Duration(), s.cfg.Ledger.RetentionPeriod.Duration())
		log.Debug().
			Dur("retention", s.cfg.Ledger.RetentionPeriod.Duration()).
			Msg("Ledger cleanup scheduled")
	}

	return nil
}

// Stop gracefully stops all services.
func (s *Services) Stop() error {
	s.Close()
	return nil
}

// Close releases all resources.
func (s *Services) Close() {
	if s.Lua != nil {
		s.Lua.Close()
	}
	if s.Tree != nil {
		s.Tree.Close(s.cfg.ShutdownTimeout.Duration())
	}
	if s.DB != nil {
		s.DB.Close()
	}
}
