package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/config"
	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/eventbus"
	"github.com/dokzlo13/treeremote/internal/surface"
)

// SurfaceService wraps the local control surface.
type SurfaceService struct {
	cfg    *config.Config
	server *surface.Server
}

// NewSurfaceService creates a new SurfaceService.
func NewSurfaceService(cfg *config.Config, ctl *control.Controller, bus *eventbus.Bus) *SurfaceService {
	hub := surface.NewHub()
	bus.Subscribe(eventbus.EventTypeView, hub.Handle)
	bus.Subscribe(eventbus.EventTypeNotice, hub.Handle)
	bus.Subscribe(eventbus.EventTypeCommand, hub.Handle)

	server := surface.NewServer(cfg.Surface.Host, cfg.Surface.Port, ctl, hub)
	server.AllowOrigins(cfg.Surface.AllowedOrigins...)

	return &SurfaceService{
		cfg:    cfg,
		server: server,
	}
}

// Start begins the surface server if enabled. A listen failure is fatal.
func (s *SurfaceService) Start(ctx context.Context, onFatalError func(error)) {
	if !s.cfg.Surface.IsEnabled() {
		log.Debug().Msg("Control surface disabled")
		return
	}

	go func() {
		if err := s.server.Run(ctx, s.cfg.ShutdownTimeout.Duration()); err != nil {
			log.Error().Err(err).Msg("Control surface error")
			if onFatalError != nil {
				onFatalError(err)
			}
		}
	}()
}
