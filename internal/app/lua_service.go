package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/treeremote/internal/config"
	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/eventbus"
	luart "github.com/dokzlo13/treeremote/internal/lua"
)

// LuaService wraps the Lua runtime and provides thread-safe execution.
type LuaService struct {
	cfg     *config.Config
	Runtime *luart.Runtime
}

// NewLuaService creates a new LuaService. Relative script paths resolve
// against configDir.
func NewLuaService(cfg *config.Config, ctl *control.Controller, configDir string) *LuaService {
	return &LuaService{
		cfg:     cfg,
		Runtime: luart.NewRuntime(ctl, configDir),
	}
}

// LoadScript loads and executes the configured startup script.
// Must be called before Start().
func (s *LuaService) LoadScript(ctx context.Context) error {
	if s.cfg.Script == "" {
		return nil
	}
	return s.Runtime.LoadScript(ctx, s.cfg.Script)
}

// Start begins the Lua worker goroutine and forwards views to the script
// when it registered tree.on_view handlers.
func (s *LuaService) Start(ctx context.Context, bus *eventbus.Bus) {
	if s.Runtime.HasViewHandlers() {
		bus.Subscribe(eventbus.EventTypeView, s.Runtime.HandleEvent)
		log.Debug().Msg("Lua view handlers subscribed")
	}

	s.Runtime.Start(ctx)
}

// Close closes the Lua runtime.
func (s *LuaService) Close() {
	if s.Runtime != nil {
		s.Runtime.Close()
	}
}
