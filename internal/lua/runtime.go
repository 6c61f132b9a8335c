// Package lua runs user scripts against the remote through the tree and
// log modules.
package lua

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog/log"
	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/eventbus"
	"github.com/dokzlo13/treeremote/internal/lua/modules"
	"github.com/dokzlo13/treeremote/internal/reconcile"
)

// ErrRuntimeClosed is returned when the Lua runtime is closed
var ErrRuntimeClosed = errors.New("lua runtime closed")

// workQueueSize bounds pending Lua work.
const workQueueSize = 100

// LuaWork represents work to be executed on the Lua VM.
// All Lua execution goes through the worker started by Run.
type LuaWork func(ctx context.Context)

// Runtime manages the Lua VM with single-threaded execution
type Runtime struct {
	L       *lua.LState
	baseDir string

	treeModule *modules.TreeModule

	workQueue chan LuaWork

	// closing is closed once to tell senders to stop
	closing   chan struct{}
	closeOnce sync.Once
	worker    sync.WaitGroup
}

// NewRuntime creates a new Lua runtime. Relative script paths that do not
// exist in the working directory are resolved against baseDir.
func NewRuntime(ctl *control.Controller, baseDir string) *Runtime {
	r := &Runtime{
		L:          lua.NewState(),
		baseDir:    baseDir,
		treeModule: modules.NewTreeModule(ctl.WithSource("lua")),
		workQueue:  make(chan LuaWork, workQueueSize),
		closing:    make(chan struct{}),
	}

	r.L.PreloadModule("log", modules.NewLogModule("lua").Loader)
	r.L.PreloadModule("tree", r.treeModule.Loader)
	r.L.PreloadModule("utils", modules.NewUtilsModule().Loader)

	return r
}

// Close signals the runtime to stop accepting new work, waits for a worker
// started with Start, and closes the Lua state.
func (r *Runtime) Close() {
	r.closeOnce.Do(func() {
		close(r.closing)
		r.worker.Wait()
		r.L.Close()
	})
}

// Do queues work to be executed on the Lua VM (non-blocking).
// Returns false if the runtime is closing, the queue is full, or ctx is done.
func (r *Runtime) Do(ctx context.Context, work LuaWork) bool {
	if r.isClosing() {
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	}
	select {
	case <-r.closing:
		log.Warn().Msg("Lua runtime closing, dropping work")
		return false
	case <-ctx.Done():
		log.Warn().Msg("Context cancelled, dropping Lua work")
		return false
	case r.workQueue <- work:
		return true
	default:
		log.Warn().Msg("Lua work queue full, dropping work")
		return false
	}
}

// DoSync queues work, waits for space, and waits for the result.
func (r *Runtime) DoSync(ctx context.Context, work func(context.Context) error) error {
	done := make(chan error, 1)
	wrapped := LuaWork(func(c context.Context) {
		done <- work(c)
	})

	if r.isClosing() {
		return ErrRuntimeClosed
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case r.workQueue <- wrapped:
	}

	select {
	case <-r.closing:
		return ErrRuntimeClosed
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (r *Runtime) isClosing() bool {
	select {
	case <-r.closing:
		return true
	default:
		return false
	}
}

// Start runs the worker in a new goroutine that Close waits for.
func (r *Runtime) Start(ctx context.Context) {
	r.worker.Add(1)
	go func() {
		defer r.worker.Done()
		r.Run(ctx)
	}()
}

// Run executes queued work until ctx is done or the runtime is closed. It is
// the only goroutine that touches the VM once started.
func (r *Runtime) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			r.drainQueue(ctx)
			return
		case <-r.closing:
			return
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		}
	}
}

func (r *Runtime) drainQueue(ctx context.Context) {
	for {
		select {
		case work := <-r.workQueue:
			r.executeWork(ctx, work)
		default:
			return
		}
	}
}

// executeWork runs a single work item with panic recovery
func (r *Runtime) executeWork(ctx context.Context, work LuaWork) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().
				Interface("panic", rec).
				Msg("Lua work panicked - worker continuing")
		}
	}()
	r.L.SetContext(ctx)
	work(ctx)
}

// ResolvePath resolves a script path against the base directory.
func (r *Runtime) ResolvePath(path string) string {
	if filepath.IsAbs(path) || r.baseDir == "" {
		return path
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return filepath.Join(r.baseDir, path)
	}
	return path
}

// LoadScript executes a Lua script. Call it before Run, or through DoSync
// once the worker is running.
func (r *Runtime) LoadScript(ctx context.Context, path string) error {
	path = r.ResolvePath(path)

	log.Info().Str("path", path).Msg("Loading Lua script")

	r.L.SetContext(ctx)
	if err := r.L.DoFile(path); err != nil {
		return fmt.Errorf("failed to execute Lua script: %w", err)
	}

	log.Info().Str("path", path).Int("view_handlers", len(r.treeModule.ViewHandlers())).Msg("Lua script loaded successfully")
	return nil
}

// DoString executes a chunk of Lua source. Same threading rules as LoadScript.
func (r *Runtime) DoString(ctx context.Context, source string) error {
	r.L.SetContext(ctx)
	return r.L.DoString(source)
}

// HasViewHandlers reports whether the loaded script called tree.on_view.
func (r *Runtime) HasViewHandlers() bool {
	return len(r.treeModule.ViewHandlers()) > 0
}

// HandleEvent is an eventbus.Handler that forwards views to tree.on_view
// callbacks on the Lua worker.
func (r *Runtime) HandleEvent(event eventbus.Event) {
	view, ok := event.Data.(reconcile.ViewModel)
	if !ok || event.Type != eventbus.EventTypeView {
		return
	}
	r.Do(context.Background(), func(ctx context.Context) {
		r.dispatchView(view)
	})
}

func (r *Runtime) dispatchView(view reconcile.ViewModel) {
	handlers := r.treeModule.ViewHandlers()
	if len(handlers) == 0 {
		return
	}
	tbl, err := modules.PushView(r.L, view)
	if err != nil {
		log.Error().Err(err).Msg("Failed to convert view for Lua")
		return
	}
	for _, fn := range handlers {
		if err := r.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, tbl); err != nil {
			log.Error().Err(err).Msg("Lua view handler failed")
		}
	}
}
