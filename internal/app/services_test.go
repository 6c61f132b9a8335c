package app

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dokzlo13/treeremote/internal/config"
	"github.com/dokzlo13/treeremote/internal/tree"
)

func newTreeServer(t *testing.T) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var modeCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc(tree.PathHealth, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ok":true}`))
	})
	mux.HandleFunc(tree.PathState, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"mode": "auto",
			"program_speed": 1.0,
			"program_speed_min": 0.1,
			"program_speed_max": 10,
			"schedule_blocks": [{"start_hhmm": "18:00", "end_hhmm": "23:00", "days": null, "enabled": true}],
			"in_window_now": false
		}`))
	})
	mux.HandleFunc(tree.PathMode, func(w http.ResponseWriter, r *http.Request) {
		modeCalls.Add(1)
		w.Write([]byte(`{"ok":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &modeCalls
}

func testConfig(t *testing.T, treeURL, extra string) *config.Config {
	t.Helper()
	raw := fmt.Sprintf("tree:\n  url: %s\npoll:\n  interval: 50ms\nsurface:\n  enabled: false\n%s", treeURL, extra)
	cfg, err := config.Parse([]byte(raw))
	if err != nil {
		t.Fatalf("config: %v", err)
	}
	return cfg
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met")
}

func TestServicesPollAndCommand(t *testing.T) {
	srv, modeCalls := newTreeServer(t)
	dbPath := filepath.Join(t.TempDir(), "treeremote.sqlite")
	cfg := testConfig(t, srv.URL, "database:\n  path: "+dbPath+"\n")

	a, err := New(cfg, "")
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	s := a.Services()
	waitFor(t, s.Controller.Ready)

	if err := s.Controller.SetMode(ctx, tree.ModeManualOn); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if modeCalls.Load() != 1 {
		t.Errorf("mode calls = %d", modeCalls.Load())
	}

	entries, err := s.Controller.History(ctx, 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(entries) != 1 || entries[0].Command != "set_mode" {
		t.Errorf("history = %+v", entries)
	}

	view := s.Controller.View()
	if view.Schedule.Blocks[0].StartHHMM != "18:00" {
		t.Errorf("schedule not adopted: %+v", view.Schedule.Blocks)
	}
}

func TestServicesWithScript(t *testing.T) {
	srv, modeCalls := newTreeServer(t)

	dir := t.TempDir()
	script := `
local tree = require("tree")
assert(tree.set_mode("manual_off"))
tree.on_view(function(view) end)
`
	if err := os.WriteFile(filepath.Join(dir, "startup.lua"), []byte(script), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg := testConfig(t, srv.URL, "ledger:\n  enabled: false\nscript: startup.lua\n")

	a, err := New(cfg, dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Services().DB != nil {
		t.Error("disabled ledger should not open the database")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := a.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer a.Stop()

	if modeCalls.Load() != 1 {
		t.Errorf("startup script should send one command, got %d", modeCalls.Load())
	}
	if !a.Services().Lua.Runtime.HasViewHandlers() {
		t.Error("view handler not registered")
	}
}

func TestServicesBadScript(t *testing.T) {
	srv, _ := newTreeServer(t)
	cfg := testConfig(t, srv.URL, "ledger:\n  enabled: false\nscript: missing.lua\n")

	a, err := New(cfg, t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Stop()

	if err := a.Start(context.Background()); err == nil {
		t.Fatal("missing script should fail Start")
	}
}
