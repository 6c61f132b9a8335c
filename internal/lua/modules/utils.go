package modules

import (
	"time"

	lua "github.com/yuin/gopher-lua"
)

// UtilsModule provides utility functions to Lua
type UtilsModule struct{}

// NewUtilsModule creates a new utils module
func NewUtilsModule() *UtilsModule {
	return &UtilsModule{}
}

// Loader is the module loader for Lua
func (m *UtilsModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetField(mod, "sleep", L.NewFunction(m.sleep))
	L.SetField(mod, "now", L.NewFunction(m.now))

	L.Push(mod)
	return 1
}

// sleep(ms) -> interrupted
// Blocks the script, returning early with true when the run is cancelled.
func (m *UtilsModule) sleep(L *lua.LState) int {
	d := time.Duration(L.CheckInt(1)) * time.Millisecond

	ctx := L.Context()
	if ctx == nil {
		time.Sleep(d)
		L.Push(lua.LFalse)
		return 1
	}

	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		L.Push(lua.LFalse)
	case <-ctx.Done():
		L.Push(lua.LTrue)
	}
	return 1
}

// now() -> unix seconds
func (m *UtilsModule) now(L *lua.LState) int {
	L.Push(lua.LNumber(float64(time.Now().UnixMilli()) / 1000))
	return 1
}
