package modules

import (
	"context"
	"fmt"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/dokzlo13/treeremote/internal/control"
	"github.com/dokzlo13/treeremote/internal/reconcile"
	"github.com/dokzlo13/treeremote/internal/schedule"
	"github.com/dokzlo13/treeremote/internal/tree"
)

var dayNames = map[string]int{
	"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6,
}

// TreeModule provides tree.* functions to Lua.
//
// Commands return (true, nil) on success and (nil, "error message") on
// failure. Block indices are 1-based; days are 0..6 (Monday first) or
// three-letter names.
//
//	local ok, err = tree.set_mode("manual_on")
//	if err then log.error("set_mode failed", {err = err}) end
//
//	tree.on_view(function(view)
//	    log.info(view.status)
//	end)
type TreeModule struct {
	ctl      *control.Controller
	handlers []*lua.LFunction
}

// NewTreeModule creates a new tree module
func NewTreeModule(ctl *control.Controller) *TreeModule {
	return &TreeModule{ctl: ctl}
}

// Loader is the module loader for Lua
func (m *TreeModule) Loader(L *lua.LState) int {
	mod := L.NewTable()

	L.SetFuncs(mod, map[string]lua.LGFunction{
		"view":             m.view,
		"ready":            m.ready,
		"refresh":          m.refresh,
		"set_mode":         m.setMode,
		"select_program":   m.selectProgram,
		"set_speed":        m.setSpeed,
		"preview_speed":    m.previewSpeed,
		"set_brightness":   m.setBrightness,
		"start_countdown":  m.startCountdown,
		"clear_countdown":  m.clearCountdown,
		"add_block":        m.addBlock,
		"remove_block":     m.removeBlock,
		"toggle_block":     m.toggleBlock,
		"set_block_time":   m.setBlockTime,
		"toggle_block_day": m.toggleBlockDay,
		"save_schedule":    m.saveSchedule,
		"discard_schedule": m.discardSchedule,
		"history":          m.history,
		"on_view":          m.onView,
	})

	L.Push(mod)
	return 1
}

// ViewHandlers returns the functions registered with tree.on_view.
// Only call from the Lua worker.
func (m *TreeModule) ViewHandlers() []*lua.LFunction {
	return m.handlers
}

// PushView converts view into a Lua table.
func PushView(L *lua.LState, view reconcile.ViewModel) (lua.LValue, error) {
	return ToLuaValue(L, view)
}

// view() -> table
func (m *TreeModule) view(L *lua.LState) int {
	v, err := PushView(L, m.ctl.View())
	if err != nil {
		return pushErr(L, err)
	}
	L.Push(v)
	return 1
}

// ready() -> bool
func (m *TreeModule) ready(L *lua.LState) int {
	L.Push(lua.LBool(m.ctl.Ready()))
	return 1
}

// refresh() -> (view, err)
func (m *TreeModule) refresh(L *lua.LState) int {
	view, err := m.ctl.Refresh(luaContext(L))
	if err != nil {
		return pushErr(L, err)
	}
	v, err := PushView(L, view)
	if err != nil {
		return pushErr(L, err)
	}
	L.Push(v)
	L.Push(lua.LNil)
	return 2
}

// set_mode(mode) -> (ok, err)
func (m *TreeModule) setMode(L *lua.LState) int {
	mode := tree.Mode(L.CheckString(1))
	return pushResult(L, m.ctl.SetMode(luaContext(L), mode))
}

// select_program(id) -> (ok, err)
func (m *TreeModule) selectProgram(L *lua.LState) int {
	return pushResult(L, m.ctl.SelectProgram(luaContext(L), L.CheckString(1)))
}

// set_speed(percent) -> (speed, err)
func (m *TreeModule) setSpeed(L *lua.LState) int {
	value, err := m.ctl.SetSpeedPercent(luaContext(L), float64(L.CheckNumber(1)))
	if err != nil {
		return pushErr(L, err)
	}
	L.Push(lua.LNumber(value))
	L.Push(lua.LNil)
	return 2
}

// preview_speed(percent) -> (speed, label)
func (m *TreeModule) previewSpeed(L *lua.LState) int {
	value, label := m.ctl.SpeedPreview(float64(L.CheckNumber(1)))
	L.Push(lua.LNumber(value))
	L.Push(lua.LString(label))
	return 2
}

// set_brightness({body = n, star = n}) -> (ok, err)
func (m *TreeModule) setBrightness(L *lua.LState) int {
	tbl := L.CheckTable(1)

	var update tree.BrightnessUpdate
	if v, ok := tbl.RawGetString("body").(lua.LNumber); ok {
		f := float64(v)
		update.BodyPct = &f
	}
	if v, ok := tbl.RawGetString("star").(lua.LNumber); ok {
		f := float64(v)
		update.StarPct = &f
	}
	return pushResult(L, m.ctl.SetBrightness(luaContext(L), update))
}

// start_countdown(minutes) -> (ok, err)
func (m *TreeModule) startCountdown(L *lua.LState) int {
	return pushResult(L, m.ctl.StartCountdown(luaContext(L), L.CheckInt(1)))
}

// clear_countdown() -> (ok, err)
func (m *TreeModule) clearCountdown(L *lua.LState) int {
	return pushResult(L, m.ctl.ClearCountdown(luaContext(L)))
}

// add_block() -> (ok, err)
func (m *TreeModule) addBlock(L *lua.LState) int {
	return pushResult(L, m.ctl.AddBlock())
}

// remove_block(i) -> (ok, err)
func (m *TreeModule) removeBlock(L *lua.LState) int {
	return pushResult(L, m.ctl.RemoveBlock(L.CheckInt(1)-1))
}

// toggle_block(i) -> (ok, err)
func (m *TreeModule) toggleBlock(L *lua.LState) int {
	return pushResult(L, m.ctl.ToggleBlock(L.CheckInt(1)-1))
}

// set_block_time(i, "start"|"end", "HH:MM") -> (ok, err)
func (m *TreeModule) setBlockTime(L *lua.LState) int {
	index := L.CheckInt(1) - 1
	field := schedule.TimeField(L.CheckString(2))
	return pushResult(L, m.ctl.SetBlockTime(index, field, L.CheckString(3)))
}

// toggle_block_day(i, day) -> (ok, err)
func (m *TreeModule) toggleBlockDay(L *lua.LState) int {
	index := L.CheckInt(1) - 1
	day, err := parseDay(L.Get(2))
	if err != nil {
		return pushErr(L, err)
	}
	return pushResult(L, m.ctl.ToggleBlockDay(index, day))
}

// save_schedule() -> (ok, err)
func (m *TreeModule) saveSchedule(L *lua.LState) int {
	return pushResult(L, m.ctl.SaveSchedule(luaContext(L)))
}

// discard_schedule()
func (m *TreeModule) discardSchedule(L *lua.LState) int {
	m.ctl.DiscardSchedule()
	return 0
}

// history(limit?) -> (entries, err)
func (m *TreeModule) history(L *lua.LState) int {
	entries, err := m.ctl.History(luaContext(L), L.OptInt(1, 0))
	if err != nil {
		return pushErr(L, err)
	}
	v, err := ToLuaValue(L, entries)
	if err != nil {
		return pushErr(L, err)
	}
	L.Push(v)
	L.Push(lua.LNil)
	return 2
}

// on_view(fn) registers fn to receive every new view.
func (m *TreeModule) onView(L *lua.LState) int {
	m.handlers = append(m.handlers, L.CheckFunction(1))
	return 0
}

func parseDay(v lua.LValue) (int, error) {
	switch d := v.(type) {
	case lua.LNumber:
		return int(d), nil
	case lua.LString:
		if day, ok := dayNames[strings.ToLower(string(d))]; ok {
			return day, nil
		}
	}
	return 0, fmt.Errorf("%w: %s", schedule.ErrInvalidDay, v.String())
}

func luaContext(L *lua.LState) context.Context {
	if ctx := L.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
