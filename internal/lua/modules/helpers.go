package modules

import (
	"encoding/json"
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

// LuaToGo converts a Lua value to a Go value. Tables with only positive
// integer keys become slices, other tables become maps.
func LuaToGo(v lua.LValue) any {
	switch val := v.(type) {
	case lua.LString:
		return string(val)
	case lua.LNumber:
		return float64(val)
	case lua.LBool:
		return bool(val)
	case *lua.LTable:
		isArray := true
		maxIdx := 0
		val.ForEach(func(k, _ lua.LValue) {
			num, ok := k.(lua.LNumber)
			if !ok || num < 1 {
				isArray = false
				return
			}
			if int(num) > maxIdx {
				maxIdx = int(num)
			}
		})

		if isArray && maxIdx > 0 {
			arr := make([]any, maxIdx)
			val.ForEach(func(k, v lua.LValue) {
				arr[int(k.(lua.LNumber))-1] = LuaToGo(v)
			})
			return arr
		}

		obj := make(map[string]any)
		val.ForEach(func(k, v lua.LValue) {
			obj[lua.LVAsString(k)] = LuaToGo(v)
		})
		return obj
	case *lua.LNilType:
		return nil
	default:
		return v.String()
	}
}

// GoToLuaValue converts a JSON-shaped Go value to a Lua value
func GoToLuaValue(L *lua.LState, v any) lua.LValue {
	switch val := v.(type) {
	case nil:
		return lua.LNil
	case bool:
		return lua.LBool(val)
	case int:
		return lua.LNumber(val)
	case int64:
		return lua.LNumber(val)
	case float64:
		return lua.LNumber(val)
	case string:
		return lua.LString(val)
	case []any:
		tbl := L.NewTable()
		for i, item := range val {
			tbl.RawSetInt(i+1, GoToLuaValue(L, item))
		}
		return tbl
	case map[string]any:
		tbl := L.NewTable()
		for k, v := range val {
			tbl.RawSetString(k, GoToLuaValue(L, v))
		}
		return tbl
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}

// ToLuaValue converts any JSON-encodable value, structs included, to a Lua
// value using its JSON field names.
func ToLuaValue(L *lua.LState, v any) (lua.LValue, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return lua.LNil, err
	}
	var generic any
	if err := json.Unmarshal(raw, &generic); err != nil {
		return lua.LNil, err
	}
	return GoToLuaValue(L, generic), nil
}

// pushOK pushes the (true, nil) success pair.
func pushOK(L *lua.LState) int {
	L.Push(lua.LTrue)
	L.Push(lua.LNil)
	return 2
}

// pushErr pushes the (nil, message) failure pair.
func pushErr(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

// pushResult pushes err as a failure pair, or (true, nil).
func pushResult(L *lua.LState, err error) int {
	if err != nil {
		return pushErr(L, err)
	}
	return pushOK(L)
}
