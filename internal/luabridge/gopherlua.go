package luabridge

/*------------------------------------------------------------------
 *
 * Purpose:	Concrete VM implementation backed by gopher-lua, the one
 *		real Lua embedding in the retrieved example pack
 *		(IntuitionAmiga-IntuitionEngine's go.mod). This is the only
 *		file in the module that imports the Lua library; everything
 *		else depends on the VM interface.
 *
 *------------------------------------------------------------------*/

import (
	"fmt"

	lua "github.com/yuin/gopher-lua"
)

type GopherVM struct {
	L *lua.LState
}

func NewGopherVM() *GopherVM {
	return &GopherVM{L: lua.NewState()}
}

func (g *GopherVM) DoString(src string) error {
	if err := g.L.DoString(src); err != nil {
		if apiErr, ok := err.(*lua.ApiError); ok && apiErr.Type == lua.ApiErrorSyntax {
			return &LoadError{Err: err}
		}
		return &RuntimeError{Err: err}
	}
	return nil
}

func (g *GopherVM) CallGlobal(name string, args ...any) error {
	var fn = g.L.GetGlobal(name)
	if fn == lua.LNil {
		return nil
	}

	var luaArgs = make([]lua.LValue, 0, len(args))
	for _, a := range args {
		luaArgs = append(luaArgs, toLuaValue(a))
	}

	if err := g.L.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, luaArgs...); err != nil {
		return &RuntimeError{Err: err}
	}
	return nil
}

func (g *GopherVM) Reset() {
	g.L.Close()
	g.L = lua.NewState()
}

func toLuaValue(a any) lua.LValue {
	switch v := a.(type) {
	case float64:
		return lua.LNumber(v)
	case float32:
		return lua.LNumber(v)
	case int:
		return lua.LNumber(v)
	case string:
		return lua.LString(v)
	case bool:
		return lua.LBool(v)
	default:
		return lua.LString(fmt.Sprintf("%v", v))
	}
}
