package script

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"
)

// DefaultTimeout bounds every chunk or function a script runs.
const DefaultTimeout = 5 * time.Second

// sandbox is a single-use Lua interpreter holding one loaded script. It
// opens only the base, table, string and math libraries and removes every
// global that loads code. A sandbox is not safe for concurrent use; the
// importer creates a fresh one per operation.
type sandbox struct {
	L       *lua.LState
	name    string
	timeout time.Duration
}

var blockedGlobals = []string{"dofile", "loadfile", "load", "loadstring", "require", "collectgarbage"}

func newSandbox(name string, timeout time.Duration) *sandbox {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	L := lua.NewState(lua.Options{SkipOpenLibs: true, CallStackSize: 256})
	for _, open := range []lua.LGFunction{lua.OpenBase, lua.OpenTable, lua.OpenString, lua.OpenMath} {
		open(L)
	}
	for _, g := range blockedGlobals {
		L.SetGlobal(g, lua.LNil)
	}
	return &sandbox{L: L, name: name, timeout: timeout}
}

// expose installs funcs as the global table name.
func (s *sandbox) expose(name string, funcs map[string]lua.LGFunction) {
	s.L.SetGlobal(name, s.L.SetFuncs(s.L.NewTable(), funcs))
}

// exec runs source as the script body.
func (s *sandbox) exec(ctx context.Context, source string) error {
	return s.guard(ctx, func() error {
		fn, err := s.L.Load(strings.NewReader(source), s.name)
		if err != nil {
			return err
		}
		s.L.Push(fn)
		return s.L.PCall(0, 0, nil)
	})
}

// defined reports whether the script declares a global function fn.
func (s *sandbox) defined(fn string) bool {
	return s.L.GetGlobal(fn).Type() == lua.LTFunction
}

// global returns a global value, LNil when unset.
func (s *sandbox) global(name string) lua.LValue {
	return s.L.GetGlobal(name)
}

// call invokes the global function fn and returns its first result, LNil
// when it returns nothing.
func (s *sandbox) call(ctx context.Context, fn string, args ...lua.LValue) (lua.LValue, error) {
	f := s.L.GetGlobal(fn)
	if f.Type() != lua.LTFunction {
		return lua.LNil, fmt.Errorf("%s: %s is %s, not a function", s.name, fn, f.Type())
	}
	err := s.guard(ctx, func() error {
		return s.L.CallByParam(lua.P{Fn: f, NRet: 1, Protect: true}, args...)
	})
	if err != nil {
		return lua.LNil, fmt.Errorf("%s: %s: %w", s.name, fn, err)
	}
	result := s.L.Get(-1)
	s.L.Pop(1)
	return result, nil
}

// guard applies the timeout to fn and converts interpreter panics.
func (s *sandbox) guard(ctx context.Context, fn func() error) (err error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	s.L.SetContext(ctx)
	defer s.L.RemoveContext()

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("lua panic: %v", r)
		}
	}()
	return fn()
}

func (s *sandbox) close() { s.L.Close() }
