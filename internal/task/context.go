package task

import (
	lua "github.com/yuin/gopher-lua"
)

// Context is the caller-owned variable store handed to Step.Execute. The
// executor reads it on import and mutates it only on export. A Context must
// not be shared between concurrent executions.
type Context struct {
	// Variables maps names to their typed values.
	Variables map[VariableName]VarValue

	// LuaInitFunction, if set, is invoked once per script environment after
	// the sandbox has been built. It can install additional host functions,
	// e.g. a replacement print.
	LuaInitFunction func(L *lua.LState)
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{Variables: make(map[VariableName]VarValue)}
}
