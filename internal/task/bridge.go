package task

import (
	"math"

	lua "github.com/yuin/gopher-lua"
)

// importVariables assigns the typed value of every whitelisted name present
// in the context to the corresponding script global.
func importVariables(ctx *Context, L *lua.LState, names []VariableName) {
	for _, name := range names {
		value, ok := ctx.Variables[name]
		if !ok {
			continue
		}
		switch value.Kind() {
		case KindInteger:
			L.SetGlobal(name.String(), lua.LNumber(value.Int()))
		case KindFloating:
			L.SetGlobal(name.String(), lua.LNumber(value.Float()))
		case KindText:
			L.SetGlobal(name.String(), lua.LString(value.Str()))
		}
	}
}

// exportVariables stores every whitelisted script global of a recognized type
// back into the context. Numbers become the integer variant iff they are
// integral and exactly representable as int64; strings become text. Globals
// of any other type (nil, boolean, table, function, userdata) are skipped and
// leave the previous context value untouched.
func exportVariables(L *lua.LState, ctx *Context, names []VariableName) {
	for _, name := range names {
		switch v := L.GetGlobal(name.String()).(type) {
		case lua.LNumber:
			f := float64(v)
			if isExactInt64(f) {
				ctx.Variables[name] = Integer(int64(f))
			} else {
				ctx.Variables[name] = Floating(f)
			}
		case lua.LString:
			ctx.Variables[name] = Text(string(v))
		}
	}
}

// isExactInt64 reports whether f is an integral value inside the int64 range.
// The upper bound is exclusive because float64(math.MaxInt64) rounds up to
// 2^63, which does not fit.
func isExactInt64(f float64) bool {
	return f == math.Trunc(f) &&
		f >= math.MinInt64 &&
		f < float64(math.MaxInt64)
}
