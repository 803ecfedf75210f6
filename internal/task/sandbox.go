package task

import (
	"fmt"
	"strings"
	"unicode/utf8"

	lua "github.com/yuin/gopher-lua"
)

// safeLibraries is the whitelisted standard-library subset. The package
// library must be opened first so the others can register themselves; its
// globals are unbound again below.
var safeLibraries = []struct {
	name string
	open lua.LGFunction
}{
	{lua.LoadLibName, lua.OpenPackage},
	{lua.BaseLibName, lua.OpenBase},
	{lua.TabLibName, lua.OpenTable},
	{lua.StringLibName, lua.OpenString},
	{lua.MathLibName, lua.OpenMath},
}

// removedGlobals are unbound after the libraries are opened. loadstring is the
// 5.1 alias of load; package and require come in with the package library.
var removedGlobals = []string{
	"collectgarbage", "debug", "dofile", "load", "loadfile", "loadstring",
	"package", "print", "require",
}

// newSandboxedState builds a fresh script environment with the restricted
// library subset and the host sleep and utf8 additions installed.
func newSandboxedState() (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})

	for _, lib := range safeLibraries {
		if err := L.CallByParam(lua.P{
			Fn:      L.NewFunction(lib.open),
			NRet:    0,
			Protect: true,
		}, lua.LString(lib.name)); err != nil {
			L.Close()
			return nil, fmt.Errorf("open library %s: %w", lib.name, err)
		}
	}

	for _, name := range removedGlobals {
		L.SetGlobal(name, lua.LNil)
	}

	L.SetGlobal("sleep", L.NewFunction(sleepFunc))
	openUTF8(L)

	return L, nil
}

// openUTF8 installs a utf8 table backed by Go's unicode/utf8. The embedded VM
// implements Lua 5.1 and ships no utf8 library of its own.
func openUTF8(L *lua.LState) {
	mod := L.SetFuncs(L.NewTable(), map[string]lua.LGFunction{
		"len":       utf8LenFunc,
		"char":      utf8CharFunc,
		"codepoint": utf8CodepointFunc,
	})
	mod.RawSetString("charpattern", lua.LString("[\x00-\x7F\xC2-\xFD][\x80-\xBF]*"))
	L.SetGlobal("utf8", mod)
}

// absByteIndex converts a 1-based, possibly negative Lua string index into a
// 1-based byte position.
func absByteIndex(i, length int) int {
	if i < 0 {
		i = length + i + 1
	}
	return i
}

// utf8LenFunc counts codepoints in s[i..j]. On an invalid byte sequence it
// returns nil plus the position of the offending byte, like Lua 5.3 utf8.len.
func utf8LenFunc(L *lua.LState) int {
	s := L.CheckString(1)
	i := absByteIndex(L.OptInt(2, 1), len(s))
	j := absByteIndex(L.OptInt(3, -1), len(s))
	if i < 1 {
		i = 1
	}
	if j > len(s) {
		j = len(s)
	}

	n := 0
	pos := i - 1
	for pos < j {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if r == utf8.RuneError && size <= 1 {
			L.Push(lua.LNil)
			L.Push(lua.LNumber(pos + 1))
			return 2
		}
		n++
		pos += size
	}
	L.Push(lua.LNumber(n))
	return 1
}

func utf8CharFunc(L *lua.LState) int {
	var b strings.Builder
	for i := 1; i <= L.GetTop(); i++ {
		cp := L.CheckInt(i)
		if cp < 0 || cp > 0x10FFFF {
			L.RaiseError("value out of range")
		}
		b.WriteRune(rune(cp))
	}
	L.Push(lua.LString(b.String()))
	return 1
}

func utf8CodepointFunc(L *lua.LState) int {
	s := L.CheckString(1)
	i := absByteIndex(L.OptInt(2, 1), len(s))
	j := absByteIndex(L.OptInt(3, i), len(s))
	if i < 1 || j > len(s) {
		L.RaiseError("position out of range")
	}

	count := 0
	pos := i - 1
	for pos < j {
		r, size := utf8.DecodeRuneInString(s[pos:])
		if r == utf8.RuneError && size <= 1 {
			L.RaiseError("invalid UTF-8 code")
		}
		L.Push(lua.LNumber(r))
		count++
		pos += size
	}
	return count
}
