package task

import (
	"fmt"
	"regexp"
)

// VariableName identifies a context variable shared with scripts.
type VariableName string

var variableNameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// NewVariableName validates name as a Lua-compatible identifier.
func NewVariableName(name string) (VariableName, error) {
	if !variableNameRe.MatchString(name) {
		return "", newError(ErrConfiguration, fmt.Sprintf("invalid variable name %q", name))
	}
	return VariableName(name), nil
}

func (n VariableName) String() string { return string(n) }

// VarKind discriminates the closed set of value types crossing the variable
// bridge. Booleans and compound Lua types deliberately do not cross.
type VarKind int

const (
	KindInteger VarKind = iota
	KindFloating
	KindText
)

// VarValue is a tagged union of integer, floating and text.
type VarValue struct {
	kind VarKind
	i    int64
	f    float64
	s    string
}

// Integer builds an integer-variant value.
func Integer(v int64) VarValue { return VarValue{kind: KindInteger, i: v} }

// Floating builds a floating-variant value.
func Floating(v float64) VarValue { return VarValue{kind: KindFloating, f: v} }

// Text builds a text-variant value.
func Text(v string) VarValue { return VarValue{kind: KindText, s: v} }

// Kind returns the variant tag.
func (v VarValue) Kind() VarKind { return v.kind }

// Int returns the integer payload; valid only for KindInteger.
func (v VarValue) Int() int64 { return v.i }

// Float returns the floating payload; valid only for KindFloating.
func (v VarValue) Float() float64 { return v.f }

// Str returns the text payload; valid only for KindText.
func (v VarValue) Str() string { return v.s }

func (v VarValue) String() string {
	switch v.kind {
	case KindInteger:
		return fmt.Sprintf("%d", v.i)
	case KindFloating:
		return fmt.Sprintf("%g", v.f)
	default:
		return v.s
	}
}
