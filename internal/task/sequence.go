package task

import (
	"fmt"
)

// maxLabelLength bounds the sequence label in bytes.
const maxLabelLength = 128

// blockKind tracks open control-flow constructs during indentation analysis.
type blockKind int

const (
	kindIf blockKind = iota
	kindElseIf
	kindElse
	kindWhile
	kindTry
	kindCatch
)

func (k blockKind) String() string {
	switch k {
	case kindIf:
		return "if"
	case kindElseIf:
		return "elseif"
	case kindElse:
		return "else"
	case kindWhile:
		return "while"
	case kindTry:
		return "try"
	default:
		return "catch"
	}
}

// Sequence is an ordered list of steps with a structural nesting grammar.
// Indentation levels are reassigned eagerly on every mutation so that the
// structural state is always current.
type Sequence struct {
	label            string
	steps            []*Step
	indentationError string
}

// NewSequence constructs a sequence with a descriptive label of 1 to 128
// bytes.
func NewSequence(label string) (*Sequence, error) {
	if err := checkSequenceLabel(label); err != nil {
		return nil, err
	}
	return &Sequence{label: label}, nil
}

func checkSequenceLabel(label string) error {
	if label == "" {
		return newError(ErrConfiguration, "sequence label may not be empty")
	}
	if len(label) > maxLabelLength {
		return newError(ErrConfiguration, fmt.Sprintf(
			"sequence label exceeds %d bytes (%d)", maxLabelLength, len(label)))
	}
	return nil
}

// Label returns the sequence label.
func (s *Sequence) Label() string { return s.label }

// Size returns the number of steps.
func (s *Sequence) Size() uint16 { return uint16(len(s.steps)) }

// Empty reports whether the sequence contains no steps.
func (s *Sequence) Empty() bool { return len(s.steps) == 0 }

// StepAt returns the step at the given index.
func (s *Sequence) StepAt(idx uint16) *Step { return s.steps[idx] }

// Steps returns the underlying step list.
func (s *Sequence) Steps() []*Step { return s.steps }

// AddStep appends a step and reassigns indentation levels.
func (s *Sequence) AddStep(step *Step) {
	s.steps = append(s.steps, step)
	s.indent()
}

// IndentationError returns an error string if the sequence is not
// consistently nested, or "" if the nesting is correct.
func (s *Sequence) IndentationError() string { return s.indentationError }

// CheckCorrectnessOfSteps re-runs the structural analysis and fails if the
// steps are not properly nested.
func (s *Sequence) CheckCorrectnessOfSteps() error {
	s.indent()
	if s.indentationError != "" {
		return newError(ErrStructural, s.indentationError)
	}
	return nil
}

// indent assigns indentation levels to all steps according to their logical
// nesting. On malformed nesting an approximate indentation is still assigned
// so the display remains usable, and the first violation is recorded in
// indentationError. Step indices in error messages are zero-based.
func (s *Sequence) indent() {
	var stack []blockKind
	var openIdx []int
	depth := 0
	errMsg := ""

	record := func(msg string) {
		if errMsg == "" {
			errMsg = msg
		}
	}
	top := func() (blockKind, bool) {
		if len(stack) == 0 {
			return 0, false
		}
		return stack[len(stack)-1], true
	}
	push := func(k blockKind, idx int) {
		stack = append(stack, k)
		openIdx = append(openIdx, idx)
	}
	pop := func() {
		stack = stack[:len(stack)-1]
		openIdx = openIdx[:len(openIdx)-1]
	}

	for i, step := range s.steps {
		level := depth

		switch step.Type() {
		case StepAction:

		case StepIf:
			push(kindIf, i)
			depth++

		case StepWhile:
			push(kindWhile, i)
			depth++

		case StepTry:
			push(kindTry, i)
			depth++

		case StepElseIf:
			if k, ok := top(); ok && (k == kindIf || k == kindElseIf) {
				stack[len(stack)-1] = kindElseIf
			} else {
				record(fmt.Sprintf("step %d: 'elseif' outside of an 'if' block", i))
			}
			level = depth - 1

		case StepElse:
			if k, ok := top(); ok && (k == kindIf || k == kindElseIf) {
				stack[len(stack)-1] = kindElse
			} else {
				record(fmt.Sprintf("step %d: 'else' outside of an 'if' block", i))
			}
			level = depth - 1

		case StepCatch:
			if k, ok := top(); ok && k == kindTry {
				stack[len(stack)-1] = kindCatch
			} else {
				record(fmt.Sprintf("step %d: 'catch' outside of a 'try' block", i))
			}
			level = depth - 1

		case StepEnd:
			if k, ok := top(); ok {
				if k == kindTry {
					record(fmt.Sprintf("step %d: 'try' block closed without 'catch'", i))
				}
				pop()
				depth--
				level = depth
			} else {
				record(fmt.Sprintf(
					"step %d: 'end' without matching 'if', 'while', or 'try'", i))
				level = depth - 1
			}
		}

		if level < 0 {
			level = 0
		}
		if level > maxIndentationLevel {
			record(fmt.Sprintf("step %d: nesting exceeds maximum indentation level (%d)",
				i, maxIndentationLevel))
			level = maxIndentationLevel
		}
		step.indentationLevel = level
	}

	if k, ok := top(); ok {
		record(fmt.Sprintf("unterminated '%s' block at step %d",
			k, openIdx[len(openIdx)-1]))
	}

	s.indentationError = errMsg
}
