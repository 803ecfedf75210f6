package task

import (
	"fmt"
	"time"
)

// StepType is the structural role of a step within a sequence.
type StepType int

const (
	StepAction StepType = iota
	StepIf
	StepElseIf
	StepElse
	StepWhile
	StepTry
	StepCatch
	StepEnd
)

var stepTypeNames = map[StepType]string{
	StepAction: "action",
	StepIf:     "if",
	StepElseIf: "elseif",
	StepElse:   "else",
	StepWhile:  "while",
	StepTry:    "try",
	StepCatch:  "catch",
	StepEnd:    "end",
}

func (t StepType) String() string {
	if name, ok := stepTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("steptype(%d)", int(t))
}

// ParseStepType maps a type name back to its StepType.
func ParseStepType(name string) (StepType, error) {
	for t, n := range stepTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, newError(ErrConfiguration, fmt.Sprintf("unknown step type %q", name))
}

// maxIndentationLevel bounds the nesting depth of a sequence.
const maxIndentationLevel = 20

// Step is a single executable unit: a script, a structural type, a label and
// the set of context variables it shares with the script environment.
type Step struct {
	stepType               StepType
	label                  string
	script                 string
	usedContextVariables   []VariableName
	timeout                time.Duration
	indentationLevel       int
	timeOfLastExecution    time.Time
	timeOfLastModification time.Time
}

// NewStep creates a step of the given type with an infinite timeout.
func NewStep(t StepType) *Step {
	return &Step{
		stepType:               t,
		timeout:                TimeoutInfinite,
		timeOfLastModification: time.Now(),
	}
}

// Type returns the structural role of the step.
func (s *Step) Type() StepType { return s.stepType }

// SetType changes the structural role and updates the modification time.
func (s *Step) SetType(t StepType) {
	s.stepType = t
	s.timeOfLastModification = time.Now()
}

// Label returns the display text.
func (s *Step) Label() string { return s.label }

// SetLabel assigns the display text and updates the modification time.
func (s *Step) SetLabel(label string) {
	s.label = label
	s.timeOfLastModification = time.Now()
}

// Script returns the script source.
func (s *Step) Script() string { return s.script }

// SetScript assigns the script source and updates the modification time.
func (s *Step) SetScript(script string) {
	s.script = script
	s.timeOfLastModification = time.Now()
}

// UsedContextVariableNames returns the import/export whitelist.
func (s *Step) UsedContextVariableNames() []VariableName {
	return s.usedContextVariables
}

// SetUsedContextVariableNames assigns the import/export whitelist.
func (s *Step) SetUsedContextVariableNames(names []VariableName) {
	s.usedContextVariables = names
}

// Timeout returns the per-execution timeout.
func (s *Step) Timeout() time.Duration { return s.timeout }

// SetTimeout assigns the timeout. Negative durations are clamped to zero,
// which makes the step expire on the first enforcement check.
func (s *Step) SetTimeout(timeout time.Duration) {
	if timeout < 0 {
		timeout = 0
	}
	s.timeout = timeout
}

// IndentationLevel returns the nesting level assigned by the sequence.
func (s *Step) IndentationLevel() int { return s.indentationLevel }

// SetIndentationLevel assigns the nesting level. Negative levels and levels
// beyond maxIndentationLevel are rejected.
func (s *Step) SetIndentationLevel(level int) error {
	if level < 0 {
		return newError(ErrConfiguration,
			fmt.Sprintf("cannot set negative indentation level (%d)", level))
	}
	if level > maxIndentationLevel {
		return newError(ErrConfiguration,
			fmt.Sprintf("indentation level exceeds maximum (%d > %d)", level, maxIndentationLevel))
	}
	s.indentationLevel = level
	return nil
}

// TimeOfLastExecution returns when Execute last started, or the zero time.
func (s *Step) TimeOfLastExecution() time.Time { return s.timeOfLastExecution }

// TimeOfLastModification returns when a mutator last touched the step.
func (s *Step) TimeOfLastModification() time.Time { return s.timeOfLastModification }

// setTimeOfLastModification is used by deserialization to restore metadata.
func (s *Step) setTimeOfLastModification(t time.Time) { s.timeOfLastModification = t }

// setTimeOfLastExecution is used by deserialization to restore metadata.
func (s *Step) setTimeOfLastExecution(t time.Time) { s.timeOfLastExecution = t }
