package task

import (
	"errors"
	"strings"
	"testing"
)

func seqFromTypes(t *testing.T, types ...StepType) *Sequence {
	t.Helper()
	seq, err := NewSequence("test sequence")
	if err != nil {
		t.Fatal(err)
	}
	for _, st := range types {
		seq.AddStep(NewStep(st))
	}
	return seq
}

func levels(seq *Sequence) []int {
	out := make([]int, 0, seq.Size())
	for _, step := range seq.Steps() {
		out = append(out, step.IndentationLevel())
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestNewSequenceLabelConstraints(t *testing.T) {
	if _, err := NewSequence(""); err == nil {
		t.Error("empty label must be rejected")
	}
	if _, err := NewSequence(strings.Repeat("x", 129)); err == nil {
		t.Error("129-byte label must be rejected")
	}
	if _, err := NewSequence("x"); err != nil {
		t.Errorf("1-byte label rejected: %v", err)
	}
	if _, err := NewSequence(strings.Repeat("x", 128)); err != nil {
		t.Errorf("128-byte label rejected: %v", err)
	}
}

func TestIndentWellNested(t *testing.T) {
	tests := []struct {
		name  string
		types []StepType
		want  []int
	}{
		{
			"flat actions",
			[]StepType{StepAction, StepAction},
			[]int{0, 0},
		},
		{
			"if else end",
			[]StepType{StepIf, StepAction, StepElse, StepAction, StepEnd},
			[]int{0, 1, 0, 1, 0},
		},
		{
			"if elseif elseif else end",
			[]StepType{StepIf, StepAction, StepElseIf, StepAction, StepElseIf,
				StepAction, StepElse, StepAction, StepEnd},
			[]int{0, 1, 0, 1, 0, 1, 0, 1, 0},
		},
		{
			"while end",
			[]StepType{StepWhile, StepAction, StepEnd},
			[]int{0, 1, 0},
		},
		{
			"try catch end",
			[]StepType{StepTry, StepAction, StepCatch, StepAction, StepEnd},
			[]int{0, 1, 0, 1, 0},
		},
		{
			"nested while in if",
			[]StepType{StepIf, StepWhile, StepAction, StepEnd, StepEnd},
			[]int{0, 1, 2, 1, 0},
		},
		{
			"while try action catch end end",
			[]StepType{StepWhile, StepTry, StepAction, StepCatch, StepEnd, StepEnd},
			[]int{0, 1, 2, 1, 1, 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := seqFromTypes(t, tt.types...)
			if msg := seq.IndentationError(); msg != "" {
				t.Fatalf("unexpected indentation error: %q", msg)
			}
			if got := levels(seq); !equalInts(got, tt.want) {
				t.Errorf("levels = %v, want %v", got, tt.want)
			}
			if err := seq.CheckCorrectnessOfSteps(); err != nil {
				t.Errorf("correctness check failed: %v", err)
			}
		})
	}
}

func TestIndentStructuralErrors(t *testing.T) {
	tests := []struct {
		name    string
		types   []StepType
		wantSub string
	}{
		{
			"extra end",
			[]StepType{StepIf, StepAction, StepEnd, StepEnd},
			"step 3",
		},
		{
			"stray else",
			[]StepType{StepAction, StepElse, StepEnd},
			"'else' outside of an 'if' block",
		},
		{
			"stray elseif",
			[]StepType{StepWhile, StepElseIf, StepEnd},
			"'elseif' outside of an 'if' block",
		},
		{
			"stray catch",
			[]StepType{StepIf, StepCatch, StepEnd},
			"'catch' outside of a 'try' block",
		},
		{
			"else after else",
			[]StepType{StepIf, StepElse, StepElse, StepEnd},
			"'else' outside of an 'if' block",
		},
		{
			"try without catch",
			[]StepType{StepTry, StepAction, StepEnd},
			"'try' block closed without 'catch'",
		},
		{
			"unterminated if",
			[]StepType{StepAction, StepIf, StepAction},
			"unterminated 'if' block at step 1",
		},
		{
			"unterminated while",
			[]StepType{StepWhile},
			"unterminated 'while' block at step 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := seqFromTypes(t, tt.types...)
			msg := seq.IndentationError()
			if msg == "" {
				t.Fatal("expected an indentation error")
			}
			if !strings.Contains(msg, tt.wantSub) {
				t.Errorf("error %q does not contain %q", msg, tt.wantSub)
			}

			err := seq.CheckCorrectnessOfSteps()
			if err == nil {
				t.Fatal("correctness check should fail")
			}
			if !errors.Is(err, ErrStructural) {
				t.Errorf("error = %v, want ErrStructural", err)
			}

			// Approximate indentation stays usable.
			for i, level := range levels(seq) {
				if level < 0 || level > maxIndentationLevel {
					t.Errorf("step %d: level %d out of range", i, level)
				}
			}
		})
	}
}

func TestIndentErrorClearsWhenFixed(t *testing.T) {
	seq := seqFromTypes(t, StepIf, StepAction)
	if seq.IndentationError() == "" {
		t.Fatal("expected error for unterminated if")
	}

	seq.AddStep(NewStep(StepEnd))
	if msg := seq.IndentationError(); msg != "" {
		t.Errorf("error not cleared after adding end: %q", msg)
	}
}

func TestIndentDeepNestingClamped(t *testing.T) {
	seq, err := NewSequence("deep")
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < maxIndentationLevel+3; i++ {
		seq.AddStep(NewStep(StepWhile))
	}

	if seq.IndentationError() == "" {
		t.Error("expected an error for nesting beyond the maximum")
	}
	for i, level := range levels(seq) {
		if level > maxIndentationLevel {
			t.Errorf("step %d: level %d exceeds maximum", i, level)
		}
	}
}
