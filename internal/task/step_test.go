package task

import (
	"errors"
	"testing"
	"time"
)

func TestNewStepDefaults(t *testing.T) {
	step := NewStep(StepAction)

	if step.Type() != StepAction {
		t.Errorf("type = %v, want action", step.Type())
	}
	if step.Timeout() != TimeoutInfinite {
		t.Errorf("timeout = %v, want infinite", step.Timeout())
	}
	if step.IndentationLevel() != 0 {
		t.Errorf("indentation = %d, want 0", step.IndentationLevel())
	}
	if !step.TimeOfLastExecution().IsZero() {
		t.Error("fresh step must not have an execution time")
	}
}

func TestStepMutatorsUpdateModificationTime(t *testing.T) {
	step := NewStep(StepAction)
	before := step.TimeOfLastModification()

	time.Sleep(2 * time.Millisecond)
	step.SetLabel("increment counter")

	if !step.TimeOfLastModification().After(before) {
		t.Error("SetLabel did not advance the modification time")
	}

	before = step.TimeOfLastModification()
	time.Sleep(2 * time.Millisecond)
	step.SetScript("i = i + 1")

	if !step.TimeOfLastModification().After(before) {
		t.Error("SetScript did not advance the modification time")
	}

	before = step.TimeOfLastModification()
	time.Sleep(2 * time.Millisecond)
	step.SetType(StepWhile)

	if !step.TimeOfLastModification().After(before) {
		t.Error("SetType did not advance the modification time")
	}
}

func TestStepSetTimeoutClampsNegative(t *testing.T) {
	step := NewStep(StepAction)
	step.SetTimeout(-5 * time.Second)
	if step.Timeout() != 0 {
		t.Errorf("timeout = %v, want 0", step.Timeout())
	}

	step.SetTimeout(42 * time.Millisecond)
	if step.Timeout() != 42*time.Millisecond {
		t.Errorf("timeout = %v, want 42ms", step.Timeout())
	}
}

func TestStepSetIndentationLevel(t *testing.T) {
	step := NewStep(StepAction)

	if err := step.SetIndentationLevel(-1); err == nil {
		t.Error("negative indentation level must be rejected")
	} else if !errors.Is(err, ErrConfiguration) {
		t.Errorf("error = %v, want ErrConfiguration", err)
	}

	if err := step.SetIndentationLevel(maxIndentationLevel + 1); err == nil {
		t.Error("indentation level above maximum must be rejected")
	}

	if err := step.SetIndentationLevel(maxIndentationLevel); err != nil {
		t.Errorf("maximum indentation level rejected: %v", err)
	}
	if step.IndentationLevel() != maxIndentationLevel {
		t.Errorf("indentation = %d, want %d", step.IndentationLevel(), maxIndentationLevel)
	}
}

func TestParseStepType(t *testing.T) {
	tests := []struct {
		name string
		want StepType
	}{
		{"action", StepAction},
		{"if", StepIf},
		{"elseif", StepElseIf},
		{"else", StepElse},
		{"while", StepWhile},
		{"try", StepTry},
		{"catch", StepCatch},
		{"end", StepEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseStepType(tt.name)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Errorf("ParseStepType(%q) = %v, want %v", tt.name, got, tt.want)
			}
			if got.String() != tt.name {
				t.Errorf("String() = %q, want %q", got.String(), tt.name)
			}
		})
	}

	if _, err := ParseStepType("loop"); err == nil {
		t.Error("unknown type must be rejected")
	}
}

func TestVariableNameValidation(t *testing.T) {
	valid := []string{"a", "foo_bar", "_x", "Counter2"}
	for _, name := range valid {
		if _, err := NewVariableName(name); err != nil {
			t.Errorf("NewVariableName(%q) failed: %v", name, err)
		}
	}

	invalid := []string{"", "2x", "a-b", "foo bar", "ä"}
	for _, name := range invalid {
		if _, err := NewVariableName(name); err == nil {
			t.Errorf("NewVariableName(%q) should fail", name)
		}
	}
}

func TestVarValueVariants(t *testing.T) {
	i := Integer(-7)
	if i.Kind() != KindInteger || i.Int() != -7 {
		t.Errorf("Integer(-7) = %v", i)
	}

	f := Floating(0.5)
	if f.Kind() != KindFloating || f.Float() != 0.5 {
		t.Errorf("Floating(0.5) = %v", f)
	}

	s := Text("hello")
	if s.Kind() != KindText || s.Str() != "hello" {
		t.Errorf("Text(hello) = %v", s)
	}
}
