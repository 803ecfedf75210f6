package task

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Sequence files are Lua files with JSON metadata in comment lines: the first
// line carries the sequence metadata, every step starts with a "-- step:"
// line, and the lines until the next step marker are the step script.

const stepMarker = "-- step: "

type sequenceMeta struct {
	Label string `json:"label"`
}

type stepMeta struct {
	Type             string    `json:"type"`
	Label            string    `json:"label,omitempty"`
	UsedVariables    []string  `json:"use_context_variable_names,omitempty"`
	TimeoutMS        int64     `json:"timeout_ms"` // -1 means infinite
	LastModification time.Time `json:"last_modification,omitempty"`
	LastExecution    time.Time `json:"last_execution,omitempty"`
}

// SerializeSequence renders a sequence into its file form.
func SerializeSequence(seq *Sequence) (string, error) {
	var b strings.Builder

	meta, err := json.Marshal(sequenceMeta{Label: seq.Label()})
	if err != nil {
		return "", fmt.Errorf("marshal sequence metadata: %w", err)
	}
	b.WriteString("-- ")
	b.Write(meta)
	b.WriteString("\n")

	for _, step := range seq.Steps() {
		sm := stepMeta{
			Type:             step.Type().String(),
			Label:            step.Label(),
			TimeoutMS:        step.Timeout().Milliseconds(),
			LastModification: step.TimeOfLastModification(),
			LastExecution:    step.TimeOfLastExecution(),
		}
		if step.Timeout() == TimeoutInfinite {
			sm.TimeoutMS = -1
		}
		for _, name := range step.UsedContextVariableNames() {
			sm.UsedVariables = append(sm.UsedVariables, name.String())
		}

		data, err := json.Marshal(sm)
		if err != nil {
			return "", fmt.Errorf("marshal step metadata: %w", err)
		}

		b.WriteString("\n")
		b.WriteString(stepMarker)
		b.Write(data)
		b.WriteString("\n")
		if script := step.Script(); script != "" {
			b.WriteString(script)
			if !strings.HasSuffix(script, "\n") {
				b.WriteString("\n")
			}
		}
	}

	return b.String(), nil
}

// ParseSequence reconstructs a sequence from its file form.
func ParseSequence(data string) (*Sequence, error) {
	lines := strings.Split(data, "\n")
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "-- {") {
		return nil, newError(ErrConfiguration, "missing sequence metadata line")
	}

	var meta sequenceMeta
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[0], "-- ")), &meta); err != nil {
		return nil, fmt.Errorf("parse sequence metadata: %w", err)
	}

	seq, err := NewSequence(meta.Label)
	if err != nil {
		return nil, err
	}

	var current *Step
	var script []string

	flush := func() {
		if current == nil {
			return
		}
		current.script = trimBlankEdges(script)
		seq.AddStep(current)
		current = nil
		script = nil
	}

	for _, line := range lines[1:] {
		if strings.HasPrefix(line, stepMarker) {
			flush()
			step, err := parseStepMeta(strings.TrimPrefix(line, stepMarker))
			if err != nil {
				return nil, err
			}
			current = step
			continue
		}
		if current != nil {
			script = append(script, line)
		}
	}
	flush()

	return seq, nil
}

func parseStepMeta(jsonStr string) (*Step, error) {
	var sm stepMeta
	if err := json.Unmarshal([]byte(jsonStr), &sm); err != nil {
		return nil, fmt.Errorf("parse step metadata: %w", err)
	}

	stepType, err := ParseStepType(sm.Type)
	if err != nil {
		return nil, err
	}

	step := NewStep(stepType)
	step.label = sm.Label
	if sm.TimeoutMS < 0 {
		step.timeout = TimeoutInfinite
	} else {
		step.timeout = time.Duration(sm.TimeoutMS) * time.Millisecond
	}
	if !sm.LastModification.IsZero() {
		step.setTimeOfLastModification(sm.LastModification)
	}
	if !sm.LastExecution.IsZero() {
		step.setTimeOfLastExecution(sm.LastExecution)
	}

	names := make([]VariableName, 0, len(sm.UsedVariables))
	for _, raw := range sm.UsedVariables {
		name, err := NewVariableName(raw)
		if err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	step.usedContextVariables = names

	return step, nil
}

// trimBlankEdges drops leading and trailing blank lines around a script.
func trimBlankEdges(lines []string) string {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	end := len(lines)
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
