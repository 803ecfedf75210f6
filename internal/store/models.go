package store

import (
	"time"

	"taskomat/internal/task"
)

// SequenceRecord is the persisted form of a sequence.
type SequenceRecord struct {
	ID      string       `json:"id"`
	Label   string       `json:"label"`
	Steps   []StepRecord `json:"steps,omitempty"`
	SavedAt time.Time    `json:"saved_at"`
}

// StepRecord is the persisted form of a step.
type StepRecord struct {
	Type             string    `json:"type"`
	Label            string    `json:"label,omitempty"`
	Script           string    `json:"script,omitempty"`
	UsedVariables    []string  `json:"used_variables,omitempty"`
	TimeoutMS        int64     `json:"timeout_ms"` // -1 means infinite
	IndentationLevel int       `json:"indentation_level"`
	LastModification time.Time `json:"last_modification,omitempty"`
	LastExecution    time.Time `json:"last_execution,omitempty"`
}

// RunRecord captures the outcome of one sequence execution.
type RunRecord struct {
	SequenceID string    `json:"sequence_id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Error      string    `json:"error,omitempty"`
}

// RecordFromSequence converts a sequence into its persisted form.
func RecordFromSequence(id string, seq *task.Sequence) *SequenceRecord {
	rec := &SequenceRecord{
		ID:      id,
		Label:   seq.Label(),
		SavedAt: time.Now(),
	}
	for _, step := range seq.Steps() {
		sr := StepRecord{
			Type:             step.Type().String(),
			Label:            step.Label(),
			Script:           step.Script(),
			TimeoutMS:        step.Timeout().Milliseconds(),
			IndentationLevel: step.IndentationLevel(),
			LastModification: step.TimeOfLastModification(),
			LastExecution:    step.TimeOfLastExecution(),
		}
		if step.Timeout() == task.TimeoutInfinite {
			sr.TimeoutMS = -1
		}
		for _, name := range step.UsedContextVariableNames() {
			sr.UsedVariables = append(sr.UsedVariables, name.String())
		}
		rec.Steps = append(rec.Steps, sr)
	}
	return rec
}

// ToSequence rebuilds a sequence from its persisted form. Indentation is
// reassigned by the sequence itself on every AddStep.
func (r *SequenceRecord) ToSequence() (*task.Sequence, error) {
	seq, err := task.NewSequence(r.Label)
	if err != nil {
		return nil, err
	}
	for _, sr := range r.Steps {
		stepType, err := task.ParseStepType(sr.Type)
		if err != nil {
			return nil, err
		}
		step := task.NewStep(stepType)
		step.SetLabel(sr.Label)
		step.SetScript(sr.Script)
		if sr.TimeoutMS < 0 {
			step.SetTimeout(task.TimeoutInfinite)
		} else {
			step.SetTimeout(time.Duration(sr.TimeoutMS) * time.Millisecond)
		}
		names := make([]task.VariableName, 0, len(sr.UsedVariables))
		for _, raw := range sr.UsedVariables {
			name, err := task.NewVariableName(raw)
			if err != nil {
				return nil, err
			}
			names = append(names, name)
		}
		step.SetUsedContextVariableNames(names)
		seq.AddStep(step)
	}
	return seq, nil
}
