package web

import (
	"encoding/json"
	"net/http"
	"time"

	"taskomat/internal/store"
	"taskomat/internal/task"
)

// sequenceView is the API representation of a stored sequence.
type sequenceView struct {
	ID    string     `json:"id"`
	Label string     `json:"label"`
	Steps []stepView `json:"steps"`
	Error string     `json:"indentation_error,omitempty"`
}

type stepView struct {
	Type             string   `json:"type"`
	Label            string   `json:"label,omitempty"`
	Script           string   `json:"script,omitempty"`
	UsedVariables    []string `json:"used_variables,omitempty"`
	TimeoutMS        int64    `json:"timeout_ms"`
	IndentationLevel int      `json:"indentation_level"`
}

func viewFromStored(stored *task.StoredSequence) sequenceView {
	v := sequenceView{
		ID:    stored.ID,
		Label: stored.Sequence.Label(),
		Error: stored.Sequence.IndentationError(),
		Steps: []stepView{},
	}
	for _, step := range stored.Sequence.Steps() {
		sv := stepView{
			Type:             step.Type().String(),
			Label:            step.Label(),
			Script:           step.Script(),
			TimeoutMS:        step.Timeout().Milliseconds(),
			IndentationLevel: step.IndentationLevel(),
		}
		if step.Timeout() == task.TimeoutInfinite {
			sv.TimeoutMS = -1
		}
		for _, name := range step.UsedContextVariableNames() {
			sv.UsedVariables = append(sv.UsedVariables, name.String())
		}
		v.Steps = append(v.Steps, sv)
	}
	return v
}

func (s *Server) handleAPIListSequences(w http.ResponseWriter, r *http.Request) {
	stored, err := s.manager.List()
	if err != nil {
		s.logger.Error("list sequences", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	views := []sequenceView{}
	for _, st := range stored {
		views = append(views, viewFromStored(st))
	}
	s.writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleAPIGetSequence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stored, err := s.manager.Get(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "sequence not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, viewFromStored(stored))
}

type saveSequenceRequest struct {
	Label string `json:"label"`
	Steps []struct {
		Type          string   `json:"type"`
		Label         string   `json:"label"`
		Script        string   `json:"script"`
		UsedVariables []string `json:"used_variables"`
		TimeoutMS     int64    `json:"timeout_ms"` // -1 means infinite
	} `json:"steps"`
}

func (s *Server) handleAPISaveSequence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id") // empty on POST /api/sequences

	var req saveSequenceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	seq, err := task.NewSequence(req.Label)
	if err != nil {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	for _, rs := range req.Steps {
		stepType, err := task.ParseStepType(rs.Type)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		step := task.NewStep(stepType)
		step.SetLabel(rs.Label)
		step.SetScript(rs.Script)
		if rs.TimeoutMS < 0 {
			step.SetTimeout(task.TimeoutInfinite)
		} else {
			step.SetTimeout(time.Duration(rs.TimeoutMS) * time.Millisecond)
		}
		names := make([]task.VariableName, 0, len(rs.UsedVariables))
		for _, raw := range rs.UsedVariables {
			name, err := task.NewVariableName(raw)
			if err != nil {
				s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			names = append(names, name)
		}
		step.SetUsedContextVariableNames(names)
		seq.AddStep(step)
	}

	stored, err := s.manager.Save(id, seq)
	if err != nil {
		s.logger.Error("save sequence", "err", err, "id", id)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	if s.store != nil {
		if err := s.store.SaveSequence(store.RecordFromSequence(stored.ID, seq)); err != nil {
			s.logger.Error("persist sequence record", "err", err, "id", stored.ID)
		}
	}

	s.writeJSON(w, http.StatusOK, viewFromStored(stored))
}

func (s *Server) handleAPIDeleteSequence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.manager.Delete(id); err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "sequence not found"})
		return
	}
	if s.store != nil {
		if err := s.store.DeleteSequence(id); err != nil {
			s.logger.Debug("delete sequence record", "err", err, "id", id)
		}
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type runSequenceRequest struct {
	Variables map[string]any `json:"variables"`
}

func (s *Server) handleAPIRunSequence(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	stored, err := s.manager.Get(id)
	if err != nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "sequence not found"})
		return
	}

	if err := stored.Sequence.CheckCorrectnessOfSteps(); err != nil {
		s.writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	var req runSequenceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	// An empty body is fine; variables are optional.
	_ = json.NewDecoder(r.Body).Decode(&req)

	ctx := task.NewContext()
	for raw, value := range req.Variables {
		name, err := task.NewVariableName(raw)
		if err != nil {
			s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		switch v := value.(type) {
		case string:
			ctx.Variables[name] = task.Text(v)
		case float64:
			// JSON numbers arrive as float64; keep integral values integer.
			if v == float64(int64(v)) {
				ctx.Variables[name] = task.Integer(int64(v))
			} else {
				ctx.Variables[name] = task.Floating(v)
			}
		default:
			s.writeJSON(w, http.StatusBadRequest,
				map[string]string{"error": "variable " + raw + " must be a number or string"})
			return
		}
	}

	s.runMu.Lock()
	defer s.runMu.Unlock()

	startedAt := time.Now()
	if err := s.executor.RunAsynchronously(stored.Sequence, ctx); err != nil {
		s.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	s.runningID = id
	s.runStartedAt = startedAt

	s.wg.Add(1)
	go s.pumpRun(id, startedAt)

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started", "id": id})
}

// pumpRun forwards executor messages to the WebSocket hub until the run
// finishes, then records the run in the store.
func (s *Server) pumpRun(id string, startedAt time.Time) {
	defer s.wg.Done()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		msgs, busy := s.executor.Update()
		for _, msg := range msgs {
			s.bus.Publish(msg)
		}
		if !busy {
			break
		}
	}

	if s.store != nil {
		run := &store.RunRecord{
			SequenceID: id,
			StartedAt:  startedAt,
			FinishedAt: time.Now(),
			Error:      s.executor.ErrorMessage(),
		}
		if err := s.store.AppendRun(run); err != nil {
			s.logger.Error("append run record", "err", err, "id", id)
		}
	}
}

func (s *Server) handleAPIListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		s.writeJSON(w, http.StatusOK, []any{})
		return
	}
	runs, err := s.store.ListRuns(r.PathValue("id"), 50)
	if err != nil {
		s.logger.Error("list runs", "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if runs == nil {
		runs = []*store.RunRecord{}
	}
	s.writeJSON(w, http.StatusOK, runs)
}

func (s *Server) handleAPIStop(w http.ResponseWriter, r *http.Request) {
	s.executor.Cancel()
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "stop requested"})
}

func (s *Server) handleAPIStatus(w http.ResponseWriter, r *http.Request) {
	s.runMu.Lock()
	id := s.runningID
	startedAt := s.runStartedAt
	s.runMu.Unlock()

	busy := s.executor.IsBusy()
	status := map[string]any{"busy": busy}
	if busy {
		status["sequence_id"] = id
		status["started_at"] = startedAt
	} else if msg := s.executor.ErrorMessage(); msg != "" {
		status["last_error"] = msg
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleAPIVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"version": s.version})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}
