package task

import (
	"log/slog"
	"sync"

	"taskomat/internal/comm"
)

// Executor runs one sequence at a time on a background goroutine. A fresh
// CommChannel is created per run; observers drain its messages via Update and
// may abort the run via Cancel. The Context handed to RunAsynchronously must
// not be touched by the caller until Update reports the run finished.
type Executor struct {
	logger *slog.Logger

	mu       sync.Mutex
	channel  *comm.Channel
	running  bool
	errMsg   string
	finished chan struct{}
}

// NewExecutor creates an idle executor.
func NewExecutor(logger *slog.Logger) *Executor {
	return &Executor{logger: logger.With("component", "executor")}
}

// RunAsynchronously starts the sequence in a background goroutine. It fails
// if a run is already in flight.
func (e *Executor) RunAsynchronously(seq *Sequence, ctx *Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return newError(ErrConfiguration, "executor is already running a sequence")
	}

	channel := comm.NewChannel()
	finished := make(chan struct{})
	e.channel = channel
	e.running = true
	e.errMsg = ""
	e.finished = finished

	go func() {
		defer close(finished)
		err := seq.Execute(ctx, channel)

		e.mu.Lock()
		e.running = false
		if err != nil {
			e.errMsg = err.Error()
		}
		e.mu.Unlock()

		if err != nil {
			e.logger.Warn("sequence failed", "label", seq.Label(), "err", err)
		} else {
			e.logger.Info("sequence finished", "label", seq.Label())
		}
	}()

	return nil
}

// Update drains all pending messages from the current run and reports
// whether the run is still in flight. Once a run has finished and its queue
// is empty, Update keeps returning no messages and false.
func (e *Executor) Update() ([]comm.Message, bool) {
	e.mu.Lock()
	channel := e.channel
	busy := e.running
	e.mu.Unlock()

	if channel == nil {
		return nil, false
	}

	var msgs []comm.Message
	for {
		msg, ok := channel.TryReceive()
		if !ok {
			break
		}
		msgs = append(msgs, msg)
	}
	return msgs, busy || channel.Pending() > 0
}

// IsBusy reports whether a sequence is currently running.
func (e *Executor) IsBusy() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// Cancel requests immediate termination of the running sequence. It does not
// wait for the run to stop.
func (e *Executor) Cancel() {
	e.mu.Lock()
	channel := e.channel
	e.mu.Unlock()

	if channel != nil {
		channel.RequestTermination()
	}
}

// Wait blocks until the current run finishes. Returns immediately if no run
// was started.
func (e *Executor) Wait() {
	e.mu.Lock()
	finished := e.finished
	e.mu.Unlock()

	if finished != nil {
		<-finished
	}
}

// ErrorMessage returns the error text of the last finished run, or "".
func (e *Executor) ErrorMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.errMsg
}
