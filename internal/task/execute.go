package task

import (
	"context"
	"fmt"
	"strings"
	"time"

	lua "github.com/yuin/gopher-lua"

	"taskomat/internal/comm"
)

// postMessage sends a lifecycle message if a channel is attached.
func postMessage(channel *comm.Channel, msgType, text string, ts time.Time, index uint16) {
	if channel == nil {
		return
	}
	channel.Post(comm.Message{
		Type:      msgType,
		Text:      text,
		Timestamp: ts,
		StepIndex: index,
	})
}

// Execute runs the step script inside a fresh sandboxed environment.
//
// It posts step_started, imports the whitelisted context variables, runs the
// script under a protected call with timeout and termination enforcement,
// exports the variables back and posts step_stopped. The returned bool is the
// script's boolean return value, or false if the script returned none.
//
// Failures post step_stopped_with_error and surface as an error whose message
// embeds the VM text; cancellation and timeout carry the AbortMarker.
func (s *Step) Execute(ctx *Context, channel *comm.Channel, index uint16) (bool, error) {
	t0 := time.Now()
	s.timeOfLastExecution = t0

	postMessage(channel, comm.MessageStepStarted, "Step started", t0, index)

	L, err := newSandboxedState()
	if err != nil {
		return s.failExecution(channel, index, err.Error())
	}
	defer L.Close()

	if ctx.LuaInitFunction != nil {
		ctx.LuaInitFunction(L)
	}

	installTimeoutAndTerminationCheck(L, t0, s.timeout, channel)

	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	L.SetContext(runCtx)

	w := startWatchdog(cancelRun, channel, msSinceEpoch(t0, s.timeout), s.timeout.Seconds())
	defer w.halt()

	importVariables(ctx, L, s.usedContextVariables)

	if err := L.DoString(s.script); err != nil {
		msg := err.Error()
		// A cancelled context surfaces as a bare context error; once the
		// watchdog has tripped, its recorded cause is the authoritative text.
		if cause := w.abortCause(); cause != "" && !strings.Contains(msg, AbortMarker) {
			msg = cause
		}
		return s.failExecution(channel, index, msg)
	}

	exportVariables(L, ctx, s.usedContextVariables)

	result := false
	if L.GetTop() >= 1 {
		if b, ok := L.Get(1).(lua.LBool); ok {
			result = bool(b)
		}
	}

	postMessage(channel, comm.MessageStepStopped,
		fmt.Sprintf("Step %d finished (logical result: %t)", index+1, result),
		time.Now(), index)

	return result, nil
}

func (s *Step) failExecution(channel *comm.Channel, index uint16, vmMsg string) (bool, error) {
	msg := fmt.Sprintf("Error while executing script of step %d: %s", index+1, vmMsg)
	postMessage(channel, comm.MessageStepStoppedWithError, msg, time.Now(), index)

	kind := ErrScript
	if strings.Contains(vmMsg, AbortMarker) {
		kind = ErrAborted
	}
	return false, newError(kind, msg)
}
