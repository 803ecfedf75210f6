package task

import (
	"context"
	"math"
	"strconv"
	"sync"
	"time"

	lua "github.com/yuin/gopher-lua"

	"taskomat/internal/comm"
)

// Registry keys shared between the executor and the enforcement checks.
const (
	stepTimeoutMSSinceEpochKey = "TASKOMAT_STEP_TIMEOUT_MS_SINCE_EPOCH"
	stepTimeoutSecondsKey      = "TASKOMAT_STEP_TIMEOUT_S"
	commChannelKey             = "TASKOMAT_COMM_CHANNEL"
	abortErrorMessageKey       = "TASKOMAT_ABORT_ERROR_MESSAGE"
)

// checkInterval is the polling period of both enforcement paths: the watchdog
// goroutine and the cooperative sleep slices.
const checkInterval = 10 * time.Millisecond

// installTimeoutAndTerminationCheck writes the deadline, the timeout in
// seconds and the comm channel into the VM registry, where the check
// functions running on the VM goroutine pick them up.
func installTimeoutAndTerminationCheck(L *lua.LState, t0 time.Time,
	timeout time.Duration, channel *comm.Channel) {

	reg := L.G.Registry
	reg.RawSetString(stepTimeoutSecondsKey, lua.LNumber(timeout.Seconds()))
	reg.RawSetString(stepTimeoutMSSinceEpochKey, lua.LNumber(msSinceEpoch(t0, timeout)))

	ud := L.NewUserData()
	ud.Value = channel
	reg.RawSetString(commChannelKey, ud)
}

// checkImmediateTerminationRequest raises an abort error if an observer has
// set the termination flag on the comm channel.
func checkImmediateTerminationRequest(L *lua.LState) {
	ud, ok := L.G.Registry.RawGetString(commChannelKey).(*lua.LUserData)
	if !ok {
		abortScriptWithError(L, commChannelKey+" not found in Lua registry")
		return
	}
	if channel, ok := ud.Value.(*comm.Channel); ok && channel != nil {
		if channel.TerminationRequested() {
			abortScriptWithError(L, "Step aborted on user request")
		}
	}
}

// checkScriptTimeout raises an abort error if the step deadline has passed.
func checkScriptTimeout(L *lua.LState) {
	reg := L.G.Registry

	deadline, ok := reg.RawGetString(stepTimeoutMSSinceEpochKey).(lua.LNumber)
	if !ok {
		abortScriptWithError(L, "Timeout time point not found in Lua registry ("+
			stepTimeoutMSSinceEpochKey+")")
		return
	}

	if float64(time.Now().UnixMilli()) > float64(deadline) {
		seconds := -1.0
		if s, ok := reg.RawGetString(stepTimeoutSecondsKey).(lua.LNumber); ok {
			seconds = float64(s)
		}
		abortScriptWithError(L, timeoutMessage(seconds))
	}
}

// checkTimeoutAndTermination is the periodic enforcement body. It runs on the
// VM goroutine, from inside sleep() slices.
func checkTimeoutAndTermination(L *lua.LState) {
	checkImmediateTerminationRequest(L)
	checkScriptTimeout(L)
}

// abortScriptWithError stores the marked message in the registry and raises a
// Lua error with it. The marker makes the error uncatchable for CATCH blocks.
func abortScriptWithError(L *lua.LState, msg string) {
	full := AbortMarker + " " + msg
	L.G.Registry.RawSetString(abortErrorMessageKey, lua.LString(full))
	L.RaiseError("%s", full)
}

func timeoutMessage(seconds float64) string {
	return "Timeout: Script took more than " +
		strconv.FormatFloat(seconds, 'g', -1, 64) + " s to run"
}

// sleepFunc pauses script execution for the given number of seconds in
// slices of at most checkInterval, running the enforcement checks on every
// wake so that long sleeps stay interruptible.
func sleepFunc(L *lua.LState) int {
	seconds := float64(L.CheckNumber(1))
	t0 := time.Now()
	for {
		checkTimeoutAndTermination(L)
		remaining := seconds - time.Since(t0).Seconds()
		if remaining <= 0 {
			return 0
		}
		time.Sleep(time.Duration(
			math.Min(remaining, checkInterval.Seconds()) * float64(time.Second)))
	}
}

// watchdog enforces timeout and termination for scripts that never reach a
// suspension point. The VM polls its context on every instruction, so
// cancelling the context stops even `while true do end`; because the context
// stays cancelled, the VM re-raises on every re-entry into user code, which
// pierces user-level pcall the same way the original re-arming abort hook
// does. The watchdog never touches the VM itself; it only records the abort
// cause and cancels.
type watchdog struct {
	channel        *comm.Channel
	deadlineMS     int64
	timeoutSeconds float64
	cancel         context.CancelFunc

	mu    sync.Mutex
	cause string
	stop  chan struct{}
}

func startWatchdog(cancel context.CancelFunc, channel *comm.Channel,
	deadlineMS int64, timeoutSeconds float64) *watchdog {

	w := &watchdog{
		channel:        channel,
		deadlineMS:     deadlineMS,
		timeoutSeconds: timeoutSeconds,
		cancel:         cancel,
		stop:           make(chan struct{}),
	}
	go w.run()
	return w
}

func (w *watchdog) run() {
	ticker := time.NewTicker(checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-ticker.C:
			if w.channel != nil && w.channel.TerminationRequested() {
				w.trip("Step aborted on user request")
				return
			}
			if time.Now().UnixMilli() > w.deadlineMS {
				w.trip(timeoutMessage(w.timeoutSeconds))
				return
			}
		}
	}
}

func (w *watchdog) trip(msg string) {
	w.mu.Lock()
	w.cause = AbortMarker + " " + msg
	w.mu.Unlock()
	w.cancel()
}

// halt stops the watchdog goroutine. Must be called exactly once.
func (w *watchdog) halt() {
	close(w.stop)
}

// abortCause returns the marked abort message, or "" if the watchdog did not
// trip.
func (w *watchdog) abortCause() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cause
}
