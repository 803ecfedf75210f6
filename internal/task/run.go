package task

import (
	"time"

	"taskomat/internal/comm"
)

// Execute runs the sequence under the given context: actions run in order,
// if/elseif/else selects the first branch whose condition step returns true,
// while re-runs its body as long as its condition step returns true, and try
// transfers control to its catch body when a step fails with an ordinary
// script error. Errors carrying the AbortMarker are never caught by a catch
// block.
func (s *Sequence) Execute(ctx *Context, channel *comm.Channel) error {
	if err := s.CheckCorrectnessOfSteps(); err != nil {
		return err
	}

	postMessage(channel, comm.MessageSequenceStarted, "Sequence started", time.Now(), 0)

	if err := s.executeRange(ctx, channel, 0, len(s.steps)); err != nil {
		postMessage(channel, comm.MessageSequenceStoppedWithError, err.Error(),
			time.Now(), 0)
		return err
	}

	postMessage(channel, comm.MessageSequenceStopped, "Sequence finished",
		time.Now(), 0)
	return nil
}

// executeRange runs the steps in [from, to). The range borders must align
// with block boundaries; Execute guarantees this via CheckCorrectnessOfSteps.
func (s *Sequence) executeRange(ctx *Context, channel *comm.Channel, from, to int) error {
	i := from
	for i < to {
		step := s.steps[i]
		switch step.Type() {
		case StepAction:
			if _, err := step.Execute(ctx, channel, uint16(i)); err != nil {
				return err
			}
			i++

		case StepIf:
			next, err := s.executeIfChain(ctx, channel, i)
			if err != nil {
				return err
			}
			i = next

		case StepWhile:
			end := s.matchingEnd(i)
			for {
				cond, err := step.Execute(ctx, channel, uint16(i))
				if err != nil {
					return err
				}
				if !cond {
					break
				}
				if err := s.executeRange(ctx, channel, i+1, end); err != nil {
					return err
				}
			}
			i = end + 1

		case StepTry:
			catch := s.matchingCatch(i)
			end := s.matchingEnd(i)
			if err := s.executeRange(ctx, channel, i+1, catch); err != nil {
				if IsAbortError(err) {
					return err
				}
				if err := s.executeRange(ctx, channel, catch+1, end); err != nil {
					return err
				}
			}
			i = end + 1

		default:
			// elseif/else/catch/end are consumed by their opening construct.
			i++
		}
	}
	return nil
}

// executeIfChain runs an if/elseif/else construct starting at ifIdx and
// returns the index of the step following its end.
func (s *Sequence) executeIfChain(ctx *Context, channel *comm.Channel, ifIdx int) (int, error) {
	markers, end := s.branchMarkers(ifIdx)

	// Branch boundaries: condition step index -> body range.
	condIdx := ifIdx
	for _, bodyEnd := range append(markers, end) {
		cond := s.steps[condIdx]
		if cond.Type() == StepElse {
			return end + 1, s.executeRange(ctx, channel, condIdx+1, bodyEnd)
		}
		taken, err := cond.Execute(ctx, channel, uint16(condIdx))
		if err != nil {
			return 0, err
		}
		if taken {
			return end + 1, s.executeRange(ctx, channel, condIdx+1, bodyEnd)
		}
		condIdx = bodyEnd
	}
	return end + 1, nil
}

// branchMarkers returns the elseif/else step indices at the top level of the
// if block opened at ifIdx, plus the index of its matching end.
func (s *Sequence) branchMarkers(ifIdx int) ([]int, int) {
	var markers []int
	depth := 0
	for j := ifIdx + 1; j < len(s.steps); j++ {
		switch s.steps[j].Type() {
		case StepIf, StepWhile, StepTry:
			depth++
		case StepElseIf, StepElse:
			if depth == 0 {
				markers = append(markers, j)
			}
		case StepEnd:
			if depth == 0 {
				return markers, j
			}
			depth--
		}
	}
	return markers, len(s.steps)
}

// matchingEnd returns the index of the end step closing the block opened at
// openIdx.
func (s *Sequence) matchingEnd(openIdx int) int {
	depth := 0
	for j := openIdx + 1; j < len(s.steps); j++ {
		switch s.steps[j].Type() {
		case StepIf, StepWhile, StepTry:
			depth++
		case StepEnd:
			if depth == 0 {
				return j
			}
			depth--
		}
	}
	return len(s.steps)
}

// matchingCatch returns the index of the catch step of the try block opened
// at openIdx.
func (s *Sequence) matchingCatch(openIdx int) int {
	depth := 0
	for j := openIdx + 1; j < len(s.steps); j++ {
		switch s.steps[j].Type() {
		case StepIf, StepWhile, StepTry:
			depth++
		case StepCatch:
			if depth == 0 {
				return j
			}
		case StepEnd:
			if depth == 0 {
				return j
			}
			depth--
		}
	}
	return len(s.steps)
}
