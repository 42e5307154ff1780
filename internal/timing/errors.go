package timing

import (
	"errors"
	"fmt"
)

// ErrSessionTerminal is returned when an operation is attempted on a
// finished or aborted session.
var ErrSessionTerminal = errors.New("session is terminal")

// IncompleteRunError reports a run that exhausted its frames without
// producing a full result. Which crossing was missing is recorded so the
// caller can prompt the user appropriately.
type IncompleteRunError struct {
	// MissingLine names the crossing that was never observed.
	MissingLine string
	// FramesSeen is how many frames were processed before giving up.
	FramesSeen int64
}

func (e *IncompleteRunError) Error() string {
	return fmt.Sprintf("run incomplete: no %s crossing detected after %d frames", e.MissingLine, e.FramesSeen)
}

// InvalidTimingError reports a non-positive elapsed time between the two
// crossings. This is an invariant violation, never clamped or reported as a
// speed.
type InvalidTimingError struct {
	StartTime  float64
	FinishTime float64
}

func (e *InvalidTimingError) Error() string {
	return fmt.Sprintf("invalid timing: finish %.4fs not after start %.4fs", e.FinishTime, e.StartTime)
}

// InvalidTransitionError reports a state machine trigger fired in the wrong
// state.
type InvalidTransitionError struct {
	From    State
	Trigger string
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot %s from state %s", e.Trigger, e.From)
}
