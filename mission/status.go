package mission

import (
	"fmt"
	"time"

	"github.com/a-bouts/helm/state"
)

// ErrTransition reports a state-machine move the mission does not allow.
type ErrTransition struct {
	From state.State
	To   state.State
}

func (e *ErrTransition) Error() string {
	return fmt.Sprintf("mission: cannot go from %s to %s", e.From, e.To)
}

// Start arms a loaded mission: AWAITING -> READY_TO_START.
func Start(ms *state.MissionStatus) error {
	if ms.State != state.Awaiting {
		return &ErrTransition{From: ms.State, To: state.ReadyToStart}
	}
	ms.State = state.ReadyToStart
	return nil
}

// Begin runs the start test: READY_TO_START -> START_TEST.
func Begin(ms *state.MissionStatus) error {
	if ms.State != state.ReadyToStart {
		return &ErrTransition{From: ms.State, To: state.StartTest}
	}
	ms.State = state.StartTest
	return nil
}

// Commence puts the boat under way in one of the follow modes and stamps
// the start time.
func Commence(ms *state.MissionStatus, mode state.State) error {
	switch mode {
	case state.RadioControl, state.CompassFollow, state.WindFollow:
	default:
		return fmt.Errorf("mission: %s is not a follow mode", mode)
	}
	if ms.State != state.StartTest {
		return &ErrTransition{From: ms.State, To: mode}
	}
	ms.State = mode
	ms.StartTime = time.Now().UTC()
	return nil
}

// CompleteMission closes out a finished voyage.
func CompleteMission(ms *state.MissionStatus) error {
	if !ms.State.Active() {
		return &ErrTransition{From: ms.State, To: state.Complete}
	}
	ms.State = state.Complete
	ms.EndTime = time.Now().UTC()
	return nil
}

// Terminate is the operator abort. Only an active mission can be aborted.
func Terminate(ms *state.MissionStatus) error {
	if !ms.State.Active() {
		return &ErrTransition{From: ms.State, To: state.Terminated}
	}
	ms.State = state.Terminated
	ms.EndTime = time.Now().UTC()
	return nil
}

// Fail records an unrecoverable error. Allowed from any non-terminal
// state.
func Fail(ms *state.MissionStatus) {
	if ms.State == state.Complete || ms.State == state.Terminated || ms.State == state.Failure {
		return
	}
	ms.State = state.Failure
	ms.EndTime = time.Now().UTC()
}
