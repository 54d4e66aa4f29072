// Package loop runs the iterate-until-done controller: it invokes the agent
// with the same resolved prompt until the completion marker appears in the
// output, the iteration cap is hit, or the run is cancelled.
package loop

import (
	"time"

	"ralphloop/internal/jsonutil"
)

// State is the controller's lifecycle state. A run starts in StateRunning
// and ends in exactly one of the three terminal states.
type State int

const (
	// StateRunning means iterations are still in flight.
	StateRunning State = iota
	// StateCompleted means the completion marker was detected.
	StateCompleted
	// StateExhausted means the iteration cap was reached without completion.
	StateExhausted
	// StateCancelled means the run was stopped via context cancellation.
	StateCancelled
)

// String returns a human-readable label for the state.
func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateExhausted:
		return "exhausted"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// ParseState converts a string to a State value.
func ParseState(s string) (State, error) {
	switch s {
	case "running":
		return StateRunning, nil
	case "completed":
		return StateCompleted, nil
	case "exhausted":
		return StateExhausted, nil
	case "cancelled":
		return StateCancelled, nil
	default:
		return 0, jsonutil.ParseEnumError("loop state", s)
	}
}

// MarshalJSON implements json.Marshaler.
func (s State) MarshalJSON() ([]byte, error) {
	return jsonutil.MarshalEnumJSON(s)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *State) UnmarshalJSON(data []byte) error {
	parsed, err := jsonutil.UnmarshalEnumJSON(data, ParseState)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ExitCode returns a distinct process exit code per terminal state.
func (s State) ExitCode() int {
	switch s {
	case StateCompleted:
		return 0
	case StateExhausted:
		return 2
	case StateCancelled:
		return 5
	default:
		return 1
	}
}

// IterationResult summarizes one agent invocation for observers and output.
type IterationResult struct {
	Iteration          int
	SessionID          string
	ExitCode           int
	CompletionDetected bool
	Duration           time.Duration
}

// RunSummary holds aggregate results across all iterations of one run.
type RunSummary struct {
	State         State
	Iterations    int
	FailedExits   int // iterations whose subprocess exited nonzero
	LastSessionID string
	Duration      time.Duration
}
