package supervisor

import (
	"fmt"
	"time"
)

// State is the supervisor's view of the game server process.
//
//	offline -> starting -> online -> stopping -> offline
//
// Any state returns to offline when the process exits or is killed.
type State int32

const (
	StateOffline State = iota
	StateStarting
	StateOnline
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateOffline:
		return "offline"
	case StateStarting:
		return "starting"
	case StateOnline:
		return "online"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	v, err := ParseState(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// ParseState is the inverse of String.
func ParseState(s string) (State, error) {
	switch s {
	case "offline":
		return StateOffline, nil
	case "starting":
		return StateStarting, nil
	case "online":
		return StateOnline, nil
	case "stopping":
		return StateStopping, nil
	}
	return StateOffline, fmt.Errorf("unknown state %q", s)
}

// StopOutcome says how a Stop call ended.
type StopOutcome int

const (
	// StopNotRunning means there was nothing online to stop.
	StopNotRunning StopOutcome = iota
	// StopClean means the process exited within the timeout.
	StopClean
	// StopTimedOut means the stop command was sent but no exit was observed
	// in time. The process may still be shutting down.
	StopTimedOut
)

func (o StopOutcome) String() string {
	switch o {
	case StopClean:
		return "clean"
	case StopTimedOut:
		return "timed_out"
	default:
		return "not_running"
	}
}

func (o StopOutcome) MarshalText() ([]byte, error) { return []byte(o.String()), nil }

func (o *StopOutcome) UnmarshalText(b []byte) error {
	switch string(b) {
	case "clean":
		*o = StopClean
	case "timed_out":
		*o = StopTimedOut
	case "not_running":
		*o = StopNotRunning
	default:
		return fmt.Errorf("unknown stop outcome %q", b)
	}
	return nil
}

// StopResult reports the outcome of Stop.
type StopResult struct {
	Outcome StopOutcome   `json:"outcome"`
	Elapsed time.Duration `json:"elapsed"`
}

// Stopped is true when the process is known to have exited.
func (r StopResult) Stopped() bool { return r.Outcome == StopClean }
