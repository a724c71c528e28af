package subscription

import "time"

// State is the lifecycle state of a subscription.
type State int

const (
	// StateActive means the feed is open and delivering events.
	StateActive State = iota + 1
	// StateRestarting means the feed failed recoverably and will reopen after the retry delay.
	StateRestarting
	// StatePermanentlyFailed means the feed hit an error that reopening would only repeat.
	StatePermanentlyFailed
	// StateClosed means the subscription was closed on request.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateRestarting:
		return "restarting"
	case StatePermanentlyFailed:
		return "permanently_failed"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Terminal reports whether the subscription will never deliver events again.
func (s State) Terminal() bool {
	return s == StatePermanentlyFailed || s == StateClosed
}

// Status is a point-in-time view of one subscription.
type Status struct {
	Collection string    `json:"collection"`
	State      string    `json:"state"`
	Since      time.Time `json:"since"`
	Restarts   int       `json:"restarts"`
	Events     int64     `json:"events"`
	LastError  string    `json:"last_error,omitempty"`
	Resumable  bool      `json:"resumable"`
}
