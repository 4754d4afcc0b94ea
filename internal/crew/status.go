// Package crew manages the per-tenant worker pools: creation, request
// execution with metrics bookkeeping, idle detection and teardown.
package crew

import "fmt"

// Status is the lifecycle state of one tenant's pool.
type Status string

const (
	StatusInitializing Status = "initializing"
	StatusActive       Status = "active"
	StatusIdle         Status = "idle"
	StatusError        Status = "error"
	StatusShutdown     Status = "shutdown"
)

// validTransitions defines the allowed status moves. Shutdown is
// terminal; Error allows re-initialization so a broken pool can be
// rebuilt.
var validTransitions = map[Status][]Status{
	StatusInitializing: {StatusActive, StatusError, StatusShutdown},
	StatusActive:       {StatusIdle, StatusError, StatusShutdown},
	StatusIdle:         {StatusActive, StatusError, StatusShutdown},
	StatusError:        {StatusInitializing, StatusShutdown},
}

// Transition returns nil if from→to is a legal move.
func Transition(from, to Status) error {
	allowed, ok := validTransitions[from]
	if !ok {
		return fmt.Errorf("no transitions from %q", from)
	}
	for _, s := range allowed {
		if s == to {
			return nil
		}
	}
	return fmt.Errorf("invalid transition %q → %q", from, to)
}
