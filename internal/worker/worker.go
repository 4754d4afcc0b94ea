// Package worker defines the closed set of worker kinds, the single
// entry point the engine uses to run work on a worker, and the registry
// that maps kinds to live workers.
package worker

import "context"

// Kind classifies a worker by the slice of the domain it owns.
type Kind string

const (
	KindGeneralist       Kind = "generalist"
	KindPlayerManager    Kind = "player_manager"
	KindPaymentManager   Kind = "payment_manager"
	KindMatchCoordinator Kind = "match_coordinator"
	KindCommsOfficer     Kind = "comms_officer"
	KindAnalyst          Kind = "analyst"
	KindSupportAgent     Kind = "support_agent"
)

// Kinds lists every known worker kind.
var Kinds = []Kind{
	KindGeneralist,
	KindPlayerManager,
	KindPaymentManager,
	KindMatchCoordinator,
	KindCommsOfficer,
	KindAnalyst,
	KindSupportAgent,
}

// Valid reports whether k is a known kind.
func (k Kind) Valid() bool {
	for _, known := range Kinds {
		if k == known {
			return true
		}
	}
	return false
}

// Task is the minimal view of a unit of work a worker receives. The
// engine owns the richer task instance; workers only ever see this.
type Task struct {
	ID                string
	TemplateName      string
	Description       string
	Parameters        map[string]string
	DependencyOutputs map[string]string // upstream task name → output
}

// Worker executes a task and returns its textual result. This is the
// only way the engine touches a worker.
type Worker interface {
	ID() string
	Kind() Kind
	Execute(ctx context.Context, t Task) (string, error)
}
