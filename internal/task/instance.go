package task

import (
	"time"

	"github.com/nidhogg/crewkit/internal/worker"
)

// Instance is a template bound to concrete parameter values, with a
// lifecycle status. WorkerID is filled in by the decomposer when the
// task is assigned.
type Instance struct {
	ID           string            `json:"id"`
	TemplateName string            `json:"template_name"`
	Description  string            `json:"description"`
	WorkerKind   worker.Kind       `json:"worker_kind"`
	WorkerID     string            `json:"worker_id,omitempty"`
	Parameters   map[string]string `json:"parameters"`
	Priority     int               `json:"priority"`
	DependsOn    []string          `json:"depends_on,omitempty"`
	Status       Status            `json:"status"`
	Result       string            `json:"result,omitempty"`
	Error        string            `json:"error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	StartedAt    *time.Time        `json:"started_at,omitempty"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// SetStatus applies a status transition, recording timestamps. Illegal
// transitions are returned as errors and leave the instance unchanged.
func (i *Instance) SetStatus(to Status) error {
	if err := Transition(i.Status, to); err != nil {
		return err
	}
	now := time.Now()
	switch to {
	case StatusInProgress:
		i.StartedAt = &now
	case StatusCompleted, StatusFailed, StatusCancelled:
		i.CompletedAt = &now
	}
	i.Status = to
	return nil
}
