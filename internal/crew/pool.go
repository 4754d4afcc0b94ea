package crew

import (
	"context"

	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/comms"
	"github.com/nidhogg/crewkit/internal/decompose"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/route"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
)

// Pool is one tenant's assembled crew: the workers plus the pipeline
// components wired to them. Built once per tenant by the factory and
// reused across requests.
type Pool struct {
	TenantID string

	Workers    *worker.Registry
	Matrix     *capability.Matrix
	Assessor   *complexity.Assessor
	Router     *route.Router
	Decomposer *decompose.Decomposer
	Engine     *execute.Engine
	Protocol   *comms.Protocol

	// CloseFn releases pool-owned resources on teardown. Optional.
	CloseFn func() error
}

// Close releases pool resources.
func (p *Pool) Close() error {
	if p.CloseFn != nil {
		return p.CloseFn()
	}
	return nil
}

// Factory constructs a tenant's pool. Construction may do I/O; a
// failure marks the tenant Error and propagates to the caller.
type Factory func(ctx context.Context, tenantID string) (*Pool, error)

// Recorder persists pipeline artifacts for auditing. All methods are
// best effort; failures are logged, never propagated.
type Recorder interface {
	SaveDecision(ctx context.Context, tenantID string, d *route.Decision) error
	SaveAssessment(ctx context.Context, tenantID string, a complexity.Assessment) error
	SaveMetrics(ctx context.Context, m Metrics) error
}

// GraphRecorder persists decomposition graphs for lineage queries.
type GraphRecorder interface {
	RecordPlan(ctx context.Context, tenantID, runID string, tasks []*task.Instance) error
}
