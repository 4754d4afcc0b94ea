// Package graph records decomposition plans in Neo4j so task lineage
// can be queried across runs: which templates a request expanded into
// and which dependencies gated them.
package graph

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/nidhogg/crewkit/internal/task"
	"go.uber.org/zap"
)

// Recorder writes plan graphs to Neo4j.
type Recorder struct {
	driver neo4j.DriverWithContext
	logger *zap.Logger
}

// NewRecorder creates a Neo4j-backed plan recorder.
func NewRecorder(uri, user, password string, logger *zap.Logger) (*Recorder, error) {
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	return &Recorder{driver: driver, logger: logger}, nil
}

// Ping verifies the Neo4j connection.
func (r *Recorder) Ping(ctx context.Context) error {
	return r.driver.VerifyConnectivity(ctx)
}

// Close shuts down the Neo4j driver.
func (r *Recorder) Close(ctx context.Context) error {
	return r.driver.Close(ctx)
}

// RecordPlan writes one run's task nodes and their DEPENDS_ON edges.
func (r *Recorder) RecordPlan(ctx context.Context, tenantID, runID string, tasks []*task.Instance) error {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	for _, t := range tasks {
		_, err := session.Run(ctx,
			`MERGE (run:Run {id: $runId})
			ON CREATE SET run.tenant_id = $tenantId, run.created_at = datetime()
			CREATE (t:Task {
				id: $id, run_id: $runId, tenant_id: $tenantId,
				template: $template, worker_id: $workerId,
				priority: $priority, created_at: datetime()
			})
			CREATE (run)-[:CONTAINS]->(t)`,
			map[string]interface{}{
				"runId":    runID,
				"tenantId": tenantID,
				"id":       t.ID,
				"template": t.TemplateName,
				"workerId": t.WorkerID,
				"priority": t.Priority,
			})
		if err != nil {
			return fmt.Errorf("record task %s: %w", t.TemplateName, err)
		}
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			_, err := session.Run(ctx,
				`MATCH (a:Task {run_id: $runId, template: $from})
				MATCH (b:Task {run_id: $runId, template: $to})
				CREATE (a)-[:DEPENDS_ON]->(b)`,
				map[string]interface{}{
					"runId": runID,
					"from":  t.TemplateName,
					"to":    dep,
				})
			if err != nil {
				return fmt.Errorf("record dependency %s→%s: %w", t.TemplateName, dep, err)
			}
		}
	}

	r.logger.Debug("plan recorded",
		zap.String("run", runID),
		zap.Int("tasks", len(tasks)))
	return nil
}

// RunTasks returns the template names recorded for a run, with their
// dependency counts.
func (r *Recorder) RunTasks(ctx context.Context, runID string) (map[string]int, error) {
	session := r.driver.NewSession(ctx, neo4j.SessionConfig{})
	defer session.Close(ctx)

	result, err := session.Run(ctx,
		`MATCH (t:Task {run_id: $runId})
		OPTIONAL MATCH (t)-[d:DEPENDS_ON]->()
		RETURN t.template AS template, count(d) AS deps`,
		map[string]interface{}{"runId": runID})
	if err != nil {
		return nil, fmt.Errorf("query run %s: %w", runID, err)
	}

	out := make(map[string]int)
	for result.Next(ctx) {
		rec := result.Record()
		template, _ := rec.Get("template")
		deps, _ := rec.Get("deps")
		name, ok := template.(string)
		if !ok {
			continue
		}
		n, _ := deps.(int64)
		out[name] = int(n)
	}
	return out, result.Err()
}
