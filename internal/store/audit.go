package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/crew"
	"github.com/nidhogg/crewkit/internal/route"
)

// SaveDecision appends one routing decision to the audit log.
func (s *Store) SaveDecision(ctx context.Context, tenantID string, d *route.Decision) error {
	workers, err := json.Marshal(d.SelectedWorkers)
	if err != nil {
		return err
	}
	capabilities, err := json.Marshal(d.RequiredCapabilities)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO routing_decisions
			(tenant_id, selected_workers, complexity_score, required_capabilities,
			 confidence, estimated_duration_ms, reasoning, intent, decided_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		tenantID, string(workers), d.ComplexityScore, string(capabilities),
		d.Confidence, d.EstimatedDuration.Milliseconds(), d.Reasoning, d.Intent, d.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save decision for %s: %w", tenantID, err)
	}
	return nil
}

// SaveAssessment appends one complexity assessment to the audit log.
func (s *Store) SaveAssessment(ctx context.Context, tenantID string, a complexity.Assessment) error {
	factors, err := json.Marshal(a.FactorScores)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO complexity_assessments
			(tenant_id, level, score, factor_scores, reasoning, strategy,
			 estimated_duration_ms, assessed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		tenantID, string(a.Level), a.Score, string(factors), a.Reasoning,
		string(a.Strategy), a.EstimatedDuration.Milliseconds(), a.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("save assessment for %s: %w", tenantID, err)
	}
	return nil
}

// SaveMetrics snapshots a tenant's crew metrics.
func (s *Store) SaveMetrics(ctx context.Context, m crew.Metrics) error {
	health, err := json.Marshal(m.WorkerHealth)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `
		INSERT INTO crew_metrics
			(tenant_id, status, total_requests, success_count, failure_count,
			 avg_response_time_ms, worker_health, last_activity, snapshot_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		m.TenantID, string(m.Status), m.TotalRequests, m.SuccessCount,
		m.FailureCount, m.AvgResponseTimeMs, string(health), m.LastActivity, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("save metrics for %s: %w", m.TenantID, err)
	}
	return nil
}

// DecisionCount returns the number of audited decisions for a tenant.
func (s *Store) DecisionCount(ctx context.Context, tenantID string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM routing_decisions WHERE tenant_id = $1`, tenantID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count decisions for %s: %w", tenantID, err)
	}
	return n, nil
}

// RecentDecisions returns the latest audited decisions for a tenant.
func (s *Store) RecentDecisions(ctx context.Context, tenantID string, limit int) ([]*route.Decision, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(ctx, `
		SELECT selected_workers, complexity_score, confidence,
		       estimated_duration_ms, reasoning, intent, decided_at
		FROM routing_decisions
		WHERE tenant_id = $1
		ORDER BY decided_at DESC
		LIMIT $2`, tenantID, limit)
	if err != nil {
		return nil, fmt.Errorf("list decisions for %s: %w", tenantID, err)
	}
	defer rows.Close()

	var out []*route.Decision
	for rows.Next() {
		var (
			d          route.Decision
			workers    string
			durationMs int64
		)
		if err := rows.Scan(&workers, &d.ComplexityScore, &d.Confidence,
			&durationMs, &d.Reasoning, &d.Intent, &d.Timestamp); err != nil {
			return nil, fmt.Errorf("scan decision: %w", err)
		}
		if err := json.Unmarshal([]byte(workers), &d.SelectedWorkers); err != nil {
			return nil, fmt.Errorf("decode workers: %w", err)
		}
		d.EstimatedDuration = time.Duration(durationMs) * time.Millisecond
		out = append(out, &d)
	}
	return out, rows.Err()
}
