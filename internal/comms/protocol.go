// Package comms implements the inter-worker cooperation protocol:
// delegation of single tasks, concurrent collaboration with synthesis,
// and multi-round negotiation with pluggable consensus checking. Every
// protocol interaction is published to the tenant's event stream.
package comms

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

// EmptySynthesisMarker is returned by Collaborate when no worker
// produced a usable contribution.
const EmptySynthesisMarker = "[NO CONTRIBUTIONS]"

// Protocol coordinates cooperation between the workers of one tenant.
type Protocol struct {
	workers   *worker.Registry
	oracle    oracle.Oracle
	evaluator ConsensusEvaluator
	bus       Publisher
	tenant    string
	maxRounds int
	logger    *zap.Logger
}

// NewProtocol wires a protocol for one tenant. evaluator defaults to
// SolutionPrefixEvaluator, bus to a no-op publisher, maxRounds to 3.
func NewProtocol(workers *worker.Registry, o oracle.Oracle, evaluator ConsensusEvaluator, bus Publisher, tenant string, maxRounds int, logger *zap.Logger) *Protocol {
	if evaluator == nil {
		evaluator = SolutionPrefixEvaluator{}
	}
	if bus == nil {
		bus = NopPublisher{}
	}
	if maxRounds <= 0 {
		maxRounds = 3
	}
	return &Protocol{
		workers:   workers,
		oracle:    o,
		evaluator: evaluator,
		bus:       bus,
		tenant:    tenant,
		maxRounds: maxRounds,
		logger:    logger,
	}
}

// DelegationRecord captures one worker handing a task to another.
type DelegationRecord struct {
	ID         string        `json:"id"`
	FromWorker string        `json:"from_worker"`
	ToWorker   string        `json:"to_worker"`
	TaskID     string        `json:"task_id"`
	Duration   time.Duration `json:"duration"`
	Success    bool          `json:"success"`
	Result     string        `json:"result,omitempty"`
	Error      string        `json:"error,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// Delegate runs the task on toWorker on fromWorker's behalf. The record
// is returned alongside the error so failed delegations still leave an
// audit trail.
func (p *Protocol) Delegate(ctx context.Context, fromWorker, toWorker string, t worker.Task) (*DelegationRecord, error) {
	rec := &DelegationRecord{
		ID:         uuid.New().String(),
		FromWorker: fromWorker,
		ToWorker:   toWorker,
		TaskID:     t.ID,
		Timestamp:  time.Now(),
	}

	start := time.Now()
	result, err := p.workers.Execute(ctx, toWorker, t)
	rec.Duration = time.Since(start)
	if err != nil {
		rec.Error = err.Error()
		p.logger.Warn("delegation failed",
			zap.String("from", fromWorker), zap.String("to", toWorker), zap.Error(err))
	} else {
		rec.Success = true
		rec.Result = result
	}

	p.publish(ctx, "delegation", map[string]any{
		"id": rec.ID, "from": fromWorker, "to": toWorker,
		"task_id": t.ID, "success": rec.Success, "duration_ms": rec.Duration.Milliseconds(),
	})
	return rec, err
}

// Contribution is one worker's independent answer in a collaboration.
type Contribution struct {
	WorkerID string        `json:"worker_id"`
	Content  string        `json:"content,omitempty"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// CollaborationResult merges the contributions of a worker set.
type CollaborationResult struct {
	ID            string         `json:"id"`
	Topic         string         `json:"topic"`
	Contributions []Contribution `json:"contributions"`
	Synthesis     string         `json:"synthesis"`
	Succeeded     int            `json:"succeeded"`
	Timestamp     time.Time      `json:"timestamp"`
}

// Collaborate fans the topic out to every worker concurrently and
// synthesizes the successful contributions with one oracle call. A
// failed contribution is recorded per worker and never aborts the
// synthesis; with zero successes the synthesis is the empty marker.
func (p *Protocol) Collaborate(ctx context.Context, workerIDs []string, topic string) (*CollaborationResult, error) {
	res := &CollaborationResult{
		ID:            uuid.New().String(),
		Topic:         topic,
		Contributions: make([]Contribution, len(workerIDs)),
		Timestamp:     time.Now(),
	}

	var wg sync.WaitGroup
	for i, id := range workerIDs {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			start := time.Now()
			content, err := p.workers.Execute(ctx, id, worker.Task{
				ID:           uuid.New().String(),
				TemplateName: "collaboration",
				Description:  fmt.Sprintf("Contribute your perspective on: %s", topic),
			})
			c := Contribution{WorkerID: id, Duration: time.Since(start)}
			if err != nil {
				c.Error = err.Error()
			} else {
				c.Content = content
			}
			res.Contributions[i] = c
		}(i, id)
	}
	wg.Wait()

	var successful []Contribution
	for _, c := range res.Contributions {
		if c.Error == "" {
			successful = append(successful, c)
		}
	}
	res.Succeeded = len(successful)

	if len(successful) == 0 {
		res.Synthesis = EmptySynthesisMarker
	} else {
		res.Synthesis = p.synthesize(ctx, topic, successful)
	}

	p.publish(ctx, "collaboration", map[string]any{
		"id": res.ID, "topic": topic,
		"workers": len(workerIDs), "succeeded": res.Succeeded,
	})
	return res, nil
}

// synthesize merges contributions with one oracle call, degrading to
// plain concatenation when the oracle is unavailable.
func (p *Protocol) synthesize(ctx context.Context, topic string, contributions []Contribution) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Synthesize these contributions on %q into one coherent answer:\n\n", topic)
	for _, c := range contributions {
		fmt.Fprintf(&sb, "[%s]\n%s\n\n", c.WorkerID, c.Content)
	}

	merged, err := p.oracle.Invoke(ctx, sb.String())
	if err != nil {
		p.logger.Warn("synthesis oracle failed, concatenating contributions", zap.Error(err))
		parts := make([]string, len(contributions))
		for i, c := range contributions {
			parts[i] = fmt.Sprintf("%s: %s", c.WorkerID, c.Content)
		}
		return strings.Join(parts, "\n")
	}
	return merged
}

func (p *Protocol) publish(ctx context.Context, eventType string, payload map[string]any) {
	if err := p.bus.Publish(ctx, Event{
		Type:      eventType,
		TenantID:  p.tenant,
		Timestamp: time.Now(),
		Payload:   payload,
	}); err != nil {
		p.logger.Warn("event publish failed", zap.String("type", eventType), zap.Error(err))
	}
}
