package crew

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/route"
	"go.uber.org/zap"
)

// ErrPoolConstruction wraps a pool factory failure.
var ErrPoolConstruction = fmt.Errorf("pool construction failed")

// ErrShutdown is returned once the manager has been shut down.
var ErrShutdown = fmt.Errorf("manager is shut down")

// Metrics is the per-tenant bookkeeping snapshot.
type Metrics struct {
	TenantID          string            `json:"tenant_id"`
	Status            Status            `json:"status"`
	CreatedAt         time.Time         `json:"created_at"`
	LastActivity      time.Time         `json:"last_activity"`
	TotalRequests     int64             `json:"total_requests"`
	SuccessCount      int64             `json:"success_count"`
	FailureCount      int64             `json:"failure_count"`
	AvgResponseTimeMs float64           `json:"avg_response_time_ms"`
	WorkerHealth      map[string]string `json:"worker_health"`
}

// Response is the structured outcome of one executed request.
type Response struct {
	RunID      string                `json:"run_id"`
	TenantID   string                `json:"tenant_id"`
	Assessment complexity.Assessment `json:"assessment"`
	Decision   *route.Decision       `json:"decision"`
	Report     *execute.Report       `json:"report"`
	Output     string                `json:"output"`
	Duration   time.Duration         `json:"duration"`
}

// entry is the manager's per-tenant slot. All entry state is guarded by
// the entry's own mutex so unrelated tenants never contend.
type entry struct {
	mu      sync.Mutex
	pool    *Pool
	status  Status
	metrics Metrics
}

// Options tune the manager. Zero values fall back to the defaults.
type Options struct {
	MonitorInterval time.Duration // default 5m
	IdleThreshold   time.Duration // default 30m
	Recorder        Recorder      // optional audit sink
	Graphs          GraphRecorder // optional lineage sink
}

// Manager owns the tenant → pool map and runs the background health
// monitor.
type Manager struct {
	factory       Factory
	recorder      Recorder
	graphs        GraphRecorder
	interval      time.Duration
	idleThreshold time.Duration
	logger        *zap.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	closed  bool

	cancelMonitor context.CancelFunc
	monitorDone   chan struct{}
}

// NewManager creates a manager over the pool factory.
func NewManager(factory Factory, opts Options, logger *zap.Logger) *Manager {
	if opts.MonitorInterval <= 0 {
		opts.MonitorInterval = 5 * time.Minute
	}
	if opts.IdleThreshold <= 0 {
		opts.IdleThreshold = 30 * time.Minute
	}
	return &Manager{
		factory:       factory,
		recorder:      opts.Recorder,
		graphs:        opts.Graphs,
		interval:      opts.MonitorInterval,
		idleThreshold: opts.IdleThreshold,
		logger:        logger,
		entries:       make(map[string]*entry),
	}
}

// GetOrCreate returns the tenant's pool, constructing it on first use.
// Idempotent while Active; an Idle pool is reactivated in place; an
// Error pool is torn down and rebuilt.
func (m *Manager) GetOrCreate(ctx context.Context, tenantID string) (*Pool, error) {
	e, err := m.entryFor(tenantID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch e.status {
	case StatusActive:
		return e.pool, nil
	case StatusIdle:
		m.setStatus(e, StatusActive)
		m.logger.Info("reactivated idle crew", zap.String("tenant", tenantID))
		return e.pool, nil
	case StatusShutdown:
		return nil, ErrShutdown
	case StatusError:
		if e.pool != nil {
			if err := e.pool.Close(); err != nil {
				m.logger.Warn("teardown of broken pool failed",
					zap.String("tenant", tenantID), zap.Error(err))
			}
			e.pool = nil
		}
		m.setStatus(e, StatusInitializing)
	default:
		e.status = StatusInitializing
	}

	pool, err := m.factory(ctx, tenantID)
	if err != nil {
		m.setStatus(e, StatusError)
		m.logger.Error("crew construction failed",
			zap.String("tenant", tenantID), zap.Error(err))
		return nil, fmt.Errorf("%w for tenant %q: %v", ErrPoolConstruction, tenantID, err)
	}

	e.pool = pool
	now := time.Now()
	e.metrics = Metrics{
		TenantID:     tenantID,
		CreatedAt:    now,
		LastActivity: now,
		WorkerHealth: make(map[string]string),
	}
	for _, id := range pool.Workers.IDs() {
		e.metrics.WorkerHealth[id] = "ok"
	}
	m.setStatus(e, StatusActive)
	m.logger.Info("crew created",
		zap.String("tenant", tenantID),
		zap.Int("workers", len(e.metrics.WorkerHealth)))
	return pool, nil
}

// ExecuteTask runs the full pipeline for one request: assess, route,
// decompose, execute, then update the tenant's metrics and feed the
// optional audit sinks.
func (m *Manager) ExecuteTask(ctx context.Context, tenantID, message string, rc *request.Context) (*Response, error) {
	pool, err := m.GetOrCreate(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if rc == nil {
		rc = &request.Context{TenantID: tenantID}
	}

	start := time.Now()
	runID := uuid.New().String()

	assessment := pool.Assessor.AssessRequest(message, rc)
	decision := pool.Router.Route(ctx, message, rc)
	instances := pool.Decomposer.Decompose(ctx, message, rc, decision.SelectedWorkers)

	if m.graphs != nil {
		if err := m.graphs.RecordPlan(ctx, tenantID, runID, instances); err != nil {
			m.logger.Warn("plan recording failed", zap.String("run", runID), zap.Error(err))
		}
	}

	report, err := pool.Engine.Run(ctx, instances)
	elapsed := time.Since(start)
	success := err == nil && report != nil && report.Failed == 0

	m.recordOutcome(tenantID, elapsed, success)

	if m.recorder != nil {
		if rerr := m.recorder.SaveAssessment(ctx, tenantID, assessment); rerr != nil {
			m.logger.Warn("assessment audit failed", zap.Error(rerr))
		}
		if rerr := m.recorder.SaveDecision(ctx, tenantID, decision); rerr != nil {
			m.logger.Warn("decision audit failed", zap.Error(rerr))
		}
	}

	if err != nil {
		return nil, fmt.Errorf("execute run %s: %w", runID, err)
	}

	return &Response{
		RunID:      runID,
		TenantID:   tenantID,
		Assessment: assessment,
		Decision:   decision,
		Report:     report,
		Output:     report.Output,
		Duration:   elapsed,
	}, nil
}

// Pool returns the tenant's live pool without creating or reactivating
// one. Read-only accessors (stats, histories) use this.
func (m *Manager) Pool(tenantID string) (*Pool, bool) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.pool == nil {
		return nil, false
	}
	return e.pool, true
}

// Peek returns the tenant's status without creating a pool.
func (m *Manager) Peek(tenantID string) (Status, bool) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	m.mu.RUnlock()
	if !ok {
		return "", false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status, true
}

// GetMetrics returns the tenant's metrics snapshot.
func (m *Manager) GetMetrics(tenantID string) (Metrics, bool) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	m.mu.RUnlock()
	if !ok {
		return Metrics{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshot(e), true
}

// AllMetrics returns every tenant's metrics snapshot.
func (m *Manager) AllMetrics() []Metrics {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	out := make([]Metrics, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		out = append(out, snapshot(e))
		e.mu.Unlock()
	}
	return out
}

// Health summarizes pool statuses for the health endpoint.
type Health struct {
	Tenants  int `json:"tenants"`
	Active   int `json:"active"`
	Idle     int `json:"idle"`
	Errored  int `json:"errored"`
	Shutdown int `json:"shutdown"`
}

// HealthCheck counts pools by status.
func (m *Manager) HealthCheck() Health {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.entries))
	for _, e := range m.entries {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	var h Health
	h.Tenants = len(entries)
	for _, e := range entries {
		e.mu.Lock()
		switch e.status {
		case StatusActive:
			h.Active++
		case StatusIdle:
			h.Idle++
		case StatusError:
			h.Errored++
		case StatusShutdown:
			h.Shutdown++
		}
		e.mu.Unlock()
	}
	return h
}

// StartMonitor launches the background health loop. It wakes on the
// configured interval, marks tenants idle past the threshold and logs
// aggregate health. Cancel the context or call Shutdown to stop it.
func (m *Manager) StartMonitor(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	m.cancelMonitor = cancel
	m.monitorDone = make(chan struct{})

	go func() {
		defer close(m.monitorDone)
		ticker := time.NewTicker(m.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.monitorPass()
			}
		}
	}()
}

// monitorPass is one sweep of the health loop.
func (m *Manager) monitorPass() {
	m.mu.RLock()
	entries := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
	}
	m.mu.RUnlock()

	now := time.Now()
	var idled int
	for tenantID, e := range entries {
		e.mu.Lock()
		if e.status == StatusActive && now.Sub(e.metrics.LastActivity) > m.idleThreshold {
			m.setStatus(e, StatusIdle)
			idled++
			m.logger.Info("crew marked idle", zap.String("tenant", tenantID))
		}
		e.mu.Unlock()
	}

	h := m.HealthCheck()
	m.logger.Info("crew health",
		zap.Int("tenants", h.Tenants),
		zap.Int("active", h.Active),
		zap.Int("idle", h.Idle),
		zap.Int("errored", h.Errored),
		zap.Int("newly_idle", idled))
}

// Shutdown stops the monitor and tears down every pool. The manager
// rejects further use.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.cancelMonitor != nil {
		m.cancelMonitor()
		select {
		case <-m.monitorDone:
		case <-ctx.Done():
		}
	}

	m.mu.Lock()
	m.closed = true
	entries := make(map[string]*entry, len(m.entries))
	for id, e := range m.entries {
		entries[id] = e
	}
	m.mu.Unlock()

	var firstErr error
	for tenantID, e := range entries {
		e.mu.Lock()
		if e.status != StatusShutdown {
			m.setStatus(e, StatusShutdown)
			if e.pool != nil {
				if err := e.pool.Close(); err != nil && firstErr == nil {
					firstErr = fmt.Errorf("close pool %q: %w", tenantID, err)
				}
				e.pool = nil
			}
		}
		e.mu.Unlock()
	}
	m.logger.Info("crew manager shut down", zap.Int("tenants", len(entries)))
	return firstErr
}

// entryFor returns the tenant's slot, creating an empty one on first
// sight. Slot creation is the only operation under the global lock.
func (m *Manager) entryFor(tenantID string) (*entry, error) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	closed := m.closed
	m.mu.RUnlock()
	if closed {
		return nil, ErrShutdown
	}
	if ok {
		return e, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrShutdown
	}
	if e, ok = m.entries[tenantID]; ok {
		return e, nil
	}
	e = &entry{}
	m.entries[tenantID] = e
	return e, nil
}

// recordOutcome updates counters and the running latency average under
// the tenant lock.
func (m *Manager) recordOutcome(tenantID string, elapsed time.Duration, success bool) {
	m.mu.RLock()
	e, ok := m.entries[tenantID]
	m.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.metrics.TotalRequests++
	if success {
		e.metrics.SuccessCount++
	} else {
		e.metrics.FailureCount++
	}
	n := float64(e.metrics.TotalRequests)
	e.metrics.AvgResponseTimeMs += (float64(elapsed.Milliseconds()) - e.metrics.AvgResponseTimeMs) / n
	e.metrics.LastActivity = time.Now()
	snap := snapshot(e)
	e.mu.Unlock()

	if m.recorder != nil {
		if err := m.recorder.SaveMetrics(context.Background(), snap); err != nil {
			m.logger.Warn("metrics audit failed", zap.String("tenant", tenantID), zap.Error(err))
		}
	}
}

// setStatus applies a transition, logging the rare illegal move rather
// than failing, since all callers hold the entry lock and drive legal
// paths.
func (m *Manager) setStatus(e *entry, to Status) {
	if e.status != "" {
		if err := Transition(e.status, to); err != nil {
			m.logger.Warn("unexpected status transition", zap.Error(err))
		}
	}
	e.status = to
	e.metrics.Status = to
}

func snapshot(e *entry) Metrics {
	snap := e.metrics
	snap.Status = e.status
	snap.WorkerHealth = make(map[string]string, len(e.metrics.WorkerHealth))
	for k, v := range e.metrics.WorkerHealth {
		snap.WorkerHealth[k] = v
	}
	return snap
}
