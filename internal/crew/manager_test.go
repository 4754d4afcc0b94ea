package crew

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/decompose"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/route"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

type echoWorker struct {
	id   string
	kind worker.Kind
}

func (w echoWorker) ID() string        { return w.id }
func (w echoWorker) Kind() worker.Kind { return w.kind }
func (w echoWorker) Execute(ctx context.Context, t worker.Task) (string, error) {
	return "handled " + t.TemplateName, nil
}

// pipelineOracle answers the routing and planning prompts with canned
// JSON so the pipeline runs deterministically offline.
func pipelineOracle() oracle.Oracle {
	return oracle.Func(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "routing analyst") {
			return `{"complexity":3,"intent":"add_player",
				"required_capabilities":["player_management"],"estimated_agent_count":1}`, nil
		}
		if strings.Contains(prompt, "task planner") {
			return `[{"template":"add_player","parameters":{"name":"John Doe","phone":"555-0100"}}]`, nil
		}
		return "ok", nil
	})
}

func testFactory(t *testing.T, calls *atomic.Int64, closes *atomic.Int64) Factory {
	t.Helper()
	return func(ctx context.Context, tenantID string) (*Pool, error) {
		calls.Add(1)
		logger := zap.NewNop()
		o := pipelineOracle()

		workers := worker.NewRegistry(logger)
		workers.Register(echoWorker{id: "roster-bot", kind: worker.KindPlayerManager})
		workers.Register(echoWorker{id: "helper-bot", kind: worker.KindGeneralist})

		matrix, err := capability.NewMatrix([]capability.Profile{
			{WorkerID: "roster-bot", Capabilities: []capability.WorkerCapability{
				{Kind: capability.KindPlayerManagement, Proficiency: 0.95, Primary: true},
			}},
			{WorkerID: "helper-bot", Capabilities: []capability.WorkerCapability{
				{Kind: capability.KindGeneralAssistance, Proficiency: 0.75},
			}},
		})
		if err != nil {
			return nil, err
		}
		templates, err := task.NewRegistry(task.DefaultTemplates())
		if err != nil {
			return nil, err
		}

		return &Pool{
			TenantID:   tenantID,
			Workers:    workers,
			Matrix:     matrix,
			Assessor:   complexity.NewAssessor(templates.Names(), 10, logger),
			Router:     route.NewRouter(o, matrix, "helper-bot", 10, logger),
			Decomposer: decompose.NewDecomposer(o, templates, workers, logger),
			Engine:     execute.NewEngine(workers, execute.PolicySkip, 4, logger),
			CloseFn:    func() error { closes.Add(1); return nil },
		}, nil
	}
}

func newTestManager(t *testing.T, opts Options) (*Manager, *atomic.Int64, *atomic.Int64) {
	t.Helper()
	var calls, closes atomic.Int64
	m := NewManager(testFactory(t, &calls, &closes), opts, zap.NewNop())
	return m, &calls, &closes
}

func TestGetOrCreateIsIdempotentWhileActive(t *testing.T) {
	m, calls, _ := newTestManager(t, Options{})

	p1, err := m.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	p2, err := m.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if p1 != p2 {
		t.Error("second call must return the same pool handle")
	}
	if calls.Load() != 1 {
		t.Errorf("factory should run once, ran %d times", calls.Load())
	}

	if status, ok := m.Peek("T1"); !ok || status != StatusActive {
		t.Errorf("expected active, got %q %v", status, ok)
	}
}

func TestTenantsGetSeparatePools(t *testing.T) {
	m, calls, _ := newTestManager(t, Options{})

	p1, _ := m.GetOrCreate(context.Background(), "T1")
	p2, _ := m.GetOrCreate(context.Background(), "T2")
	if p1 == p2 {
		t.Error("tenants must not share a pool")
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 constructions, got %d", calls.Load())
	}
}

func TestConstructionFailureSetsErrorAndRetries(t *testing.T) {
	var attempts atomic.Int64
	factory := func(ctx context.Context, tenantID string) (*Pool, error) {
		if attempts.Add(1) == 1 {
			return nil, fmt.Errorf("database unreachable")
		}
		var calls, closes atomic.Int64
		return testFactory(t, &calls, &closes)(ctx, tenantID)
	}
	m := NewManager(factory, Options{}, zap.NewNop())

	_, err := m.GetOrCreate(context.Background(), "T1")
	if !errors.Is(err, ErrPoolConstruction) {
		t.Fatalf("expected ErrPoolConstruction, got %v", err)
	}
	if status, _ := m.Peek("T1"); status != StatusError {
		t.Errorf("expected error status, got %q", status)
	}

	// The broken pool is rebuilt on the next access.
	if _, err := m.GetOrCreate(context.Background(), "T1"); err != nil {
		t.Fatalf("retry should succeed: %v", err)
	}
	if status, _ := m.Peek("T1"); status != StatusActive {
		t.Errorf("expected active after rebuild, got %q", status)
	}
}

func TestIdleCrewIsReactivatedNotRebuilt(t *testing.T) {
	m, calls, _ := newTestManager(t, Options{IdleThreshold: time.Nanosecond})

	p1, err := m.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	time.Sleep(time.Millisecond)
	m.monitorPass()
	if status, _ := m.Peek("T1"); status != StatusIdle {
		t.Fatalf("expected idle after monitor pass, got %q", status)
	}

	p2, err := m.GetOrCreate(context.Background(), "T1")
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if p1 != p2 {
		t.Error("reactivation must keep the pool")
	}
	if calls.Load() != 1 {
		t.Errorf("reactivation must not rebuild, factory ran %d times", calls.Load())
	}
	if status, _ := m.Peek("T1"); status != StatusActive {
		t.Errorf("expected active again, got %q", status)
	}
}

func TestExecuteTaskRunsPipelineAndUpdatesMetrics(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})

	resp, err := m.ExecuteTask(context.Background(), "T1",
		"Add player John Doe, phone 555-0100", &request.Context{UserID: "u1", TenantID: "T1"})
	if err != nil {
		t.Fatalf("ExecuteTask: %v", err)
	}
	if resp.Decision == nil || resp.Decision.SelectedWorkers[0] != "roster-bot" {
		t.Errorf("expected roster-bot selected, got %+v", resp.Decision)
	}
	if !strings.HasPrefix(resp.Output, "add_player: handled add_player") {
		t.Errorf("unexpected output %q", resp.Output)
	}
	if resp.Report.Succeeded != 1 {
		t.Errorf("expected one successful task, got %+v", resp.Report)
	}

	metrics, ok := m.GetMetrics("T1")
	if !ok {
		t.Fatal("metrics missing")
	}
	if metrics.TotalRequests != 1 || metrics.SuccessCount != 1 || metrics.FailureCount != 0 {
		t.Errorf("unexpected counters: %+v", metrics)
	}
	if metrics.WorkerHealth["roster-bot"] != "ok" {
		t.Errorf("expected worker health recorded, got %v", metrics.WorkerHealth)
	}
}

func TestShutdownClosesPoolsAndRejectsUse(t *testing.T) {
	m, _, closes := newTestManager(t, Options{})

	if _, err := m.GetOrCreate(context.Background(), "T1"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	if _, err := m.GetOrCreate(context.Background(), "T2"); err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}

	if err := m.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if closes.Load() != 2 {
		t.Errorf("expected both pools closed, got %d", closes.Load())
	}
	if _, err := m.GetOrCreate(context.Background(), "T3"); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown, got %v", err)
	}
	if _, err := m.GetOrCreate(context.Background(), "T1"); !errors.Is(err, ErrShutdown) {
		t.Errorf("expected ErrShutdown for existing tenant, got %v", err)
	}
}

func TestHealthCheckCountsStatuses(t *testing.T) {
	m, _, _ := newTestManager(t, Options{IdleThreshold: time.Nanosecond})

	m.GetOrCreate(context.Background(), "T1")
	m.GetOrCreate(context.Background(), "T2")
	time.Sleep(time.Millisecond)
	m.monitorPass()
	m.GetOrCreate(context.Background(), "T1")

	h := m.HealthCheck()
	if h.Tenants != 2 || h.Active != 1 || h.Idle != 1 {
		t.Errorf("unexpected health %+v", h)
	}
}

func TestStatusTransitions(t *testing.T) {
	valid := [][2]Status{
		{StatusInitializing, StatusActive},
		{StatusInitializing, StatusError},
		{StatusActive, StatusIdle},
		{StatusIdle, StatusActive},
		{StatusActive, StatusError},
		{StatusError, StatusInitializing},
		{StatusIdle, StatusShutdown},
	}
	for _, pair := range valid {
		if err := Transition(pair[0], pair[1]); err != nil {
			t.Errorf("expected %q → %q to be legal: %v", pair[0], pair[1], err)
		}
	}

	invalid := [][2]Status{
		{StatusShutdown, StatusActive},
		{StatusError, StatusActive},
		{StatusIdle, StatusInitializing},
	}
	for _, pair := range invalid {
		if err := Transition(pair[0], pair[1]); err == nil {
			t.Errorf("expected %q → %q to be rejected", pair[0], pair[1])
		}
	}
}

func TestGetOrCreateErrShutdownForExistingEntry(t *testing.T) {
	m, _, _ := newTestManager(t, Options{})
	m.GetOrCreate(context.Background(), "T1")
	m.Shutdown(context.Background())

	if status, _ := m.Peek("T1"); status != StatusShutdown {
		t.Errorf("expected shutdown status, got %q", status)
	}
}
