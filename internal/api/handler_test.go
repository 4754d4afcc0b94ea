package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/crew"
	"github.com/nidhogg/crewkit/internal/decompose"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/route"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

type fakeWorker struct {
	id   string
	kind worker.Kind
}

func (w fakeWorker) ID() string        { return w.id }
func (w fakeWorker) Kind() worker.Kind { return w.kind }
func (w fakeWorker) Execute(ctx context.Context, t worker.Task) (string, error) {
	return "handled " + t.TemplateName, nil
}

// newTestHandler wires a Handler over an in-memory crew with a scripted
// oracle (no network, no containers).
func newTestHandler(t *testing.T) (*Handler, *httptest.Server) {
	t.Helper()
	logger := zap.NewNop()

	matrix, err := capability.NewMatrix([]capability.Profile{
		{WorkerID: "roster-bot", Capabilities: []capability.WorkerCapability{
			{Kind: capability.KindPlayerManagement, Proficiency: 0.95, Primary: true},
		}},
		{WorkerID: "helper-bot", Capabilities: []capability.WorkerCapability{
			{Kind: capability.KindGeneralAssistance, Proficiency: 0.75},
		}},
	})
	if err != nil {
		t.Fatalf("NewMatrix: %v", err)
	}
	templates, err := task.NewRegistry(task.DefaultTemplates())
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	o := oracle.Func(func(ctx context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "routing analyst") {
			return `{"complexity":3,"intent":"add_player","required_capabilities":["player_management"],"estimated_agent_count":1}`, nil
		}
		return `[{"template":"add_player","parameters":{"name":"John Doe","phone":"555-0100"}}]`, nil
	})

	factory := func(ctx context.Context, tenantID string) (*crew.Pool, error) {
		workers := worker.NewRegistry(logger)
		workers.Register(fakeWorker{id: "roster-bot", kind: worker.KindPlayerManager})
		workers.Register(fakeWorker{id: "helper-bot", kind: worker.KindGeneralist})
		return &crew.Pool{
			TenantID:   tenantID,
			Workers:    workers,
			Matrix:     matrix,
			Assessor:   complexity.NewAssessor(templates.Names(), 10, logger),
			Router:     route.NewRouter(o, matrix, "helper-bot", 10, logger),
			Decomposer: decompose.NewDecomposer(o, templates, workers, logger),
			Engine:     execute.NewEngine(workers, execute.PolicySkip, 4, logger),
		}, nil
	}

	manager := crew.NewManager(factory, crew.Options{}, logger)
	t.Cleanup(func() { manager.Shutdown(context.Background()) })

	h := NewHandler(manager, matrix, templates, logger)
	ts := httptest.NewServer(h.Router())
	t.Cleanup(ts.Close)
	return h, ts
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthEndpoint(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body map[string]any
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Errorf("unexpected health body: %v", body)
	}
}

func TestCapabilityEndpoints(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/capabilities")
	var profiles []workerProfile
	decodeJSON(t, resp, &profiles)
	if len(profiles) != 2 {
		t.Fatalf("expected 2 profiles, got %d", len(profiles))
	}

	resp = getJSON(t, ts, "/api/capabilities/roster-bot")
	var profile workerProfile
	decodeJSON(t, resp, &profile)
	if len(profile.Primary) != 1 || profile.Primary[0].Kind != capability.KindPlayerManagement {
		t.Errorf("unexpected profile %+v", profile)
	}

	resp = getJSON(t, ts, "/api/capabilities/ghost-bot")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for unknown worker, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestTemplatesEndpoint(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/templates")
	var templates []task.Template
	decodeJSON(t, resp, &templates)
	if len(templates) == 0 {
		t.Fatal("expected templates")
	}
}

func TestExecuteEndpoint(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/tenants/T1/execute", executeRequest{
		UserID:  "u1",
		Message: "Add player John Doe, phone 555-0100",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var body crew.Response
	decodeJSON(t, resp, &body)
	if !strings.HasPrefix(body.Output, "add_player: handled add_player") {
		t.Errorf("unexpected output %q", body.Output)
	}
	if body.TenantID != "T1" || body.RunID == "" {
		t.Errorf("unexpected response envelope %+v", body)
	}

	// The execute call created the tenant, so metrics and stats exist now.
	resp = getJSON(t, ts, "/api/tenants/T1/metrics")
	var metrics crew.Metrics
	decodeJSON(t, resp, &metrics)
	if metrics.TotalRequests != 1 || metrics.SuccessCount != 1 {
		t.Errorf("unexpected metrics %+v", metrics)
	}

	resp = getJSON(t, ts, "/api/tenants/T1/routing/stats")
	var stats route.Stats
	decodeJSON(t, resp, &stats)
	if stats.TotalRequests != 1 {
		t.Errorf("unexpected routing stats %+v", stats)
	}
}

func TestExecuteRejectsEmptyMessage(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := postJSON(t, ts, "/api/tenants/T1/execute", executeRequest{UserID: "u1"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestMetricsUnknownTenant(t *testing.T) {
	_, ts := newTestHandler(t)

	resp := getJSON(t, ts, "/api/tenants/nobody/metrics")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/tenants/nobody/routing/stats")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestAllMetricsEndpoint(t *testing.T) {
	_, ts := newTestHandler(t)

	postJSON(t, ts, "/api/tenants/T1/execute", executeRequest{Message: "Add player John Doe, phone 555-0100"}).Body.Close()
	postJSON(t, ts, "/api/tenants/T2/execute", executeRequest{Message: "Add player Jane Roe, phone 555-0200"}).Body.Close()

	resp := getJSON(t, ts, "/api/metrics")
	var all []crew.Metrics
	decodeJSON(t, resp, &all)
	if len(all) != 2 {
		t.Errorf("expected metrics for both tenants, got %d", len(all))
	}
}
