// Package e2e exercises the whole engine against real backing services
// started as disposable containers.
package e2e

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/testcontainers/testcontainers-go"
	tcneo4j "github.com/testcontainers/testcontainers-go/modules/neo4j"
	tcpg "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"go.uber.org/zap"

	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/comms"
	"github.com/nidhogg/crewkit/internal/crew"
	"github.com/nidhogg/crewkit/internal/decompose"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/route"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
)

// startPostgres starts a PostgreSQL testcontainer, returns DSN.
func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcpg.Run(ctx, "postgres:16-alpine",
		tcpg.WithDatabase("crewkit_test"),
		tcpg.WithUsername("test"),
		tcpg.WithPassword("test"),
		tcpg.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("pg connection string: %v", err)
	}
	return dsn
}

// startRedis starts a Redis testcontainer, returns URL.
func startRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcredis.Run(ctx, "redis:7-alpine")
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start redis: %v", err)
	}

	endpoint, err := container.Endpoint(ctx, "")
	if err != nil {
		t.Fatalf("redis endpoint: %v", err)
	}
	return "redis://" + endpoint
}

// startNeo4j starts a Neo4j testcontainer, returns the bolt URI.
func startNeo4j(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	container, err := tcneo4j.Run(ctx, "neo4j:5-community",
		tcneo4j.WithoutAuthentication(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start neo4j: %v", err)
	}

	uri, err := container.BoltUrl(ctx)
	if err != nil {
		t.Fatalf("neo4j bolt url: %v", err)
	}
	return uri
}

type clubWorker struct {
	id   string
	kind worker.Kind
}

func (w clubWorker) ID() string        { return w.id }
func (w clubWorker) Kind() worker.Kind { return w.kind }
func (w clubWorker) Execute(ctx context.Context, t worker.Task) (string, error) {
	switch t.TemplateName {
	case "add_player":
		return fmt.Sprintf("registered %s", t.Parameters["name"]), nil
	case "notify_team":
		return "announcement sent", nil
	default:
		return "done", nil
	}
}

// clubOracle scripts the routing and planning replies so the pipeline
// is deterministic without a live model.
func clubOracle() oracle.Oracle {
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

// newClubFactory builds the standard test crew, optionally publishing
// protocol events to the given bus.
func newClubFactory(t *testing.T, bus comms.Publisher) crew.Factory {
	t.Helper()
	logger := zap.NewNop()
	o := clubOracle()

	matrix, err := capability.NewMatrix([]capability.Profile{
		{WorkerID: "roster-bot", Capabilities: []capability.WorkerCapability{
			{Kind: capability.KindPlayerManagement, Proficiency: 0.95, Primary: true},
		}},
		{WorkerID: "comms-bot", Capabilities: []capability.WorkerCapability{
			{Kind: capability.KindTeamCommunication, Proficiency: 0.9, Primary: true},
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

	return func(ctx context.Context, tenantID string) (*crew.Pool, error) {
		workers := worker.NewRegistry(logger)
		workers.Register(clubWorker{id: "roster-bot", kind: worker.KindPlayerManager})
		workers.Register(clubWorker{id: "comms-bot", kind: worker.KindCommsOfficer})
		workers.Register(clubWorker{id: "helper-bot", kind: worker.KindGeneralist})
		return &crew.Pool{
			TenantID:   tenantID,
			Workers:    workers,
			Matrix:     matrix,
			Assessor:   complexity.NewAssessor(templates.Names(), 10, logger),
			Router:     route.NewRouter(o, matrix, "helper-bot", 10, logger),
			Decomposer: decompose.NewDecomposer(o, templates, workers, logger),
			Engine:     execute.NewEngine(workers, execute.PolicySkip, 4, logger),
			Protocol:   comms.NewProtocol(workers, o, nil, bus, tenantID, 3, logger),
		}, nil
	}
}
