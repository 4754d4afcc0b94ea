package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nidhogg/crewkit/internal/api"
	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/comms"
	"github.com/nidhogg/crewkit/internal/complexity"
	"github.com/nidhogg/crewkit/internal/config"
	"github.com/nidhogg/crewkit/internal/crew"
	"github.com/nidhogg/crewkit/internal/decompose"
	"github.com/nidhogg/crewkit/internal/execute"
	"github.com/nidhogg/crewkit/internal/graph"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/route"
	pgstore "github.com/nidhogg/crewkit/internal/store"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

// fleetSpec describes the built-in crew: one worker per kind with a
// role persona and its capability profile.
type fleetSpec struct {
	id      string
	kind    worker.Kind
	persona string
	caps    []capability.WorkerCapability
}

var fleet = []fleetSpec{
	{
		id: "roster-bot", kind: worker.KindPlayerManager,
		persona: "You manage the club roster: registrations, positions, availability.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindPlayerManagement, Proficiency: 0.95, Primary: true},
			{Kind: capability.KindRosterUpdates, Proficiency: 0.9},
			{Kind: capability.KindPlayerOnboarding, Proficiency: 0.85},
			{Kind: capability.KindAttendanceTracking, Proficiency: 0.8},
		},
	},
	{
		id: "ledger-bot", kind: worker.KindPaymentManager,
		persona: "You keep the club books: membership dues, match fees, refunds.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindPaymentProcessing, Proficiency: 0.92, Primary: true},
			{Kind: capability.KindDuesTracking, Proficiency: 0.88},
			{Kind: capability.KindInvoiceGeneration, Proficiency: 0.8},
			{Kind: capability.KindRefundHandling, Proficiency: 0.78},
			{Kind: capability.KindBudgetPlanning, Proficiency: 0.75},
		},
	},
	{
		id: "fixture-bot", kind: worker.KindMatchCoordinator,
		persona: "You coordinate fixtures: scheduling, venues, referees, lineups.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindMatchScheduling, Proficiency: 0.9, Primary: true},
			{Kind: capability.KindVenueBooking, Proficiency: 0.85},
			{Kind: capability.KindRefereeAssignment, Proficiency: 0.8},
			{Kind: capability.KindTournamentPlanning, Proficiency: 0.75},
		},
	},
	{
		id: "comms-bot", kind: worker.KindCommsOfficer,
		persona: "You handle club communications: announcements, reminders, replies.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindTeamCommunication, Proficiency: 0.93, Primary: true},
			{Kind: capability.KindAnnouncementDrafting, Proficiency: 0.88},
			{Kind: capability.KindReminderDispatch, Proficiency: 0.85},
		},
	},
	{
		id: "stats-bot", kind: worker.KindAnalyst,
		persona: "You analyze club data: attendance, performance, finances.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindDataAnalysis, Proficiency: 0.9, Primary: true},
			{Kind: capability.KindStatisticsCompilation, Proficiency: 0.88},
			{Kind: capability.KindPerformanceReporting, Proficiency: 0.85},
		},
	},
	{
		id: "desk-bot", kind: worker.KindSupportAgent,
		persona: "You answer member questions: rules, documents, logistics.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindMemberSupport, Proficiency: 0.88, Primary: true},
			{Kind: capability.KindRuleInterpretation, Proficiency: 0.8},
			{Kind: capability.KindDocumentManagement, Proficiency: 0.75},
		},
	},
	{
		id: "helper-bot", kind: worker.KindGeneralist,
		persona: "You are the club's general assistant for anything without a specialist.",
		caps: []capability.WorkerCapability{
			{Kind: capability.KindGeneralAssistance, Proficiency: 0.75, Primary: true},
			{Kind: capability.KindTaskCoordination, Proficiency: 0.7},
		},
	},
}

func main() {
	_ = godotenv.Load()

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	logger.Info("Starting crewd...")

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/crewd.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}
	logger.Info("Config loaded", zap.String("path", cfgPath))

	// Reasoning oracle: first configured endpoint is primary, the rest
	// form the failover chain.
	if len(cfg.Oracles) == 0 {
		logger.Fatal("no oracles configured")
	}
	clients := make([]oracle.Oracle, 0, len(cfg.Oracles))
	for _, oc := range cfg.Oracles {
		clients = append(clients, oracle.NewClient(oracle.ClientConfig{
			ID:        oc.ID,
			Endpoint:  oc.Endpoint,
			APIKey:    oc.APIKey,
			Model:     oc.Model,
			MaxTokens: oc.MaxTokens,
			Timeout:   time.Duration(oc.TimeoutS) * time.Second,
		}, logger))
	}
	reasoner := oracle.NewRouter(clients[0], clients[1:], logger)

	// Capability matrix for the built-in fleet.
	profiles := make([]capability.Profile, len(fleet))
	for i, spec := range fleet {
		profiles[i] = capability.Profile{WorkerID: spec.id, Capabilities: spec.caps}
	}
	matrix, err := capability.NewMatrix(profiles)
	if err != nil {
		logger.Fatal("invalid capability matrix", zap.Error(err))
	}

	templates, err := task.NewRegistry(task.DefaultTemplates())
	if err != nil {
		logger.Fatal("invalid task templates", zap.Error(err))
	}

	// Optional PostgreSQL audit store.
	var store *pgstore.Store
	if cfg.Database.Postgres.DSN != "" {
		ps, pgErr := pgstore.New(cfg.Database.Postgres.DSN, logger)
		if pgErr != nil {
			logger.Warn("PostgreSQL unavailable, running without audit log", zap.Error(pgErr))
		} else {
			dir := cfg.Database.Postgres.MigrationsDir
			if dir == "" {
				dir = "migrations"
			}
			if mErr := ps.Migrate(context.Background(), dir); mErr != nil {
				logger.Fatal("migration failed", zap.Error(mErr))
			}
			store = ps
		}
	}

	// Optional Redis protocol-event bus.
	var bus *comms.RedisBus
	if cfg.Database.Redis.URL != "" {
		b, busErr := comms.NewRedisBus(cfg.Database.Redis.URL, logger)
		if busErr != nil {
			logger.Warn("Redis unavailable, protocol events disabled", zap.Error(busErr))
		} else {
			bus = b
		}
	}

	// Optional Neo4j plan recorder.
	var plans *graph.Recorder
	if cfg.Database.Neo4j.URI != "" {
		g, gErr := graph.NewRecorder(cfg.Database.Neo4j.URI, cfg.Database.Neo4j.User, cfg.Database.Neo4j.Password, logger)
		if gErr != nil || g.Ping(context.Background()) != nil {
			logger.Warn("Neo4j unavailable, plan lineage disabled", zap.Error(gErr))
		} else {
			plans = g
		}
	}

	policy := execute.PolicySkip
	if cfg.Crew.BestEffort {
		policy = execute.PolicyBestEffort
	}

	factory := func(ctx context.Context, tenantID string) (*crew.Pool, error) {
		workers := worker.NewRegistry(logger)
		for _, spec := range fleet {
			workers.Register(worker.NewOracleWorker(spec.id, spec.kind, spec.persona, reasoner, logger))
		}
		var publisher comms.Publisher
		if bus != nil {
			publisher = bus
		}
		return &crew.Pool{
			TenantID:   tenantID,
			Workers:    workers,
			Matrix:     matrix,
			Assessor:   complexity.NewAssessor(templates.Names(), cfg.Crew.HistorySize, logger),
			Router:     route.NewRouter(reasoner, matrix, cfg.Crew.DefaultWorker, cfg.Crew.HistorySize, logger),
			Decomposer: decompose.NewDecomposer(reasoner, templates, workers, logger),
			Engine:     execute.NewEngine(workers, policy, cfg.Crew.PoolSize, logger),
			Protocol: comms.NewProtocol(workers, reasoner, nil, publisher, tenantID,
				cfg.Crew.NegotiationRounds, logger),
		}, nil
	}

	opts := crew.Options{
		MonitorInterval: cfg.Crew.MonitorInterval(),
		IdleThreshold:   cfg.Crew.IdleThreshold(),
	}
	if store != nil {
		opts.Recorder = store
	}
	if plans != nil {
		opts.Graphs = plans
	}
	manager := crew.NewManager(factory, opts, logger)

	monitorCtx, stopMonitor := context.WithCancel(context.Background())
	manager.StartMonitor(monitorCtx)

	handler := api.NewHandler(manager, matrix, templates, logger)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}

	go func() {
		logger.Info("crewd listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down crewd...")
	stopMonitor()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	srv.Shutdown(ctx)
	if err := manager.Shutdown(ctx); err != nil {
		logger.Warn("crew shutdown incomplete", zap.Error(err))
	}
	if bus != nil {
		bus.Close()
	}
	if store != nil {
		store.Close()
	}
	if plans != nil {
		plans.Close(ctx)
	}
}
