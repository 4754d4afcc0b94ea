// Package api exposes the orchestration engine over HTTP: request
// execution, capability and template views, and pull-based metrics.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/crew"
	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/task"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	manager   *crew.Manager
	matrix    *capability.Matrix
	templates *task.Registry
	logger    *zap.Logger
}

// NewHandler creates a new API handler.
func NewHandler(manager *crew.Manager, matrix *capability.Matrix, templates *task.Registry, logger *zap.Logger) *Handler {
	return &Handler{
		manager:   manager,
		matrix:    matrix,
		templates: templates,
		logger:    logger,
	}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/capabilities", h.listCapabilities)
		r.Get("/capabilities/{worker}", h.workerCapabilities)
		r.Get("/templates", h.listTemplates)
		r.Get("/metrics", h.allMetrics)

		r.Route("/tenants/{tenant}", func(r chi.Router) {
			r.Post("/execute", h.executeTask)
			r.Get("/metrics", h.tenantMetrics)
			r.Get("/routing/stats", h.routingStats)
			r.Get("/routing/history", h.routingHistory)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"crews":  h.manager.HealthCheck(),
	})
}

// workerProfile is the capability view of one worker.
type workerProfile struct {
	WorkerID     string                        `json:"worker_id"`
	Capabilities []capability.WorkerCapability `json:"capabilities"`
	Primary      []capability.WorkerCapability `json:"primary"`
}

func (h *Handler) listCapabilities(w http.ResponseWriter, r *http.Request) {
	var profiles []workerProfile
	for _, id := range h.matrix.Workers() {
		profiles = append(profiles, workerProfile{
			WorkerID:     id,
			Capabilities: h.matrix.Capabilities(id),
			Primary:      h.matrix.PrimaryCapabilities(id),
		})
	}
	writeJSON(w, http.StatusOK, profiles)
}

func (h *Handler) workerCapabilities(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "worker")
	caps := h.matrix.Capabilities(id)
	if len(caps) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown worker"})
		return
	}
	writeJSON(w, http.StatusOK, workerProfile{
		WorkerID:     id,
		Capabilities: caps,
		Primary:      h.matrix.PrimaryCapabilities(id),
	})
}

func (h *Handler) listTemplates(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.templates.Templates())
}

type executeRequest struct {
	UserID  string   `json:"user_id"`
	Message string   `json:"message"`
	History []string `json:"history,omitempty"`
}

func (h *Handler) executeTask(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Message == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "message is required"})
		return
	}

	rc := &request.Context{
		UserID:   req.UserID,
		TenantID: tenant,
		Message:  req.Message,
		History:  req.History,
	}
	resp, err := h.manager.ExecuteTask(r.Context(), tenant, req.Message, rc)
	if err != nil {
		h.logger.Error("execute failed", zap.String("tenant", tenant), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) tenantMetrics(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	metrics, ok := h.manager.GetMetrics(tenant)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (h *Handler) allMetrics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.AllMetrics())
}

func (h *Handler) routingStats(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	pool, ok := h.manager.Pool(tenant)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
		return
	}
	writeJSON(w, http.StatusOK, pool.Router.Stats())
}

func (h *Handler) routingHistory(w http.ResponseWriter, r *http.Request) {
	tenant := chi.URLParam(r, "tenant")
	pool, ok := h.manager.Pool(tenant)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "unknown tenant"})
		return
	}
	writeJSON(w, http.StatusOK, pool.Router.History())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
