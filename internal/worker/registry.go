package worker

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// ErrWorkerNotFound is returned when a worker ID is not registered.
var ErrWorkerNotFound = fmt.Errorf("worker not found")

// Registry maps worker IDs and kinds to live workers.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]Worker
	byKind map[Kind][]string
	order  []string
	logger *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		byID:   make(map[string]Worker),
		byKind: make(map[Kind][]string),
		logger: logger,
	}
}

// Register adds a worker. Re-registering an ID replaces the previous
// worker but keeps its position.
func (r *Registry) Register(w Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := w.ID()
	if _, exists := r.byID[id]; !exists {
		r.order = append(r.order, id)
		r.byKind[w.Kind()] = append(r.byKind[w.Kind()], id)
	}
	r.byID[id] = w
	r.logger.Info("registered worker",
		zap.String("id", id),
		zap.String("kind", string(w.Kind())))
}

// Get returns a worker by ID.
func (r *Registry) Get(id string) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.byID[id]
	return w, ok
}

// KindOf returns the kind of a registered worker.
func (r *Registry) KindOf(id string) (Kind, bool) {
	w, ok := r.Get(id)
	if !ok {
		return "", false
	}
	return w.Kind(), true
}

// FirstOfKind returns the earliest-registered worker of the given kind.
func (r *Registry) FirstOfKind(kind Kind) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := r.byKind[kind]
	if len(ids) == 0 {
		return nil, false
	}
	return r.byID[ids[0]], true
}

// IDs returns all worker IDs in registration order.
func (r *Registry) IDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Execute runs a task on the worker with the given ID.
func (r *Registry) Execute(ctx context.Context, workerID string, t Task) (string, error) {
	w, ok := r.Get(workerID)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrWorkerNotFound, workerID)
	}
	return w.Execute(ctx, t)
}
