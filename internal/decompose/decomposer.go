// Package decompose turns a request into an ordered batch of task
// instances by asking the oracle to plan against the template catalog.
package decompose

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

// fallbackTemplate is the catch-all blueprint used when planning fails.
const fallbackTemplate = "general_request"

// Decomposer plans requests into task batches. Decompose never returns
// an error; any planning failure degrades to a single catch-all task.
type Decomposer struct {
	oracle    oracle.Oracle
	templates *task.Registry
	workers   *worker.Registry
	logger    *zap.Logger
}

// NewDecomposer creates a decomposer over the template catalog and the
// live worker registry.
func NewDecomposer(o oracle.Oracle, templates *task.Registry, workers *worker.Registry, logger *zap.Logger) *Decomposer {
	return &Decomposer{oracle: o, templates: templates, workers: workers, logger: logger}
}

// plannedTask is one entry of the oracle's JSON plan.
type plannedTask struct {
	Template   string            `json:"template"`
	Parameters map[string]string `json:"parameters"`
	DependsOn  []string          `json:"depends_on"`
}

// Decompose plans the message into task instances and assigns each one
// a worker from selectedWorkers by kind. Invalid plan entries are
// dropped individually; a plan with no usable entries collapses to one
// catch-all task on the first selected worker.
func (d *Decomposer) Decompose(ctx context.Context, message string, rc *request.Context, selectedWorkers []string) []*task.Instance {
	planned, err := d.plan(ctx, message, rc)
	if err != nil {
		d.logger.Warn("decomposition failed, falling back to direct execution", zap.Error(err))
		return []*task.Instance{d.fallback(message, selectedWorkers)}
	}

	instances := d.instantiate(planned)
	if len(instances) == 0 {
		d.logger.Warn("plan yielded no usable tasks, falling back to direct execution")
		return []*task.Instance{d.fallback(message, selectedWorkers)}
	}

	d.pruneDependencies(instances)
	for _, inst := range instances {
		inst.WorkerID = d.assignWorker(inst.WorkerKind, selectedWorkers)
	}
	return instances
}

func (d *Decomposer) plan(ctx context.Context, message string, rc *request.Context) ([]plannedTask, error) {
	var sb strings.Builder
	sb.WriteString("You are a task planner for a club management crew. Break the request into tasks.\n\n")
	fmt.Fprintf(&sb, "Request: %s\n", message)
	if rc != nil {
		if recent := rc.RecentHistory(5); len(recent) > 0 {
			fmt.Fprintf(&sb, "Recent context:\n%s\n", strings.Join(recent, "\n"))
		}
	}
	sb.WriteString("\nAvailable templates:\n")
	for _, tpl := range d.templates.Templates() {
		var params []string
		for _, p := range tpl.Parameters {
			if p.Required {
				params = append(params, p.Name+" (required)")
			} else {
				params = append(params, p.Name)
			}
		}
		fmt.Fprintf(&sb, "- %s: %s [%s]\n", tpl.Name, tpl.Description, strings.Join(params, ", "))
	}
	sb.WriteString(`
Reply with a JSON array only, ordered so dependencies come first:
[{"template":"...","parameters":{"...":"..."},"depends_on":["..."]}]`)

	raw, err := d.oracle.Invoke(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	var planned []plannedTask
	if err := json.Unmarshal([]byte(extractJSONArray(raw)), &planned); err != nil {
		return nil, fmt.Errorf("unparsable plan: %w", err)
	}
	return planned, nil
}

// instantiate validates each plan entry against its template, dropping
// unknown templates, duplicate entries and parameter violations one by
// one rather than failing the batch.
func (d *Decomposer) instantiate(planned []plannedTask) []*task.Instance {
	var out []*task.Instance
	seen := make(map[string]bool)
	for _, p := range planned {
		if seen[p.Template] {
			d.logger.Warn("plan repeats template, keeping first entry",
				zap.String("template", p.Template))
			continue
		}
		inst, err := d.templates.Instantiate(p.Template, p.Parameters)
		if err != nil {
			d.logger.Warn("dropping invalid plan entry",
				zap.String("template", p.Template), zap.Error(err))
			continue
		}
		inst.DependsOn = append([]string(nil), p.DependsOn...)
		seen[p.Template] = true
		out = append(out, inst)
	}
	return out
}

// pruneDependencies drops references to tasks outside the batch so the
// engine's validation never fails on a plan we already filtered.
func (d *Decomposer) pruneDependencies(instances []*task.Instance) {
	inBatch := make(map[string]bool, len(instances))
	for _, inst := range instances {
		inBatch[inst.TemplateName] = true
	}
	for _, inst := range instances {
		var kept []string
		for _, dep := range inst.DependsOn {
			if dep == inst.TemplateName {
				continue
			}
			if !inBatch[dep] {
				d.logger.Warn("dropping dependency on task outside the batch",
					zap.String("task", inst.TemplateName), zap.String("dependency", dep))
				continue
			}
			kept = append(kept, dep)
		}
		inst.DependsOn = kept
	}
}

// assignWorker picks the first selected worker of the wanted kind,
// falling back to the first selected worker and then to any registered
// worker of the kind.
func (d *Decomposer) assignWorker(kind worker.Kind, selectedWorkers []string) string {
	for _, id := range selectedWorkers {
		if k, ok := d.workers.KindOf(id); ok && k == kind {
			return id
		}
	}
	if len(selectedWorkers) > 0 {
		return selectedWorkers[0]
	}
	if w, ok := d.workers.FirstOfKind(kind); ok {
		return w.ID()
	}
	return ""
}

// fallback wraps the raw request in a single catch-all instance.
func (d *Decomposer) fallback(message string, selectedWorkers []string) *task.Instance {
	inst, err := d.templates.Instantiate(fallbackTemplate, map[string]string{"request": message})
	if err != nil {
		// No catch-all template registered; build the instance by hand.
		inst = &task.Instance{
			ID:           uuid.New().String(),
			CreatedAt:    time.Now(),
			TemplateName: fallbackTemplate,
			Description:  message,
			WorkerKind:   worker.KindGeneralist,
			Parameters:   map[string]string{"request": message},
			Status:       task.StatusPending,
		}
	}
	inst.Description = message
	inst.WorkerID = d.assignWorker(inst.WorkerKind, selectedWorkers)
	return inst
}

// extractJSONArray trims prose the oracle wrapped around a JSON array.
func extractJSONArray(raw string) string {
	start := strings.Index(raw, "[")
	end := strings.LastIndex(raw, "]")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
