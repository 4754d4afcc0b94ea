// Package execute runs a dependency graph of task instances with
// bounded concurrency and deterministic, plan-ordered aggregation.
package execute

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/crewkit/internal/task"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

// DependencyPolicy decides what happens to a task whose dependency
// failed.
type DependencyPolicy int

const (
	// PolicySkip cancels a task when any dependency failed. Default.
	PolicySkip DependencyPolicy = iota
	// PolicyBestEffort still runs the task, substituting a
	// "[FAILED: <dep>]" placeholder for the failed dependency's output.
	PolicyBestEffort
)

// Graph-validation errors. Run fails fast with one of these before any
// task starts.
var (
	ErrCycle               = fmt.Errorf("dependency cycle")
	ErrUndefinedDependency = fmt.Errorf("undefined dependency")
	ErrDuplicateTask       = fmt.Errorf("duplicate task name")
)

// Report aggregates one run. Tasks holds the instances in original plan
// order with final statuses; Output is the plan-ordered concatenation
// of "<name>: <result-or-marker>" lines, independent of completion
// order.
type Report struct {
	Tasks     []*task.Instance `json:"tasks"`
	Output    string           `json:"output"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Duration  time.Duration    `json:"duration"`
}

// Engine executes task graphs against the worker registry.
type Engine struct {
	workers *worker.Registry
	policy  DependencyPolicy
	pool    chan struct{} // semaphore bounding concurrent worker executions
	logger  *zap.Logger
}

// NewEngine creates an engine with a bounded worker pool. poolSize <= 0
// uses 10.
func NewEngine(workers *worker.Registry, policy DependencyPolicy, poolSize int, logger *zap.Logger) *Engine {
	if poolSize <= 0 {
		poolSize = 10
	}
	return &Engine{
		workers: workers,
		policy:  policy,
		pool:    make(chan struct{}, poolSize),
		logger:  logger,
	}
}

// node is the per-task scheduling state, guarded by the run mutex.
type node struct {
	inst       *task.Instance
	remaining  int      // dependencies not yet settled
	dependents []string // task names waiting on this one
	failedDeps []string // settled dependencies that did not succeed
	outputs    map[string]string
}

// Run validates the graph, then executes it. Tasks with no pending
// dependencies start immediately; as each task settles, dependents
// whose full dependency set has reported are scheduled, so independent
// branches proceed at their own pace.
func (e *Engine) Run(ctx context.Context, tasks []*task.Instance) (*Report, error) {
	start := time.Now()
	if len(tasks) == 0 {
		return &Report{}, nil
	}

	nodes, order, err := buildGraph(tasks)
	if err != nil {
		return nil, err
	}

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)

	var schedule func(name string)
	settle := func(name string, succeeded bool, output string) {
		mu.Lock()
		n := nodes[name]
		for _, depName := range n.dependents {
			dep := nodes[depName]
			dep.remaining--
			if !succeeded {
				dep.failedDeps = append(dep.failedDeps, name)
			} else {
				dep.outputs[name] = output
			}
			if dep.remaining == 0 {
				schedule(depName)
			}
		}
		mu.Unlock()
	}

	run := func(name string) {
		defer wg.Done()
		n := nodes[name]

		// Skip policy: the dependency set has fully reported by the
		// time a task is scheduled, so the decision is final here.
		if len(n.failedDeps) > 0 && e.policy == PolicySkip {
			n.inst.Error = fmt.Sprintf("skipped: dependency %q failed", n.failedDeps[0])
			_ = n.inst.SetStatus(task.StatusCancelled)
			e.logger.Warn("task skipped",
				zap.String("task", name),
				zap.Strings("failed_dependencies", n.failedDeps))
			settle(name, false, "")
			return
		}

		if ctx.Err() != nil {
			n.inst.Error = ctx.Err().Error()
			_ = n.inst.SetStatus(task.StatusCancelled)
			settle(name, false, "")
			return
		}

		e.pool <- struct{}{}
		defer func() { <-e.pool }()

		depOutputs := make(map[string]string, len(n.inst.DependsOn))
		for dep, out := range n.outputs {
			depOutputs[dep] = out
		}
		for _, dep := range n.failedDeps {
			depOutputs[dep] = fmt.Sprintf("[FAILED: %s]", dep)
		}

		_ = n.inst.SetStatus(task.StatusInProgress)
		e.logger.Debug("executing task",
			zap.String("task", name),
			zap.String("worker", n.inst.WorkerID))

		result, err := e.workers.Execute(ctx, n.inst.WorkerID, worker.Task{
			ID:                n.inst.ID,
			TemplateName:      n.inst.TemplateName,
			Description:       n.inst.Description,
			Parameters:        n.inst.Parameters,
			DependencyOutputs: depOutputs,
		})
		if err != nil {
			n.inst.Error = err.Error()
			_ = n.inst.SetStatus(task.StatusFailed)
			e.logger.Warn("task failed",
				zap.String("task", name), zap.Error(err))
			settle(name, false, "")
			return
		}

		n.inst.Result = result
		_ = n.inst.SetStatus(task.StatusCompleted)
		settle(name, true, result)
	}

	schedule = func(name string) {
		wg.Add(1)
		go run(name)
	}

	mu.Lock()
	for _, name := range order {
		if nodes[name].remaining == 0 {
			schedule(name)
		}
	}
	mu.Unlock()

	wg.Wait()

	return e.report(tasks, start), nil
}

// buildGraph indexes instances by template name, links dependents and
// fails fast on duplicates, undefined references and cycles.
func buildGraph(tasks []*task.Instance) (map[string]*node, []string, error) {
	nodes := make(map[string]*node, len(tasks))
	order := make([]string, 0, len(tasks))
	for _, t := range tasks {
		if _, dup := nodes[t.TemplateName]; dup {
			return nil, nil, fmt.Errorf("%w: %q", ErrDuplicateTask, t.TemplateName)
		}
		nodes[t.TemplateName] = &node{inst: t, outputs: make(map[string]string)}
		order = append(order, t.TemplateName)
	}

	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := nodes[dep]; !ok {
				return nil, nil, fmt.Errorf("%w: task %q depends on %q",
					ErrUndefinedDependency, t.TemplateName, dep)
			}
			nodes[t.TemplateName].remaining++
			nodes[dep].dependents = append(nodes[dep].dependents, t.TemplateName)
		}
	}

	// Kahn's algorithm on a scratch copy; leftover nodes form a cycle.
	indeg := make(map[string]int, len(nodes))
	for name, n := range nodes {
		indeg[name] = n.remaining
	}
	queue := make([]string, 0, len(nodes))
	for _, name := range order {
		if indeg[name] == 0 {
			queue = append(queue, name)
		}
	}
	visited := 0
	for len(queue) > 0 {
		name := queue[0]
		queue = queue[1:]
		visited++
		for _, dep := range nodes[name].dependents {
			indeg[dep]--
			if indeg[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}
	if visited != len(nodes) {
		var cyclic []string
		for _, name := range order {
			if indeg[name] > 0 {
				cyclic = append(cyclic, name)
			}
		}
		return nil, nil, fmt.Errorf("%w involving %s", ErrCycle, strings.Join(cyclic, ", "))
	}

	return nodes, order, nil
}

// report builds the plan-ordered aggregate.
func (e *Engine) report(tasks []*task.Instance, start time.Time) *Report {
	r := &Report{Tasks: tasks, Duration: time.Since(start)}
	var lines []string
	for _, t := range tasks {
		switch t.Status {
		case task.StatusCompleted:
			r.Succeeded++
			lines = append(lines, fmt.Sprintf("%s: %s", t.TemplateName, t.Result))
		case task.StatusCancelled:
			r.Skipped++
			lines = append(lines, fmt.Sprintf("%s: [SKIPPED: %s]", t.TemplateName, t.Error))
		default:
			r.Failed++
			lines = append(lines, fmt.Sprintf("%s: [FAILED: %s]", t.TemplateName, t.Error))
		}
	}
	r.Output = strings.Join(lines, "\n")
	return r
}
