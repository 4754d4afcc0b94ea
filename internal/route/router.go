// Package route selects the worker subset for a request by combining
// oracle analysis with the capability matrix.
package route

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/crewkit/internal/capability"
	"github.com/nidhogg/crewkit/internal/oracle"
	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/ring"
	"go.uber.org/zap"
)

// Decision is the routing outcome. SelectedWorkers is never empty.
type Decision struct {
	SelectedWorkers      []string          `json:"selected_workers"`
	ComplexityScore      int               `json:"complexity_score"` // 1..10
	RequiredCapabilities []capability.Kind `json:"required_capabilities,omitempty"`
	Confidence           float64           `json:"confidence"` // 0..1
	EstimatedDuration    time.Duration     `json:"estimated_duration"`
	Reasoning            string            `json:"reasoning"`
	Intent               string            `json:"intent"`
	Timestamp            time.Time         `json:"timestamp"`
}

// Stats are rolling routing counters.
type Stats struct {
	TotalRequests  int     `json:"total_requests"`
	HighConfidence int     `json:"high_confidence"` // decisions with confidence > 0.7
	SuccessRate    float64 `json:"success_rate"`
	ComplexityLow  int     `json:"complexity_low"`    // 1-3
	ComplexityMed  int     `json:"complexity_medium"` // 4-7
	ComplexityHigh int     `json:"complexity_high"`   // 8-10
}

const (
	proficiencyFloor  = 0.7
	maxSelectedCap    = 4
	baseDurationSec   = 2.0
	perWorkerSec      = 1.5
	perComplexitySec  = 0.5
	recentHistoryUsed = 5
)

// Router routes requests to capability-matched workers. Route never
// returns an error; every internal failure degrades to the default
// worker.
type Router struct {
	oracle        oracle.Oracle
	matrix        *capability.Matrix
	defaultWorker string
	history       *ring.Buffer[Decision]

	stats struct {
		mu sync.Mutex
		s  Stats
	}
	logger *zap.Logger
}

// NewRouter creates a router. defaultWorker is the generalist used
// whenever capability matching yields nothing; historySize bounds the
// retained decisions (<=0 uses 100).
func NewRouter(o oracle.Oracle, matrix *capability.Matrix, defaultWorker string, historySize int, logger *zap.Logger) *Router {
	if historySize <= 0 {
		historySize = 100
	}
	return &Router{
		oracle:        o,
		matrix:        matrix,
		defaultWorker: defaultWorker,
		history:       ring.New[Decision](historySize),
		logger:        logger,
	}
}

// analysis is the shape the oracle is asked to reply with.
type analysis struct {
	Complexity           int      `json:"complexity"`
	Intent               string   `json:"intent"`
	RequiredCapabilities []string `json:"required_capabilities"`
	EstimatedAgentCount  int      `json:"estimated_agent_count"`
	Urgency              string   `json:"urgency"`
}

// Route analyzes the message and returns a ranked worker subset. The
// oracle call is the only suspension point; everything after it is
// synchronous.
func (r *Router) Route(ctx context.Context, message string, rc *request.Context) *Decision {
	a, err := r.analyze(ctx, message, rc)
	if err != nil {
		r.logger.Warn("oracle analysis failed, routing to default worker", zap.Error(err))
		return r.finish(r.fallbackDecision("fallback"))
	}

	if a.Complexity < 1 {
		a.Complexity = 1
	}
	if a.Complexity > 10 {
		a.Complexity = 10
	}

	required := r.parseKinds(a.RequiredCapabilities)
	selected := r.selectWorkers(required)
	if len(selected) == 0 {
		d := r.fallbackDecision("fallback")
		d.ComplexityScore = a.Complexity
		d.Intent = a.Intent
		return r.finish(d)
	}

	maxWorkers := a.EstimatedAgentCount
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if maxWorkers > maxSelectedCap {
		maxWorkers = maxSelectedCap
	}
	if len(selected) > maxWorkers {
		selected = r.rankBySummedProficiency(selected, required)[:maxWorkers]
	}

	durationSec := baseDurationSec + perWorkerSec*float64(len(selected)) +
		perComplexitySec*float64(a.Complexity)

	d := &Decision{
		SelectedWorkers:      selected,
		ComplexityScore:      a.Complexity,
		RequiredCapabilities: required,
		Confidence:           r.confidence(required, selected),
		EstimatedDuration:    time.Duration(durationSec * float64(time.Second)),
		Reasoning: fmt.Sprintf("intent %q requires %d capabilities, matched %d worker(s)",
			a.Intent, len(required), len(selected)),
		Intent:    a.Intent,
		Timestamp: time.Now(),
	}
	return r.finish(d)
}

// History returns retained decisions, oldest first.
func (r *Router) History() []Decision {
	return r.history.Items()
}

// Stats returns a snapshot of the rolling counters.
func (r *Router) Stats() Stats {
	r.stats.mu.Lock()
	defer r.stats.mu.Unlock()
	s := r.stats.s
	if s.TotalRequests > 0 {
		s.SuccessRate = float64(s.HighConfidence) / float64(s.TotalRequests)
	}
	return s
}

func (r *Router) analyze(ctx context.Context, message string, rc *request.Context) (*analysis, error) {
	var sb strings.Builder
	sb.WriteString("You are a routing analyst for a club management crew. Analyze the request.\n\n")
	fmt.Fprintf(&sb, "Request: %s\n", message)
	if recent := rc.RecentHistory(recentHistoryUsed); len(recent) > 0 {
		fmt.Fprintf(&sb, "Recent context:\n%s\n", strings.Join(recent, "\n"))
	}
	fmt.Fprintf(&sb, "\nWorker capabilities:\n%s\n", r.matrix.Summary())
	sb.WriteString(`Reply with JSON only:
{"complexity":1-10,"intent":"...","required_capabilities":["..."],"estimated_agent_count":1-4,"urgency":"low|normal|high"}`)

	raw, err := r.oracle.Invoke(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	a := &analysis{Complexity: 5, Intent: "general", EstimatedAgentCount: 1}
	if err := json.Unmarshal([]byte(extractJSON(raw)), a); err != nil {
		r.logger.Warn("unparsable oracle analysis, using defaults", zap.Error(err))
		return &analysis{Complexity: 5, Intent: "general", EstimatedAgentCount: 1}, nil
	}
	if a.Intent == "" {
		a.Intent = "general"
	}
	if a.EstimatedAgentCount == 0 {
		a.EstimatedAgentCount = 1
	}
	if a.Complexity == 0 {
		a.Complexity = 5
	}
	return a, nil
}

// parseKinds keeps only known capability kinds, preserving order and
// dropping duplicates.
func (r *Router) parseKinds(raw []string) []capability.Kind {
	var out []capability.Kind
	seen := make(map[capability.Kind]bool)
	for _, s := range raw {
		k, ok := capability.ParseKind(strings.ToLower(strings.TrimSpace(s)))
		if !ok {
			r.logger.Warn("oracle named unknown capability", zap.String("capability", s))
			continue
		}
		if !seen[k] {
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

// selectWorkers picks, per required capability, the globally best
// worker at or above the proficiency floor.
func (r *Router) selectWorkers(required []capability.Kind) []string {
	var out []string
	seen := make(map[string]bool)
	for _, kind := range required {
		id, prof := r.matrix.BestWorkerFor(kind)
		if id == "" || prof < proficiencyFloor {
			continue
		}
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

// rankBySummedProficiency orders workers by their proficiency summed
// across the required capabilities, ties keeping earlier selection
// order.
func (r *Router) rankBySummedProficiency(workers []string, required []capability.Kind) []string {
	type ranked struct {
		id  string
		sum float64
		pos int
	}
	rs := make([]ranked, len(workers))
	for i, id := range workers {
		sum := 0.0
		for _, k := range required {
			sum += r.matrix.Proficiency(id, k)
		}
		rs[i] = ranked{id: id, sum: sum, pos: i}
	}
	sort.SliceStable(rs, func(i, j int) bool {
		if rs[i].sum != rs[j].sum {
			return rs[i].sum > rs[j].sum
		}
		return rs[i].pos < rs[j].pos
	})
	out := make([]string, len(rs))
	for i, x := range rs {
		out[i] = x.id
	}
	return out
}

// confidence is the mean, over required capabilities, of the best
// proficiency among the selected workers, discounted by the selection
// size.
func (r *Router) confidence(required []capability.Kind, selected []string) float64 {
	if len(required) == 0 || len(selected) == 0 {
		return 0
	}
	total := 0.0
	for _, k := range required {
		best := 0.0
		for _, id := range selected {
			if p := r.matrix.Proficiency(id, k); p > best {
				best = p
			}
		}
		total += best
	}
	return (total / float64(len(required))) / float64(len(selected))
}

func (r *Router) fallbackDecision(reason string) *Decision {
	return &Decision{
		SelectedWorkers:   []string{r.defaultWorker},
		ComplexityScore:   5,
		Confidence:        0,
		EstimatedDuration: time.Duration((baseDurationSec+perWorkerSec+perComplexitySec*5)*1000) * time.Millisecond,
		Reasoning:         reason,
		Intent:            "general",
		Timestamp:         time.Now(),
	}
}

// finish records the decision in the history and counters.
func (r *Router) finish(d *Decision) *Decision {
	r.history.Append(*d)
	r.stats.mu.Lock()
	r.stats.s.TotalRequests++
	if d.Confidence > 0.7 {
		r.stats.s.HighConfidence++
	}
	switch {
	case d.ComplexityScore <= 3:
		r.stats.s.ComplexityLow++
	case d.ComplexityScore <= 7:
		r.stats.s.ComplexityMed++
	default:
		r.stats.s.ComplexityHigh++
	}
	r.stats.mu.Unlock()
	return d
}

// extractJSON trims any prose the oracle wrapped around a JSON object.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
