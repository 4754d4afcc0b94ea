// Package complexity scores request complexity along independent
// factors and recommends an execution strategy.
package complexity

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nidhogg/crewkit/internal/request"
	"github.com/nidhogg/crewkit/internal/ring"
	"go.uber.org/zap"
)

// Level is the ordinal complexity classification.
type Level string

const (
	LevelLow      Level = "low"
	LevelMedium   Level = "medium"
	LevelHigh     Level = "high"
	LevelCritical Level = "critical"
)

// Strategy is the recommended way to execute the request.
type Strategy string

const (
	StrategyDirect        Strategy = "direct"
	StrategyDecomposed    Strategy = "decomposed"
	StrategyCollaborative Strategy = "collaborative"
)

// Input collects everything a single assessment considers. All fields
// are plain data; Assess performs no I/O.
type Input struct {
	Message                string
	Intent                 string
	Entities               []string
	Context                *request.Context
	UnresolvedDependencies []string
	RecentScores           []float64 // bounded per-user score history
}

// Assessment is the result of scoring one request.
type Assessment struct {
	Level             Level              `json:"level"`
	Score             float64            `json:"score"` // 0..10
	FactorScores      map[string]float64 `json:"factor_scores"`
	Reasoning         string             `json:"reasoning"`
	EstimatedDuration time.Duration      `json:"estimated_duration"`
	Strategy          Strategy           `json:"strategy"`
	Timestamp         time.Time          `json:"timestamp"`
}

// Factor weights. They sum to 1 so the combined score stays on the
// same 0..10 scale as the factors.
const (
	weightIntent     = 0.30
	weightEntities   = 0.25
	weightContext    = 0.15
	weightDependency = 0.20
	weightVolatility = 0.10
)

// Level thresholds over the combined score.
const (
	thresholdMedium   = 2.0
	thresholdHigh     = 5.0
	thresholdCritical = 7.5
)

const perUserScoreWindow = 10

// Assessor scores requests and keeps a bounded assessment history for
// analytics. Safe for concurrent use.
type Assessor struct {
	knownIntents []string
	history      *ring.Buffer[Assessment]

	mu        sync.Mutex
	userScore map[string]*ring.Buffer[float64]
	logger    *zap.Logger
}

// NewAssessor creates an assessor. knownIntents is the set of intents
// the engine has blueprints for (typically the template names);
// historySize bounds the retained assessment history (<=0 uses 100).
func NewAssessor(knownIntents []string, historySize int, logger *zap.Logger) *Assessor {
	if historySize <= 0 {
		historySize = 100
	}
	return &Assessor{
		knownIntents: append([]string(nil), knownIntents...),
		history:      ring.New[Assessment](historySize),
		userScore:    make(map[string]*ring.Buffer[float64]),
		logger:       logger,
	}
}

// Assess combines the independent factor scores into one assessment and
// appends it to the bounded history. It has no other side effects.
func (a *Assessor) Assess(in Input) Assessment {
	factors := map[string]float64{
		"intent_familiarity": a.intentFamiliarity(in.Intent),
		"entity_ambiguity":   entityAmbiguity(in.Entities),
		"context_depth":      contextDepth(in.Context),
		"dependency_count":   dependencyLoad(in.UnresolvedDependencies),
		"history_volatility": historyVolatility(in.RecentScores),
	}

	score := weightIntent*factors["intent_familiarity"] +
		weightEntities*factors["entity_ambiguity"] +
		weightContext*factors["context_depth"] +
		weightDependency*factors["dependency_count"] +
		weightVolatility*factors["history_volatility"]

	level, strategy := classify(score)

	out := Assessment{
		Level:        level,
		Score:        score,
		FactorScores: factors,
		Reasoning: fmt.Sprintf("intent %.1f, entities %.1f, context %.1f, deps %.1f, volatility %.1f → %.2f",
			factors["intent_familiarity"], factors["entity_ambiguity"],
			factors["context_depth"], factors["dependency_count"],
			factors["history_volatility"], score),
		EstimatedDuration: time.Duration(5+3*score) * time.Second,
		Strategy:          strategy,
		Timestamp:         time.Now(),
	}
	a.history.Append(out)
	return out
}

// AssessRequest extracts intent and entities from the raw message with
// lightweight heuristics, scores the request, and records the score
// against the user's bounded history for future volatility factors.
func (a *Assessor) AssessRequest(message string, rc *request.Context) Assessment {
	in := Input{
		Message:  message,
		Intent:   a.detectIntent(message),
		Entities: extractEntities(message),
		Context:  rc,
	}
	if rc != nil && rc.UserID != "" {
		in.RecentScores = a.recentScores(rc.UserID)
	}
	out := a.Assess(in)
	if rc != nil {
		rc.ComplexityScore = out.Score
		if rc.UserID != "" {
			a.recordScore(rc.UserID, out.Score)
		}
	}
	return out
}

// History returns the retained assessments, oldest first.
func (a *Assessor) History() []Assessment {
	return a.history.Items()
}

func classify(score float64) (Level, Strategy) {
	switch {
	case score < thresholdMedium:
		return LevelLow, StrategyDirect
	case score < thresholdHigh:
		return LevelMedium, StrategyDecomposed
	case score < thresholdCritical:
		return LevelHigh, StrategyCollaborative
	default:
		return LevelCritical, StrategyCollaborative
	}
}

// intentFamiliarity: a known intent is routine work, an unknown or
// missing one needs interpretation.
func (a *Assessor) intentFamiliarity(intent string) float64 {
	if intent == "" {
		return 7
	}
	for _, known := range a.knownIntents {
		if intent == known {
			return 3
		}
	}
	return 7
}

// entityAmbiguity: no entities means the request is underspecified;
// many entities mean a lot to juggle.
func entityAmbiguity(entities []string) float64 {
	n := len(entities)
	switch {
	case n == 0:
		return 5
	case n <= 3:
		return 4
	default:
		return min10(float64(2 + n))
	}
}

// contextDepth grows with conversation history length.
func contextDepth(rc *request.Context) float64 {
	if rc == nil {
		return 2
	}
	n := len(rc.History)
	switch {
	case n == 0:
		return 2
	case n <= 5:
		return 4
	case n <= 20:
		return 6
	default:
		return 8
	}
}

func dependencyLoad(deps []string) float64 {
	return min10(float64(len(deps)) * 2.5)
}

// historyVolatility: the spread of the user's recent scores. A user
// whose requests swing between trivial and hard gets extra caution.
func historyVolatility(scores []float64) float64 {
	if len(scores) < 2 {
		return 0
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	return min10((hi - lo) * 2)
}

func min10(v float64) float64 {
	if v > 10 {
		return 10
	}
	return v
}

func (a *Assessor) recentScores(userID string) []float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if buf, ok := a.userScore[userID]; ok {
		return buf.Items()
	}
	return nil
}

func (a *Assessor) recordScore(userID string, score float64) {
	a.mu.Lock()
	defer a.mu.Unlock()
	buf, ok := a.userScore[userID]
	if !ok {
		buf = ring.New[float64](perUserScoreWindow)
		a.userScore[userID] = buf
	}
	buf.Append(score)
}

// detectIntent matches the message against known intent names: an
// intent matches when every underscore-separated word of its name
// appears in the message.
func (a *Assessor) detectIntent(message string) string {
	lower := strings.ToLower(message)
	for _, intent := range a.knownIntents {
		words := strings.Split(intent, "_")
		all := true
		for _, w := range words {
			if !strings.Contains(lower, strings.TrimSuffix(w, "s")) {
				all = false
				break
			}
		}
		if all {
			return intent
		}
	}
	return ""
}

// extractEntities pulls capitalized name runs and number-bearing tokens
// out of the message.
func extractEntities(message string) []string {
	var entities []string
	words := strings.Fields(message)

	var nameRun []string
	flushRun := func() {
		if len(nameRun) > 0 {
			entities = append(entities, strings.Join(nameRun, " "))
			nameRun = nil
		}
	}

	for i, w := range words {
		trimmed := strings.Trim(w, ".,;:!?\"'")
		if trimmed == "" {
			flushRun()
			continue
		}
		if hasDigit(trimmed) {
			flushRun()
			entities = append(entities, trimmed)
			continue
		}
		// Capitalized mid-sentence words start or extend a name run.
		if i > 0 && trimmed[0] >= 'A' && trimmed[0] <= 'Z' {
			nameRun = append(nameRun, trimmed)
			continue
		}
		flushRun()
	}
	flushRun()
	return entities
}

func hasDigit(s string) bool {
	for _, r := range s {
		if r >= '0' && r <= '9' {
			return true
		}
	}
	return false
}
