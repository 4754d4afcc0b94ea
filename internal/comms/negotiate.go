package comms

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/crewkit/internal/worker"
	"go.uber.org/zap"
)

// Negotiation outcomes.
type Outcome string

const (
	OutcomeConsensus Outcome = "consensus"
	OutcomeEscalated Outcome = "escalated"
	OutcomeCancelled Outcome = "cancelled"
)

// Proposal is one worker's structured position in a negotiation round.
type Proposal struct {
	WorkerID   string   `json:"worker_id"`
	Solution   string   `json:"solution"`
	Reasoning  string   `json:"reasoning"`
	Confidence float64  `json:"confidence"` // 0..1
	TradeOffs  []string `json:"trade_offs,omitempty"`
	Round      int      `json:"round"`
}

// NegotiationResult is the terminal state of one negotiation. On
// consensus Winner holds the highest-confidence proposal; on escalation
// FinalProposals carries the last round for external resolution.
type NegotiationResult struct {
	ID             string     `json:"id"`
	Conflict       string     `json:"conflict"`
	Outcome        Outcome    `json:"outcome"`
	Winner         *Proposal  `json:"winner,omitempty"`
	FinalProposals []Proposal `json:"final_proposals,omitempty"`
	Rounds         int        `json:"rounds"`
	Timestamp      time.Time  `json:"timestamp"`
}

// Negotiate resolves a conflict between workers. Each round every
// worker produces a proposal; the evaluator then decides whether they
// agree. Consensus picks the highest-confidence proposal, round
// exhaustion escalates with the final round attached. Cancellation is
// checked once per round.
func (p *Protocol) Negotiate(ctx context.Context, workerIDs []string, conflict string) (*NegotiationResult, error) {
	if len(workerIDs) == 0 {
		return nil, fmt.Errorf("negotiation needs at least one worker")
	}

	res := &NegotiationResult{
		ID:        uuid.New().String(),
		Conflict:  conflict,
		Timestamp: time.Now(),
	}

	var previous []Proposal
	for round := 1; round <= p.maxRounds; round++ {
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			res.Rounds = round - 1
			return res, ctx.Err()
		}
		res.Rounds = round

		proposals := p.collectProposals(ctx, workerIDs, conflict, round, previous)

		agreed, err := p.evaluator.Consensus(ctx, proposals)
		if err != nil {
			p.logger.Warn("consensus check failed, treating round as disagreement",
				zap.Int("round", round), zap.Error(err))
			agreed = false
		}

		p.publish(ctx, "negotiation_round", map[string]any{
			"id": res.ID, "round": round, "proposals": len(proposals), "consensus": agreed,
		})

		if agreed {
			res.Outcome = OutcomeConsensus
			res.Winner = highestConfidence(proposals)
			res.FinalProposals = proposals
			return res, nil
		}
		previous = proposals
	}

	res.Outcome = OutcomeEscalated
	res.FinalProposals = previous
	p.logger.Info("negotiation escalated",
		zap.String("id", res.ID), zap.Int("rounds", res.Rounds))
	return res, nil
}

// collectProposals asks every worker for a structured proposal. A
// worker failure or unparsable reply degrades to a low-confidence
// proposal wrapping the raw text so the round always has one proposal
// per worker.
func (p *Protocol) collectProposals(ctx context.Context, workerIDs []string, conflict string, round int, previous []Proposal) []Proposal {
	prompt := p.proposalPrompt(conflict, round, previous)

	proposals := make([]Proposal, 0, len(workerIDs))
	for _, id := range workerIDs {
		raw, err := p.workers.Execute(ctx, id, worker.Task{
			ID:           uuid.New().String(),
			TemplateName: "negotiation",
			Description:  prompt,
		})
		prop := Proposal{WorkerID: id, Round: round, Confidence: 0.1}
		if err != nil {
			prop.Solution = "no proposal"
			prop.Reasoning = err.Error()
			p.logger.Warn("worker produced no proposal",
				zap.String("worker", id), zap.Int("round", round), zap.Error(err))
		} else if parseErr := json.Unmarshal([]byte(extractObject(raw)), &prop); parseErr != nil {
			prop.Solution = strings.TrimSpace(raw)
			prop.Confidence = 0.5
		}
		prop.WorkerID = id
		prop.Round = round
		if prop.Confidence < 0 {
			prop.Confidence = 0
		}
		if prop.Confidence > 1 {
			prop.Confidence = 1
		}
		proposals = append(proposals, prop)
	}
	return proposals
}

func (p *Protocol) proposalPrompt(conflict string, round int, previous []Proposal) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Negotiation round %d. Conflict: %s\n", round, conflict)
	if len(previous) > 0 {
		sb.WriteString("\nPrevious round proposals:\n")
		for _, prev := range previous {
			fmt.Fprintf(&sb, "- %s (confidence %.2f): %s\n", prev.WorkerID, prev.Confidence, prev.Solution)
		}
		sb.WriteString("\nRevise your position toward agreement where you can.\n")
	}
	sb.WriteString(`
Reply with JSON only:
{"solution":"...","reasoning":"...","confidence":0.0-1.0,"trade_offs":["..."]}`)
	return sb.String()
}

func highestConfidence(proposals []Proposal) *Proposal {
	if len(proposals) == 0 {
		return nil
	}
	best := proposals[0]
	for _, prop := range proposals[1:] {
		if prop.Confidence > best.Confidence {
			best = prop
		}
	}
	return &best
}

// extractObject trims prose wrapped around a JSON object.
func extractObject(raw string) string {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		return raw[start : end+1]
	}
	return raw
}
