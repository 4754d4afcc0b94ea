package comms

import (
	"context"
	"strings"

	"github.com/nidhogg/crewkit/internal/oracle"
)

// ConsensusEvaluator decides whether a round of proposals agrees. It is
// deliberately decoupled from the negotiation state machine so the
// agreement heuristic can be swapped without touching the rounds.
type ConsensusEvaluator interface {
	Consensus(ctx context.Context, proposals []Proposal) (bool, error)
}

// SolutionPrefixEvaluator compares a normalized prefix of each
// proposal's solution field. Cheap and oracle-free, but coarse.
type SolutionPrefixEvaluator struct {
	// PrefixLen is the number of characters compared; <=0 uses 50.
	PrefixLen int
}

func (e SolutionPrefixEvaluator) Consensus(_ context.Context, proposals []Proposal) (bool, error) {
	if len(proposals) < 2 {
		return len(proposals) == 1, nil
	}
	n := e.PrefixLen
	if n <= 0 {
		n = 50
	}
	first := normalizedPrefix(proposals[0].Solution, n)
	for _, prop := range proposals[1:] {
		if normalizedPrefix(prop.Solution, n) != first {
			return false, nil
		}
	}
	return true, nil
}

func normalizedPrefix(s string, n int) string {
	s = strings.ToLower(strings.Join(strings.Fields(s), " "))
	if len(s) > n {
		s = s[:n]
	}
	return s
}

// OracleEvaluator asks the oracle whether the proposals agree. Any
// reply whose first word is yes counts as consensus.
type OracleEvaluator struct {
	Oracle oracle.Oracle
}

func (e OracleEvaluator) Consensus(ctx context.Context, proposals []Proposal) (bool, error) {
	if len(proposals) < 2 {
		return len(proposals) == 1, nil
	}
	var sb strings.Builder
	sb.WriteString("Do these proposals describe the same solution? Answer yes or no.\n\n")
	for _, prop := range proposals {
		sb.WriteString("- ")
		sb.WriteString(prop.Solution)
		sb.WriteString("\n")
	}
	reply, err := e.Oracle.Invoke(ctx, sb.String())
	if err != nil {
		return false, err
	}
	first := strings.ToLower(strings.TrimSpace(reply))
	return strings.HasPrefix(first, "yes"), nil
}
