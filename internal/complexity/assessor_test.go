package complexity

import (
	"fmt"
	"testing"

	"github.com/nidhogg/crewkit/internal/request"
	"go.uber.org/zap"
)

var testIntents = []string{"add_player", "record_payment", "schedule_match", "notify_team"}

func newTestAssessor(historySize int) *Assessor {
	return NewAssessor(testIntents, historySize, zap.NewNop())
}

func TestAddPlayerScoresMedium(t *testing.T) {
	a := newTestAssessor(0)
	rc := &request.Context{UserID: "u1", TenantID: "T1"}

	out := a.AssessRequest("Add player John Doe, phone 555-0100", rc)

	if out.Level != LevelMedium {
		t.Errorf("expected medium, got %q (score %.2f)", out.Level, out.Score)
	}
	if out.Strategy != StrategyDecomposed {
		t.Errorf("expected decomposed strategy, got %q", out.Strategy)
	}
	if rc.ComplexityScore != out.Score {
		t.Errorf("expected score written back to context, got %v", rc.ComplexityScore)
	}
}

func TestFactorsAreIndependent(t *testing.T) {
	a := newTestAssessor(0)

	base := a.Assess(Input{Intent: "add_player", Entities: []string{"John Doe"}})
	deep := a.Assess(Input{
		Intent:   "add_player",
		Entities: []string{"John Doe"},
		Context:  &request.Context{History: make([]string, 30)},
	})

	if deep.FactorScores["context_depth"] <= base.FactorScores["context_depth"] {
		t.Error("deeper history should raise the context factor")
	}
	if deep.FactorScores["intent_familiarity"] != base.FactorScores["intent_familiarity"] {
		t.Error("context depth must not affect the intent factor")
	}
}

func TestUnknownIntentScoresHigherThanKnown(t *testing.T) {
	a := newTestAssessor(0)

	known := a.Assess(Input{Intent: "add_player"})
	unknown := a.Assess(Input{Intent: "interpretive_dance"})

	if unknown.Score <= known.Score {
		t.Errorf("unknown intent should score higher: known %.2f, unknown %.2f",
			known.Score, unknown.Score)
	}
}

func TestDependencyLoadRaisesLevel(t *testing.T) {
	a := newTestAssessor(0)

	out := a.Assess(Input{
		Intent:                 "add_player",
		Entities:               []string{"a", "b", "c", "d", "e"},
		Context:                &request.Context{History: make([]string, 25)},
		UnresolvedDependencies: []string{"d1", "d2", "d3", "d4"},
	})
	if out.Level != LevelHigh && out.Level != LevelCritical {
		t.Errorf("expected at least high, got %q (score %.2f)", out.Level, out.Score)
	}
	if out.Strategy != StrategyCollaborative {
		t.Errorf("expected collaborative strategy, got %q", out.Strategy)
	}
}

func TestHistoryIsBoundedOldestEvicted(t *testing.T) {
	a := newTestAssessor(3)

	for i := 0; i < 5; i++ {
		a.Assess(Input{Message: fmt.Sprintf("request %d", i)})
	}

	hist := a.History()
	if len(hist) != 3 {
		t.Fatalf("expected history bounded to 3, got %d", len(hist))
	}
}

func TestVolatilityUsesPerUserHistory(t *testing.T) {
	a := newTestAssessor(0)
	rc := &request.Context{UserID: "u1"}

	// A trivial and a heavy request in sequence produce spread.
	a.AssessRequest("Add player John Doe, phone 555-0100", rc)
	heavy := &request.Context{UserID: "u1", History: make([]string, 30)}
	a.AssessRequest("plan everything for the tournament budget analysis venue referees", heavy)

	third := a.AssessRequest("Add player Jane Roe, phone 555-0200", &request.Context{UserID: "u1"})
	if third.FactorScores["history_volatility"] <= 0 {
		t.Errorf("expected non-zero volatility after mixed history, got %v",
			third.FactorScores["history_volatility"])
	}

	fresh := a.AssessRequest("Add player Jane Roe, phone 555-0200", &request.Context{UserID: "brand-new"})
	if fresh.FactorScores["history_volatility"] != 0 {
		t.Errorf("expected zero volatility for new user, got %v",
			fresh.FactorScores["history_volatility"])
	}
}

func TestEntityExtraction(t *testing.T) {
	got := extractEntities("Add player John Doe, phone 555-0100")
	want := []string{"John Doe", "555-0100"}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("entity %d: expected %q, got %q", i, want[i], got[i])
		}
	}
}
