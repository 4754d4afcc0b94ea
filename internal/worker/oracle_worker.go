package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/nidhogg/crewkit/internal/oracle"
	"go.uber.org/zap"
)

// OracleWorker is a worker whose execution is a single prompt to the
// reasoning service, framed by a role-specific persona. It is the
// default worker implementation wired by the service bootstrap; callers
// with their own worker fleets supply their own Worker implementations
// through the pool factory instead.
type OracleWorker struct {
	id      string
	kind    Kind
	persona string
	oracle  oracle.Oracle
	logger  *zap.Logger
}

// NewOracleWorker creates an oracle-backed worker.
func NewOracleWorker(id string, kind Kind, persona string, o oracle.Oracle, logger *zap.Logger) *OracleWorker {
	return &OracleWorker{id: id, kind: kind, persona: persona, oracle: o, logger: logger}
}

func (w *OracleWorker) ID() string { return w.id }
func (w *OracleWorker) Kind() Kind { return w.kind }

// Execute prompts the oracle with the task and the worker's persona.
func (w *OracleWorker) Execute(ctx context.Context, t Task) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s\n\nTask: %s\n", w.persona, t.Description)
	if len(t.Parameters) > 0 {
		sb.WriteString("Parameters:\n")
		for k, v := range t.Parameters {
			fmt.Fprintf(&sb, "- %s: %s\n", k, v)
		}
	}
	if len(t.DependencyOutputs) > 0 {
		sb.WriteString("Results from earlier steps:\n")
		for name, out := range t.DependencyOutputs {
			fmt.Fprintf(&sb, "[%s] %s\n", name, out)
		}
	}
	sb.WriteString("\nCarry out the task and reply with the outcome only.")

	out, err := w.oracle.Invoke(ctx, sb.String())
	if err != nil {
		return "", fmt.Errorf("worker %s: %w", w.id, err)
	}
	w.logger.Debug("worker executed task",
		zap.String("worker", w.id),
		zap.String("task", t.ID))
	return out, nil
}
