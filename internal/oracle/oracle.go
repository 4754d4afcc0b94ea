// Package oracle wraps the external natural-language reasoning service
// the engine consults for routing analysis, task planning and proposal
// generation.
package oracle

import "context"

// Oracle is the single entry point to the reasoning service. Invoke may
// fail; callers are expected to degrade to their own fallbacks rather
// than retry here.
type Oracle interface {
	Invoke(ctx context.Context, prompt string) (string, error)
}

// Func adapts a plain function to the Oracle interface.
type Func func(ctx context.Context, prompt string) (string, error)

// Invoke implements Oracle.
func (f Func) Invoke(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
