package oracle

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Router chains a primary oracle with fallbacks. Each Invoke tries the
// primary first, then the fallbacks in order; the last error is
// returned only when the whole chain is exhausted.
type Router struct {
	primary   Oracle
	fallbacks []Oracle
	logger    *zap.Logger
}

// NewRouter creates a failover router over the given oracles.
func NewRouter(primary Oracle, fallbacks []Oracle, logger *zap.Logger) *Router {
	return &Router{primary: primary, fallbacks: fallbacks, logger: logger}
}

// Invoke implements Oracle.
func (r *Router) Invoke(ctx context.Context, prompt string) (string, error) {
	if r.primary == nil {
		return "", fmt.Errorf("no oracle configured")
	}

	out, err := r.primary.Invoke(ctx, prompt)
	if err == nil {
		return out, nil
	}
	r.logger.Warn("primary oracle failed, trying fallbacks", zap.Error(err))

	for i, fb := range r.fallbacks {
		out, err = fb.Invoke(ctx, prompt)
		if err == nil {
			return out, nil
		}
		r.logger.Warn("fallback oracle failed", zap.Int("fallback", i), zap.Error(err))
	}
	return "", fmt.Errorf("all oracles failed: %w", err)
}
