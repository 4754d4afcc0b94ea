// Package request carries the per-request context shared by the
// assessor, router and decomposer.
package request

// Context describes one inbound request and everything the engine knows
// about its origin. It is built by the caller and enriched as the
// request moves through the pipeline (ComplexityScore is filled in by
// the assessor).
type Context struct {
	UserID          string            `json:"user_id"`
	TenantID        string            `json:"tenant_id"`
	Message         string            `json:"message"`
	History         []string          `json:"history,omitempty"`
	Preferences     map[string]string `json:"preferences,omitempty"`
	TenantPatterns  []string          `json:"tenant_patterns,omitempty"`
	ComplexityScore float64           `json:"complexity_score,omitempty"`
}

// RecentHistory returns at most n of the newest history entries.
func (c *Context) RecentHistory(n int) []string {
	if c == nil || n <= 0 || len(c.History) == 0 {
		return nil
	}
	if len(c.History) <= n {
		return c.History
	}
	return c.History[len(c.History)-n:]
}
