// Package task defines parameterized task blueprints, their validated
// instances, and the registry that holds them.
package task

import (
	"fmt"
	"regexp"
	"time"

	"github.com/nidhogg/crewkit/internal/worker"
)

// ParameterSpec declares one parameter a template accepts.
type ParameterSpec struct {
	Name          string   `json:"name"`
	Required      bool     `json:"required"`
	Type          string   `json:"type"` // string|number|bool
	Pattern       string   `json:"pattern,omitempty"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	Default       string   `json:"default,omitempty"`
}

// Template is a parameterized blueprint for a unit of work, bound to a
// worker kind.
type Template struct {
	Name              string          `json:"name"`
	Description       string          `json:"description"`
	WorkerKind        worker.Kind     `json:"worker_kind"`
	Parameters        []ParameterSpec `json:"parameters"`
	Priority          int             `json:"priority"`
	EstimatedDuration time.Duration   `json:"estimated_duration"`
	DependsOn         []string        `json:"depends_on,omitempty"` // template names
	Tags              []string        `json:"tags,omitempty"`
}

// validate checks the template definition itself.
func (t *Template) validate() error {
	if t.Name == "" {
		return fmt.Errorf("template with empty name")
	}
	if !t.WorkerKind.Valid() {
		return fmt.Errorf("template %q: unknown worker kind %q", t.Name, t.WorkerKind)
	}
	seen := make(map[string]bool, len(t.Parameters))
	for _, p := range t.Parameters {
		if p.Name == "" {
			return fmt.Errorf("template %q: parameter with empty name", t.Name)
		}
		if seen[p.Name] {
			return fmt.Errorf("template %q: duplicate parameter %q", t.Name, p.Name)
		}
		seen[p.Name] = true
		if p.Pattern != "" {
			if _, err := regexp.Compile(p.Pattern); err != nil {
				return fmt.Errorf("template %q: parameter %q pattern: %w", t.Name, p.Name, err)
			}
		}
	}
	return nil
}
