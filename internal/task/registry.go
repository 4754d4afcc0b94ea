package task

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

// ErrUnknownTemplate is returned when instantiating a template name that
// was never registered.
var ErrUnknownTemplate = fmt.Errorf("unknown task template")

// Registry holds task templates. It is populated at startup and
// read-only afterwards, so lookups need no locking.
type Registry struct {
	order     []string
	templates map[string]*Template
}

// NewRegistry builds a registry from the given templates, validating
// each definition.
func NewRegistry(templates []*Template) (*Registry, error) {
	r := &Registry{templates: make(map[string]*Template, len(templates))}
	for _, t := range templates {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.templates[t.Name]; dup {
			return nil, fmt.Errorf("duplicate template %q", t.Name)
		}
		r.order = append(r.order, t.Name)
		r.templates[t.Name] = t
	}
	return r, nil
}

// Get returns a template by name.
func (r *Registry) Get(name string) (*Template, bool) {
	t, ok := r.templates[name]
	return t, ok
}

// Names returns the template names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Templates returns all templates in registration order.
func (r *Registry) Templates() []*Template {
	out := make([]*Template, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.templates[name])
	}
	return out
}

// Instantiate validates params against the named template's declared
// parameter specs and returns a Pending instance. Unknown parameter
// names and missing required parameters are rejected; declared defaults
// are applied for absent optional parameters.
func (r *Registry) Instantiate(name string, params map[string]string) (*Instance, error) {
	tpl, ok := r.templates[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	declared := make(map[string]ParameterSpec, len(tpl.Parameters))
	for _, p := range tpl.Parameters {
		declared[p.Name] = p
	}
	for k := range params {
		if _, ok := declared[k]; !ok {
			return nil, fmt.Errorf("template %q: unknown parameter %q", name, k)
		}
	}

	bound := make(map[string]string, len(tpl.Parameters))
	for _, p := range tpl.Parameters {
		v, present := params[p.Name]
		if !present || v == "" {
			if p.Required && p.Default == "" {
				return nil, fmt.Errorf("template %q: missing required parameter %q", name, p.Name)
			}
			if p.Default != "" {
				bound[p.Name] = p.Default
			}
			continue
		}
		if p.Pattern != "" {
			// Pattern is pre-validated by NewRegistry.
			if !regexp.MustCompile(p.Pattern).MatchString(v) {
				return nil, fmt.Errorf("template %q: parameter %q value %q does not match %q",
					name, p.Name, v, p.Pattern)
			}
		}
		if len(p.AllowedValues) > 0 && !contains(p.AllowedValues, v) {
			return nil, fmt.Errorf("template %q: parameter %q value %q not in allowed set",
				name, p.Name, v)
		}
		bound[p.Name] = v
	}

	return &Instance{
		ID:           uuid.New().String(),
		TemplateName: tpl.Name,
		Description:  tpl.Description,
		WorkerKind:   tpl.WorkerKind,
		Parameters:   bound,
		Priority:     tpl.Priority,
		DependsOn:    append([]string(nil), tpl.DependsOn...),
		Status:       StatusPending,
		CreatedAt:    time.Now(),
	}, nil
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
