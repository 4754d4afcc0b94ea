package capability

import (
	"fmt"
	"strings"
)

// WorkerCapability records one worker's proficiency at one skill.
type WorkerCapability struct {
	Kind        Kind    `json:"kind"`
	Proficiency float64 `json:"proficiency"` // 0..1
	Primary     bool    `json:"primary"`
	Description string  `json:"description,omitempty"`
}

// Profile is the full capability set of one worker.
type Profile struct {
	WorkerID     string             `json:"worker_id"`
	Capabilities []WorkerCapability `json:"capabilities"`
}

// Matrix is a static registry of worker capability profiles. It is
// immutable after construction and therefore safe for any number of
// concurrent readers without locking. Lookups for unknown workers or
// kinds return zero values rather than errors so callers can fall back
// instead of aborting.
type Matrix struct {
	order    []string // worker registration order
	profiles map[string]Profile
	byWorker map[string]map[Kind]WorkerCapability
}

// NewMatrix builds a matrix from profiles. Worker order is preserved and
// used as the tie-break wherever proficiencies are equal. Duplicate
// worker IDs and out-of-range proficiencies are rejected.
func NewMatrix(profiles []Profile) (*Matrix, error) {
	m := &Matrix{
		profiles: make(map[string]Profile, len(profiles)),
		byWorker: make(map[string]map[Kind]WorkerCapability, len(profiles)),
	}
	for _, p := range profiles {
		if p.WorkerID == "" {
			return nil, fmt.Errorf("capability profile with empty worker id")
		}
		if _, dup := m.profiles[p.WorkerID]; dup {
			return nil, fmt.Errorf("duplicate capability profile for worker %q", p.WorkerID)
		}
		caps := make(map[Kind]WorkerCapability, len(p.Capabilities))
		for _, c := range p.Capabilities {
			if !c.Kind.Valid() {
				return nil, fmt.Errorf("worker %q: unknown capability kind %q", p.WorkerID, c.Kind)
			}
			if c.Proficiency < 0 || c.Proficiency > 1 {
				return nil, fmt.Errorf("worker %q: proficiency %v for %q out of [0,1]",
					p.WorkerID, c.Proficiency, c.Kind)
			}
			caps[c.Kind] = c
		}
		m.order = append(m.order, p.WorkerID)
		m.profiles[p.WorkerID] = p
		m.byWorker[p.WorkerID] = caps
	}
	return m, nil
}

// Workers returns worker IDs in registration order.
func (m *Matrix) Workers() []string {
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out
}

// Capabilities returns a worker's full capability list, or nil for an
// unknown worker.
func (m *Matrix) Capabilities(workerID string) []WorkerCapability {
	p, ok := m.profiles[workerID]
	if !ok {
		return nil
	}
	out := make([]WorkerCapability, len(p.Capabilities))
	copy(out, p.Capabilities)
	return out
}

// PrimaryCapabilities returns only the capabilities a worker declares as
// primary.
func (m *Matrix) PrimaryCapabilities(workerID string) []WorkerCapability {
	var out []WorkerCapability
	for _, c := range m.Capabilities(workerID) {
		if c.Primary {
			out = append(out, c)
		}
	}
	return out
}

// Proficiency returns the worker's proficiency at kind, or 0 when the
// worker or kind is unknown.
func (m *Matrix) Proficiency(workerID string, kind Kind) float64 {
	if caps, ok := m.byWorker[workerID]; ok {
		return caps[kind].Proficiency
	}
	return 0
}

// Validate reports whether the worker declares the capability at all.
func (m *Matrix) Validate(workerID string, kind Kind) bool {
	caps, ok := m.byWorker[workerID]
	if !ok {
		return false
	}
	_, has := caps[kind]
	return has
}

// WorkersWith returns, in registration order, the workers whose
// proficiency at kind is at least minProficiency.
func (m *Matrix) WorkersWith(kind Kind, minProficiency float64) []string {
	var out []string
	for _, id := range m.order {
		if c, ok := m.byWorker[id][kind]; ok && c.Proficiency >= minProficiency {
			out = append(out, id)
		}
	}
	return out
}

// BestWorkerFor returns the worker with the highest proficiency at kind
// and that proficiency. Ties resolve to the earliest-registered worker.
// Returns ("", 0) when no worker declares the kind.
func (m *Matrix) BestWorkerFor(kind Kind) (string, float64) {
	best := ""
	bestProf := 0.0
	for _, id := range m.order {
		c, ok := m.byWorker[id][kind]
		if !ok {
			continue
		}
		if best == "" || c.Proficiency > bestProf {
			best = id
			bestProf = c.Proficiency
		}
	}
	return best, bestProf
}

// Summary renders a compact worker→skills listing for oracle prompts.
func (m *Matrix) Summary() string {
	var sb strings.Builder
	for _, id := range m.order {
		fmt.Fprintf(&sb, "%s:", id)
		for i, c := range m.profiles[id].Capabilities {
			if i > 0 {
				sb.WriteString(",")
			}
			fmt.Fprintf(&sb, " %s(%.1f)", c.Kind, c.Proficiency)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
