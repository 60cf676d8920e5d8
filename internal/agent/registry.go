package agent

import "fmt"

// Registry holds the agents wired in at startup. Registration happens once
// during construction in main, never at runtime.
type Registry struct {
	agents map[string]Agent
	order  []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Agent)}
}

// Register adds an agent. Duplicate names are a wiring bug.
func (r *Registry) Register(a Agent) error {
	name := a.Name()
	if name == "" {
		return fmt.Errorf("agent has no name")
	}
	if _, exists := r.agents[name]; exists {
		return fmt.Errorf("agent %q already registered", name)
	}
	r.agents[name] = a
	r.order = append(r.order, name)
	return nil
}

// Get returns an agent by name.
func (r *Registry) Get(name string) (Agent, bool) {
	a, ok := r.agents[name]
	return a, ok
}

// Names returns all agent names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Specialists returns every agent except the security gate and the central
// dispatcher, in registration order.
func (r *Registry) Specialists() []Agent {
	var out []Agent
	for _, name := range r.order {
		if name == "security" || name == "central" {
			continue
		}
		out = append(out, r.agents[name])
	}
	return out
}

// Match returns the agent whose keywords best fit the utterance, with its
// score. Security and central never match.
func (r *Registry) Match(text string) (Agent, float64) {
	var best Agent
	bestScore := 0.0
	for _, a := range r.Specialists() {
		if score := a.MatchesIntent(text); score > bestScore {
			best = a
			bestScore = score
		}
	}
	return best, bestScore
}
