package agents

import "strings"

// Router selects an agent type for an incoming message by keyword scoring.
// It provides a hint only; the orchestrator's planner makes the final call
// on which agents actually run.
type Router struct {
	registry *Registry
}

// NewRouter creates a router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Route returns the agent type whose keywords best match the message.
// Ties and zero scores fall back to the registry's default agent.
func (r *Router) Route(message string) Type {
	lowered := strings.ToLower(message)

	best := r.registry.DefaultType()
	bestScore := 0
	for _, t := range r.registry.Types() {
		cfg, _ := r.registry.Get(t)
		score := 0
		for _, kw := range cfg.Keywords {
			if strings.Contains(lowered, kw) {
				score++
			}
		}
		// Strictly greater: on ties the earlier-registered agent keeps the
		// slot, and with no hits at all the default stands.
		if score > bestScore {
			best = t
			bestScore = score
		}
	}
	return best
}
