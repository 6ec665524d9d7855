// Package agents defines the agent types available to the workflow
// orchestrator and the registry that maps each type to its runtime
// configuration: system prompt, model, sampling parameters, and tool access.
package agents

import "fmt"

// Type identifies a specialist agent.
type Type string

const (
	TypeGeneral    Type = "general"
	TypeResearcher Type = "researcher"
	TypeAnalyst    Type = "analyst"
	TypeCoder      Type = "coder"
	TypeWriter     Type = "writer"
	TypeReviewer   Type = "reviewer"
)

// ToolOptions gates which in-process enrichment tools an agent may use.
type ToolOptions struct {
	Web       bool // web scraping
	Retrieval bool // vector search
}

// Config is the static configuration of a single agent type.
type Config struct {
	Type         Type
	Description  string
	SystemPrompt string
	Model        string
	Temperature  float64
	MaxTokens    int
	Tools        ToolOptions
	Keywords     []string // routing hints, lowercase
}

// Registry is an immutable lookup of agent configurations.
// Registration order is preserved for deterministic listings.
type Registry struct {
	agents      map[Type]Config
	order       []Type
	defaultType Type
}

// NewRegistry builds a registry from the given configs. defaultType must be
// one of the registered types.
func NewRegistry(configs []Config, defaultType Type) (*Registry, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("registry requires at least one agent")
	}

	agents := make(map[Type]Config, len(configs))
	order := make([]Type, 0, len(configs))
	for _, cfg := range configs {
		if cfg.Type == "" {
			return nil, fmt.Errorf("agent config with empty type")
		}
		if _, dup := agents[cfg.Type]; dup {
			return nil, fmt.Errorf("duplicate agent type %q", cfg.Type)
		}
		agents[cfg.Type] = cfg
		order = append(order, cfg.Type)
	}

	if _, ok := agents[defaultType]; !ok {
		return nil, fmt.Errorf("default agent type %q is not registered", defaultType)
	}

	return &Registry{agents: agents, order: order, defaultType: defaultType}, nil
}

// Get returns the configuration for the given type.
func (r *Registry) Get(t Type) (Config, bool) {
	cfg, ok := r.agents[t]
	return cfg, ok
}

// Has reports whether the type is registered.
func (r *Registry) Has(t Type) bool {
	_, ok := r.agents[t]
	return ok
}

// Default returns the default agent's configuration.
func (r *Registry) Default() Config {
	return r.agents[r.defaultType]
}

// DefaultType returns the default agent type.
func (r *Registry) DefaultType() Type {
	return r.defaultType
}

// Types returns all registered types in registration order.
func (r *Registry) Types() []Type {
	out := make([]Type, len(r.order))
	copy(out, r.order)
	return out
}

// List returns all configurations in registration order.
func (r *Registry) List() []Config {
	out := make([]Config, 0, len(r.order))
	for _, t := range r.order {
		out = append(out, r.agents[t])
	}
	return out
}

// DefaultRegistry returns the built-in agent set, all pointed at the given
// default model. Callers typically override models per agent via config.
func DefaultRegistry(defaultModel string) *Registry {
	reg, err := NewRegistry([]Config{
		{
			Type:         TypeGeneral,
			Description:  "General-purpose assistant for everyday questions.",
			SystemPrompt: generalSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.7,
			MaxTokens:    2048,
		},
		{
			Type:         TypeResearcher,
			Description:  "Gathers and verifies information from external sources.",
			SystemPrompt: researcherSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.3,
			MaxTokens:    4096,
			Tools:        ToolOptions{Web: true, Retrieval: true},
			Keywords:     []string{"research", "find", "search", "look up", "source", "latest", "news"},
		},
		{
			Type:         TypeAnalyst,
			Description:  "Breaks down data and draws structured conclusions.",
			SystemPrompt: analystSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.2,
			MaxTokens:    4096,
			Tools:        ToolOptions{Retrieval: true},
			Keywords:     []string{"analyze", "compare", "evaluate", "metric", "trend", "data"},
		},
		{
			Type:         TypeCoder,
			Description:  "Writes and reviews code.",
			SystemPrompt: coderSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.1,
			MaxTokens:    8192,
			Keywords:     []string{"code", "function", "bug", "implement", "script", "compile", "refactor"},
		},
		{
			Type:         TypeWriter,
			Description:  "Produces polished long-form text.",
			SystemPrompt: writerSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.8,
			MaxTokens:    4096,
			Keywords:     []string{"write", "draft", "essay", "article", "summarize", "rewrite", "email"},
		},
		{
			Type:         TypeReviewer,
			Description:  "Critiques intermediate results and flags issues.",
			SystemPrompt: reviewerSystemPrompt,
			Model:        defaultModel,
			Temperature:  0.2,
			MaxTokens:    2048,
			Keywords:     []string{"review", "critique", "check", "verify", "proofread"},
		},
	}, TypeGeneral)
	if err != nil {
		// Built-in set is static; a failure here is a programming error.
		panic(err)
	}
	return reg
}
