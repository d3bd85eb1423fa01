package provider

import "context"

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Request is one call to a reasoning model.
type Request struct {
	Model             string
	SystemInstruction string
	Messages          []Message
	// ThinkingBudget is sent only when positive.
	ThinkingBudget int32
}

// Reasoner generates text from a remote model.
type Reasoner interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// Dialer builds a Reasoner bound to a credential.
type Dialer func(ctx context.Context, apiKey string) (Reasoner, error)

// ModelSpec is one entry of the fallback chain.
type ModelSpec struct {
	ID             string `yaml:"id" mapstructure:"id"`
	ThinkingBudget int32  `yaml:"thinking_budget" mapstructure:"thinking_budget"`
}

// SupportsThinking reports whether the model accepts a reasoning budget.
func (m ModelSpec) SupportsThinking() bool { return m.ThinkingBudget > 0 }

// DefaultModels is the priority order tried for every remote exchange.
func DefaultModels() []ModelSpec {
	return []ModelSpec{
		{ID: "gemini-3-pro-preview", ThinkingBudget: 2048},
		{ID: "gemini-2.5-flash", ThinkingBudget: 2048},
		{ID: "gemini-2.0-flash-exp"},
	}
}
