package agent

import (
	"context"
	"errors"
)

var (
	// ErrNoProvider is returned when a runner is built without an LLM provider.
	ErrNoProvider = errors.New("llm provider is required")
	// ErrMaxIterations is returned when the model keeps calling tools past the
	// iteration cap.
	ErrMaxIterations = errors.New("maximum tool iterations exceeded")
	// ErrToolNotFound is returned when the model requests a tool that is not
	// in the manifest.
	ErrToolNotFound = errors.New("tool not found")
)

// DefaultMaxIterations caps tool-call, observe, re-plan cycles per turn.
const DefaultMaxIterations = 6

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// ToolFunc executes a tool with the arguments chosen by the model.
type ToolFunc func(ctx context.Context, args map[string]interface{}) (string, error)

// Tool is an entry of the tool manifest. The runner only reads Name and
// Description for the prompt; Parameters is passed through to the provider
// as the tool's JSON schema.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	Invoke      ToolFunc
}

// AgentConfig bundles what a single turn runs with.
type AgentConfig struct {
	Provider      LLMProvider
	Tools         []Tool
	UserID        string
	Model         string
	Temperature   float64
	MaxTokens     int
	MaxIterations int

	// CheckOutput, when set, vets the final answer. A non-nil error fails
	// the run instead of returning the answer.
	CheckOutput func(output string) error
}

// DefaultAgentConfig returns model defaults for the primary path.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Model:         "claude-3-5-sonnet-20241022",
		Temperature:   0.7,
		MaxTokens:     1024,
		MaxIterations: DefaultMaxIterations,
	}
}

// Message is one chat turn in the conversation history or the tool loop.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID         string                 `json:"id"`
	Name       string                 `json:"name"`
	Parameters map[string]interface{} `json:"parameters"`
}

// ToolTraceEntry records a tool that actually ran during a turn.
type ToolTraceEntry struct {
	ToolName string `json:"tool_name"`
	Input    string `json:"input"`
	Output   string `json:"output"`
	Error    string `json:"error,omitempty"`
}

// TokenUsage tracks token consumption
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

func (u *TokenUsage) add(other *TokenUsage) *TokenUsage {
	if other == nil {
		return u
	}
	if u == nil {
		u = &TokenUsage{}
	}
	u.InputTokens += other.InputTokens
	u.OutputTokens += other.OutputTokens
	return u
}

// ExecutionResult is the outcome of one turn on either path.
type ExecutionResult struct {
	Output     string           `json:"output"`
	ToolTrace  []ToolTraceEntry `json:"tool_trace"`
	Degraded   bool             `json:"degraded"`
	Iterations int              `json:"iterations"`
	Usage      *TokenUsage      `json:"usage,omitempty"`
}

// ToolNames returns the name of every trace entry, in order.
func (r ExecutionResult) ToolNames() []string {
	names := make([]string, 0, len(r.ToolTrace))
	for _, e := range r.ToolTrace {
		names = append(names, e.ToolName)
	}
	return names
}

// AuthProfile represents authentication credentials for LLM providers
type AuthProfile struct {
	ID       string `json:"id"`
	Provider string `json:"provider"` // "anthropic", "openai"
	APIKey   string `json:"api_key"`
	BaseURL  string `json:"base_url,omitempty"`
	Priority int    `json:"priority"`
}
