// Bridge from the runtime's provider contract to agentkit's LLM providers.
package provider

import (
	"context"

	"github.com/vinayprograms/agentkit/llm"
)

// AgentKit adapts an agentkit llm.Provider to the Provider contract.
type AgentKit struct {
	provider llm.Provider
}

// NewAgentKit wraps an existing agentkit provider.
func NewAgentKit(p llm.Provider) *AgentKit {
	return &AgentKit{provider: p}
}

// Config selects and configures a backing model.
type Config struct {
	Provider  string
	Model     string
	APIKey    string
	MaxTokens int
	BaseURL   string
}

// New creates a provider backed by agentkit. The provider name may be
// left empty and inferred from the model id.
func New(cfg Config) (*AgentKit, error) {
	name := cfg.Provider
	if name == "" {
		name = llm.InferProviderFromModel(cfg.Model)
	}
	p, err := llm.NewProvider(llm.ProviderConfig{
		Provider:  name,
		Model:     cfg.Model,
		APIKey:    cfg.APIKey,
		MaxTokens: cfg.MaxTokens,
		BaseURL:   cfg.BaseURL,
	})
	if err != nil {
		return nil, err
	}
	return &AgentKit{provider: p}, nil
}

// Chat forwards one turn to the backing model and normalizes the reply.
// agentkit providers signal continuation through emitted tool calls, so
// the stop reason is derived from their presence.
func (a *AgentKit) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	messages := make([]llm.Message, len(req.Messages))
	for i, m := range req.Messages {
		toolCalls := make([]llm.ToolCallResponse, len(m.ToolCalls))
		for j, tc := range m.ToolCalls {
			toolCalls[j] = llm.ToolCallResponse{ID: tc.ID, Name: tc.Name, Args: tc.Args}
		}
		messages[i] = llm.Message{
			Role:       m.Role,
			Content:    m.Content,
			ToolCalls:  toolCalls,
			ToolCallID: m.ToolCallID,
		}
	}
	tools := make([]llm.ToolDef, len(req.Tools))
	for i, t := range req.Tools {
		tools[i] = llm.ToolDef{Name: t.Name, Description: t.Description, Parameters: t.Parameters}
	}

	resp, err := a.provider.Chat(ctx, llm.ChatRequest{Messages: messages, Tools: tools})
	if err != nil {
		return nil, err
	}

	out := &ChatResponse{
		Content:    resp.Content,
		StopReason: StopEndTurn,
		Usage:      Usage{InputTokens: resp.InputTokens, OutputTokens: resp.OutputTokens},
	}
	for _, tc := range resp.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Name, Args: tc.Args})
	}
	if len(out.ToolCalls) > 0 {
		out.StopReason = StopToolUse
	}
	return out, nil
}
