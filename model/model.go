package model

import (
	"context"
	"fmt"
)

// ToolCall is a function call request surfaced by a model provider. Unified
// across vendors so the advisor loop does not need per-provider branching.
type ToolCall struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // JSON string of arguments
}

// ToolDefinition declaratively exposes a callable tool to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// Message is a single turn in a conversation. Role is one of "user",
// "assistant" or "tool". An assistant message may carry ToolCalls; a tool
// message carries the result for the call identified by ToolCallID.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// Request captures the normalized model input produced by the advisor.
type Request struct {
	System   string           `json:"system,omitempty"`
	Messages []Message        `json:"messages"`
	Tools    []ToolDefinition `json:"tools,omitempty"`
}

// Response is the completed assistant turn returned by a provider.
type Response struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by the advisor to drive generation.
type Model interface {
	Chat(ctx context.Context, req Request) (*Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// MockModel is a lightweight in-memory Model useful for tests & examples. It
// replays a scripted sequence of responses and records every request.
type MockModel struct {
	info      Info
	responses []Response
	requests  []Request
	err       error
}

// NewMockModel constructs a MockModel with basic tool support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:          name,
			Provider:      provider,
			SupportsTools: true,
		},
	}
}

// Enqueue appends a scripted response to be returned by the next Chat call.
func (m *MockModel) Enqueue(resp Response) { m.responses = append(m.responses, resp) }

// FailWith makes every subsequent Chat call return err.
func (m *MockModel) FailWith(err error) { m.err = err }

// Requests returns the requests seen so far.
func (m *MockModel) Requests() []Request { return m.requests }

// Chat implements Model; pops the next scripted response.
func (m *MockModel) Chat(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.requests = append(m.requests, req)
	if m.err != nil {
		return nil, m.err
	}
	if len(m.responses) == 0 {
		return nil, fmt.Errorf("mock model: no scripted response left")
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return &resp, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
