package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hupe1980/fundmesh/logging"
	"github.com/hupe1980/fundmesh/mcp"
	"github.com/hupe1980/fundmesh/model"
)

const defaultSystemPrompt = `You are a professional fund management advisor specializing in fund analysis, portfolio management and investment advice.
Your tasks are:
1. Help the user look up fund information, net asset values, performance figures and similar data;
2. Analyze the user's fund holdings and provide investment advice;
3. Recommend suitable fund products based on market conditions;
4. Provide fund investment strategy and risk management guidance;
5. You MUST call the available tools to fetch current data before analyzing or advising.
6. Output requirements: Markdown format.`

// ToolClient is the subset of the MCP client used by the Advisor. Declared
// here so tests can substitute a fake tool backend.
type ToolClient interface {
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, arguments map[string]any) (string, error)
}

// AdvisorOptions configures an Advisor instance.
type AdvisorOptions struct {
	// SystemPrompt overrides the built-in advisor instructions. The tool
	// catalog is always appended.
	SystemPrompt string
	// MaxToolRounds bounds the model/tool iterations per question.
	MaxToolRounds int
	// Logger receives per-round diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Advisor answers fund questions by looping a chat model against the MCP
// tool catalog until the model produces a final text answer. It is stateless
// across questions; each Invoke builds a fresh conversation.
type Advisor struct {
	llm           model.Model
	tools         ToolClient
	systemPrompt  string
	maxToolRounds int
	logger        logging.Logger
}

// NewAdvisor creates an advisor over the given model and tool client.
func NewAdvisor(llm model.Model, tools ToolClient, optFns ...func(o *AdvisorOptions)) *Advisor {
	opts := AdvisorOptions{
		SystemPrompt:  defaultSystemPrompt,
		MaxToolRounds: 10,
		Logger:        logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Advisor{
		llm:           llm,
		tools:         tools,
		systemPrompt:  opts.SystemPrompt,
		maxToolRounds: opts.MaxToolRounds,
		logger:        opts.Logger,
	}
}

// Invoke implements Processor. Progress strings are pushed before the first
// model call, around every tool call, and once the final answer is being
// generated.
func (a *Advisor) Invoke(ctx context.Context, question string, onProgress ProgressFunc) (string, error) {
	if onProgress == nil {
		onProgress = func(string) {}
	}

	onProgress("Starting analysis, this may take a couple of minutes...")

	catalog, err := a.tools.ListTools(ctx)
	if err != nil {
		return "", fmt.Errorf("list tools: %w", err)
	}
	a.logger.Info("registered fund data tools", "count", len(catalog))

	req := model.Request{
		System:   a.buildSystemPrompt(catalog),
		Messages: []model.Message{{Role: "user", Content: question}},
		Tools:    toolDefinitions(catalog),
	}

	for round := 0; round < a.maxToolRounds; round++ {
		resp, err := a.llm.Chat(ctx, req)
		if err != nil {
			return "", fmt.Errorf("model call failed: %w", err)
		}

		if len(resp.ToolCalls) == 0 {
			onProgress("Analysis complete, generating reply...")
			return resp.Text, nil
		}

		req.Messages = append(req.Messages, model.Message{
			Role:      "assistant",
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			onProgress(fmt.Sprintf("Calling tool %s...", call.Name))

			result, err := a.callTool(ctx, call)
			if err != nil {
				if ctx.Err() != nil {
					return "", ctx.Err()
				}
				a.logger.Warn("tool call failed", "tool", call.Name, "error", err)
				result = fmt.Sprintf("tool call failed: %v", err)
			}

			req.Messages = append(req.Messages, model.Message{
				Role:       "tool",
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}

	return "", fmt.Errorf("no final answer after %d tool rounds", a.maxToolRounds)
}

func (a *Advisor) callTool(ctx context.Context, call model.ToolCall) (string, error) {
	args := map[string]any{}
	if call.Arguments != "" {
		if err := json.Unmarshal([]byte(call.Arguments), &args); err != nil {
			return "", fmt.Errorf("parse arguments for %s: %w", call.Name, err)
		}
	}

	a.logger.Debug("calling tool", "tool", call.Name)

	return a.tools.CallTool(ctx, call.Name, args)
}

// buildSystemPrompt appends the tool catalog to the advisor instructions so
// the model knows what data it can fetch.
func (a *Advisor) buildSystemPrompt(catalog []mcp.Tool) string {
	var b strings.Builder
	b.WriteString(a.systemPrompt)
	if len(catalog) > 0 {
		b.WriteString("\nAvailable tools:\n")
		for _, t := range catalog {
			fmt.Fprintf(&b, "- %s: %s\n", t.Name, t.Description)
		}
	}
	return b.String()
}

func toolDefinitions(catalog []mcp.Tool) []model.ToolDefinition {
	defs := make([]model.ToolDefinition, len(catalog))
	for i, t := range catalog {
		params := t.InputSchema
		if params == nil {
			params = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		defs[i] = model.ToolDefinition{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		}
	}
	return defs
}
