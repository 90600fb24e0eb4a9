// Package mcp implements a minimal stateless client for MCP services speaking
// JSON-RPC 2.0 over HTTP. Each call is an independent POST; the client
// understands both plain JSON responses and single-event SSE responses as
// produced by streamable HTTP transports.
package mcp

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hupe1980/fundmesh/logging"
)

const protocolVersion = "2024-11-05"

// Tool describes a callable tool advertised by the MCP service.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Options configures the Client.
type Options struct {
	// HTTPClient performs the requests. Defaults to a client with a
	// 5 minute timeout since tool calls may hit slow upstream data sources.
	HTTPClient *http.Client
	// Logger receives request/response diagnostics. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Client is a stateless MCP HTTP client. It is safe for concurrent use.
type Client struct {
	url        string
	httpClient *http.Client
	logger     logging.Logger
}

// NewClient creates a client for the MCP service at the given base URL.
func NewClient(url string, optFns ...func(o *Options)) *Client {
	opts := Options{
		HTTPClient: &http.Client{Timeout: 5 * time.Minute},
		Logger:     logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	return &Client{url: url, httpClient: opts.HTTPClient, logger: opts.Logger}
}

// ListTools fetches the tool catalog from the service.
func (c *Client) ListTools(ctx context.Context) ([]Tool, error) {
	var result struct {
		Tools []Tool `json:"tools"`
	}
	if err := c.call(ctx, "tools/list", map[string]any{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

// CallTool invokes a named tool and returns the concatenated text content of
// its result. A result flagged isError is surfaced as a Go error.
func (c *Client) CallTool(ctx context.Context, name string, arguments map[string]any) (string, error) {
	if arguments == nil {
		arguments = map[string]any{}
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
		IsError bool `json:"isError"`
	}

	params := map[string]any{"name": name, "arguments": arguments}
	if err := c.call(ctx, "tools/call", params, &result); err != nil {
		return "", err
	}

	var b strings.Builder
	for _, block := range result.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}

	if result.IsError {
		return "", fmt.Errorf("tool %s failed: %s", name, b.String())
	}

	return b.String(), nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *rpcError       `json:"error"`
}

func (c *Client) call(ctx context.Context, method string, params, result any) error {
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.NewString(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")
	req.Header.Set("MCP-Protocol-Version", protocolVersion)

	c.logger.Debug("mcp request", "method", method, "url", c.url)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mcp %s: %w", method, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("mcp %s: unexpected status %s", method, resp.Status)
	}

	payload, err := decodePayload(resp)
	if err != nil {
		return fmt.Errorf("mcp %s: %w", method, err)
	}

	var rpc rpcResponse
	if err := json.Unmarshal(payload, &rpc); err != nil {
		return fmt.Errorf("mcp %s: decode response: %w", method, err)
	}
	if rpc.Error != nil {
		return fmt.Errorf("mcp %s: %s (code %d)", method, rpc.Error.Message, rpc.Error.Code)
	}
	if result == nil || len(rpc.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(rpc.Result, result); err != nil {
		return fmt.Errorf("mcp %s: decode result: %w", method, err)
	}
	return nil
}

// decodePayload extracts the JSON-RPC message from either a plain JSON body
// or an SSE stream carrying a single message event.
func decodePayload(resp *http.Response) ([]byte, error) {
	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType != "text/event-stream" {
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(resp.Body); err != nil {
			return nil, fmt.Errorf("read body: %w", err)
		}
		return buf.Bytes(), nil
	}

	var data []byte
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(rest)...)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read event stream: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("event stream carried no data")
	}
	return data, nil
}
