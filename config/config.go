// Package config defines the typed configuration consumed by the FundMesh
// server: the MCP endpoint hosting the fund data tools, the chat model
// credentials, the web server bind parameters and the transcript directory.
// Values are loaded from a JSON file and may be overridden by CLI flags.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// MCP configures the MCP service exposing the fund data tools.
type MCP struct {
	// URL is the base endpoint of the stateless MCP HTTP service.
	URL string `json:"url"`
}

// Model configures the chat model backing the advisor.
type Model struct {
	// Provider selects the model adapter: "openai" (default) or "anthropic".
	Provider string `json:"provider,omitempty"`
	// ModelName is the provider-specific model identifier.
	ModelName string `json:"model_name"`
	// APIKey authenticates against the model API.
	APIKey string `json:"api_key"`
	// BaseURL points at an OpenAI-compatible endpoint; empty means the
	// provider default.
	BaseURL string `json:"base_url,omitempty"`
}

// WebServer configures the listening endpoint.
type WebServer struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port"`
}

// History configures transcript persistence.
type History struct {
	// Dir is the directory holding the markdown Q&A records.
	Dir string `json:"dir,omitempty"`
}

// Config aggregates all FundMesh configuration sections.
type Config struct {
	MCP       MCP       `json:"mcp"`
	Model     Model     `json:"model"`
	WebServer WebServer `json:"web_server"`
	History   History   `json:"history"`
}

// Default returns the baseline configuration used when no file or flags
// override a value.
func Default() Config {
	return Config{
		Model:     Model{Provider: "openai"},
		WebServer: WebServer{Host: "localhost", Port: 8082},
		History:   History{Dir: "results"},
	}
}

// Load reads a JSON configuration file on top of the defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}

	if err := json.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file %s: %w", path, err)
	}

	return cfg, nil
}

// Validate reports the first configuration error found, or nil.
func (c Config) Validate() error {
	if c.WebServer.Port < 1024 || c.WebServer.Port > 65535 {
		return fmt.Errorf("web server port %d outside valid range (1024-65535)", c.WebServer.Port)
	}
	if c.MCP.URL == "" {
		return fmt.Errorf("mcp url is required")
	}
	if c.Model.ModelName == "" {
		return fmt.Errorf("model name is required")
	}
	if c.Model.APIKey == "" {
		return fmt.Errorf("model api key is required")
	}
	switch c.Model.Provider {
	case "", "openai", "anthropic":
	default:
		return fmt.Errorf("unknown model provider %q", c.Model.Provider)
	}
	return nil
}
