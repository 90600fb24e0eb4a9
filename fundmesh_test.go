package fundmesh

import (
	"path/filepath"
	"testing"

	"github.com/hupe1980/fundmesh/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) config.Config {
	t.Helper()

	cfg := config.Default()
	cfg.MCP.URL = "http://localhost:8081/mcp"
	cfg.Model.ModelName = "gpt-4o"
	cfg.Model.APIKey = "sk-test"
	cfg.History.Dir = filepath.Join(t.TempDir(), "results")
	return cfg
}

func TestNew(t *testing.T) {
	t.Run("openai provider", func(t *testing.T) {
		srv, err := New(testConfig(t))
		require.NoError(t, err)
		assert.NotNil(t, srv)
	})

	t.Run("anthropic provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Model.Provider = "anthropic"
		cfg.Model.ModelName = "claude-sonnet-4-20250514"

		srv, err := New(cfg)
		require.NoError(t, err)
		assert.NotNil(t, srv)
	})

	t.Run("unknown provider", func(t *testing.T) {
		cfg := testConfig(t)
		cfg.Model.Provider = "bedrock"

		_, err := New(cfg)
		assert.ErrorContains(t, err, "unknown model provider")
	})
}
