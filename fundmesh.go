// Package fundmesh provides a high-level façade over the session/streaming
// server and the advisor processor, enabling construction of a complete
// fund-analysis assistant from configuration alone. Most applications
// interact with this package by:
//  1. Loading a config.Config (file and/or flags)
//  2. Creating the server via New()
//  3. Driving its lifecycle with Start/Stop
//
// The façade wires the model adapter for the configured provider, the MCP
// tool client, the advisor and the transcript store into a server.Server
// while keeping setup ergonomics concise.
package fundmesh

import (
	"fmt"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/fundmesh/config"
	"github.com/hupe1980/fundmesh/logging"
	"github.com/hupe1980/fundmesh/mcp"
	"github.com/hupe1980/fundmesh/model"
	"github.com/hupe1980/fundmesh/model/anthropic"
	"github.com/hupe1980/fundmesh/model/openai"
	"github.com/hupe1980/fundmesh/processor"
	"github.com/hupe1980/fundmesh/server"
	"github.com/hupe1980/fundmesh/transcript"
)

// Options configures the assembled server.
type Options struct {
	// Logger is shared by every component. Defaults to NoOpLogger.
	Logger logging.Logger
	// StopTimeout bounds graceful shutdown.
	StopTimeout time.Duration
	// MaxConcurrentQueries limits in-flight advisor invocations.
	MaxConcurrentQueries int
	// MaxToolRounds bounds model/tool iterations per question.
	MaxToolRounds int
}

// New assembles the full server stack from configuration. The returned
// server is not yet listening; call Start on it.
func New(cfg config.Config, optFns ...func(o *Options)) (*server.Server, error) {
	opts := Options{
		Logger:               logging.NoOpLogger{},
		StopTimeout:          5 * time.Second,
		MaxConcurrentQueries: 32,
		MaxToolRounds:        10,
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	llm, err := buildModel(cfg.Model)
	if err != nil {
		return nil, err
	}

	tools := mcp.NewClient(cfg.MCP.URL, func(o *mcp.Options) {
		o.Logger = opts.Logger
	})

	advisor := processor.NewAdvisor(llm, tools, func(o *processor.AdvisorOptions) {
		o.Logger = opts.Logger
		o.MaxToolRounds = opts.MaxToolRounds
	})

	store, err := transcript.NewStore(cfg.History.Dir, func(o *transcript.Options) {
		o.Logger = opts.Logger
	})
	if err != nil {
		return nil, err
	}

	return server.New(advisor, store, func(o *server.Options) {
		o.Logger = opts.Logger
		o.StopTimeout = opts.StopTimeout
		o.MaxConcurrentQueries = opts.MaxConcurrentQueries
	}), nil
}

// buildModel selects and configures the model adapter for the provider.
func buildModel(cfg config.Model) (model.Model, error) {
	switch cfg.Provider {
	case "", "openai":
		return openai.NewModel(func(o *openai.Options) {
			if cfg.ModelName != "" {
				o.Model = cfg.ModelName
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if cfg.ModelName != "" {
				o.Model = anthropicsdk.Model(cfg.ModelName)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}
}
