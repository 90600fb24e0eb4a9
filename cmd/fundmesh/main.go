// Command fundmesh starts the fund-analysis assistant web server. All
// configuration can come from a JSON file, from flags, or both; flags win.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hupe1980/fundmesh"
	"github.com/hupe1980/fundmesh/config"
	"github.com/hupe1980/fundmesh/logging"
	flag "github.com/spf13/pflag"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to JSON config file")
		host       = flag.String("host", "", "web server bind host")
		port       = flag.Int("port", 0, "web server listen port (1024-65535)")
		mcpURL     = flag.String("mcp-url", "", "URL of the MCP fund data service")
		provider   = flag.String("provider", "", "model provider (openai or anthropic)")
		modelName  = flag.String("model-name", "", "model identifier")
		apiKey     = flag.String("api-key", "", "model API key")
		baseURL    = flag.String("base-url", "", "model API base URL")
		historyDir = flag.String("history-dir", "", "directory for Q&A transcripts")
		logLevel   = flag.String("log-level", "info", "log level (debug, info, warn, error)")
		logFormat  = flag.String("log-format", "text", "log output format (text or json)")
	)
	flag.Parse()

	logger := logging.New(&logging.Config{
		Level:  logging.ParseLevel(*logLevel),
		Format: *logFormat,
	})

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			logger.Error("failed to load config", "error", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	if flag.CommandLine.Changed("host") {
		cfg.WebServer.Host = *host
	}
	if flag.CommandLine.Changed("port") {
		cfg.WebServer.Port = *port
	}
	if flag.CommandLine.Changed("mcp-url") {
		cfg.MCP.URL = *mcpURL
	}
	if flag.CommandLine.Changed("provider") {
		cfg.Model.Provider = *provider
	}
	if flag.CommandLine.Changed("model-name") {
		cfg.Model.ModelName = *modelName
	}
	if flag.CommandLine.Changed("api-key") {
		cfg.Model.APIKey = *apiKey
	}
	if flag.CommandLine.Changed("base-url") {
		cfg.Model.BaseURL = *baseURL
	}
	if flag.CommandLine.Changed("history-dir") {
		cfg.History.Dir = *historyDir
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	srv, err := fundmesh.New(cfg, func(o *fundmesh.Options) {
		o.Logger = logger
	})
	if err != nil {
		logger.Error("failed to build server", "error", err)
		os.Exit(1)
	}

	if err := srv.Start(cfg.WebServer.Host, cfg.WebServer.Port); err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}
	logger.Info("server listening", "url", fmt.Sprintf("http://%s", srv.Addr()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	if err := srv.Stop(); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}
