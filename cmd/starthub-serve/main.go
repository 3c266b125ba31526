// Package main provides the entry point for starthub-serve.
//
// starthub-serve is a standalone service providing:
// - REST+SSE API for programmatic action execution
// - MCP server for Claude Code integration
// - Optional execution-history persistence
//
// Usage:
//
//	starthub-serve                    Start the service (default)
//	starthub-serve serve              Start the service
//	starthub-serve version            Show version
//	starthub-serve status             Show service status
//	starthub-serve stop               Stop the running service
//	starthub-serve mcp                Start MCP server (stdio mode)
//	starthub-serve init-config        Create example configuration file
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/starthub-run/runtime/internal/api"
	"github.com/starthub-run/runtime/internal/config"
	"github.com/starthub-run/runtime/internal/logger"
	"github.com/starthub-run/runtime/internal/mcp"
	"github.com/starthub-run/runtime/internal/service"
	"github.com/starthub-run/runtime/pkg/history"
	"github.com/starthub-run/runtime/pkg/runtime"
)

// version is set via -ldflags at build time
var version = "dev"

// Command-line flags
var configPath string

func main() {
	api.SetVersion(version)

	args := os.Args[1:]
	command := ""
	cmdArgs := []string{}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if strings.HasPrefix(arg, "--config=") {
			configPath = strings.TrimPrefix(arg, "--config=")
		} else if arg == "--config" && i+1 < len(args) {
			configPath = args[i+1]
			i++
		} else if strings.HasPrefix(arg, "-") {
			// Skip unknown flags for now
		} else if command == "" {
			command = arg
		} else {
			cmdArgs = append(cmdArgs, arg)
		}
	}

	if command == "" {
		command = "serve"
	}

	var err error
	switch command {
	case "serve", "start":
		err = cmdServe(cmdArgs)
	case "version", "-v", "--version":
		cmdVersion()
	case "status":
		err = cmdStatus()
	case "stop":
		err = cmdStop()
	case "mcp", "mcp-server":
		err = cmdMCP()
	case "init-config":
		err = cmdInitConfig()
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`starthub-serve - composable action runtime service

Usage:
  starthub-serve [flags] [command] [args]

Commands:
  serve         Start the service (default)
  version       Show version information
  status        Show service status
  stop          Stop the running service
  mcp           Start MCP server (stdio mode for Claude integration)
  init-config   Create example configuration file
  help          Show this help

Flags:
  --config PATH   Path to configuration file (default: ~/.starthub-serve/config.toml)

Environment:
  STARTHUB_CONFIG     Path to configuration file (alternative to --config)
  STARTHUB_DATA_DIR   Override data directory

Examples:
  starthub-serve                          Start the service with defaults
  starthub-serve --config /path/to.toml   Start with custom config
  starthub-serve mcp                      Start MCP server for Claude
  starthub-serve init-config              Create example config file
  curl localhost:8420/health              Check service health
  curl -XPOST localhost:8420/execute \
    -d '{"action_ref":"acme/build:1.2.0","inputs":[]}'`)
}

func cmdVersion() {
	fmt.Printf("starthub-serve version %s\n", version)
}

func getConfigPath() string {
	if configPath != "" {
		return configPath
	}
	if envPath := os.Getenv("STARTHUB_CONFIG"); envPath != "" {
		return envPath
	}
	return config.DefaultConfigPath()
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("STARTHUB_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	return cfg, nil
}

func cmdServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Parse(args)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if running, pid := service.IsRunning(cfg); running {
		return fmt.Errorf("service already running (PID %d)", pid)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	log := logger.SetupLogger(cfg)
	defer logger.Stop()

	rt, err := runtime.New(runtime.Config{
		RegistryURL: cfg.Registry.BaseURL,
		CacheDir:    cfg.Runtime.CacheDir,
		WasmRuntime: cfg.Runtime.WasmRuntime,
		LogDepth:    cfg.Runtime.LogChannelSize,
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()
	}

	apiServer := api.NewServer(cfg, rt, hist)

	daemon := service.NewDaemon(cfg)
	if err := daemon.Start(apiServer.Handler()); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}

	log.Info().Str("version", version).Str("address", cfg.Address()).Msg("starthub-serve started")
	log.Info().Str("url", fmt.Sprintf("http://%s/execute", cfg.Address())).Msg("execute endpoint")
	log.Info().Str("url", fmt.Sprintf("http://%s/events", cfg.Address())).Msg("events endpoint")

	daemon.Wait()
	return nil
}

func cmdStatus() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	running, pid := service.IsRunning(cfg)
	if running {
		log.Info().
			Int("pid", pid).
			Str("address", cfg.Address()).
			Str("config", getConfigPath()).
			Str("data_dir", cfg.Service.DataDir).
			Msg("starthub-serve: running")
	} else {
		log.Info().Msg("starthub-serve: stopped")
	}
	return nil
}

func cmdStop() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log := logger.GetLogger()
	running, pid := service.IsRunning(cfg)
	if !running {
		log.Info().Msg("starthub-serve is not running")
		return nil
	}

	log.Info().Int("pid", pid).Msg("stopping starthub-serve")
	if err := service.StopRunning(cfg); err != nil {
		return err
	}
	log.Info().Msg("starthub-serve stopped")
	return nil
}

func cmdMCP() error {
	cfg, err := loadConfig()
	if err != nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	rt, err := runtime.New(runtime.Config{
		RegistryURL: cfg.Registry.BaseURL,
		CacheDir:    cfg.Runtime.CacheDir,
		WasmRuntime: cfg.Runtime.WasmRuntime,
		LogDepth:    cfg.Runtime.LogChannelSize,
	})
	if err != nil {
		return fmt.Errorf("build runtime: %w", err)
	}

	var hist *history.Store
	if cfg.History.Enabled {
		hist, err = history.Open(cfg.History.DBPath)
		if err != nil {
			return fmt.Errorf("open history store: %w", err)
		}
		defer hist.Close()
	}

	mcpServer := mcp.NewServer(rt, hist)
	return mcpServer.ServeStdio()
}

func cmdInitConfig() error {
	path := getConfigPath()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := config.WriteExampleConfig(path); err != nil {
		return err
	}

	fmt.Printf("Created example configuration: %s\n", path)
	return nil
}
