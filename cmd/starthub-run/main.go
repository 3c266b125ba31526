// Package main provides the one-shot CLI entry point for the action
// runtime.
//
// Usage:
//
//	starthub-run <action_ref> [inputs_json]   Resolve and run an action
//	starthub-run version                      Show version
//	starthub-run help                         Show this help
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/starthub-run/runtime/internal/config"
	"github.com/starthub-run/runtime/pkg/runtime"
	"github.com/starthub-run/runtime/pkg/value"
)

// version is set via -ldflags at build time
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "version", "-v", "--version":
		cmdVersion()
	case "help", "-h", "--help":
		printUsage()
	default:
		err = cmdExecute(cmd, args)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`starthub-run - run a composable action

Usage:
  starthub-run <action_ref> [inputs_json] [flags]

Arguments:
  action_ref    Action reference in namespace/slug:version form
  inputs_json   JSON array of positional input values (default: [])

Flags:
  --config PATH   Path to configuration file (default: ~/.starthub-serve/config.toml)

Environment:
  STARTHUB_CONFIG     Path to configuration file (alternative to --config)
  STARTHUB_DATA_DIR   Override data directory

Examples:
  starthub-run acme/build:1.2.0 '["main.go"]'
  starthub-run acme/hello:1.0.0`)
}

func cmdVersion() {
	fmt.Printf("starthub-run version %s\n", version)
}

func cmdExecute(actionRef string, args []string) error {
	fs := flag.NewFlagSet("execute", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to configuration file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) > 1 {
		// Flags may also follow inputs_json.
		if err := fs.Parse(rest[1:]); err != nil {
			return err
		}
		rest = append(rest[:1:1], fs.Args()...)
	}

	path := *configPath
	if path == "" {
		path = os.Getenv("STARTHUB_CONFIG")
	}
	if path == "" {
		path = config.DefaultConfigPath()
	}

	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if envDataDir := os.Getenv("STARTHUB_DATA_DIR"); envDataDir != "" {
		cfg.Service.DataDir = envDataDir
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("ensure directories: %w", err)
	}

	var inputs []value.Value
	if len(rest) > 0 && rest[0] != "" {
		if err := json.Unmarshal([]byte(rest[0]), &inputs); err != nil {
			return fmt.Errorf("parse inputs_json: %w", err)
		}
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

	go streamLogs(rt)

	outputs, err := rt.Execute(context.Background(), actionRef, inputs)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal outputs: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func streamLogs(rt *runtime.Runtime) {
	ch, unsubscribe := rt.Log.Subscribe()
	defer unsubscribe()
	for rec := range ch {
		fmt.Fprintf(os.Stderr, "[%s] %s\n", rec.Level, rec.Message)
	}
}
