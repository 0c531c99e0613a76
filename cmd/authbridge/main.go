package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/dgellow/authbridge/internal"
	"github.com/dgellow/authbridge/internal/config"
	"github.com/dgellow/authbridge/internal/log"
)

var BuildVersion = "dev"

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.SupportedVersion,
		"bridge": map[string]any{
			"name":           "authbridge",
			"origin":         "https://monitor.yourcompany.com",
			"addr":           ":8080",
			"signingSecret":  map[string]string{"$env": "AUTHBRIDGE_SIGNING_SECRET"},
			"allowedOrigins": []string{"https://monitor.yourcompany.com"},
		},
		"provider": map[string]any{
			"kind":         "github",
			"clientId":     map[string]string{"$env": "GITHUB_CLIENT_ID"},
			"clientSecret": map[string]string{"$env": "GITHUB_CLIENT_SECRET"},
			"redirectUri":  "https://monitor.yourcompany.com/oauth/callback",
			"scopes":       []string{"read:user", "user:email", "read:org"},
		},
		"popup": map[string]any{
			"width":        config.DefaultPopupWidth,
			"height":       config.DefaultPopupHeight,
			"pollInterval": config.DefaultPollInterval.String(),
			"timeout":      config.DefaultAttemptTimeout.String(),
			"concurrency":  string(config.ConcurrencyReject),
			"opener":       string(config.OpenerRemote),
			"ackTimeout":   config.DefaultAckTimeout.String(),
		},
		"guard": map[string]any{
			"coalesceWindow": config.DefaultCoalesceWindow.String(),
			"message":        config.DefaultExpiredMessage,
		},
		"storage": map[string]any{
			"kind":      string(config.StorageMemory),
			"namespace": config.DefaultNamespace,
		},
		"monitor": map[string]any{
			"url":      "https://zabbix.yourcompany.com/api_jsonrpc.php",
			"apiToken": map[string]string{"$env": "ZABBIX_API_TOKEN"},
			"timeout":  "30s",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	switch {
	case len(result.Errors) == 0 && len(result.Warnings) == 0:
		fmt.Println("Result: PASS")
	case len(result.Errors) == 0:
		fmt.Println("Result: FAIL (warnings present)")
	default:
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

func main() {
	conf := flag.String("config", "", "path to config file (required)")
	version := flag.Bool("version", false, "print version and exit")
	help := flag.Bool("help", false, "print help and exit")
	configInit := flag.String("config-init", "", "generate default config file at specified path")
	validate := flag.Bool("validate", false, "validate config file and exit")
	logLevel := flag.String("log-level", "", "override LOG_LEVEL (error, warn, info, debug, trace)")
	flag.Parse()

	if *logLevel != "" {
		if err := log.SetLogLevel(*logLevel); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	if *help {
		flag.Usage()
		return
	}
	if *version {
		fmt.Println(BuildVersion)
		return
	}
	if *configInit != "" {
		if err := generateDefaultConfig(*configInit); err != nil {
			log.LogError("Failed to generate config: %v", err)
			os.Exit(1)
		}
		fmt.Printf("Generated default config at: %s\n", *configInit)
		return
	}

	if *validate {
		if *conf == "" {
			fmt.Fprintf(os.Stderr, "Error: -config flag is required for validation\n")
			os.Exit(1)
		}
		if err := validateConfig(*conf); err != nil {
			os.Exit(1)
		}
		return
	}

	if *conf == "" {
		fmt.Fprintf(os.Stderr, "Error: -config flag is required\n")
		fmt.Fprintf(os.Stderr, "Run with -help for usage information\n")
		os.Exit(1)
	}

	cfg, err := config.Load(*conf)
	if err != nil {
		log.LogError("Failed to load config: %v", err)
		os.Exit(1)
	}

	log.LogInfoWithFields("main", "Starting authbridge", map[string]any{
		"version": BuildVersion,
		"config":  *conf,
	})

	ctx := context.Background()
	bridge, err := internal.NewAuthBridge(ctx, cfg)
	if err != nil {
		log.LogError("Failed to create auth bridge: %v", err)
		os.Exit(1)
	}

	if err := bridge.Run(ctx); err != nil {
		log.LogError("Auth bridge failed: %v", err)
		os.Exit(1)
	}
}
