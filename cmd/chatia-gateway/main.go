// ABOUTME: Entry point for chatia-gateway, the chat widget server
// ABOUTME: Dispatches serve, init, health and usage subcommands

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/chatia-gateway/internal/config"
	"github.com/2389/chatia-gateway/internal/gateway"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _           _   _
   ___| |__   __ _| |_(_) __ _
  / __| '_ \ / _' | __| |/ _' |
 | (__| | | | (_| | |_| | (_| |
  \___|_| |_|\__,_|\__|_|\__,_|
`

// getDataPath returns the path to the chatia data directory.
// Priority: XDG_DATA_HOME/chatia > ~/.local/share/chatia
func getDataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "chatia")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatia-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the gateway server")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  health   Check gateway health")
		fmt.Println("  usage    Show generation usage totals")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit(os.Stdin, os.Stdout)
	case "health":
		err = runHealth(ctx)
	case "usage":
		err = runUsage(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.DefaultPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)

	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	if !cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	green.Print("    ▶ ")
	model := cfg.Generation.Model
	if model == "" {
		model = "(default)"
	}
	fmt.Printf("Model:     %s\n", model)
	green.Print("    ▶ ")
	fmt.Printf("Widget:    %q", cfg.Widget.Title)
	if len(cfg.Widget.AllowedOrigins) > 0 {
		gray.Printf(" origins: %s", strings.Join(cfg.Widget.AllowedOrigins, ", "))
	}
	fmt.Println()

	if cfg.Tailscale.Enabled {
		green.Print("    ▶ ")
		fmt.Printf("Tailscale: ")
		cyan.Print(cfg.Tailscale.Hostname)
		if cfg.Tailscale.Funnel {
			yellow.Print(" [funnel]")
		}
		if cfg.Tailscale.Ephemeral {
			gray.Print(" (ephemeral)")
		}
		fmt.Println()
	}

	fmt.Println()

	logger.Info("starting chatia-gateway",
		"config", configPath,
		"http_addr", cfg.Server.HTTPAddr,
		"tailscale", cfg.Tailscale.Enabled,
	)

	gw, err := gateway.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating gateway: %w", err)
	}

	return gw.Run(ctx)
}

// gatewayURL returns the base URL the CLI talks to.
// Priority: CHATIA_GATEWAY_URL > http://<server.http_addr>
func gatewayURL(cfg *config.Config) string {
	if u := os.Getenv("CHATIA_GATEWAY_URL"); u != "" {
		return strings.TrimRight(u, "/")
	}
	return "http://" + cfg.Server.HTTPAddr
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL(cfg)+"/health/ready", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	fmt.Println("healthy:", strings.TrimSpace(string(body)))
	return nil
}

func runUsage(ctx context.Context) error {
	cfg, err := config.Load(config.DefaultPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Auth.AdminToken == "" {
		return fmt.Errorf("auth.admin_token is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, gatewayURL(cfg)+"/api/stats/usage", nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+cfg.Auth.AdminToken)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("usage request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&apiErr)
		return fmt.Errorf("usage request failed: status %d: %s", resp.StatusCode, apiErr.Error)
	}

	var usage gateway.UsageResponse
	if err := json.NewDecoder(resp.Body).Decode(&usage); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	printUsage(os.Stdout, &usage)
	return nil
}

func printUsage(w io.Writer, u *gateway.UsageResponse) {
	cyan := color.New(color.FgCyan)
	cyan.Fprintln(w, "  Usage")
	cyan.Fprintln(w, "  -----")
	fmt.Fprintf(w, "  Model:            %s\n", u.Model)
	fmt.Fprintf(w, "  Active sessions:  %d\n", u.ActiveSessions)
	fmt.Fprintf(w, "  Requests:         %d\n", u.Requests)
	fmt.Fprintf(w, "    replies:        %d\n", u.Replies)
	fmt.Fprintf(w, "    empty:          %d\n", u.Empty)
	if u.Failures > 0 {
		fmt.Fprintf(w, "    failures:       %s\n", color.RedString("%d", u.Failures))
	} else {
		fmt.Fprintf(w, "    failures:       0\n")
	}
	fmt.Fprintf(w, "  Tokens:           %d (prompt %d, reply %d)\n", u.TotalTokens, u.PromptTokens, u.ReplyTokens)
	fmt.Fprintf(w, "  Avg latency:      %.0f ms\n", u.AvgLatencyMs)
}
