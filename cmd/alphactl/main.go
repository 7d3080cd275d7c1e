package main

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/alpha-machine/alphabot/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "alphactl",
	Short: "alphabot operator CLI",
	Long: `alphactl runs bot commands locally against the configured stores and
talks to a running alphabotd over its HTTP API.

Local commands (run, confirm) read the same configuration as the daemon:
a JSON file via --config, or the environment.`,
	SilenceUsage: true,
}

var (
	configPath string
	verbose    bool
	apiURL     string
	apiKey     string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config JSON file (default: environment only)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose logging")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", envOr("ALPHABOT_API_URL", "http://localhost:8080"), "Daemon URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("ALPHABOT_API_KEY"), "API key for authentication")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func apiGet(path string) ([]byte, error) {
	req, err := http.NewRequest("GET", apiURL+path, nil)
	if err != nil {
		return nil, err
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

func prettyJSON(data []byte) string {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	out, _ := json.MarshalIndent(v, "", "  ")
	return string(out)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
