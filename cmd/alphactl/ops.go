package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/alpha-machine/alphabot/internal/config"
	"github.com/alpha-machine/alphabot/internal/logbuf"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check daemon health",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		body, err := apiGet("/api/health")
		if err != nil {
			return err
		}
		fmt.Println(prettyJSON(body))
		return nil
	},
}

var logsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show buffered daemon logs",
	Args:  cobra.NoArgs,
	RunE:  runLogs,
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration helpers",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate <path>",
	Short: "Validate a config file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := config.Load(args[0]); err != nil {
			return fmt.Errorf("invalid: %w", err)
		}
		fmt.Println("config is valid")
		return nil
	},
}

var (
	logsSince      time.Duration
	logsLevel      string
	logsComponent  string
	logsInvocation string
	logsLimit      int
	logsRaw        bool
)

func init() {
	logsCmd.Flags().DurationVar(&logsSince, "since", 0, "Only entries newer than this (e.g. 15m)")
	logsCmd.Flags().StringVar(&logsLevel, "level", "", "Minimum level (debug|info|warn|error)")
	logsCmd.Flags().StringVar(&logsComponent, "component", "", "Only entries from this component")
	logsCmd.Flags().StringVar(&logsInvocation, "invocation", "", "Only entries for this invocation id")
	logsCmd.Flags().IntVar(&logsLimit, "limit", 200, "Max entries")
	logsCmd.Flags().BoolVar(&logsRaw, "json", false, "Print raw JSON")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(healthCmd, logsCmd, configCmd)
}

func runLogs(cmd *cobra.Command, args []string) error {
	body, err := apiGet("/api/logs?" + logsQuery(time.Now()).Encode())
	if err != nil {
		return err
	}
	if logsRaw {
		fmt.Println(prettyJSON(body))
		return nil
	}
	var entries []logbuf.Entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return fmt.Errorf("decode logs: %w", err)
	}
	printEntries(os.Stdout, entries)
	return nil
}

func logsQuery(now time.Time) url.Values {
	q := url.Values{}
	if logsLimit > 0 {
		q.Set("limit", strconv.Itoa(logsLimit))
	}
	if logsLevel != "" {
		q.Set("level", logsLevel)
	}
	if logsComponent != "" {
		q.Set("component", logsComponent)
	}
	if logsInvocation != "" {
		q.Set("invocation", logsInvocation)
	}
	if logsSince > 0 {
		q.Set("since", strconv.FormatInt(now.Add(-logsSince).UnixMilli(), 10))
	}
	return q
}

func printEntries(w io.Writer, entries []logbuf.Entry) {
	for _, e := range entries {
		line := fmt.Sprintf("%s %-5s", e.Time.Format("15:04:05.000"), e.Level)
		if e.Component != "" {
			line += " [" + e.Component + "]"
		}
		line += " " + e.Message
		if e.Invocation != "" {
			line += " invocation=" + e.Invocation
		}
		keys := make([]string, 0, len(e.Attrs))
		for k := range e.Attrs {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			line += fmt.Sprintf(" %s=%v", k, e.Attrs[k])
		}
		fmt.Fprintln(w, line)
	}
}
