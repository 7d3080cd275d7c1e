package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/slack-go/slack"
	"github.com/spf13/cobra"

	"github.com/alpha-machine/alphabot/internal/app"
	"github.com/alpha-machine/alphabot/internal/dispatch"
	"github.com/alpha-machine/alphabot/internal/linear"
	"github.com/alpha-machine/alphabot/pkg/protocol"
)

var runCmd = &cobra.Command{
	Use:   "run <command> [text...]",
	Short: "Run one bot command locally and print the response",
	Long: `Run executes a slash command exactly as the daemon would, without Slack.

  alphactl run chat what did acme ask for last week
  alphactl run create "onboarding flow for acme" --user U123
  alphactl run summarize client acme

Selections and pending confirmations are kept in the configured state
store; use a sqlite or redis backend to carry them between invocations.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runRun,
}

var confirmCmd = &cobra.Command{
	Use:   "confirm <yes|no>",
	Short: "Answer the pending ticket confirmation for --user",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfirm,
}

var (
	runUser    string
	runChannel string
	runJSON    bool
)

func init() {
	for _, c := range []*cobra.Command{runCmd, confirmCmd} {
		c.Flags().StringVar(&runUser, "user", envOr("ALPHABOT_CLI_USER", "alphactl"), "User id the command runs as")
		c.Flags().StringVar(&runChannel, "channel", "", "Channel id (enables Slack history in chat)")
		c.Flags().BoolVar(&runJSON, "json", false, "Print the Slack message payload as JSON")
		rootCmd.AddCommand(c)
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) dispatch.Response {
		return a.Dispatcher.Dispatch(ctx, protocol.Invocation{
			Command:   args[0],
			Text:      strings.Join(args[1:], " "),
			UserID:    runUser,
			ChannelID: runChannel,
		})
	})
}

func runConfirm(cmd *cobra.Command, args []string) error {
	var actionID string
	switch strings.ToLower(args[0]) {
	case "yes", "y":
		actionID = dispatch.ActionCreateYes
	case "no", "n":
		actionID = dispatch.ActionCreateNo
	default:
		return fmt.Errorf("answer must be yes or no, got %q", args[0])
	}
	return withApp(cmd.Context(), func(ctx context.Context, a *app.App) dispatch.Response {
		return a.Dispatcher.HandleAction(ctx, protocol.Action{
			ActionID:  actionID,
			UserID:    runUser,
			ChannelID: runChannel,
		})
	})
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) dispatch.Response) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	resp := fn(ctx, a)
	if runJSON {
		out, err := json.MarshalIndent(resp.Msg(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		printResponse(os.Stdout, resp)
	}
	if resp.Kind == dispatch.Failure {
		return fmt.Errorf("command failed")
	}
	return nil
}

// printResponse renders a response for a terminal: the text, then any
// Block Kit content flattened to lines.
func printResponse(w io.Writer, resp dispatch.Response) {
	if resp.Text != "" {
		fmt.Fprintln(w, resp.Text)
	}
	for _, b := range resp.Blocks {
		switch b := b.(type) {
		case *slack.SectionBlock:
			if b.Text != nil && b.Text.Text != resp.Text {
				fmt.Fprintln(w, b.Text.Text)
			}
			if b.Accessory != nil && b.Accessory.MultiSelectElement != nil {
				printOptions(w, b.Accessory.MultiSelectElement)
			}
		case *slack.ContextBlock:
			for _, el := range b.ContextElements.Elements {
				if t, ok := el.(*slack.TextBlockObject); ok {
					fmt.Fprintln(w, t.Text)
				}
			}
		case *slack.ActionBlock:
			for _, el := range b.Elements.ElementSet {
				switch el := el.(type) {
				case *slack.ButtonBlockElement:
					fmt.Fprintf(w, "  [%s] %s\n", el.Text.Text, el.ActionID)
				case *slack.MultiSelectBlockElement:
					printOptions(w, el)
				}
			}
		}
	}
	if resp.Kind == dispatch.Pending {
		fmt.Fprintf(w, "\nReply with: alphactl confirm yes|no --user %s\n", runUser)
	}
}

func printOptions(w io.Writer, sel *slack.MultiSelectBlockElement) {
	for _, opt := range sel.Options {
		fmt.Fprintf(w, "  - %s (%s)\n", opt.Text.Text, opt.Value)
	}
}

var issueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Linear issue maintenance",
}

var issueDeleteCmd = &cobra.Command{
	Use:   "delete <id>...",
	Short: "Delete issues created in test mode",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIssueDelete,
}

func init() {
	issueCmd.AddCommand(issueDeleteCmd)
	rootCmd.AddCommand(issueCmd)
}

func runIssueDelete(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := app.Build(ctx, cfg, newLogger())
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	for _, id := range args {
		if err := a.Linear.DeleteIssue(ctx, id); err != nil {
			if errors.Is(err, linear.ErrTestModeDisabled) {
				return err
			}
			fmt.Fprintf(os.Stderr, "%s: %v\n", id, err)
			failed++
			continue
		}
		fmt.Printf("deleted %s\n", id)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d deletions failed", failed, len(args))
	}
	return nil
}
