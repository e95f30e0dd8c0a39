// File: cmd/browse.go
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/webpilot/internal/agent"
	"github.com/xkilldash9x/webpilot/internal/browser"
	"github.com/xkilldash9x/webpilot/internal/decision"
)

// newBrowseCommand runs a single task synchronously and prints the result
// as JSON on stdout. Logs go to stderr, so the output stays pipeable.
func newBrowseCommand() *cobra.Command {
	var startURL string

	browseCmd := &cobra.Command{
		Use:   "browse <task>",
		Short: "Run one browser task to completion and print the result.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			decider, err := decision.NewGemini(ctx, cfg.Gemini, logger)
			if err != nil {
				return err
			}

			browsers := browser.NewManager(cfg.Browser, logger)
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
				defer cancel()
				browsers.Shutdown(shutdownCtx)
			}()

			tab, err := browsers.NewSession(ctx)
			if err != nil {
				return err
			}

			artifacts, err := agent.NewSession(cfg.Artifacts.Dir)
			if err != nil {
				return err
			}

			runner := agent.New(tab, decider, artifacts, agent.ConfigFrom(cfg), logger)
			defer runner.Teardown()

			result, err := runner.Run(ctx, args[0], startURL)
			if err != nil {
				return fmt.Errorf("browse failed: %w", err)
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}

	browseCmd.Flags().StringVarP(&startURL, "url", "u", "", "starting page (defaults to the configured search page)")
	return browseCmd
}
