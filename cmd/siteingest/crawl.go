package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/siteingest/internal/app"
)

func newCrawlCmd() *cobra.Command {
	var (
		maxPages int
		userID   string
	)
	cmd := &cobra.Command{
		Use:   "crawl <url>",
		Short: "Crawl and ingest one site, then print the final task snapshot",
		Long: `Runs the same pipeline the service runs for POST /v1/crawls, on the
calling goroutine, and prints the terminal task snapshot as JSON. The exit
status is non-zero when the task ends in the error state.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := resolveRuntime(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("max-pages") {
				maxPages = rt.cfg.Crawler.MaxPagesDefault
			}

			application, err := app.New(cmd.Context(), rt.cfg, rt.logger, app.Overrides{})
			if err != nil {
				return fmt.Errorf("initialize application services: %w", err)
			}
			defer application.Close(context.WithoutCancel(cmd.Context()))

			task, runErr := application.RunOnce(cmd.Context(), userID, args[0], maxPages)
			if task.ID != "" {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(task); err != nil {
					return fmt.Errorf("write snapshot: %w", err)
				}
			}
			if runErr != nil {
				rt.logger.Warn("crawl finished with error", zap.Error(runErr))
				return fmt.Errorf("crawl %s: %w", args[0], runErr)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 0, "maximum pages to crawl (0 for no limit)")
	cmd.Flags().StringVar(&userID, "user", "cli", "user id that owns the collection")
	return cmd
}
