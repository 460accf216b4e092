package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/spf13/cobra"
)

func newSyncCmd(cfg *Config) *cobra.Command {
	var remote string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronize every active tournament clock once",
		Long: "Runs one SyncAll pass and exits, for cron or serverless schedulers. " +
			"With --remote the pass runs on a clockd server instead of in-process.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			report, err := runSync(cmd.Context(), cfg, remote)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			if err := enc.Encode(report); err != nil {
				return err
			}
			if report.Failed > 0 {
				return fmt.Errorf("%d of %d tournaments failed to sync", report.Failed, report.Processed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&remote, "remote", "", "base URL of a clockd server, e.g. http://localhost:8080")
	return cmd
}

func runSync(ctx context.Context, cfg *Config, remote string) (clock.SyncReport, error) {
	if remote != "" {
		client := clock.NewClient(&http.Client{Timeout: 30 * time.Second}, remote)
		return client.SyncAll(ctx)
	}

	services, err := setupServices(ctx, cfg)
	if err != nil {
		return clock.SyncReport{}, err
	}
	defer services.Close()
	return services.Clock.SyncAll(ctx)
}
