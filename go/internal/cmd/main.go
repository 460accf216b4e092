package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("clockd failed")
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := newViper()
	cfg := &Config{}
	var configPath string

	root := &cobra.Command{
		Use:           "clockd",
		Short:         "Tournament clock synchronization engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := loadConfig(v, configPath)
			if err != nil {
				return err
			}
			if err := setupLogging(loaded.Log.Level, loaded.Log.Pretty); err != nil {
				return err
			}
			*cfg = *loaded
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "optional YAML config file")
	root.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().String("store-backend", backendPostgres, "clock store backend (postgres or memory)")
	root.PersistentFlags().String("nats-url", "", "NATS URL for clock events; empty disables the bus")
	for key, flag := range map[string]string{
		"log.level":     "log-level",
		"store.backend": "store-backend",
		"nats.url":      "nats-url",
	} {
		if err := v.BindPFlag(key, root.PersistentFlags().Lookup(flag)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(
		newServeCmd(v, cfg),
		newSyncCmd(cfg),
		newSeedCmd(cfg),
	)
	return root
}
