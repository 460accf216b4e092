package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/clock/gateway"
	"github.com/mcdev12/tourneyclock/go/internal/clock/orchestrator"
	"github.com/mcdev12/tourneyclock/go/internal/lease"
	"github.com/mcdev12/tourneyclock/go/internal/tournament"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
)

const leasePrefix = "clock:tick:"

func newServeCmd(v *viper.Viper, cfg *Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, websocket fan-out and the ticking clock driver",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().String("port", "8080", "HTTP port")
	if err := v.BindPFlag("http.port", cmd.Flags().Lookup("port")); err != nil {
		panic(err)
	}
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	services, err := setupServices(ctx, cfg, connections)
	if err != nil {
		return err
	}
	defer services.Close()

	var leaser lease.Leaser = lease.Nop{}
	rdb, err := setupRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		return err
	}
	if rdb != nil {
		defer rdb.Close()
		leaser = lease.NewRedisLeaser(rdb, leasePrefix, "")
	}

	ticker, err := orchestrator.NewTicker(services.Clock, leaser, orchestrator.Config{
		Interval:   cfg.Tick.Interval,
		LeaseTTL:   cfg.Redis.LeaseTTL,
		MirrorSize: cfg.Tick.MirrorSize,
	})
	if err != nil {
		return err
	}

	listenerCfg := tournament.DefaultListenerConfig()
	listenerCfg.DatabaseURL = cfg.Database.DSN()
	listener, err := tournament.NewListener(services.Tournaments, services.Clock, ticker.Mirror().Evict, listenerCfg)
	if err != nil {
		return err
	}

	server := setupServer(
		cfg.HTTP.Port,
		clock.NewService(services.Clock),
		gateway.NewWebSocketHandler(connections, ticker),
	)

	log.Info().
		Str("port", cfg.HTTP.Port).
		Str("store_backend", cfg.Store.Backend).
		Dur("tick_interval", cfg.Tick.Interval).
		Bool("bus", services.Publisher != nil).
		Bool("redis_lease", rdb != nil).
		Msg("starting clockd")

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		connections.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return ticker.Run(gctx)
	})
	g.Go(func() error {
		return listener.Start(gctx)
	})
	g.Go(func() error {
		log.Info().Str("addr", server.Addr).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("HTTP server shutdown failed")
		}
		return nil
	})

	err = g.Wait()
	log.Info().Msg("clockd shutdown complete")
	return err
}
