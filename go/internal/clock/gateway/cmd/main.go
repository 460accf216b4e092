package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/clock/bus"
	"github.com/mcdev12/tourneyclock/go/internal/clock/gateway"
	"github.com/mcdev12/tourneyclock/go/internal/clock/orchestrator"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := loadGatewayConfig(os.Getenv("GATEWAY_CONFIG"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load gateway config")
	}

	log.Info().
		Str("nats_url", cfg.NATSURL).
		Str("clock_service_url", cfg.ClockServiceURL).
		Str("consumer", cfg.ConsumerName).
		Str("port", cfg.Port).
		Msg("starting clock gateway")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Fatal().Err(err).Msg("clock gateway failed")
	}
	log.Info().Msg("clock gateway shutdown complete")
}

func run(ctx context.Context, cfg *gatewayConfig) error {
	connections := gateway.NewConnectionManager(gateway.DefaultConnectionConfig())

	mirror, err := orchestrator.NewMirror(cfg.MirrorSize)
	if err != nil {
		return err
	}

	clockClient := clock.NewClient(&http.Client{Timeout: 10 * time.Second}, cfg.ClockServiceURL)
	relay := gateway.NewRelay(connections, mirror, gateway.SnapshotFunc(clockClient.Join))

	consumerCfg := bus.DefaultConsumerConfig()
	consumerCfg.URL = cfg.NATSURL
	consumerCfg.StreamName = cfg.Stream
	consumerCfg.ConsumerName = cfg.ConsumerName
	consumer, err := bus.NewConsumer(consumerCfg, relay.HandleEvent)
	if err != nil {
		return fmt.Errorf("failed to create event consumer: %w", err)
	}
	defer consumer.Stop()

	ws := gateway.NewWebSocketHandler(connections, relay)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws/clock", ws.HandleWebSocket)
	mux.HandleFunc("/ws/stats", ws.HandleStats)
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Port),
		Handler:           cors.AllowAll().Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		connections.Start(gctx)
		return nil
	})
	g.Go(func() error {
		return consumer.Start(gctx)
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
		return server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
