package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/clock/bus"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/mcdev12/tourneyclock/go/internal/tournament"
	"github.com/rs/zerolog/log"
)

type Services struct {
	DB          *sql.DB
	Pool        *pgxpool.Pool
	Tournaments *tournament.App
	Clock       *clock.App
	Publisher   *bus.Publisher
}

// setupServices wires database → repository → app. Extra notifiers (the
// websocket fan-out in serve) are combined with the bus publisher.
func setupServices(ctx context.Context, cfg *Config, extra ...events.Notifier) (*Services, error) {
	database, err := setupDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	s := &Services{DB: database}

	var clockRepo clock.ClockRepository
	switch cfg.Store.Backend {
	case backendMemory:
		log.Warn().Msg("clock records kept in memory; state is lost on restart")
		clockRepo = clock.NewMemoryRepository()
	default:
		pool, err := setupPool(ctx, cfg.Database)
		if err != nil {
			s.Close()
			return nil, err
		}
		s.Pool = pool
		clockRepo = clock.NewRepository(pool)
	}

	notifiers := events.Multi(extra)
	if cfg.NATS.URL != "" {
		natsCfg := bus.DefaultJetStreamConfig()
		natsCfg.URL = cfg.NATS.URL
		natsCfg.StreamName = cfg.NATS.Stream
		publisher, err := bus.NewPublisher(natsCfg)
		if err != nil {
			s.Close()
			return nil, fmt.Errorf("failed to create event publisher: %w", err)
		}
		s.Publisher = publisher
		notifiers = append(notifiers, publisher)
	}

	s.Tournaments = tournament.NewApp(tournament.NewRepository(database))
	s.Clock = clock.NewApp(clockRepo, s.Tournaments, notifiers, clock.Config{
		AnomalyThreshold: cfg.Tick.AnomalyThreshold,
		StoreTimeout:     cfg.Store.Timeout,
	})
	return s, nil
}

func (s *Services) Close() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Pool != nil {
		s.Pool.Close()
	}
	if s.DB != nil {
		if err := s.DB.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close database")
		}
	}
}
