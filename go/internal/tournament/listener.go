package tournament

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to reconcile active tournaments
	PingInterval     time.Duration
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		NotifyChannel:    StatusChannel,
		FallbackInterval: 30 * time.Second,
		PingInterval:     90 * time.Second,
	}
}

// ClockLifecycle is what the listener drives when tournaments change status.
type ClockLifecycle interface {
	EnsureClock(ctx context.Context, t models.Tournament) (*models.ClockRecord, error)
}

// Listener creates clocks for tournaments that become active and reports
// finished ones, using LISTEN/NOTIFY with a periodic reconcile as fallback.
type Listener struct {
	listener    *pq.Listener
	tournaments *App
	clocks      ClockLifecycle
	onFinished  func(uuid.UUID)
	clock       clockwork.Clock
	cfg         ListenerConfig
}

func NewListener(tournaments *App, clocks ClockLifecycle, onFinished func(uuid.UUID), cfg ListenerConfig) (*Listener, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for tournament status changes")

	lis := newListener(tournaments, clocks, onFinished, cfg)
	lis.listener = l
	return lis, nil
}

func newListener(tournaments *App, clocks ClockLifecycle, onFinished func(uuid.UUID), cfg ListenerConfig) *Listener {
	if onFinished == nil {
		onFinished = func(uuid.UUID) {}
	}
	return &Listener{
		tournaments: tournaments,
		clocks:      clocks,
		onFinished:  onFinished,
		clock:       clockwork.NewRealClock(),
		cfg:         cfg,
	}
}

func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	if err := l.reconcile(ctx); err != nil {
		log.Error().Err(err).Msg("initial reconcile failed")
	}

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note := <-l.listener.Notify:
			if note == nil {
				// nil notification means the connection was re-established; catch up.
				if err := l.reconcile(ctx); err != nil {
					log.Error().Err(err).Msg("failed to reconcile after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.reconcile(ctx); err != nil {
				log.Error().Err(err).Msg("failed to reconcile active tournaments")
			}
		case <-pingTicker.Chan():
			if err := l.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	if l.listener == nil {
		return nil
	}
	return l.listener.Close()
}

// handleNotification handles a pg notification whose payload is "<id>:<status>".
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, status, err := parseNote(extra)
	if err != nil {
		return err
	}

	switch status {
	case models.TournamentStatusActive:
		t, err := l.tournaments.GetTournament(ctx, id)
		if err != nil {
			return fmt.Errorf("failed to fetch activated tournament: %w", err)
		}
		if _, err := l.clocks.EnsureClock(ctx, *t); err != nil {
			return fmt.Errorf("failed to create clock: %w", err)
		}
		log.Info().Str("tournament_id", id.String()).Msg("clock ready for activated tournament")
	case models.TournamentStatusFinished, models.TournamentStatusCancelled:
		l.onFinished(id)
	}
	return nil
}

// reconcile makes sure every active tournament has a clock.
func (l *Listener) reconcile(ctx context.Context) error {
	active, err := l.tournaments.ListActiveTournaments(ctx)
	if err != nil {
		return fmt.Errorf("failed to list active tournaments: %w", err)
	}
	for _, t := range active {
		if _, err := l.clocks.EnsureClock(ctx, t); err != nil {
			log.Error().Err(err).Str("tournament_id", t.ID.String()).Msg("failed to ensure clock")
			continue
		}
	}
	return nil
}
