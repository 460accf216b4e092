package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourneyclock/go/internal/clock"
	"github.com/mcdev12/tourneyclock/go/internal/lease"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// Syncer defines what the ticker needs from the clock app.
type Syncer interface {
	ListActive(ctx context.Context) ([]models.Tournament, error)
	SyncTournament(ctx context.Context, t models.Tournament) (*clock.SyncResult, error)
	Attach(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error)
	OnFinished(fn func(uuid.UUID))
}

// Config tunes the ticking driver.
type Config struct {
	Interval    time.Duration
	LeaseTTL    time.Duration // should be a little under Interval
	MirrorSize  int
	JoinTimeout time.Duration // bounds a mirror-miss load shared by concurrent joins
}

// DefaultConfig returns a 1 Hz ticker.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Second,
		LeaseTTL:    900 * time.Millisecond,
		MirrorSize:  DefaultMirrorSize,
		JoinTimeout: 5 * time.Second,
	}
}

// TickReport summarises one pass over the active tournaments.
type TickReport struct {
	Processed int
	Skipped   int
	Failed    int
	Finished  int
}

// Ticker is the long-lived synchronization driver. One loop walks every
// active tournament in sequence on each tick.
type Ticker struct {
	app        Syncer
	mirror     *Mirror
	leaser     lease.Leaser
	clock      clockwork.Clock
	cfg        Config
	joins      singleflight.Group
	instanceID string
}

// Option configures a Ticker.
type Option func(*Ticker)

// WithClock swaps the time source driving the tick loop.
func WithClock(c clockwork.Clock) Option {
	return func(t *Ticker) { t.clock = c }
}

// NewTicker creates a ticker and hooks mirror eviction into the app.
func NewTicker(app Syncer, leaser lease.Leaser, cfg Config, opts ...Option) (*Ticker, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = cfg.Interval * 9 / 10
	}
	if cfg.JoinTimeout <= 0 {
		cfg.JoinTimeout = DefaultConfig().JoinTimeout
	}
	if leaser == nil {
		leaser = lease.Nop{}
	}
	mirror, err := NewMirror(cfg.MirrorSize)
	if err != nil {
		return nil, err
	}

	t := &Ticker{
		app:        app,
		mirror:     mirror,
		leaser:     leaser,
		clock:      clockwork.NewRealClock(),
		cfg:        cfg,
		instanceID: uuid.New().String()[:8], // short ID for logging
	}
	for _, opt := range opts {
		opt(t)
	}
	app.OnFinished(mirror.Evict)
	return t, nil
}

// Mirror exposes the in-memory mirror.
func (t *Ticker) Mirror() *Mirror {
	return t.mirror
}

// Run ticks until ctx is cancelled.
func (t *Ticker) Run(ctx context.Context) error {
	log.Info().
		Str("instance_id", t.instanceID).
		Dur("interval", t.cfg.Interval).
		Msg("clock ticker started")

	ticker := t.clock.NewTicker(t.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("instance_id", t.instanceID).Msg("clock ticker shutting down")
			return nil
		case <-ticker.Chan():
			t.Tick(ctx)
		}
	}
}

// Tick synchronizes every active tournament once. Failures are isolated to
// the tournament they happen on.
func (t *Ticker) Tick(ctx context.Context) TickReport {
	var report TickReport

	active, err := t.app.ListActive(ctx)
	if err != nil {
		log.Error().Err(err).Str("instance_id", t.instanceID).Msg("failed to list active tournaments")
		return report
	}

	for _, tour := range active {
		if ctx.Err() != nil {
			break
		}
		logger := log.With().Str("tournament_id", tour.ID.String()).Str("instance_id", t.instanceID).Logger()

		held, err := t.leaser.Acquire(ctx, tour.ID.String(), t.cfg.LeaseTTL)
		if err != nil {
			// The CAS write still protects the record; carry on without the lease.
			logger.Warn().Err(err).Msg("lease unavailable, ticking anyway")
			held = true
		}
		if !held {
			report.Skipped++
			continue
		}

		report.Processed++
		res, err := t.app.SyncTournament(ctx, tour)
		if err != nil {
			report.Failed++
			logger.Error().Err(err).Msg("failed to sync clock")
			continue
		}

		if res.Kind == clock.TransitionFinished || res.Snapshot.Finished {
			if res.Kind == clock.TransitionFinished {
				report.Finished++
			}
			t.mirror.Evict(tour.ID)
			if err := t.leaser.Release(ctx, tour.ID.String()); err != nil {
				logger.Warn().Err(err).Msg("failed to release lease")
			}
			continue
		}
		t.mirror.Put(res.Snapshot)
	}

	if report.Failed > 0 {
		log.Warn().
			Int("processed", report.Processed).
			Int("failed", report.Failed).
			Msg("tick finished with failures")
	}
	return report
}

// Snapshot serves a joining subscriber from the mirror, falling back to the
// store (creating the clock if needed) on a miss. It does not broadcast
// clock-sync; the caller delivers the snapshot to the joining subscriber.
func (t *Ticker) Snapshot(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	if snap, ok := t.mirror.Get(id); ok {
		return &snap, nil
	}

	// The load is shared by every join waiting on id, so it must outlive
	// the first caller's request.
	v, err, _ := t.joins.Do(id.String(), func() (any, error) {
		jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.cfg.JoinTimeout)
		defer cancel()
		snap, err := t.app.Attach(jctx, id)
		if err != nil {
			return nil, err
		}
		t.mirror.Put(*snap)
		return snap, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load clock: %w", err)
	}
	snap := *v.(*models.ClockSnapshot)
	return &snap, nil
}
