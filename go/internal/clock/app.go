package clock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/tourneyclock/go/internal/clock/events"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
)

// ClockRepository defines what the clock app layer needs from clock persistence.
// SaveClock only applies when the stored version still equals expectedVersion
// and returns ErrConflict otherwise.
type ClockRepository interface {
	LoadClock(ctx context.Context, tournamentID uuid.UUID) (*models.ClockRecord, error)
	SaveClock(ctx context.Context, tournamentID uuid.UUID, expectedVersion int64, patch models.ClockPatch) (*models.ClockRecord, error)
	CreateClockIfAbsent(ctx context.Context, initial models.ClockRecord) (*models.ClockRecord, error)
	DeleteClock(ctx context.Context, tournamentID uuid.UUID) error
}

// Tournaments defines what the clock app needs from the tournament collaborator.
// MarkFinished returns ErrInvalidState when the tournament is no longer active.
type Tournaments interface {
	GetTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error)
	ListActiveTournaments(ctx context.Context) ([]models.Tournament, error)
	MarkFinished(ctx context.Context, id uuid.UUID, endedAt time.Time) error
}

// Config tunes the clock app.
type Config struct {
	AnomalyThreshold time.Duration
	StoreTimeout     time.Duration
	CommandRetries   int
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		AnomalyThreshold: AnomalyThreshold,
		StoreTimeout:     3 * time.Second,
		CommandRetries:   3,
	}
}

// SyncResult is the outcome of one synchronization step.
type SyncResult struct {
	Snapshot models.ClockSnapshot
	Kind     TransitionKind
}

// SyncReport summarises a SyncAll batch.
type SyncReport struct {
	Processed int               `json:"processed"`
	Advanced  int               `json:"advanced"`
	Finished  int               `json:"finished"`
	Failed    int               `json:"failed"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// Option configures an App.
type Option func(*App)

// WithClock swaps the time source, typically for a clockwork.FakeClock.
func WithClock(c clockwork.Clock) Option {
	return func(a *App) { a.clock = c }
}

// App handles clock business logic. Every operation rebuilds state from the
// repository, so the same App serves request-scoped calls and the ticker.
type App struct {
	repo        ClockRepository
	tournaments Tournaments
	notifier    events.Notifier
	clock       clockwork.Clock
	cfg         Config

	hooksMu    sync.RWMutex
	onFinished []func(uuid.UUID)
}

// NewApp creates a new clock App
func NewApp(repo ClockRepository, tournaments Tournaments, notifier events.Notifier, cfg Config, opts ...Option) *App {
	if notifier == nil {
		notifier = events.Nop{}
	}
	if cfg.AnomalyThreshold <= 0 {
		cfg.AnomalyThreshold = AnomalyThreshold
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = DefaultConfig().StoreTimeout
	}
	if cfg.CommandRetries <= 0 {
		cfg.CommandRetries = DefaultConfig().CommandRetries
	}
	a := &App{
		repo:        repo,
		tournaments: tournaments,
		notifier:    notifier,
		clock:       clockwork.NewRealClock(),
		cfg:         cfg,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// OnFinished registers a callback run after a tournament's clock is retired.
func (a *App) OnFinished(fn func(uuid.UUID)) {
	a.hooksMu.Lock()
	defer a.hooksMu.Unlock()
	a.onFinished = append(a.onFinished, fn)
}

// Join returns the current snapshot, creating the clock from the first level
// if the tournament has none yet, and emits clock-sync.
func (a *App) Join(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	snap, err := a.Attach(ctx, id)
	if err != nil {
		return nil, err
	}
	a.emitSnapshot(ctx, events.TypeClockSync, *snap)
	return snap, nil
}

// Attach is Join without the clock-sync broadcast. The websocket gateway uses
// it and sends clock-sync to the joining connection only.
func (a *App) Attach(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	t, err := a.activeTournament(ctx, id)
	if err != nil {
		return nil, err
	}

	res, err := a.SyncTournament(ctx, *t)
	if err != nil {
		return nil, err
	}
	if res.Snapshot.Finished && res.Kind != TransitionFinished {
		return nil, fmt.Errorf("%w: tournament %s finished while joining", ErrInvalidState, id)
	}
	return &res.Snapshot, nil
}

// GetState returns the clock as it stands now without writing anything.
func (a *App) GetState(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	t, err := a.getTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	rec, err := a.load(ctx, id)
	if err != nil {
		return nil, err
	}

	now := a.clock.Now().UTC()
	el := recompute(rec.TimeRemainingSeconds, rec.LastUpdated, rec.IsPaused, now, a.cfg.AnomalyThreshold)
	view := *rec
	view.TimeRemainingSeconds = el.Remaining

	snap := models.NewClockSnapshot(view, t.BlindStructure, now)
	snap.Finished = t.Status == models.TournamentStatusFinished
	return &snap, nil
}

// Pause freezes the clock.
func (a *App) Pause(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	t, rec, changed, err := a.mutate(ctx, id, "pause", func(_ *models.Tournament, rec models.ClockRecord, now time.Time) (models.ClockRecord, bool, error) {
		next, changed := Pause(rec, now)
		return next, changed, nil
	})
	if err != nil {
		return nil, err
	}
	snap := a.snapshot(*rec, t)
	if changed {
		log.Info().Str("tournament_id", id.String()).Int("remaining", rec.TimeRemainingSeconds).Msg("clock paused")
		a.emitSnapshot(ctx, events.TypePauseToggled, snap)
	}
	return &snap, nil
}

// Resume restarts the clock from the stored remaining time.
func (a *App) Resume(ctx context.Context, id uuid.UUID) (*models.ClockSnapshot, error) {
	t, rec, changed, err := a.mutate(ctx, id, "resume", func(_ *models.Tournament, rec models.ClockRecord, now time.Time) (models.ClockRecord, bool, error) {
		next, changed := Resume(rec, now)
		return next, changed, nil
	})
	if err != nil {
		return nil, err
	}
	snap := a.snapshot(*rec, t)
	if changed {
		log.Info().Str("tournament_id", id.String()).Int("total_pause", rec.TotalPauseTimeSeconds).Msg("clock resumed")
		a.emitSnapshot(ctx, events.TypePauseToggled, snap)
	}
	return &snap, nil
}

// AdjustTime sets the remaining time of the current level.
func (a *App) AdjustTime(ctx context.Context, id uuid.UUID, seconds int) (*models.ClockSnapshot, error) {
	if seconds < 0 || seconds > MaxAdjustSeconds {
		return nil, validationf("time_remaining_seconds must be between 0 and %d, got %d", MaxAdjustSeconds, seconds)
	}
	t, rec, _, err := a.mutate(ctx, id, "adjust time", func(_ *models.Tournament, rec models.ClockRecord, now time.Time) (models.ClockRecord, bool, error) {
		next, err := AdjustTime(rec, seconds, now)
		return next, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	snap := a.snapshot(*rec, t)
	log.Info().Str("tournament_id", id.String()).Int("remaining", seconds).Msg("clock time adjusted")
	a.emitSnapshot(ctx, events.TypeTimeAdjusted, snap)
	return &snap, nil
}

// ChangeLevel jumps to an arbitrary level of the blind structure.
func (a *App) ChangeLevel(ctx context.Context, id uuid.UUID, level int) (*models.ClockSnapshot, error) {
	if level < 1 {
		return nil, validationf("level must be positive, got %d", level)
	}
	var target models.BlindLevel
	t, rec, _, err := a.mutate(ctx, id, "change level", func(t *models.Tournament, rec models.ClockRecord, now time.Time) (models.ClockRecord, bool, error) {
		if t.BlindStructure.Len() == 0 {
			return rec, false, fmt.Errorf("%w: tournament %s has no blind structure", ErrNotFound, t.ID)
		}
		next, lvl, err := ChangeLevel(rec, t.BlindStructure, level, now)
		target = lvl
		return next, err == nil, err
	})
	if err != nil {
		return nil, err
	}
	snap := a.snapshot(*rec, t)
	log.Info().Str("tournament_id", id.String()).Int("level", level).Bool("paused", rec.IsPaused).Msg("clock level changed")
	a.emitLevelChanged(ctx, target, snap)
	return &snap, nil
}

// Sync runs one driver step for a single tournament.
func (a *App) Sync(ctx context.Context, id uuid.UUID) (*SyncResult, error) {
	t, err := a.activeTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.SyncTournament(ctx, *t)
}

// SyncTournament runs one driver step for an already loaded active tournament.
// It is the single code path shared by the ticker and request-scoped calls.
// t may be stale: a tournament finished by another driver since it was listed
// reports a finished snapshot and its clock is not recreated.
func (a *App) SyncTournament(ctx context.Context, t models.Tournament) (*SyncResult, error) {
	rec, err := a.load(ctx, t.ID)
	if errors.Is(err, ErrNotFound) {
		var fresh *models.Tournament
		fresh, rec, err = a.ensureActive(ctx, t.ID)
		if errors.Is(err, ErrInvalidState) {
			log.Debug().Str("tournament_id", t.ID.String()).Msg("tournament no longer active, not recreating clock")
			snap := models.ClockSnapshot{TournamentID: t.ID, Finished: true, ServerTime: a.clock.Now().UTC()}
			return &SyncResult{Snapshot: snap, Kind: TransitionNone}, nil
		}
		if err == nil {
			t = *fresh
		}
	}
	if err != nil {
		return nil, err
	}
	return a.step(ctx, t, *rec)
}

// SyncAll synchronizes every active tournament in sequence. A failure on one
// tournament is recorded in the report and never stops the batch.
func (a *App) SyncAll(ctx context.Context) (SyncReport, error) {
	report := SyncReport{Errors: map[string]string{}}

	active, err := a.listActive(ctx)
	if err != nil {
		return report, err
	}

	for _, t := range active {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Processed++
		res, err := a.SyncTournament(ctx, t)
		if err != nil {
			report.Failed++
			report.Errors[t.ID.String()] = err.Error()
			log.Error().Err(err).Str("tournament_id", t.ID.String()).Msg("failed to sync clock")
			continue
		}
		switch res.Kind {
		case TransitionLevelUp:
			report.Advanced++
		case TransitionFinished:
			report.Finished++
		}
	}

	log.Info().
		Int("processed", report.Processed).
		Int("advanced", report.Advanced).
		Int("finished", report.Finished).
		Int("failed", report.Failed).
		Msg("synced active tournaments")
	return report, nil
}

// ListActive returns the tournaments the driver should tick.
func (a *App) ListActive(ctx context.Context) ([]models.Tournament, error) {
	return a.listActive(ctx)
}

// EnsureClock creates the initial clock for a tournament that became active.
// The status is re-read, so a listed copy that has since finished is refused.
func (a *App) EnsureClock(ctx context.Context, t models.Tournament) (*models.ClockRecord, error) {
	if t.Status != models.TournamentStatusActive {
		return nil, fmt.Errorf("%w: tournament %s is %s", ErrInvalidState, t.ID, t.Status)
	}
	_, rec, err := a.ensureActive(ctx, t.ID)
	return rec, err
}

// step applies the state machine and persists the result with a CAS write.
func (a *App) step(ctx context.Context, t models.Tournament, rec models.ClockRecord) (*SyncResult, error) {
	now := a.clock.Now().UTC()
	out := advance(rec, t.BlindStructure, now, a.cfg.AnomalyThreshold)
	logger := log.With().Str("tournament_id", t.ID.String()).Int("level", rec.CurrentLevel).Logger()

	if out.Kind == TransitionNone {
		return &SyncResult{Snapshot: models.NewClockSnapshot(rec, t.BlindStructure, now), Kind: TransitionNone}, nil
	}

	saved, err := a.save(ctx, rec, out.Record)
	if errors.Is(err, ErrConflict) {
		logger.Debug().Str("transition", string(out.Kind)).Msg("clock moved concurrently, skipping step")
		return a.afterLostRace(ctx, t, now)
	}
	if err != nil {
		return nil, err
	}

	snap := models.NewClockSnapshot(*saved, t.BlindStructure, now)
	switch out.Kind {
	case TransitionRebased:
		logger.Warn().Int("elapsed", out.Elapsed.Seconds).Msg("clock gap exceeds anomaly threshold, rebasing")
		a.emitSnapshot(ctx, events.TypeClockUpdate, snap)
	case TransitionTick:
		a.emitSnapshot(ctx, events.TypeClockUpdate, snap)
	case TransitionStalled:
		logger.Warn().Msg("level due but blind structure unavailable, holding at zero")
	case TransitionLevelUp:
		logger.Info().Int("new_level", saved.CurrentLevel).Int("remaining", saved.TimeRemainingSeconds).Msg("clock advanced to next level")
		a.emitLevelChanged(ctx, *out.Level, snap)
	case TransitionFinished:
		if err := a.finish(ctx, t, *saved, now); err != nil {
			return nil, err
		}
		snap.Finished = true
	}
	return &SyncResult{Snapshot: snap, Kind: out.Kind}, nil
}

// afterLostRace reports the state the winning writer left behind.
func (a *App) afterLostRace(ctx context.Context, t models.Tournament, now time.Time) (*SyncResult, error) {
	fresh, err := a.load(ctx, t.ID)
	if errors.Is(err, ErrNotFound) {
		snap := models.ClockSnapshot{TournamentID: t.ID, Finished: true, ServerTime: now}
		return &SyncResult{Snapshot: snap, Kind: TransitionNone}, nil
	}
	if err != nil {
		return nil, err
	}
	return &SyncResult{Snapshot: models.NewClockSnapshot(*fresh, t.BlindStructure, now), Kind: TransitionNone}, nil
}

// finish ends the tournament after this writer won the terminal CAS.
func (a *App) finish(ctx context.Context, t models.Tournament, rec models.ClockRecord, now time.Time) error {
	tctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	err := a.tournaments.MarkFinished(tctx, t.ID, now)
	cancel()
	if errors.Is(err, ErrInvalidState) {
		log.Debug().Str("tournament_id", t.ID.String()).Msg("tournament already finished elsewhere")
		a.runFinishedHooks(t.ID)
		return nil
	}
	if err != nil {
		return transient("mark tournament finished", err)
	}

	dctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	if err := a.repo.DeleteClock(dctx, t.ID); err != nil {
		log.Error().Err(err).Str("tournament_id", t.ID.String()).Msg("failed to delete finished clock")
	}
	cancel()

	log.Info().Str("tournament_id", t.ID.String()).Int("final_level", rec.CurrentLevel).Msg("tournament finished")
	ev, err := events.TournamentEnded(t.ID, rec.Version, now, rec.CurrentLevel)
	if err == nil {
		a.emit(ctx, ev)
	}
	a.runFinishedHooks(t.ID)
	return nil
}

type mutation func(t *models.Tournament, rec models.ClockRecord, now time.Time) (models.ClockRecord, bool, error)

// mutate applies an administrator command with a CAS write, reloading and
// recomputing when another writer got there first.
func (a *App) mutate(ctx context.Context, id uuid.UUID, op string, fn mutation) (*models.Tournament, *models.ClockRecord, bool, error) {
	t, err := a.activeTournament(ctx, id)
	if err != nil {
		return nil, nil, false, err
	}

	var lastErr error
	for attempt := 0; attempt < a.cfg.CommandRetries; attempt++ {
		rec, err := a.load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// The record is deleted only after the tournament is marked
			// finished, so a fresh status read settles whether to recreate it.
			var fresh *models.Tournament
			fresh, rec, err = a.ensureActive(ctx, id)
			if err == nil {
				t = fresh
			}
		}
		if err != nil {
			return nil, nil, false, err
		}

		next, changed, err := fn(t, *rec, a.clock.Now().UTC())
		if err != nil {
			return nil, nil, false, err
		}
		if !changed {
			return t, rec, false, nil
		}

		saved, err := a.save(ctx, *rec, next)
		if errors.Is(err, ErrConflict) {
			lastErr = err
			log.Debug().Str("tournament_id", id.String()).Str("op", op).Int("attempt", attempt+1).Msg("clock moved concurrently, retrying command")
			continue
		}
		if err != nil {
			return nil, nil, false, err
		}
		return t, saved, true, nil
	}
	return nil, nil, false, fmt.Errorf("failed to %s after %d attempts: %w", op, a.cfg.CommandRetries, lastErr)
}

func (a *App) activeTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	t, err := a.getTournament(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.Status != models.TournamentStatusActive {
		return nil, fmt.Errorf("%w: tournament %s is %s", ErrInvalidState, id, t.Status)
	}
	return t, nil
}

func (a *App) getTournament(ctx context.Context, id uuid.UUID) (*models.Tournament, error) {
	if id == uuid.Nil {
		return nil, validationf("tournament id is required")
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	t, err := a.tournaments.GetTournament(ctx, id)
	if err != nil {
		return nil, transient("get tournament", err)
	}
	return t, nil
}

func (a *App) listActive(ctx context.Context) ([]models.Tournament, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	active, err := a.tournaments.ListActiveTournaments(ctx)
	if err != nil {
		return nil, transient("list active tournaments", err)
	}
	return active, nil
}

func (a *App) load(ctx context.Context, id uuid.UUID) (*models.ClockRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	rec, err := a.repo.LoadClock(ctx, id)
	if err != nil {
		return nil, transient("load clock", err)
	}
	return rec, nil
}

// ensureActive re-reads the tournament and creates its initial clock only
// while it is still active.
func (a *App) ensureActive(ctx context.Context, id uuid.UUID) (*models.Tournament, *models.ClockRecord, error) {
	t, err := a.activeTournament(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rec, err := a.ensure(ctx, *t)
	if err != nil {
		return nil, nil, err
	}
	return t, rec, nil
}

func (a *App) ensure(ctx context.Context, t models.Tournament) (*models.ClockRecord, error) {
	initial, err := InitialRecord(t, a.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("%w: tournament %s has no blind structure", ErrNotFound, t.ID)
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	rec, err := a.repo.CreateClockIfAbsent(ctx, initial)
	if err != nil {
		return nil, transient("create clock", err)
	}
	return rec, nil
}

func (a *App) save(ctx context.Context, prev, next models.ClockRecord) (*models.ClockRecord, error) {
	patch := models.Diff(prev, next)
	if patch.IsEmpty() {
		return &prev, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.cfg.StoreTimeout)
	defer cancel()
	saved, err := a.repo.SaveClock(ctx, prev.TournamentID, prev.Version, patch)
	if err != nil {
		return nil, transient("save clock", err)
	}
	return saved, nil
}

func (a *App) snapshot(rec models.ClockRecord, t *models.Tournament) models.ClockSnapshot {
	return models.NewClockSnapshot(rec, t.BlindStructure, a.clock.Now())
}

func (a *App) emitSnapshot(ctx context.Context, typ events.Type, snap models.ClockSnapshot) {
	ev, err := events.Snapshot(typ, snap)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(typ)).Msg("failed to build clock event")
		return
	}
	a.emit(ctx, ev)
}

func (a *App) emitLevelChanged(ctx context.Context, level models.BlindLevel, snap models.ClockSnapshot) {
	ev, err := events.LevelChanged(level, snap)
	if err != nil {
		log.Error().Err(err).Msg("failed to build level-changed event")
		return
	}
	a.emit(ctx, ev)
}

// emit never fails the caller; delivery problems are logged.
func (a *App) emit(ctx context.Context, ev events.Event) {
	if err := a.notifier.Notify(ctx, ev); err != nil {
		log.Error().
			Err(err).
			Str("tournament_id", ev.TournamentID.String()).
			Str("event_type", string(ev.Type)).
			Msg("failed to notify subscribers")
	}
}

func (a *App) runFinishedHooks(id uuid.UUID) {
	a.hooksMu.RLock()
	hooks := append([]func(uuid.UUID){}, a.onFinished...)
	a.hooksMu.RUnlock()
	for _, fn := range hooks {
		fn(id)
	}
}
