package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/tourneyclock/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type seedFile struct {
	Tournaments []seedTournament `yaml:"tournaments"`
}

type seedTournament struct {
	ID       string               `yaml:"id"`
	Name     string               `yaml:"name"`
	Activate bool                 `yaml:"activate"`
	Levels   models.LevelSchedule `yaml:"levels"`
}

func newSeedCmd(cfg *Config) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file.yaml>",
		Short: "Create tournaments and blind structures from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read seed file: %w", err)
			}
			seeds, err := parseSeed(data)
			if err != nil {
				return err
			}
			return runSeed(cmd.Context(), cfg, seeds)
		},
	}
}

func parseSeed(data []byte) ([]seedTournament, error) {
	var file seedFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	if len(file.Tournaments) == 0 {
		return nil, fmt.Errorf("seed file has no tournaments")
	}
	for i, s := range file.Tournaments {
		if s.ID == "" {
			continue
		}
		if _, err := uuid.Parse(s.ID); err != nil {
			return nil, fmt.Errorf("tournament %d: invalid id %q", i+1, s.ID)
		}
	}
	return file.Tournaments, nil
}

func (s seedTournament) tournament() models.Tournament {
	t := models.Tournament{
		Name:           s.Name,
		Status:         models.TournamentStatusScheduled,
		BlindStructure: s.Levels,
	}
	if s.ID != "" {
		t.ID = uuid.MustParse(s.ID)
	}
	return t
}

func runSeed(ctx context.Context, cfg *Config, seeds []seedTournament) error {
	services, err := setupServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer services.Close()

	for _, seed := range seeds {
		created, err := services.Tournaments.CreateTournament(ctx, seed.tournament())
		if err != nil {
			return fmt.Errorf("failed to seed %q: %w", seed.Name, err)
		}
		if !seed.Activate {
			continue
		}

		active, err := services.Tournaments.Activate(ctx, created.ID, time.Now())
		if err != nil {
			return fmt.Errorf("failed to activate %q: %w", seed.Name, err)
		}
		// A running clockd would also pick this up from the status notification.
		if _, err := services.Clock.EnsureClock(ctx, *active); err != nil {
			return fmt.Errorf("failed to create clock for %q: %w", seed.Name, err)
		}
		log.Info().Str("tournament_id", created.ID.String()).Str("name", created.Name).Msg("seeded active tournament")
	}
	return nil
}
