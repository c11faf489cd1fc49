// Package seed loads a demo encounter into the local database.
package seed

import (
	"context"
	"flag"
	"fmt"
	"io"
	"time"

	entrypoint "github.com/louisbranch/opsroom/internal/platform/cmd"
	server "github.com/louisbranch/opsroom/internal/services/encounters/app"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// Config holds seed command configuration.
type Config struct {
	DBDriver    string `env:"OPSROOM_ENCOUNTERS_DB_DRIVER" envDefault:"sqlite"`
	DBPath      string `env:"OPSROOM_ENCOUNTERS_DB_PATH" envDefault:"data/encounters.db"`
	DatabaseURL string `env:"OPSROOM_ENCOUNTERS_DATABASE_URL"`
	GMUserID    string `env:"OPSROOM_SEED_GM_USER_ID" envDefault:"gm-demo"`
	PlayerID    string `env:"OPSROOM_SEED_PLAYER_USER_ID" envDefault:"player-demo"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.DBDriver, "db-driver", cfg.DBDriver, "Storage driver (sqlite or postgres)")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "SQLite database path")
	fs.StringVar(&cfg.GMUserID, "gm", cfg.GMUserID, "GM user id that runs the demo encounter")
	fs.StringVar(&cfg.PlayerID, "player", cfg.PlayerID, "player user id that owns the party")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

type demoCharacter struct {
	record    storage.CharacterRecord
	team      string
	abilities []storage.AbilityRecord
}

func demoRoster(cfg Config, now time.Time) []demoCharacter {
	return []demoCharacter{
		{
			record: storage.CharacterRecord{ID: "demo-vanguard", OwnerUserID: cfg.PlayerID, Name: "Vanguard", HPCurrent: 120, HPMax: 120, WILLCurrent: 40, WILLMax: 40, UpdatedAt: now},
			team:   "operators",
			abilities: []storage.AbilityRecord{
				{ID: "demo-vanguard-breach", CharacterID: "demo-vanguard", Name: "Breach", Tier: engine.TierMid, ActionType: engine.ActionAttack, CostWILL: 10},
				{ID: "demo-vanguard-shield", CharacterID: "demo-vanguard", Name: "Shield Wall", Tier: engine.TierBasic, ActionType: engine.ActionDefend, CostWILL: 5},
			},
		},
		{
			record: storage.CharacterRecord{ID: "demo-medic", OwnerUserID: cfg.PlayerID, Name: "Medic", HPCurrent: 80, HPMax: 80, WILLCurrent: 60, WILLMax: 60, UpdatedAt: now},
			team:   "operators",
			abilities: []storage.AbilityRecord{
				{ID: "demo-medic-overwatch", CharacterID: "demo-medic", Name: "Overwatch", Tier: engine.TierBasic, ActionType: engine.ActionSupport, CostWILL: 8},
			},
		},
		{
			record: storage.CharacterRecord{ID: "demo-warden", OwnerUserID: cfg.GMUserID, Name: "Warden", HPCurrent: 150, HPMax: 150, WILLCurrent: 50, WILLMax: 50, UpdatedAt: now},
			team:   "hostiles",
			abilities: []storage.AbilityRecord{
				{ID: "demo-warden-lance", CharacterID: "demo-warden", Name: "Psi Lance", Tier: engine.TierAdvanced, ActionType: engine.ActionAttack, CostHP: 5, CostWILL: 15},
			},
		},
	}
}

// Run writes the demo characters and opens a fresh encounter for them.
func Run(ctx context.Context, cfg Config, out io.Writer) error {
	if out == nil {
		out = io.Discard
	}
	store, err := server.OpenStore(ctx, server.Config{DBDriver: cfg.DBDriver, DBPath: cfg.DBPath, DatabaseURL: cfg.DatabaseURL})
	if err != nil {
		return err
	}
	defer store.Close()
	created, err := Load(ctx, store, cfg, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "encounter %s ready, open turn %s\n", created.EncounterID, created.TurnID)
	return nil
}

// Load upserts the demo roster into store and creates an encounter for it.
func Load(ctx context.Context, store storage.Store, cfg Config, now time.Time) (domain.CreatedEncounter, error) {
	roster := demoRoster(cfg, now)
	participants := make([]domain.ParticipantInput, 0, len(roster))
	for _, c := range roster {
		if err := store.PutCharacter(ctx, c.record); err != nil {
			return domain.CreatedEncounter{}, fmt.Errorf("put character %s: %w", c.record.ID, err)
		}
		for _, ability := range c.abilities {
			if err := store.PutAbility(ctx, ability); err != nil {
				return domain.CreatedEncounter{}, fmt.Errorf("put ability %s: %w", ability.ID, err)
			}
		}
		participants = append(participants, domain.ParticipantInput{CharacterID: c.record.ID, Team: c.team})
	}

	service := domain.NewService(store, domain.WithClock(func() time.Time { return now }))
	return service.CreateEncounter(ctx, domain.CreateEncounterInput{
		OperationID:  "demo-operation",
		Name:         "Warehouse Breach",
		GMUserID:     cfg.GMUserID,
		Participants: participants,
	})
}
