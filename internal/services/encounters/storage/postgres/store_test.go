package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/louisbranch/opsroom/internal/platform/id"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

const testDatabaseURLEnv = "OPSROOM_TEST_DATABASE_URL"

func TestOpenRequiresURL(t *testing.T) {
	t.Parallel()

	if _, err := Open(context.Background(), "  "); err == nil {
		t.Fatal("expected empty database url error")
	}
}

func TestErrorClassification(t *testing.T) {
	t.Parallel()

	unique := fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})
	check := &pq.Error{Code: "23514"}
	other := errors.New("connection reset")

	if !isUniqueViolation(unique) {
		t.Fatal("wrapped 23505 should be a unique violation")
	}
	if isUniqueViolation(check) || isUniqueViolation(other) || isUniqueViolation(nil) {
		t.Fatal("only 23505 is a unique violation")
	}
	if !isCheckViolation(check) {
		t.Fatal("23514 should be a check violation")
	}
}

func TestJSONColumn(t *testing.T) {
	t.Parallel()

	if got := jsonColumn(nil); got != nil {
		t.Fatalf("jsonColumn(nil) = %q, want nil", got)
	}
	if got := jsonColumn([]byte("null")); got != nil {
		t.Fatalf("jsonColumn(null) = %q, want nil", got)
	}
	src := []byte(`{"a":1}`)
	got := jsonColumn(src)
	src[2] = 'b'
	if string(got) != `{"a":1}` {
		t.Fatalf("jsonColumn did not copy: %q", got)
	}
}

func TestBuildResolutionPayload(t *testing.T) {
	t.Parallel()

	createdAt := time.Date(2026, time.March, 4, 18, 30, 0, 0, time.UTC)
	payload, err := buildResolutionPayload(storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-1", TurnID: "turn-1", EncounterID: "enc-1",
			ActionsJSON: []byte(`[{"actor_id":"hero"}]`), EncounterStatus: storage.EncounterActive,
			NextTurnID: "turn-2", ResolvedBy: "gm-1", CreatedAt: createdAt,
		},
		AutoFail: []storage.SubmissionRecord{{
			ActorID: "villain", ActionType: engine.ActionAttack, Tier: engine.TierBasic,
			TargetID: "villain", TargetStat: engine.StatHP, IsAutoFail: true,
		}},
		Characters: []storage.CharacterDrain{{CharacterID: "villain", HP: 30}},
		Effects:    []engine.Effect{{Source: "hero", Target: "villain", TargetStat: engine.StatHP, Damage: 30, Reason: "attack"}},
		NextTurn:   &storage.TurnRecord{ID: "turn-2", TurnNumber: 2},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal(payload, &decoded); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if decoded["idempotency_key"] != "key-1" {
		t.Fatalf("idempotency_key = %v", decoded["idempotency_key"])
	}
	if decoded["created_at"] != "2026-03-04T18:30:00Z" {
		t.Fatalf("created_at = %v", decoded["created_at"])
	}
	if decoded["judgement"] != nil {
		t.Fatalf("judgement = %v, want null", decoded["judgement"])
	}
	if effects, ok := decoded["effects"].([]any); !ok || len(effects) != 0 {
		t.Fatalf("effects json = %v, want empty array", decoded["effects"])
	}
	rows, ok := decoded["effect_rows"].([]any)
	if !ok || len(rows) != 1 {
		t.Fatalf("effect_rows = %v, want one row", decoded["effect_rows"])
	}
	next, ok := decoded["next_turn"].(map[string]any)
	if !ok || next["id"] != "turn-2" || next["turn_number"] != float64(2) {
		t.Fatalf("next_turn = %v", decoded["next_turn"])
	}
	autoFail, ok := decoded["auto_fail"].([]any)
	if !ok || len(autoFail) != 1 {
		t.Fatalf("auto_fail = %v", decoded["auto_fail"])
	}
	characters, ok := decoded["characters"].([]any)
	if !ok || len(characters) != 1 {
		t.Fatalf("characters = %v, want one drain", decoded["characters"])
	}
	drain, _ := characters[0].(map[string]any)
	if drain["hp_loss"] != float64(30) || drain["will_loss"] != float64(0) {
		t.Fatalf("characters[0] = %v, want hp_loss 30 will_loss 0", drain)
	}
}

func TestBuildResolutionPayloadDropsNextTurnWhenClosing(t *testing.T) {
	t.Parallel()

	payload, err := buildResolutionPayload(storage.ResolutionWrite{
		Resolution:  storage.ResolutionRecord{IdempotencyKey: "k", TurnID: "t", EncounterID: "e"},
		CloseReason: storage.CloseReasonDefeat,
		NextTurn:    &storage.TurnRecord{ID: "t2", TurnNumber: 2},
	})
	if err != nil {
		t.Fatalf("build payload: %v", err)
	}
	if !strings.Contains(string(payload), `"next_turn":null`) {
		t.Fatalf("payload = %s, want null next_turn", payload)
	}
}

func TestBuildResolutionPayloadRequiresIdentifiers(t *testing.T) {
	t.Parallel()

	if _, err := buildResolutionPayload(storage.ResolutionWrite{}); err == nil {
		t.Fatal("expected missing idempotency key error")
	}
	if _, err := buildResolutionPayload(storage.ResolutionWrite{Resolution: storage.ResolutionRecord{IdempotencyKey: "k"}}); err == nil {
		t.Fatal("expected missing turn error")
	}
}

// TestStoreAgainstDatabase runs the resolution flow against a real server when
// OPSROOM_TEST_DATABASE_URL points at a disposable database.
func TestStoreAgainstDatabase(t *testing.T) {
	databaseURL := os.Getenv(testDatabaseURLEnv)
	if databaseURL == "" {
		t.Skipf("%s not set", testDatabaseURLEnv)
	}
	ctx := context.Background()
	store, err := Open(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	suffix, err := id.NewID()
	if err != nil {
		t.Fatalf("new id: %v", err)
	}
	hero, villain := "hero-"+suffix, "villain-"+suffix
	encounterID, turnID := "enc-"+suffix, "turn-"+suffix
	for _, c := range []string{hero, villain} {
		if err := store.PutCharacter(ctx, storage.CharacterRecord{ID: c, OwnerUserID: "u", Name: c, HPCurrent: 100, HPMax: 100, WILLCurrent: 50, WILLMax: 50}); err != nil {
			t.Fatalf("put character: %v", err)
		}
	}
	if err := store.CreateEncounter(ctx,
		storage.EncounterRecord{ID: encounterID, OperationID: "op", Name: "pg", GMUserID: "gm"},
		[]storage.ParticipantRecord{{CharacterID: hero, Team: "red", IsActive: true}, {CharacterID: villain, Team: "blue", SubmissionOrder: 1, IsActive: true}},
		storage.TurnRecord{ID: turnID, TurnNumber: 1},
	); err != nil {
		t.Fatalf("create encounter: %v", err)
	}

	err = store.CreateSubmission(ctx, storage.SubmissionRecord{
		TurnID: turnID, ActorID: hero, ActionType: engine.ActionAttack, Tier: engine.TierBasic,
		TargetID: villain, TargetStat: engine.StatHP, BaseDamage: 10, CostWILL: 500,
	})
	if !errors.Is(err, storage.ErrInsufficientResources) {
		t.Fatalf("over-cost submission error = %v, want %v", err, storage.ErrInsufficientResources)
	}

	write := storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-" + suffix, TurnID: turnID, EncounterID: encounterID,
			EncounterStatus: storage.EncounterClosed, ResolvedBy: "gm",
		},
		Characters:  []storage.CharacterDrain{{CharacterID: villain, HP: 100}},
		Effects:     []engine.Effect{{Source: hero, Target: villain, TargetStat: engine.StatHP, Damage: 100, Reason: "attack"}},
		CloseReason: storage.CloseReasonDefeat,
	}
	if err := store.ApplyResolution(ctx, write); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}
	loser, err := store.GetCharacter(ctx, villain)
	if err != nil {
		t.Fatalf("get villain: %v", err)
	}
	if loser.HPCurrent != 0 || loser.WILLCurrent != 50 {
		t.Fatalf("villain = %d/%d, want 0/50", loser.HPCurrent, loser.WILLCurrent)
	}
	write.Resolution.IdempotencyKey = "other-" + suffix
	if err := store.ApplyResolution(ctx, write); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second resolution error = %v, want %v", err, storage.ErrConflict)
	}

	encounter, err := store.GetEncounter(ctx, encounterID)
	if err != nil {
		t.Fatalf("get encounter: %v", err)
	}
	if encounter.Status != storage.EncounterClosed {
		t.Fatalf("encounter status = %q, want closed", encounter.Status)
	}
	effects, err := store.ListResolutionEffects(ctx, "key-"+suffix)
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 1 || effects[0].Seq != 1 {
		t.Fatalf("effects = %+v", effects)
	}
}
