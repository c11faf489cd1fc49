package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

var fixedNow = time.Date(2026, time.March, 4, 18, 30, 0, 0, time.UTC)

func TestOpenRequiresPath(t *testing.T) {
	t.Parallel()

	if _, err := Open(""); err == nil {
		t.Fatal("expected empty path error")
	}
}

func TestOpenIsRepeatable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "encounters.db")
	first, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
	second, err := Open(path)
	if err != nil {
		t.Fatalf("reopen store: %v", err)
	}
	if err := second.Close(); err != nil {
		t.Fatalf("close store: %v", err)
	}
}

func TestCharacterRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	input := storage.CharacterRecord{
		ID: "char-1", OwnerUserID: "user-1", Name: "Ines",
		HPCurrent: 80, HPMax: 100, WILLCurrent: 30, WILLMax: 40, UpdatedAt: fixedNow,
	}
	if err := store.PutCharacter(ctx, input); err != nil {
		t.Fatalf("put character: %v", err)
	}

	got, err := store.GetCharacter(ctx, "char-1")
	if err != nil {
		t.Fatalf("get character: %v", err)
	}
	if got != input {
		t.Fatalf("character = %+v, want %+v", got, input)
	}

	if _, err := store.GetCharacter(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing character error = %v, want %v", err, storage.ErrNotFound)
	}

	resources, err := store.ReadCharacterResources(ctx, []string{"char-1", "missing"})
	if err != nil {
		t.Fatalf("read resources: %v", err)
	}
	if len(resources) != 1 {
		t.Fatalf("resources = %v, want only char-1", resources)
	}
	if got := resources["char-1"]; got != (engine.Resources{HP: 80, WILL: 30}) {
		t.Fatalf("resources[char-1] = %+v", got)
	}
}

func TestAbilityRoundTrip(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedCharacter(t, store, "char-1", "user-1", 100, 50)

	input := storage.AbilityRecord{
		ID: "ab-1", CharacterID: "char-1", Name: "Overclock",
		Tier: engine.TierAdvanced, ActionType: engine.ActionAttack, CostHP: 5, CostWILL: 10,
	}
	if err := store.PutAbility(ctx, input); err != nil {
		t.Fatalf("put ability: %v", err)
	}
	got, err := store.GetAbility(ctx, "ab-1")
	if err != nil {
		t.Fatalf("get ability: %v", err)
	}
	if got != input {
		t.Fatalf("ability = %+v, want %+v", got, input)
	}
	if _, err := store.GetAbility(ctx, "missing"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("missing ability error = %v, want %v", err, storage.ErrNotFound)
	}
}

func TestCreateEncounterAndReadBack(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	encounter, err := store.GetEncounter(ctx, "enc-1")
	if err != nil {
		t.Fatalf("get encounter: %v", err)
	}
	if encounter.Status != storage.EncounterActive || encounter.GMUserID != "gm-1" {
		t.Fatalf("encounter = %+v", encounter)
	}
	if encounter.ClosedAt != nil {
		t.Fatalf("closed_at = %v, want nil", encounter.ClosedAt)
	}

	participants, err := store.ListParticipants(ctx, "enc-1")
	if err != nil {
		t.Fatalf("list participants: %v", err)
	}
	if len(participants) != 2 {
		t.Fatalf("participants = %d, want 2", len(participants))
	}
	if participants[0].CharacterID != "hero" || participants[1].CharacterID != "villain" {
		t.Fatalf("participant order = %s, %s", participants[0].CharacterID, participants[1].CharacterID)
	}
	if !participants[0].IsActive {
		t.Fatal("participant should be active")
	}

	turn, err := store.GetTurn(ctx, "enc-1", "turn-1")
	if err != nil {
		t.Fatalf("get turn: %v", err)
	}
	if turn.Status != storage.TurnOpen || turn.TurnNumber != 1 {
		t.Fatalf("turn = %+v", turn)
	}
	if _, err := store.GetTurn(ctx, "other", "turn-1"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("turn in wrong encounter error = %v, want %v", err, storage.ErrNotFound)
	}

	err = store.CreateEncounter(ctx, storage.EncounterRecord{ID: "enc-1", GMUserID: "gm-1"}, nil, storage.TurnRecord{ID: "turn-x", TurnNumber: 1})
	if !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate encounter error = %v, want %v", err, storage.ErrConflict)
	}
}

func TestCreateSubmissionDeductsCost(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	multiplier := 1.5
	sub := storage.SubmissionRecord{
		TurnID: "turn-1", ActorID: "hero", ActionType: engine.ActionAttack, Tier: engine.TierMid,
		TargetID: "villain", TargetStat: engine.StatHP, BaseDamage: 20, Multiplier: &multiplier,
		CostHP: 5, CostWILL: 10, SubmittedBy: "user-1", SubmittedAt: fixedNow,
	}
	if err := store.CreateSubmission(ctx, sub); err != nil {
		t.Fatalf("create submission: %v", err)
	}

	hero, err := store.GetCharacter(ctx, "hero")
	if err != nil {
		t.Fatalf("get hero: %v", err)
	}
	if hero.HPCurrent != 95 || hero.WILLCurrent != 40 {
		t.Fatalf("hero pools = %d/%d, want 95/40", hero.HPCurrent, hero.WILLCurrent)
	}

	if err := store.CreateSubmission(ctx, sub); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("duplicate submission error = %v, want %v", err, storage.ErrConflict)
	}
	hero, _ = store.GetCharacter(ctx, "hero")
	if hero.HPCurrent != 95 || hero.WILLCurrent != 40 {
		t.Fatalf("duplicate changed pools to %d/%d", hero.HPCurrent, hero.WILLCurrent)
	}

	subs, err := store.ListSubmissions(ctx, "turn-1")
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 1 {
		t.Fatalf("submissions = %d, want 1", len(subs))
	}
	if subs[0].Multiplier == nil || *subs[0].Multiplier != 1.5 {
		t.Fatalf("multiplier = %v, want 1.5", subs[0].Multiplier)
	}
	if subs[0].SubmittedAt != fixedNow {
		t.Fatalf("submitted_at = %v, want %v", subs[0].SubmittedAt, fixedNow)
	}
}

func TestCreateSubmissionInsufficientResourcesRollsBack(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	err := store.CreateSubmission(ctx, storage.SubmissionRecord{
		TurnID: "turn-1", ActorID: "hero", ActionType: engine.ActionAttack, Tier: engine.TierBasic,
		TargetID: "villain", TargetStat: engine.StatHP, CostWILL: 500,
	})
	if !errors.Is(err, storage.ErrInsufficientResources) {
		t.Fatalf("error = %v, want %v", err, storage.ErrInsufficientResources)
	}
	subs, err := store.ListSubmissions(ctx, "turn-1")
	if err != nil {
		t.Fatalf("list submissions: %v", err)
	}
	if len(subs) != 0 {
		t.Fatalf("submissions = %d, want rollback to leave none", len(subs))
	}
}

func TestApplyResolutionOpensNextTurn(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	write := storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-1", TurnID: "turn-1", EncounterID: "enc-1",
			ActionsJSON: []byte(`[]`), EffectsJSON: []byte(`[]`), ParticipantsJSON: []byte(`[]`),
			SummaryJSON: []byte(`{}`), EncounterStatus: storage.EncounterActive, NextTurnID: "turn-2",
			ResolvedBy: "gm-1", CreatedAt: fixedNow,
		},
		Judgement: []byte(`{"actions":[]}`),
		AutoFail: []storage.SubmissionRecord{{
			TurnID: "turn-1", ActorID: "villain", ActionType: engine.ActionAttack, Tier: engine.TierBasic,
			TargetID: "villain", TargetStat: engine.StatHP, IsAutoFail: true, SubmittedAt: fixedNow,
		}},
		Characters: []storage.CharacterDrain{{CharacterID: "villain", HP: 30}},
		Effects: []engine.Effect{{
			Source: "hero", Target: "villain", TargetStat: engine.StatHP, Damage: 30, Reason: engine.EffectReasonAttack,
		}},
		NextTurn: &storage.TurnRecord{ID: "turn-2", TurnNumber: 2},
	}
	if err := store.ApplyResolution(ctx, write); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	turn, err := store.GetTurn(ctx, "enc-1", "turn-1")
	if err != nil {
		t.Fatalf("get turn: %v", err)
	}
	if turn.Status != storage.TurnResolved || turn.ResolvedAt == nil {
		t.Fatalf("turn = %+v, want resolved", turn)
	}
	if string(turn.JudgementJSON) != `{"actions":[]}` {
		t.Fatalf("judgement = %s", turn.JudgementJSON)
	}
	next, err := store.GetTurn(ctx, "enc-1", "turn-2")
	if err != nil {
		t.Fatalf("get next turn: %v", err)
	}
	if next.Status != storage.TurnOpen || next.TurnNumber != 2 {
		t.Fatalf("next turn = %+v", next)
	}

	villain, _ := store.GetCharacter(ctx, "villain")
	if villain.HPCurrent != 70 {
		t.Fatalf("villain hp = %d, want 70", villain.HPCurrent)
	}

	rec, err := store.GetResolutionByTurn(ctx, "turn-1")
	if err != nil {
		t.Fatalf("get resolution by turn: %v", err)
	}
	if rec.IdempotencyKey != "key-1" || rec.NextTurnID != "turn-2" {
		t.Fatalf("resolution = %+v", rec)
	}
	if _, err := store.GetResolution(ctx, "key-1"); err != nil {
		t.Fatalf("get resolution: %v", err)
	}

	effects, err := store.ListResolutionEffects(ctx, "key-1")
	if err != nil {
		t.Fatalf("list effects: %v", err)
	}
	if len(effects) != 1 || effects[0].Seq != 1 || effects[0].Damage != 30 {
		t.Fatalf("effects = %+v", effects)
	}

	subs, _ := store.ListSubmissions(ctx, "turn-1")
	if len(subs) != 1 || !subs[0].IsAutoFail {
		t.Fatalf("submissions = %+v, want one auto-fail row", subs)
	}

	write.Resolution.IdempotencyKey = "key-2"
	write.NextTurn = &storage.TurnRecord{ID: "turn-3", TurnNumber: 2}
	if err := store.ApplyResolution(ctx, write); !errors.Is(err, storage.ErrConflict) {
		t.Fatalf("second resolution error = %v, want %v", err, storage.ErrConflict)
	}
	if _, err := store.GetResolution(ctx, "key-2"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("conflicting resolution persisted: %v", err)
	}
}

func TestApplyResolutionClosesEncounter(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	err := store.ApplyResolution(ctx, storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-1", TurnID: "turn-1", EncounterID: "enc-1",
			EncounterStatus: storage.EncounterClosed, ResolvedBy: "gm-1", CreatedAt: fixedNow,
		},
		Characters:  []storage.CharacterDrain{{CharacterID: "villain", HP: 100}},
		CloseReason: storage.CloseReasonDefeat,
	})
	if err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	encounter, err := store.GetEncounter(ctx, "enc-1")
	if err != nil {
		t.Fatalf("get encounter: %v", err)
	}
	if encounter.Status != storage.EncounterClosed || encounter.CloseReason != storage.CloseReasonDefeat {
		t.Fatalf("encounter = %+v, want closed by defeat", encounter)
	}
	if encounter.ClosedAt == nil || !encounter.ClosedAt.Equal(fixedNow) {
		t.Fatalf("closed_at = %v, want %v", encounter.ClosedAt, fixedNow)
	}
}

func TestApplyResolutionKeepsConcurrentCostDeduction(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	// The villain pays for a submission elsewhere after the resolution read 100/50.
	if err := store.CreateEncounter(ctx,
		storage.EncounterRecord{ID: "enc-2", OperationID: "op-2", Name: "Side", GMUserID: "gm-2", CreatedAt: fixedNow},
		[]storage.ParticipantRecord{
			{CharacterID: "villain", Team: "blue", IsActive: true},
			{CharacterID: "hero", Team: "red", SubmissionOrder: 1, IsActive: true},
		},
		storage.TurnRecord{ID: "turn-b1", TurnNumber: 1, OpenedAt: fixedNow},
	); err != nil {
		t.Fatalf("create second encounter: %v", err)
	}
	if err := store.CreateSubmission(ctx, storage.SubmissionRecord{
		TurnID: "turn-b1", ActorID: "villain", ActionType: engine.ActionDefend, Tier: engine.TierBasic,
		TargetID: "villain", TargetStat: engine.StatHP, CostHP: 10, CostWILL: 5, SubmittedAt: fixedNow,
	}); err != nil {
		t.Fatalf("create submission: %v", err)
	}

	if err := store.ApplyResolution(ctx, storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-1", TurnID: "turn-1", EncounterID: "enc-1",
			EncounterStatus: storage.EncounterActive, NextTurnID: "turn-2", ResolvedBy: "gm-1", CreatedAt: fixedNow,
		},
		Characters: []storage.CharacterDrain{{CharacterID: "villain", HP: 20}},
		NextTurn:   &storage.TurnRecord{ID: "turn-2", TurnNumber: 2},
	}); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	villain, err := store.GetCharacter(ctx, "villain")
	if err != nil {
		t.Fatalf("get villain: %v", err)
	}
	if villain.HPCurrent != 70 || villain.WILLCurrent != 45 {
		t.Fatalf("villain = %d/%d, want 70/45", villain.HPCurrent, villain.WILLCurrent)
	}
}

func TestApplyResolutionClampsDrainAtZero(t *testing.T) {
	t.Parallel()

	store := openTempStore(t)
	ctx := context.Background()
	seedEncounter(t, store)

	if err := store.ApplyResolution(ctx, storage.ResolutionWrite{
		Resolution: storage.ResolutionRecord{
			IdempotencyKey: "key-1", TurnID: "turn-1", EncounterID: "enc-1",
			EncounterStatus: storage.EncounterClosed, ResolvedBy: "gm-1", CreatedAt: fixedNow,
		},
		Characters:  []storage.CharacterDrain{{CharacterID: "hero", HP: 250, WILL: 80}},
		CloseReason: storage.CloseReasonDefeat,
	}); err != nil {
		t.Fatalf("apply resolution: %v", err)
	}

	hero, err := store.GetCharacter(ctx, "hero")
	if err != nil {
		t.Fatalf("get hero: %v", err)
	}
	if hero.HPCurrent != 0 || hero.WILLCurrent != 0 {
		t.Fatalf("hero = %d/%d, want 0/0", hero.HPCurrent, hero.WILLCurrent)
	}
}

func seedCharacter(t *testing.T, store *Store, id, owner string, hp, will int) {
	t.Helper()

	err := store.PutCharacter(context.Background(), storage.CharacterRecord{
		ID: id, OwnerUserID: owner, Name: id,
		HPCurrent: hp, HPMax: hp, WILLCurrent: will, WILLMax: will, UpdatedAt: fixedNow,
	})
	if err != nil {
		t.Fatalf("seed character %s: %v", id, err)
	}
}

func seedEncounter(t *testing.T, store *Store) {
	t.Helper()

	seedCharacter(t, store, "hero", "user-1", 100, 50)
	seedCharacter(t, store, "villain", "user-2", 100, 50)
	err := store.CreateEncounter(
		context.Background(),
		storage.EncounterRecord{ID: "enc-1", OperationID: "op-1", Name: "Dockside", GMUserID: "gm-1", CreatedAt: fixedNow},
		[]storage.ParticipantRecord{
			{CharacterID: "villain", Team: "blue", SubmissionOrder: 1, IsActive: true},
			{CharacterID: "hero", Team: "red", SubmissionOrder: 0, IsActive: true},
		},
		storage.TurnRecord{ID: "turn-1", TurnNumber: 1},
	)
	if err != nil {
		t.Fatalf("seed encounter: %v", err)
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()

	store, err := Open(filepath.Join(t.TempDir(), "encounters.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
