package domain

import (
	"context"
	"sort"
	"sync"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

type fakeStore struct {
	mu           sync.Mutex
	characters   map[string]storage.CharacterRecord
	abilities    map[string]storage.AbilityRecord
	encounters   map[string]storage.EncounterRecord
	participants map[string][]storage.ParticipantRecord
	turns        map[string]storage.TurnRecord
	submissions  map[string][]storage.SubmissionRecord
	resolutions  map[string]storage.ResolutionRecord
	effects      map[string][]storage.EffectRecord
	writes       []storage.ResolutionWrite

	applyErr   error
	createErr  error
	effectsErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		characters:   make(map[string]storage.CharacterRecord),
		abilities:    make(map[string]storage.AbilityRecord),
		encounters:   make(map[string]storage.EncounterRecord),
		participants: make(map[string][]storage.ParticipantRecord),
		turns:        make(map[string]storage.TurnRecord),
		submissions:  make(map[string][]storage.SubmissionRecord),
		resolutions:  make(map[string]storage.ResolutionRecord),
		effects:      make(map[string][]storage.EffectRecord),
	}
}

func (f *fakeStore) PutCharacter(_ context.Context, c storage.CharacterRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.characters[c.ID] = c
	return nil
}

func (f *fakeStore) GetCharacter(_ context.Context, id string) (storage.CharacterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.characters[id]
	if !ok {
		return storage.CharacterRecord{}, storage.ErrNotFound
	}
	return c, nil
}

func (f *fakeStore) ReadCharacterResources(_ context.Context, ids []string) (map[string]engine.Resources, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]engine.Resources)
	for _, id := range ids {
		if c, ok := f.characters[id]; ok {
			out[id] = c.Resources()
		}
	}
	return out, nil
}

func (f *fakeStore) PutAbility(_ context.Context, a storage.AbilityRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.abilities[a.ID] = a
	return nil
}

func (f *fakeStore) GetAbility(_ context.Context, id string) (storage.AbilityRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	a, ok := f.abilities[id]
	if !ok {
		return storage.AbilityRecord{}, storage.ErrNotFound
	}
	return a, nil
}

func (f *fakeStore) CreateEncounter(_ context.Context, e storage.EncounterRecord, ps []storage.ParticipantRecord, turn storage.TurnRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.encounters[e.ID]; ok {
		return storage.ErrConflict
	}
	f.encounters[e.ID] = e
	f.participants[e.ID] = append([]storage.ParticipantRecord(nil), ps...)
	turn.EncounterID = e.ID
	f.turns[turn.ID] = turn
	return nil
}

func (f *fakeStore) GetEncounter(_ context.Context, id string) (storage.EncounterRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.encounters[id]
	if !ok {
		return storage.EncounterRecord{}, storage.ErrNotFound
	}
	return e, nil
}

func (f *fakeStore) ListParticipants(_ context.Context, encounterID string) ([]storage.ParticipantRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps := append([]storage.ParticipantRecord(nil), f.participants[encounterID]...)
	sort.SliceStable(ps, func(i, j int) bool { return ps[i].SubmissionOrder < ps[j].SubmissionOrder })
	return ps, nil
}

func (f *fakeStore) GetTurn(_ context.Context, encounterID, turnID string) (storage.TurnRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.turns[turnID]
	if !ok || t.EncounterID != encounterID {
		return storage.TurnRecord{}, storage.ErrNotFound
	}
	return t, nil
}

func (f *fakeStore) CreateSubmission(_ context.Context, sub storage.SubmissionRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	for _, existing := range f.submissions[sub.TurnID] {
		if existing.ActorID == sub.ActorID {
			return storage.ErrConflict
		}
	}
	c := f.characters[sub.ActorID]
	if c.HPCurrent < sub.CostHP || c.WILLCurrent < sub.CostWILL {
		return storage.ErrInsufficientResources
	}
	c.HPCurrent -= sub.CostHP
	c.WILLCurrent -= sub.CostWILL
	f.characters[sub.ActorID] = c
	f.submissions[sub.TurnID] = append(f.submissions[sub.TurnID], sub)
	return nil
}

func (f *fakeStore) ListSubmissions(_ context.Context, turnID string) ([]storage.SubmissionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]storage.SubmissionRecord(nil), f.submissions[turnID]...), nil
}

func (f *fakeStore) GetResolution(_ context.Context, key string) (storage.ResolutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.resolutions[key]
	if !ok {
		return storage.ResolutionRecord{}, storage.ErrNotFound
	}
	return r, nil
}

func (f *fakeStore) GetResolutionByTurn(_ context.Context, turnID string) (storage.ResolutionRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.resolutions {
		if r.TurnID == turnID {
			return r, nil
		}
	}
	return storage.ResolutionRecord{}, storage.ErrNotFound
}

func (f *fakeStore) ListResolutionEffects(_ context.Context, key string) ([]storage.EffectRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.effectsErr != nil {
		return nil, f.effectsErr
	}
	return append([]storage.EffectRecord(nil), f.effects[key]...), nil
}

func (f *fakeStore) ApplyResolution(_ context.Context, w storage.ResolutionWrite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.applyErr != nil {
		return f.applyErr
	}
	rec := w.Resolution
	turn, ok := f.turns[rec.TurnID]
	if !ok || turn.Status != storage.TurnOpen {
		return storage.ErrConflict
	}
	if _, ok := f.resolutions[rec.IdempotencyKey]; ok {
		return storage.ErrConflict
	}
	turn.Status = storage.TurnResolved
	turn.JudgementJSON = w.Judgement
	f.turns[rec.TurnID] = turn
	f.resolutions[rec.IdempotencyKey] = rec
	f.submissions[rec.TurnID] = append(f.submissions[rec.TurnID], w.AutoFail...)
	for i, e := range w.Effects {
		f.effects[rec.IdempotencyKey] = append(f.effects[rec.IdempotencyKey], storage.EffectRecord{
			IdempotencyKey: rec.IdempotencyKey, Seq: i + 1,
			SourceID: e.Source, TargetID: e.Target, TargetStat: e.TargetStat, Damage: e.Damage, Reason: e.Reason,
		})
	}
	for _, c := range w.Characters {
		ch := f.characters[c.CharacterID]
		ch.HPCurrent = max(ch.HPCurrent-c.HP, 0)
		ch.WILLCurrent = max(ch.WILLCurrent-c.WILL, 0)
		f.characters[c.CharacterID] = ch
	}
	e := f.encounters[rec.EncounterID]
	if w.CloseReason != "" {
		e.Status = storage.EncounterClosed
		e.CloseReason = w.CloseReason
	} else if w.NextTurn != nil {
		next := *w.NextTurn
		next.EncounterID = rec.EncounterID
		f.turns[next.ID] = next
	}
	f.encounters[rec.EncounterID] = e
	f.writes = append(f.writes, w)
	return nil
}

func (f *fakeStore) Close() error { return nil }

type recordingPublisher struct {
	mu     sync.Mutex
	events []live.Event
}

func (p *recordingPublisher) Publish(event live.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

var _ storage.Store = (*fakeStore)(nil)
