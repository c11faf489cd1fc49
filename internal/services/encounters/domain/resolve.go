package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// JudgementAction is a GM adjustment for one actor's action.
type JudgementAction struct {
	ActorID    string   `json:"actor_id"`
	Multiplier *float64 `json:"multiplier,omitempty"`
	// Grade is recorded with the turn; resolver grading is derived from damage.
	Grade string `json:"grade,omitempty"`
}

// Judgement is the GM override layer applied at resolution time.
type Judgement struct {
	Actions []JudgementAction `json:"actions"`
}

// ResolveTurnInput requests resolution of one turn.
type ResolveTurnInput struct {
	EncounterID    string
	TurnID         string
	IdempotencyKey string
	Judgement      *Judgement
	CallerUserID   string
}

func validateJudgement(j *Judgement) ([]engine.JudgementAction, error) {
	if j == nil {
		return nil, nil
	}
	out := make([]engine.JudgementAction, 0, len(j.Actions))
	for i, a := range j.Actions {
		actorID := strings.TrimSpace(a.ActorID)
		if actorID == "" {
			return nil, judgementInvalid(fmt.Sprintf("action %d: actor id is required", i))
		}
		if a.Multiplier != nil && (*a.Multiplier < MinMultiplier || *a.Multiplier > MaxMultiplier) {
			return nil, judgementInvalid(fmt.Sprintf("action %d: multiplier must be between %v and %v", i, MinMultiplier, MaxMultiplier))
		}
		grade := engine.Grade(strings.ToLower(strings.TrimSpace(a.Grade)))
		if grade != "" && !grade.Valid() {
			return nil, judgementInvalid(fmt.Sprintf("action %d: unknown grade %q", i, a.Grade))
		}
		out = append(out, engine.JudgementAction{ActorID: actorID, Multiplier: a.Multiplier, Grade: grade})
	}
	return out, nil
}

func judgementInvalid(reason string) error {
	return apperrors.WithMetadata(apperrors.CodeJudgementInvalid, reason, map[string]string{"Reason": reason})
}

func idempotencyConflict() error {
	return apperrors.New(apperrors.CodeIdempotencyConflict, "turn already resolved under a different idempotency key")
}

// ResolveTurn resolves an open turn and persists the outcome under the
// caller's idempotency key. Repeating a request with the same key returns the
// stored result with Replayed set.
func (s *Service) ResolveTurn(ctx context.Context, in ResolveTurnInput) (result TurnResolution, err error) {
	ctx, span := s.startSpan(ctx, "encounters.ResolveTurn", in.EncounterID)
	defer func() { endSpan(span, err) }()

	if err := s.configured(); err != nil {
		return TurnResolution{}, err
	}
	in.EncounterID = strings.TrimSpace(in.EncounterID)
	in.TurnID = strings.TrimSpace(in.TurnID)
	in.IdempotencyKey = strings.TrimSpace(in.IdempotencyKey)
	if in.EncounterID == "" {
		return TurnResolution{}, invalidArgument("encounter id is required")
	}
	if in.TurnID == "" {
		return TurnResolution{}, invalidArgument("turn id is required")
	}
	if in.IdempotencyKey == "" {
		return TurnResolution{}, apperrors.New(apperrors.CodeIdempotencyKeyRequired, "idempotency key is required")
	}
	judgement, err := validateJudgement(in.Judgement)
	if err != nil {
		return TurnResolution{}, err
	}
	span.SetAttributes(attribute.String("turn.id", in.TurnID))

	encounter, err := s.loadEncounter(ctx, in.EncounterID)
	if err != nil {
		return TurnResolution{}, err
	}
	if err := requireGM(encounter, in.CallerUserID); err != nil {
		return TurnResolution{}, err
	}

	existing, err := s.store.GetResolution(ctx, in.IdempotencyKey)
	switch {
	case err == nil:
		return s.replay(ctx, existing, in)
	case !errors.Is(err, storage.ErrNotFound):
		return TurnResolution{}, storageError(err, apperrors.CodeResolutionNotFound, "get resolution")
	}

	turn, err := s.loadTurn(ctx, in.EncounterID, in.TurnID)
	if err != nil {
		return TurnResolution{}, err
	}
	if turn.Status != storage.TurnOpen {
		return TurnResolution{}, idempotencyConflict()
	}
	if encounter.Status != storage.EncounterActive {
		return TurnResolution{}, apperrors.New(apperrors.CodeEncounterClosed, "encounter is closed")
	}

	roster, err := s.store.ListParticipants(ctx, in.EncounterID)
	if err != nil {
		return TurnResolution{}, storageError(err, apperrors.CodeEncounterNotFound, "list participants")
	}
	submissions, err := s.store.ListSubmissions(ctx, in.TurnID)
	if err != nil {
		return TurnResolution{}, storageError(err, apperrors.CodeTurnNotFound, "list submissions")
	}

	now := s.now()
	autoFail := autoFailSubmissions(in.TurnID, roster, submissions, now)

	rows := make([]engine.SubmissionRow, 0, len(submissions)+len(autoFail))
	for _, sub := range submissions {
		rows = append(rows, submissionRow(sub))
	}
	for _, sub := range autoFail {
		rows = append(rows, submissionRow(sub))
	}
	entries := make([]engine.RosterEntry, 0, len(roster))
	for _, p := range roster {
		entries = append(entries, engine.RosterEntry{CharacterID: p.CharacterID, Team: p.Team, SubmissionOrder: p.SubmissionOrder})
	}

	resolution, err := engine.BuildResolution(ctx, s.store, engine.ResolutionInput{
		Roster:      entries,
		Submissions: rows,
		Judgement:   judgement,
	})
	if err != nil {
		return TurnResolution{}, err
	}
	summary := engine.Summarize(resolution.Resolved, resolution.Final)

	result = TurnResolution{
		IdempotencyKey:  in.IdempotencyKey,
		EncounterID:     in.EncounterID,
		TurnID:          in.TurnID,
		Actions:         actionViews(resolution.Resolved),
		Effects:         effectViews(resolution.Effects),
		Participants:    participantViews(resolution.Final),
		Summary:         summary,
		EncounterStatus: storage.EncounterActive,
		ResolvedBy:      in.CallerUserID,
		ResolvedAt:      now,
	}

	write := storage.ResolutionWrite{
		AutoFail:   autoFail,
		Characters: characterDrains(resolution.Initial, resolution.Final),
		Effects:    resolution.Effects,
	}
	if len(summary.Defeated) > 0 {
		result.EncounterStatus = storage.EncounterClosed
		write.CloseReason = storage.CloseReasonDefeat
	} else {
		nextID, err := s.newID()
		if err != nil {
			return TurnResolution{}, fmt.Errorf("generate turn id: %w", err)
		}
		result.NextTurnID = nextID
		write.NextTurn = &storage.TurnRecord{
			ID:          nextID,
			EncounterID: in.EncounterID,
			TurnNumber:  turn.TurnNumber + 1,
			Status:      storage.TurnOpen,
			OpenedAt:    now,
		}
	}

	record, err := resolutionRecord(result)
	if err != nil {
		return TurnResolution{}, err
	}
	write.Resolution = record
	if in.Judgement != nil {
		if write.Judgement, err = json.Marshal(in.Judgement); err != nil {
			return TurnResolution{}, fmt.Errorf("encode judgement: %w", err)
		}
	}

	if err := s.store.ApplyResolution(ctx, write); err != nil {
		if !errors.Is(err, storage.ErrConflict) {
			return TurnResolution{}, storageError(err, apperrors.CodeTurnNotFound, "apply resolution")
		}
		// Lost a race: a concurrent request with the same key wins and is replayed.
		if existing, getErr := s.store.GetResolution(ctx, in.IdempotencyKey); getErr == nil {
			return s.replay(ctx, existing, in)
		}
		return TurnResolution{}, idempotencyConflict()
	}

	s.metrics.Resolution(ctx, false, result.EncounterStatus, summary.TotalDamage)
	s.logger.InfoContext(ctx, "turn resolved",
		slog.String("encounter_id", in.EncounterID),
		slog.String("turn_id", in.TurnID),
		slog.Int("submitted", summary.Submitted),
		slog.Int("auto_failed", summary.AutoFailed),
		slog.Int("total_damage", summary.TotalDamage),
		slog.String("encounter_status", result.EncounterStatus),
	)
	s.publish(live.Event{
		Type:        live.EventTurnResolved,
		EncounterID: in.EncounterID,
		TurnID:      in.TurnID,
		At:          now,
		Data:        result,
	})
	if result.EncounterStatus == storage.EncounterClosed {
		s.publish(live.Event{
			Type:        live.EventEncounterClosed,
			EncounterID: in.EncounterID,
			TurnID:      in.TurnID,
			At:          now,
			Data:        map[string]any{"reason": storage.CloseReasonDefeat, "defeated": summary.Defeated},
		})
	}
	return result, nil
}

func (s *Service) replay(ctx context.Context, rec storage.ResolutionRecord, in ResolveTurnInput) (TurnResolution, error) {
	if rec.EncounterID != in.EncounterID || rec.TurnID != in.TurnID {
		return TurnResolution{}, apperrors.New(apperrors.CodeIdempotencyConflict, "idempotency key was used for a different turn")
	}
	result, err := resolutionFromRecord(rec)
	if err != nil {
		return TurnResolution{}, err
	}
	result.Replayed = true
	s.metrics.Resolution(ctx, true, result.EncounterStatus, result.Summary.TotalDamage)
	trace.SpanFromContext(ctx).SetAttributes(attribute.Bool("resolution.replayed", true))
	s.logger.DebugContext(ctx, "turn resolution replayed",
		slog.String("encounter_id", in.EncounterID),
		slog.String("turn_id", in.TurnID),
	)
	return result, nil
}

// autoFailSubmissions synthesizes a placeholder for every active participant
// without a submission: a basic zero-damage attack on themselves.
func autoFailSubmissions(turnID string, roster []storage.ParticipantRecord, submissions []storage.SubmissionRecord, now time.Time) []storage.SubmissionRecord {
	submitted := make(map[string]bool, len(submissions))
	for _, sub := range submissions {
		submitted[sub.ActorID] = true
	}
	var out []storage.SubmissionRecord
	for _, p := range roster {
		if !p.IsActive || submitted[p.CharacterID] {
			continue
		}
		out = append(out, storage.SubmissionRecord{
			TurnID:      turnID,
			ActorID:     p.CharacterID,
			ActionType:  engine.ActionAttack,
			Tier:        engine.TierBasic,
			TargetID:    p.CharacterID,
			TargetStat:  engine.StatHP,
			IsAutoFail:  true,
			SubmittedAt: now,
		})
	}
	return out
}

func submissionRow(sub storage.SubmissionRecord) engine.SubmissionRow {
	return engine.SubmissionRow{
		ActorID:    sub.ActorID,
		ActionType: sub.ActionType,
		Tier:       sub.Tier,
		TargetID:   sub.TargetID,
		TargetStat: sub.TargetStat,
		BaseDamage: sub.BaseDamage,
		Multiplier: sub.Multiplier,
		IsAutoFail: sub.IsAutoFail,
	}
}

// characterDrains reports what the turn removed from each pool. Participants
// the turn left untouched are omitted.
func characterDrains(initial, final []engine.ParticipantState) []storage.CharacterDrain {
	after := make(map[string]engine.ParticipantState, len(final))
	for _, p := range final {
		after[p.ID] = p
	}
	var out []storage.CharacterDrain
	for _, before := range initial {
		now, ok := after[before.ID]
		if !ok {
			continue
		}
		drain := storage.CharacterDrain{
			CharacterID: before.ID,
			HP:          max(before.HP-now.HP, 0),
			WILL:        max(before.WILL-now.WILL, 0),
		}
		if drain.HP == 0 && drain.WILL == 0 {
			continue
		}
		out = append(out, drain)
	}
	return out
}

func resolutionRecord(res TurnResolution) (storage.ResolutionRecord, error) {
	rec := storage.ResolutionRecord{
		IdempotencyKey:  res.IdempotencyKey,
		TurnID:          res.TurnID,
		EncounterID:     res.EncounterID,
		EncounterStatus: res.EncounterStatus,
		NextTurnID:      res.NextTurnID,
		ResolvedBy:      res.ResolvedBy,
		CreatedAt:       res.ResolvedAt,
	}
	var err error
	if rec.ActionsJSON, err = json.Marshal(res.Actions); err != nil {
		return storage.ResolutionRecord{}, fmt.Errorf("encode actions: %w", err)
	}
	if rec.EffectsJSON, err = json.Marshal(res.Effects); err != nil {
		return storage.ResolutionRecord{}, fmt.Errorf("encode effects: %w", err)
	}
	if rec.ParticipantsJSON, err = json.Marshal(res.Participants); err != nil {
		return storage.ResolutionRecord{}, fmt.Errorf("encode participants: %w", err)
	}
	if rec.SummaryJSON, err = json.Marshal(res.Summary); err != nil {
		return storage.ResolutionRecord{}, fmt.Errorf("encode summary: %w", err)
	}
	return rec, nil
}
