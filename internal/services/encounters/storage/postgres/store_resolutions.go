package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

type resolutionPayload struct {
	IdempotencyKey  string             `json:"idempotency_key"`
	TurnID          string             `json:"turn_id"`
	EncounterID     string             `json:"encounter_id"`
	EncounterStatus string             `json:"encounter_status"`
	NextTurnID      string             `json:"next_turn_id"`
	ResolvedBy      string             `json:"resolved_by"`
	CreatedAt       time.Time          `json:"created_at"`
	Judgement       json.RawMessage    `json:"judgement"`
	Actions         json.RawMessage    `json:"actions"`
	Effects         json.RawMessage    `json:"effects"`
	Participants    json.RawMessage    `json:"participants"`
	Summary         json.RawMessage    `json:"summary"`
	AutoFail        []autoFailPayload  `json:"auto_fail"`
	Characters      []characterPayload `json:"characters"`
	EffectRows      []effectPayload    `json:"effect_rows"`
	CloseReason     string             `json:"close_reason"`
	NextTurn        *nextTurnPayload   `json:"next_turn"`
}

type autoFailPayload struct {
	ActorID     string `json:"actor_id"`
	ActionType  string `json:"action_type"`
	Tier        string `json:"tier"`
	TargetID    string `json:"target_id"`
	TargetStat  string `json:"target_stat"`
	BaseDamage  int    `json:"base_damage"`
	SubmittedBy string `json:"submitted_by"`
}

type characterPayload struct {
	CharacterID string `json:"character_id"`
	HPLoss      int    `json:"hp_loss"`
	WILLLoss    int    `json:"will_loss"`
}

type effectPayload struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	TargetStat string `json:"target_stat"`
	Damage     int    `json:"damage"`
	Reason     string `json:"reason"`
}

type nextTurnPayload struct {
	ID         string `json:"id"`
	TurnNumber int    `json:"turn_number"`
}

func rawOrNull(value []byte) json.RawMessage {
	if len(value) == 0 {
		return json.RawMessage("null")
	}
	return json.RawMessage(value)
}

func rawOrEmptyArray(value []byte) json.RawMessage {
	if len(value) == 0 {
		return json.RawMessage("[]")
	}
	return json.RawMessage(value)
}

// buildResolutionPayload encodes a write as the apply_operation_resolution argument.
func buildResolutionPayload(write storage.ResolutionWrite) ([]byte, error) {
	rec := write.Resolution
	if strings.TrimSpace(rec.IdempotencyKey) == "" {
		return nil, fmt.Errorf("idempotency key is required")
	}
	if strings.TrimSpace(rec.TurnID) == "" || strings.TrimSpace(rec.EncounterID) == "" {
		return nil, fmt.Errorf("turn and encounter ids are required")
	}

	payload := resolutionPayload{
		IdempotencyKey:  rec.IdempotencyKey,
		TurnID:          rec.TurnID,
		EncounterID:     rec.EncounterID,
		EncounterStatus: rec.EncounterStatus,
		NextTurnID:      rec.NextTurnID,
		ResolvedBy:      rec.ResolvedBy,
		CreatedAt:       orNow(rec.CreatedAt),
		Judgement:       rawOrNull(write.Judgement),
		Actions:         rawOrEmptyArray(rec.ActionsJSON),
		Effects:         rawOrEmptyArray(rec.EffectsJSON),
		Participants:    rawOrEmptyArray(rec.ParticipantsJSON),
		Summary:         rawOrNull(rec.SummaryJSON),
		AutoFail:        make([]autoFailPayload, 0, len(write.AutoFail)),
		Characters:      make([]characterPayload, 0, len(write.Characters)),
		EffectRows:      make([]effectPayload, 0, len(write.Effects)),
		CloseReason:     write.CloseReason,
	}
	for _, sub := range write.AutoFail {
		payload.AutoFail = append(payload.AutoFail, autoFailPayload{
			ActorID:     sub.ActorID,
			ActionType:  string(sub.ActionType),
			Tier:        string(sub.Tier),
			TargetID:    sub.TargetID,
			TargetStat:  string(sub.TargetStat),
			BaseDamage:  sub.BaseDamage,
			SubmittedBy: sub.SubmittedBy,
		})
	}
	for _, c := range write.Characters {
		payload.Characters = append(payload.Characters, characterPayload{CharacterID: c.CharacterID, HPLoss: c.HP, WILLLoss: c.WILL})
	}
	for _, e := range write.Effects {
		payload.EffectRows = append(payload.EffectRows, effectPayload{
			Source:     e.Source,
			Target:     e.Target,
			TargetStat: string(e.TargetStat),
			Damage:     e.Damage,
			Reason:     e.Reason,
		})
	}
	if write.CloseReason == "" && write.NextTurn != nil {
		payload.NextTurn = &nextTurnPayload{ID: write.NextTurn.ID, TurnNumber: write.NextTurn.TurnNumber}
	}
	return json.Marshal(payload)
}

// ApplyResolution commits a resolved turn through apply_operation_resolution.
func (s *Store) ApplyResolution(ctx context.Context, write storage.ResolutionWrite) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	payload, err := buildResolutionPayload(write)
	if err != nil {
		return err
	}
	if _, err := s.sqlDB.ExecContext(ctx, `SELECT apply_operation_resolution($1::jsonb)`, string(payload)); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("apply resolution: %w", err)
	}
	return nil
}

const resolutionColumns = `idempotency_key, turn_id, encounter_id, actions_json, effects_json,
		        participants_json, summary_json, encounter_status, next_turn_id, resolved_by, created_at`

func scanResolution(row *sql.Row) (storage.ResolutionRecord, error) {
	var (
		rec                                     storage.ResolutionRecord
		actions, effects, participants, summary []byte
	)
	if err := row.Scan(
		&rec.IdempotencyKey,
		&rec.TurnID,
		&rec.EncounterID,
		&actions,
		&effects,
		&participants,
		&summary,
		&rec.EncounterStatus,
		&rec.NextTurnID,
		&rec.ResolvedBy,
		&rec.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ResolutionRecord{}, storage.ErrNotFound
		}
		return storage.ResolutionRecord{}, fmt.Errorf("scan resolution: %w", err)
	}
	rec.ActionsJSON = jsonColumn(actions)
	rec.EffectsJSON = jsonColumn(effects)
	rec.ParticipantsJSON = jsonColumn(participants)
	rec.SummaryJSON = jsonColumn(summary)
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

// GetResolution returns the resolution stored under an idempotency key.
func (s *Store) GetResolution(ctx context.Context, idempotencyKey string) (storage.ResolutionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResolutionRecord{}, err
	}
	return scanResolution(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+resolutionColumns+` FROM operation_resolutions WHERE idempotency_key = $1`,
		strings.TrimSpace(idempotencyKey),
	))
}

// GetResolutionByTurn returns the resolution for a turn.
func (s *Store) GetResolutionByTurn(ctx context.Context, turnID string) (storage.ResolutionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResolutionRecord{}, err
	}
	return scanResolution(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+resolutionColumns+` FROM operation_resolutions WHERE turn_id = $1`,
		strings.TrimSpace(turnID),
	))
}

// ListResolutionEffects returns the audit rows of one resolution in order.
func (s *Store) ListResolutionEffects(ctx context.Context, idempotencyKey string) ([]storage.EffectRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT idempotency_key, seq, source_id, target_id, target_stat, damage, reason
		   FROM operation_resolution_effects
		  WHERE idempotency_key = $1
		  ORDER BY seq ASC`,
		strings.TrimSpace(idempotencyKey),
	)
	if err != nil {
		return nil, fmt.Errorf("list resolution effects: %w", err)
	}
	defer rows.Close()

	var effects []storage.EffectRecord
	for rows.Next() {
		var (
			e    storage.EffectRecord
			stat string
		)
		if err := rows.Scan(&e.IdempotencyKey, &e.Seq, &e.SourceID, &e.TargetID, &stat, &e.Damage, &e.Reason); err != nil {
			return nil, fmt.Errorf("list resolution effects: %w", err)
		}
		e.TargetStat = engine.Stat(stat)
		effects = append(effects, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list resolution effects: %w", err)
	}
	return effects, nil
}
