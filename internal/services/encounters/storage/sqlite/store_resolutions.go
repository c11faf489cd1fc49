package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

const resolutionColumns = `idempotency_key, turn_id, encounter_id, actions_json, effects_json,
		        participants_json, summary_json, encounter_status, next_turn_id, resolved_by, created_at`

func scanResolution(row *sql.Row) (storage.ResolutionRecord, error) {
	var (
		rec          storage.ResolutionRecord
		actions      string
		effects      string
		participants string
		summary      string
		createdAt    int64
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
		&createdAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ResolutionRecord{}, storage.ErrNotFound
		}
		return storage.ResolutionRecord{}, fmt.Errorf("scan resolution: %w", err)
	}
	rec.ActionsJSON = []byte(actions)
	rec.EffectsJSON = []byte(effects)
	rec.ParticipantsJSON = []byte(participants)
	rec.SummaryJSON = []byte(summary)
	rec.CreatedAt = fromMillis(createdAt)
	return rec, nil
}

// GetResolution returns the resolution stored under an idempotency key.
func (s *Store) GetResolution(ctx context.Context, idempotencyKey string) (storage.ResolutionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResolutionRecord{}, err
	}
	idempotencyKey = strings.TrimSpace(idempotencyKey)
	if idempotencyKey == "" {
		return storage.ResolutionRecord{}, storage.ErrNotFound
	}
	return scanResolution(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+resolutionColumns+` FROM operation_resolutions WHERE idempotency_key = ?`,
		idempotencyKey,
	))
}

// GetResolutionByTurn returns the resolution for a turn.
func (s *Store) GetResolutionByTurn(ctx context.Context, turnID string) (storage.ResolutionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.ResolutionRecord{}, err
	}
	turnID = strings.TrimSpace(turnID)
	if turnID == "" {
		return storage.ResolutionRecord{}, storage.ErrNotFound
	}
	return scanResolution(s.sqlDB.QueryRowContext(
		ctx,
		`SELECT `+resolutionColumns+` FROM operation_resolutions WHERE turn_id = ?`,
		turnID,
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
		  WHERE idempotency_key = ?
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

// ApplyResolution commits a resolved turn in one transaction.
func (s *Store) ApplyResolution(ctx context.Context, write storage.ResolutionWrite) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	rec := write.Resolution
	if strings.TrimSpace(rec.IdempotencyKey) == "" {
		return fmt.Errorf("idempotency key is required")
	}
	if strings.TrimSpace(rec.TurnID) == "" || strings.TrimSpace(rec.EncounterID) == "" {
		return fmt.Errorf("turn and encounter ids are required")
	}
	now := rec.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin apply resolution: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback apply resolution: %v", cause, rollbackErr)
		}
		return cause
	}

	result, err := tx.ExecContext(
		ctx,
		`UPDATE operation_turns
		    SET status = ?, resolved_at = ?, judgement_json = ?
		  WHERE id = ? AND encounter_id = ? AND status = ?`,
		storage.TurnResolved,
		toMillis(now),
		string(write.Judgement),
		rec.TurnID,
		rec.EncounterID,
		storage.TurnOpen,
	)
	if err != nil {
		return rollbackWith(fmt.Errorf("mark turn resolved: %w", err))
	}
	if affected, err := result.RowsAffected(); err != nil {
		return rollbackWith(fmt.Errorf("mark turn resolved: %w", err))
	} else if affected == 0 {
		return rollbackWith(storage.ErrConflict)
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO operation_resolutions (
		   idempotency_key, turn_id, encounter_id, actions_json, effects_json,
		   participants_json, summary_json, encounter_status, next_turn_id, resolved_by, created_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.IdempotencyKey,
		rec.TurnID,
		rec.EncounterID,
		string(rec.ActionsJSON),
		string(rec.EffectsJSON),
		string(rec.ParticipantsJSON),
		string(rec.SummaryJSON),
		rec.EncounterStatus,
		rec.NextTurnID,
		rec.ResolvedBy,
		toMillis(now),
	); err != nil {
		if isUniqueViolation(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert resolution: %w", err))
	}

	for _, sub := range write.AutoFail {
		if err := insertSubmission(ctx, tx, sub); err != nil {
			return rollbackWith(err)
		}
	}

	for _, c := range write.Characters {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE characters
			    SET hp_current = MAX(hp_current - ?, 0), will_current = MAX(will_current - ?, 0), updated_at = ?
			  WHERE id = ?`,
			max(c.HP, 0),
			max(c.WILL, 0),
			toMillis(now),
			c.CharacterID,
		); err != nil {
			return rollbackWith(fmt.Errorf("update character %s: %w", c.CharacterID, err))
		}
	}

	for i, e := range write.Effects {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO operation_resolution_effects (
			   idempotency_key, seq, source_id, target_id, target_stat, damage, reason
			 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.IdempotencyKey,
			i+1,
			e.Source,
			e.Target,
			string(e.TargetStat),
			e.Damage,
			e.Reason,
		); err != nil {
			return rollbackWith(fmt.Errorf("insert effect %d: %w", i+1, err))
		}
	}

	if write.CloseReason != "" {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE operation_encounters
			    SET status = ?, close_reason = ?, closed_at = ?, updated_at = ?
			  WHERE id = ?`,
			storage.EncounterClosed,
			write.CloseReason,
			toMillis(now),
			toMillis(now),
			rec.EncounterID,
		); err != nil {
			return rollbackWith(fmt.Errorf("close encounter: %w", err))
		}
	} else {
		if write.NextTurn != nil {
			openedAt := write.NextTurn.OpenedAt
			if openedAt.IsZero() {
				openedAt = now
			}
			if err := insertTurn(ctx, tx, rec.EncounterID, *write.NextTurn, openedAt); err != nil {
				return rollbackWith(err)
			}
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE operation_encounters SET updated_at = ? WHERE id = ?`,
			toMillis(now),
			rec.EncounterID,
		); err != nil {
			return rollbackWith(fmt.Errorf("touch encounter: %w", err))
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit apply resolution: %w", err)
	}
	return nil
}
