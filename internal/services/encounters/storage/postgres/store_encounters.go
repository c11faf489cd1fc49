package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// CreateEncounter inserts an encounter with its roster and first open turn.
func (s *Store) CreateEncounter(ctx context.Context, encounter storage.EncounterRecord, participants []storage.ParticipantRecord, firstTurn storage.TurnRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	encounterID := strings.TrimSpace(encounter.ID)
	if encounterID == "" {
		return fmt.Errorf("encounter id is required")
	}
	if strings.TrimSpace(firstTurn.ID) == "" {
		return fmt.Errorf("turn id is required")
	}
	status := encounter.Status
	if status == "" {
		status = storage.EncounterActive
	}
	createdAt := orNow(encounter.CreatedAt)
	updatedAt := createdAt
	if !encounter.UpdatedAt.IsZero() {
		updatedAt = encounter.UpdatedAt.UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create encounter: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback create encounter: %v", cause, rollbackErr)
		}
		return cause
	}

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO operation_encounters (
		   id, operation_id, name, status, close_reason, gm_user_id, created_at, updated_at, closed_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		encounterID,
		strings.TrimSpace(encounter.OperationID),
		strings.TrimSpace(encounter.Name),
		status,
		encounter.CloseReason,
		strings.TrimSpace(encounter.GMUserID),
		createdAt,
		updatedAt,
		nullTime(encounter.ClosedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert encounter: %w", err))
	}

	for _, p := range participants {
		if _, err := tx.ExecContext(
			ctx,
			`INSERT INTO operation_encounter_participants (
			   encounter_id, character_id, team, submission_order, is_active
			 ) VALUES ($1, $2, $3, $4, $5)`,
			encounterID,
			strings.TrimSpace(p.CharacterID),
			strings.TrimSpace(p.Team),
			p.SubmissionOrder,
			p.IsActive,
		); err != nil {
			if isUniqueViolation(err) {
				return rollbackWith(storage.ErrConflict)
			}
			return rollbackWith(fmt.Errorf("insert participant %s: %w", p.CharacterID, err))
		}
	}

	openedAt := createdAt
	if !firstTurn.OpenedAt.IsZero() {
		openedAt = firstTurn.OpenedAt.UTC()
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO operation_turns (id, encounter_id, turn_number, status, opened_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		strings.TrimSpace(firstTurn.ID),
		encounterID,
		firstTurn.TurnNumber,
		storage.TurnOpen,
		openedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert turn: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create encounter: %w", err)
	}
	return nil
}

// GetEncounter returns one encounter by ID.
func (s *Store) GetEncounter(ctx context.Context, id string) (storage.EncounterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.EncounterRecord{}, err
	}
	var (
		encounter storage.EncounterRecord
		closedAt  sql.NullTime
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, operation_id, name, status, close_reason, gm_user_id, created_at, updated_at, closed_at
		   FROM operation_encounters
		  WHERE id = $1`,
		strings.TrimSpace(id),
	).Scan(
		&encounter.ID,
		&encounter.OperationID,
		&encounter.Name,
		&encounter.Status,
		&encounter.CloseReason,
		&encounter.GMUserID,
		&encounter.CreatedAt,
		&encounter.UpdatedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EncounterRecord{}, storage.ErrNotFound
		}
		return storage.EncounterRecord{}, fmt.Errorf("get encounter: %w", err)
	}
	encounter.CreatedAt = encounter.CreatedAt.UTC()
	encounter.UpdatedAt = encounter.UpdatedAt.UTC()
	encounter.ClosedAt = fromNullTime(closedAt)
	return encounter, nil
}

// ListParticipants returns the roster ordered by submission order.
func (s *Store) ListParticipants(ctx context.Context, encounterID string) ([]storage.ParticipantRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT encounter_id, character_id, team, submission_order, is_active
		   FROM operation_encounter_participants
		  WHERE encounter_id = $1
		  ORDER BY submission_order ASC, character_id ASC`,
		strings.TrimSpace(encounterID),
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []storage.ParticipantRecord
	for rows.Next() {
		var p storage.ParticipantRecord
		if err := rows.Scan(&p.EncounterID, &p.CharacterID, &p.Team, &p.SubmissionOrder, &p.IsActive); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		participants = append(participants, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	return participants, nil
}

// GetTurn returns one turn scoped to its encounter.
func (s *Store) GetTurn(ctx context.Context, encounterID string, turnID string) (storage.TurnRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.TurnRecord{}, err
	}
	var (
		turn       storage.TurnRecord
		judgement  []byte
		resolvedAt sql.NullTime
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, encounter_id, turn_number, status, judgement_json, opened_at, resolved_at
		   FROM operation_turns
		  WHERE id = $1 AND encounter_id = $2`,
		strings.TrimSpace(turnID),
		strings.TrimSpace(encounterID),
	).Scan(&turn.ID, &turn.EncounterID, &turn.TurnNumber, &turn.Status, &judgement, &turn.OpenedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TurnRecord{}, storage.ErrNotFound
		}
		return storage.TurnRecord{}, fmt.Errorf("get turn: %w", err)
	}
	turn.JudgementJSON = jsonColumn(judgement)
	turn.OpenedAt = turn.OpenedAt.UTC()
	turn.ResolvedAt = fromNullTime(resolvedAt)
	return turn, nil
}
