package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

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
	createdAt := encounter.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	updatedAt := encounter.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	openedAt := firstTurn.OpenedAt
	if openedAt.IsZero() {
		openedAt = createdAt
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
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		encounterID,
		strings.TrimSpace(encounter.OperationID),
		strings.TrimSpace(encounter.Name),
		status,
		encounter.CloseReason,
		strings.TrimSpace(encounter.GMUserID),
		toMillis(createdAt),
		toMillis(updatedAt),
		toNullMillis(encounter.ClosedAt),
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
			 ) VALUES (?, ?, ?, ?, ?)`,
			encounterID,
			strings.TrimSpace(p.CharacterID),
			strings.TrimSpace(p.Team),
			p.SubmissionOrder,
			boolToInt(p.IsActive),
		); err != nil {
			if isUniqueViolation(err) {
				return rollbackWith(storage.ErrConflict)
			}
			return rollbackWith(fmt.Errorf("insert participant %s: %w", p.CharacterID, err))
		}
	}

	if err := insertTurn(ctx, tx, encounterID, firstTurn, openedAt); err != nil {
		return rollbackWith(err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create encounter: %w", err)
	}
	return nil
}

func insertTurn(ctx context.Context, tx *sql.Tx, encounterID string, turn storage.TurnRecord, openedAt time.Time) error {
	status := turn.Status
	if status == "" {
		status = storage.TurnOpen
	}
	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO operation_turns (
		   id, encounter_id, turn_number, status, judgement_json, opened_at, resolved_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(turn.ID),
		encounterID,
		turn.TurnNumber,
		status,
		string(turn.JudgementJSON),
		toMillis(openedAt),
		toNullMillis(turn.ResolvedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert turn: %w", err)
	}
	return nil
}

// GetEncounter returns one encounter by ID.
func (s *Store) GetEncounter(ctx context.Context, id string) (storage.EncounterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.EncounterRecord{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.EncounterRecord{}, fmt.Errorf("encounter id is required")
	}

	var (
		encounter storage.EncounterRecord
		createdAt int64
		updatedAt int64
		closedAt  sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, operation_id, name, status, close_reason, gm_user_id, created_at, updated_at, closed_at
		   FROM operation_encounters
		  WHERE id = ?`,
		id,
	).Scan(
		&encounter.ID,
		&encounter.OperationID,
		&encounter.Name,
		&encounter.Status,
		&encounter.CloseReason,
		&encounter.GMUserID,
		&createdAt,
		&updatedAt,
		&closedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.EncounterRecord{}, storage.ErrNotFound
		}
		return storage.EncounterRecord{}, fmt.Errorf("get encounter: %w", err)
	}
	encounter.CreatedAt = fromMillis(createdAt)
	encounter.UpdatedAt = fromMillis(updatedAt)
	encounter.ClosedAt = fromNullMillis(closedAt)
	return encounter, nil
}

// ListParticipants returns the roster ordered by submission order.
func (s *Store) ListParticipants(ctx context.Context, encounterID string) ([]storage.ParticipantRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	encounterID = strings.TrimSpace(encounterID)
	if encounterID == "" {
		return nil, fmt.Errorf("encounter id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT encounter_id, character_id, team, submission_order, is_active
		   FROM operation_encounter_participants
		  WHERE encounter_id = ?
		  ORDER BY submission_order ASC, character_id ASC`,
		encounterID,
	)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()

	var participants []storage.ParticipantRecord
	for rows.Next() {
		var (
			p      storage.ParticipantRecord
			active int
		)
		if err := rows.Scan(&p.EncounterID, &p.CharacterID, &p.Team, &p.SubmissionOrder, &active); err != nil {
			return nil, fmt.Errorf("list participants: %w", err)
		}
		p.IsActive = active != 0
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
	encounterID = strings.TrimSpace(encounterID)
	turnID = strings.TrimSpace(turnID)
	if encounterID == "" || turnID == "" {
		return storage.TurnRecord{}, storage.ErrNotFound
	}

	var (
		turn       storage.TurnRecord
		judgement  string
		openedAt   int64
		resolvedAt sql.NullInt64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, encounter_id, turn_number, status, judgement_json, opened_at, resolved_at
		   FROM operation_turns
		  WHERE id = ? AND encounter_id = ?`,
		turnID,
		encounterID,
	).Scan(&turn.ID, &turn.EncounterID, &turn.TurnNumber, &turn.Status, &judgement, &openedAt, &resolvedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.TurnRecord{}, storage.ErrNotFound
		}
		return storage.TurnRecord{}, fmt.Errorf("get turn: %w", err)
	}
	if judgement != "" {
		turn.JudgementJSON = []byte(judgement)
	}
	turn.OpenedAt = fromMillis(openedAt)
	turn.ResolvedAt = fromNullMillis(resolvedAt)
	return turn, nil
}
