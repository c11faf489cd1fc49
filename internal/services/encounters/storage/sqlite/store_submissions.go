package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertSubmission(ctx context.Context, exec execer, submission storage.SubmissionRecord) error {
	submittedAt := submission.SubmittedAt
	if submittedAt.IsZero() {
		submittedAt = time.Now()
	}
	_, err := exec.ExecContext(
		ctx,
		`INSERT INTO operation_turn_submissions (
		   turn_id, actor_id, ability_id, action_type, tier, target_id, target_stat,
		   base_damage, multiplier, cost_hp, cost_will, is_auto_fail, submitted_by, submitted_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(submission.TurnID),
		strings.TrimSpace(submission.ActorID),
		strings.TrimSpace(submission.AbilityID),
		string(submission.ActionType),
		string(submission.Tier),
		strings.TrimSpace(submission.TargetID),
		string(submission.TargetStat),
		submission.BaseDamage,
		toNullFloat(submission.Multiplier),
		submission.CostHP,
		submission.CostWILL,
		boolToInt(submission.IsAutoFail),
		submission.SubmittedBy,
		toMillis(submittedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// CreateSubmission stores one submission and deducts its cost from the actor.
func (s *Store) CreateSubmission(ctx context.Context, submission storage.SubmissionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(submission.TurnID) == "" {
		return fmt.Errorf("turn id is required")
	}
	if strings.TrimSpace(submission.ActorID) == "" {
		return fmt.Errorf("actor id is required")
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create submission: %w", err)
	}
	rollbackWith := func(cause error) error {
		if rollbackErr := tx.Rollback(); rollbackErr != nil {
			return fmt.Errorf("%w: rollback create submission: %v", cause, rollbackErr)
		}
		return cause
	}

	if err := insertSubmission(ctx, tx, submission); err != nil {
		return rollbackWith(err)
	}

	if submission.CostHP > 0 || submission.CostWILL > 0 {
		result, err := tx.ExecContext(
			ctx,
			`UPDATE characters
			    SET hp_current = hp_current - ?,
			        will_current = will_current - ?,
			        updated_at = ?
			  WHERE id = ? AND hp_current >= ? AND will_current >= ?`,
			submission.CostHP,
			submission.CostWILL,
			toMillis(time.Now()),
			strings.TrimSpace(submission.ActorID),
			submission.CostHP,
			submission.CostWILL,
		)
		if err != nil {
			return rollbackWith(fmt.Errorf("deduct submission cost: %w", err))
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return rollbackWith(fmt.Errorf("deduct submission cost: %w", err))
		}
		if affected == 0 {
			return rollbackWith(storage.ErrInsufficientResources)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit create submission: %w", err)
	}
	return nil
}

// ListSubmissions returns every submission for a turn in submission time order.
func (s *Store) ListSubmissions(ctx context.Context, turnID string) ([]storage.SubmissionRecord, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	turnID = strings.TrimSpace(turnID)
	if turnID == "" {
		return nil, fmt.Errorf("turn id is required")
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT turn_id, actor_id, ability_id, action_type, tier, target_id, target_stat,
		        base_damage, multiplier, cost_hp, cost_will, is_auto_fail, submitted_by, submitted_at
		   FROM operation_turn_submissions
		  WHERE turn_id = ?
		  ORDER BY submitted_at ASC, actor_id ASC`,
		turnID,
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []storage.SubmissionRecord
	for rows.Next() {
		var (
			sub         storage.SubmissionRecord
			actionType  string
			tier        string
			targetStat  string
			multiplier  sql.NullFloat64
			autoFail    int
			submittedAt int64
		)
		if err := rows.Scan(
			&sub.TurnID,
			&sub.ActorID,
			&sub.AbilityID,
			&actionType,
			&tier,
			&sub.TargetID,
			&targetStat,
			&sub.BaseDamage,
			&multiplier,
			&sub.CostHP,
			&sub.CostWILL,
			&autoFail,
			&sub.SubmittedBy,
			&submittedAt,
		); err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		sub.ActionType = engine.ActionType(actionType)
		sub.Tier = engine.Tier(tier)
		sub.TargetStat = engine.Stat(targetStat)
		sub.Multiplier = fromNullFloat(multiplier)
		sub.IsAutoFail = autoFail != 0
		sub.SubmittedAt = fromMillis(submittedAt)
		submissions = append(submissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}
