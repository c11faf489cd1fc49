package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// CreateSubmission stores one submission and deducts its cost from the actor.
// The characters CHECK constraints reject a deduction below zero.
func (s *Store) CreateSubmission(ctx context.Context, submission storage.SubmissionRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if strings.TrimSpace(submission.TurnID) == "" || strings.TrimSpace(submission.ActorID) == "" {
		return fmt.Errorf("turn id and actor id are required")
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

	if _, err := tx.ExecContext(
		ctx,
		`INSERT INTO operation_turn_submissions (
		   turn_id, actor_id, ability_id, action_type, tier, target_id, target_stat,
		   base_damage, multiplier, cost_hp, cost_will, is_auto_fail, submitted_by, submitted_at
		 ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		strings.TrimSpace(submission.TurnID),
		strings.TrimSpace(submission.ActorID),
		strings.TrimSpace(submission.AbilityID),
		string(submission.ActionType),
		string(submission.Tier),
		strings.TrimSpace(submission.TargetID),
		string(submission.TargetStat),
		submission.BaseDamage,
		nullFloat(submission.Multiplier),
		submission.CostHP,
		submission.CostWILL,
		submission.IsAutoFail,
		submission.SubmittedBy,
		orNow(submission.SubmittedAt),
	); err != nil {
		if isUniqueViolation(err) {
			return rollbackWith(storage.ErrConflict)
		}
		return rollbackWith(fmt.Errorf("insert submission: %w", err))
	}

	if submission.CostHP > 0 || submission.CostWILL > 0 {
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE characters
			    SET hp_current = hp_current - $1,
			        will_current = will_current - $2,
			        updated_at = $3
			  WHERE id = $4`,
			submission.CostHP,
			submission.CostWILL,
			time.Now().UTC(),
			strings.TrimSpace(submission.ActorID),
		); err != nil {
			if isCheckViolation(err) {
				return rollbackWith(storage.ErrInsufficientResources)
			}
			return rollbackWith(fmt.Errorf("deduct submission cost: %w", err))
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
	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT turn_id, actor_id, ability_id, action_type, tier, target_id, target_stat,
		        base_damage, multiplier, cost_hp, cost_will, is_auto_fail, submitted_by, submitted_at
		   FROM operation_turn_submissions
		  WHERE turn_id = $1
		  ORDER BY submitted_at ASC, actor_id ASC`,
		strings.TrimSpace(turnID),
	)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	var submissions []storage.SubmissionRecord
	for rows.Next() {
		var (
			sub        storage.SubmissionRecord
			actionType string
			tier       string
			targetStat string
			multiplier sql.NullFloat64
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
			&sub.IsAutoFail,
			&sub.SubmittedBy,
			&sub.SubmittedAt,
		); err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		sub.ActionType = engine.ActionType(actionType)
		sub.Tier = engine.Tier(tier)
		sub.TargetStat = engine.Stat(targetStat)
		sub.Multiplier = fromNullFloat(multiplier)
		sub.SubmittedAt = sub.SubmittedAt.UTC()
		submissions = append(submissions, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return submissions, nil
}
