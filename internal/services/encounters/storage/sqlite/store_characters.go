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

// PutCharacter inserts or replaces one character.
func (s *Store) PutCharacter(ctx context.Context, character storage.CharacterRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(character.ID)
	if id == "" {
		return fmt.Errorf("character id is required")
	}
	if character.HPCurrent < 0 || character.WILLCurrent < 0 {
		return fmt.Errorf("character resources must be non-negative")
	}
	updatedAt := character.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO characters (
		   id, owner_user_id, name, hp_current, hp_max, will_current, will_max, updated_at
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   owner_user_id = excluded.owner_user_id,
		   name = excluded.name,
		   hp_current = excluded.hp_current,
		   hp_max = excluded.hp_max,
		   will_current = excluded.will_current,
		   will_max = excluded.will_max,
		   updated_at = excluded.updated_at`,
		id,
		strings.TrimSpace(character.OwnerUserID),
		strings.TrimSpace(character.Name),
		character.HPCurrent,
		character.HPMax,
		character.WILLCurrent,
		character.WILLMax,
		toMillis(updatedAt),
	)
	if err != nil {
		return fmt.Errorf("put character: %w", err)
	}
	return nil
}

// GetCharacter returns one character by ID.
func (s *Store) GetCharacter(ctx context.Context, id string) (storage.CharacterRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.CharacterRecord{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.CharacterRecord{}, fmt.Errorf("character id is required")
	}

	var (
		character storage.CharacterRecord
		updatedAt int64
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, owner_user_id, name, hp_current, hp_max, will_current, will_max, updated_at
		   FROM characters
		  WHERE id = ?`,
		id,
	).Scan(
		&character.ID,
		&character.OwnerUserID,
		&character.Name,
		&character.HPCurrent,
		&character.HPMax,
		&character.WILLCurrent,
		&character.WILLMax,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.CharacterRecord{}, storage.ErrNotFound
		}
		return storage.CharacterRecord{}, fmt.Errorf("get character: %w", err)
	}
	character.UpdatedAt = fromMillis(updatedAt)
	return character, nil
}

// ReadCharacterResources returns current pools for the known ids.
func (s *Store) ReadCharacterResources(ctx context.Context, ids []string) (map[string]engine.Resources, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	out := make(map[string]engine.Resources, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, 0, len(ids))
	for _, id := range ids {
		args = append(args, id)
	}

	rows, err := s.sqlDB.QueryContext(
		ctx,
		`SELECT id, hp_current, will_current FROM characters WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("read character resources: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id  string
			res engine.Resources
		)
		if err := rows.Scan(&id, &res.HP, &res.WILL); err != nil {
			return nil, fmt.Errorf("read character resources: %w", err)
		}
		out[id] = res
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read character resources: %w", err)
	}
	return out, nil
}

// PutAbility inserts or replaces one ability.
func (s *Store) PutAbility(ctx context.Context, ability storage.AbilityRecord) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	id := strings.TrimSpace(ability.ID)
	if id == "" {
		return fmt.Errorf("ability id is required")
	}
	if strings.TrimSpace(ability.CharacterID) == "" {
		return fmt.Errorf("character id is required")
	}

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO abilities (id, character_id, name, tier, action_type, cost_hp, cost_will)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET
		   character_id = excluded.character_id,
		   name = excluded.name,
		   tier = excluded.tier,
		   action_type = excluded.action_type,
		   cost_hp = excluded.cost_hp,
		   cost_will = excluded.cost_will`,
		id,
		strings.TrimSpace(ability.CharacterID),
		strings.TrimSpace(ability.Name),
		string(ability.Tier),
		string(ability.ActionType),
		ability.CostHP,
		ability.CostWILL,
	)
	if err != nil {
		return fmt.Errorf("put ability: %w", err)
	}
	return nil
}

// GetAbility returns one ability by ID.
func (s *Store) GetAbility(ctx context.Context, id string) (storage.AbilityRecord, error) {
	if err := s.ready(ctx); err != nil {
		return storage.AbilityRecord{}, err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return storage.AbilityRecord{}, fmt.Errorf("ability id is required")
	}

	var (
		ability    storage.AbilityRecord
		tier       string
		actionType string
	)
	err := s.sqlDB.QueryRowContext(
		ctx,
		`SELECT id, character_id, name, tier, action_type, cost_hp, cost_will
		   FROM abilities
		  WHERE id = ?`,
		id,
	).Scan(&ability.ID, &ability.CharacterID, &ability.Name, &tier, &actionType, &ability.CostHP, &ability.CostWILL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.AbilityRecord{}, storage.ErrNotFound
		}
		return storage.AbilityRecord{}, fmt.Errorf("get ability: %w", err)
	}
	ability.Tier = engine.Tier(tier)
	ability.ActionType = engine.ActionType(actionType)
	return ability, nil
}
