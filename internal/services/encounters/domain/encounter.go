package domain

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// ParticipantInput places one character on a team.
type ParticipantInput struct {
	CharacterID string
	Team        string
}

// CreateEncounterInput opens a new encounter with its first turn.
type CreateEncounterInput struct {
	OperationID  string
	Name         string
	GMUserID     string
	Participants []ParticipantInput
}

// CreatedEncounter identifies a newly opened encounter.
type CreatedEncounter struct {
	EncounterID string `json:"encounter_id"`
	TurnID      string `json:"turn_id"`
}

// CreateEncounter opens an encounter between at least two teams. Submission
// order follows the participant order given.
func (s *Service) CreateEncounter(ctx context.Context, in CreateEncounterInput) (CreatedEncounter, error) {
	if err := s.configured(); err != nil {
		return CreatedEncounter{}, err
	}
	gm := strings.TrimSpace(in.GMUserID)
	if gm == "" {
		return CreatedEncounter{}, invalidArgument("gm user id is required")
	}
	if len(in.Participants) < 2 {
		return CreatedEncounter{}, invalidArgument("an encounter needs at least two participants")
	}

	teams := make(map[string]bool)
	seen := make(map[string]bool)
	participants := make([]storage.ParticipantRecord, 0, len(in.Participants))
	for i, p := range in.Participants {
		characterID := strings.TrimSpace(p.CharacterID)
		team := strings.TrimSpace(p.Team)
		if characterID == "" || team == "" {
			return CreatedEncounter{}, invalidArgument(fmt.Sprintf("participant %d needs a character id and a team", i))
		}
		if seen[characterID] {
			return CreatedEncounter{}, invalidArgument(fmt.Sprintf("character %s is listed twice", characterID))
		}
		if _, err := s.store.GetCharacter(ctx, characterID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return CreatedEncounter{}, apperrors.WithMetadata(
					apperrors.CodeCharacterNotFound,
					"participant character not found",
					map[string]string{"CharacterID": characterID},
				)
			}
			return CreatedEncounter{}, storageError(err, apperrors.CodeCharacterNotFound, "get character")
		}
		seen[characterID] = true
		teams[team] = true
		participants = append(participants, storage.ParticipantRecord{
			CharacterID:     characterID,
			Team:            team,
			SubmissionOrder: i,
			IsActive:        true,
		})
	}
	if len(teams) < 2 {
		return CreatedEncounter{}, invalidArgument("an encounter needs at least two teams")
	}

	encounterID, err := s.newID()
	if err != nil {
		return CreatedEncounter{}, fmt.Errorf("generate encounter id: %w", err)
	}
	turnID, err := s.newID()
	if err != nil {
		return CreatedEncounter{}, fmt.Errorf("generate turn id: %w", err)
	}
	now := s.now()
	for i := range participants {
		participants[i].EncounterID = encounterID
	}
	err = s.store.CreateEncounter(ctx,
		storage.EncounterRecord{
			ID:          encounterID,
			OperationID: strings.TrimSpace(in.OperationID),
			Name:        strings.TrimSpace(in.Name),
			Status:      storage.EncounterActive,
			GMUserID:    gm,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		participants,
		storage.TurnRecord{ID: turnID, EncounterID: encounterID, TurnNumber: 1, Status: storage.TurnOpen, OpenedAt: now},
	)
	if err != nil {
		return CreatedEncounter{}, storageError(err, apperrors.CodeNotFound, "create encounter")
	}
	s.logger.InfoContext(ctx, "encounter created",
		slog.String("encounter_id", encounterID),
		slog.Int("participants", len(participants)),
	)
	return CreatedEncounter{EncounterID: encounterID, TurnID: turnID}, nil
}
