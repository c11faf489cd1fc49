package domain

import (
	"context"
	"errors"
	"strings"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// GetTurnResolution returns the stored resolution of a turn. The encounter GM
// and owners of participating characters may read it.
func (s *Service) GetTurnResolution(ctx context.Context, encounterID, turnID, callerUserID string) (result TurnResolution, err error) {
	ctx, span := s.startSpan(ctx, "encounters.GetTurnResolution", encounterID)
	defer func() { endSpan(span, err) }()

	if err := s.configured(); err != nil {
		return TurnResolution{}, err
	}
	encounterID = strings.TrimSpace(encounterID)
	turnID = strings.TrimSpace(turnID)
	if encounterID == "" || turnID == "" {
		return TurnResolution{}, invalidArgument("encounter id and turn id are required")
	}

	encounter, err := s.loadEncounter(ctx, encounterID)
	if err != nil {
		return TurnResolution{}, err
	}
	if err := s.requireMember(ctx, encounter, callerUserID); err != nil {
		return TurnResolution{}, err
	}
	if _, err := s.loadTurn(ctx, encounterID, turnID); err != nil {
		return TurnResolution{}, err
	}

	rec, err := s.store.GetResolutionByTurn(ctx, turnID)
	if err != nil {
		return TurnResolution{}, storageError(err, apperrors.CodeResolutionNotFound, "get resolution")
	}
	if rec.EncounterID != encounterID {
		return TurnResolution{}, apperrors.New(apperrors.CodeResolutionNotFound, "resolution not found")
	}
	result, err = resolutionFromRecord(rec)
	if err != nil {
		return TurnResolution{}, err
	}

	// Effects come from the audit trail written with the resolution.
	trail, err := s.store.ListResolutionEffects(ctx, rec.IdempotencyKey)
	if err != nil {
		return TurnResolution{}, storageError(err, apperrors.CodeResolutionNotFound, "list resolution effects")
	}
	result.Effects = effectRecordViews(trail)
	return result, nil
}

// ListSubmissions returns every submission of a turn. GM only.
func (s *Service) ListSubmissions(ctx context.Context, encounterID, turnID, callerUserID string) ([]SubmissionView, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}
	encounterID = strings.TrimSpace(encounterID)
	turnID = strings.TrimSpace(turnID)
	if encounterID == "" || turnID == "" {
		return nil, invalidArgument("encounter id and turn id are required")
	}

	encounter, err := s.loadEncounter(ctx, encounterID)
	if err != nil {
		return nil, err
	}
	if err := requireGM(encounter, callerUserID); err != nil {
		return nil, err
	}
	if _, err := s.loadTurn(ctx, encounterID, turnID); err != nil {
		return nil, err
	}

	subs, err := s.store.ListSubmissions(ctx, turnID)
	if err != nil {
		return nil, storageError(err, apperrors.CodeTurnNotFound, "list submissions")
	}
	views := make([]SubmissionView, 0, len(subs))
	for _, sub := range subs {
		views = append(views, submissionView(sub))
	}
	return views, nil
}

// AuthorizeWatch checks that the caller may follow the encounter's live feed.
func (s *Service) AuthorizeWatch(ctx context.Context, encounterID, callerUserID string) error {
	if err := s.configured(); err != nil {
		return err
	}
	encounterID = strings.TrimSpace(encounterID)
	if encounterID == "" {
		return invalidArgument("encounter id is required")
	}
	encounter, err := s.loadEncounter(ctx, encounterID)
	if err != nil {
		return err
	}
	return s.requireMember(ctx, encounter, callerUserID)
}

// requireMember allows the GM and owners of any participating character.
func (s *Service) requireMember(ctx context.Context, encounter storage.EncounterRecord, callerUserID string) error {
	if strings.TrimSpace(callerUserID) == "" {
		return apperrors.New(apperrors.CodeUnauthenticated, "caller is required")
	}
	if encounter.GMUserID == callerUserID {
		return nil
	}
	roster, err := s.store.ListParticipants(ctx, encounter.ID)
	if err != nil {
		return storageError(err, apperrors.CodeEncounterNotFound, "list participants")
	}
	for _, p := range roster {
		character, err := s.store.GetCharacter(ctx, p.CharacterID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				continue
			}
			return storageError(err, apperrors.CodeCharacterNotFound, "get character")
		}
		if character.OwnerUserID == callerUserID {
			return nil
		}
	}
	return apperrors.New(apperrors.CodePermissionDenied, "caller is not part of this encounter")
}
