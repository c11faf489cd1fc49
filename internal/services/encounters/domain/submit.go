package domain

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/live"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// SubmitActionInput is one participant's declared action.
type SubmitActionInput struct {
	EncounterID  string
	TurnID       string
	ActorID      string
	AbilityID    string
	ActionType   string
	Tier         string
	TargetID     string
	TargetStat   string
	BaseDamage   int
	Multiplier   *float64
	CallerUserID string
	// DryRun checks the submission and its cost without persisting anything.
	DryRun bool
}

// SubmitActionResult reports the accepted submission and the actor's pools
// after paying its cost.
type SubmitActionResult struct {
	Submission SubmissionView   `json:"submission"`
	Remaining  engine.Resources `json:"remaining"`
	DryRun     bool             `json:"dry_run"`
}

type validatedSubmission struct {
	actionType engine.ActionType
	tier       engine.Tier
	targetStat engine.Stat
}

func validateSubmission(in *SubmitActionInput) (validatedSubmission, error) {
	in.EncounterID = strings.TrimSpace(in.EncounterID)
	in.TurnID = strings.TrimSpace(in.TurnID)
	in.ActorID = strings.TrimSpace(in.ActorID)
	in.AbilityID = strings.TrimSpace(in.AbilityID)
	in.TargetID = strings.TrimSpace(in.TargetID)
	if in.EncounterID == "" {
		return validatedSubmission{}, invalidArgument("encounter id is required")
	}
	if in.TurnID == "" {
		return validatedSubmission{}, invalidArgument("turn id is required")
	}
	if in.ActorID == "" {
		return validatedSubmission{}, invalidArgument("actor id is required")
	}
	if in.TargetID == "" {
		return validatedSubmission{}, invalidArgument("target id is required")
	}

	v := validatedSubmission{
		actionType: engine.ActionType(strings.ToLower(strings.TrimSpace(in.ActionType))),
		tier:       engine.Tier(strings.ToLower(strings.TrimSpace(in.Tier))),
		targetStat: engine.Stat(strings.ToLower(strings.TrimSpace(in.TargetStat))),
	}
	if !v.actionType.Valid() {
		return validatedSubmission{}, invalidValue(apperrors.CodeSubmissionInvalidAction, "action type", in.ActionType)
	}
	if !v.targetStat.Valid() {
		return validatedSubmission{}, invalidValue(apperrors.CodeSubmissionInvalidStat, "target stat", in.TargetStat)
	}
	if v.tier == "" {
		v.tier = engine.TierBasic
	}
	if !v.tier.Valid() {
		return validatedSubmission{}, invalidValue(apperrors.CodeSubmissionInvalidTier, "tier", in.Tier)
	}
	if in.BaseDamage < MinBaseDamage || in.BaseDamage > MaxBaseDamage {
		return validatedSubmission{}, outOfRange(apperrors.CodeSubmissionDamageRange, "base damage", MinBaseDamage, MaxBaseDamage)
	}
	if in.Multiplier != nil && (*in.Multiplier < MinMultiplier || *in.Multiplier > MaxMultiplier) {
		return validatedSubmission{}, outOfRange(apperrors.CodeSubmissionMultiplierRange, "multiplier", MinMultiplier, MaxMultiplier)
	}
	return v, nil
}

// SubmitAction validates and records one participant action for an open turn,
// deducting the ability cost from the actor.
func (s *Service) SubmitAction(ctx context.Context, in SubmitActionInput) (result SubmitActionResult, err error) {
	ctx, span := s.startSpan(ctx, "encounters.SubmitAction", in.EncounterID)
	defer func() { endSpan(span, err) }()

	if err := s.configured(); err != nil {
		return SubmitActionResult{}, err
	}
	v, err := validateSubmission(&in)
	if err != nil {
		return SubmitActionResult{}, err
	}
	if strings.TrimSpace(in.CallerUserID) == "" {
		return SubmitActionResult{}, apperrors.New(apperrors.CodeUnauthenticated, "caller is required")
	}

	encounter, err := s.loadEncounter(ctx, in.EncounterID)
	if err != nil {
		return SubmitActionResult{}, err
	}
	if encounter.Status != storage.EncounterActive {
		return SubmitActionResult{}, apperrors.New(apperrors.CodeEncounterClosed, "encounter is closed")
	}
	turn, err := s.loadTurn(ctx, in.EncounterID, in.TurnID)
	if err != nil {
		return SubmitActionResult{}, err
	}
	if turn.Status != storage.TurnOpen {
		return SubmitActionResult{}, apperrors.New(apperrors.CodeTurnNotOpen, "turn is not open")
	}

	roster, err := s.store.ListParticipants(ctx, in.EncounterID)
	if err != nil {
		return SubmitActionResult{}, storageError(err, apperrors.CodeEncounterNotFound, "list participants")
	}
	actor, ok := findParticipant(roster, in.ActorID)
	if !ok || !actor.IsActive {
		return SubmitActionResult{}, notParticipant(in.ActorID)
	}
	if _, ok := findParticipant(roster, in.TargetID); !ok {
		return SubmitActionResult{}, notParticipant(in.TargetID)
	}

	character, err := s.store.GetCharacter(ctx, in.ActorID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return SubmitActionResult{}, apperrors.WithMetadata(
				apperrors.CodeCharacterNotFound,
				"actor character not found",
				map[string]string{"CharacterID": in.ActorID},
			)
		}
		return SubmitActionResult{}, storageError(err, apperrors.CodeCharacterNotFound, "get character")
	}
	if character.OwnerUserID != in.CallerUserID && encounter.GMUserID != in.CallerUserID {
		return SubmitActionResult{}, apperrors.New(apperrors.CodePermissionDenied, "caller does not control this character")
	}

	var cost engine.Cost
	if in.AbilityID != "" {
		ability, err := s.store.GetAbility(ctx, in.AbilityID)
		if err != nil {
			return SubmitActionResult{}, storageError(err, apperrors.CodeAbilityNotFound, "get ability")
		}
		if ability.CharacterID != in.ActorID {
			return SubmitActionResult{}, apperrors.New(apperrors.CodeAbilityNotFound, "ability does not belong to actor")
		}
		if ability.ActionType != v.actionType {
			return SubmitActionResult{}, invalidValue(apperrors.CodeSubmissionInvalidAction, "action type", in.ActionType)
		}
		v.tier = ability.Tier
		cost = ability.Cost()
	}

	remaining, err := engine.ApplyActionCost(character.Resources(), cost)
	if err != nil {
		return SubmitActionResult{}, err
	}

	submission := storage.SubmissionRecord{
		TurnID:      in.TurnID,
		ActorID:     in.ActorID,
		AbilityID:   in.AbilityID,
		ActionType:  v.actionType,
		Tier:        v.tier,
		TargetID:    in.TargetID,
		TargetStat:  v.targetStat,
		BaseDamage:  in.BaseDamage,
		Multiplier:  in.Multiplier,
		CostHP:      cost.HP,
		CostWILL:    cost.WILL,
		SubmittedBy: in.CallerUserID,
		SubmittedAt: s.now(),
	}
	result = SubmitActionResult{Submission: submissionView(submission), Remaining: remaining, DryRun: in.DryRun}
	if in.DryRun {
		s.metrics.Submission(ctx, string(v.actionType), true)
		return result, nil
	}

	if err := s.store.CreateSubmission(ctx, submission); err != nil {
		switch {
		case errors.Is(err, storage.ErrConflict):
			return SubmitActionResult{}, apperrors.Wrap(apperrors.CodeSubmissionExists, "submission already exists", err)
		case errors.Is(err, storage.ErrInsufficientResources):
			// Pools changed since the check above; report against fresh values.
			if fresh, getErr := s.store.GetCharacter(ctx, in.ActorID); getErr == nil {
				if _, costErr := engine.ApplyActionCost(fresh.Resources(), cost); costErr != nil {
					return SubmitActionResult{}, costErr
				}
			}
			return SubmitActionResult{}, apperrors.Wrap(apperrors.CodeInsufficientCost, "insufficient resources", err)
		default:
			return SubmitActionResult{}, storageError(err, apperrors.CodeTurnNotFound, "create submission")
		}
	}

	s.logger.InfoContext(ctx, "submission accepted",
		slog.String("encounter_id", in.EncounterID),
		slog.String("turn_id", in.TurnID),
		slog.String("actor_id", in.ActorID),
		slog.String("action_type", string(v.actionType)),
	)
	s.metrics.Submission(ctx, string(v.actionType), false)
	s.publish(live.Event{
		Type:        live.EventSubmissionAccepted,
		EncounterID: in.EncounterID,
		TurnID:      in.TurnID,
		Data:        map[string]string{"actor_id": in.ActorID},
	})
	return result, nil
}
