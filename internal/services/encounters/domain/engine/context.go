package engine

import (
	"context"
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
)

// ErrCharacterNotFound indicates a roster participant without a character row.
var ErrCharacterNotFound = apperrors.New(apperrors.CodeCharacterNotFound, "character not found")

// RosterEntry is one encounter participant.
type RosterEntry struct {
	CharacterID     string
	Team            string
	SubmissionOrder int
}

// SubmissionRow is a persisted turn submission, including auto-fail rows.
type SubmissionRow struct {
	ActorID    string
	ActionType ActionType
	Tier       Tier
	TargetID   string
	TargetStat Stat
	BaseDamage int
	// Multiplier is nil when the submitter did not set one.
	Multiplier *float64
	IsAutoFail bool
}

// JudgementAction is a GM override for one actor.
type JudgementAction struct {
	ActorID    string
	Multiplier *float64
	Grade      Grade
}

// CharacterReader loads current resource pools for characters.
// Ids with no character row are left out of the returned map.
type CharacterReader interface {
	ReadCharacterResources(ctx context.Context, ids []string) (map[string]Resources, error)
}

// ResolutionInput groups everything BuildResolution needs for a turn.
type ResolutionInput struct {
	Roster      []RosterEntry
	Submissions []SubmissionRow
	Judgement   []JudgementAction
}

// Resolution is the output of BuildResolution.
type Resolution struct {
	Resolved []ResolvedAction
	Effects  []Effect
	// Initial and Final are participant snapshots in roster order.
	Initial []ParticipantState
	Final   []ParticipantState
}

// MultiplierResolver picks the effective multiplier for an actor.
type MultiplierResolver struct {
	overrides map[string]float64
	stored    map[string]float64
}

// NewMultiplierResolver indexes judgement overrides and stored multipliers.
// Later entries for the same actor win.
func NewMultiplierResolver(judgement []JudgementAction, submissions []SubmissionRow) MultiplierResolver {
	r := MultiplierResolver{
		overrides: make(map[string]float64),
		stored:    make(map[string]float64),
	}
	for _, j := range judgement {
		if j.Multiplier != nil {
			r.overrides[j.ActorID] = *j.Multiplier
		}
	}
	for _, s := range submissions {
		if s.Multiplier != nil {
			r.stored[s.ActorID] = *s.Multiplier
		}
	}
	return r
}

// ResolveMultiplier returns the judgement override for actorID, else the
// stored submission multiplier, else 1.
func (r MultiplierResolver) ResolveMultiplier(actorID string) float64 {
	if m, ok := r.overrides[actorID]; ok {
		return m
	}
	if m, ok := r.stored[actorID]; ok {
		return m
	}
	return 1
}

// BuildResolution loads participant state, resolves the turn, and derives effects.
//
// Submissions are ordered by their actor's roster submission order; rows from
// actors outside the roster keep their relative order after roster actors.
// A roster participant without a character row fails the whole resolution
// with CHARACTER_NOT_FOUND.
func BuildResolution(ctx context.Context, reader CharacterReader, in ResolutionInput) (Resolution, error) {
	if reader == nil {
		return Resolution{}, fmt.Errorf("character reader is required")
	}

	ids := make([]string, 0, len(in.Roster))
	for _, entry := range in.Roster {
		ids = append(ids, entry.CharacterID)
	}
	resources, err := reader.ReadCharacterResources(ctx, ids)
	if err != nil {
		return Resolution{}, fmt.Errorf("read character resources: %w", err)
	}

	participants := make(map[string]ParticipantState, len(in.Roster))
	initial := make([]ParticipantState, 0, len(in.Roster))
	for _, entry := range in.Roster {
		res, ok := resources[entry.CharacterID]
		if !ok {
			return Resolution{}, apperrors.WithMetadata(
				apperrors.CodeCharacterNotFound,
				fmt.Sprintf("character %s not found", entry.CharacterID),
				map[string]string{"CharacterID": entry.CharacterID},
			)
		}
		p := ParticipantState{ID: entry.CharacterID, Team: entry.Team, HP: res.HP, WILL: res.WILL}
		participants[entry.CharacterID] = p
		initial = append(initial, p)
	}

	multipliers := NewMultiplierResolver(in.Judgement, in.Submissions)
	ordered := orderSubmissions(in.Roster, in.Submissions)
	actions := make([]ActionInput, 0, len(ordered))
	for _, row := range ordered {
		actions = append(actions, ActionInput{
			ActorID:    row.ActorID,
			Submitted:  !row.IsAutoFail,
			ActionType: row.ActionType,
			Tier:       row.Tier,
			TargetID:   row.TargetID,
			TargetStat: row.TargetStat,
			BaseDamage: row.BaseDamage,
			Multiplier: multipliers.ResolveMultiplier(row.ActorID),
		})
	}

	outcome := ResolveTurn(participants, actions)

	final := make([]ParticipantState, 0, len(in.Roster))
	for _, entry := range in.Roster {
		final = append(final, outcome.Participants[entry.CharacterID])
	}

	return Resolution{
		Resolved: outcome.Actions,
		Effects:  EffectsFor(outcome.Actions),
		Initial:  initial,
		Final:    final,
	}, nil
}

// EffectsFor returns one attack effect per attack that dealt damage.
func EffectsFor(actions []ResolvedAction) []Effect {
	var effects []Effect
	for _, a := range actions {
		if a.ActionType != ActionAttack || a.FinalDamage <= 0 {
			continue
		}
		effects = append(effects, Effect{
			Source:     a.ActorID,
			Target:     a.TargetID,
			TargetStat: a.TargetStat,
			Damage:     a.FinalDamage,
			Reason:     EffectReasonAttack,
		})
	}
	return effects
}

func orderSubmissions(roster []RosterEntry, rows []SubmissionRow) []SubmissionRow {
	// Roster slice position breaks submission_order ties.
	sortedRoster := make([]RosterEntry, len(roster))
	copy(sortedRoster, roster)
	sort.SliceStable(sortedRoster, func(i, j int) bool {
		return sortedRoster[i].SubmissionOrder < sortedRoster[j].SubmissionOrder
	})
	rank := make(map[string]int, len(sortedRoster))
	for i, entry := range sortedRoster {
		if _, seen := rank[entry.CharacterID]; !seen {
			rank[entry.CharacterID] = i
		}
	}

	ordered := make([]SubmissionRow, len(rows))
	copy(ordered, rows)
	sort.SliceStable(ordered, func(i, j int) bool {
		ri, iok := rank[ordered[i].ActorID]
		rj, jok := rank[ordered[j].ActorID]
		switch {
		case iok && jok:
			return ri < rj
		default:
			return iok && !jok
		}
	})
	return ordered
}
