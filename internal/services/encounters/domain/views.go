package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/louisbranch/opsroom/internal/services/encounters/domain/engine"
	"github.com/louisbranch/opsroom/internal/services/encounters/storage"
)

// ActionView is a resolved action as stored and returned to clients.
type ActionView struct {
	ActorID     string  `json:"actor_id"`
	Submitted   bool    `json:"submitted"`
	ActionType  string  `json:"action_type"`
	Tier        string  `json:"tier"`
	TargetID    string  `json:"target_id"`
	TargetStat  string  `json:"target_stat"`
	BaseDamage  int     `json:"base_damage"`
	Multiplier  float64 `json:"multiplier"`
	Grade       string  `json:"grade"`
	FinalDamage int     `json:"final_damage"`
}

// EffectView is one audit effect.
type EffectView struct {
	Source     string `json:"source"`
	Target     string `json:"target"`
	TargetStat string `json:"target_stat"`
	Damage     int    `json:"damage"`
	Reason     string `json:"reason"`
}

// ParticipantView is a participant's post-resolution state.
type ParticipantView struct {
	ID   string `json:"id"`
	Team string `json:"team"`
	HP   int    `json:"hp"`
	WILL int    `json:"will"`
}

// TurnResolution is the result of resolving, or replaying, a turn.
type TurnResolution struct {
	IdempotencyKey  string            `json:"idempotency_key"`
	EncounterID     string            `json:"encounter_id"`
	TurnID          string            `json:"turn_id"`
	Replayed        bool              `json:"replayed"`
	Actions         []ActionView      `json:"actions"`
	Effects         []EffectView      `json:"effects"`
	Participants    []ParticipantView `json:"participants"`
	Summary         engine.Summary    `json:"summary"`
	EncounterStatus string            `json:"encounter_status"`
	NextTurnID      string            `json:"next_turn_id,omitempty"`
	ResolvedBy      string            `json:"resolved_by"`
	ResolvedAt      time.Time         `json:"resolved_at"`
}

// SubmissionView is one stored submission.
type SubmissionView struct {
	TurnID      string    `json:"turn_id"`
	ActorID     string    `json:"actor_id"`
	AbilityID   string    `json:"ability_id,omitempty"`
	ActionType  string    `json:"action_type"`
	Tier        string    `json:"tier"`
	TargetID    string    `json:"target_id"`
	TargetStat  string    `json:"target_stat"`
	BaseDamage  int       `json:"base_damage"`
	Multiplier  *float64  `json:"multiplier,omitempty"`
	CostHP      int       `json:"cost_hp"`
	CostWILL    int       `json:"cost_will"`
	IsAutoFail  bool      `json:"is_auto_fail"`
	SubmittedBy string    `json:"submitted_by,omitempty"`
	SubmittedAt time.Time `json:"submitted_at"`
}

func actionViews(actions []engine.ResolvedAction) []ActionView {
	views := make([]ActionView, 0, len(actions))
	for _, a := range actions {
		views = append(views, ActionView{
			ActorID:     a.ActorID,
			Submitted:   a.Submitted,
			ActionType:  string(a.ActionType),
			Tier:        string(a.Tier),
			TargetID:    a.TargetID,
			TargetStat:  string(a.TargetStat),
			BaseDamage:  a.BaseDamage,
			Multiplier:  a.Multiplier,
			Grade:       string(a.Grade),
			FinalDamage: a.FinalDamage,
		})
	}
	return views
}

func effectViews(effects []engine.Effect) []EffectView {
	views := make([]EffectView, 0, len(effects))
	for _, e := range effects {
		views = append(views, EffectView{
			Source:     e.Source,
			Target:     e.Target,
			TargetStat: string(e.TargetStat),
			Damage:     e.Damage,
			Reason:     e.Reason,
		})
	}
	return views
}

func effectRecordViews(rows []storage.EffectRecord) []EffectView {
	views := make([]EffectView, 0, len(rows))
	for _, row := range rows {
		views = append(views, EffectView{
			Source:     row.SourceID,
			Target:     row.TargetID,
			TargetStat: string(row.TargetStat),
			Damage:     row.Damage,
			Reason:     row.Reason,
		})
	}
	return views
}

func participantViews(states []engine.ParticipantState) []ParticipantView {
	views := make([]ParticipantView, 0, len(states))
	for _, p := range states {
		views = append(views, ParticipantView{ID: p.ID, Team: p.Team, HP: p.HP, WILL: p.WILL})
	}
	return views
}

func submissionView(sub storage.SubmissionRecord) SubmissionView {
	return SubmissionView{
		TurnID:      sub.TurnID,
		ActorID:     sub.ActorID,
		AbilityID:   sub.AbilityID,
		ActionType:  string(sub.ActionType),
		Tier:        string(sub.Tier),
		TargetID:    sub.TargetID,
		TargetStat:  string(sub.TargetStat),
		BaseDamage:  sub.BaseDamage,
		Multiplier:  sub.Multiplier,
		CostHP:      sub.CostHP,
		CostWILL:    sub.CostWILL,
		IsAutoFail:  sub.IsAutoFail,
		SubmittedBy: sub.SubmittedBy,
		SubmittedAt: sub.SubmittedAt,
	}
}

// resolutionFromRecord decodes a stored resolution.
func resolutionFromRecord(rec storage.ResolutionRecord) (TurnResolution, error) {
	res := TurnResolution{
		IdempotencyKey:  rec.IdempotencyKey,
		EncounterID:     rec.EncounterID,
		TurnID:          rec.TurnID,
		EncounterStatus: rec.EncounterStatus,
		NextTurnID:      rec.NextTurnID,
		ResolvedBy:      rec.ResolvedBy,
		ResolvedAt:      rec.CreatedAt,
		Actions:         []ActionView{},
		Effects:         []EffectView{},
		Participants:    []ParticipantView{},
	}
	for _, col := range []struct {
		name   string
		data   []byte
		target any
	}{
		{"actions", rec.ActionsJSON, &res.Actions},
		{"effects", rec.EffectsJSON, &res.Effects},
		{"participants", rec.ParticipantsJSON, &res.Participants},
		{"summary", rec.SummaryJSON, &res.Summary},
	} {
		if len(col.data) == 0 {
			continue
		}
		if err := json.Unmarshal(col.data, col.target); err != nil {
			return TurnResolution{}, fmt.Errorf("decode resolution %s: %w", col.name, err)
		}
	}
	if res.Summary.Defeated == nil {
		res.Summary.Defeated = []string{}
	}
	return res, nil
}
