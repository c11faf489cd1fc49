package engine

import "math"

const (
	guardFactor  = 0.5
	supportBonus = 0.25
)

// TurnOutcome is the result of resolving one turn.
type TurnOutcome struct {
	// Participants is the post-resolution state. It never aliases the input map.
	Participants map[string]ParticipantState
	// Actions are the resolved actions in input order.
	Actions []ResolvedAction
}

// ResolveTurn resolves actions in order against participants.
//
// A pre-scan over submitted actions builds the guard map (defend sets
// guard[target] to 0.5) and the support map (support sets support[actor] to
// 0.25); repeated declarations overwrite earlier ones. Each action is then
// resolved in input order. Attacks apply the actor's support bonus and the
// target's guard, and drain the target stat clamped at zero. An attack on an
// id not present in participants resolves its damage but changes nothing.
func ResolveTurn(participants map[string]ParticipantState, actions []ActionInput) TurnOutcome {
	state := make(map[string]ParticipantState, len(participants))
	for id, p := range participants {
		state[id] = p
	}

	guard := make(map[string]float64)
	support := make(map[string]float64)
	for _, action := range actions {
		if !action.Submitted {
			continue
		}
		switch action.ActionType {
		case ActionDefend:
			guard[action.TargetID] = guardFactor
		case ActionSupport:
			support[action.ActorID] = supportBonus
		}
	}

	resolved := make([]ResolvedAction, 0, len(actions))
	for _, action := range actions {
		if !action.Submitted {
			resolved = append(resolved, ResolvedAction{ActionInput: action, Grade: GradeFail})
			continue
		}

		damage := baseDamage(action)
		if action.ActionType == ActionAttack {
			damage = floorInt(float64(damage) * (1 + support[action.ActorID]))
			if g, ok := guard[action.TargetID]; ok {
				damage = floorInt(float64(damage) * g)
			}
			if target, ok := state[action.TargetID]; ok {
				target.Drain(action.TargetStat, damage)
				state[action.TargetID] = target
			}
		}

		resolved = append(resolved, ResolvedAction{
			ActionInput: action,
			Grade:       gradeFor(damage, action.Multiplier),
			FinalDamage: damage,
		})
	}

	return TurnOutcome{Participants: state, Actions: resolved}
}

func baseDamage(action ActionInput) int {
	return floorInt(float64(action.BaseDamage) * TierFactor(action.Tier) * math.Max(0, action.Multiplier))
}

func gradeFor(damage int, multiplier float64) Grade {
	switch {
	case damage <= 0:
		return GradeFail
	case multiplier < 1:
		return GradePartial
	default:
		return GradeSuccess
	}
}

func floorInt(v float64) int {
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return int(math.Floor(v))
}
