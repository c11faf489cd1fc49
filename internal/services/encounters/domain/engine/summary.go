package engine

// Summary is the execution summary persisted with a resolution.
type Summary struct {
	Submitted   int      `json:"submitted"`
	AutoFailed  int      `json:"auto_failed"`
	TotalDamage int      `json:"total_damage"`
	Defeated    []string `json:"defeated"`
}

// Summarize counts resolved actions and lists every participant left at zero
// HP, including those already at zero when the turn began.
func Summarize(actions []ResolvedAction, final []ParticipantState) Summary {
	summary := Summary{Defeated: []string{}}
	for _, a := range actions {
		if a.Submitted {
			summary.Submitted++
		} else {
			summary.AutoFailed++
		}
		if a.ActionType == ActionAttack {
			summary.TotalDamage += a.FinalDamage
		}
	}
	for _, p := range final {
		if p.HP <= 0 {
			summary.Defeated = append(summary.Defeated, p.ID)
		}
	}
	return summary
}
