package engine

// ActionType is the kind of action a participant declares for a turn.
type ActionType string

const (
	ActionAttack  ActionType = "attack"
	ActionDefend  ActionType = "defend"
	ActionSupport ActionType = "support"
)

// Valid reports whether t is a known action type.
func (t ActionType) Valid() bool {
	switch t {
	case ActionAttack, ActionDefend, ActionSupport:
		return true
	}
	return false
}

// Tier is an ability's power class.
type Tier string

const (
	TierBasic    Tier = "basic"
	TierMid      Tier = "mid"
	TierAdvanced Tier = "advanced"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	_, ok := DamageFactorByTier[t]
	return ok
}

// Stat names the resource pool an attack drains.
type Stat string

const (
	StatHP   Stat = "hp"
	StatWILL Stat = "will"
)

// Valid reports whether s is a known stat.
func (s Stat) Valid() bool {
	return s == StatHP || s == StatWILL
}

// Grade is the derived outcome label of a resolved action.
type Grade string

const (
	GradeSuccess Grade = "success"
	GradePartial Grade = "partial"
	GradeFail    Grade = "fail"
)

// Valid reports whether g is a known grade.
func (g Grade) Valid() bool {
	switch g {
	case GradeSuccess, GradePartial, GradeFail:
		return true
	}
	return false
}

// ParticipantState is the per-resolution view of one participant.
// Team is carried for display only.
type ParticipantState struct {
	ID   string
	Team string
	HP   int
	WILL int
}

// Drain subtracts amount from the given stat, clamping at zero.
func (p *ParticipantState) Drain(stat Stat, amount int) {
	switch stat {
	case StatHP:
		p.HP = max(p.HP-amount, 0)
	case StatWILL:
		p.WILL = max(p.WILL-amount, 0)
	}
}

// ActionInput is one participant's declared action for the turn, or the
// synthesized placeholder for a participant who did not submit.
type ActionInput struct {
	ActorID    string
	Submitted  bool
	ActionType ActionType
	Tier       Tier
	// TargetID is the attacked participant for attacks and the beneficiary
	// for defend/support.
	TargetID   string
	TargetStat Stat
	BaseDamage int
	Multiplier float64
}

// ResolvedAction is an ActionInput with its derived grade and applied damage.
type ResolvedAction struct {
	ActionInput
	Grade       Grade
	FinalDamage int
}

// Effect is one auditable state change produced by a resolution.
type Effect struct {
	Source     string
	Target     string
	TargetStat Stat
	Damage     int
	Reason     string
}

// EffectReasonAttack labels effects produced by attack actions.
const EffectReasonAttack = "attack"
