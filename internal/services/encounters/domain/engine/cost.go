package engine

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/opsroom/internal/platform/errors"
)

var (
	// ErrInsufficientCost indicates a participant cannot pay an ability cost.
	ErrInsufficientCost = apperrors.New(apperrors.CodeInsufficientCost, "insufficient cost")
	// ErrInvalidCost indicates a negative ability cost.
	ErrInvalidCost = apperrors.New(apperrors.CodeInvalidCost, "invalid cost")
)

// Resources is a participant's current HP and WILL pools.
type Resources struct {
	HP   int `json:"hp"`
	WILL int `json:"will"`
}

// Cost is the HP and WILL an ability consumes when used.
type Cost struct {
	HP   int
	WILL int
}

// IsZero reports whether the cost consumes nothing.
func (c Cost) IsZero() bool {
	return c.HP == 0 && c.WILL == 0
}

// ApplyActionCost returns the resources left after paying cost.
//
// It fails with INSUFFICIENT_COST when either pool is short; callers must
// reject the action before mutating anything. HP is checked before WILL.
func ApplyActionCost(current Resources, cost Cost) (Resources, error) {
	if cost.HP < 0 || cost.WILL < 0 {
		return Resources{}, apperrors.WithMetadata(
			apperrors.CodeInvalidCost,
			fmt.Sprintf("invalid cost: hp %d, will %d", cost.HP, cost.WILL),
			map[string]string{"HP": strconv.Itoa(cost.HP), "WILL": strconv.Itoa(cost.WILL)},
		)
	}
	if current.HP < cost.HP {
		return Resources{}, insufficientCostError(StatHP, current.HP, cost.HP)
	}
	if current.WILL < cost.WILL {
		return Resources{}, insufficientCostError(StatWILL, current.WILL, cost.WILL)
	}
	return Resources{
		HP:   max(current.HP-cost.HP, 0),
		WILL: max(current.WILL-cost.WILL, 0),
	}, nil
}

func insufficientCostError(stat Stat, have, need int) *apperrors.Error {
	return apperrors.WithMetadata(
		apperrors.CodeInsufficientCost,
		fmt.Sprintf("insufficient %s: have %d, need %d", stat, have, need),
		map[string]string{
			"Resource": string(stat),
			"Have":     strconv.Itoa(have),
			"Need":     strconv.Itoa(need),
		},
	)
}
