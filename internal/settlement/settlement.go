// Package settlement computes payout distributions for terminated
// challenges. It is pure: given a mode, the per-player stake, and the roster
// outcome, it returns the plan of fee, bonus, and per-player awards. It
// never touches balances itself; the challenge registry applies the plan
// through the ledger.
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"focus-wager-engine/internal/model"
)

// ErrInvalidInput is returned when the roster outcome cannot be settled.
var ErrInvalidInput = errors.New("invalid settlement input")

// Tiers holds the platform fee tiers. The fee is tiered by the per-player
// stake, not by the aggregate pot.
type Tiers struct {
	HighStakeThreshold int64 // minor units; stakes at or above pay the high fee
	HighStakeFeePct    int64
	BaseFeePct         int64
}

// DefaultTiers returns the standard fee schedule: 15% at or above $100
// equivalent (10000 minor units), 10% below.
func DefaultTiers() Tiers {
	return Tiers{
		HighStakeThreshold: 10000,
		HighStakeFeePct:    15,
		BaseFeePct:         10,
	}
}

// FeePercent returns the platform fee percentage for the given stake.
func (t Tiers) FeePercent(stake int64) int64 {
	if stake >= t.HighStakeThreshold {
		return t.HighStakeFeePct
	}
	return t.BaseFeePct
}

// BonusPercent returns the streak bonus percentage for a winner's
// pre-settlement current streak. The bonus applies only to single-winner
// modes and is computed on the fee-adjusted winnings.
func BonusPercent(streak int) int64 {
	switch {
	case streak >= 7:
		return 10
	case streak >= 5:
		return 7
	case streak >= 3:
		return 5
	default:
		return 0
	}
}

// PlayerOutcome is one roster member's terminal state at settlement time.
type PlayerOutcome struct {
	UserID    int64
	Failed    bool
	Completed bool
}

// Input is everything Settle needs. WinnerStreak is the winner's current
// streak read before any stats update; it is ignored for group splits and
// draws.
type Input struct {
	Mode          model.Mode
	StakeAmount   int64
	FixedDuration bool // group mode only: fixed-duration challenges split, open-ended ones are last-standing
	Players       []PlayerOutcome
	WinnerStreak  int
}

// Award is a single settlement credit for one user.
type Award struct {
	UserID int64
	Amount int64
}

// Plan is the computed payout distribution.
type Plan struct {
	FeePercent    int64
	BonusPercent  int64
	Pot           int64 // aggregate escrowed stakes
	Awards        []Award
	Winner        *int64 // single winner, nil for splits/draws/forfeits
	Draw          bool   // duo, both completed
	PotForfeited  bool   // everyone failed; no payout
	StakeReturned int64  // solo completion: nominal stake returned (balance-neutral)
}

// TotalAwarded returns the sum of all award amounts.
func (p *Plan) TotalAwarded() int64 {
	var total int64
	for _, a := range p.Awards {
		total += a.Amount
	}
	return total
}

// Settle computes the payout plan for a terminated challenge.
func Settle(t Tiers, in Input) (*Plan, error) {
	if in.StakeAmount <= 0 {
		return nil, fmt.Errorf("%w: stake must be positive", ErrInvalidInput)
	}
	if len(in.Players) == 0 {
		return nil, fmt.Errorf("%w: empty roster", ErrInvalidInput)
	}

	switch in.Mode {
	case model.ModeSolo:
		return settleSolo(in)
	case model.ModeDuo:
		return settleDuo(t, in)
	case model.ModeRoyale:
		return settleLastStanding(t, in)
	case model.ModeGroup:
		if in.FixedDuration {
			return settleGroupSplit(t, in)
		}
		return settleLastStanding(t, in)
	default:
		return nil, fmt.Errorf("%w: unknown mode %q", ErrInvalidInput, in.Mode)
	}
}

// settleSolo handles the single-player mode. Solo stakes are never pooled:
// a completion is balance-neutral (the stake was never escrowed) and a
// failure's loss debit has already been recorded by the registry.
func settleSolo(in Input) (*Plan, error) {
	if len(in.Players) != 1 {
		return nil, fmt.Errorf("%w: solo roster must have exactly one player", ErrInvalidInput)
	}

	p := in.Players[0]
	plan := &Plan{Pot: 0}
	if p.Completed {
		plan.Winner = &in.Players[0].UserID
		plan.StakeReturned = in.StakeAmount
	} else {
		plan.PotForfeited = true
	}
	return plan, nil
}

func settleDuo(t Tiers, in Input) (*Plan, error) {
	if len(in.Players) != 2 {
		return nil, fmt.Errorf("%w: duo roster must have exactly two players", ErrInvalidInput)
	}

	a, b := in.Players[0], in.Players[1]

	// Both completed: draw, stakes refunded in full, no fee.
	if a.Completed && b.Completed {
		return &Plan{
			Pot:  2 * in.StakeAmount,
			Draw: true,
			Awards: []Award{
				{UserID: a.UserID, Amount: in.StakeAmount},
				{UserID: b.UserID, Amount: in.StakeAmount},
			},
		}, nil
	}

	var winner *PlayerOutcome
	switch {
	case a.Failed && !b.Failed:
		winner = &b
	case b.Failed && !a.Failed:
		winner = &a
	default:
		return nil, fmt.Errorf("%w: duo settlement requires a failure or a double completion", ErrInvalidInput)
	}

	return singleWinnerPlan(t, in, winner.UserID, int64(len(in.Players))), nil
}

// settleLastStanding covers royale and open-ended group challenges: the pot
// goes to the single non-failed player, or is forfeited when all failed.
func settleLastStanding(t Tiers, in Input) (*Plan, error) {
	var remaining []PlayerOutcome
	for _, p := range in.Players {
		if !p.Failed {
			remaining = append(remaining, p)
		}
	}

	switch len(remaining) {
	case 0:
		return &Plan{Pot: in.StakeAmount * int64(len(in.Players)), PotForfeited: true}, nil
	case 1:
		return singleWinnerPlan(t, in, remaining[0].UserID, int64(len(in.Players))), nil
	default:
		return nil, fmt.Errorf("%w: %d players still standing", ErrInvalidInput, len(remaining))
	}
}

// settleGroupSplit covers fixed-duration group challenges: survivors split
// the failed players' stakes after the fee, each additionally recovering
// their own stake.
func settleGroupSplit(t Tiers, in Input) (*Plan, error) {
	var survivors []PlayerOutcome
	failed := int64(0)
	for _, p := range in.Players {
		if p.Failed {
			failed++
		} else {
			survivors = append(survivors, p)
		}
	}

	pot := in.StakeAmount * int64(len(in.Players))
	if len(survivors) == 0 {
		return &Plan{Pot: pot, PotForfeited: true}, nil
	}

	fee := t.FeePercent(in.StakeAmount)
	loserPot := in.StakeAmount * failed
	distributable := roundHalfUp(loserPot, 100-fee)
	perSurvivor := distributable / int64(len(survivors)) // floor; remainder stays with the platform

	plan := &Plan{
		FeePercent: fee,
		Pot:        pot,
	}
	for _, s := range survivors {
		plan.Awards = append(plan.Awards, Award{
			UserID: s.UserID,
			Amount: in.StakeAmount + perSurvivor,
		})
	}
	return plan, nil
}

// singleWinnerPlan computes the duo/royale payout: the full pot minus the
// platform fee, then the streak bonus on the fee-adjusted winnings. Each
// stage is rounded half-up exactly once.
func singleWinnerPlan(t Tiers, in Input, winnerID int64, playerCount int64) *Plan {
	fee := t.FeePercent(in.StakeAmount)
	bonus := BonusPercent(in.WinnerStreak)

	pot := in.StakeAmount * playerCount
	winnings := roundHalfUp(pot, 100-fee)
	total := roundHalfUp(winnings, 100+bonus)

	return &Plan{
		FeePercent:   fee,
		BonusPercent: bonus,
		Pot:          pot,
		Winner:       &winnerID,
		Awards:       []Award{{UserID: winnerID, Amount: total}},
	}
}

// roundHalfUp computes amount*pct/100 rounded half-up.
func roundHalfUp(amount, pct int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(pct)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}
