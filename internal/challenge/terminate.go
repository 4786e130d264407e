package challenge

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/broadcast"
	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/settlement"
)

// Result is the completed-challenge summary broadcast to subscribers and
// returned on the final state change.
type Result struct {
	WinnerID      *string            `json:"winner_id,omitempty"`
	Draw          bool               `json:"draw"`
	PotForfeited  bool               `json:"pot_forfeited"`
	Pot           int64              `json:"pot"`
	FeePercent    int64              `json:"fee_percent"`
	BonusPercent  int64              `json:"bonus_percent"`
	StakeReturned int64              `json:"stake_returned,omitempty"`
	Awards        []settlement.Award `json:"awards,omitempty"`
}

// evaluateTermination checks the mode's termination predicate and, when it
// holds, settles the challenge. Runs with the challenge lock held.
func (r *Registry) evaluateTermination(ctx context.Context, state *State) error {
	if state.Challenge.Status != model.StatusActive {
		return nil
	}
	if !terminated(state.Challenge, state.Players) {
		return nil
	}
	return r.settle(ctx, state)
}

// terminated implements the per-mode termination predicate.
func terminated(ch *model.Challenge, players []*model.Player) bool {
	switch ch.Mode {
	case model.ModeSolo:
		return players[0].Terminal()
	case model.ModeDuo:
		for _, p := range players {
			if p.Failed {
				return true
			}
		}
		return allTerminal(players)
	case model.ModeRoyale:
		return standing(players) <= 1
	case model.ModeGroup:
		if ch.DurationMinutes != nil {
			return allTerminal(players)
		}
		return standing(players) <= 1
	}
	return false
}

func allTerminal(players []*model.Player) bool {
	for _, p := range players {
		if !p.Terminal() {
			return false
		}
	}
	return true
}

// standing counts players who have not failed. Completions in last-standing
// modes keep a player in contention.
func standing(players []*model.Player) int {
	n := 0
	for _, p := range players {
		if !p.Failed {
			n++
		}
	}
	return n
}

// settle computes the payout plan and applies it. The completed status is
// claimed before any money moves, so a payout error can never lead to a
// second settlement; failed credits are surfaced for manual reconciliation.
func (r *Registry) settle(ctx context.Context, state *State) error {
	ch := state.Challenge

	in := settlement.Input{
		Mode:          ch.Mode,
		StakeAmount:   ch.StakeAmount,
		FixedDuration: ch.DurationMinutes != nil,
	}
	for _, p := range state.Players {
		in.Players = append(in.Players, settlement.PlayerOutcome{
			UserID:    p.UserID,
			Failed:    p.Failed,
			Completed: p.Completed,
		})
	}

	// The streak bonus keys off the winner's streak as it stood before this
	// challenge's stats updates for the win.
	if winnerID := prospectiveWinner(ch.Mode, state.Players); winnerID != nil {
		u, err := r.users.GetByID(ctx, *winnerID)
		if err != nil {
			return fmt.Errorf("load winner %d: %w", *winnerID, err)
		}
		in.WinnerStreak = u.CurrentStreak
	}

	plan, err := settlement.Settle(r.tiers, in)
	if err != nil {
		return fmt.Errorf("settle challenge %s: %w", ch.ID, err)
	}

	now := time.Now()
	ch.Status = model.StatusCompleted
	ch.EndedAt = &now
	switch {
	case plan.Draw:
		draw := model.WinnerDraw
		ch.WinnerID = &draw
	case plan.Winner != nil:
		w := strconv.FormatInt(*plan.Winner, 10)
		ch.WinnerID = &w
	}
	if err := r.challenges.UpdateChallenge(ctx, ch); err != nil {
		return fmt.Errorf("complete challenge %s: %w", ch.ID, err)
	}

	if err := r.applyPlan(ctx, ch, plan); err != nil {
		return err
	}

	result := &Result{
		WinnerID:      ch.WinnerID,
		Draw:          plan.Draw,
		PotForfeited:  plan.PotForfeited,
		Pot:           plan.Pot,
		FeePercent:    plan.FeePercent,
		BonusPercent:  plan.BonusPercent,
		StakeReturned: plan.StakeReturned,
		Awards:        plan.Awards,
	}
	log.Info().
		Str("challenge_id", ch.ID).
		Str("mode", string(ch.Mode)).
		Int64("pot", plan.Pot).
		Int64("awarded", plan.TotalAwarded()).
		Bool("draw", plan.Draw).
		Bool("forfeited", plan.PotForfeited).
		Msg("Challenge settled")
	r.hub.Publish(ch.ID, broadcast.EventChallengeCompleted, result)
	return nil
}

// applyPlan moves the money and updates winner stats. Solo completions are
// balance-neutral: the stake was never escrowed, so no credit is written.
func (r *Registry) applyPlan(ctx context.Context, ch *model.Challenge, plan *settlement.Plan) error {
	for _, award := range plan.Awards {
		txType := model.TxTypeWin
		desc := fmt.Sprintf("payout for challenge %s", ch.ID)
		if plan.Draw {
			desc = fmt.Sprintf("stake refund for drawn challenge %s", ch.ID)
		}
		if _, _, err := r.ledger.Credit(ctx, award.UserID, award.Amount, txType, desc, ledger.Refs{ChallengeID: &ch.ID}); err != nil {
			log.Error().Err(err).
				Str("challenge_id", ch.ID).
				Int64("user_id", award.UserID).
				Int64("amount", award.Amount).
				Msg("Settlement payout failed; manual reconciliation required")
			return fmt.Errorf("pay award to user %d for challenge %s: %w", award.UserID, ch.ID, err)
		}
	}

	// A draw is neither a win nor a loss: refunds only, streaks untouched.
	if plan.Draw || plan.PotForfeited {
		return nil
	}

	for _, award := range plan.Awards {
		if _, err := r.users.UpdateStats(ctx, award.UserID, model.StatsDelta{
			Wins:            1,
			MoneyWon:        award.Amount,
			StreakIncrement: true,
		}); err != nil {
			return fmt.Errorf("update winner stats for user %d: %w", award.UserID, err)
		}
	}

	// Solo completion never moves money but still counts as a win.
	if plan.Winner != nil && len(plan.Awards) == 0 {
		if _, err := r.users.UpdateStats(ctx, *plan.Winner, model.StatsDelta{
			Wins:            1,
			StreakIncrement: true,
		}); err != nil {
			return fmt.Errorf("update winner stats for user %d: %w", *plan.Winner, err)
		}
	}
	return nil
}

// prospectiveWinner identifies the single candidate winner before settlement
// runs, for reading their streak. Nil for splits, draws, and forfeits.
func prospectiveWinner(mode model.Mode, players []*model.Player) *int64 {
	switch mode {
	case model.ModeSolo:
		if players[0].Completed {
			return &players[0].UserID
		}
	case model.ModeDuo:
		var failed, survived *model.Player
		for _, p := range players {
			if p.Failed {
				failed = p
			} else {
				survived = p
			}
		}
		if failed != nil && survived != nil {
			return &survived.UserID
		}
	case model.ModeRoyale, model.ModeGroup:
		var last *model.Player
		for _, p := range players {
			if !p.Failed {
				if last != nil {
					return nil
				}
				last = p
			}
		}
		if last != nil {
			return &last.UserID
		}
	}
	return nil
}
