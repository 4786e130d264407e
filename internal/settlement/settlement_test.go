package settlement

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-wager-engine/internal/model"
)

func TestFeePercentTiers(t *testing.T) {
	tiers := DefaultTiers()

	tests := []struct {
		name     string
		stake    int64
		expected int64
	}{
		{"below threshold - $99", 9900, 10},
		{"at threshold - $100", 10000, 15},
		{"above threshold", 25000, 15},
		{"tiny stake", 100, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tiers.FeePercent(tt.stake))
		})
	}
}

func TestBonusPercentTiers(t *testing.T) {
	tests := []struct {
		name     string
		streak   int
		expected int64
	}{
		{"no streak", 0, 0},
		{"streak 2 - no bonus", 2, 0},
		{"streak 3 - 5%", 3, 5},
		{"streak 4 - 5%", 4, 5},
		{"streak 5 - 7%", 5, 7},
		{"streak 6 - 7%", 6, 7},
		{"streak 7 - 10%", 7, 10},
		{"streak 8 - 10%", 8, 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BonusPercent(tt.streak))
		})
	}
}

func TestSettleSoloCompletion(t *testing.T) {
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeSolo,
		StakeAmount: 2000,
		Players:     []PlayerOutcome{{UserID: 7, Completed: true}},
	})
	require.NoError(t, err)

	// Solo completions are balance-neutral: the stake was never pooled, so
	// no award and no fee, only the nominal stake returned.
	require.NotNil(t, plan.Winner)
	assert.Equal(t, int64(7), *plan.Winner)
	assert.Empty(t, plan.Awards)
	assert.Equal(t, int64(0), plan.FeePercent)
	assert.Equal(t, int64(2000), plan.StakeReturned)
}

func TestSettleSoloFailure(t *testing.T) {
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeSolo,
		StakeAmount: 2000,
		Players:     []PlayerOutcome{{UserID: 7, Failed: true}},
	})
	require.NoError(t, err)

	assert.Nil(t, plan.Winner)
	assert.True(t, plan.PotForfeited)
	assert.Empty(t, plan.Awards)
}

func TestSettleDuoWin(t *testing.T) {
	// Two players at $10 each, pot $20, player A fails, 10% fee:
	// payout = round(2000 * 0.9) = 1800.
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeDuo,
		StakeAmount: 1000,
		Players: []PlayerOutcome{
			{UserID: 1, Failed: true},
			{UserID: 2, Completed: true},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, plan.Winner)
	assert.Equal(t, int64(2), *plan.Winner)
	require.Len(t, plan.Awards, 1)
	assert.Equal(t, int64(1800), plan.Awards[0].Amount)
	assert.Equal(t, int64(10), plan.FeePercent)
}

func TestSettleDuoWinWithStreakBonus(t *testing.T) {
	tests := []struct {
		name     string
		streak   int
		expected int64
	}{
		{"streak 2 - no bonus", 2, 1800},
		{"streak 6 - 7% bonus", 6, 1926}, // round(1800 * 1.07)
		{"streak 8 - 10% bonus", 8, 1980},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := Settle(DefaultTiers(), Input{
				Mode:        model.ModeDuo,
				StakeAmount: 1000,
				Players: []PlayerOutcome{
					{UserID: 1, Failed: true},
					{UserID: 2},
				},
				WinnerStreak: tt.streak,
			})
			require.NoError(t, err)
			require.Len(t, plan.Awards, 1)
			assert.Equal(t, tt.expected, plan.Awards[0].Amount)
		})
	}
}

func TestSettleDuoDraw(t *testing.T) {
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeDuo,
		StakeAmount: 1000,
		Players: []PlayerOutcome{
			{UserID: 1, Completed: true},
			{UserID: 2, Completed: true},
		},
	})
	require.NoError(t, err)

	assert.True(t, plan.Draw)
	assert.Nil(t, plan.Winner)
	require.Len(t, plan.Awards, 2)
	// Full refunds, no fee.
	assert.Equal(t, int64(1000), plan.Awards[0].Amount)
	assert.Equal(t, int64(1000), plan.Awards[1].Amount)
}

func TestSettleRoyaleLastStanding(t *testing.T) {
	// Five players at $10, four fail: pot $50 minus 10% fee = $45.
	players := []PlayerOutcome{
		{UserID: 1, Failed: true},
		{UserID: 2, Failed: true},
		{UserID: 3, Failed: true},
		{UserID: 4, Failed: true},
		{UserID: 5},
	}
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeRoyale,
		StakeAmount: 1000,
		Players:     players,
	})
	require.NoError(t, err)

	require.NotNil(t, plan.Winner)
	assert.Equal(t, int64(5), *plan.Winner)
	require.Len(t, plan.Awards, 1)
	assert.Equal(t, int64(4500), plan.Awards[0].Amount)
}

func TestSettleRoyaleAllFailed(t *testing.T) {
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeRoyale,
		StakeAmount: 1000,
		Players: []PlayerOutcome{
			{UserID: 1, Failed: true},
			{UserID: 2, Failed: true},
		},
	})
	require.NoError(t, err)

	assert.True(t, plan.PotForfeited)
	assert.Empty(t, plan.Awards)
	assert.Equal(t, int64(2000), plan.Pot)
}

func TestSettleGroupSplit(t *testing.T) {
	// Fixed-duration group, 3 survive and 2 fail at $15:
	// loserPot = $30, distributable after 10% fee = $27, perSurvivor = $9,
	// each survivor recovers their own $15 stake plus $9.
	plan, err := Settle(DefaultTiers(), Input{
		Mode:          model.ModeGroup,
		StakeAmount:   1500,
		FixedDuration: true,
		Players: []PlayerOutcome{
			{UserID: 1, Completed: true},
			{UserID: 2, Completed: true},
			{UserID: 3, Completed: true},
			{UserID: 4, Failed: true},
			{UserID: 5, Failed: true},
		},
	})
	require.NoError(t, err)

	assert.Nil(t, plan.Winner)
	require.Len(t, plan.Awards, 3)
	for _, a := range plan.Awards {
		assert.Equal(t, int64(2400), a.Amount)
	}
}

func TestSettleGroupSplitNoFailures(t *testing.T) {
	// Everyone survives: no loser pot, everyone gets their stake back.
	plan, err := Settle(DefaultTiers(), Input{
		Mode:          model.ModeGroup,
		StakeAmount:   1500,
		FixedDuration: true,
		Players: []PlayerOutcome{
			{UserID: 1, Completed: true},
			{UserID: 2, Completed: true},
		},
	})
	require.NoError(t, err)

	require.Len(t, plan.Awards, 2)
	for _, a := range plan.Awards {
		assert.Equal(t, int64(1500), a.Amount)
	}
}

func TestSettleGroupOpenEndedIsLastStanding(t *testing.T) {
	plan, err := Settle(DefaultTiers(), Input{
		Mode:        model.ModeGroup,
		StakeAmount: 1000,
		Players: []PlayerOutcome{
			{UserID: 1, Failed: true},
			{UserID: 2, Failed: true},
			{UserID: 3},
		},
	})
	require.NoError(t, err)

	require.NotNil(t, plan.Winner)
	assert.Equal(t, int64(3), *plan.Winner)
	require.Len(t, plan.Awards, 1)
	assert.Equal(t, int64(2700), plan.Awards[0].Amount)
}

func TestSettleInvalidInput(t *testing.T) {
	tests := []struct {
		name  string
		input Input
	}{
		{"zero stake", Input{Mode: model.ModeSolo, StakeAmount: 0, Players: []PlayerOutcome{{UserID: 1}}}},
		{"empty roster", Input{Mode: model.ModeDuo, StakeAmount: 100}},
		{"unknown mode", Input{Mode: "poker", StakeAmount: 100, Players: []PlayerOutcome{{UserID: 1}}}},
		{"duo without outcome", Input{Mode: model.ModeDuo, StakeAmount: 100, Players: []PlayerOutcome{{UserID: 1}, {UserID: 2}}}},
		{"royale with two standing", Input{Mode: model.ModeRoyale, StakeAmount: 100, Players: []PlayerOutcome{{UserID: 1}, {UserID: 2}, {UserID: 3, Failed: true}}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Settle(DefaultTiers(), tt.input)
			assert.ErrorIs(t, err, ErrInvalidInput)
		})
	}
}
