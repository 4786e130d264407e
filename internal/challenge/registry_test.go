package challenge

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"focus-wager-engine/internal/broadcast"
	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/pkg/lock"
	"focus-wager-engine/internal/repository"
	"focus-wager-engine/internal/repository/memory"
	"focus-wager-engine/internal/settlement"
)

func newTestRegistry() (*Registry, *memory.Store, *broadcast.Hub) {
	store := memory.NewStore()
	hub := broadcast.NewHub()
	l := ledger.New(store.Ledger(), store.Users(), lock.NewKeyedLock[int64]())
	r := NewRegistry(store.Challenges(), store.Users(), l, settlement.DefaultTiers(), hub)
	return r, store, hub
}

func deposit(t *testing.T, store *memory.Store, userID, amount int64) {
	t.Helper()
	ctx := context.Background()
	_, _, err := store.Users().GetOrCreate(ctx, userID)
	require.NoError(t, err)
	_, _, err = store.Ledger().Apply(ctx, repository.LedgerEntry{
		UserID: userID, Amount: amount, Type: model.TxTypeDeposit,
	})
	require.NoError(t, err)
}

func balance(t *testing.T, store *memory.Store, userID int64) int64 {
	t.Helper()
	u, err := store.Users().GetByID(context.Background(), userID)
	require.NoError(t, err)
	return u.Balance
}

func durPtr(minutes int) *int { return &minutes }

func TestCreateValidation(t *testing.T) {
	r, _, _ := newTestRegistry()
	ctx := context.Background()

	tests := []struct {
		name   string
		params CreateParams
	}{
		{"unknown mode", CreateParams{Mode: "poker", StakeAmount: 100, DurationMinutes: durPtr(25), MaxPlayers: 2, CreatorID: 1}},
		{"zero stake", CreateParams{Mode: model.ModeSolo, StakeAmount: 0, DurationMinutes: durPtr(25), MaxPlayers: 1, CreatorID: 1}},
		{"solo without duration", CreateParams{Mode: model.ModeSolo, StakeAmount: 100, MaxPlayers: 1, CreatorID: 1}},
		{"royale with duration", CreateParams{Mode: model.ModeRoyale, StakeAmount: 100, DurationMinutes: durPtr(25), MaxPlayers: 5, CreatorID: 1}},
		{"solo with two seats", CreateParams{Mode: model.ModeSolo, StakeAmount: 100, DurationMinutes: durPtr(25), MaxPlayers: 2, CreatorID: 1}},
		{"duo with three seats", CreateParams{Mode: model.ModeDuo, StakeAmount: 100, DurationMinutes: durPtr(25), MaxPlayers: 3, CreatorID: 1}},
		{"group with one seat", CreateParams{Mode: model.ModeGroup, StakeAmount: 100, MaxPlayers: 1, CreatorID: 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := r.Create(ctx, tt.params)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestGetNotFound(t *testing.T) {
	r, _, _ := newTestRegistry()
	_, err := r.Get(context.Background(), "NOPE1234")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSoloLifecycle(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 7, 2000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
		MaxPlayers: 1, CreatorID: 7, CreatorName: "ada",
	})
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, state.Challenge.Status)
	assert.Len(t, state.Challenge.ID, 8)
	// Solo stakes are never escrowed at join time.
	assert.Equal(t, int64(2000), balance(t, store, 7))

	state, err = r.Ready(ctx, state.Challenge.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, state.Challenge.Status)
	require.NotNil(t, state.Challenge.StartedAt)

	state, err = r.Complete(ctx, state.Challenge.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	require.NotNil(t, state.Challenge.WinnerID)
	assert.Equal(t, "7", *state.Challenge.WinnerID)

	// Completion is balance-neutral but still counts as a win.
	assert.Equal(t, int64(2000), balance(t, store, 7))
	u, err := store.Users().GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, 1, u.TotalSessions)
	assert.Equal(t, 1, u.TotalWins)
	assert.Equal(t, 1, u.CurrentStreak)
	assert.Equal(t, 25, u.TotalFocusMinutes)
}

func TestSoloFailureForfeitsStake(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 7, 2000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
		MaxPlayers: 1, CreatorID: 7,
	})
	require.NoError(t, err)
	_, err = r.Ready(ctx, state.Challenge.ID, 7)
	require.NoError(t, err)

	state, err = r.Fail(ctx, state.Challenge.ID, 7, "phone unlocked")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	assert.Nil(t, state.Challenge.WinnerID)

	assert.Equal(t, int64(0), balance(t, store, 7))
	u, err := store.Users().GetByID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), u.MoneyLost)
	assert.Equal(t, 0, u.CurrentStreak)
}

func TestSoloFailureWithInsufficientFundsChangesNothing(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 7, 500)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
		MaxPlayers: 1, CreatorID: 7,
	})
	require.NoError(t, err)
	_, err = r.Ready(ctx, state.Challenge.ID, 7)
	require.NoError(t, err)

	// The loss debit is all-or-nothing: a rejected debit flips no flags.
	_, err = r.Fail(ctx, state.Challenge.ID, 7, "gave up")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	state, err = r.Get(ctx, state.Challenge.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, state.Challenge.Status)
	assert.False(t, state.Players[0].Failed)
	assert.Equal(t, int64(500), balance(t, store, 7))
}

func TestDuoLifecycle(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 5000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1, CreatorName: "ada",
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	assert.Equal(t, int64(4000), balance(t, store, 1), "creator stake escrowed")

	state, err = r.Join(ctx, id, 2, "grace")
	require.NoError(t, err)
	assert.Len(t, state.Players, 2)
	assert.Equal(t, int64(4000), balance(t, store, 2), "joiner stake escrowed")

	state, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPending, state.Challenge.Status, "one ready is not quorum")

	state, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)
	assert.Equal(t, model.StatusActive, state.Challenge.Status)

	// Creator fails: the other player takes the pot minus the 10% fee.
	state, err = r.Fail(ctx, id, 1, "left the desk")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	require.NotNil(t, state.Challenge.WinnerID)
	assert.Equal(t, "2", *state.Challenge.WinnerID)

	assert.Equal(t, int64(4000), balance(t, store, 1))
	assert.Equal(t, int64(5800), balance(t, store, 2))

	loser, err := store.Users().GetByID(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), loser.MoneyLost)
	assert.Equal(t, 0, loser.CurrentStreak)

	winner, err := store.Users().GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 1, winner.TotalWins)
	assert.Equal(t, int64(1800), winner.MoneyWon)
	assert.Equal(t, 1, winner.CurrentStreak)
}

func TestDuoWinnerStreakBonus(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 5000)

	// Winner enters the challenge on a six-win streak: 7% bonus tier.
	for i := 0; i < 6; i++ {
		_, err := store.Users().UpdateStats(ctx, 2, model.StatsDelta{StreakIncrement: true})
		require.NoError(t, err)
	}

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	_, err = r.Join(ctx, id, 2, "grace")
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)

	_, err = r.Fail(ctx, id, 1, "distracted")
	require.NoError(t, err)

	// round(1800 * 1.07) = 1926 on top of the 4000 left after escrow.
	assert.Equal(t, int64(5926), balance(t, store, 2))
	winner, err := store.Users().GetByID(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 7, winner.CurrentStreak)
}

func TestDuoDrawRefundsStakes(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 5000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	_, err = r.Join(ctx, id, 2, "grace")
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)

	_, err = r.Complete(ctx, id, 1)
	require.NoError(t, err)
	state, err = r.Complete(ctx, id, 2)
	require.NoError(t, err)

	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	require.NotNil(t, state.Challenge.WinnerID)
	assert.Equal(t, model.WinnerDraw, *state.Challenge.WinnerID)

	// Full refunds, no fee, no streak movement either way.
	assert.Equal(t, int64(5000), balance(t, store, 1))
	assert.Equal(t, int64(5000), balance(t, store, 2))
	for _, userID := range []int64{1, 2} {
		u, err := store.Users().GetByID(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, 0, u.TotalWins)
		assert.Equal(t, 0, u.CurrentStreak)
	}
}

func TestJoinConflicts(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	for id := int64(1); id <= 4; id++ {
		deposit(t, store, id, 5000)
	}

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID

	// Duplicate join is a no-op re-confirmation, not a second debit.
	_, err = r.Join(ctx, id, 1, "ada")
	require.NoError(t, err)
	assert.Equal(t, int64(4000), balance(t, store, 1))

	_, err = r.Join(ctx, id, 2, "grace")
	require.NoError(t, err)

	_, err = r.Join(ctx, id, 3, "joan")
	assert.ErrorIs(t, err, ErrConflict, "roster is full")
	assert.Equal(t, int64(5000), balance(t, store, 3), "rejected join must not debit")

	_, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)

	_, err = r.Join(ctx, id, 4, "mary")
	assert.ErrorIs(t, err, ErrConflict, "challenge already started")

	_, err = r.Fail(ctx, id, 1, "distracted")
	require.NoError(t, err)

	_, err = r.Join(ctx, id, 4, "mary")
	assert.ErrorIs(t, err, ErrInvalidState, "challenge already completed")
}

func TestJoinInsufficientFunds(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 500)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)

	_, err = r.Join(ctx, state.Challenge.ID, 2, "grace")
	assert.ErrorIs(t, err, repository.ErrInsufficientFunds)

	state, err = r.Get(ctx, state.Challenge.ID)
	require.NoError(t, err)
	assert.Len(t, state.Players, 1)
}

func TestRoyaleLastStanding(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	for id := int64(1); id <= 5; id++ {
		deposit(t, store, id, 5000)
	}

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeRoyale, StakeAmount: 1000, MaxPlayers: 5, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	for userID := int64(2); userID <= 5; userID++ {
		_, err = r.Join(ctx, id, userID, "")
		require.NoError(t, err)
	}
	for userID := int64(1); userID <= 5; userID++ {
		_, err = r.Ready(ctx, id, userID)
		require.NoError(t, err)
	}

	state, err = r.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, model.StatusActive, state.Challenge.Status)

	for userID := int64(1); userID <= 3; userID++ {
		state, err = r.Fail(ctx, id, userID, "eliminated")
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, state.Challenge.Status, "two or more standing")
	}

	// Fourth failure leaves one standing: pot $50 minus 10% fee = $45.
	state, err = r.Fail(ctx, id, 4, "eliminated")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	require.NotNil(t, state.Challenge.WinnerID)
	assert.Equal(t, "5", *state.Challenge.WinnerID)
	assert.Equal(t, int64(8500), balance(t, store, 5))
}

func TestGroupFixedDurationSplit(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	for id := int64(1); id <= 5; id++ {
		deposit(t, store, id, 5000)
	}

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeGroup, StakeAmount: 1500, DurationMinutes: durPtr(60),
		MaxPlayers: 5, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	for userID := int64(2); userID <= 5; userID++ {
		_, err = r.Join(ctx, id, userID, "")
		require.NoError(t, err)
	}
	for userID := int64(1); userID <= 5; userID++ {
		_, err = r.Ready(ctx, id, userID)
		require.NoError(t, err)
	}

	_, err = r.Fail(ctx, id, 4, "distracted")
	require.NoError(t, err)
	_, err = r.Fail(ctx, id, 5, "distracted")
	require.NoError(t, err)
	for userID := int64(1); userID <= 2; userID++ {
		state, err = r.Complete(ctx, id, userID)
		require.NoError(t, err)
		assert.Equal(t, model.StatusActive, state.Challenge.Status, "roster not yet terminal")
	}

	state, err = r.Complete(ctx, id, 3)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	assert.Nil(t, state.Challenge.WinnerID, "splits have no single winner")

	// Each survivor recovers their $15 stake plus $9 from the loser pot:
	// 5000 - 1500 + 2400 = 5900.
	for userID := int64(1); userID <= 3; userID++ {
		assert.Equal(t, int64(5900), balance(t, store, userID))
	}
	for userID := int64(4); userID <= 5; userID++ {
		assert.Equal(t, int64(3500), balance(t, store, userID))
	}
}

func TestTerminalFlagsAreSticky(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	for id := int64(1); id <= 3; id++ {
		deposit(t, store, id, 5000)
	}

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeRoyale, StakeAmount: 1000, MaxPlayers: 3, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	for userID := int64(2); userID <= 3; userID++ {
		_, err = r.Join(ctx, id, userID, "")
		require.NoError(t, err)
	}
	for userID := int64(1); userID <= 3; userID++ {
		_, err = r.Ready(ctx, id, userID)
		require.NoError(t, err)
	}

	_, err = r.Fail(ctx, id, 1, "eliminated")
	require.NoError(t, err)

	_, err = r.Fail(ctx, id, 1, "eliminated again")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = r.Complete(ctx, id, 1)
	assert.ErrorIs(t, err, ErrConflict)
}

// TestConcurrentDuoFailuresSettleOnce races both players' failure reports.
// Exactly one triggers settlement; the loser pays once and the winner is
// paid once.
func TestConcurrentDuoFailuresSettleOnce(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 5000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	_, err = r.Join(ctx, id, 2, "")
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, userID := range []int64{1, 2} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = r.Fail(ctx, id, userID, "raced")
		}()
	}
	wg.Wait()

	var failures int
	for _, err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrInvalidState)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one failure report lands")

	state, err = r.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)

	// Money conservation: 10000 staked in, 2000 pooled, 1800 paid out.
	total := balance(t, store, 1) + balance(t, store, 2)
	assert.Equal(t, int64(9800), total)
}

// TestPublishedRosterIsDetachedFromSettlement completes a solo challenge
// with a subscriber attached. The roster event published for the completion
// must freeze the pre-settlement state: settlement writes must never show
// through a payload that was already handed to subscribers.
func TestPublishedRosterIsDetachedFromSettlement(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 7, 2000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
		MaxPlayers: 1, CreatorID: 7,
	})
	require.NoError(t, err)
	id := state.Challenge.ID

	sub, err := r.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Unsubscribe()
	<-sub.Events() // snapshot

	_, err = r.Ready(ctx, id, 7)
	require.NoError(t, err)
	<-sub.Events() // challenge started

	final, err := r.Complete(ctx, id, 7)
	require.NoError(t, err)
	require.Equal(t, model.StatusCompleted, final.Challenge.Status)

	ev := <-sub.Events()
	require.Equal(t, broadcast.EventRosterChanged, ev.Type)
	roster, ok := ev.Payload.(*State)
	require.True(t, ok)
	require.NotSame(t, final.Challenge, roster.Challenge)
	assert.Equal(t, model.StatusActive, roster.Challenge.Status, "roster event precedes settlement")
	assert.Nil(t, roster.Challenge.WinnerID)
	assert.True(t, roster.Players[0].Completed)

	ev = <-sub.Events()
	assert.Equal(t, broadcast.EventChallengeCompleted, ev.Type)
}

// TestSubscriberReadsDuringSettlement drives completions to settlement while
// a subscriber goroutine reads every field of every payload, so the race
// detector can catch any sharing between published payloads and registry
// writes.
func TestSubscriberReadsDuringSettlement(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		userID := int64(100 + i)
		deposit(t, store, userID, 2000)

		state, err := r.Create(ctx, CreateParams{
			Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
			MaxPlayers: 1, CreatorID: userID,
		})
		require.NoError(t, err)
		id := state.Challenge.ID

		sub, err := r.Subscribe(ctx, id)
		require.NoError(t, err)

		done := make(chan struct{})
		go func() {
			defer close(done)
			for ev := range sub.Events() {
				st, ok := ev.Payload.(*State)
				if !ok {
					continue
				}
				_ = st.Challenge.Status
				_ = st.Challenge.WinnerID
				_ = st.Challenge.EndedAt
				for _, p := range st.Players {
					_ = p.Completed
					_ = p.Failed
				}
			}
		}()

		_, err = r.Ready(ctx, id, userID)
		require.NoError(t, err)
		_, err = r.Complete(ctx, id, userID)
		require.NoError(t, err)

		sub.Unsubscribe()
		<-done
	}
}

// TestSoloFailureRetryDebitsOnce replays a failure report whose first
// attempt debited the loss but never reached the player flag write. The
// retry must finish the transition without charging the stake a second time.
func TestSoloFailureRetryDebitsOnce(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 7, 2000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeSolo, StakeAmount: 2000, DurationMinutes: durPtr(25),
		MaxPlayers: 1, CreatorID: 7,
	})
	require.NoError(t, err)
	id := state.Challenge.ID
	_, err = r.Ready(ctx, id, 7)
	require.NoError(t, err)

	// The stranded first attempt: the loss debit landed, the flag write
	// did not.
	ref := soloLossRef(id, 7)
	_, _, err = store.Ledger().Apply(ctx, repository.LedgerEntry{
		UserID: 7, Amount: -2000, Type: model.TxTypeLoss,
		ChallengeID: &id, ExternalRef: &ref,
	})
	require.NoError(t, err)
	require.Equal(t, int64(0), balance(t, store, 7))

	state, err = r.Fail(ctx, id, 7, "gave up")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, state.Challenge.Status)
	assert.True(t, state.Players[0].Failed)
	assert.Equal(t, int64(0), balance(t, store, 7), "retry must not debit again")
}

func TestLifecycleEventsPublished(t *testing.T) {
	r, store, _ := newTestRegistry()
	ctx := context.Background()
	deposit(t, store, 1, 5000)
	deposit(t, store, 2, 5000)

	state, err := r.Create(ctx, CreateParams{
		Mode: model.ModeDuo, StakeAmount: 1000, DurationMinutes: durPtr(50),
		MaxPlayers: 2, CreatorID: 1,
	})
	require.NoError(t, err)
	id := state.Challenge.ID

	sub, err := r.Subscribe(ctx, id)
	require.NoError(t, err)
	defer sub.Unsubscribe()

	_, err = r.Join(ctx, id, 2, "grace")
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 1)
	require.NoError(t, err)
	_, err = r.Ready(ctx, id, 2)
	require.NoError(t, err)
	_, err = r.Fail(ctx, id, 1, "distracted")
	require.NoError(t, err)

	var types []broadcast.EventType
	for i := 0; i < 6; i++ {
		types = append(types, (<-sub.Events()).Type)
	}
	assert.Equal(t, []broadcast.EventType{
		broadcast.EventSnapshot,
		broadcast.EventRosterChanged,      // join
		broadcast.EventRosterChanged,      // first ready
		broadcast.EventChallengeStarted,   // quorum
		broadcast.EventPlayerFailed,       // failure report
		broadcast.EventChallengeCompleted, // settlement
	}, types)
}
