package memory

import (
	"context"
	"sort"
	"time"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

// UserStore is the in-memory repository.UserStore implementation.
type UserStore struct {
	s *Store
}

var _ repository.UserStore = (*UserStore)(nil)

// GetOrCreate returns the user, lazily creating the account with a zero
// balance on first interaction.
func (r *UserStore) GetOrCreate(ctx context.Context, userID int64) (*model.User, bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if u, ok := r.s.users[userID]; ok {
		return cloneUser(u), false, nil
	}
	now := time.Now()
	u := &model.User{ID: userID, CreatedAt: now, UpdatedAt: now}
	r.s.users[userID] = u
	return cloneUser(u), true, nil
}

func (r *UserStore) GetByID(ctx context.Context, userID int64) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return cloneUser(u), nil
}

// UpdateStats applies a stats delta in a single write. Reset runs before
// increment so a simultaneous reset+increment lands on 1, and bestStreak is
// raised after the streak settles.
func (r *UserStore) UpdateStats(ctx context.Context, userID int64, delta model.StatsDelta) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[userID]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	u.TotalSessions += delta.Sessions
	u.TotalWins += delta.Wins
	u.TotalFocusMinutes += delta.FocusMinutes
	u.MoneyWon += delta.MoneyWon
	u.MoneyLost += delta.MoneyLost
	if delta.StreakReset {
		u.CurrentStreak = 0
	}
	if delta.StreakIncrement {
		u.CurrentStreak++
	}
	if u.CurrentStreak > u.BestStreak {
		u.BestStreak = u.CurrentStreak
	}
	u.UpdatedAt = time.Now()
	return cloneUser(u), nil
}

func (r *UserStore) top(less func(a, b *model.User) bool, limit int) []*model.User {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]*model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return less(out[i], out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (r *UserStore) TopByMoneyWon(ctx context.Context, limit int) ([]*model.User, error) {
	return r.top(func(a, b *model.User) bool { return a.MoneyWon > b.MoneyWon }, limit), nil
}

func (r *UserStore) TopByStreak(ctx context.Context, limit int) ([]*model.User, error) {
	return r.top(func(a, b *model.User) bool { return a.BestStreak > b.BestStreak }, limit), nil
}

func (r *UserStore) TopByWins(ctx context.Context, limit int) ([]*model.User, error) {
	return r.top(func(a, b *model.User) bool { return a.TotalWins > b.TotalWins }, limit), nil
}
