package service

import (
	"context"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

// Leaderboards bundles the three rankings shown side by side.
type Leaderboards struct {
	ByMoneyWon []*model.User `json:"by_money_won"`
	ByStreak   []*model.User `json:"by_streak"`
	ByWins     []*model.User `json:"by_wins"`
}

// StatsService exposes per-user aggregates and the leaderboards.
type StatsService struct {
	users repository.UserStore
}

// NewStatsService creates a StatsService instance.
func NewStatsService(users repository.UserStore) *StatsService {
	return &StatsService{users: users}
}

// GetUserStats returns the user's aggregate record.
func (s *StatsService) GetUserStats(ctx context.Context, userID int64) (*model.User, error) {
	return s.users.GetByID(ctx, userID)
}

// GetLeaderboards returns the top users by money won, best streak, and
// total wins.
func (s *StatsService) GetLeaderboards(ctx context.Context, limit int) (*Leaderboards, error) {
	byMoney, err := s.users.TopByMoneyWon(ctx, limit)
	if err != nil {
		return nil, err
	}
	byStreak, err := s.users.TopByStreak(ctx, limit)
	if err != nil {
		return nil, err
	}
	byWins, err := s.users.TopByWins(ctx, limit)
	if err != nil {
		return nil, err
	}
	return &Leaderboards{
		ByMoneyWon: byMoney,
		ByStreak:   byStreak,
		ByWins:     byWins,
	}, nil
}
