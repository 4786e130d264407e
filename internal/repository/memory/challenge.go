package memory

import (
	"context"
	"sort"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

// ChallengeStore is the in-memory repository.ChallengeStore implementation.
type ChallengeStore struct {
	s *Store
}

var _ repository.ChallengeStore = (*ChallengeStore)(nil)

// Insert stores a new challenge together with its creator's player row.
func (r *ChallengeStore) Insert(ctx context.Context, ch *model.Challenge, creator *model.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[ch.ID]; ok {
		return repository.ErrDuplicateID
	}
	r.s.challenges[ch.ID] = cloneChallenge(ch)
	r.s.players[ch.ID] = []*model.Player{clonePlayer(creator)}
	return nil
}

func (r *ChallengeStore) GetByID(ctx context.Context, id string) (*model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ch, ok := r.s.challenges[id]
	if !ok {
		return nil, repository.ErrChallengeNotFound
	}
	return cloneChallenge(ch), nil
}

func (r *ChallengeStore) GetPlayers(ctx context.Context, id string) ([]*model.Player, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[id]; !ok {
		return nil, repository.ErrChallengeNotFound
	}
	out := make([]*model.Player, 0, len(r.s.players[id]))
	for _, p := range r.s.players[id] {
		out = append(out, clonePlayer(p))
	}
	return out, nil
}

func (r *ChallengeStore) AddPlayer(ctx context.Context, p *model.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[p.ChallengeID]; !ok {
		return repository.ErrChallengeNotFound
	}
	r.s.players[p.ChallengeID] = append(r.s.players[p.ChallengeID], clonePlayer(p))
	return nil
}

func (r *ChallengeStore) UpdatePlayer(ctx context.Context, p *model.Player) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for i, existing := range r.s.players[p.ChallengeID] {
		if existing.UserID == p.UserID {
			r.s.players[p.ChallengeID][i] = clonePlayer(p)
			return nil
		}
	}
	return repository.ErrPlayerNotFound
}

func (r *ChallengeStore) UpdateChallenge(ctx context.Context, ch *model.Challenge) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.challenges[ch.ID]; !ok {
		return repository.ErrChallengeNotFound
	}
	r.s.challenges[ch.ID] = cloneChallenge(ch)
	return nil
}

func (r *ChallengeStore) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Challenge, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Challenge
	for _, ch := range r.s.challenges {
		if ch.Status == status {
			out = append(out, cloneChallenge(ch))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
