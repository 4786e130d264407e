package memory

import (
	"context"
	"time"

	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/repository"
)

// LedgerStore is the in-memory repository.LedgerStore implementation.
type LedgerStore struct {
	s *Store
}

var _ repository.LedgerStore = (*LedgerStore)(nil)

// Apply performs the balance change and the transaction append atomically.
// Nothing is written on insufficient funds or a duplicate external ref.
func (r *LedgerStore) Apply(ctx context.Context, entry repository.LedgerEntry) (*model.User, *model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if entry.ExternalRef != nil {
		if _, ok := r.s.byRef[*entry.ExternalRef]; ok {
			return nil, nil, repository.ErrDuplicateRef
		}
	}

	u, ok := r.s.users[entry.UserID]
	if !ok {
		return nil, nil, repository.ErrUserNotFound
	}
	if u.Balance+entry.Amount < 0 {
		return nil, nil, repository.ErrInsufficientFunds
	}

	u.Balance += entry.Amount
	u.UpdatedAt = time.Now()

	tx := &model.Transaction{
		ID:          r.s.nextTxID,
		UserID:      entry.UserID,
		Type:        entry.Type,
		Amount:      entry.Amount,
		Description: entry.Description,
		ChallengeID: entry.ChallengeID,
		ExternalRef: entry.ExternalRef,
		CreatedAt:   time.Now(),
	}
	r.s.nextTxID++
	r.s.txs = append(r.s.txs, tx)
	if entry.ExternalRef != nil {
		r.s.byRef[*entry.ExternalRef] = tx
	}

	return cloneUser(u), cloneTx(tx), nil
}

func (r *LedgerStore) FindByExternalRef(ctx context.Context, externalRef string) (*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	tx, ok := r.s.byRef[externalRef]
	if !ok {
		return nil, repository.ErrTxNotFound
	}
	return cloneTx(tx), nil
}

func (r *LedgerStore) ListByUser(ctx context.Context, userID int64, limit int) ([]*model.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []*model.Transaction
	for i := len(r.s.txs) - 1; i >= 0; i-- {
		if r.s.txs[i].UserID == userID {
			out = append(out, cloneTx(r.s.txs[i]))
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// SumByUser returns the signed sum of a user's transactions.
func (r *LedgerStore) SumByUser(ctx context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var sum int64
	for _, tx := range r.s.txs {
		if tx.UserID == userID {
			sum += tx.Amount
		}
	}
	return sum, nil
}
