// Package memory provides in-memory implementations of the repository
// contracts. The store is an injected instance with explicit construction,
// used by engine unit tests and as the swap-in point for non-SQL backings.
package memory

import (
	"sync"

	"focus-wager-engine/internal/model"
)

// Store holds all entities behind a single mutex and hands out the three
// contract views. The ledger view's balance change and transaction append
// happen under one critical section, which gives the same atomicity the
// postgres implementation gets from a database transaction.
type Store struct {
	mu         sync.Mutex
	users      map[int64]*model.User
	challenges map[string]*model.Challenge
	players    map[string][]*model.Player
	txs        []*model.Transaction
	byRef      map[string]*model.Transaction
	nextTxID   int64
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:      make(map[int64]*model.User),
		challenges: make(map[string]*model.Challenge),
		players:    make(map[string][]*model.Player),
		byRef:      make(map[string]*model.Transaction),
		nextTxID:   1,
	}
}

// Users returns the UserStore view.
func (s *Store) Users() *UserStore { return &UserStore{s} }

// Challenges returns the ChallengeStore view.
func (s *Store) Challenges() *ChallengeStore { return &ChallengeStore{s} }

// Ledger returns the LedgerStore view.
func (s *Store) Ledger() *LedgerStore { return &LedgerStore{s} }

func cloneUser(u *model.User) *model.User {
	cp := *u
	return &cp
}

func cloneChallenge(ch *model.Challenge) *model.Challenge {
	cp := *ch
	return &cp
}

func clonePlayer(p *model.Player) *model.Player {
	cp := *p
	return &cp
}

func cloneTx(tx *model.Transaction) *model.Transaction {
	cp := *tx
	return &cp
}
