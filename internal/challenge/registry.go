// Package challenge implements the wager challenge registry: the lifecycle
// state machine, roster management, and the settlement trigger. All
// transitions for one challenge run under a per-challenge lock, so two
// concurrent failures can never both observe a pre-termination roster and
// double-settle.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"focus-wager-engine/internal/broadcast"
	"focus-wager-engine/internal/ledger"
	"focus-wager-engine/internal/model"
	"focus-wager-engine/internal/pkg/lock"
	"focus-wager-engine/internal/repository"
	"focus-wager-engine/internal/settlement"
)

// Registry-level errors.
var (
	ErrNotFound     = errors.New("challenge not found")
	ErrConflict     = errors.New("conflicting challenge operation")
	ErrInvalidState = errors.New("action not allowed in current challenge state")
	ErrValidation   = errors.New("invalid challenge parameters")
)

// State is a challenge plus its roster, the snapshot shape delivered to
// subscribers.
type State struct {
	Challenge *model.Challenge `json:"challenge"`
	Players   []*model.Player  `json:"players"`
}

// clone deep-copies the state. Published payloads must not alias registry
// state: a subscriber reads them concurrently with later transitions on the
// same challenge, and each event must freeze the state it announced.
func (s *State) clone() *State {
	ch := *s.Challenge
	out := &State{Challenge: &ch, Players: make([]*model.Player, len(s.Players))}
	for i, p := range s.Players {
		cp := *p
		out.Players[i] = &cp
	}
	return out
}

// Registry drives the challenge lifecycle.
type Registry struct {
	challenges repository.ChallengeStore
	users      repository.UserStore
	ledger     *ledger.Ledger
	tiers      settlement.Tiers
	hub        *broadcast.Hub
	locks      *lock.KeyedLock[string]
}

// NewRegistry creates a Registry instance.
func NewRegistry(
	challenges repository.ChallengeStore,
	users repository.UserStore,
	l *ledger.Ledger,
	tiers settlement.Tiers,
	hub *broadcast.Hub,
) *Registry {
	return &Registry{
		challenges: challenges,
		users:      users,
		ledger:     l,
		tiers:      tiers,
		hub:        hub,
		locks:      lock.NewKeyedLock[string](),
	}
}

// CreateParams are the inputs for opening a challenge.
type CreateParams struct {
	Mode            model.Mode
	StakeAmount     int64
	DurationMinutes *int
	MaxPlayers      int
	CreatorID       int64
	CreatorName     string
}

const codeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newCode derives a short opaque challenge code from a fresh uuid.
func newCode() string {
	id := uuid.New()
	b := make([]byte, 8)
	for i := range b {
		b[i] = codeAlphabet[int(id[i])%len(codeAlphabet)]
	}
	return string(b)
}

func (p CreateParams) validate() error {
	if !p.Mode.Valid() {
		return fmt.Errorf("%w: unknown mode %q", ErrValidation, p.Mode)
	}
	if p.StakeAmount <= 0 {
		return fmt.Errorf("%w: stake must be positive", ErrValidation)
	}
	switch p.Mode {
	case model.ModeRoyale:
		// Royale is always last-standing with no clock.
		if p.DurationMinutes != nil {
			return fmt.Errorf("%w: royale challenges have no duration", ErrValidation)
		}
	case model.ModeGroup:
		// Group runs either on a fixed clock or open-ended.
		if p.DurationMinutes != nil && *p.DurationMinutes <= 0 {
			return fmt.Errorf("%w: duration must be positive", ErrValidation)
		}
	default:
		if p.DurationMinutes == nil || *p.DurationMinutes <= 0 {
			return fmt.Errorf("%w: %s challenges require a positive duration", ErrValidation, p.Mode)
		}
	}
	switch p.Mode {
	case model.ModeSolo:
		if p.MaxPlayers != 1 {
			return fmt.Errorf("%w: solo challenges take exactly one player", ErrValidation)
		}
	case model.ModeDuo:
		if p.MaxPlayers != 2 {
			return fmt.Errorf("%w: duo challenges take exactly two players", ErrValidation)
		}
	default:
		if p.MaxPlayers < 2 {
			return fmt.Errorf("%w: %s challenges need at least two seats", ErrValidation, p.Mode)
		}
	}
	return nil
}

// Create opens a new challenge in pending state with the creator auto-joined
// as a paid player. For non-solo modes the creator's stake is escrowed
// immediately; solo stakes never move at join time.
func (r *Registry) Create(ctx context.Context, p CreateParams) (*State, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if _, _, err := r.users.GetOrCreate(ctx, p.CreatorID); err != nil {
		return nil, fmt.Errorf("ensure creator: %w", err)
	}

	now := time.Now()
	ch := &model.Challenge{
		Mode:            p.Mode,
		StakeAmount:     p.StakeAmount,
		DurationMinutes: p.DurationMinutes,
		MaxPlayers:      p.MaxPlayers,
		Status:          model.StatusPending,
		CreatedAt:       now,
	}
	creator := &model.Player{
		UserID:   p.CreatorID,
		UserName: p.CreatorName,
		Paid:     true,
		JoinedAt: now,
	}

	// Regenerate on the (unlikely) code collision.
	var inserted bool
	for attempt := 0; attempt < 5 && !inserted; attempt++ {
		ch.ID = newCode()
		creator.ChallengeID = ch.ID

		if err := r.escrow(ctx, ch, p.CreatorID); err != nil {
			return nil, err
		}
		err := r.challenges.Insert(ctx, ch, creator)
		switch {
		case err == nil:
			inserted = true
		case errors.Is(err, repository.ErrDuplicateID):
			r.refundEscrow(ctx, ch, p.CreatorID)
		default:
			r.refundEscrow(ctx, ch, p.CreatorID)
			return nil, fmt.Errorf("insert challenge: %w", err)
		}
	}
	if !inserted {
		return nil, fmt.Errorf("%w: could not allocate a challenge code", ErrConflict)
	}

	log.Info().
		Str("challenge_id", ch.ID).
		Str("mode", string(ch.Mode)).
		Int64("stake", ch.StakeAmount).
		Int64("creator", p.CreatorID).
		Msg("Challenge created")

	state := &State{Challenge: ch, Players: []*model.Player{creator}}
	r.hub.Publish(ch.ID, broadcast.EventRosterChanged, state.clone())
	return state, nil
}

// escrow debits the joining user's stake for pooled modes. Solo mode is
// balance-neutral at join.
func (r *Registry) escrow(ctx context.Context, ch *model.Challenge, userID int64) error {
	if ch.Mode == model.ModeSolo {
		return nil
	}
	desc := fmt.Sprintf("stake escrow for challenge %s", ch.ID)
	_, _, err := r.ledger.Debit(ctx, userID, ch.StakeAmount, model.TxTypeStake, desc, ledger.Refs{ChallengeID: &ch.ID})
	if err != nil {
		return fmt.Errorf("escrow stake: %w", err)
	}
	return nil
}

// refundEscrow compensates a failed insert after the stake already moved.
func (r *Registry) refundEscrow(ctx context.Context, ch *model.Challenge, userID int64) {
	if ch.Mode == model.ModeSolo {
		return
	}
	desc := fmt.Sprintf("escrow refund for challenge %s", ch.ID)
	if _, _, err := r.ledger.Credit(ctx, userID, ch.StakeAmount, model.TxTypeStake, desc, ledger.Refs{ChallengeID: &ch.ID}); err != nil {
		log.Error().Err(err).
			Str("challenge_id", ch.ID).
			Int64("user_id", userID).
			Msg("Escrow refund failed; manual reconciliation required")
	}
}

// Get returns a challenge and its roster.
func (r *Registry) Get(ctx context.Context, id string) (*State, error) {
	ch, err := r.challenges.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrChallengeNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	players, err := r.challenges.GetPlayers(ctx, id)
	if err != nil {
		return nil, err
	}
	return &State{Challenge: ch, Players: players}, nil
}

// Subscribe attaches a subscriber to the challenge's event channel, priming
// it with a snapshot of the current state.
func (r *Registry) Subscribe(ctx context.Context, id string) (*broadcast.Subscription, error) {
	state, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return r.hub.Subscribe(id, state), nil
}

// ListByStatus returns challenges in the given lifecycle state, oldest
// first.
func (r *Registry) ListByStatus(ctx context.Context, status model.Status, limit int) ([]*model.Challenge, error) {
	return r.challenges.ListByStatus(ctx, status, limit)
}

// Join adds a user to a pending challenge, escrowing their stake for pooled
// modes. Joining a roster you are already on is a no-op re-confirmation.
func (r *Registry) Join(ctx context.Context, id string, userID int64, userName string) (*State, error) {
	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	state, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := state.Challenge

	switch ch.Status {
	case model.StatusPending:
	case model.StatusCompleted:
		return nil, fmt.Errorf("%w: challenge already completed", ErrInvalidState)
	default:
		return nil, fmt.Errorf("%w: challenge already started", ErrConflict)
	}

	for _, p := range state.Players {
		if p.UserID == userID {
			// Duplicate join: payment already confirmed, nothing to do.
			return state, nil
		}
	}
	if len(state.Players) >= ch.MaxPlayers {
		return nil, fmt.Errorf("%w: roster is full", ErrConflict)
	}

	if _, _, err := r.users.GetOrCreate(ctx, userID); err != nil {
		return nil, fmt.Errorf("ensure user: %w", err)
	}
	if err := r.escrow(ctx, ch, userID); err != nil {
		return nil, err
	}

	p := &model.Player{
		ChallengeID: ch.ID,
		UserID:      userID,
		UserName:    userName,
		Paid:        true,
		JoinedAt:    time.Now(),
	}
	if err := r.challenges.AddPlayer(ctx, p); err != nil {
		r.refundEscrow(ctx, ch, userID)
		return nil, fmt.Errorf("add player: %w", err)
	}
	state.Players = append(state.Players, p)

	r.hub.Publish(ch.ID, broadcast.EventRosterChanged, state.clone())
	return state, nil
}

// Ready marks a player ready. When the full paid roster is ready and the
// mode's minimum is met, the challenge starts.
func (r *Registry) Ready(ctx context.Context, id string, userID int64) (*State, error) {
	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	state, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := state.Challenge

	if ch.Status != model.StatusPending {
		return nil, fmt.Errorf("%w: challenge is %s", ErrInvalidState, ch.Status)
	}

	player := findPlayer(state.Players, userID)
	if player == nil {
		return nil, fmt.Errorf("%w: user %d is not on the roster", ErrNotFound, userID)
	}
	if !player.Ready {
		player.Ready = true
		if err := r.challenges.UpdatePlayer(ctx, player); err != nil {
			return nil, fmt.Errorf("mark ready: %w", err)
		}
	}

	if quorum(state.Players, ch.Mode) {
		now := time.Now()
		ch.Status = model.StatusActive
		ch.StartedAt = &now
		if err := r.challenges.UpdateChallenge(ctx, ch); err != nil {
			return nil, fmt.Errorf("start challenge: %w", err)
		}
		log.Info().Str("challenge_id", ch.ID).Int("players", len(state.Players)).Msg("Challenge started")
		r.hub.Publish(ch.ID, broadcast.EventChallengeStarted, state.clone())
		return state, nil
	}

	r.hub.Publish(ch.ID, broadcast.EventRosterChanged, state.clone())
	return state, nil
}

// quorum reports whether the full paid roster is ready and large enough for
// the mode.
func quorum(players []*model.Player, mode model.Mode) bool {
	if len(players) < mode.MinPlayers() {
		return false
	}
	for _, p := range players {
		if !p.Paid || !p.Ready {
			return false
		}
	}
	return true
}

// soloLossRef keys the solo loss debit for one player on one challenge.
func soloLossRef(challengeID string, userID int64) string {
	return fmt.Sprintf("solo-loss:%s:%d", challengeID, userID)
}

func findPlayer(players []*model.Player, userID int64) *model.Player {
	for _, p := range players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Fail records a player's failure (distraction detected, session abandoned),
// debits the solo stake where applicable, resets the streak, and evaluates
// the mode's termination predicate.
func (r *Registry) Fail(ctx context.Context, id string, userID int64, reason string) (*State, error) {
	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	state, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := state.Challenge

	if ch.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: challenge is %s", ErrInvalidState, ch.Status)
	}
	player := findPlayer(state.Players, userID)
	if player == nil {
		return nil, fmt.Errorf("%w: user %d is not on the roster", ErrNotFound, userID)
	}
	if player.Terminal() {
		return nil, fmt.Errorf("%w: player already finished", ErrConflict)
	}

	// Solo stakes were never escrowed; the failure debit is the loss. It
	// runs before any flag flips so a rejected debit leaves no state change.
	// The deterministic ref makes the debit idempotent: a retry after a
	// crash between the debit and the flag write resumes at the flag instead
	// of charging the stake again.
	if ch.Mode == model.ModeSolo {
		ref := soloLossRef(ch.ID, userID)
		desc := fmt.Sprintf("solo challenge %s failed: %s", ch.ID, reason)
		_, _, err := r.ledger.Debit(ctx, userID, ch.StakeAmount, model.TxTypeLoss, desc, ledger.Refs{ChallengeID: &ch.ID, ExternalRef: &ref})
		if err != nil && !errors.Is(err, repository.ErrDuplicateRef) {
			return nil, fmt.Errorf("debit solo loss: %w", err)
		}
	}

	now := time.Now()
	player.Failed = true
	player.FailedAt = &now
	if err := r.challenges.UpdatePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("mark failed: %w", err)
	}

	if _, err := r.users.UpdateStats(ctx, userID, model.StatsDelta{
		Sessions:    1,
		MoneyLost:   ch.StakeAmount,
		StreakReset: true,
	}); err != nil {
		return nil, fmt.Errorf("update loser stats: %w", err)
	}

	r.hub.Publish(ch.ID, broadcast.EventPlayerFailed, map[string]any{
		"user_id": userID,
		"reason":  reason,
	})

	if err := r.evaluateTermination(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// Complete records a player finishing their focus session, credits their
// focus minutes, and evaluates the termination predicate.
func (r *Registry) Complete(ctx context.Context, id string, userID int64) (*State, error) {
	r.locks.Lock(id)
	defer r.locks.Unlock(id)

	state, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	ch := state.Challenge

	if ch.Status != model.StatusActive {
		return nil, fmt.Errorf("%w: challenge is %s", ErrInvalidState, ch.Status)
	}
	player := findPlayer(state.Players, userID)
	if player == nil {
		return nil, fmt.Errorf("%w: user %d is not on the roster", ErrNotFound, userID)
	}
	if player.Terminal() {
		return nil, fmt.Errorf("%w: player already finished", ErrConflict)
	}

	player.Completed = true
	if err := r.challenges.UpdatePlayer(ctx, player); err != nil {
		return nil, fmt.Errorf("mark completed: %w", err)
	}

	if _, err := r.users.UpdateStats(ctx, userID, model.StatsDelta{
		Sessions:     1,
		FocusMinutes: focusMinutes(ch),
	}); err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}

	r.hub.Publish(ch.ID, broadcast.EventRosterChanged, state.clone())

	if err := r.evaluateTermination(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}

// focusMinutes is the focus time credited for a completion: the configured
// duration, or the elapsed session time for open-ended challenges.
func focusMinutes(ch *model.Challenge) int {
	if ch.DurationMinutes != nil {
		return *ch.DurationMinutes
	}
	if ch.StartedAt == nil {
		return 0
	}
	return int(time.Since(*ch.StartedAt).Minutes())
}
