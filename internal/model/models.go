// Package model defines the data models for the wager challenge engine.
package model

import "time"

// Mode identifies the challenge variant. The mode determines the minimum
// roster, whether a duration is required, and how the pot is settled.
type Mode string

const (
	ModeSolo   Mode = "solo"
	ModeDuo    Mode = "duo"
	ModeRoyale Mode = "royale"
	ModeGroup  Mode = "group"
)

// Valid reports whether m is a known challenge mode.
func (m Mode) Valid() bool {
	switch m {
	case ModeSolo, ModeDuo, ModeRoyale, ModeGroup:
		return true
	}
	return false
}

// MinPlayers returns the smallest roster that can start a challenge of mode m.
func (m Mode) MinPlayers() int {
	if m == ModeSolo {
		return 1
	}
	return 2
}

// Status is the challenge lifecycle state. Transitions only ever move
// forward: pending -> active -> completed.
type Status string

const (
	StatusPending   Status = "pending"
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// WinnerDraw is the sentinel winner id recorded when a duo challenge ends
// with both players completing.
const WinnerDraw = "draw"

// Challenge represents one wagering focus session.
type Challenge struct {
	ID              string     `db:"id"`               // short opaque code
	Mode            Mode       `db:"mode"`
	StakeAmount     int64      `db:"stake_amount"`     // integer minor units per player
	DurationMinutes *int       `db:"duration_minutes"` // nil = unlimited (royale, open-ended group)
	MaxPlayers      int        `db:"max_players"`
	Status          Status     `db:"status"`
	WinnerID        *string    `db:"winner_id"` // nil until completed; WinnerDraw on a draw
	CreatedAt       time.Time  `db:"created_at"`
	StartedAt       *time.Time `db:"started_at"`
	EndedAt         *time.Time `db:"ended_at"`
}

// Player is a user's membership in one challenge. Failed and Completed are
// mutually exclusive terminal flags; once set they are never unset.
type Player struct {
	ChallengeID string     `db:"challenge_id"`
	UserID      int64      `db:"user_id"`
	UserName    string     `db:"user_name"`
	Paid        bool       `db:"paid"`
	Ready       bool       `db:"ready"`
	Failed      bool       `db:"failed"`
	FailedAt    *time.Time `db:"failed_at"`
	Completed   bool       `db:"completed"`
	JoinedAt    time.Time  `db:"joined_at"`
}

// Terminal reports whether the player has reached a terminal outcome.
func (p *Player) Terminal() bool {
	return p.Failed || p.Completed
}

// User is a participant account. Balance is in integer minor units and is
// only ever mutated by the ledger; it never goes negative.
type User struct {
	ID                int64     `db:"id"`
	Balance           int64     `db:"balance"`
	TotalSessions     int       `db:"total_sessions"`
	TotalWins         int       `db:"total_wins"`
	TotalFocusMinutes int       `db:"total_focus_minutes"`
	MoneyWon          int64     `db:"money_won"`
	MoneyLost         int64     `db:"money_lost"`
	CurrentStreak     int       `db:"current_streak"`
	BestStreak        int       `db:"best_streak"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// Transaction is one append-only ledger entry. The signed sum of a user's
// transactions always equals their current balance.
type Transaction struct {
	ID          int64     `db:"id"`
	UserID      int64     `db:"user_id"`
	Type        string    `db:"type"`
	Amount      int64     `db:"amount"` // signed minor units
	Description *string   `db:"description"`
	ChallengeID *string   `db:"challenge_id"`
	ExternalRef *string   `db:"external_ref"`
	CreatedAt   time.Time `db:"created_at"`
}

// Transaction types for categorizing balance changes.
const (
	TxTypeStake      = "stake"      // stake escrowed into a challenge pot
	TxTypeWin        = "win"        // settlement payout
	TxTypeLoss       = "loss"       // solo failure forfeits the stake
	TxTypeDeposit    = "deposit"    // external deposit confirmation
	TxTypeWithdrawal = "withdrawal" // external withdrawal
)

// StatsDelta describes the stats portion of a user update. Streak handling
// is expressed as flags so the store can apply the reset-or-increment and
// best-streak rules in a single write.
type StatsDelta struct {
	Sessions        int
	Wins            int
	FocusMinutes    int
	MoneyWon        int64
	MoneyLost       int64
	StreakIncrement bool // currentStreak+1, then bestStreak=max(bestStreak, currentStreak)
	StreakReset     bool // currentStreak=0
}
