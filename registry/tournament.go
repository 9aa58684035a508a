package registry

import (
	"sync"
	"time"

	"tournament-escrow/account"
)

// State is the lifecycle position of a tournament. It is derived from the
// tournament's flags, roster and the clock, never stored.
type State int

const (
	StateOpen State = iota
	StateAwaitingCompletion
	StateCancelled
	StateCompleted
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateAwaitingCompletion:
		return "awaiting_completion"
	case StateCancelled:
		return "cancelled"
	case StateCompleted:
		return "completed"
	}
	return "unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCancelled || s == StateCompleted
}

// Params are the terms a manager creates a tournament with.
type Params struct {
	EntryFee      uint64    `json:"entry_fee"`
	MaxPlayers    uint64    `json:"max_players"`
	StartTime     time.Time `json:"start_time"`
	LobbyDeadline time.Time `json:"lobby_deadline"`
	GameType      string    `json:"game_type"`
}

type tournament struct {
	mu sync.Mutex

	id            uint64
	entryFee      uint64
	maxPlayers    uint64
	startTime     time.Time
	lobbyDeadline time.Time
	gameType      string
	isActive      bool
	isCancelled   bool
	players       []account.Address
	joined        map[account.Address]struct{}
	winners       [3]account.Address
	rewards       [3]uint64
	createdAt     time.Time
	closedAt      time.Time
}

func (t *tournament) state(now time.Time) State {
	switch {
	case t.isCancelled:
		return StateCancelled
	case !t.isActive:
		return StateCompleted
	case uint64(len(t.players)) >= t.maxPlayers, !now.Before(t.lobbyDeadline):
		return StateAwaitingCompletion
	}
	return StateOpen
}

// Snapshot is a read-only copy of a tournament.
type Snapshot struct {
	ID             uint64                     `json:"id"`
	EntryFee       uint64                     `json:"entry_fee"`
	MaxPlayers     uint64                     `json:"max_players"`
	CurrentPlayers uint64                     `json:"current_players"`
	StartTime      time.Time                  `json:"start_time"`
	LobbyDeadline  time.Time                  `json:"lobby_deadline"`
	GameType       string                     `json:"game_type"`
	IsActive       bool                       `json:"is_active"`
	IsCancelled    bool                       `json:"is_cancelled"`
	State          State                      `json:"-"`
	StateName      string                     `json:"state"`
	Players        []account.Address          `json:"players"`
	Scores         map[account.Address]uint64 `json:"scores"`
	Pot            uint64                     `json:"pot"`
	Winners        [3]account.Address         `json:"winners"`
	Rewards        [3]uint64                  `json:"rewards"`
	CreatedAt      time.Time                  `json:"created_at"`
	ClosedAt       time.Time                  `json:"closed_at,omitempty"`
}
