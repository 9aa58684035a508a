// Package events describes the lifecycle events the engine emits and the
// ordered sink they are appended to.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"tournament-escrow/account"
)

// Type names an event kind.
type Type string

const (
	TypeTournamentCreated   Type = "TournamentCreated"
	TypePlayerJoined        Type = "PlayerJoined"
	TypeScoreSubmitted      Type = "ScoreSubmitted"
	TypeTournamentCancelled Type = "TournamentCancelled"
	TypeRewardDistributed   Type = "RewardDistributed"
	TypeTournamentCompleted Type = "TournamentCompleted"
	TypeRoleGranted         Type = "RoleGranted"
	TypeRoleRevoked         Type = "RoleRevoked"
	TypeRoleAdminChanged    Type = "RoleAdminChanged"
	TypeCreditQueued        Type = "CreditQueued"
	TypeCreditReleased      Type = "CreditReleased"
	TypePlatformWithdrawn   Type = "PlatformWithdrawn"
)

// Event is one entry of the ordered lifecycle log. Seq and ID are assigned by
// the sink on append; Seq order is commit order.
type Event struct {
	Seq          uint64    `json:"seq"`
	ID           string    `json:"id"`
	Type         Type      `json:"type"`
	TournamentID uint64    `json:"tournament_id,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
	Payload      any       `json:"payload"`
}

// Sink accepts events in commit order and returns them with Seq and ID set.
type Sink interface {
	Emit(ev Event) Event
}

type TournamentCreated struct {
	TournamentID  uint64    `json:"tournament_id"`
	EntryFee      uint64    `json:"entry_fee"`
	MaxPlayers    uint64    `json:"max_players"`
	StartTime     time.Time `json:"start_time"`
	LobbyDeadline time.Time `json:"lobby_deadline"`
	GameType      string    `json:"game_type"`
}

type PlayerJoined struct {
	TournamentID uint64          `json:"tournament_id"`
	Player       account.Address `json:"player"`
	Paid         uint64          `json:"paid"`
}

type ScoreSubmitted struct {
	TournamentID uint64          `json:"tournament_id"`
	Player       account.Address `json:"player"`
	Score        uint64          `json:"score"`
}

// Transfer is one outgoing payment. Pending means the transfer failed and the
// amount now waits as a withdrawable credit.
type Transfer struct {
	Account   account.Address `json:"account"`
	Amount    uint64          `json:"amount"`
	Pending   bool            `json:"pending,omitempty"`
	Reference string          `json:"reference,omitempty"`
}

type TournamentCancelled struct {
	TournamentID uint64     `json:"tournament_id"`
	Refunds      []Transfer `json:"refunds"`
}

type RewardDistributed struct {
	TournamentID   uint64             `json:"tournament_id"`
	Winners        [3]account.Address `json:"winners"`
	RewardAmounts  [3]uint64          `json:"reward_amounts"`
	Pending        [3]bool            `json:"pending"`
	PlatformCredit uint64             `json:"platform_credit"`
}

type TournamentCompleted struct {
	TournamentID uint64          `json:"tournament_id"`
	Winner       account.Address `json:"winner"`
	RewardAmount uint64          `json:"reward_amount"`
}

type RoleGranted struct {
	Role    string          `json:"role"`
	Account account.Address `json:"account"`
	Sender  account.Address `json:"sender"`
}

type RoleRevoked struct {
	Role    string          `json:"role"`
	Account account.Address `json:"account"`
	Sender  account.Address `json:"sender"`
}

type RoleAdminChanged struct {
	Role              string `json:"role"`
	PreviousAdminRole string `json:"previous_admin_role"`
	NewAdminRole      string `json:"new_admin_role"`
}

// CreditQueued records a payment that did not go through. Reference is the
// transfer reference every retry of it uses.
type CreditQueued struct {
	TournamentID uint64          `json:"tournament_id,omitempty"`
	Account      account.Address `json:"account"`
	Amount       uint64          `json:"amount"`
	Reference    string          `json:"reference"`
}

type CreditReleased struct {
	Account   account.Address `json:"account"`
	Amount    uint64          `json:"amount"`
	Reference string          `json:"reference"`
}

type PlatformWithdrawn struct {
	To     account.Address `json:"to"`
	Amount uint64          `json:"amount"`
}

// DecodePayload rebuilds the typed payload of a stored event.
func DecodePayload(t Type, raw []byte) (any, error) {
	var p any
	switch t {
	case TypeTournamentCreated:
		p = &TournamentCreated{}
	case TypePlayerJoined:
		p = &PlayerJoined{}
	case TypeScoreSubmitted:
		p = &ScoreSubmitted{}
	case TypeTournamentCancelled:
		p = &TournamentCancelled{}
	case TypeRewardDistributed:
		p = &RewardDistributed{}
	case TypeTournamentCompleted:
		p = &TournamentCompleted{}
	case TypeRoleGranted:
		p = &RoleGranted{}
	case TypeRoleRevoked:
		p = &RoleRevoked{}
	case TypeRoleAdminChanged:
		p = &RoleAdminChanged{}
	case TypeCreditQueued:
		p = &CreditQueued{}
	case TypeCreditReleased:
		p = &CreditReleased{}
	case TypePlatformWithdrawn:
		p = &PlatformWithdrawn{}
	default:
		return nil, fmt.Errorf("unknown event type %q", t)
	}
	if err := json.Unmarshal(raw, p); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", t, err)
	}
	return deref(p), nil
}

func deref(p any) any {
	switch v := p.(type) {
	case *TournamentCreated:
		return *v
	case *PlayerJoined:
		return *v
	case *ScoreSubmitted:
		return *v
	case *TournamentCancelled:
		return *v
	case *RewardDistributed:
		return *v
	case *TournamentCompleted:
		return *v
	case *RoleGranted:
		return *v
	case *RoleRevoked:
		return *v
	case *RoleAdminChanged:
		return *v
	case *CreditQueued:
		return *v
	case *CreditReleased:
		return *v
	case *PlatformWithdrawn:
		return *v
	}
	return p
}
