package models

import (
	"time"
)

// Tournament is the queryable read model of a tournament, refreshed from
// engine snapshots as its events are persisted. Rows outlive the process
// that created them.
type Tournament struct {
	ID             uint64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	EntryFee       uint64     `json:"entry_fee" gorm:"not null"`
	MaxPlayers     uint64     `json:"max_players" gorm:"not null"`
	CurrentPlayers uint64     `json:"current_players" gorm:"not null;default:0"`
	StartTime      time.Time  `json:"start_time" gorm:"not null"`
	LobbyDeadline  time.Time  `json:"lobby_deadline" gorm:"not null"`
	GameType       string     `json:"game_type" gorm:"index"`
	Status         string     `json:"status" gorm:"type:varchar(32);index;not null"`
	IsActive       bool       `json:"is_active"`
	IsCancelled    bool       `json:"is_cancelled"`
	Pot            uint64     `json:"pot"`
	ArchiveKey     string     `json:"archive_key,omitempty"`
	ClosedAt       *time.Time `json:"closed_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	Entries []TournamentEntry `json:"entries,omitempty" gorm:"foreignKey:TournamentID"`
}

// TournamentEntry is one participant of a tournament.
type TournamentEntry struct {
	TournamentID uint64 `json:"tournament_id" gorm:"primaryKey;autoIncrement:false"`
	Player       string `json:"player" gorm:"primaryKey;type:varchar(42)"`
	JoinOrder    int    `json:"join_order" gorm:"not null"`
	Score        uint64 `json:"score"`
	Scored       bool   `json:"scored"`
	FinalRank    int    `json:"final_rank,omitempty"` // 1..3 once completed
	Reward       uint64 `json:"reward,omitempty"`
}
