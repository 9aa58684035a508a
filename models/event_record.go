package models

import "time"

// EventRecord is one persisted lifecycle event. Seq is assigned by the
// engine and is the commit order; rows are never updated.
type EventRecord struct {
	Seq          uint64    `gorm:"primaryKey;autoIncrement:false" json:"seq"`
	EventID      string    `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	Type         string    `gorm:"type:varchar(32);index;not null" json:"type"`
	TournamentID uint64    `gorm:"index" json:"tournament_id,omitempty"`
	OccurredAt   time.Time `gorm:"not null" json:"occurred_at"`
	Payload      string    `gorm:"type:jsonb;not null" json:"payload"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"-"`
}
