// models/wallet_mirror.go
package models

import (
	"time"
)

// WalletMirror maps on-platform user ids to their payout addresses.
// Rows are upserted by the wallet sync worker; Address is the lookup key.
type WalletMirror struct {
	ID         string    `gorm:"primaryKey;type:uuid;not null" json:"id"`
	UserID     string    `gorm:"type:uuid;not null;index" json:"user_id"` // External user ID
	Chain      string    `gorm:"type:varchar(64);not null;index" json:"chain"`
	Token      string    `gorm:"type:varchar(64);not null" json:"token"`
	Address    string    `gorm:"type:varchar(128);not null;uniqueIndex" json:"address"`
	IsTreasury bool      `gorm:"not null" json:"is_treasury"`
	IsActive   bool      `gorm:"not null" json:"is_active"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time `gorm:"not null" json:"updated_at"`
}

func (WalletMirror) TableName() string { return "wallet_mirror" }
