package models

import (
	"time"
)

// BadgeType: static badge definitions
type BadgeType struct {
	ID          string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	Code        string    `gorm:"uniqueIndex;not null"` // e.g., "TOURNAMENT_PASS"
	Name        string    `gorm:"not null"`
	Description string
	Rarity      string    `gorm:"type:varchar(16);default:'common'"`
	CreatedAt   time.Time `gorm:"autoCreateTime"`
}

// UserBadge: awarded instance (many-to-many)
type UserBadge struct {
	ID             string    `gorm:"primaryKey;type:uuid;default:gen_random_uuid()"`
	ExternalUserID string    `gorm:"index;not null"`
	BadgeTypeID    string    `gorm:"index;not null"`
	AwardedAt      time.Time `gorm:"autoCreateTime"`
	Metadata       string    `gorm:"type:jsonb"`
}

// LoyaltyBadge is the badge that halves tournament entry fees. Its Code is
// overridden from configuration before seeding.
var LoyaltyBadge = BadgeType{
	Code:        "TOURNAMENT_PASS",
	Name:        "Tournament Pass",
	Description: "Holders join every tournament at half the entry fee",
	Rarity:      "rare",
}
