package services

import (
	"context"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"tournament-escrow/account"
	"tournament-escrow/models"
)

// BadgeOracle answers badge ownership from the badge tables, resolving a
// payout address to its owner through the wallet mirror.
type BadgeOracle struct {
	DB   *gorm.DB
	Code string
}

func NewBadgeOracle(db *gorm.DB, code string) *BadgeOracle {
	return &BadgeOracle{DB: db, Code: code}
}

func (o *BadgeOracle) HasBadge(ctx context.Context, holder account.Address) (bool, error) {
	var count int64
	err := o.DB.WithContext(ctx).
		Model(&models.UserBadge{}).
		Joins("JOIN badge_types ON badge_types.id::text = user_badges.badge_type_id").
		Joins("JOIN wallet_mirror ON wallet_mirror.user_id::text = user_badges.external_user_id").
		Where("badge_types.code = ?", o.Code).
		Where("LOWER(wallet_mirror.address) = ? AND wallet_mirror.is_active", strings.ToLower(holder.String())).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("badge lookup for %s: %w", holder, err)
	}
	return count > 0, nil
}

// EnsureBadgeType creates the loyalty badge definition if it is missing.
func EnsureBadgeType(db *gorm.DB, code string) error {
	badge := models.LoyaltyBadge
	badge.Code = code
	return db.Where(models.BadgeType{Code: code}).FirstOrCreate(&badge).Error
}
