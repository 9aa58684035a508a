package services

import (
	"context"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"tournament-escrow/account"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return db, mock
}

var badgeQuery = regexp.QuoteMeta(`SELECT count(*) FROM "user_badges" `) +
	regexp.QuoteMeta(`JOIN badge_types ON badge_types.id::text = user_badges.badge_type_id `) +
	regexp.QuoteMeta(`JOIN wallet_mirror ON wallet_mirror.user_id::text = user_badges.external_user_id `) +
	`WHERE badge_types.code = \$1 AND .*` +
	regexp.QuoteMeta(`LOWER(wallet_mirror.address) = $2 AND wallet_mirror.is_active`)

const mixedCase = account.Address("0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")

func TestHasBadgeResolvesAddressThroughWalletMirror(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(badgeQuery).
		WithArgs("TOURNAMENT_PASS", "0xabcdef0123456789abcdef0123456789abcdef01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	ok, err := NewBadgeOracle(db, "TOURNAMENT_PASS").HasBadge(context.Background(), mixedCase)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasBadgeWithoutMatchingRow(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(badgeQuery).
		WithArgs("VIP", "0xabcdef0123456789abcdef0123456789abcdef01").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := NewBadgeOracle(db, "VIP").HasBadge(context.Background(), mixedCase)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHasBadgeReportsQueryFailure(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(badgeQuery).WillReturnError(assert.AnError)

	_, err := NewBadgeOracle(db, "TOURNAMENT_PASS").HasBadge(context.Background(), mixedCase)
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "badge lookup for")
	assert.NoError(t, mock.ExpectationsWereMet())
}
