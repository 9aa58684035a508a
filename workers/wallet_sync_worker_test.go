package workers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const changedWallets = `{"wallets":[
	{"id":"7d4f1c1e-8a0b-4c55-9a39-3b8a4e2f1d10","user_id":"0b6f2a7c-1d3e-4f5a-8b9c-0d1e2f3a4b5c","chain":"ethereum","token":"USDC","address":"0x1111111111111111111111111111111111111111","is_active":true},
	{"id":"9e8d7c6b-5a4f-4e3d-2c1b-0a9f8e7d6c5b","user_id":"0b6f2a7c-1d3e-4f5a-8b9c-0d1e2f3a4b5c","chain":"ethereum","token":"USDC","address":"0x2222222222222222222222222222222222222222","is_active":false}
]}`

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

func syncServer(t *testing.T, status int, body string, gotSince *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/public/wallets", r.URL.Path)
		assert.Equal(t, "svc-token", r.Header.Get("X-Service-Token"))
		if gotSince != nil {
			*gotSince = r.URL.Query().Get("since")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestSyncUpsertsChangedWallets(t *testing.T) {
	db, mock := newMockDB(t)
	var since string
	srv := syncServer(t, http.StatusOK, changedWallets, &since)
	c := NewWalletSyncClient(db, srv.URL+"/", "svc-token", srv.Client())

	mock.ExpectExec(`INSERT INTO "wallet_mirror" .*` +
		regexp.QuoteMeta(`ON CONFLICT ("address") DO UPDATE SET "user_id"="excluded"."user_id"`) + `.*"is_active"="excluded"."is_active"`).
		WillReturnResult(sqlmock.NewResult(0, 2))

	from := time.Date(2026, 10, 1, 12, 0, 0, 0, time.FixedZone("CEST", 2*3600))
	n, err := c.Sync(context.Background(), from)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, "2026-10-01T10:00:00Z", since)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncWithNoChangesSkipsDatabase(t *testing.T) {
	db, mock := newMockDB(t)
	srv := syncServer(t, http.StatusOK, `{"wallets":[]}`, nil)
	c := NewWalletSyncClient(db, srv.URL, "svc-token", srv.Client())

	n, err := c.Sync(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncReportsServiceError(t *testing.T) {
	db, mock := newMockDB(t)
	srv := syncServer(t, http.StatusBadGateway, "upstream down", nil)
	c := NewWalletSyncClient(db, srv.URL, "svc-token", srv.Client())

	_, err := c.Sync(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502: upstream down")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSyncReportsUpsertFailure(t *testing.T) {
	db, mock := newMockDB(t)
	srv := syncServer(t, http.StatusOK, changedWallets, nil)
	c := NewWalletSyncClient(db, srv.URL, "svc-token", srv.Client())

	mock.ExpectExec(`INSERT INTO "wallet_mirror"`).WillReturnError(assert.AnError)

	_, err := c.Sync(context.Background(), time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "upsert 2 wallet(s)")
	assert.NoError(t, mock.ExpectationsWereMet())
}
