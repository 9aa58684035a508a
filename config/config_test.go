package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-escrow/account"
	"tournament-escrow/escrow"
)

func setRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/escrow")
	t.Setenv("GAME_SERVICE_TOKEN", "secret")
	t.Setenv("ADMIN_ADDRESS", "0xa000000000000000000000000000000000000001")
	t.Setenv("WALLET_SERVICE_URL", "http://wallet:8080")
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "5200", cfg.Port)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.AllowedOrigins)
	assert.Equal(t, 10*time.Second, cfg.TransferTimeout)
	assert.Equal(t, time.Minute, cfg.LobbySweepInterval)
	assert.False(t, cfg.ArchiveEnabled())

	w, err := cfg.Weights()
	require.NoError(t, err)
	assert.Equal(t, escrow.DefaultWeights, w)

	admin, err := cfg.Admin()
	require.NoError(t, err)
	want, err := account.Parse("0xa000000000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, want, admin)

	mgr, err := cfg.Manager()
	require.NoError(t, err)
	assert.Empty(t, mgr)
}

func TestLoadMissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("GAME_SERVICE_TOKEN", "")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoadCustomSplit(t *testing.T) {
	setRequired(t)
	t.Setenv("PRIZE_SPLIT_BPS", "5000,3000,2000")
	cfg, err := Load()
	require.NoError(t, err)
	w, err := cfg.Weights()
	require.NoError(t, err)
	assert.Equal(t, escrow.Weights{5000, 3000, 2000}, w)
}

func TestLoadRejectsBadSplit(t *testing.T) {
	setRequired(t)
	t.Setenv("PRIZE_SPLIT_BPS", "5000,3000")
	_, err := Load()
	assert.Error(t, err)

	t.Setenv("PRIZE_SPLIT_BPS", "5000,3000,3000")
	_, err = Load()
	assert.Error(t, err)
}

func TestLoadRejectsBadAddresses(t *testing.T) {
	setRequired(t)
	t.Setenv("ADMIN_ADDRESS", "not-an-address")
	_, err := Load()
	assert.Error(t, err)

	setRequired(t)
	t.Setenv("MANAGER_ADDRESS", "0x0000000000000000000000000000000000000000")
	_, err = Load()
	assert.Error(t, err)
}
