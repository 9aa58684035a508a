package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-escrow/account"
	"tournament-escrow/registry"
)

const (
	testAdmin   = account.Address("0xA000000000000000000000000000000000000001")
	testManager = account.Address("0xB000000000000000000000000000000000000002")
)

type noBadges struct{}

func (noBadges) HasBadge(context.Context, account.Address) (bool, error) { return false, nil }

type flakyWallet struct {
	mu   sync.Mutex
	down bool
	paid map[account.Address]uint64
}

func (w *flakyWallet) Transfer(_ context.Context, to account.Address, amount uint64, _ string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.down {
		return errors.New("wallet down")
	}
	if w.paid == nil {
		w.paid = map[account.Address]uint64{}
	}
	w.paid[to] += amount
	return nil
}

func newTestRegistry(t *testing.T, clock clockwork.Clock, w *flakyWallet) *registry.Registry {
	t.Helper()
	reg, err := registry.New(registry.Config{
		Admin:    testAdmin,
		Manager:  testManager,
		Clock:    clock,
		Oracle:   noBadges{},
		Transfer: w,
	}, nil)
	require.NoError(t, err)
	return reg
}

func TestSweepLobbiesReportsOnce(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	reg := newTestRegistry(t, clock, &flakyWallet{})

	params := registry.Params{MaxPlayers: 3, StartTime: t0.Add(2 * time.Hour), LobbyDeadline: t0.Add(time.Hour)}
	underfilled, err := reg.Create(ctx, testManager, params)
	require.NoError(t, err)
	_, err = reg.Create(ctx, testManager, params)
	require.NoError(t, err)
	require.NoError(t, reg.Join(ctx, payee, underfilled, 0))

	h := NewHousekeeper(reg, testAdmin, 0)
	assert.Empty(t, h.SweepLobbies(), "lobbies still open")

	clock.Advance(time.Hour)
	got := h.SweepLobbies()
	require.Len(t, got, 2)
	assert.Equal(t, underfilled, got[0].ID)
	assert.Empty(t, h.SweepLobbies(), "already reported")

	s, err := reg.Details(underfilled)
	require.NoError(t, err)
	assert.False(t, s.IsCancelled, "sweeping never cancels")
}

func TestRetryCreditsReleasesWhenWalletRecovers(t *testing.T) {
	ctx := context.Background()
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := clockwork.NewFakeClockAt(t0)
	w := &flakyWallet{}
	reg := newTestRegistry(t, clock, w)

	id, err := reg.Create(ctx, testManager, registry.Params{EntryFee: 10, MaxPlayers: 2, StartTime: t0.Add(2 * time.Hour), LobbyDeadline: t0.Add(time.Hour)})
	require.NoError(t, err)
	require.NoError(t, reg.Join(ctx, payee, id, 10))

	w.mu.Lock()
	w.down = true
	w.mu.Unlock()
	_, err = reg.Cancel(ctx, testManager, id)
	require.NoError(t, err)
	require.Equal(t, uint64(10), reg.PendingCredit(payee))

	h := NewHousekeeper(reg, testAdmin, time.Second)
	assert.Zero(t, h.RetryCredits(ctx))
	assert.Equal(t, uint64(10), reg.PendingCredit(payee))

	w.mu.Lock()
	w.down = false
	w.mu.Unlock()
	assert.Equal(t, 1, h.RetryCredits(ctx))
	assert.Zero(t, reg.PendingCredit(payee))
	assert.Equal(t, uint64(10), w.paid[payee])
}

func TestStartSchedulerRegistersJobs(t *testing.T) {
	reg := newTestRegistry(t, clockwork.NewRealClock(), &flakyWallet{})
	h := NewHousekeeper(reg, testAdmin, time.Second)

	sched, err := StartScheduler(context.Background(), h, nil, time.Minute, time.Minute)
	require.NoError(t, err)
	assert.Len(t, sched.Jobs(), 2)
	require.NoError(t, sched.Shutdown())
}
