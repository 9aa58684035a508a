package workers

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tournament-escrow/account"
	"tournament-escrow/events"
	"tournament-escrow/registry"
)

const (
	admin   = account.Address("0xA000000000000000000000000000000000000001")
	manager = account.Address("0xB000000000000000000000000000000000000002")
	player  = account.Address("0x1111111111111111111111111111111111111111")
)

type memStore struct {
	mu        sync.Mutex
	failSave  bool
	saved     []events.Event
	snapshots map[uint64]registry.Snapshot
	keys      map[uint64]string
}

func newMemStore() *memStore {
	return &memStore{snapshots: map[uint64]registry.Snapshot{}, keys: map[uint64]string{}}
}

func (m *memStore) Save(_ context.Context, evs []events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSave {
		return errors.New("database unavailable")
	}
	m.saved = append(m.saved, evs...)
	return nil
}

func (m *memStore) SaveSnapshot(_ context.Context, snap registry.Snapshot, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snap.ID] = snap
	if key != "" {
		m.keys[snap.ID] = key
	}
	return nil
}

type memArchive struct {
	puts map[string]any
	fail bool
}

func (a *memArchive) PutJSON(_ context.Context, key string, v any) error {
	if a.fail {
		return errors.New("bucket unreachable")
	}
	a.puts[key] = v
	return nil
}

type noTransfers struct{}

func (noTransfers) Transfer(context.Context, account.Address, uint64, string) error { return nil }

func newRegistry(t *testing.T, q *events.Queue) (*registry.Registry, time.Time) {
	t.Helper()
	t0 := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	reg, err := registry.New(registry.Config{
		Admin:    admin,
		Manager:  manager,
		Clock:    clockwork.NewFakeClockAt(t0),
		Transfer: noTransfers{},
	}, q)
	require.NoError(t, err)
	return reg, t0
}

func TestFlushPersistsAndRefreshesReadModel(t *testing.T) {
	ctx := context.Background()
	q := events.NewQueue()
	reg, t0 := newRegistry(t, q)
	store := newMemStore()
	archive := &memArchive{puts: map[string]any{}}
	p := NewEventPersister(q, store, reg, archive, 0)

	id, err := reg.Create(ctx, manager, registry.Params{
		EntryFee: 10, MaxPlayers: 4,
		StartTime: t0.Add(time.Hour), LobbyDeadline: t0.Add(time.Minute),
		GameType: "Speed Chess",
	})
	require.NoError(t, err)
	require.NoError(t, reg.Join(ctx, player, id, 10))

	n, err := p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, int(q.LastSeq()), n)
	assert.Equal(t, q.LastSeq(), p.Cursor())
	assert.Len(t, store.saved, n)
	assert.Equal(t, uint64(1), store.snapshots[id].CurrentPlayers)
	assert.Empty(t, archive.puts, "open tournaments are not archived")

	n, err = p.Flush(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushArchivesClosedTournaments(t *testing.T) {
	ctx := context.Background()
	q := events.NewQueue()
	reg, t0 := newRegistry(t, q)
	store := newMemStore()
	archive := &memArchive{puts: map[string]any{}}
	p := NewEventPersister(q, store, reg, archive, 0)

	id, err := reg.Create(ctx, manager, registry.Params{
		EntryFee: 10, MaxPlayers: 4,
		StartTime: t0.Add(time.Hour), LobbyDeadline: t0.Add(time.Minute),
		GameType: "Speed Chess",
	})
	require.NoError(t, err)
	_, err = reg.Cancel(ctx, manager, id)
	require.NoError(t, err)

	_, err = p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tournaments/speed-chess/000001.json", store.keys[id])
	require.Contains(t, archive.puts, "tournaments/speed-chess/000001.json")
	assert.True(t, store.snapshots[id].IsCancelled)
}

func TestFlushKeepsReadModelWhenArchiveFails(t *testing.T) {
	ctx := context.Background()
	q := events.NewQueue()
	reg, t0 := newRegistry(t, q)
	store := newMemStore()
	p := NewEventPersister(q, store, reg, &memArchive{fail: true}, 0)

	id, err := reg.Create(ctx, manager, registry.Params{
		MaxPlayers: 2, StartTime: t0.Add(time.Hour), LobbyDeadline: t0.Add(time.Minute),
	})
	require.NoError(t, err)
	_, err = reg.Cancel(ctx, manager, id)
	require.NoError(t, err)

	_, err = p.Flush(ctx)
	require.NoError(t, err)
	assert.True(t, store.snapshots[id].IsCancelled)
	assert.Empty(t, store.keys[id])
}

func TestFlushRetriesFailedBatch(t *testing.T) {
	ctx := context.Background()
	q := events.NewQueue()
	reg, _ := newRegistry(t, q)
	store := newMemStore()
	store.failSave = true
	p := NewEventPersister(q, store, reg, nil, 0)

	_, err := p.Flush(ctx)
	require.Error(t, err)
	assert.Zero(t, p.Cursor())

	store.failSave = false
	n, err := p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n, "both start-up role grants are retried")
	assert.Equal(t, uint64(2), p.Cursor())
}

func TestFlushResumesAfterStoredCursor(t *testing.T) {
	ctx := context.Background()
	q := events.NewQueueAt(40)
	reg, _ := newRegistry(t, q)
	store := newMemStore()
	p := NewEventPersister(q, store, reg, nil, 40)
	p.Batch = 1

	n, err := p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	require.Len(t, store.saved, 1)
	assert.Equal(t, uint64(41), store.saved[0].Seq)

	_, err = p.Flush(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), p.Cursor())
}

func TestRunDrainsOnShutdown(t *testing.T) {
	q := events.NewQueue()
	reg, _ := newRegistry(t, q)
	store := newMemStore()
	p := NewEventPersister(q, store, reg, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Run(ctx, time.Hour)

	assert.Equal(t, q.LastSeq(), p.Cursor())
	assert.Len(t, store.saved, int(q.LastSeq()))
}
