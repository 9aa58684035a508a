package workers

import (
	"context"
	"log"
	"time"

	"tournament-escrow/events"
	"tournament-escrow/registry"
	"tournament-escrow/utils"
)

// EventSink is where drained events and tournament read models are written.
type EventSink interface {
	Save(ctx context.Context, evs []events.Event) error
	SaveSnapshot(ctx context.Context, snap registry.Snapshot, archiveKey string) error
}

// Archiver stores closed tournament snapshots in object storage.
type Archiver interface {
	PutJSON(ctx context.Context, key string, v any) error
}

// EventPersister drains the in-memory event queue into durable storage by
// sequence cursor and archives tournaments once they close.
type EventPersister struct {
	Queue    *events.Queue
	Store    EventSink
	Registry *registry.Registry
	Archive  Archiver // optional
	Batch    int

	cursor uint64
}

// NewEventPersister starts draining after cursor, the last sequence number
// already stored.
func NewEventPersister(q *events.Queue, store EventSink, reg *registry.Registry, archive Archiver, cursor uint64) *EventPersister {
	return &EventPersister{Queue: q, Store: store, Registry: reg, Archive: archive, Batch: 500, cursor: cursor}
}

func (p *EventPersister) Cursor() uint64 { return p.cursor }

// Flush persists one batch of pending events and refreshes the read model of
// every tournament they touch. The cursor only advances when the batch is
// stored, so a failed batch is retried whole on the next call.
func (p *EventPersister) Flush(ctx context.Context) (int, error) {
	evs := p.Queue.Since(p.cursor, p.Batch)
	if len(evs) == 0 {
		return 0, nil
	}
	if err := p.Store.Save(ctx, evs); err != nil {
		return 0, err
	}
	p.cursor = evs[len(evs)-1].Seq

	touched := make(map[uint64]bool)
	var order []uint64
	for _, ev := range evs {
		if ev.TournamentID == 0 {
			continue
		}
		closing := ev.Type == events.TypeTournamentCancelled || ev.Type == events.TypeTournamentCompleted
		if _, seen := touched[ev.TournamentID]; !seen {
			order = append(order, ev.TournamentID)
		}
		touched[ev.TournamentID] = touched[ev.TournamentID] || closing
	}
	for _, id := range order {
		p.refresh(ctx, id, touched[id])
	}
	return len(evs), nil
}

func (p *EventPersister) refresh(ctx context.Context, id uint64, closed bool) {
	snap, err := p.Registry.Details(id)
	if err != nil {
		log.Printf("[EventWorker] no snapshot for tournament %d: %v", id, err)
		return
	}
	var key string
	if closed && p.Archive != nil {
		key = utils.ArchiveKey(snap.GameType, id)
		if err := p.Archive.PutJSON(ctx, key, snap); err != nil {
			log.Printf("[EventWorker] archive of tournament %d failed: %v", id, err)
			key = ""
		} else {
			log.Printf("[EventWorker] archived tournament %d to %s", id, key)
		}
	}
	if err := p.Store.SaveSnapshot(ctx, snap, key); err != nil {
		log.Printf("[EventWorker] read model update for tournament %d failed: %v", id, err)
	}
}

// Run flushes every interval until ctx is done, then drains what is left.
func (p *EventPersister) Run(ctx context.Context, interval time.Duration) {
	log.Printf("[EventWorker] persisting events after seq %d every %s", p.cursor, interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			drain, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			for {
				n, err := p.Flush(drain)
				if err != nil {
					log.Printf("[EventWorker] final flush failed at seq %d: %v", p.cursor, err)
					break
				}
				if n == 0 {
					break
				}
			}
			cancel()
			log.Printf("[EventWorker] stopped at seq %d", p.cursor)
			return
		case <-ticker.C:
			for {
				n, err := p.Flush(ctx)
				if err != nil {
					log.Printf("[EventWorker] flush after seq %d failed: %v", p.cursor, err)
					break
				}
				if n < p.Batch {
					break
				}
			}
		}
	}
}
