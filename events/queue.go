package events

import (
	"sync"

	"github.com/google/uuid"
)

// Queue is an append-only, in-memory event log. It is the engine's output
// queue; persistence and streaming read from it by sequence cursor.
type Queue struct {
	mu     sync.RWMutex
	base   uint64
	events []Event
}

func NewQueue() *Queue {
	return &Queue{}
}

// NewQueueAt returns a queue whose first event gets sequence number base+1,
// so numbering continues after events persisted by an earlier process.
func NewQueueAt(base uint64) *Queue {
	return &Queue{base: base}
}

// Emit appends ev, assigning the next sequence number and a fresh id.
func (q *Queue) Emit(ev Event) Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	ev.Seq = q.base + uint64(len(q.events)) + 1
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	q.events = append(q.events, ev)
	return ev
}

// Since returns up to limit events with Seq > seq, oldest first.
// A limit <= 0 means no limit.
func (q *Queue) Since(seq uint64, limit int) []Event {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var from uint64
	if seq > q.base {
		from = seq - q.base
	}
	if from >= uint64(len(q.events)) {
		return nil
	}
	tail := q.events[from:]
	if limit > 0 && len(tail) > limit {
		tail = tail[:limit]
	}
	out := make([]Event, len(tail))
	copy(out, tail)
	return out
}

// LastSeq is the sequence number of the newest event, or the base when the
// queue is empty.
func (q *Queue) LastSeq() uint64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.base + uint64(len(q.events))
}

// All returns a copy of the whole log.
func (q *Queue) All() []Event {
	return q.Since(0, 0)
}
