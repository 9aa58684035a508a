package services

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"tournament-escrow/events"
)

// StoredEvents serves events persisted by earlier processes.
type StoredEvents interface {
	Since(ctx context.Context, seq uint64, limit int) ([]events.Event, error)
}

// EventStreamService streams lifecycle events to gateway clients over SSE.
type EventStreamService struct {
	Queue    *events.Queue
	Store    StoredEvents // optional
	Interval time.Duration
}

func NewEventStreamService(q *events.Queue) *EventStreamService {
	return &EventStreamService{Queue: q, Interval: 500 * time.Millisecond}
}

// streamCursor picks the resume point: Last-Event-ID wins over ?since=.
func streamCursor(c *fiber.Ctx) (uint64, error) {
	raw := c.Get("Last-Event-ID")
	if raw == "" {
		raw = c.Query("since")
	}
	if raw == "" {
		return 0, nil
	}
	return strconv.ParseUint(raw, 10, 64)
}

// WriteSSE writes evs as server-sent events, skipping those of other
// tournaments when tournamentID is set. It returns how many were written.
func WriteSSE(w *bufio.Writer, evs []events.Event, tournamentID uint64) int {
	n := 0
	for _, ev := range evs {
		if tournamentID != 0 && ev.TournamentID != tournamentID {
			continue
		}
		payload, err := json.Marshal(ev)
		if err != nil {
			log.Printf("[SSE] cannot encode event %d: %v", ev.Seq, err)
			continue
		}
		fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", ev.Seq, ev.Type, payload)
		n++
	}
	return n
}

// StreamEvents streams every event after the client's cursor, then follows
// the queue until the client disconnects.
func (s *EventStreamService) StreamEvents(c *fiber.Ctx) error {
	cursor, err := streamCursor(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid event cursor"})
	}
	tournamentID := uint64(c.QueryInt("tournament_id", 0))

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no") // nginx

	done := c.Context().Done()
	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		ticker := time.NewTicker(s.Interval)
		defer ticker.Stop()
		keepalive := time.NewTicker(15 * time.Second)
		defer keepalive.Stop()

		w.WriteString(":\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			if evs := s.Queue.Since(cursor, 256); len(evs) > 0 {
				cursor = evs[len(evs)-1].Seq
				WriteSSE(w, evs, tournamentID)
				if err := w.Flush(); err != nil {
					// Client disconnected
					return
				}
				continue
			}
			select {
			case <-ticker.C:
			case <-keepalive.C:
				w.WriteString(":\n\n")
				if err := w.Flush(); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	})
	return nil
}

// ListEvents returns a page of events after ?since=, oldest first.
func (s *EventStreamService) ListEvents(c *fiber.Ctx) error {
	cursor, err := streamCursor(c)
	if err != nil {
		return badRequest(c, "invalid event cursor")
	}
	limit := c.QueryInt("limit", 100)
	if limit <= 0 || limit > 1000 {
		limit = 1000
	}
	evs := s.Queue.Since(cursor, limit)
	if s.Store != nil && (len(evs) == 0 || evs[0].Seq > cursor+1) && cursor < s.Queue.LastSeq() {
		// the page starts before this process's queue
		ctx, cancel := context.WithTimeout(c.UserContext(), 10*time.Second)
		stored, err := s.Store.Since(ctx, cursor, limit)
		cancel()
		if err != nil {
			log.Printf("[SSE] stored events after %d: %v", cursor, err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load events"})
		}
		evs = stored
	}
	if evs == nil {
		evs = []events.Event{}
	}
	return c.JSON(fiber.Map{"events": evs, "last_seq": s.Queue.LastSeq()})
}
