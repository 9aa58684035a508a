// services/scheduler.go
package services

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"tournament-escrow/account"
	"tournament-escrow/registry"
)

// Housekeeper runs the periodic jobs around the registry.
type Housekeeper struct {
	Registry *registry.Registry
	Admin    account.Address
	Timeout  time.Duration

	mu       sync.Mutex
	reported map[uint64]struct{}
}

func NewHousekeeper(reg *registry.Registry, admin account.Address, timeout time.Duration) *Housekeeper {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Housekeeper{Registry: reg, Admin: admin, Timeout: timeout, reported: make(map[uint64]struct{})}
}

// SweepLobbies reports tournaments whose lobby closed without a full roster.
// Nothing is cancelled here; each one is logged once for a manager decision.
func (h *Housekeeper) SweepLobbies() []registry.Snapshot {
	h.mu.Lock()
	defer h.mu.Unlock()
	var fresh []registry.Snapshot
	for _, s := range h.Registry.UnderfilledLobbies() {
		if _, seen := h.reported[s.ID]; seen {
			continue
		}
		h.reported[s.ID] = struct{}{}
		fresh = append(fresh, s)
		log.Printf("[Scheduler] tournament %d lobby closed with %d/%d players; awaiting manager decision (start %s)",
			s.ID, s.CurrentPlayers, s.MaxPlayers, s.StartTime.Format(time.RFC3339))
	}
	return fresh
}

// RetryCredits tries once to pay out every pending credit. It returns the
// number of credits released.
func (h *Housekeeper) RetryCredits(ctx context.Context) int {
	released := 0
	for who := range h.Registry.PendingCredits() {
		callCtx, cancel := context.WithTimeout(ctx, h.Timeout)
		amt, err := h.Registry.ReleaseCredit(callCtx, h.Admin, who)
		cancel()
		if err != nil {
			log.Printf("[Scheduler] credit for %s still pending: %v", who, err)
			continue
		}
		released++
		log.Printf("[Scheduler] released pending credit %d to %s", amt, who)
	}
	return released
}

// StartScheduler registers the housekeeping jobs and starts them. Jobs never
// overlap themselves.
func StartScheduler(ctx context.Context, h *Housekeeper, clock clockwork.Clock, sweepEvery, retryEvery time.Duration) (gocron.Scheduler, error) {
	opts := []gocron.SchedulerOption{}
	if clock != nil {
		opts = append(opts, gocron.WithClock(clock))
	}
	sched, err := gocron.NewScheduler(opts...)
	if err != nil {
		return nil, err
	}

	if _, err := sched.NewJob(
		gocron.DurationJob(sweepEvery),
		gocron.NewTask(func() { h.SweepLobbies() }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("lobby-sweep"),
	); err != nil {
		return nil, err
	}
	if _, err := sched.NewJob(
		gocron.DurationJob(retryEvery),
		gocron.NewTask(func() { h.RetryCredits(ctx) }),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName("credit-retry"),
	); err != nil {
		return nil, err
	}

	sched.Start()
	log.Printf("[Scheduler] started: lobby sweep every %s, credit retry every %s", sweepEvery, retryEvery)
	return sched, nil
}
