// Package metrics registers the engine's counters in the go-metrics default
// registry.
package metrics

import (
	"io"
	"math"
	"time"

	gometrics "github.com/rcrowley/go-metrics"
)

var (
	TournamentsCreated   = gometrics.NewRegisteredCounter("tournaments.created", gometrics.DefaultRegistry)
	TournamentsCancelled = gometrics.NewRegisteredCounter("tournaments.cancelled", gometrics.DefaultRegistry)
	TournamentsCompleted = gometrics.NewRegisteredCounter("tournaments.completed", gometrics.DefaultRegistry)
	PlayersJoined        = gometrics.NewRegisteredCounter("players.joined", gometrics.DefaultRegistry)
	ScoresSubmitted      = gometrics.NewRegisteredCounter("scores.submitted", gometrics.DefaultRegistry)
	Rejections           = gometrics.NewRegisteredCounter("operations.rejected", gometrics.DefaultRegistry)

	Collected         = gometrics.NewRegisteredCounter("escrow.collected", gometrics.DefaultRegistry)
	Refunded          = gometrics.NewRegisteredCounter("escrow.refunded", gometrics.DefaultRegistry)
	Distributed       = gometrics.NewRegisteredCounter("escrow.distributed", gometrics.DefaultRegistry)
	PlatformCredited  = gometrics.NewRegisteredCounter("escrow.platform_credited", gometrics.DefaultRegistry)
	PlatformWithdrawn = gometrics.NewRegisteredCounter("escrow.platform_withdrawn", gometrics.DefaultRegistry)
	CreditsQueued     = gometrics.NewRegisteredCounter("escrow.credits_queued", gometrics.DefaultRegistry)
	TransferFailures  = gometrics.NewRegisteredCounter("escrow.transfer_failures", gometrics.DefaultRegistry)

	TransferLatency = gometrics.NewRegisteredTimer("escrow.transfer_latency", gometrics.DefaultRegistry)
)

// Amount adds a currency amount to a counter, saturating at MaxInt64.
func Amount(c gometrics.Counter, v uint64) {
	if v > math.MaxInt64 {
		v = math.MaxInt64
	}
	c.Inc(int64(v))
}

// Since records the time elapsed from start in t.
func Since(t gometrics.Timer, start time.Time) {
	t.UpdateSince(start)
}

// WriteJSON writes a snapshot of every registered metric.
func WriteJSON(w io.Writer) {
	gometrics.WriteJSONOnce(gometrics.DefaultRegistry, w)
}
