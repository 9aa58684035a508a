package events

import (
	"sort"
	"time"

	"tournament-escrow/account"
)

// History is a tournament rebuilt from the event stream alone.
type History struct {
	TournamentID  uint64
	EntryFee      uint64
	MaxPlayers    uint64
	StartTime     time.Time
	LobbyDeadline time.Time
	GameType      string
	Players       []account.Address
	Paid          map[account.Address]uint64
	Scores        map[account.Address]uint64
	Pot           uint64
	Cancelled     bool
	Completed     bool
	Winners       [3]account.Address
	Rewards       [3]uint64
	Refunds       []Transfer
	CreatedAt     time.Time
	ClosedAt      time.Time
}

func bySeq(evs []Event) []Event {
	ordered := make([]Event, len(evs))
	copy(ordered, evs)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })
	return ordered
}

// Replay folds events into per-tournament histories. Events are applied in
// Seq order regardless of slice order; role and credit events are skipped.
func Replay(evs []Event) map[uint64]*History {
	ordered := bySeq(evs)

	out := make(map[uint64]*History)
	get := func(id uint64) *History {
		h, ok := out[id]
		if !ok {
			h = &History{
				TournamentID: id,
				Paid:         make(map[account.Address]uint64),
				Scores:       make(map[account.Address]uint64),
			}
			out[id] = h
		}
		return h
	}

	for _, ev := range ordered {
		switch p := ev.Payload.(type) {
		case TournamentCreated:
			h := get(p.TournamentID)
			h.EntryFee = p.EntryFee
			h.MaxPlayers = p.MaxPlayers
			h.StartTime = p.StartTime
			h.LobbyDeadline = p.LobbyDeadline
			h.GameType = p.GameType
			h.CreatedAt = ev.OccurredAt
		case PlayerJoined:
			h := get(p.TournamentID)
			h.Players = append(h.Players, p.Player)
			h.Paid[p.Player] = p.Paid
			h.Pot += p.Paid
		case ScoreSubmitted:
			get(p.TournamentID).Scores[p.Player] = p.Score
		case TournamentCancelled:
			h := get(p.TournamentID)
			h.Cancelled = true
			h.Refunds = append(h.Refunds, p.Refunds...)
			h.Pot = 0
			h.ClosedAt = ev.OccurredAt
		case RewardDistributed:
			h := get(p.TournamentID)
			h.Winners = p.Winners
			h.Rewards = p.RewardAmounts
			h.Pot = 0
		case TournamentCompleted:
			h := get(p.TournamentID)
			h.Completed = true
			h.ClosedAt = ev.OccurredAt
		}
	}
	return out
}

// Credit is one outstanding pending credit.
type Credit struct {
	Amount    uint64
	Reference string
}

// Balances is what the platform and individual accounts are owed at the end
// of an event stream.
type Balances struct {
	Platform uint64
	Credits  map[account.Address][]Credit
}

// ReplayBalances folds platform credits, withdrawals and pending credits in
// Seq order. A released credit is matched by reference.
func ReplayBalances(evs []Event) Balances {
	b := Balances{Credits: make(map[account.Address][]Credit)}
	for _, ev := range bySeq(evs) {
		switch p := ev.Payload.(type) {
		case RewardDistributed:
			b.Platform += p.PlatformCredit
		case PlatformWithdrawn:
			if p.Amount > b.Platform {
				b.Platform = 0
			} else {
				b.Platform -= p.Amount
			}
		case CreditQueued:
			b.Credits[p.Account] = append(b.Credits[p.Account], Credit{Amount: p.Amount, Reference: p.Reference})
		case CreditReleased:
			cs := b.Credits[p.Account]
			for i, c := range cs {
				if c.Reference == p.Reference {
					cs = append(cs[:i:i], cs[i+1:]...)
					break
				}
			}
			if len(cs) == 0 {
				delete(b.Credits, p.Account)
			} else {
				b.Credits[p.Account] = cs
			}
		}
	}
	return b
}
