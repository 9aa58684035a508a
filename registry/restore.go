package registry

import (
	"log"
	"sort"

	"github.com/pkg/errors"

	"tournament-escrow/account"
	"tournament-escrow/errs"
	"tournament-escrow/escrow"
	"tournament-escrow/events"
)

// restore rebuilds tournaments, pots, scores and balances from history.
// Unfinished tournaments come back fully operable: they can still be joined,
// scored, cancelled with refunds or completed with payouts.
func (r *Registry) restore(history []events.Event) error {
	if len(history) == 0 {
		return nil
	}
	hist := events.Replay(history)
	ids := make([]uint64, 0, len(hist))
	for id := range hist {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	r.mu.Lock()
	defer r.mu.Unlock()
	open := 0
	for _, id := range ids {
		h := hist[id]
		if h.MaxPlayers == 0 {
			return errors.Wrapf(errs.ErrInvalidState, "events of tournament %d have no TournamentCreated", id)
		}
		t := &tournament{
			id:            id,
			entryFee:      h.EntryFee,
			maxPlayers:    h.MaxPlayers,
			startTime:     h.StartTime.UTC(),
			lobbyDeadline: h.LobbyDeadline.UTC(),
			gameType:      h.GameType,
			isActive:      !h.Cancelled && !h.Completed,
			isCancelled:   h.Cancelled,
			players:       append([]account.Address(nil), h.Players...),
			joined:        make(map[account.Address]struct{}, len(h.Players)),
			winners:       h.Winners,
			rewards:       h.Rewards,
			createdAt:     h.CreatedAt.UTC(),
		}
		if !h.ClosedAt.IsZero() {
			t.closedAt = h.ClosedAt.UTC()
		}
		for _, p := range h.Players {
			t.joined[p] = struct{}{}
		}

		var held []escrow.Payment
		if t.isActive {
			open++
			held = make([]escrow.Payment, 0, len(h.Players))
			for _, p := range h.Players {
				held = append(held, escrow.Payment{Account: p, Amount: h.Paid[p]})
			}
		}
		if err := r.ledger.RestorePot(id, h.EntryFee, h.MaxPlayers, held); err != nil {
			return errors.Wrapf(err, "restore pot of tournament %d", id)
		}
		for p, score := range h.Scores {
			r.board.Submit(id, p, score)
		}
		r.tournaments[id] = t
		if id > r.lastID {
			r.lastID = id
		}
	}

	b := events.ReplayBalances(history)
	credits := make(map[account.Address][]escrow.Credit, len(b.Credits))
	var owed uint64
	for who, cs := range b.Credits {
		for _, c := range cs {
			credits[who] = append(credits[who], escrow.Credit{Amount: c.Amount, Reference: c.Reference})
			owed += c.Amount
		}
	}
	r.ledger.RestoreBalances(b.Platform, credits)

	log.Printf("[Registry] restored %d tournament(s), %d unfinished; platform balance %d, %d owed to %d account(s)",
		len(ids), open, b.Platform, owed, len(credits))
	return nil
}
