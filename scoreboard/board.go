// Package scoreboard records reported scores and ranks the podium.
package scoreboard

import (
	"sort"
	"sync"

	"tournament-escrow/account"
)

// Board keeps the last score reported per player per tournament.
type Board struct {
	mu     sync.RWMutex
	scores map[uint64]map[account.Address]uint64
}

func New() *Board {
	return &Board{scores: make(map[uint64]map[account.Address]uint64)}
}

// Submit overwrites player's score in tournament id.
func (b *Board) Submit(id uint64, player account.Address, score uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.scores[id]
	if !ok {
		m = make(map[account.Address]uint64)
		b.scores[id] = m
	}
	m[player] = score
}

// Score returns player's last score, 0 if none was submitted.
func (b *Board) Score(id uint64, player account.Address) uint64 {
	s, _ := b.Lookup(id, player)
	return s
}

// Lookup is Score that also reports whether a score exists.
func (b *Board) Lookup(id uint64, player account.Address) (uint64, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s, ok := b.scores[id][player]
	return s, ok
}

// Scores copies every score recorded for tournament id.
func (b *Board) Scores(id uint64) map[account.Address]uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make(map[account.Address]uint64, len(b.scores[id]))
	for p, s := range b.scores[id] {
		out[p] = s
	}
	return out
}

// RankTop3 orders the scored players of joinOrder by descending score, the
// earlier joiner first on a tie, and returns the first three. Players without
// a score do not place; unfilled slots hold account.NoWinner.
func (b *Board) RankTop3(id uint64, joinOrder []account.Address) [3]account.Address {
	type entry struct {
		player account.Address
		score  uint64
		pos    int
	}
	b.mu.RLock()
	ranked := make([]entry, 0, len(joinOrder))
	for i, p := range joinOrder {
		if s, ok := b.scores[id][p]; ok {
			ranked = append(ranked, entry{player: p, score: s, pos: i})
		}
	}
	b.mu.RUnlock()

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].pos < ranked[j].pos
	})

	top := [3]account.Address{account.NoWinner, account.NoWinner, account.NoWinner}
	for i := 0; i < len(ranked) && i < len(top); i++ {
		top[i] = ranked[i].player
	}
	return top
}
