// Package registry is the aggregate root of the engine. It owns every
// tournament, drives the lifecycle state machine and routes money movement
// through the escrow ledger and results through the scoreboard.
//
// Operations on one tournament are serialized by that tournament's lock;
// events are appended to the sink while the lock is held, so the sink's
// sequence is the commit order. Different tournaments proceed in parallel.
package registry

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"
	"golang.org/x/text/unicode/norm"

	"tournament-escrow/access"
	"tournament-escrow/account"
	"tournament-escrow/errs"
	"tournament-escrow/escrow"
	"tournament-escrow/events"
	"tournament-escrow/metrics"
	"tournament-escrow/scoreboard"
)

type Config struct {
	Admin   account.Address
	Manager account.Address // optional, granted the manager role at start
	Weights escrow.Weights  // zero value means escrow.DefaultWeights
	Clock   clockwork.Clock
	// LastID is the highest tournament id already issued by an earlier
	// process; new ids continue after it.
	LastID uint64
	// History is the event stream of earlier processes. Roles, tournaments,
	// pots, scores, the platform balance and pending credits are rebuilt
	// from it without emitting anything.
	History []events.Event

	Oracle   escrow.BadgeOracle
	Transfer escrow.Transferer
	// TransferTimeout bounds each transfer attempt; zero means only the
	// caller's context applies.
	TransferTimeout time.Duration
}

type Registry struct {
	mu          sync.RWMutex
	tournaments map[uint64]*tournament
	lastID      uint64

	// treasury serializes platform-level money movement with its events.
	treasury sync.Mutex

	access *access.Control
	ledger *escrow.Ledger
	board  *scoreboard.Board
	sink   events.Sink
	clock  clockwork.Clock
}

func New(cfg Config, sink events.Sink) (*Registry, error) {
	if cfg.Admin.IsZero() {
		return nil, errors.Wrap(errs.ErrInvalidParameters, "admin account required")
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if sink == nil {
		sink = events.NewQueue()
	}
	var opts []escrow.Option
	if cfg.Weights != (escrow.Weights{}) {
		opts = append(opts, escrow.WithWeights(cfg.Weights))
	}
	if cfg.TransferTimeout > 0 {
		opts = append(opts, escrow.WithTransferTimeout(cfg.TransferTimeout))
	}
	ledger, err := escrow.New(cfg.Oracle, cfg.Transfer, opts...)
	if err != nil {
		return nil, err
	}

	ac := access.Restore(cfg.Admin, sink, cfg.Clock, cfg.History)
	if !cfg.Manager.IsZero() {
		ac.Bootstrap(access.ManagerRole, cfg.Manager, cfg.Admin)
	}
	r := &Registry{
		tournaments: make(map[uint64]*tournament),
		lastID:      cfg.LastID,
		access:      ac,
		ledger:      ledger,
		board:       scoreboard.New(),
		sink:        sink,
		clock:       cfg.Clock,
	}
	if err := r.restore(cfg.History); err != nil {
		return nil, err
	}
	return r, nil
}

// Access exposes role management.
func (r *Registry) Access() *access.Control { return r.access }

// Create opens a new tournament and returns its id.
func (r *Registry) Create(ctx context.Context, caller account.Address, p Params) (uint64, error) {
	if err := r.access.Require(access.ManagerRole, caller); err != nil {
		return 0, r.reject("create", err)
	}
	if p.MaxPlayers == 0 {
		return 0, r.reject("create", errors.Wrap(errs.ErrInvalidParameters, "maxPlayers must be positive"))
	}
	if !p.LobbyDeadline.Before(p.StartTime) {
		return 0, r.reject("create", errors.Wrapf(errs.ErrInvalidParameters,
			"lobby deadline %s must be before start time %s", p.LobbyDeadline.Format(time.RFC3339), p.StartTime.Format(time.RFC3339)))
	}
	gameType := norm.NFC.String(strings.TrimSpace(p.GameType))

	r.mu.Lock()
	defer r.mu.Unlock()
	id := r.lastID + 1
	if err := r.ledger.Open(id, p.EntryFee, p.MaxPlayers); err != nil {
		return 0, r.reject("create", err)
	}
	r.lastID = id
	t := &tournament{
		id:            id,
		entryFee:      p.EntryFee,
		maxPlayers:    p.MaxPlayers,
		startTime:     p.StartTime.UTC(),
		lobbyDeadline: p.LobbyDeadline.UTC(),
		gameType:      gameType,
		isActive:      true,
		joined:        make(map[account.Address]struct{}),
		createdAt:     r.now(),
	}
	r.tournaments[id] = t

	metrics.TournamentsCreated.Inc(1)
	log.Printf("[Registry] tournament %d created by %s: fee=%d max=%d game=%q", id, caller, p.EntryFee, p.MaxPlayers, gameType)
	r.emit(events.TypeTournamentCreated, id, events.TournamentCreated{
		TournamentID:  id,
		EntryFee:      t.entryFee,
		MaxPlayers:    t.maxPlayers,
		StartTime:     t.startTime,
		LobbyDeadline: t.lobbyDeadline,
		GameType:      gameType,
	})
	return id, nil
}

// Join admits caller into tournament id against payment, which must equal
// the caller's quoted entry fee exactly.
func (r *Registry) Join(ctx context.Context, caller account.Address, id, payment uint64) error {
	if caller.IsZero() {
		return r.reject("join", errors.Wrap(errs.ErrInvalidParameters, "zero address cannot join"))
	}
	t, err := r.get(id)
	if err != nil {
		return r.reject("join", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if st := t.state(r.now()); st != StateOpen {
		return r.reject("join", errors.Wrapf(errs.ErrInvalidState, "tournament %d is %s", id, st))
	}
	if _, ok := t.joined[caller]; ok {
		return r.reject("join", errors.Wrapf(errs.ErrDuplicate, "%s already joined tournament %d", caller, id))
	}
	paid, err := r.ledger.Collect(ctx, id, caller, payment)
	if err != nil {
		return r.reject("join", err)
	}
	t.players = append(t.players, caller)
	t.joined[caller] = struct{}{}

	metrics.PlayersJoined.Inc(1)
	log.Printf("[Registry] %s joined tournament %d (%d/%d) paying %d", caller, id, len(t.players), t.maxPlayers, paid)
	r.emit(events.TypePlayerJoined, id, events.PlayerJoined{TournamentID: id, Player: caller, Paid: paid})
	return nil
}

// SubmitScore records player's latest score. Scores are accepted from the
// start time until the tournament reaches a terminal state.
func (r *Registry) SubmitScore(ctx context.Context, caller account.Address, id uint64, player account.Address, score uint64) error {
	if err := r.access.Require(access.ManagerRole, caller); err != nil {
		return r.reject("submit score", err)
	}
	t, err := r.get(id)
	if err != nil {
		return r.reject("submit score", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := r.now()
	if st := t.state(now); st.Terminal() {
		return r.reject("submit score", errors.Wrapf(errs.ErrInvalidState, "tournament %d is %s", id, st))
	}
	if now.Before(t.startTime) {
		return r.reject("submit score", errors.Wrapf(errs.ErrInvalidState, "tournament %d has not started", id))
	}
	if _, ok := t.joined[player]; !ok {
		return r.reject("submit score", errors.Wrapf(errs.ErrNotFound, "%s is not in tournament %d", player, id))
	}
	r.board.Submit(id, player, score)

	metrics.ScoresSubmitted.Inc(1)
	r.emit(events.TypeScoreSubmitted, id, events.ScoreSubmitted{TournamentID: id, Player: player, Score: score})
	return nil
}

// Cancel ends a tournament and refunds every participant what they paid.
func (r *Registry) Cancel(ctx context.Context, caller account.Address, id uint64) ([]escrow.Payment, error) {
	if err := r.access.Require(access.ManagerRole, caller); err != nil {
		return nil, r.reject("cancel", err)
	}
	t, err := r.get(id)
	if err != nil {
		return nil, r.reject("cancel", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if st := t.state(r.now()); st.Terminal() {
		return nil, r.reject("cancel", errors.Wrapf(errs.ErrInvalidState, "tournament %d is %s", id, st))
	}
	refunds, err := r.ledger.RefundAll(ctx, id, t.players)
	if err != nil {
		return nil, r.reject("cancel", err)
	}
	t.isCancelled = true
	t.isActive = false
	t.closedAt = r.now()

	out := make([]events.Transfer, 0, len(refunds))
	for _, p := range refunds {
		if p.Pending {
			r.emit(events.TypeCreditQueued, id, events.CreditQueued{TournamentID: id, Account: p.Account, Amount: p.Amount, Reference: p.Reference})
		}
		out = append(out, events.Transfer{Account: p.Account, Amount: p.Amount, Pending: p.Pending, Reference: p.Reference})
	}
	metrics.TournamentsCancelled.Inc(1)
	log.Printf("[Registry] tournament %d cancelled by %s, %d refunds", id, caller, len(refunds))
	r.emit(events.TypeTournamentCancelled, id, events.TournamentCancelled{TournamentID: id, Refunds: out})
	return refunds, nil
}

// Complete ranks the scored players and pays out the pot.
func (r *Registry) Complete(ctx context.Context, caller account.Address, id uint64) (escrow.Distribution, error) {
	if err := r.access.Require(access.ManagerRole, caller); err != nil {
		return escrow.Distribution{}, r.reject("complete", err)
	}
	t, err := r.get(id)
	if err != nil {
		return escrow.Distribution{}, r.reject("complete", err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	now := r.now()
	if st := t.state(now); st.Terminal() {
		return escrow.Distribution{}, r.reject("complete", errors.Wrapf(errs.ErrInvalidState, "tournament %d is %s", id, st))
	}
	if now.Before(t.startTime) {
		return escrow.Distribution{}, r.reject("complete", errors.Wrapf(errs.ErrInvalidState, "tournament %d has not started", id))
	}

	winners := r.board.RankTop3(id, t.players)
	d, err := r.ledger.Distribute(ctx, id, winners)
	if err != nil {
		return escrow.Distribution{}, r.reject("complete", err)
	}
	t.isActive = false
	t.winners = d.Winners
	t.rewards = d.Amounts
	t.closedAt = now

	for i, pending := range d.Pending {
		if pending {
			r.emit(events.TypeCreditQueued, id, events.CreditQueued{
				TournamentID: id,
				Account:      d.Winners[i],
				Amount:       d.Amounts[i],
				Reference:    d.References[i],
			})
		}
	}
	metrics.TournamentsCompleted.Inc(1)
	log.Printf("[Registry] tournament %d completed by %s: winners=%v rewards=%v platform=%d", id, caller, d.Winners, d.Amounts, d.PlatformCredit)
	r.emit(events.TypeRewardDistributed, id, events.RewardDistributed{
		TournamentID:   id,
		Winners:        d.Winners,
		RewardAmounts:  d.Amounts,
		Pending:        d.Pending,
		PlatformCredit: d.PlatformCredit,
	})
	r.emit(events.TypeTournamentCompleted, id, events.TournamentCompleted{
		TournamentID: id,
		Winner:       d.Winners[0],
		RewardAmount: d.Amounts[0],
	})
	return d, nil
}

// Withdraw sends the platform balance to to. Administrator only.
func (r *Registry) Withdraw(ctx context.Context, caller, to account.Address) (uint64, error) {
	if err := r.access.Require(access.AdminRole, caller); err != nil {
		return 0, r.reject("withdraw", err)
	}
	r.treasury.Lock()
	defer r.treasury.Unlock()
	amt, err := r.ledger.WithdrawPlatformBalance(ctx, to)
	if err != nil {
		return 0, r.reject("withdraw", err)
	}
	if amt == 0 {
		return 0, nil
	}
	log.Printf("[Registry] %s withdrew platform balance %d to %s", caller, amt, to)
	r.emit(events.TypePlatformWithdrawn, 0, events.PlatformWithdrawn{To: to, Amount: amt})
	return amt, nil
}

// ReleaseCredit retries payment of beneficiary's pending credits, each under
// the transfer reference of its first attempt. The beneficiary or an
// administrator may trigger it. On failure it returns what was released
// before the failing credit along with the error.
func (r *Registry) ReleaseCredit(ctx context.Context, caller, beneficiary account.Address) (uint64, error) {
	if caller != beneficiary {
		if err := r.access.Require(access.AdminRole, caller); err != nil {
			return 0, r.reject("release credit", err)
		}
	}
	r.treasury.Lock()
	defer r.treasury.Unlock()
	released, err := r.ledger.ReleaseCredit(ctx, beneficiary)
	var amt uint64
	for _, c := range released {
		amt += c.Amount
		log.Printf("[Registry] released credit %d to %s (%s)", c.Amount, beneficiary, c.Reference)
		r.emit(events.TypeCreditReleased, 0, events.CreditReleased{Account: beneficiary, Amount: c.Amount, Reference: c.Reference})
	}
	if err != nil {
		return amt, r.reject("release credit", err)
	}
	return amt, nil
}

// Details returns a snapshot of tournament id.
func (r *Registry) Details(id uint64) (Snapshot, error) {
	t, err := r.get(id)
	if err != nil {
		return Snapshot{}, err
	}
	return r.snapshot(t), nil
}

// PlayerScore returns player's last score in tournament id, 0 if none.
func (r *Registry) PlayerScore(id uint64, player account.Address) (uint64, error) {
	if _, err := r.get(id); err != nil {
		return 0, err
	}
	return r.board.Score(id, player), nil
}

// QuoteEntryFee returns what player would pay to join tournament id.
func (r *Registry) QuoteEntryFee(ctx context.Context, id uint64, player account.Address) (uint64, error) {
	return r.ledger.QuoteEntryFee(ctx, id, player)
}

// Count is the number of tournaments ever created.
func (r *Registry) Count() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastID
}

// List returns snapshots of all tournaments ordered by id.
func (r *Registry) List() []Snapshot {
	r.mu.RLock()
	ts := make([]*tournament, 0, len(r.tournaments))
	for _, t := range r.tournaments {
		ts = append(ts, t)
	}
	r.mu.RUnlock()
	sort.Slice(ts, func(i, j int) bool { return ts[i].id < ts[j].id })

	out := make([]Snapshot, 0, len(ts))
	for _, t := range ts {
		out = append(out, r.snapshot(t))
	}
	return out
}

// UnderfilledLobbies lists tournaments whose lobby closed at the deadline
// without filling every seat. They stay completable; a manager decides
// whether to cancel them.
func (r *Registry) UnderfilledLobbies() []Snapshot {
	var out []Snapshot
	for _, s := range r.List() {
		if s.State == StateAwaitingCompletion && s.CurrentPlayers < s.MaxPlayers {
			out = append(out, s)
		}
	}
	return out
}

func (r *Registry) PlatformBalance() uint64 { return r.ledger.PlatformBalance() }

func (r *Registry) PendingCredit(who account.Address) uint64 { return r.ledger.PendingCredit(who) }

func (r *Registry) PendingCredits() map[account.Address]uint64 { return r.ledger.PendingCredits() }

func (r *Registry) Weights() escrow.Weights { return r.ledger.Weights() }

func (r *Registry) get(id uint64) (*tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, errors.Wrapf(errs.ErrNotFound, "tournament %d", id)
	}
	return t, nil
}

func (r *Registry) snapshot(t *tournament) Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := t.state(r.now())
	pot, _ := r.ledger.Pot(t.id)
	players := make([]account.Address, len(t.players))
	copy(players, t.players)
	return Snapshot{
		ID:             t.id,
		EntryFee:       t.entryFee,
		MaxPlayers:     t.maxPlayers,
		CurrentPlayers: uint64(len(t.players)),
		StartTime:      t.startTime,
		LobbyDeadline:  t.lobbyDeadline,
		GameType:       t.gameType,
		IsActive:       t.isActive,
		IsCancelled:    t.isCancelled,
		State:          st,
		StateName:      st.String(),
		Players:        players,
		Scores:         r.board.Scores(t.id),
		Pot:            pot,
		Winners:        t.winners,
		Rewards:        t.rewards,
		CreatedAt:      t.createdAt,
		ClosedAt:       t.closedAt,
	}
}

func (r *Registry) emit(typ events.Type, id uint64, payload any) {
	r.sink.Emit(events.Event{Type: typ, TournamentID: id, OccurredAt: r.now(), Payload: payload})
}

func (r *Registry) reject(op string, err error) error {
	metrics.Rejections.Inc(1)
	log.Printf("[Registry] %s rejected: %v", op, err)
	return err
}

func (r *Registry) now() time.Time {
	return r.clock.Now().UTC()
}
