// Package escrow holds tournament entry fees until a tournament is cancelled
// or completed, and tracks what the platform and individual accounts are owed.
//
// All amounts are uint64 minor currency units. Funds leaving the ledger are
// deducted from its books before the external transfer is attempted; a failed
// transfer puts them back (platform withdrawal, credit release) or parks them
// as a pending credit for the recipient (refunds, prizes). Nothing is dropped.
package escrow

import (
	"context"
	"log"
	"math/bits"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"tournament-escrow/account"
	"tournament-escrow/errs"
	"tournament-escrow/metrics"
)

// BadgeOracle answers whether an account holds the loyalty badge.
type BadgeOracle interface {
	HasBadge(ctx context.Context, holder account.Address) (bool, error)
}

// Transferer moves funds out of escrow to an account. reference identifies
// the payment, not the attempt: a retry of a payment whose outcome was lost
// carries the same reference, so the backend must execute it at most once.
type Transferer interface {
	Transfer(ctx context.Context, to account.Address, amount uint64, reference string) error
}

// Payment is one outgoing payment made by the ledger.
type Payment struct {
	Account account.Address
	Amount  uint64
	// Pending is set when the transfer failed and Amount was queued as a
	// credit for Account instead.
	Pending bool
	// Reference is the transfer reference a pending payment is retried with.
	Reference string
}

// Distribution is the outcome of splitting a pot among ranked winners.
type Distribution struct {
	Winners        [3]account.Address
	Amounts        [3]uint64
	Pending        [3]bool
	References     [3]string
	PlatformCredit uint64
}

// Credit is an amount owed to an account whose transfer did not go through.
// Reference is the one the first attempt used.
type Credit struct {
	Amount    uint64 `json:"amount"`
	Reference string `json:"reference"`
}

type pot struct {
	entryFee uint64
	cap      uint64
	total    uint64
	order    []account.Address
	paid     map[account.Address]uint64
}

// Ledger owns every pot, the platform balance and pending credits.
type Ledger struct {
	mu       sync.Mutex
	oracle   BadgeOracle
	transfer Transferer
	weights  Weights
	pots     map[uint64]*pot
	platform uint64
	credits  map[account.Address][]Credit

	transferTimeout time.Duration
}

type Option func(*Ledger)

// WithWeights overrides the prize split.
func WithWeights(w Weights) Option {
	return func(l *Ledger) { l.weights = w }
}

// WithTransferTimeout bounds every single transfer attempt by d, so a long
// run of refunds or prizes does not share one deadline.
func WithTransferTimeout(d time.Duration) Option {
	return func(l *Ledger) { l.transferTimeout = d }
}

func New(oracle BadgeOracle, transfer Transferer, opts ...Option) (*Ledger, error) {
	l := &Ledger{
		oracle:   oracle,
		transfer: transfer,
		weights:  DefaultWeights,
		pots:     make(map[uint64]*pot),
		credits:  make(map[account.Address][]Credit),
	}
	for _, opt := range opts {
		opt(l)
	}
	if err := l.weights.Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// Weights returns the configured prize split.
func (l *Ledger) Weights() Weights { return l.weights }

// Open registers the fee terms of a new tournament with an empty pot.
func (l *Ledger) Open(id, entryFee, maxPlayers uint64) error {
	if maxPlayers == 0 {
		return errors.Wrap(errs.ErrInvalidParameters, "maxPlayers must be positive")
	}
	hi, capacity := bits.Mul64(entryFee, maxPlayers)
	if hi != 0 {
		return errors.Wrapf(errs.ErrInvalidParameters, "pot cap %d x %d overflows", entryFee, maxPlayers)
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.pots[id]; ok {
		return errors.Wrapf(errs.ErrDuplicate, "pot %d already open", id)
	}
	l.pots[id] = &pot{
		entryFee: entryFee,
		cap:      capacity,
		paid:     make(map[account.Address]uint64),
	}
	return nil
}

// QuoteEntryFee returns what player must pay to enter tournament id: the
// entry fee, or half of it rounded down for badge holders.
func (l *Ledger) QuoteEntryFee(ctx context.Context, id uint64, player account.Address) (uint64, error) {
	l.mu.Lock()
	p, ok := l.pots[id]
	var fee uint64
	if ok {
		fee = p.entryFee
	}
	l.mu.Unlock()
	if !ok {
		return 0, errors.Wrapf(errs.ErrNotFound, "tournament %d", id)
	}
	return l.quote(ctx, fee, player)
}

func (l *Ledger) quote(ctx context.Context, fee uint64, player account.Address) (uint64, error) {
	if l.oracle == nil {
		return fee, nil
	}
	holds, err := l.oracle.HasBadge(ctx, player)
	if err != nil {
		return 0, errors.Wrapf(errs.ErrOracleUnavailable, "badge lookup for %s: %v", player, err)
	}
	if holds {
		return fee / 2, nil
	}
	return fee, nil
}

// Collect records player's entry payment. amountPaid must equal the quote
// exactly. It returns the recorded contribution.
func (l *Ledger) Collect(ctx context.Context, id uint64, player account.Address, amountPaid uint64) (uint64, error) {
	l.mu.Lock()
	p, ok := l.pots[id]
	var fee uint64
	if ok {
		fee = p.entryFee
	}
	l.mu.Unlock()
	if !ok {
		return 0, errors.Wrapf(errs.ErrNotFound, "tournament %d", id)
	}

	due, err := l.quote(ctx, fee, player)
	if err != nil {
		return 0, err
	}
	if amountPaid != due {
		return 0, errors.Wrapf(errs.ErrInsufficientPayment, "paid %d, entry fee for %s is %d", amountPaid, player, due)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, dup := p.paid[player]; dup {
		return 0, errors.Wrapf(errs.ErrDuplicate, "%s already paid into tournament %d", player, id)
	}
	if p.total+amountPaid > p.cap || p.total+amountPaid < p.total {
		return 0, errors.Wrapf(errs.ErrInvalidState, "pot %d is at capacity", id)
	}
	p.total += amountPaid
	p.paid[player] = amountPaid
	p.order = append(p.order, player)
	metrics.Amount(metrics.Collected, amountPaid)
	return amountPaid, nil
}

// RefundAll pays every participant back exactly what they contributed and
// zeroes the pot. A contributor missing from participants is not skipped: the
// amount is queued as their pending credit and reported after the listed
// participants.
func (l *Ledger) RefundAll(ctx context.Context, id uint64, participants []account.Address) ([]Payment, error) {
	l.mu.Lock()
	p, ok := l.pots[id]
	if !ok {
		l.mu.Unlock()
		return nil, errors.Wrapf(errs.ErrNotFound, "tournament %d", id)
	}
	owed := make([]Payment, 0, len(participants))
	for _, who := range participants {
		amt := p.paid[who]
		delete(p.paid, who)
		p.total -= amt
		owed = append(owed, Payment{Account: who, Amount: amt})
	}
	listed := len(owed)
	for _, who := range p.order {
		amt, left := p.paid[who]
		if !left {
			continue
		}
		delete(p.paid, who)
		p.total -= amt
		ref := newReference("refund")
		l.credits[who] = append(l.credits[who], Credit{Amount: amt, Reference: ref})
		owed = append(owed, Payment{Account: who, Amount: amt, Pending: true, Reference: ref})
		metrics.CreditsQueued.Inc(1)
		log.Printf("[Escrow] tournament %d: %d owed to %s outside participant list, queued as credit", id, amt, who)
	}
	p.total = 0
	p.order = nil
	l.mu.Unlock()

	for i := range owed[:listed] {
		if owed[i].Amount == 0 {
			continue
		}
		ref := newReference("refund")
		if err := l.send(ctx, owed[i].Account, owed[i].Amount, ref); err != nil {
			owed[i].Pending = true
			owed[i].Reference = ref
			l.queueCredit(owed[i].Account, Credit{Amount: owed[i].Amount, Reference: ref})
			log.Printf("[Escrow] tournament %d: refund of %d to %s failed, queued as credit: %v", id, owed[i].Amount, owed[i].Account, err)
			continue
		}
		metrics.Amount(metrics.Refunded, owed[i].Amount)
	}
	return owed, nil
}

// Distribute splits the pot among winners by the configured weights and
// zeroes it. Slots holding account.NoWinner get nothing; their weight and the
// integer division remainder are credited to the platform balance.
func (l *Ledger) Distribute(ctx context.Context, id uint64, winners [3]account.Address) (Distribution, error) {
	d := Distribution{Winners: winners}
	for i := range winners {
		if winners[i].IsZero() {
			d.Winners[i] = account.NoWinner
			continue
		}
		for j := 0; j < i; j++ {
			if winners[j] == winners[i] {
				return d, errors.Wrapf(errs.ErrInvalidParameters, "%s ranked twice", winners[i])
			}
		}
	}

	l.mu.Lock()
	p, ok := l.pots[id]
	if !ok {
		l.mu.Unlock()
		return d, errors.Wrapf(errs.ErrNotFound, "tournament %d", id)
	}
	total := p.total
	var paid uint64
	for i := range d.Winners {
		if d.Winners[i] == account.NoWinner {
			continue
		}
		d.Amounts[i] = share(total, l.weights[i])
		paid += d.Amounts[i]
	}
	d.PlatformCredit = total - paid
	l.platform += d.PlatformCredit
	p.total = 0
	p.paid = make(map[account.Address]uint64)
	p.order = nil
	l.mu.Unlock()
	metrics.Amount(metrics.PlatformCredited, d.PlatformCredit)

	for i := range d.Winners {
		if d.Amounts[i] == 0 {
			continue
		}
		ref := newReference("prize")
		if err := l.send(ctx, d.Winners[i], d.Amounts[i], ref); err != nil {
			d.Pending[i] = true
			d.References[i] = ref
			l.queueCredit(d.Winners[i], Credit{Amount: d.Amounts[i], Reference: ref})
			log.Printf("[Escrow] tournament %d: prize of %d to %s failed, queued as credit: %v", id, d.Amounts[i], d.Winners[i], err)
			continue
		}
		metrics.Amount(metrics.Distributed, d.Amounts[i])
	}
	return d, nil
}

// WithdrawPlatformBalance sends the whole platform balance to to. On transfer
// failure the balance is restored and ErrTransferFailure returned.
func (l *Ledger) WithdrawPlatformBalance(ctx context.Context, to account.Address) (uint64, error) {
	if to.IsZero() {
		return 0, errors.Wrap(errs.ErrInvalidParameters, "withdraw to zero address")
	}
	l.mu.Lock()
	amt := l.platform
	l.platform = 0
	l.mu.Unlock()
	if amt == 0 {
		return 0, nil
	}
	if err := l.send(ctx, to, amt, newReference("withdraw")); err != nil {
		l.mu.Lock()
		l.platform += amt
		l.mu.Unlock()
		return 0, errors.Wrapf(errs.ErrTransferFailure, "withdraw %d to %s: %v", amt, to, err)
	}
	metrics.Amount(metrics.PlatformWithdrawn, amt)
	return amt, nil
}

// ReleaseCredit retries every pending credit of who, oldest first, each under
// the reference of its original attempt. It stops at the first failure,
// keeps that credit and the ones after it, and returns ErrTransferFailure
// together with whatever was released before.
func (l *Ledger) ReleaseCredit(ctx context.Context, who account.Address) ([]Credit, error) {
	l.mu.Lock()
	owed := l.credits[who]
	delete(l.credits, who)
	l.mu.Unlock()
	if len(owed) == 0 {
		return nil, errors.Wrapf(errs.ErrNotFound, "no pending credit for %s", who)
	}
	released := make([]Credit, 0, len(owed))
	for i, c := range owed {
		if err := l.send(ctx, who, c.Amount, c.Reference); err != nil {
			l.mu.Lock()
			l.credits[who] = append(append([]Credit{}, owed[i:]...), l.credits[who]...)
			l.mu.Unlock()
			return released, errors.Wrapf(errs.ErrTransferFailure, "release %d to %s: %v", c.Amount, who, err)
		}
		released = append(released, c)
	}
	return released, nil
}

// RestorePot reopens tournament id with the contributions it held, in join
// order. It is used when rebuilding the ledger from the event stream.
func (l *Ledger) RestorePot(id, entryFee, maxPlayers uint64, contributions []Payment) error {
	if err := l.Open(id, entryFee, maxPlayers); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	p := l.pots[id]
	for _, c := range contributions {
		if _, dup := p.paid[c.Account]; dup {
			return errors.Wrapf(errs.ErrDuplicate, "%s paid into tournament %d twice", c.Account, id)
		}
		if p.total+c.Amount > p.cap || p.total+c.Amount < p.total {
			return errors.Wrapf(errs.ErrInvalidState, "restored pot %d exceeds its cap", id)
		}
		p.total += c.Amount
		p.paid[c.Account] = c.Amount
		p.order = append(p.order, c.Account)
	}
	return nil
}

// RestoreBalances replaces the platform balance and the pending credits.
func (l *Ledger) RestoreBalances(platform uint64, credits map[account.Address][]Credit) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.platform = platform
	l.credits = make(map[account.Address][]Credit, len(credits))
	for who, cs := range credits {
		if len(cs) > 0 {
			l.credits[who] = append([]Credit(nil), cs...)
		}
	}
}

func (l *Ledger) Pot(id uint64) (uint64, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.pots[id]
	if !ok {
		return 0, false
	}
	return p.total, true
}

// Contribution is what player currently has in tournament id's pot.
func (l *Ledger) Contribution(id uint64, player account.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p, ok := l.pots[id]; ok {
		return p.paid[player]
	}
	return 0
}

func (l *Ledger) PlatformBalance() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.platform
}

// PendingCredit is the total who is owed.
func (l *Ledger) PendingCredit(who account.Address) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return sum(l.credits[who])
}

// Credits returns who's outstanding credits, oldest first.
func (l *Ledger) Credits(who account.Address) []Credit {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Credit(nil), l.credits[who]...)
}

// PendingCredits returns the total owed to every account with a credit.
func (l *Ledger) PendingCredits() map[account.Address]uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make(map[account.Address]uint64, len(l.credits))
	for k, cs := range l.credits {
		out[k] = sum(cs)
	}
	return out
}

func sum(cs []Credit) uint64 {
	var total uint64
	for _, c := range cs {
		total += c.Amount
	}
	return total
}

func (l *Ledger) queueCredit(who account.Address, c Credit) {
	l.mu.Lock()
	l.credits[who] = append(l.credits[who], c)
	l.mu.Unlock()
	metrics.CreditsQueued.Inc(1)
}

func newReference(kind string) string {
	return kind + "-" + uuid.NewString()
}

func (l *Ledger) send(ctx context.Context, to account.Address, amt uint64, ref string) error {
	if l.transfer == nil {
		return errors.New("no transfer backend configured")
	}
	if l.transferTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.transferTimeout)
		defer cancel()
	}
	start := time.Now()
	defer metrics.Since(metrics.TransferLatency, start)
	if err := l.transfer.Transfer(ctx, to, amt, ref); err != nil {
		metrics.TransferFailures.Inc(1)
		return err
	}
	return nil
}
