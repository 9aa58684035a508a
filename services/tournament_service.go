package services

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"tournament-escrow/errs"
	"tournament-escrow/events"
	"tournament-escrow/models"
	"tournament-escrow/registry"
)

// HistoryReader serves tournaments created by an earlier process.
type HistoryReader interface {
	Tournament(ctx context.Context, id uint64) (models.Tournament, error)
	TournamentHistory(ctx context.Context, id uint64) (*events.History, error)
}

// TournamentService exposes the registry to the gateway.
type TournamentService struct {
	Registry *registry.Registry
	History  HistoryReader // optional
	Timeout  time.Duration
}

func NewTournamentService(reg *registry.Registry, history HistoryReader, timeout time.Duration) *TournamentService {
	return &TournamentService{Registry: reg, History: history, Timeout: timeout}
}

type createTournamentRequest struct {
	EntryFee      decimal.Decimal `json:"entry_fee"`
	MaxPlayers    uint64          `json:"max_players"`
	StartTime     time.Time       `json:"start_time"`
	LobbyDeadline time.Time       `json:"lobby_deadline"`
	GameType      string          `json:"game_type"`
}

func (s *TournamentService) CreateTournament(c *fiber.Ctx) error {
	var req createTournamentRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	fee, err := ParseAmount(req.EntryFee)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()

	id, err := s.Registry.Create(ctx, callerOf(c), registry.Params{
		EntryFee:      fee,
		MaxPlayers:    req.MaxPlayers,
		StartTime:     req.StartTime,
		LobbyDeadline: req.LobbyDeadline,
		GameType:      req.GameType,
	})
	if err != nil {
		return fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"tournament_id": id})
}

type joinRequest struct {
	Payment decimal.Decimal `json:"payment"`
}

func (s *TournamentService) JoinTournament(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	var req joinRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	payment, err := ParseAmount(req.Payment)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()

	if err := s.Registry.Join(ctx, callerOf(c), id, payment); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tournament_id": id, "paid": FormatAmount(payment)})
}

type submitScoreRequest struct {
	Player string `json:"player"`
	Score  uint64 `json:"score"`
}

func (s *TournamentService) SubmitScore(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	var req submitScoreRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	player, err := parseAddress(req.Player)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()

	if err := s.Registry.SubmitScore(ctx, callerOf(c), id, player, req.Score); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tournament_id": id, "player": player, "score": req.Score})
}

func (s *TournamentService) CompleteTournament(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	// each payout is bounded by the ledger's transfer timeout
	d, err := s.Registry.Complete(c.UserContext(), callerOf(c), id)
	if err != nil {
		return fail(c, err)
	}
	rewards := make([]string, len(d.Amounts))
	for i, a := range d.Amounts {
		rewards[i] = FormatAmount(a)
	}
	return c.JSON(fiber.Map{
		"tournament_id":   id,
		"winners":         d.Winners,
		"rewards":         rewards,
		"pending":         d.Pending,
		"platform_credit": FormatAmount(d.PlatformCredit),
	})
}

func (s *TournamentService) CancelTournament(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	refunds, err := s.Registry.Cancel(c.UserContext(), callerOf(c), id)
	if err != nil {
		return fail(c, err)
	}
	out := make([]fiber.Map, 0, len(refunds))
	for _, r := range refunds {
		out = append(out, fiber.Map{"account": r.Account, "amount": FormatAmount(r.Amount), "pending": r.Pending})
	}
	return c.JSON(fiber.Map{"tournament_id": id, "refunds": out})
}

func (s *TournamentService) GetTournamentDetails(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	snap, err := s.Registry.Details(id)
	if err == nil {
		return c.JSON(snap)
	}
	if !errors.Is(err, errs.ErrNotFound) || s.History == nil {
		return fail(c, err)
	}

	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()
	t, herr := s.History.Tournament(ctx, id)
	if errors.Is(herr, gorm.ErrRecordNotFound) {
		return fail(c, err)
	}
	if herr != nil {
		log.Printf("[Tournament] history lookup for %d failed: %v", id, herr)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to load tournament history"})
	}
	return c.JSON(t)
}

// GetTournamentHistory rebuilds a tournament from its stored events.
func (s *TournamentService) GetTournamentHistory(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	if s.History == nil {
		return fail(c, errors.Wrap(errs.ErrNotFound, "event history is not stored"))
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()
	h, err := s.History.TournamentHistory(ctx, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fail(c, errors.Wrapf(errs.ErrNotFound, "no stored events for tournament %d", id))
	}
	if err != nil {
		log.Printf("[Tournament] replay of %d failed: %v", id, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "failed to replay tournament"})
	}
	return c.JSON(h)
}

func (s *TournamentService) ListTournaments(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"count":       s.Registry.Count(),
		"tournaments": s.Registry.List(),
	})
}

func (s *TournamentService) GetPlayerScore(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	player, err := parseAddress(c.Params("player"))
	if err != nil {
		return fail(c, err)
	}
	score, err := s.Registry.PlayerScore(id, player)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tournament_id": id, "player": player, "score": score})
}

// QuoteEntryFee quotes the caller, or ?player= when given.
func (s *TournamentService) QuoteEntryFee(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return fail(c, err)
	}
	player := callerOf(c)
	if raw := c.Query("player"); raw != "" {
		if player, err = parseAddress(raw); err != nil {
			return fail(c, err)
		}
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()

	fee, err := s.Registry.QuoteEntryFee(ctx, id, player)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"tournament_id": id, "player": player, "entry_fee": FormatAmount(fee)})
}

type withdrawRequest struct {
	To string `json:"to"`
}

func (s *TournamentService) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	to, err := parseAddress(req.To)
	if err != nil {
		return fail(c, err)
	}
	ctx, cancel := withTimeout(c, s.Timeout)
	defer cancel()

	amt, err := s.Registry.Withdraw(ctx, callerOf(c), to)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"to": to, "amount": FormatAmount(amt)})
}

func (s *TournamentService) PlatformBalance(c *fiber.Ctx) error {
	w := s.Registry.Weights()
	return c.JSON(fiber.Map{
		"balance":   FormatAmount(s.Registry.PlatformBalance()),
		"split_bps": w,
	})
}

func (s *TournamentService) PendingCredit(c *fiber.Ctx) error {
	who, err := parseAddress(c.Params("account"))
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"account": who, "amount": FormatAmount(s.Registry.PendingCredit(who))})
}

func (s *TournamentService) ReleaseCredit(c *fiber.Ctx) error {
	who, err := parseAddress(c.Params("account"))
	if err != nil {
		return fail(c, err)
	}
	amt, err := s.Registry.ReleaseCredit(c.UserContext(), callerOf(c), who)
	if err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"account": who, "amount": FormatAmount(amt)})
}
