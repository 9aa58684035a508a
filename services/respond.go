package services

import (
	"context"
	"math/big"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"tournament-escrow/account"
	"tournament-escrow/errs"
)

// CallerKey is the fiber local holding the authenticated account.Address.
const CallerKey = "caller"

func callerOf(c *fiber.Ctx) account.Address {
	a, _ := c.Locals(CallerKey).(account.Address)
	return a
}

// StatusOf maps an engine rejection to an HTTP status.
func StatusOf(err error) int {
	switch errs.Kind(err) {
	case errs.ErrUnauthorized:
		return fiber.StatusForbidden
	case errs.ErrInvalidState, errs.ErrDuplicate:
		return fiber.StatusConflict
	case errs.ErrInvalidParameters, errs.ErrConfirmationMismatch:
		return fiber.StatusBadRequest
	case errs.ErrInsufficientPayment:
		return fiber.StatusPaymentRequired
	case errs.ErrNotFound:
		return fiber.StatusNotFound
	case errs.ErrTransferFailure:
		return fiber.StatusBadGateway
	case errs.ErrOracleUnavailable:
		return fiber.StatusServiceUnavailable
	}
	return fiber.StatusInternalServerError
}

func fail(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}
	if kind := errs.Kind(err); kind != nil {
		body["kind"] = kind.Error()
	}
	return c.Status(StatusOf(err)).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": msg})
}

// ParseAmount reads a whole, non-negative number of minor units.
func ParseAmount(d decimal.Decimal) (uint64, error) {
	if d.Sign() < 0 {
		return 0, errors.Wrap(errs.ErrInvalidParameters, "amount must not be negative")
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, errors.Wrapf(errs.ErrInvalidParameters, "amount %s is not a whole number of minor units", d)
	}
	v, err := strconv.ParseUint(d.String(), 10, 64)
	if err != nil {
		return 0, errors.Wrapf(errs.ErrInvalidParameters, "amount %s is out of range", d)
	}
	return v, nil
}

// FormatAmount renders minor units exactly, as a string.
func FormatAmount(v uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(v), 0).String()
}

func parseID(c *fiber.Ctx) (uint64, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.Wrapf(errs.ErrInvalidParameters, "invalid tournament id %q", c.Params("id"))
	}
	return id, nil
}

func parseAddress(raw string) (account.Address, error) {
	return account.Parse(raw)
}

func withTimeout(c *fiber.Ctx, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		d = 10 * time.Second
	}
	return context.WithTimeout(c.UserContext(), d)
}
