package services

import (
	"github.com/gofiber/fiber/v2"

	"tournament-escrow/access"
)

// AccessService exposes role management to the gateway.
type AccessService struct {
	Control *access.Control
}

func NewAccessService(ac *access.Control) *AccessService {
	return &AccessService{Control: ac}
}

type roleAccountRequest struct {
	Account string `json:"account"`
}

func (s *AccessService) GrantRole(c *fiber.Ctx) error {
	var req roleAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	acct, err := parseAddress(req.Account)
	if err != nil {
		return fail(c, err)
	}
	role := access.Role(c.Params("role"))
	if err := s.Control.Grant(callerOf(c), role, acct); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"role": role, "account": acct, "has_role": true})
}

func (s *AccessService) RevokeRole(c *fiber.Ctx) error {
	var req roleAccountRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	acct, err := parseAddress(req.Account)
	if err != nil {
		return fail(c, err)
	}
	role := access.Role(c.Params("role"))
	if err := s.Control.Revoke(callerOf(c), role, acct); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"role": role, "account": acct, "has_role": false})
}

type renounceRequest struct {
	Confirmation string `json:"confirmation"`
}

func (s *AccessService) RenounceRole(c *fiber.Ctx) error {
	var req renounceRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	confirmation, err := parseAddress(req.Confirmation)
	if err != nil {
		return fail(c, err)
	}
	caller := callerOf(c)
	role := access.Role(c.Params("role"))
	if err := s.Control.Renounce(caller, role, confirmation); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"role": role, "account": caller, "has_role": false})
}

func (s *AccessService) HasRole(c *fiber.Ctx) error {
	acct, err := parseAddress(c.Params("account"))
	if err != nil {
		return fail(c, err)
	}
	role := access.Role(c.Params("role"))
	return c.JSON(fiber.Map{"role": role, "account": acct, "has_role": s.Control.HasRole(role, acct)})
}

func (s *AccessService) AdminOf(c *fiber.Ctx) error {
	role := access.Role(c.Params("role"))
	return c.JSON(fiber.Map{"role": role, "admin_role": s.Control.AdminOf(role)})
}

type setRoleAdminRequest struct {
	AdminRole string `json:"admin_role"`
}

func (s *AccessService) SetRoleAdmin(c *fiber.Ctx) error {
	var req setRoleAdminRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	role := access.Role(c.Params("role"))
	if err := s.Control.SetRoleAdmin(callerOf(c), role, access.Role(req.AdminRole)); err != nil {
		return fail(c, err)
	}
	return c.JSON(fiber.Map{"role": role, "admin_role": s.Control.AdminOf(role)})
}
