// Package access is the role registry that gates every mutating operation.
//
// Each role has an admin role whose holders may grant and revoke it. The
// administrator role administers itself and is the default admin of every
// role that has not been assigned one. Holding a role never implies another.
package access

import (
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/pkg/errors"

	"tournament-escrow/account"
	"tournament-escrow/errs"
	"tournament-escrow/events"
)

// Role is a role tag.
type Role string

const (
	AdminRole   Role = "DEFAULT_ADMIN_ROLE"
	ManagerRole Role = "MANAGER_ROLE"
)

// UnauthorizedError reports the account and the role it was missing.
type UnauthorizedError struct {
	Account    account.Address
	NeededRole Role
}

func (e *UnauthorizedError) Error() string {
	return fmt.Sprintf("account %s is missing role %s", e.Account, e.NeededRole)
}

func (e *UnauthorizedError) Is(target error) bool {
	return target == errs.ErrUnauthorized
}

// Control owns role membership.
type Control struct {
	mu      sync.RWMutex
	members map[Role]map[account.Address]struct{}
	admins  map[Role]Role
	sink    events.Sink
	clock   clockwork.Clock
}

// New returns a registry in which admin holds the administrator role.
func New(admin account.Address, sink events.Sink, clock clockwork.Clock) *Control {
	return Restore(admin, sink, clock, nil)
}

// Restore rebuilds role membership and role admins from a stored event
// stream, in Seq order and without emitting, then grants admin the
// administrator role if it does not hold it already.
func Restore(admin account.Address, sink events.Sink, clock clockwork.Clock, history []events.Event) *Control {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	c := &Control{
		members: make(map[Role]map[account.Address]struct{}),
		admins:  make(map[Role]Role),
		sink:    sink,
		clock:   clock,
	}
	ordered := make([]events.Event, len(history))
	copy(ordered, history)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Seq < ordered[j].Seq })

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range ordered {
		switch p := ev.Payload.(type) {
		case events.RoleGranted:
			set, ok := c.members[Role(p.Role)]
			if !ok {
				set = make(map[account.Address]struct{})
				c.members[Role(p.Role)] = set
			}
			set[p.Account] = struct{}{}
		case events.RoleRevoked:
			delete(c.members[Role(p.Role)], p.Account)
		case events.RoleAdminChanged:
			c.admins[Role(p.Role)] = Role(p.NewAdminRole)
		}
	}
	c.grantLocked(AdminRole, admin, admin)
	return c
}

// Bootstrap grants role to account on behalf of the deploying admin. It is
// meant for process start-up only; it skips the caller check.
func (c *Control) Bootstrap(role Role, acct, sender account.Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grantLocked(role, acct, sender)
}

func (c *Control) HasRole(role Role, acct account.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hasLocked(role, acct)
}

func (c *Control) AdminOf(role Role) Role {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.adminOfLocked(role)
}

// Require returns an *UnauthorizedError unless acct holds role.
func (c *Control) Require(role Role, acct account.Address) error {
	if c.HasRole(role, acct) {
		return nil
	}
	return &UnauthorizedError{Account: acct, NeededRole: role}
}

// Grant gives role to acct. Granting a held role is a no-op.
func (c *Control) Grant(caller account.Address, role Role, acct account.Address) error {
	if acct.IsZero() {
		return errors.Wrap(errs.ErrInvalidParameters, "grant to zero address")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(caller, role); err != nil {
		return err
	}
	c.grantLocked(role, acct, caller)
	return nil
}

// Revoke removes role from acct. Revoking a role that is not held is a no-op.
func (c *Control) Revoke(caller account.Address, role Role, acct account.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(caller, role); err != nil {
		return err
	}
	c.revokeLocked(role, acct, caller)
	return nil
}

// Renounce drops the caller's own role. confirmation must repeat the
// caller's address.
func (c *Control) Renounce(caller account.Address, role Role, confirmation account.Address) error {
	if confirmation != caller {
		return errors.Wrapf(errs.ErrConfirmationMismatch, "confirmation %s does not match caller %s", confirmation, caller)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revokeLocked(role, caller, caller)
	return nil
}

// SetRoleAdmin makes adminRole the admin of role. The caller must hold the
// role's current admin role.
func (c *Control) SetRoleAdmin(caller account.Address, role, adminRole Role) error {
	if role == "" || adminRole == "" {
		return errors.Wrap(errs.ErrInvalidParameters, "empty role")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireAdminLocked(caller, role); err != nil {
		return err
	}
	prev := c.adminOfLocked(role)
	if prev == adminRole {
		return nil
	}
	c.admins[role] = adminRole
	c.emit(events.TypeRoleAdminChanged, events.RoleAdminChanged{
		Role:              string(role),
		PreviousAdminRole: string(prev),
		NewAdminRole:      string(adminRole),
	})
	return nil
}

// Members lists the accounts holding role, in no particular order.
func (c *Control) Members(role Role) []account.Address {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]account.Address, 0, len(c.members[role]))
	for a := range c.members[role] {
		out = append(out, a)
	}
	return out
}

func (c *Control) requireAdminLocked(caller account.Address, role Role) error {
	admin := c.adminOfLocked(role)
	if !c.hasLocked(admin, caller) {
		return &UnauthorizedError{Account: caller, NeededRole: admin}
	}
	return nil
}

func (c *Control) adminOfLocked(role Role) Role {
	if admin, ok := c.admins[role]; ok {
		return admin
	}
	return AdminRole
}

func (c *Control) hasLocked(role Role, acct account.Address) bool {
	_, ok := c.members[role][acct]
	return ok
}

func (c *Control) grantLocked(role Role, acct, sender account.Address) {
	if c.hasLocked(role, acct) {
		return
	}
	set, ok := c.members[role]
	if !ok {
		set = make(map[account.Address]struct{})
		c.members[role] = set
	}
	set[acct] = struct{}{}
	log.Printf("[Access] %s granted %s to %s", sender, role, acct)
	c.emit(events.TypeRoleGranted, events.RoleGranted{Role: string(role), Account: acct, Sender: sender})
}

func (c *Control) revokeLocked(role Role, acct, sender account.Address) {
	if !c.hasLocked(role, acct) {
		return
	}
	delete(c.members[role], acct)
	log.Printf("[Access] %s revoked %s from %s", sender, role, acct)
	c.emit(events.TypeRoleRevoked, events.RoleRevoked{Role: string(role), Account: acct, Sender: sender})
}

func (c *Control) emit(t events.Type, payload any) {
	if c.sink == nil {
		return
	}
	c.sink.Emit(events.Event{Type: t, OccurredAt: c.now(), Payload: payload})
}

func (c *Control) now() time.Time {
	return c.clock.Now().UTC()
}
