// Package account defines participant identities.
package account

import (
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"

	"tournament-escrow/errs"
)

// Address identifies a caller, player or payout recipient.
type Address string

// NoWinner fills ranking slots that no scored player occupies.
var NoWinner = Address(common.Address{}.Hex())

// Parse validates a hex account address and returns its checksummed form.
func Parse(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if !common.IsHexAddress(s) {
		return "", errors.Wrapf(errs.ErrInvalidParameters, "malformed address %q", s)
	}
	a := Address(common.HexToAddress(s).Hex())
	if a == NoWinner {
		return "", errors.Wrap(errs.ErrInvalidParameters, "zero address")
	}
	return a, nil
}

// IsZero reports whether a is empty or the zero address.
func (a Address) IsZero() bool {
	return a == "" || a == NoWinner
}

func (a Address) String() string { return string(a) }
