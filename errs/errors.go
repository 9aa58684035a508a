// Package errs holds the rejection kinds shared by the engine components.
// Callers match on them with errors.Is; every rejection leaves state untouched.
package errs

import "github.com/pkg/errors"

var (
	ErrUnauthorized         = errors.New("unauthorized")
	ErrInvalidState         = errors.New("invalid state")
	ErrInvalidParameters    = errors.New("invalid parameters")
	ErrInsufficientPayment  = errors.New("insufficient payment")
	ErrDuplicate            = errors.New("duplicate")
	ErrNotFound             = errors.New("not found")
	ErrTransferFailure      = errors.New("transfer failure")
	ErrConfirmationMismatch = errors.New("confirmation mismatch")
	ErrOracleUnavailable    = errors.New("badge oracle unavailable")
)

// Kind returns the sentinel err wraps, or nil when it wraps none of them.
func Kind(err error) error {
	for _, k := range []error{
		ErrUnauthorized,
		ErrInvalidState,
		ErrInvalidParameters,
		ErrInsufficientPayment,
		ErrDuplicate,
		ErrNotFound,
		ErrTransferFailure,
		ErrConfirmationMismatch,
		ErrOracleUnavailable,
	} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
