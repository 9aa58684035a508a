package escrow

import (
	"math/bits"

	"github.com/pkg/errors"

	"tournament-escrow/errs"
)

// BasisPoints is the denominator of a prize weight.
const BasisPoints = 10000

// Weights is the prize split for first, second and third place in basis
// points. The three weights must add up to BasisPoints.
type Weights [3]uint64

// DefaultWeights pays 60% / 25% / 15%.
var DefaultWeights = Weights{6000, 2500, 1500}

func (w Weights) Validate() error {
	var sum uint64
	for _, v := range w {
		if v > BasisPoints {
			return errors.Wrapf(errs.ErrInvalidParameters, "weight %d exceeds %d", v, BasisPoints)
		}
		sum += v
	}
	if sum != BasisPoints {
		return errors.Wrapf(errs.ErrInvalidParameters, "weights %v add up to %d, want %d", w, sum, BasisPoints)
	}
	return nil
}

// share is floor(total * weight / BasisPoints) without overflowing.
func share(total, weight uint64) uint64 {
	hi, lo := bits.Mul64(total, weight)
	q, _ := bits.Div64(hi, lo, BasisPoints)
	return q
}
