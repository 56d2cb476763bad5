package checkout

import (
	"fmt"
	"math/big"
	"strings"

	"rentdesk.org/internal/domain"
)

var hundred = big.NewInt(100)

// MinorUnits converts a decimal currency amount to the provider's integer
// minor unit (amount x 100), rounding half away from zero.
func MinorUnits(a domain.Amount) (int64, error) {
	s := strings.TrimSpace(string(a))
	if s == "" {
		return 0, fmt.Errorf("%w: empty amount", ErrInvalidAmount)
	}
	r, ok := new(big.Rat).SetString(s)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	r.Mul(r, new(big.Rat).SetInt(hundred))

	num, den := new(big.Int).Set(r.Num()), r.Denom()
	neg := num.Sign() < 0
	num.Abs(num)
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Lsh(rem, 1).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	if !q.IsInt64() {
		return 0, fmt.Errorf("%w: %q out of range", ErrInvalidAmount, s)
	}
	return q.Int64(), nil
}
