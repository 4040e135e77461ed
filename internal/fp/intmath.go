package fp

import (
	"errors"
	"math/big"
)

// ErrOverflow is returned by the checked int64 helpers when a result does not
// fit in 64 bits. Ledger bookkeeping must abort on overflow, never wrap.
var ErrOverflow = errors.New("int64 overflow")

const (
	maxInt64 = int64(^uint64(0) >> 1)
	minInt64 = -maxInt64 - 1
)

// AddI64 returns a + b or ErrOverflow.
func AddI64(a, b int64) (int64, error) {
	s := a + b
	if (a > 0 && b > 0 && s < 0) || (a < 0 && b < 0 && s >= 0) {
		return 0, ErrOverflow
	}
	return s, nil
}

// SubI64 returns a - b or ErrOverflow.
func SubI64(a, b int64) (int64, error) {
	d := a - b
	if (b < 0 && d < a) || (b > 0 && d > a) {
		return 0, ErrOverflow
	}
	return d, nil
}

// MulI64 returns a * b or ErrOverflow.
func MulI64(a, b int64) (int64, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	if (a == minInt64 && b == -1) || (b == minInt64 && a == -1) {
		return 0, ErrOverflow
	}
	p := a * b
	if p/b != a {
		return 0, ErrOverflow
	}
	return p, nil
}

// RoundedDiv returns round(a*b/c) with ties rounded away from zero. The
// intermediate product is widened so a*b cannot overflow. Used for the
// blended entry price when a trade crosses through flat.
func RoundedDiv(a, b, c int64) (int64, error) {
	if c == 0 {
		return 0, errors.New("division by zero")
	}
	num := new(big.Int).Mul(big.NewInt(a), big.NewInt(b))
	den := big.NewInt(c)

	q, r := new(big.Int).QuoRem(num, den, new(big.Int))

	// Round half away from zero: |r|*2 >= |c| bumps the quotient.
	r.Abs(r).Lsh(r, 1)
	absDen := new(big.Int).Abs(den)
	if r.Cmp(absDen) >= 0 {
		if (num.Sign() < 0) != (den.Sign() < 0) {
			q.Sub(q, big.NewInt(1))
		} else {
			q.Add(q, big.NewInt(1))
		}
	}

	if !q.IsInt64() {
		return 0, ErrOverflow
	}
	return q.Int64(), nil
}
