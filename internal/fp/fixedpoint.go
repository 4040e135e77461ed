package fp

import (
	"fmt"
	"math/big"
)

// FracBits is the number of fractional bits in a Fixed value.
// The full value occupies 128 bits: 80 integer bits, 48 fractional bits.
const FracBits = 48

var (
	scaleInt   = new(big.Int).Lsh(big.NewInt(1), FracBits)
	scaleHalf  = new(big.Int).Lsh(big.NewInt(1), FracBits-1)
	scaleFloat = new(big.Float).SetInt(scaleInt)
	decScale   = big.NewInt(1_000_000_000_000)
	maxRaw     = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 127), big.NewInt(1))
	minRaw     = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(1), 127))
)

// Fixed is a signed binary fixed-point number used for all monetary
// quantities. The raw value is the real value scaled by 2^48. Arithmetic is
// exact (big.Int backed) and therefore never wraps; range against the 128-bit
// persisted layout is enforced by CheckRange and by the record encoder.
//
// The zero value is 0.
type Fixed struct {
	raw *big.Int
}

// Zero is the Fixed zero value.
var Zero = Fixed{}

func (f Fixed) bigRaw() *big.Int {
	if f.raw == nil {
		return new(big.Int)
	}
	return f.raw
}

// FromInt64 converts an integer to Fixed.
func FromInt64(v int64) Fixed {
	raw := new(big.Int).Lsh(big.NewInt(v), FracBits)
	if v < 0 {
		raw = new(big.Int).Neg(new(big.Int).Lsh(big.NewInt(-v), FracBits))
	}
	return Fixed{raw: raw}
}

// FromMicros converts a decimal value scaled by 1e6, the wire scale used by
// upstream producers, to Fixed.
func FromMicros(v int64) Fixed {
	return FromInt64(v).DivInt(1_000_000)
}

// FromRaw builds a Fixed directly from a 2^48-scaled raw value.
func FromRaw(raw *big.Int) Fixed {
	return Fixed{raw: new(big.Int).Set(raw)}
}

// FromFloat64 converts a float to Fixed. Intended for oracle prices and test
// fixtures, not for ledger bookkeeping.
func FromFloat64(v float64) Fixed {
	scaled := new(big.Float).Mul(big.NewFloat(v), scaleFloat)
	raw, _ := scaled.Int(nil)
	return Fixed{raw: raw}
}

// Raw returns a copy of the 2^48-scaled raw value.
func (f Fixed) Raw() *big.Int {
	return new(big.Int).Set(f.bigRaw())
}

// Add returns f + g.
func (f Fixed) Add(g Fixed) Fixed {
	return Fixed{raw: new(big.Int).Add(f.bigRaw(), g.bigRaw())}
}

// Sub returns f - g.
func (f Fixed) Sub(g Fixed) Fixed {
	return Fixed{raw: new(big.Int).Sub(f.bigRaw(), g.bigRaw())}
}

// Mul returns f * g, truncated toward zero to 48 fractional bits.
func (f Fixed) Mul(g Fixed) Fixed {
	prod := new(big.Int).Mul(f.bigRaw(), g.bigRaw())
	return Fixed{raw: prod.Quo(prod, scaleInt)}
}

// MulInt returns f * v for an integer v.
func (f Fixed) MulInt(v int64) Fixed {
	return Fixed{raw: new(big.Int).Mul(f.bigRaw(), big.NewInt(v))}
}

// Div returns f / g, truncated toward zero.
func (f Fixed) Div(g Fixed) Fixed {
	if g.IsZero() {
		panic("fp: division by zero")
	}
	num := new(big.Int).Mul(f.bigRaw(), scaleInt)
	return Fixed{raw: num.Quo(num, g.bigRaw())}
}

// DivInt returns f / v for an integer v, truncated toward zero.
func (f Fixed) DivInt(v int64) Fixed {
	if v == 0 {
		panic("fp: division by zero")
	}
	return Fixed{raw: new(big.Int).Quo(f.bigRaw(), big.NewInt(v))}
}

// Neg returns -f.
func (f Fixed) Neg() Fixed {
	return Fixed{raw: new(big.Int).Neg(f.bigRaw())}
}

// Abs returns |f|.
func (f Fixed) Abs() Fixed {
	return Fixed{raw: new(big.Int).Abs(f.bigRaw())}
}

// Cmp compares f and g: -1 if f < g, 0 if equal, +1 if f > g.
func (f Fixed) Cmp(g Fixed) int {
	return f.bigRaw().Cmp(g.bigRaw())
}

// Sign returns -1, 0, or +1.
func (f Fixed) Sign() int {
	return f.bigRaw().Sign()
}

// IsZero reports whether f == 0.
func (f Fixed) IsZero() bool {
	return f.bigRaw().Sign() == 0
}

// IsPositive reports whether f > 0.
func (f Fixed) IsPositive() bool {
	return f.bigRaw().Sign() > 0
}

// IsNegative reports whether f < 0.
func (f Fixed) IsNegative() bool {
	return f.bigRaw().Sign() < 0
}

// Min returns the smaller of f and g.
func Min(f, g Fixed) Fixed {
	if f.Cmp(g) <= 0 {
		return f
	}
	return g
}

// Max returns the larger of f and g.
func Max(f, g Fixed) Fixed {
	if f.Cmp(g) >= 0 {
		return f
	}
	return g
}

// Int64 returns the integer part, truncated toward zero.
func (f Fixed) Int64() int64 {
	q := new(big.Int).Quo(f.bigRaw(), scaleInt)
	return q.Int64()
}

// Floor returns the largest integer <= f.
func (f Fixed) Floor() int64 {
	q, r := new(big.Int).QuoRem(f.bigRaw(), scaleInt, new(big.Int))
	if r.Sign() < 0 {
		q.Sub(q, big.NewInt(1))
	}
	return q.Int64()
}

// Ceil returns the smallest integer >= f.
func (f Fixed) Ceil() int64 {
	q, r := new(big.Int).QuoRem(f.bigRaw(), scaleInt, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Int64()
}

// Float64 returns the closest float64. Lossy; for logging and metrics only.
func (f Fixed) Float64() float64 {
	v, _ := new(big.Float).Quo(new(big.Float).SetInt(f.bigRaw()), scaleFloat).Float64()
	return v
}

// Equal reports whether f == g.
func (f Fixed) Equal(g Fixed) bool {
	return f.Cmp(g) == 0
}

func (f Fixed) String() string {
	return fmt.Sprintf("%.12g", f.Float64())
}

// DecimalString renders the value as a decimal with 12 fractional digits,
// the last digit rounded half away from zero. Used at storage and wire
// boundaries where the lossy String form is not acceptable. Rounding keeps
// micro-scaled wire values intact: FromMicros truncates just below the true
// value, and a truncating renderer would drop them one ulp short.
func (f Fixed) DecimalString() string {
	raw := f.bigRaw()
	sign := ""
	abs := new(big.Int).Abs(raw)
	if raw.Sign() < 0 {
		sign = "-"
	}

	intPart, fracPart := new(big.Int).QuoRem(abs, scaleInt, new(big.Int))
	// round(frac * 10^12 / 2^48), carrying into the integer part when the
	// fraction rounds up to 1.
	fracDec := new(big.Int).Mul(fracPart, decScale)
	fracDec.Add(fracDec, scaleHalf)
	fracDec.Quo(fracDec, scaleInt)
	if fracDec.Cmp(decScale) == 0 {
		intPart.Add(intPart, big.NewInt(1))
		fracDec.SetInt64(0)
	}

	return fmt.Sprintf("%s%s.%012s", sign, intPart.String(), fracDec.String())
}

// CheckRange verifies the value fits the 128-bit persisted layout.
func (f Fixed) CheckRange() error {
	raw := f.bigRaw()
	if raw.Cmp(maxRaw) > 0 || raw.Cmp(minRaw) < 0 {
		return fmt.Errorf("fixed-point value out of 128-bit range: %s", f)
	}
	return nil
}
