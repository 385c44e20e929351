// internal/score/number.go
package score

import (
	"math"

	"github.com/shopspring/decimal"
)

/*
 * Checked level arithmetic.
 *
 * Fixed-width levels are stored as int64 regardless of kind; KindInt values
 * are additionally bounded to the int32 range after every operation so an
 * int-scored network overflows exactly where a 32-bit accumulator would.
 *
 * Decimal levels never overflow. Multiplying a fixed-width level by a decimal
 * rounds toward negative infinity before the range check.
 */

// Kind selects the numeric representation of one score level.
type Kind int

const (
	KindInt Kind = iota
	KindLong
	KindDecimal
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindLong:
		return "long"
	case KindDecimal:
		return "decimal"
	default:
		return "unknown"
	}
}

// AddInt64 returns a+b and false on overflow.
func AddInt64(a, b int64) (int64, bool) {
	r := a + b
	if (a > 0 && b > 0 && r < 0) || (a < 0 && b < 0 && r >= 0) {
		return 0, false
	}
	return r, true
}

// SubInt64 returns a-b and false on overflow.
func SubInt64(a, b int64) (int64, bool) {
	if b == math.MinInt64 {
		if a >= 0 {
			return 0, false
		}
		return a - b, true
	}
	return AddInt64(a, -b)
}

// mulInt64 returns a*b and false on overflow.
func mulInt64(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	if (a == -1 && b == math.MinInt64) || (b == -1 && a == math.MinInt64) {
		return 0, false
	}
	r := a * b
	if r/b != a {
		return 0, false
	}
	return r, true
}

// fits reports whether v is representable by kind.
func fits(kind Kind, v int64) bool {
	if kind == KindInt {
		return v >= math.MinInt32 && v <= math.MaxInt32
	}
	return true
}

var (
	maxInt64Dec = decimal.NewFromInt(math.MaxInt64)
	minInt64Dec = decimal.NewFromInt(math.MinInt64)
)

// decimalToInt64 floors d and converts it, reporting false when out of range.
func decimalToInt64(d decimal.Decimal) (int64, bool) {
	f := d.Floor()
	if f.Cmp(maxInt64Dec) > 0 || f.Cmp(minInt64Dec) < 0 {
		return 0, false
	}
	return f.IntPart(), true
}
