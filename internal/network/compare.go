// internal/network/compare.go
package network

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

/*
 * Natural ordering for comparison joiners and min/max style lookups.
 *
 * Numeric comparison handles int/uint/float mixing: two integers compare as
 * int64 so large IDs keep full precision, anything involving a float falls
 * back to float64. Strings compare lexically, time.Time chronologically,
 * decimal.Decimal exactly. Values implementing Ordered compare themselves.
 *
 * Incomparable pairs panic: a comparison joiner over unordered keys is a
 * constraint-definition error and surfaces to the caller unchanged.
 */

// Ordered lets domain types supply their own natural ordering.
type Ordered interface {
	CompareTo(other any) int
}

// CompareNatural returns -1, 0 or 1 ordering a before, equal to or after b.
func CompareNatural(a, b any) int {
	if ia, ok := toInt64(a); ok {
		if ib, ok := toInt64(b); ok {
			return cmp3(ia < ib, ia > ib)
		}
	}
	if fa, fb, ok := asNumbers(a, b); ok {
		return cmp3(fa < fb, fa > fb)
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y)
		}
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Compare(y)
		}
	case decimal.Decimal:
		if y, ok := b.(decimal.Decimal); ok {
			return x.Cmp(y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			return cmp3(!x && y, x && !y)
		}
	case Ordered:
		return x.CompareTo(b)
	}
	panic(fmt.Sprintf("network: cannot order %T against %T", a, b))
}

func cmp3(less, greater bool) int {
	switch {
	case less:
		return -1
	case greater:
		return 1
	default:
		return 0
	}
}

// asNumbers converts both values to float64 when both are numeric.
func asNumbers(a, b any) (float64, float64, bool) {
	na, oka := toFloat64(a)
	nb, okb := toFloat64(b)
	return na, nb, oka && okb
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	default:
		return 0, false
	}
}

func toFloat64(v any) (float64, bool) {
	if n, ok := toInt64(v); ok {
		return float64(n), true
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint64:
		return float64(n), true
	default:
		return 0, false
	}
}
