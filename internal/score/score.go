// internal/score/score.go
package score

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Score values.
 *
 * A Score is an immutable vector of level values bound to one Definition.
 * Fixed-width levels live in n, decimal levels in d (allocated only when the
 * definition has a decimal level). Every arithmetic method returns a fresh
 * Score and ErrScoreOverflow when a fixed-width level leaves its range.
 *
 * String format: levels joined by "/", each written as value followed by the
 * level name, e.g. "-4hard/-3soft". Simple scores have no suffix ("-7").
 */

// Score is an immutable multi-level score.
type Score struct {
	def *Definition
	n   []int64
	d   []decimal.Decimal
}

// Definition returns the layout this score belongs to.
func (s Score) Definition() *Definition { return s.def }

// IsValid reports whether s was produced by a Definition.
func (s Score) IsValid() bool { return s.def != nil }

// Int64 returns level i as int64. Decimal levels are floored.
func (s Score) Int64(i int) int64 {
	if s.def.levels[i].Kind == KindDecimal {
		n, _ := decimalToInt64(s.d[i])
		return n
	}
	return s.n[i]
}

// Decimal returns level i as an exact decimal.
func (s Score) Decimal(i int) decimal.Decimal {
	if s.def.levels[i].Kind == KindDecimal {
		return s.d[i]
	}
	return decimal.NewFromInt(s.n[i])
}

// Add returns s+o.
func (s Score) Add(o Score) (Score, error) {
	return s.combine(o, AddInt64, decimal.Decimal.Add, "add")
}

// Subtract returns s-o.
func (s Score) Subtract(o Score) (Score, error) {
	return s.combine(o, SubInt64, decimal.Decimal.Sub, "subtract")
}

func (s Score) combine(o Score, op func(a, b int64) (int64, bool),
	dop func(a, b decimal.Decimal) decimal.Decimal, name string) (Score, error) {
	if s.def != o.def {
		return Score{}, fmt.Errorf("%w: cannot %s %s and %s", types.ErrScoreMismatch, name, s, o)
	}
	r := s.def.Zero()
	for i, l := range s.def.levels {
		if l.Kind == KindDecimal {
			r.d[i] = dop(s.d[i], o.d[i])
			continue
		}
		v, ok := op(s.n[i], o.n[i])
		if !ok || !fits(l.Kind, v) {
			return Score{}, fmt.Errorf("%w: %s level %q of %s and %s",
				types.ErrScoreOverflow, name, l.Name, s, o)
		}
		r.n[i] = v
	}
	return r, nil
}

// Negate returns -s.
func (s Score) Negate() (Score, error) {
	return s.Multiply(-1)
}

// Multiply returns s*k.
func (s Score) Multiply(k int64) (Score, error) {
	r := s.def.Zero()
	for i, l := range s.def.levels {
		if l.Kind == KindDecimal {
			r.d[i] = s.d[i].Mul(decimal.NewFromInt(k))
			continue
		}
		v, ok := mulInt64(s.n[i], k)
		if !ok || !fits(l.Kind, v) {
			return Score{}, fmt.Errorf("%w: multiply level %q of %s by %d",
				types.ErrScoreOverflow, l.Name, s, k)
		}
		r.n[i] = v
	}
	return r, nil
}

// MultiplyDecimal returns s*k. Fixed-width levels are floored.
func (s Score) MultiplyDecimal(k decimal.Decimal) (Score, error) {
	r := s.def.Zero()
	for i, l := range s.def.levels {
		if l.Kind == KindDecimal {
			r.d[i] = s.d[i].Mul(k)
			continue
		}
		v, ok := decimalToInt64(decimal.NewFromInt(s.n[i]).Mul(k))
		if !ok || !fits(l.Kind, v) {
			return Score{}, fmt.Errorf("%w: multiply level %q of %s by %s",
				types.ErrScoreOverflow, l.Name, s, k)
		}
		r.n[i] = v
	}
	return r, nil
}

// Compare orders scores lexicographically, most significant level first.
// Scores of different definitions compare by level values as decimals.
func (s Score) Compare(o Score) int {
	for i, l := range s.def.levels {
		var c int
		if l.Kind == KindDecimal || (o.def != nil && i < len(o.def.levels) && o.def.levels[i].Kind == KindDecimal) {
			c = s.Decimal(i).Cmp(o.Decimal(i))
		} else {
			switch {
			case s.n[i] < o.n[i]:
				c = -1
			case s.n[i] > o.n[i]:
				c = 1
			}
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// Equal reports level-wise equality under the same definition.
func (s Score) Equal(o Score) bool {
	return s.def == o.def && s.Compare(o) == 0
}

// IsZero reports whether every level is zero.
func (s Score) IsZero() bool {
	for i, l := range s.def.levels {
		if l.Kind == KindDecimal {
			if !s.d[i].IsZero() {
				return false
			}
		} else if s.n[i] != 0 {
			return false
		}
	}
	return true
}

// IsFeasible reports whether no hard level is negative.
func (s Score) IsFeasible() bool {
	for i, l := range s.def.levels {
		if l.Hard && s.Decimal(i).Sign() < 0 {
			return false
		}
	}
	return true
}

func (s Score) String() string {
	if s.def == nil {
		return "<nil score>"
	}
	var b strings.Builder
	for i, l := range s.def.levels {
		if i > 0 {
			b.WriteByte('/')
		}
		if l.Kind == KindDecimal {
			b.WriteString(s.d[i].String())
		} else {
			fmt.Fprintf(&b, "%d", s.n[i])
		}
		b.WriteString(l.Name)
	}
	return b.String()
}

// Parse reads a score written by String.
func (d *Definition) Parse(text string) (Score, error) {
	parts := strings.Split(strings.TrimSpace(text), "/")
	if len(parts) != len(d.levels) {
		return Score{}, fmt.Errorf("%w: %q has %d levels, want %d",
			types.ErrInvalidScore, text, len(parts), len(d.levels))
	}
	values := make([]decimal.Decimal, len(parts))
	for i, part := range parts {
		l := d.levels[i]
		if !strings.HasSuffix(part, l.Name) {
			return Score{}, fmt.Errorf("%w: %q level %d must end with %q",
				types.ErrInvalidScore, text, i, l.Name)
		}
		v, err := decimal.NewFromString(strings.TrimSuffix(part, l.Name))
		if err != nil {
			return Score{}, fmt.Errorf("%w: %q level %q: %v", types.ErrInvalidScore, text, l.Name, err)
		}
		values[i] = v
	}
	return d.OfDecimal(values...)
}
