// internal/score/accumulator.go
package score

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/types"
)

// Accumulator is a mutable running total. It avoids allocating a Score per
// impact on the hot path; Snapshot copies the current value out.
type Accumulator struct {
	def *Definition
	n   []int64
	d   []decimal.Decimal
}

// NewAccumulator returns a zeroed accumulator for def.
func NewAccumulator(def *Definition) *Accumulator {
	z := def.Zero()
	return &Accumulator{def: def, n: z.n, d: z.d}
}

// Add adds delta in place. On overflow the accumulator is left unchanged.
func (a *Accumulator) Add(delta Score) error {
	return a.apply(delta, AddInt64, decimal.Decimal.Add)
}

// Subtract subtracts delta in place. On overflow the accumulator is left unchanged.
func (a *Accumulator) Subtract(delta Score) error {
	return a.apply(delta, SubInt64, decimal.Decimal.Sub)
}

func (a *Accumulator) apply(delta Score, op func(x, y int64) (int64, bool),
	dop func(x, y decimal.Decimal) decimal.Decimal) error {
	if delta.def != a.def {
		return fmt.Errorf("%w: accumulator %s, delta %s", types.ErrScoreMismatch, a.def.name, delta)
	}
	for i, l := range a.def.levels {
		if l.Kind == KindDecimal {
			continue
		}
		v, ok := op(a.n[i], delta.n[i])
		if !ok || !fits(l.Kind, v) {
			return fmt.Errorf("%w: level %q of running total %s with %s",
				types.ErrScoreOverflow, l.Name, a.Snapshot(), delta)
		}
	}
	for i, l := range a.def.levels {
		if l.Kind == KindDecimal {
			a.d[i] = dop(a.d[i], delta.d[i])
			continue
		}
		a.n[i], _ = op(a.n[i], delta.n[i])
	}
	return nil
}

// Snapshot returns the current total as an immutable Score.
func (a *Accumulator) Snapshot() Score {
	s := Score{def: a.def, n: append([]int64(nil), a.n...)}
	if a.d != nil {
		s.d = append([]decimal.Decimal(nil), a.d...)
	}
	return s
}
