// internal/network/constraint.go
package network

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

// ImpactType is the direction a constraint moves the score.
type ImpactType int

const (
	ImpactPenalty ImpactType = iota
	ImpactReward
	ImpactMixed
)

func (i ImpactType) String() string {
	switch i {
	case ImpactPenalty:
		return "penalty"
	case ImpactReward:
		return "reward"
	case ImpactMixed:
		return "impact"
	default:
		return "unknown"
	}
}

// ConstraintRef identifies a constraint by package and name.
type ConstraintRef struct {
	Package string
	Name    string
}

func (r ConstraintRef) String() string {
	if r.Package == "" {
		return r.Name
	}
	return r.Package + "/" + r.Name
}

// Constraint is one named, weighted rule bound to a scorer node.
type Constraint struct {
	ref           ConstraintRef
	index         int
	stream        *stream
	weight        score.Score
	impactType    ImpactType
	matchWeight   func(Facts) int64
	decimalWeight func(Facts) decimal.Decimal
	justify       func(Facts, score.Score) any
	indict        func(Facts) []any
}

// Ref returns the constraint's identity.
func (c *Constraint) Ref() ConstraintRef { return c.ref }

// Weight returns the signed weight applied per unit of match weight.
func (c *Constraint) Weight() score.Score { return c.weight }

// ImpactType returns whether the constraint penalizes, rewards or both.
func (c *Constraint) ImpactType() ImpactType { return c.impactType }

// DefaultJustification is recorded when a constraint has no JustifyWith.
type DefaultJustification struct {
	Facts []any
	Score score.Score
}

func (c *Constraint) justification(f Facts, s score.Score) any {
	if c.justify != nil {
		return c.justify(f, s)
	}
	return DefaultJustification{Facts: append([]any(nil), f...), Score: s}
}

func (c *Constraint) indictedObjects(f Facts) []any {
	if c.indict != nil {
		return c.indict(f)
	}
	return distinctFacts(f)
}

// distinctFacts drops repeated facts so a self-join does not indict twice.
func distinctFacts(f Facts) []any {
	out := make([]any, 0, len(f))
	for _, x := range f {
		dup := false
		for _, y := range out {
			if sameValue(x, y) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, x)
		}
	}
	return out
}

// ConstraintBuilder finishes a stream into a constraint.
type ConstraintBuilder struct {
	f             *Factory
	s             *stream
	weight        score.Score
	impactType    ImpactType
	pkg           string
	matchWeight   func(Facts) int64
	decimalWeight func(Facts) decimal.Decimal
	justify       func(Facts, score.Score) any
	indict        func(Facts) []any
}

// WithMatchWeight multiplies the weight by fn(facts) per match.
func (b *ConstraintBuilder) WithMatchWeight(fn func(Facts) int64) *ConstraintBuilder {
	b.matchWeight = fn
	b.decimalWeight = nil
	return b
}

// WithDecimalMatchWeight multiplies the weight by an exact decimal per match.
// Fixed-width score levels round the product down.
func (b *ConstraintBuilder) WithDecimalMatchWeight(fn func(Facts) decimal.Decimal) *ConstraintBuilder {
	b.decimalWeight = fn
	b.matchWeight = nil
	return b
}

// JustifyWith replaces the default justification (the matched facts).
func (b *ConstraintBuilder) JustifyWith(fn func(Facts, score.Score) any) *ConstraintBuilder {
	b.justify = fn
	return b
}

// IndictWith replaces the default indicted objects (the matched facts).
func (b *ConstraintBuilder) IndictWith(fn func(Facts) []any) *ConstraintBuilder {
	b.indict = fn
	return b
}

// InPackage sets the constraint package; defaults to the factory's package.
func (b *ConstraintBuilder) InPackage(pkg string) *ConstraintBuilder {
	b.pkg = pkg
	return b
}

// As registers the constraint under name. It returns nil if the factory has
// already recorded an error.
func (b *ConstraintBuilder) As(name string) *Constraint {
	f := b.f
	if f.err != nil || b.s == nil {
		return nil
	}
	ref := ConstraintRef{Package: b.pkg, Name: name}
	if name == "" {
		f.setErr(fmt.Errorf("%w: constraint without a name", types.ErrInvalidConstraint))
		return nil
	}
	if f.names[ref] {
		f.setErr(fmt.Errorf("%w: %s", types.ErrDuplicateConstraint, ref))
		return nil
	}
	if !b.weight.IsValid() || b.weight.Definition() != f.def {
		f.setErr(fmt.Errorf("%w: %s weight does not belong to the network's score definition", types.ErrInvalidConstraint, ref))
		return nil
	}
	weight := b.weight
	if b.impactType != ImpactMixed {
		if hasNegativeLevel(weight) {
			f.setErr(fmt.Errorf("%w: %s has negative weight %s; use Impact for signed weights",
				types.ErrInvalidConstraint, ref, weight))
			return nil
		}
		if b.impactType == ImpactPenalty {
			neg, err := weight.Negate()
			if err != nil {
				f.setErr(fmt.Errorf("%w: %s: %w", types.ErrInvalidConstraint, ref, err))
				return nil
			}
			weight = neg
		}
	}
	c := &Constraint{
		ref:           ref,
		index:         len(f.constraints),
		stream:        b.s,
		weight:        weight,
		impactType:    b.impactType,
		matchWeight:   b.matchWeight,
		decimalWeight: b.decimalWeight,
		justify:       b.justify,
		indict:        b.indict,
	}
	f.names[ref] = true
	f.constraints = append(f.constraints, c)
	b.s.constraints = append(b.s.constraints, c)
	return c
}

func hasNegativeLevel(s score.Score) bool {
	for i := 0; i < s.Definition().LevelCount(); i++ {
		if s.Decimal(i).Sign() < 0 {
			return true
		}
	}
	return false
}
