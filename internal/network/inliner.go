// internal/network/inliner.go
package network

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Score inliner.
 *
 * Holds the running total and, depending on the match policy, per-constraint
 * totals and live matches. Every applied impact returns an *impact token that
 * remembers the exact delta it added; undo subtracts that delta, never a
 * recomputed one.
 *
 * Policies are fixed for the life of a network:
 *   MatchDisabled   running total only
 *   MatchScoreOnly  plus per-constraint totals and match counts
 *   MatchFull       plus live matches with justification and indicted objects
 */

// MatchPolicy selects how much match information a network records.
type MatchPolicy int

const (
	MatchDisabled MatchPolicy = iota
	MatchScoreOnly
	MatchFull
)

func (p MatchPolicy) String() string {
	switch p {
	case MatchDisabled:
		return "disabled"
	case MatchScoreOnly:
		return "score_only"
	case MatchFull:
		return "full"
	default:
		return "unknown"
	}
}

// ParseMatchPolicy converts a configuration string into a MatchPolicy.
func ParseMatchPolicy(s string) (MatchPolicy, error) {
	switch s {
	case "disabled", "":
		return MatchDisabled, nil
	case "score_only", "score-only":
		return MatchScoreOnly, nil
	case "full":
		return MatchFull, nil
	default:
		return 0, fmt.Errorf("unknown match policy %q (expected disabled, score_only or full)", s)
	}
}

// Match is one live constraint match.
type Match struct {
	Constraint    ConstraintRef
	Score         score.Score
	Justification any
	Indicted      []any
}

type constraintTotal struct {
	c       *Constraint
	acc     *score.Accumulator
	count   int
	matches elementList[*Match]
}

type indictmentTotal struct {
	object  any
	acc     *score.Accumulator
	count   int
	matches elementList[*Match]
	elem    *element[*indictmentTotal]
}

type indictmentLink struct {
	total *indictmentTotal
	elem  *element[*Match]
}

// impact is the undo token of one scored tuple.
type impact struct {
	total    *constraintTotal
	delta    score.Score
	match    *element[*Match]
	indicted []indictmentLink
	undone   bool
}

type inliner struct {
	def         *score.Definition
	policy      MatchPolicy
	acc         *score.Accumulator
	totals      []*constraintTotal
	indictments map[any]*indictmentTotal
	indictOrder elementList[*indictmentTotal]
}

func newInliner(def *score.Definition, policy MatchPolicy, constraints []*Constraint) *inliner {
	in := &inliner{def: def, policy: policy, acc: score.NewAccumulator(def)}
	if policy >= MatchScoreOnly {
		in.totals = make([]*constraintTotal, len(constraints))
		for i, c := range constraints {
			in.totals[i] = &constraintTotal{c: c, acc: score.NewAccumulator(def)}
		}
	}
	if policy == MatchFull {
		in.indictments = make(map[any]*indictmentTotal)
	}
	return in
}

// delta computes weight * matchWeight for one tuple.
func (in *inliner) delta(c *Constraint, f Facts) (score.Score, error) {
	switch {
	case c.decimalWeight != nil:
		w := c.decimalWeight(f)
		if c.impactType != ImpactMixed && w.Sign() < 0 {
			panic(fmt.Sprintf("constraint %s: negative match weight %s for %s", c.ref, w, c.impactType))
		}
		if w.Equal(decimal.NewFromInt(1)) {
			return c.weight, nil
		}
		return c.weight.MultiplyDecimal(w)
	case c.matchWeight != nil:
		w := c.matchWeight(f)
		if c.impactType != ImpactMixed && w < 0 {
			panic(fmt.Sprintf("constraint %s: negative match weight %d for %s", c.ref, w, c.impactType))
		}
		if w == 1 {
			return c.weight, nil
		}
		return c.weight.Multiply(w)
	default:
		return c.weight, nil
	}
}

func (in *inliner) apply(c *Constraint, f Facts) (*impact, error) {
	d, err := in.delta(c, f)
	if err != nil {
		return nil, err
	}
	if err := in.acc.Add(d); err != nil {
		return nil, err
	}
	imp := &impact{delta: d}
	if in.policy == MatchDisabled {
		return imp, nil
	}
	ct := in.totals[c.index]
	imp.total = ct
	if err := ct.acc.Add(d); err != nil {
		return nil, err
	}
	ct.count++
	if in.policy != MatchFull {
		return imp, nil
	}
	m := &Match{Constraint: c.ref, Score: d}
	m.Justification = c.justification(f, d)
	m.Indicted = c.indictedObjects(f)
	imp.match = ct.matches.add(m)
	for _, obj := range m.Indicted {
		it, ok := in.indictments[obj]
		if !ok {
			it = &indictmentTotal{object: obj, acc: score.NewAccumulator(in.def)}
			it.elem = in.indictOrder.add(it)
			in.indictments[obj] = it
		}
		if err := it.acc.Add(d); err != nil {
			return nil, err
		}
		it.count++
		imp.indicted = append(imp.indicted, indictmentLink{total: it, elem: it.matches.add(m)})
	}
	return imp, nil
}

func (in *inliner) undo(imp *impact) error {
	if imp.undone {
		return fmt.Errorf("%w: score impact undone twice", types.ErrImpossibleState)
	}
	imp.undone = true
	if err := in.acc.Subtract(imp.delta); err != nil {
		return err
	}
	if imp.total == nil {
		return nil
	}
	if err := imp.total.acc.Subtract(imp.delta); err != nil {
		return err
	}
	imp.total.count--
	if imp.match != nil && !imp.total.matches.remove(imp.match) {
		return fmt.Errorf("%w: match missing from constraint %s", types.ErrImpossibleState, imp.total.c.ref)
	}
	for _, link := range imp.indicted {
		it := link.total
		if err := it.acc.Subtract(imp.delta); err != nil {
			return err
		}
		it.count--
		if !it.matches.remove(link.elem) {
			return fmt.Errorf("%w: match missing from indictment of %v", types.ErrImpossibleState, it.object)
		}
		if it.count == 0 {
			in.indictOrder.remove(it.elem)
			delete(in.indictments, it.object)
		}
	}
	return nil
}
