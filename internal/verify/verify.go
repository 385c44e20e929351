// Package verify checks constraint definitions against hand-picked facts.
package verify

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
	"github.com/stretchr/testify/assert"
)

/*
 * Constraint verification.
 *
 * Workflow:
 *   1. New(def, provider) once per provider
 *   2. That(ref).Given(facts...) builds a fresh network with full match
 *      recording and assert mode, inserts the facts and scores once
 *   3. Assertion methods compare the selected constraint's outcome and
 *      return an error wrapping types.ErrVerificationFailed on mismatch
 *
 * Match weight total is the constraint's score divided by its weight
 * magnitude on the first level the weight touches. A penalty of 3 matches
 * each weighing 2 has a match weight total of 6, whatever the weight is.
 *
 * For Impact constraints the sign of the total decides between penalty and
 * reward. Penalize and Reward constraints must match the asserted direction
 * even when they have no matches.
 */

// Verifier evaluates constraints of one provider.
type Verifier struct {
	def      *score.Definition
	provider network.ConstraintProvider
}

// New returns a verifier for provider scored with def.
func New(def *score.Definition, provider network.ConstraintProvider) *Verifier {
	return &Verifier{def: def, provider: provider}
}

// Selection is a constraint (or all constraints) awaiting facts.
type Selection struct {
	v   *Verifier
	ref *network.ConstraintRef
}

// That selects a single constraint.
func (v *Verifier) That(ref network.ConstraintRef) Selection {
	return Selection{v: v, ref: &ref}
}

// ThatNamed selects a constraint without a package.
func (v *Verifier) ThatNamed(name string) Selection {
	return v.That(network.ConstraintRef{Name: name})
}

// All selects every constraint; only Scores is meaningful on it.
func (v *Verifier) All() Selection {
	return Selection{v: v}
}

// Assertion holds the evaluated outcome for the given facts.
type Assertion struct {
	ref   *network.ConstraintRef
	err   error
	score score.Score
	total network.ConstraintMatchTotal
}

// Given evaluates the selection over facts.
func (s Selection) Given(facts ...any) *Assertion {
	a := &Assertion{ref: s.ref}
	n, err := network.Build(s.v.def, s.v.provider, network.Options{Policy: network.MatchFull, Assert: true})
	if err != nil {
		a.err = err
		return a
	}
	for _, f := range facts {
		if err := n.InsertFact(f); err != nil {
			a.err = err
			return a
		}
	}
	if a.score, err = n.Score(); err != nil {
		a.err = err
		return a
	}
	if s.ref == nil {
		return a
	}
	analysis, err := n.Analyze()
	if err != nil {
		a.err = err
		return a
	}
	ct, ok := analysis.Constraint(*s.ref)
	if !ok {
		a.err = fmt.Errorf("%w: %s (zero-weight constraints are not built)", types.ErrConstraintNotFound, s.ref)
		return a
	}
	a.total = ct
	return a
}

func (a *Assertion) ready() error {
	if a.err != nil {
		return a.err
	}
	if a.ref == nil {
		return fmt.Errorf("%w: no constraint selected", types.ErrConstraintNotFound)
	}
	return nil
}

func (a *Assertion) failf(format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", types.ErrVerificationFailed, a.ref, fmt.Sprintf(format, args...))
}

// MatchWeightTotal returns the signed sum of match weights: negative for
// penalties, positive for rewards.
func (a *Assertion) MatchWeightTotal() (decimal.Decimal, error) {
	if err := a.ready(); err != nil {
		return decimal.Decimal{}, err
	}
	w := a.total.Weight
	for i := 0; i < w.Definition().LevelCount(); i++ {
		wi := w.Decimal(i)
		if wi.IsZero() {
			continue
		}
		return a.total.Score.Decimal(i).Div(wi.Abs()), nil
	}
	return decimal.Decimal{}, nil
}

func (a *Assertion) checkDirection(penalty bool) error {
	switch a.total.ImpactType {
	case network.ImpactPenalty:
		if !penalty {
			return a.failf("expected reward, constraint penalizes")
		}
	case network.ImpactReward:
		if penalty {
			return a.failf("expected penalty, constraint rewards")
		}
	}
	return nil
}

func (a *Assertion) impactBy(penalty bool, want decimal.Decimal) error {
	if err := a.ready(); err != nil {
		return err
	}
	if want.Sign() < 0 {
		return fmt.Errorf("%w: match weight total %s must not be negative", types.ErrInvalidConstraint, want)
	}
	if err := a.checkDirection(penalty); err != nil {
		return err
	}
	got, err := a.MatchWeightTotal()
	if err != nil {
		return err
	}
	if penalty {
		got = got.Neg()
	}
	if !got.Equal(want) {
		kind := "reward"
		if penalty {
			kind = "penalty"
		}
		return a.failf("expected %s of %s, actual %s (score %s over %d matches)",
			kind, want, got, a.total.Score, a.total.Count)
	}
	return nil
}

// PenalizesBy expects the match weights to sum to a penalty of total.
func (a *Assertion) PenalizesBy(total int64) error {
	return a.impactBy(true, decimal.NewFromInt(total))
}

// PenalizesByDecimal is PenalizesBy for decimal match weights.
func (a *Assertion) PenalizesByDecimal(total decimal.Decimal) error {
	return a.impactBy(true, total)
}

// RewardsBy expects the match weights to sum to a reward of total.
func (a *Assertion) RewardsBy(total int64) error {
	return a.impactBy(false, decimal.NewFromInt(total))
}

// RewardsByDecimal is RewardsBy for decimal match weights.
func (a *Assertion) RewardsByDecimal(total decimal.Decimal) error {
	return a.impactBy(false, total)
}

// countMatches counts matches in the asserted direction. Penalize and Reward
// constraints count every match.
func (a *Assertion) countMatches(penalty bool) int {
	if a.total.ImpactType != network.ImpactMixed {
		return a.total.Count
	}
	zero := a.total.Weight.Definition().Zero()
	n := 0
	for _, m := range a.total.Matches {
		c := m.Score.Compare(zero)
		if (penalty && c < 0) || (!penalty && c > 0) {
			n++
		}
	}
	return n
}

func (a *Assertion) times(penalty bool, want int) error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.checkDirection(penalty); err != nil {
		return err
	}
	if got := a.countMatches(penalty); got != want {
		return a.failf("expected %d matches, actual %d (score %s)", want, got, a.total.Score)
	}
	return nil
}

// Penalizes expects exactly n penalizing matches.
func (a *Assertion) Penalizes(n int) error { return a.times(true, n) }

// Rewards expects exactly n rewarding matches.
func (a *Assertion) Rewards(n int) error { return a.times(false, n) }

// PenalizesAny expects at least one penalizing match.
func (a *Assertion) PenalizesAny() error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.checkDirection(true); err != nil {
		return err
	}
	if a.countMatches(true) == 0 {
		return a.failf("expected a penalty, none found")
	}
	return nil
}

// RewardsAny expects at least one rewarding match.
func (a *Assertion) RewardsAny() error {
	if err := a.ready(); err != nil {
		return err
	}
	if err := a.checkDirection(false); err != nil {
		return err
	}
	if a.countMatches(false) == 0 {
		return a.failf("expected a reward, none found")
	}
	return nil
}

// HasNoImpact expects no matches at all.
func (a *Assertion) HasNoImpact() error {
	if err := a.ready(); err != nil {
		return err
	}
	if a.total.Count != 0 {
		return a.failf("expected no impact, actual %s over %d matches", a.total.Score, a.total.Count)
	}
	return nil
}

// JustifiesWith expects every given justification among the matches.
func (a *Assertion) JustifiesWith(justifications ...any) error {
	if err := a.ready(); err != nil {
		return err
	}
	for _, want := range justifications {
		found := false
		for _, m := range a.total.Matches {
			if assert.ObjectsAreEqual(want, m.Justification) {
				found = true
				break
			}
		}
		if !found {
			return a.failf("justification %v not found", want)
		}
	}
	return nil
}

// IndictsWith expects every given object to be indicted by some match.
func (a *Assertion) IndictsWith(objects ...any) error {
	if err := a.ready(); err != nil {
		return err
	}
	for _, want := range objects {
		found := false
		for _, m := range a.total.Matches {
			for _, obj := range m.Indicted {
				if assert.ObjectsAreEqual(want, obj) {
					found = true
				}
			}
		}
		if !found {
			return a.failf("object %v not indicted", want)
		}
	}
	return nil
}

// Scores expects the total over every constraint to equal want.
func (a *Assertion) Scores(want score.Score) error {
	if a.err != nil {
		return a.err
	}
	if !a.score.Equal(want) {
		return fmt.Errorf("%w: expected score %s, actual %s", types.ErrVerificationFailed, want, a.score)
	}
	return nil
}
