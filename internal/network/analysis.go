// internal/network/analysis.go
package network

import (
	"fmt"
	"sort"
	"strings"

	"github.com/solatis/scorekeeper/internal/score"
)

// ConstraintMatchTotal is one constraint's share of the score.
type ConstraintMatchTotal struct {
	Constraint ConstraintRef
	ImpactType ImpactType
	Weight     score.Score
	Score      score.Score
	Count      int
	Matches    []Match
}

// Indictment is the share of the score an object is implicated in.
type Indictment struct {
	Object  any
	Score   score.Score
	Count   int
	Matches []Match
}

// Analysis breaks the score down per constraint.
type Analysis struct {
	Score       score.Score
	Constraints []ConstraintMatchTotal
}

// ConstraintMatchTotals returns per-constraint totals in declaration order.
// Requires MatchScoreOnly or MatchFull; matches are filled under MatchFull.
func (n *Network) ConstraintMatchTotals() ([]ConstraintMatchTotal, error) {
	if err := n.requirePolicy(MatchScoreOnly); err != nil {
		return nil, err
	}
	out := make([]ConstraintMatchTotal, len(n.inliner.totals))
	for i, ct := range n.inliner.totals {
		out[i] = ConstraintMatchTotal{
			Constraint: ct.c.ref,
			ImpactType: ct.c.impactType,
			Weight:     ct.c.weight,
			Score:      ct.acc.Snapshot(),
			Count:      ct.count,
		}
		if n.opts.Policy == MatchFull {
			out[i].Matches = collectMatches(&ct.matches)
		}
	}
	return out, nil
}

// Indictments returns every currently indicted object, in first-indicted order.
// Requires MatchFull.
func (n *Network) Indictments() ([]Indictment, error) {
	if err := n.requirePolicy(MatchFull); err != nil {
		return nil, err
	}
	out := make([]Indictment, 0, len(n.inliner.indictments))
	n.inliner.indictOrder.forEach(func(it *indictmentTotal) {
		out = append(out, Indictment{
			Object:  it.object,
			Score:   it.acc.Snapshot(),
			Count:   it.count,
			Matches: collectMatches(&it.matches),
		})
	})
	return out, nil
}

// Analyze returns the score and its per-constraint breakdown.
func (n *Network) Analyze() (Analysis, error) {
	totals, err := n.ConstraintMatchTotals()
	if err != nil {
		return Analysis{}, err
	}
	return Analysis{Score: n.inliner.acc.Snapshot(), Constraints: totals}, nil
}

// Constraint looks up one constraint's total.
func (a Analysis) Constraint(ref ConstraintRef) (ConstraintMatchTotal, bool) {
	for _, ct := range a.Constraints {
		if ct.Constraint == ref {
			return ct, true
		}
	}
	return ConstraintMatchTotal{}, false
}

// Diff describes constraints whose score or match count differ from expected.
func (a Analysis) Diff(expected Analysis) string {
	var lines []string
	seen := make(map[ConstraintRef]bool)
	for _, want := range expected.Constraints {
		seen[want.Constraint] = true
		got, ok := a.Constraint(want.Constraint)
		if !ok {
			lines = append(lines, fmt.Sprintf("  %s: missing, expected %s (%d matches)",
				want.Constraint, want.Score, want.Count))
			continue
		}
		if !got.Score.Equal(want.Score) || got.Count != want.Count {
			lines = append(lines, fmt.Sprintf("  %s: got %s (%d matches), expected %s (%d matches)",
				want.Constraint, got.Score, got.Count, want.Score, want.Count))
		}
	}
	for _, got := range a.Constraints {
		if !seen[got.Constraint] {
			lines = append(lines, fmt.Sprintf("  %s: unexpected, got %s (%d matches)",
				got.Constraint, got.Score, got.Count))
		}
	}
	if len(lines) == 0 {
		return "constraint totals agree"
	}
	return "constraint totals differ:\n" + strings.Join(lines, "\n")
}

// Summary lists constraints by impact, heaviest first.
func (a Analysis) Summary() string {
	cts := append([]ConstraintMatchTotal(nil), a.Constraints...)
	sort.SliceStable(cts, func(i, j int) bool {
		return cts[i].Score.Compare(cts[j].Score) < 0
	})
	var b strings.Builder
	fmt.Fprintf(&b, "score %s\n", a.Score)
	for _, ct := range cts {
		fmt.Fprintf(&b, "  %-40s %12s  %d matches\n", ct.Constraint, ct.Score, ct.Count)
	}
	return b.String()
}
