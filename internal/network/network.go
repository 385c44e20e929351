// internal/network/network.go
package network

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"

	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Network: the ingress/egress boundary.
 *
 * InsertFact/UpdateFact/RetractFact route a fact by its dynamic type to the
 * matching ForEach sources and propagate synchronously. Facts of types no
 * constraint streams are ignored. Facts are identified by ==, so mutable
 * domain objects should be passed as pointers.
 *
 * UpdateFact leaves precomputed streams as they are and only re-propagates
 * their tuples holding the fact; RefreshFact re-evaluates those as well.
 *
 * Failure handling:
 *   - consistency errors and score overflow are recovered here, returned as
 *     errors wrapping types.ErrImpossibleState / types.ErrScoreOverflow, and
 *     poison the network: every later call returns types.ErrNetworkCorrupted
 *   - panics from user closures are not recovered
 *
 * There is no "recalculate everything" entry point; a fresh score over the
 * same facts requires a fresh network. Assert mode does exactly that on
 * every Score call and compares.
 */

// Stats describes a built network.
type Stats struct {
	Nodes         int
	Streams       int
	SharedStreams int
	Constraints   int
	LiveFacts     int
}

// Network is a compiled, live constraint network. Not safe for concurrent use.
type Network struct {
	id          types.NetworkID
	def         *score.Definition
	provider    ConstraintProvider
	opts        Options
	log         *slog.Logger
	constraints []*Constraint
	sources     []*sourceNode
	precomputes []*precomputeNode
	routes      map[reflect.Type][]*sourceNode
	inliner     *inliner
	live        elementList[any]
	liveIndex   map[any]*element[any]
	corrupted   error
	stats       Stats
}

func (n *Network) init() {
	n.routes = make(map[reflect.Type][]*sourceNode)
	if n.opts.Assert {
		n.liveIndex = make(map[any]*element[any])
	}
}

// ID returns the network's UUIDv7 identifier.
func (n *Network) ID() types.NetworkID { return n.id }

// Definition returns the score definition.
func (n *Network) Definition() *score.Definition { return n.def }

// Policy returns the match policy chosen at build time.
func (n *Network) Policy() MatchPolicy { return n.opts.Policy }

// Constraints lists the constraints with non-zero weight, in declaration order.
func (n *Network) Constraints() []ConstraintRef {
	refs := make([]ConstraintRef, len(n.constraints))
	for i, c := range n.constraints {
		refs[i] = c.ref
	}
	return refs
}

// Stats returns build statistics and the current number of live facts.
func (n *Network) Stats() Stats {
	s := n.stats
	for _, src := range n.sources {
		s.LiveFacts += src.size()
	}
	return s
}

// Corrupted returns the error that poisoned the network, or nil.
func (n *Network) Corrupted() error { return n.corrupted }

func (n *Network) route(fact any) []*sourceNode {
	t := reflect.TypeOf(fact)
	if r, ok := n.routes[t]; ok {
		return r
	}
	var r []*sourceNode
	for _, src := range n.sources {
		if src.accepts(t) {
			r = append(r, src)
		}
	}
	n.routes[t] = r
	return r
}

// guard converts a recovered consistency panic into an error and poisons the network.
func (n *Network) guard(op string, fact any, err *error) {
	r := recover()
	if r == nil {
		return
	}
	ce, ok := r.(*types.ConsistencyError)
	if !ok {
		panic(r)
	}
	n.corrupted = ce
	n.log.Error("network corrupted",
		"network_id", n.id,
		"op", op,
		"fact", fmt.Sprintf("%v", fact),
		"node", ce.Node,
		"tuple", ce.Tuple,
		"error", ce.Error())
	*err = fmt.Errorf("failed to %s fact %v: %w", op, fact, ce)
}

func (n *Network) check() error {
	if n.corrupted != nil {
		return fmt.Errorf("%w: %w", types.ErrNetworkCorrupted, n.corrupted)
	}
	return nil
}

// InsertFact adds a fact. Inserting a fact twice is a consistency error.
func (n *Network) InsertFact(fact any) (err error) {
	if err := n.check(); err != nil {
		return err
	}
	defer n.guard("insert", fact, &err)
	srcs := n.route(fact)
	for _, src := range srcs {
		if src.contains(fact) {
			src.failWith(types.ErrFactAlreadyInserted, nil, "insert of fact %v already inserted", fact)
		}
	}
	for _, src := range srcs {
		src.insert(fact)
	}
	if n.liveIndex != nil && len(srcs) > 0 {
		n.liveIndex[fact] = n.live.add(fact)
	}
	n.observe("insert")
	return nil
}

// UpdateFact re-evaluates everything derived from a fact after it changed in
// place, except precomputed streams: those keep their tuples and pass them on
// as updated.
func (n *Network) UpdateFact(fact any) (err error) {
	return n.updateFact("update", fact, false)
}

// RefreshFact is UpdateFact that also re-evaluates precomputed streams. Use it
// when a property read inside a precompute changed.
func (n *Network) RefreshFact(fact any) (err error) {
	return n.updateFact("refresh", fact, true)
}

func (n *Network) updateFact(op string, fact any, refresh bool) (err error) {
	if err := n.check(); err != nil {
		return err
	}
	defer n.guard(op, fact, &err)
	srcs := n.route(fact)
	for _, src := range srcs {
		if !src.contains(fact) {
			src.failWith(types.ErrFactNotInserted, nil, "%s of fact %v never inserted", op, fact)
		}
	}
	for _, src := range srcs {
		if refresh || !src.static {
			src.update(fact)
		}
	}
	if len(srcs) > 0 {
		for _, p := range n.precomputes {
			p.touch(fact)
		}
	}
	n.observe(op)
	return nil
}

// RetractFact removes a fact and everything derived from it.
func (n *Network) RetractFact(fact any) (err error) {
	if err := n.check(); err != nil {
		return err
	}
	defer n.guard("retract", fact, &err)
	srcs := n.route(fact)
	for _, src := range srcs {
		if !src.contains(fact) {
			src.failWith(types.ErrFactNotInserted, nil, "retract of fact %v never inserted", fact)
		}
	}
	for _, src := range srcs {
		src.retract(fact)
	}
	if n.liveIndex != nil {
		if e, ok := n.liveIndex[fact]; ok {
			n.live.remove(e)
			delete(n.liveIndex, fact)
		}
	}
	n.observe("retract")
	return nil
}

func (n *Network) observe(op string) {
	if n.opts.Observer != nil {
		n.opts.Observer.FactMutated(op)
	}
}

// Score returns the running total. In assert mode it is verified against a
// freshly built network over the same facts first.
func (n *Network) Score() (score.Score, error) {
	if err := n.check(); err != nil {
		return score.Score{}, err
	}
	s := n.inliner.acc.Snapshot()
	if n.opts.Observer != nil {
		n.opts.Observer.ScoreCalculated()
	}
	if n.opts.Assert {
		if err := n.assertScore(s); err != nil {
			return score.Score{}, err
		}
	}
	return s, nil
}

func (n *Network) assertScore(s score.Score) error {
	opts := Options{Policy: MatchScoreOnly, Logger: n.log}
	fresh, err := Build(n.def, n.provider, opts)
	if err != nil {
		return fmt.Errorf("failed to rebuild network for score assertion: %w", err)
	}
	var insertErr error
	n.live.forEach(func(fact any) {
		if insertErr == nil {
			insertErr = fresh.InsertFact(fact)
		}
	})
	if insertErr != nil {
		return fmt.Errorf("failed to replay facts for score assertion: %w", insertErr)
	}
	want, err := fresh.Score()
	if err != nil {
		return err
	}
	if want.Equal(s) {
		return nil
	}
	detail := ""
	if expected, err := fresh.Analyze(); err == nil {
		if actual, err := n.Analyze(); err == nil {
			detail = actual.Diff(expected)
		} else {
			detail = expected.Summary()
		}
	}
	n.corrupted = fmt.Errorf("%w: incremental score %s, recalculated %s\n%s",
		types.ErrScoreCorruption, s, want, detail)
	n.log.Error("score corruption", "network_id", n.id, "incremental", s.String(), "recalculated", want.String())
	return n.corrupted
}

func (n *Network) requirePolicy(p MatchPolicy) error {
	if err := n.check(); err != nil {
		return err
	}
	if n.opts.Policy < p {
		return fmt.Errorf("%w: policy %s, need %s", types.ErrMatchesDisabled, n.opts.Policy, p)
	}
	return nil
}

// ConstraintMatches returns the live matches per constraint. Requires MatchFull.
func (n *Network) ConstraintMatches() (map[ConstraintRef][]Match, error) {
	if err := n.requirePolicy(MatchFull); err != nil {
		return nil, err
	}
	out := make(map[ConstraintRef][]Match, len(n.inliner.totals))
	for _, ct := range n.inliner.totals {
		out[ct.c.ref] = collectMatches(&ct.matches)
	}
	return out, nil
}

func collectMatches(l *elementList[*Match]) []Match {
	ms := make([]Match, 0, l.len())
	l.forEach(func(m *Match) { ms = append(ms, *m) })
	return ms
}

// IsCorruption reports whether err means the network can no longer be trusted.
func IsCorruption(err error) bool {
	return errors.Is(err, types.ErrImpossibleState) ||
		errors.Is(err, types.ErrScoreOverflow) ||
		errors.Is(err, types.ErrScoreCorruption) ||
		errors.Is(err, types.ErrNetworkCorrupted)
}
