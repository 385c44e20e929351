// internal/network/stream.go
package network

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Declarative stream API and node sharing.
 *
 * Every Stream method creates a candidate stream and looks it up by share key
 * before registering it. The key is kind + parent stream ids + the identity
 * of every function and collector the stream holds + its parameters. Two
 * constraints that build the same chain from the same function values end up
 * on the same stream, and therefore the same node, at build time.
 *
 * Function identity is the closure object, not the code: two closures built
 * from one literal with different captured variables are different. Closures
 * that are equal in behavior but constructed separately are not shared.
 *
 * Source streams are keyed by the reflect.Type itself, so distinct types
 * that print the same name (function-local types, vendored copies) never
 * share a source.
 *
 * Errors (arity overflow, bad joiners) are recorded on the Factory; the
 * offending call returns a dead stream and Build reports the first error.
 */

type streamKind int

const (
	kindSource streamKind = iota
	kindFilter
	kindMap
	kindDistinct
	kindJoin
	kindIfExists
	kindIfNotExists
	kindGroup
	kindConcat
	kindFlatten
	kindPrecompute
)

func (k streamKind) String() string {
	switch k {
	case kindSource:
		return "forEach"
	case kindFilter:
		return "filter"
	case kindMap:
		return "map"
	case kindDistinct:
		return "distinct"
	case kindJoin:
		return "join"
	case kindIfExists:
		return "ifExists"
	case kindIfNotExists:
		return "ifNotExists"
	case kindGroup:
		return "groupBy"
	case kindConcat:
		return "concat"
	case kindFlatten:
		return "flattenLast"
	case kindPrecompute:
		return "precompute"
	default:
		return "unknown"
	}
}

// createsTuples reports whether the node emits tuples it allocated itself.
func (k streamKind) createsTuples() bool {
	switch k {
	case kindFilter, kindIfExists, kindIfNotExists:
		return false
	default:
		return true
	}
}

type stream struct {
	id          int
	kind        streamKind
	arity       int
	distinct    bool
	parents     []*stream
	children    []*stream
	constraints []*Constraint

	factType   reflect.Type
	static     bool
	pred       func(Facts) bool
	fns        []func(Facts) any
	padRight   []func(Facts) any
	joiners    *joinerSet
	collectors []Collector
	flatten    func(any) []any

	// build state
	active     bool
	source     *stream
	storeSize  int
	slotsLeft  []int
	slotsRight []int
	node       any
}

// Factory collects stream and constraint declarations.
type Factory struct {
	def         *score.Definition
	pkg         string
	streams     []*stream
	byKey       map[string]*stream
	constraints []*Constraint
	names       map[ConstraintRef]bool
	sharedHits  int
	unique      int
	typeIDs     map[reflect.Type]int
	static      bool
	err         error
}

// NewFactory returns an empty factory for constraints scored with def.
func NewFactory(def *score.Definition) *Factory {
	return &Factory{
		def:   def,
		byKey:   make(map[string]*stream),
		names:   make(map[ConstraintRef]bool),
		typeIDs: make(map[reflect.Type]int),
	}
}

// Definition returns the score definition constraint weights must use.
func (f *Factory) Definition() *score.Definition { return f.def }

// SetPackage sets the package of constraints declared afterwards.
func (f *Factory) SetPackage(pkg string) { f.pkg = pkg }

// Err returns the first declaration error.
func (f *Factory) Err() error { return f.err }

func (f *Factory) setErr(err error) {
	if f.err == nil {
		f.err = err
	}
}

// typeID numbers reflect types in order of first use.
func (f *Factory) typeID(t reflect.Type) string {
	id, ok := f.typeIDs[t]
	if !ok {
		id = len(f.typeIDs)
		f.typeIDs[t] = id
	}
	return fmt.Sprintf("type%d(%s)", id, t)
}

func (f *Factory) nextUnique() any {
	f.unique++
	return fmt.Sprintf("unique-%d", f.unique)
}

func shareKey(kind streamKind, parents []*stream, parts ...any) string {
	var b strings.Builder
	b.WriteString(kind.String())
	for _, p := range parents {
		fmt.Fprintf(&b, "|p%d", p.id)
	}
	for _, p := range parts {
		fmt.Fprintf(&b, "|%T:%v", p, p)
	}
	return b.String()
}

func funcIDs[F any](fns []F) []uintptr {
	ids := make([]uintptr, len(fns))
	for i, fn := range fns {
		ids[i] = funcIdentity(fn)
	}
	return ids
}

// share registers s unless an equivalent stream exists, returning the survivor.
func (f *Factory) share(s *stream, key string) *Stream {
	if existing, ok := f.byKey[key]; ok {
		f.sharedHits++
		return &Stream{f: f, s: existing}
	}
	s.id = len(f.streams)
	f.streams = append(f.streams, s)
	f.byKey[key] = s
	for _, p := range s.parents {
		if !containsStream(p.children, s) {
			p.children = append(p.children, s)
		}
	}
	return &Stream{f: f, s: s}
}

func containsStream(list []*stream, s *stream) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Stream is a handle on a declared stream of tuples.
type Stream struct {
	f *Factory
	s *stream
}

func (st *Stream) dead() bool { return st.s == nil || st.f.err != nil }

func (st *Stream) fail(err error) *Stream {
	st.f.setErr(err)
	return &Stream{f: st.f}
}

// Arity returns the number of facts per tuple, 0 for a dead stream.
func (st *Stream) Arity() int {
	if st.s == nil {
		return 0
	}
	return st.s.arity
}

// ForEach streams every inserted fact of type T. For interface types, every
// fact implementing T.
func ForEach[T any](f *Factory) *Stream {
	return f.ForEachType(reflect.TypeOf((*T)(nil)).Elem())
}

// ForEachType is ForEach for a runtime type.
func (f *Factory) ForEachType(t reflect.Type) *Stream {
	s := &stream{kind: kindSource, arity: 1, distinct: true, factType: t, static: f.static}
	return f.share(s, shareKey(kindSource, nil, f.typeID(t)))
}

// Filter keeps tuples for which pred holds.
func (st *Stream) Filter(pred func(Facts) bool) *Stream {
	if st.dead() {
		return st
	}
	s := &stream{kind: kindFilter, arity: st.s.arity, distinct: st.s.distinct,
		parents: []*stream{st.s}, pred: pred}
	return st.f.share(s, shareKey(kindFilter, s.parents, funcIdentity(pred)))
}

// Map replaces each tuple with one whose facts are fns applied to it.
// The result is not distinct; follow with Distinct if that matters.
func (st *Stream) Map(fns ...func(Facts) any) *Stream {
	if st.dead() {
		return st
	}
	if len(fns) == 0 || len(fns) > types.MaxArity {
		return st.fail(fmt.Errorf("%w: map to %d facts", types.ErrArityExceeded, len(fns)))
	}
	s := &stream{kind: kindMap, arity: len(fns), parents: []*stream{st.s}, fns: fns}
	return st.f.share(s, shareKey(kindMap, s.parents, funcIDs(fns)))
}

// Distinct removes duplicate tuples (equal facts). Streams already known to
// be distinct are returned unchanged.
func (st *Stream) Distinct() *Stream {
	if st.dead() || st.s.distinct {
		return st
	}
	s := &stream{kind: kindDistinct, arity: st.s.arity, distinct: true, parents: []*stream{st.s}}
	return st.f.share(s, shareKey(kindDistinct, s.parents))
}

// Join pairs every tuple with every matching tuple of other.
func (st *Stream) Join(other *Stream, joiners ...Joiner) *Stream {
	if st.dead() || other.dead() {
		return &Stream{f: st.f}
	}
	arity := st.s.arity + other.s.arity
	if arity > types.MaxArity {
		return st.fail(fmt.Errorf("%w: join of arity %d and %d", types.ErrArityExceeded, st.s.arity, other.s.arity))
	}
	js, err := compileJoiners(joiners)
	if err != nil {
		return st.fail(err)
	}
	s := &stream{kind: kindJoin, arity: arity, distinct: st.s.distinct && other.s.distinct,
		parents: []*stream{st.s, other.s}, joiners: js}
	return st.f.share(s, shareKey(kindJoin, s.parents, js.identity))
}

// IfExists keeps tuples for which at least one matching tuple of other exists.
func (st *Stream) IfExists(other *Stream, joiners ...Joiner) *Stream {
	return st.exists(kindIfExists, other, joiners)
}

// IfNotExists keeps tuples for which no matching tuple of other exists.
func (st *Stream) IfNotExists(other *Stream, joiners ...Joiner) *Stream {
	return st.exists(kindIfNotExists, other, joiners)
}

func (st *Stream) exists(kind streamKind, other *Stream, joiners []Joiner) *Stream {
	if st.dead() || other.dead() {
		return &Stream{f: st.f}
	}
	js, err := compileJoiners(joiners)
	if err != nil {
		return st.fail(err)
	}
	if js.isFiltering() && st.s.arity+other.s.arity > types.MaxArity {
		return st.fail(fmt.Errorf("%w: filtering %s over arity %d and %d",
			types.ErrArityExceeded, kind, st.s.arity, other.s.arity))
	}
	s := &stream{kind: kind, arity: st.s.arity, distinct: st.s.distinct,
		parents: []*stream{st.s, other.s}, joiners: js}
	return st.f.share(s, shareKey(kind, s.parents, js.identity))
}

// GroupBy groups tuples by keys and aggregates each group with collectors.
// Output facts are the key values followed by the collector results.
func (st *Stream) GroupBy(keys []func(Facts) any, collectors ...Collector) *Stream {
	if st.dead() {
		return st
	}
	arity := len(keys) + len(collectors)
	if arity == 0 {
		return st.fail(fmt.Errorf("%w: group-by without keys or collectors", types.ErrInvalidConstraint))
	}
	if arity > types.MaxArity {
		return st.fail(fmt.Errorf("%w: group-by with %d keys and %d collectors",
			types.ErrArityExceeded, len(keys), len(collectors)))
	}
	ids := make([]any, len(collectors))
	for i, c := range collectors {
		ids[i] = valueIdentity(c, st.f.nextUnique)
	}
	s := &stream{kind: kindGroup, arity: arity, distinct: true, parents: []*stream{st.s},
		fns: keys, collectors: collectors}
	return st.f.share(s, shareKey(kindGroup, s.parents, funcIDs(keys), ids))
}

// GroupByKey groups by a single key.
func (st *Stream) GroupByKey(key func(Facts) any, collectors ...Collector) *Stream {
	return st.GroupBy([]func(Facts) any{key}, collectors...)
}

// Aggregate collects the whole stream into a single group.
func (st *Stream) Aggregate(collectors ...Collector) *Stream {
	return st.GroupBy(nil, collectors...)
}

// Concat appends other's tuples to this stream. When arities differ, the
// shorter side is extended with padding functions of its own facts; exactly
// the difference in arity must be supplied.
func (st *Stream) Concat(other *Stream, padding ...func(Facts) any) *Stream {
	if st.dead() || other.dead() {
		return &Stream{f: st.f}
	}
	la, ra := st.s.arity, other.s.arity
	diff := la - ra
	if diff < 0 {
		diff = -diff
	}
	if len(padding) != diff {
		return st.fail(fmt.Errorf("%w: concat of arity %d and %d needs %d padding functions, got %d",
			types.ErrInvalidConstraint, la, ra, diff, len(padding)))
	}
	s := &stream{kind: kindConcat, arity: max(la, ra), distinct: st.s.distinct && other.s.distinct,
		parents: []*stream{st.s, other.s}}
	if la < ra {
		s.fns = padding
	} else {
		s.padRight = padding
	}
	return st.f.share(s, shareKey(kindConcat, s.parents, funcIDs(s.fns), funcIDs(s.padRight)))
}

// FlattenLast replaces the last fact with each element of fn(lastFact).
func (st *Stream) FlattenLast(fn func(any) []any) *Stream {
	if st.dead() {
		return st
	}
	s := &stream{kind: kindFlatten, arity: st.s.arity, parents: []*stream{st.s}, flatten: fn}
	return st.f.share(s, shareKey(kindFlatten, s.parents, funcIdentity(fn)))
}

// Penalize finishes the stream as a constraint subtracting weight per match.
func (st *Stream) Penalize(weight score.Score) *ConstraintBuilder {
	return st.impact(weight, ImpactPenalty)
}

// Reward finishes the stream as a constraint adding weight per match.
func (st *Stream) Reward(weight score.Score) *ConstraintBuilder {
	return st.impact(weight, ImpactReward)
}

// Impact finishes the stream as a constraint adding weight times a signed match weight.
func (st *Stream) Impact(weight score.Score) *ConstraintBuilder {
	return st.impact(weight, ImpactMixed)
}

func (st *Stream) impact(weight score.Score, it ImpactType) *ConstraintBuilder {
	b := &ConstraintBuilder{f: st.f, weight: weight, impactType: it, pkg: st.f.pkg}
	if !st.dead() {
		b.s = st.s
	}
	return b
}
