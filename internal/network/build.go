// internal/network/build.go
package network

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/solatis/scorekeeper/internal/score"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Network build.
 *
 * Build workflow:
 *   1. Run the provider against a fresh Factory (streams are shared while declared)
 *   2. Drop zero-weight constraints; mark streams reachable from the rest active
 *   3. Resolve each active stream's tuple source: the nearest ancestor-or-self
 *      that allocates tuples (filter and exists pass their input through)
 *   4. Reserve store slots for every consumer on its input's tuple source
 *   5. Create nodes in reverse declaration order so each node's downstream
 *      consumers already exist when it is wired
 *
 * Precomputed sub-networks are part of the same declaration list; their
 * sources are flagged static and their output enters through a precompute
 * node, which is a tuple source of the main network.
 *
 * Declaration order is a topological order: a stream's parents always exist
 * before it does.
 */

// ConstraintProvider declares constraints on a Factory.
type ConstraintProvider interface {
	DefineConstraints(f *Factory)
}

// ConstraintProviderFunc adapts a function to ConstraintProvider.
type ConstraintProviderFunc func(f *Factory)

func (fn ConstraintProviderFunc) DefineConstraints(f *Factory) { fn(f) }

// Observer receives network activity, e.g. for metrics.
type Observer interface {
	FactMutated(op string)
	ScoreCalculated()
}

// Options are fixed for the life of a network.
type Options struct {
	Policy   MatchPolicy
	Assert   bool
	Logger   *slog.Logger
	Observer Observer
}

// Build compiles provider's constraints into a network scored with def.
func Build(def *score.Definition, provider ConstraintProvider, opts Options) (*Network, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil score definition", types.ErrInvalidScore)
	}
	f := NewFactory(def)
	provider.DefineConstraints(f)
	if f.err != nil {
		return nil, fmt.Errorf("failed to define constraints: %w", f.err)
	}
	b := &builder{f: f, opts: opts}
	n, err := b.build()
	if err != nil {
		return nil, err
	}
	n.provider = provider
	return n, nil
}

type builder struct {
	f      *Factory
	opts   Options
	nextID int
	nodes  int
}

func (b *builder) build() (*Network, error) {
	f := b.f
	var constraints []*Constraint
	for _, c := range f.constraints {
		if c.weight.IsZero() {
			continue
		}
		c.index = len(constraints)
		constraints = append(constraints, c)
		markActive(c.stream)
	}

	var order []*stream
	for _, s := range f.streams {
		if s.active {
			order = append(order, s)
		}
	}

	for _, s := range order {
		if s.kind.createsTuples() {
			s.source = s
		} else {
			s.source = s.parents[0].source
		}
	}

	for _, s := range order {
		b.reserveInputs(s)
	}
	scorerSlots := make(map[*Constraint]int, len(constraints))
	for _, c := range constraints {
		scorerSlots[c] = reserve(c.stream.source, 1)[0]
	}

	in := newInliner(f.def, b.opts.Policy, constraints)
	var sources []*sourceNode
	var precomputes []*precomputeNode
	for i := len(order) - 1; i >= 0; i-- {
		s := order[i]
		next := b.downstream(s, in, scorerSlots)
		s.node = b.createNode(s, next)
		switch node := s.node.(type) {
		case *sourceNode:
			sources = append(sources, node)
		case *precomputeNode:
			if !s.static {
				precomputes = append(precomputes, node)
			}
		}
	}
	// declaration order
	slices.Reverse(sources)
	slices.Reverse(precomputes)

	log := b.opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	n := &Network{
		id:          types.NewNetworkID(),
		def:         f.def,
		opts:        b.opts,
		log:         log,
		constraints: constraints,
		sources:     sources,
		precomputes: precomputes,
		inliner:     in,
		stats: Stats{
			Nodes:         b.nodes,
			Streams:       len(order),
			SharedStreams: f.sharedHits,
			Constraints:   len(constraints),
		},
	}
	n.init()
	log.Debug("network built",
		"network_id", n.id,
		"nodes", b.nodes,
		"constraints", len(constraints),
		"declared_streams", len(f.streams),
		"active_streams", len(order),
		"shared_streams", f.sharedHits,
		"policy", b.opts.Policy.String())
	return n, nil
}

func markActive(s *stream) {
	if s.active {
		return
	}
	s.active = true
	for _, p := range s.parents {
		markActive(p)
	}
}

// reserve allocates n consecutive slots on a tuple source stream.
func reserve(source *stream, n int) []int {
	slots := make([]int, n)
	for i := range slots {
		slots[i] = source.storeSize
		source.storeSize++
	}
	return slots
}

func (b *builder) reserveInputs(s *stream) {
	switch s.kind {
	case kindSource:
	case kindFilter, kindMap, kindDistinct, kindGroup, kindFlatten, kindPrecompute:
		s.slotsLeft = reserve(s.parents[0].source, 1)
	case kindJoin, kindIfExists, kindIfNotExists:
		s.slotsLeft = reserve(s.parents[0].source, 3)
		s.slotsRight = reserve(s.parents[1].source, 3)
	case kindConcat:
		s.slotsLeft = reserve(s.parents[0].source, 1)
		s.slotsRight = reserve(s.parents[1].source, 1)
	}
}

// downstream gathers the consumers of s: child nodes, then scorers.
func (b *builder) downstream(s *stream, in *inliner, scorerSlots map[*Constraint]int) Lifecycle {
	var ls []Lifecycle
	for _, c := range s.children {
		if !c.active {
			continue
		}
		for i, p := range c.parents {
			if p != s {
				continue
			}
			if bn, ok := c.node.(binaryNode); ok {
				if i == 0 {
					ls = append(ls, leftInput{bn})
				} else {
					ls = append(ls, rightInput{bn})
				}
			} else {
				ls = append(ls, c.node.(Lifecycle))
			}
		}
	}
	for _, c := range s.constraints {
		slot, ok := scorerSlots[c]
		if !ok {
			continue
		}
		ls = append(ls, &scorerNode{nodeBase: b.base("scorer(" + c.ref.String() + ")"), slot: slot, c: c, in: in})
	}
	return joinLifecycle(ls)
}

func (b *builder) base(kind string) nodeBase {
	b.nextID++
	b.nodes++
	return nodeBase{id: b.nextID, kind: kind}
}

func (b *builder) createNode(s *stream, next Lifecycle) any {
	switch s.kind {
	case kindSource:
		b.nodes++
		b.nextID++
		src := newSourceNode(b.nextID, s.factType, s.storeSize, next)
		src.static = s.static
		return src
	case kindFilter:
		return &filterNode{nodeBase: b.base("filter"), slot: s.slotsLeft[0], pred: s.pred, next: next}
	case kindMap:
		base := b.base("map")
		return &mapNode{nodeBase: base, slot: s.slotsLeft[0], fns: s.fns, storeSize: s.storeSize,
			out: outbox{owner: base, next: next}}
	case kindDistinct, kindGroup:
		base := b.base(s.kind.String())
		return &groupNode{nodeBase: base, slot: s.slotsLeft[0], keys: s.fns, collectors: s.collectors,
			distinct: s.kind == kindDistinct, outArity: s.arity, storeSize: s.storeSize,
			groups: make(map[any]*group), out: outbox{owner: base, next: next}}
	case kindJoin:
		l, r := s.slotsLeft, s.slotsRight
		return newJoinNode(b.base("join"), s.joiners,
			joinSlots{keys: l[0], entry: l[1], outs: l[2]}, joinSlots{keys: r[0], entry: r[1], outs: r[2]},
			s.parents[0].arity, s.parents[1].arity, s.storeSize, next)
	case kindIfExists, kindIfNotExists:
		l, r := s.slotsLeft, s.slotsRight
		return newExistsNode(b.base(s.kind.String()), s.kind == kindIfExists, s.joiners,
			existsSlots{keys: l[0], entry: l[1], state: l[2]}, existsSlots{keys: r[0], entry: r[1], state: r[2]},
			s.parents[0].arity, s.parents[1].arity, next)
	case kindConcat:
		base := b.base("concat")
		return &concatNode{nodeBase: base, leftSlot: s.slotsLeft[0], rightSlot: s.slotsRight[0],
			arity: s.arity, padLeft: s.fns, padRight: s.padRight, storeSize: s.storeSize,
			out: outbox{owner: base, next: next}}
	case kindFlatten:
		base := b.base("flattenLast")
		return &flattenNode{nodeBase: base, slot: s.slotsLeft[0], fn: s.flatten, storeSize: s.storeSize,
			out: outbox{owner: base, next: next}}
	case kindPrecompute:
		return newPrecomputeNode(b.base("precompute"), s.slotsLeft[0], s.storeSize, next)
	default:
		panic(fmt.Sprintf("network: unknown stream kind %d", s.kind))
	}
}
