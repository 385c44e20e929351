// internal/network/joiner.go
package network

import (
	"fmt"

	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Joiners describe how two streams match.
 *
 * Indexed joiners (Equal, LessThan, ...) map each side's facts to a key and
 * become indexer levels: all Equal joiners merge into one hash level keyed by
 * a composite value, each comparison joiner adds a sorted level. Filtering
 * joiners are residual predicates over the combined facts, applied after the
 * index lookup.
 *
 * Keys must be comparable with ==. Comparison keys additionally need an
 * ordering (CompareNatural unless a comparator is supplied).
 */

// JoinerType is the relation an indexed joiner requires between left and right keys.
type JoinerType int

const (
	JoinEqual JoinerType = iota
	JoinLessThan
	JoinLessThanOrEqual
	JoinGreaterThan
	JoinGreaterThanOrEqual
	joinFiltering
)

func (j JoinerType) String() string {
	switch j {
	case JoinEqual:
		return "equal"
	case JoinLessThan:
		return "lessThan"
	case JoinLessThanOrEqual:
		return "lessThanOrEqual"
	case JoinGreaterThan:
		return "greaterThan"
	case JoinGreaterThanOrEqual:
		return "greaterThanOrEqual"
	case joinFiltering:
		return "filtering"
	default:
		return "unknown"
	}
}

// flip returns the relation seen from the other side: left < right is right > left.
func (j JoinerType) flip() JoinerType {
	switch j {
	case JoinLessThan:
		return JoinGreaterThan
	case JoinLessThanOrEqual:
		return JoinGreaterThanOrEqual
	case JoinGreaterThan:
		return JoinLessThan
	case JoinGreaterThanOrEqual:
		return JoinLessThanOrEqual
	default:
		return j
	}
}

// Joiner is one matching condition between two streams.
type Joiner struct {
	typ    JoinerType
	left   func(Facts) any
	right  func(Facts) any
	filter func(Facts) bool
	cmp    func(a, b any) int
}

// Equal matches when left(leftFacts) == right(rightFacts).
func Equal(left, right func(Facts) any) Joiner {
	return Joiner{typ: JoinEqual, left: left, right: right}
}

// EqualOn matches when both sides map to the same key through fn.
func EqualOn(fn func(Facts) any) Joiner {
	return Equal(fn, fn)
}

// LessThan matches when left key < right key.
func LessThan(left, right func(Facts) any) Joiner {
	return Joiner{typ: JoinLessThan, left: left, right: right}
}

// LessThanOrEqual matches when left key <= right key.
func LessThanOrEqual(left, right func(Facts) any) Joiner {
	return Joiner{typ: JoinLessThanOrEqual, left: left, right: right}
}

// GreaterThan matches when left key > right key.
func GreaterThan(left, right func(Facts) any) Joiner {
	return Joiner{typ: JoinGreaterThan, left: left, right: right}
}

// GreaterThanOrEqual matches when left key >= right key.
func GreaterThanOrEqual(left, right func(Facts) any) Joiner {
	return Joiner{typ: JoinGreaterThanOrEqual, left: left, right: right}
}

// Filtering matches when pred holds over the left facts followed by the right facts.
func Filtering(pred func(Facts) bool) Joiner {
	return Joiner{typ: joinFiltering, filter: pred}
}

// WithComparator replaces CompareNatural for a comparison joiner.
func (j Joiner) WithComparator(cmp func(a, b any) int) Joiner {
	j.cmp = cmp
	return j
}

// compositeKey merges several Equal joiner keys into one hashable value.
type compositeKey [types.MaxJoiners]any

// indexKeys holds one key per indexer level.
type indexKeys []any

func (k indexKeys) equal(o indexKeys) bool {
	if len(k) != len(o) {
		return false
	}
	for i := range k {
		if k[i] != o[i] {
			return false
		}
	}
	return true
}

// comparisonLevel is one sorted indexer level.
type comparisonLevel struct {
	typ   JoinerType
	left  func(Facts) any
	right func(Facts) any
	cmp   func(a, b any) int
}

// joinerSet is the compiled form of a joiner list.
type joinerSet struct {
	equalLeft   []func(Facts) any
	equalRight  []func(Facts) any
	comparisons []comparisonLevel
	filters     []func(Facts) bool
	identity    []uintptr
}

func compileJoiners(joiners []Joiner) (*joinerSet, error) {
	js := &joinerSet{}
	indexed := 0
	for _, j := range joiners {
		js.identity = append(js.identity, uintptr(j.typ), funcIdentity(j.left), funcIdentity(j.right),
			funcIdentity(j.filter), funcIdentity(j.cmp))
		switch j.typ {
		case JoinEqual:
			indexed++
			js.equalLeft = append(js.equalLeft, j.left)
			js.equalRight = append(js.equalRight, j.right)
		case JoinLessThan, JoinLessThanOrEqual, JoinGreaterThan, JoinGreaterThanOrEqual:
			indexed++
			cmp := j.cmp
			if cmp == nil {
				cmp = CompareNatural
			}
			js.comparisons = append(js.comparisons, comparisonLevel{typ: j.typ, left: j.left, right: j.right, cmp: cmp})
		case joinFiltering:
			if j.filter == nil {
				return nil, fmt.Errorf("%w: filtering joiner without predicate", types.ErrInvalidConstraint)
			}
			js.filters = append(js.filters, j.filter)
		default:
			return nil, fmt.Errorf("%w: unknown joiner type %d", types.ErrInvalidConstraint, j.typ)
		}
		if j.typ != joinFiltering && (j.left == nil || j.right == nil) {
			return nil, fmt.Errorf("%w: %s joiner without key mapping", types.ErrInvalidConstraint, j.typ)
		}
	}
	if indexed > types.MaxJoiners {
		return nil, fmt.Errorf("%w: %d indexed joiners exceeds maximum %d",
			types.ErrInvalidConstraint, indexed, types.MaxJoiners)
	}
	return js, nil
}

func (js *joinerSet) levels() int {
	n := len(js.comparisons)
	if len(js.equalLeft) > 0 {
		n++
	}
	return n
}

func (js *joinerSet) isFiltering() bool { return len(js.filters) > 0 }

func (js *joinerSet) leftKeys(f Facts) indexKeys {
	return js.keys(f, js.equalLeft, true)
}

func (js *joinerSet) rightKeys(f Facts) indexKeys {
	return js.keys(f, js.equalRight, false)
}

func (js *joinerSet) keys(f Facts, equal []func(Facts) any, left bool) indexKeys {
	n := js.levels()
	if n == 0 {
		return nil
	}
	keys := make(indexKeys, 0, n)
	switch len(equal) {
	case 0:
	case 1:
		keys = append(keys, equal[0](f))
	default:
		var ck compositeKey
		for i, fn := range equal {
			ck[i] = fn(f)
		}
		keys = append(keys, ck)
	}
	for _, c := range js.comparisons {
		if left {
			keys = append(keys, c.left(f))
		} else {
			keys = append(keys, c.right(f))
		}
	}
	return keys
}

// test applies the filtering joiners to the combined facts.
func (js *joinerSet) test(combined Facts) bool {
	for _, f := range js.filters {
		if !f(combined) {
			return false
		}
	}
	return true
}

// newIndexer builds the indexer chain for one side. The left side stores left
// keys and is queried with right keys, so its comparison levels keep the
// joiner relation; the right side flips it.
func (js *joinerSet) newIndexer(leftSide bool) indexer {
	var build func(level int) indexer
	hasEqual := len(js.equalLeft) > 0
	build = func(level int) indexer {
		if level == js.levels() {
			return &bucketIndexer{}
		}
		next := func() indexer { return build(level + 1) }
		if hasEqual && level == 0 {
			return &equalIndexer{pos: level, next: next, m: make(map[any]indexer)}
		}
		ci := level
		if hasEqual {
			ci--
		}
		c := js.comparisons[ci]
		op := c.typ
		if !leftSide {
			op = op.flip()
		}
		return &comparisonIndexer{pos: level, op: op, cmp: c.cmp, next: next}
	}
	return build(0)
}
