// internal/network/indexer.go
package network

import "sort"

/*
 * Indexers map extracted join keys to the tuples currently holding them.
 *
 * Chain: equalIndexer (hash on one composite key) -> comparisonIndexer
 * (sorted keys, one per comparison joiner) -> bucketIndexer (insertion
 * ordered list). A node with no indexed joiners uses a bare bucket.
 *
 * Invariant: every tuple in an indexer is reachable by the keys it was put
 * with. Callers keep those keys in the tuple store and must remove with the
 * same keys before re-putting under new ones. remove reports false when the
 * entry is not where the keys say it is; callers turn that into a
 * consistency failure.
 *
 * Empty sub-indexers are deleted eagerly so isEmpty stays O(1).
 */

type indexer interface {
	put(keys indexKeys, t *Tuple) *element[*Tuple]
	remove(keys indexKeys, e *element[*Tuple]) bool
	forEach(keys indexKeys, fn func(*Tuple))
	size(keys indexKeys) int
	isEmpty() bool
}

type bucketIndexer struct {
	list elementList[*Tuple]
}

func (b *bucketIndexer) put(_ indexKeys, t *Tuple) *element[*Tuple] { return b.list.add(t) }

func (b *bucketIndexer) remove(_ indexKeys, e *element[*Tuple]) bool { return b.list.remove(e) }

func (b *bucketIndexer) forEach(_ indexKeys, fn func(*Tuple)) { b.list.forEach(fn) }

func (b *bucketIndexer) size(_ indexKeys) int { return b.list.len() }

func (b *bucketIndexer) isEmpty() bool { return b.list.len() == 0 }

type equalIndexer struct {
	pos  int
	next func() indexer
	m    map[any]indexer
}

func (x *equalIndexer) put(keys indexKeys, t *Tuple) *element[*Tuple] {
	k := keys[x.pos]
	child, ok := x.m[k]
	if !ok {
		child = x.next()
		x.m[k] = child
	}
	return child.put(keys, t)
}

func (x *equalIndexer) remove(keys indexKeys, e *element[*Tuple]) bool {
	k := keys[x.pos]
	child, ok := x.m[k]
	if !ok || !child.remove(keys, e) {
		return false
	}
	if child.isEmpty() {
		delete(x.m, k)
	}
	return true
}

func (x *equalIndexer) forEach(keys indexKeys, fn func(*Tuple)) {
	if child, ok := x.m[keys[x.pos]]; ok {
		child.forEach(keys, fn)
	}
}

func (x *equalIndexer) size(keys indexKeys) int {
	if child, ok := x.m[keys[x.pos]]; ok {
		return child.size(keys)
	}
	return 0
}

func (x *equalIndexer) isEmpty() bool { return len(x.m) == 0 }

// comparisonIndexer keeps distinct keys sorted. forEach visits every child
// whose indexed key k satisfies "k op query".
type comparisonIndexer struct {
	pos      int
	op       JoinerType
	cmp      func(a, b any) int
	next     func() indexer
	keys     []any
	children []indexer
}

// search returns the first position whose key is >= k.
func (x *comparisonIndexer) search(k any) int {
	return sort.Search(len(x.keys), func(i int) bool { return x.cmp(x.keys[i], k) >= 0 })
}

func (x *comparisonIndexer) put(keys indexKeys, t *Tuple) *element[*Tuple] {
	k := keys[x.pos]
	i := x.search(k)
	if i < len(x.keys) && x.cmp(x.keys[i], k) == 0 {
		return x.children[i].put(keys, t)
	}
	child := x.next()
	x.keys = append(x.keys, nil)
	x.children = append(x.children, nil)
	copy(x.keys[i+1:], x.keys[i:])
	copy(x.children[i+1:], x.children[i:])
	x.keys[i] = k
	x.children[i] = child
	return child.put(keys, t)
}

func (x *comparisonIndexer) remove(keys indexKeys, e *element[*Tuple]) bool {
	k := keys[x.pos]
	i := x.search(k)
	if i >= len(x.keys) || x.cmp(x.keys[i], k) != 0 {
		return false
	}
	if !x.children[i].remove(keys, e) {
		return false
	}
	if x.children[i].isEmpty() {
		x.keys = append(x.keys[:i], x.keys[i+1:]...)
		x.children = append(x.children[:i], x.children[i+1:]...)
	}
	return true
}

// bounds returns the half-open child range matching query q.
func (x *comparisonIndexer) bounds(q any) (int, int) {
	switch x.op {
	case JoinLessThan:
		return 0, x.search(q)
	case JoinLessThanOrEqual:
		return 0, sort.Search(len(x.keys), func(i int) bool { return x.cmp(x.keys[i], q) > 0 })
	case JoinGreaterThan:
		return sort.Search(len(x.keys), func(i int) bool { return x.cmp(x.keys[i], q) > 0 }), len(x.keys)
	case JoinGreaterThanOrEqual:
		return x.search(q), len(x.keys)
	default:
		return 0, 0
	}
}

func (x *comparisonIndexer) forEach(keys indexKeys, fn func(*Tuple)) {
	lo, hi := x.bounds(keys[x.pos])
	if lo >= hi {
		return
	}
	// children may shrink if fn removes; iterate over a stable copy
	children := append([]indexer(nil), x.children[lo:hi]...)
	for _, child := range children {
		child.forEach(keys, fn)
	}
}

func (x *comparisonIndexer) size(keys indexKeys) int {
	lo, hi := x.bounds(keys[x.pos])
	n := 0
	for i := lo; i < hi; i++ {
		n += x.children[i].size(keys)
	}
	return n
}

func (x *comparisonIndexer) isEmpty() bool { return len(x.keys) == 0 }
