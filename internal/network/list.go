// internal/network/list.go
package network

// elementList is an intrusive doubly linked list whose elements know their
// owner, so removing an element from the wrong list is detectable.
type elementList[T any] struct {
	head, tail *element[T]
	size       int
}

type element[T any] struct {
	value      T
	prev, next *element[T]
	owner      *elementList[T]
}

func (l *elementList[T]) add(v T) *element[T] {
	e := &element[T]{value: v, prev: l.tail, owner: l}
	if l.tail == nil {
		l.head = e
	} else {
		l.tail.next = e
	}
	l.tail = e
	l.size++
	return e
}

// remove unlinks e and reports false if e does not belong to l.
func (l *elementList[T]) remove(e *element[T]) bool {
	if e == nil || e.owner != l {
		return false
	}
	if e.prev == nil {
		l.head = e.next
	} else {
		e.prev.next = e.next
	}
	if e.next == nil {
		l.tail = e.prev
	} else {
		e.next.prev = e.prev
	}
	e.prev, e.next, e.owner = nil, nil, nil
	l.size--
	return true
}

// forEach visits elements in insertion order. fn may remove the visited element.
func (l *elementList[T]) forEach(fn func(T)) {
	for e := l.head; e != nil; {
		next := e.next
		fn(e.value)
		e = next
	}
}

func (l *elementList[T]) len() int { return l.size }

func (l *elementList[T]) first() (T, bool) {
	if l.head == nil {
		var zero T
		return zero, false
	}
	return l.head.value, true
}
