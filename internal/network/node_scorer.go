// internal/network/node_scorer.go
package network

import (
	"errors"

	"github.com/solatis/scorekeeper/internal/types"
)

// scorerNode is the terminal node of one constraint. The tuple slot holds the
// impact token of the tuple's current contribution.
type scorerNode struct {
	nodeBase
	slot int
	c    *Constraint
	in   *inliner
}

func (n *scorerNode) apply(t *Tuple) {
	imp, err := n.in.apply(n.c, t.Facts())
	if err != nil {
		n.failOverflow(t, err)
	}
	t.store[n.slot] = imp
}

func (n *scorerNode) undo(t *Tuple, imp *impact) {
	if err := n.in.undo(imp); err != nil {
		if errors.Is(err, types.ErrScoreOverflow) {
			n.failOverflow(t, err)
		}
		n.fail(t, "%v", err)
	}
}

func (n *scorerNode) Insert(t *Tuple) {
	if t.store[n.slot] != nil {
		n.fail(t, "insert of tuple already scored")
	}
	n.apply(t)
}

func (n *scorerNode) Update(t *Tuple) {
	imp, ok := t.store[n.slot].(*impact)
	if !ok {
		n.fail(t, "update of tuple never scored")
	}
	n.undo(t, imp)
	n.apply(t)
}

func (n *scorerNode) Retract(t *Tuple) {
	imp, ok := t.store[n.slot].(*impact)
	if !ok {
		n.fail(t, "retract of tuple never scored")
	}
	t.store[n.slot] = nil
	n.undo(t, imp)
}
