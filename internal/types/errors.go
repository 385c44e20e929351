package types

import (
	"errors"
	"fmt"
)

// Sentinel errors for ScoreKeeper operations.
var (
	// ErrImpossibleState indicates the network observed an event its state
	// cannot explain: retract of a tuple never inserted, an index miss,
	// or an undo replayed twice. The caller desynchronized from the network.
	ErrImpossibleState = errors.New("impossible network state")

	// ErrNetworkCorrupted is returned by every call on a network that has
	// previously failed with a consistency or overflow error.
	ErrNetworkCorrupted = errors.New("network is corrupted")

	// ErrScoreOverflow indicates a fixed-width score level overflowed.
	ErrScoreOverflow = errors.New("score level overflow")

	// ErrScoreCorruption indicates the incremental score differs from a
	// from-scratch recalculation over the same facts.
	ErrScoreCorruption = errors.New("score corruption")

	// ErrFactNotInserted indicates update or retract of a fact the network never saw.
	ErrFactNotInserted = errors.New("fact not inserted")

	// ErrFactAlreadyInserted indicates the same fact was inserted twice.
	ErrFactAlreadyInserted = errors.New("fact already inserted")

	// ErrArityExceeded indicates a stream would carry more than MaxArity facts.
	ErrArityExceeded = errors.New("tuple arity exceeds maximum")

	// ErrInvalidConstraint indicates a constraint definition rejected at build time.
	ErrInvalidConstraint = errors.New("invalid constraint definition")

	// ErrDuplicateConstraint indicates two constraints share a package and name.
	ErrDuplicateConstraint = errors.New("duplicate constraint")

	// ErrInvalidScore indicates a score string or definition could not be parsed.
	ErrInvalidScore = errors.New("invalid score")

	// ErrScoreMismatch indicates arithmetic between scores of different definitions.
	ErrScoreMismatch = errors.New("score definitions differ")

	// ErrMatchesDisabled indicates match data was requested under a policy
	// that does not record it.
	ErrMatchesDisabled = errors.New("constraint matches not recorded")

	// ErrConstraintNotFound indicates a constraint lookup by name failed.
	ErrConstraintNotFound = errors.New("constraint not found")

	// ErrVerificationFailed indicates a constraint did not have the expected impact.
	ErrVerificationFailed = errors.New("constraint verification failed")

	// ErrInvalidConfig indicates configuration values failed validation.
	ErrInvalidConfig = errors.New("invalid configuration")

	// ErrProblemNotFound indicates a stored problem or snapshot does not exist.
	ErrProblemNotFound = errors.New("problem not found")
)

// ConsistencyError carries the node and tuple involved in an impossible state.
// Err is ErrImpossibleState or ErrScoreOverflow, so errors.Is works on it.
type ConsistencyError struct {
	Node   string
	Tuple  string
	Detail string
	Err    error
}

func (e *ConsistencyError) Error() string {
	if e.Tuple == "" {
		return fmt.Sprintf("%v in %s: %s", e.Err, e.Node, e.Detail)
	}
	return fmt.Sprintf("%v in %s: %s (tuple %s)", e.Err, e.Node, e.Detail, e.Tuple)
}

func (e *ConsistencyError) Unwrap() error {
	return e.Err
}
