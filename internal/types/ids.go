package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// All identifiers are UUIDv7: time-ordered, so rows inserted during a run
// stay clustered and an ID alone tells when it was minted.

func newV7[T ~string]() T {
	// uuid.Must panics only when the random source fails.
	return T(uuid.Must(uuid.NewV7()).String())
}

func parseID[T ~string](kind, s string) (T, error) {
	if _, err := uuid.Parse(s); err != nil {
		return "", fmt.Errorf("invalid %s id %q: %w", kind, s, err)
	}
	return T(s), nil
}

// NewRunID generates a run identifier.
func NewRunID() RunID { return newV7[RunID]() }

// NewProblemID generates a problem identifier.
func NewProblemID() ProblemID { return newV7[ProblemID]() }

// NewSnapshotID generates a snapshot identifier.
func NewSnapshotID() SnapshotID { return newV7[SnapshotID]() }

// NewNetworkID generates an identifier for one built network instance.
func NewNetworkID() NetworkID { return newV7[NetworkID]() }

// ParseRunID validates s as a run ID.
func ParseRunID(s string) (RunID, error) { return parseID[RunID]("run", s) }

// ParseProblemID validates s as a problem ID.
func ParseProblemID(s string) (ProblemID, error) { return parseID[ProblemID]("problem", s) }

// RunIDTime returns the creation time embedded in id, or the zero time when
// id is not a UUID.
func RunIDTime(id RunID) time.Time {
	u, err := uuid.Parse(string(id))
	if err != nil {
		return time.Time{}
	}
	sec, nsec := u.Time().UnixTime()
	return time.Unix(sec, nsec)
}
