// Package types provides identifiers, limits and errors shared across
// ScoreKeeper components.
//
// Zero-dependency design: types.go and errors.go use only the standard
// library so the network core does not pull in storage or transport deps.
// ID utilities in ids.go import uuid but are isolated from the core.
package types

// RunID identifies one solving or benchmark run. UUIDv7.
type RunID string

// ProblemID identifies a stored planning problem. UUIDv7.
type ProblemID string

// SnapshotID identifies one stored score snapshot. UUIDv7.
type SnapshotID string

// NetworkID identifies one built network instance. UUIDv7.
// Move threads each own a distinct network and therefore a distinct ID.
type NetworkID string

// Limits enforced by the network builder.
const (
	// MaxArity is the largest number of facts a tuple carries.
	// Joins and group-bys whose output would exceed it are rejected at build time.
	MaxArity = 4

	// MaxJoiners limits the indexed joiners per join or exists node.
	// Each joiner adds one indexer level; deeper chains rarely pay off.
	MaxJoiners = 8

	// MaxCollectorsPerGroup limits collectors on a single group-by.
	// Output arity already caps keys plus collectors at MaxArity.
	MaxCollectorsPerGroup = MaxArity

	// MaxScoreLevels bounds bendable and composite score definitions.
	MaxScoreLevels = 16
)
