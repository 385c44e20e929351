// Package network implements the incremental constraint evaluation engine.
//
// Constraints are declared as streams (ForEach, Filter, Join, GroupBy, ...)
// on a Factory and compiled by Build into a DAG of nodes. The resulting
// Network receives fact-level insert/update/retract calls and keeps a
// running Score up to date by propagating only the tuples whose membership
// in a match changed.
//
// A Network is single-threaded. Run one instance per goroutine.
package network
