package cloudbalance

import (
	"github.com/solatis/scorekeeper/internal/collect"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
)

// Package groups the constraints in analyses and snapshots.
const Package = "cloudbalance"

// Constraint names.
const (
	RequiredCPU        = "required cpu power"
	RequiredMemory     = "required memory"
	RequiredNetwork    = "required network bandwidth"
	ServiceConflict    = "service co-location"
	UnassignedProcess  = "unassigned process"
	ComputerCost       = "computer cost"
	UnusedComputerBias = "unused computer"
)

// Definition is the score used by the constraints: hard capacity and
// conflicts, medium assignment, soft cost.
var Definition = score.HardMediumSoft(score.KindLong)

// Ref returns the reference of a constraint declared by Constraints.
func Ref(name string) network.ConstraintRef {
	return network.ConstraintRef{Package: Package, Name: name}
}

// Weights overrides constraint weights by name; missing names keep defaults.
// A zero weight disables the constraint.
type Weights map[string]score.Score

// Constraints declares the cloud balancing rules.
type Constraints struct {
	Weights Weights
}

func (c Constraints) weight(name string, def score.Score) score.Score {
	if w, ok := c.Weights[name]; ok {
		return w
	}
	return def
}

func process(f network.Facts) *Process { return f.A().(*Process) }

func assignedComputer(f network.Facts) any { return process(f).Computer }

func isAssigned(f network.Facts) bool { return process(f).Computer != nil }

func isUnassigned(f network.Facts) bool { return process(f).Computer == nil }

func processID(f network.Facts) any { return process(f).ID }

func processService(f network.Facts) any { return process(f).Service }

func hasService(f network.Facts) bool { return process(f).Service != "" }

func sameComputer(f network.Facts) bool {
	a, b := f.A().(*Process), f.B().(*Process)
	return a.Computer != nil && a.Computer == b.Computer
}

// servicePeers pairs processes of the same service. Services only change
// through Session.ChangeService, so the pairing is precomputed and moves
// re-check just the computers.
func servicePeers(pf *network.Factory) *network.Stream {
	withService := network.ForEach[*Process](pf).Filter(hasService)
	return withService.Join(withService,
		network.EqualOn(processService),
		network.LessThan(processID, processID))
}

func computerSelf(f network.Facts) any { return f.A() }

func overCapacity(capacity func(*Computer) int64) func(network.Facts) bool {
	return func(f network.Facts) bool {
		return f.B().(int64) > capacity(f.A().(*Computer))
	}
}

func excess(capacity func(*Computer) int64) func(network.Facts) int64 {
	return func(f network.Facts) int64 {
		return f.B().(int64) - capacity(f.A().(*Computer))
	}
}

// DefineConstraints implements network.ConstraintProvider.
func (c Constraints) DefineConstraints(f *network.Factory) {
	f.SetPackage(Package)
	def := f.Definition()
	hard := def.OneHard()
	medium, _ := def.Of(0, 1, 0)
	soft := def.OneSoft()

	processes := network.ForEach[*Process](f)
	assigned := processes.Filter(isAssigned)

	capacity := []struct {
		name     string
		required func(network.Facts) int64
		capacity func(*Computer) int64
	}{
		{RequiredCPU, func(f network.Facts) int64 { return process(f).RequiredCPU },
			func(c *Computer) int64 { return c.CPUPower }},
		{RequiredMemory, func(f network.Facts) int64 { return process(f).RequiredMemory },
			func(c *Computer) int64 { return c.Memory }},
		{RequiredNetwork, func(f network.Facts) int64 { return process(f).RequiredNetwork },
			func(c *Computer) int64 { return c.NetworkBandwidth }},
	}
	for _, cc := range capacity {
		assigned.GroupByKey(assignedComputer, collect.Sum(cc.required)).
			Filter(overCapacity(cc.capacity)).
			Penalize(c.weight(cc.name, hard)).
			WithMatchWeight(excess(cc.capacity)).
			IndictWith(func(f network.Facts) []any { return []any{f.A()} }).
			As(cc.name)
	}

	f.Precompute(servicePeers).
		Filter(sameComputer).
		Penalize(c.weight(ServiceConflict, hard)).
		As(ServiceConflict)

	processes.Filter(isUnassigned).
		Penalize(c.weight(UnassignedProcess, medium)).
		As(UnassignedProcess)

	network.ForEach[*Computer](f).
		IfExists(assigned, network.Equal(computerSelf, assignedComputer)).
		Penalize(c.weight(ComputerCost, soft)).
		WithMatchWeight(func(f network.Facts) int64 { return f.A().(*Computer).Cost }).
		As(ComputerCost)

	// zero weight unless Weights sets one
	network.ForEach[*Computer](f).
		IfNotExists(assigned, network.Equal(computerSelf, assignedComputer)).
		Reward(c.weight(UnusedComputerBias, def.Zero())).
		As(UnusedComputerBias)
}
