package cloudbalance

import (
	"math/rand"
	"testing"

	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/verify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assign(p *Process, c *Computer) *Process {
	id := c.ID
	p.Computer, p.ComputerID = c, &id
	return p
}

func TestConstraints_RequiredCPU(t *testing.T) {
	v := verify.New(Definition, Constraints{})
	c := &Computer{ID: 1, CPUPower: 10, Memory: 100, NetworkBandwidth: 100, Cost: 5}
	a := v.That(Ref(RequiredCPU)).Given(c,
		assign(&Process{ID: 1, RequiredCPU: 6}, c),
		assign(&Process{ID: 2, RequiredCPU: 7}, c))
	require.NoError(t, a.PenalizesBy(3))
	require.NoError(t, a.IndictsWith(c))

	a = v.That(Ref(RequiredCPU)).Given(c, assign(&Process{ID: 1, RequiredCPU: 6}, c))
	require.NoError(t, a.HasNoImpact())
}

func TestConstraints_RequiredMemoryAndNetwork(t *testing.T) {
	v := verify.New(Definition, Constraints{})
	c := &Computer{ID: 1, CPUPower: 100, Memory: 4, NetworkBandwidth: 2}
	facts := []any{c, assign(&Process{ID: 1, RequiredMemory: 5, RequiredNetwork: 1}, c)}
	require.NoError(t, v.That(Ref(RequiredMemory)).Given(facts...).PenalizesBy(1))
	require.NoError(t, v.That(Ref(RequiredNetwork)).Given(facts...).HasNoImpact())
}

func TestConstraints_ServiceConflict(t *testing.T) {
	v := verify.New(Definition, Constraints{})
	c1, c2 := &Computer{ID: 1, CPUPower: 100, Memory: 100, NetworkBandwidth: 100}, &Computer{ID: 2}
	a := v.That(Ref(ServiceConflict)).Given(c1, c2,
		assign(&Process{ID: 1, Service: "db"}, c1),
		assign(&Process{ID: 2, Service: "db"}, c1),
		assign(&Process{ID: 3, Service: "db"}, c2),
		assign(&Process{ID: 4}, c1),
		assign(&Process{ID: 5}, c1))
	require.NoError(t, a.Penalizes(1))
}

func TestConstraints_UnassignedAndCost(t *testing.T) {
	v := verify.New(Definition, Constraints{})
	used := &Computer{ID: 1, CPUPower: 10, Memory: 10, NetworkBandwidth: 10, Cost: 300}
	idle := &Computer{ID: 2, Cost: 1000}
	facts := []any{used, idle,
		assign(&Process{ID: 1}, used),
		assign(&Process{ID: 2}, used),
		&Process{ID: 3}}

	require.NoError(t, v.That(Ref(UnassignedProcess)).Given(facts...).Penalizes(1))
	require.NoError(t, v.That(Ref(ComputerCost)).Given(facts...).PenalizesBy(300))

	_, err := v.That(Ref(UnusedComputerBias)).Given(facts...).MatchWeightTotal()
	assert.Error(t, err, "zero-weight constraint should not be built")
}

func TestConstraints_WeightOverride(t *testing.T) {
	two, err := Definition.Of(0, 0, 2)
	require.NoError(t, err)
	v := verify.New(Definition, Constraints{Weights: Weights{UnusedComputerBias: two}})
	idle := &Computer{ID: 2, Cost: 1000}
	a := v.That(Ref(UnusedComputerBias)).Given(idle)
	require.NoError(t, a.Rewards(1))

	want, err := Definition.Of(0, 0, 2)
	require.NoError(t, err)
	require.NoError(t, v.All().Given(idle).Scores(want))
}

func TestSession_DoAndEvaluate(t *testing.T) {
	c := &Computer{ID: 1, CPUPower: 4, Memory: 4, NetworkBandwidth: 4, Cost: 10}
	p := &Problem{
		Computers: []*Computer{c},
		Processes: []*Process{{ID: 1, RequiredCPU: 3}, {ID: 2, RequiredCPU: 3}},
	}
	s, err := NewSession(p, Constraints{}, network.Options{})
	require.NoError(t, err)

	sc, err := s.Score()
	require.NoError(t, err)
	assert.Equal(t, "0hard/-2medium/0soft", sc.String())

	eval, err := s.Evaluate(Move{Process: 0, Computer: 0})
	require.NoError(t, err)
	assert.Equal(t, "0hard/-1medium/-10soft", eval.String())
	sc, err = s.Score()
	require.NoError(t, err)
	assert.Equal(t, "0hard/-2medium/0soft", sc.String(), "Evaluate must leave the session unchanged")

	_, err = s.Do(Move{Process: 0, Computer: 0})
	require.NoError(t, err)
	undo, err := s.Do(Move{Process: 1, Computer: 0})
	require.NoError(t, err)
	assert.Equal(t, Move{Process: 1, Computer: -1}, undo)
	sc, err = s.Score()
	require.NoError(t, err)
	assert.Equal(t, "-2hard/0medium/-10soft", sc.String())

	_, err = s.Do(Move{Process: 5, Computer: 0})
	assert.Error(t, err)
}

func TestSession_RandomMovesMatchRecalculation(t *testing.T) {
	problem := Generate(GeneratorConfig{Computers: 5, Processes: 30, Services: 3, Assigned: 0.5}, 42)
	s, err := NewSession(problem.Clone(), Constraints{}, network.Options{Assert: true, Policy: network.MatchScoreOnly})
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(7))
	for i, m := range RandomMoves(problem, rng, 300) {
		_, err := s.Do(m)
		require.NoError(t, err, "move %d %s", i, m)
		if i%25 == 0 {
			_, err := s.Score()
			require.NoError(t, err, "score after move %d", i)
		}
	}
	_, err = s.Score()
	require.NoError(t, err)
}

func TestSession_ChangeServiceRefreshesPairs(t *testing.T) {
	c := &Computer{ID: 1, CPUPower: 10, Memory: 10, NetworkBandwidth: 10}
	p := &Problem{
		Computers: []*Computer{c},
		Processes: []*Process{
			assign(&Process{ID: 1, Service: "db"}, c),
			assign(&Process{ID: 2, Service: "web"}, c),
		},
	}
	s, err := NewSession(p, Constraints{}, network.Options{Assert: true})
	require.NoError(t, err)
	sc, err := s.Score()
	require.NoError(t, err)
	assert.Equal(t, "0hard/0medium/0soft", sc.String())

	require.NoError(t, s.ChangeService(1, "db"))
	sc, err = s.Score()
	require.NoError(t, err)
	assert.Equal(t, "-1hard/0medium/0soft", sc.String())

	// moves re-check the precomputed pair against the new assignment
	_, err = s.Do(Move{Process: 1, Computer: -1})
	require.NoError(t, err)
	sc, err = s.Score()
	require.NoError(t, err)
	assert.Equal(t, "0hard/-1medium/0soft", sc.String())

	assert.Error(t, s.ChangeService(7, "db"))
}

func TestProblem_CloneIsIndependent(t *testing.T) {
	p := Generate(GeneratorConfig{Computers: 2, Processes: 4, Assigned: 1}, 1)
	c := p.Clone()
	for i := range p.Processes {
		require.NotSame(t, p.Processes[i], c.Processes[i])
		if p.Processes[i].Computer != nil {
			assert.Equal(t, p.Processes[i].Computer.ID, c.Processes[i].Computer.ID)
			assert.NotSame(t, p.Processes[i].Computer, c.Processes[i].Computer)
		}
	}
	require.NoError(t, c.Link())
}

func TestGenerate_Reproducible(t *testing.T) {
	cfg := GeneratorConfig{Computers: 3, Processes: 10, Services: 2, Assigned: 0.3}
	a, b := Generate(cfg, 9), Generate(cfg, 9)
	require.Len(t, a.Processes, 10)
	for i := range a.Processes {
		assert.Equal(t, a.Processes[i].RequiredCPU, b.Processes[i].RequiredCPU)
		assert.Equal(t, a.Processes[i].ComputerID, b.Processes[i].ComputerID)
	}
}
