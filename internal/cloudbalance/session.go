package cloudbalance

import (
	"fmt"

	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
)

// Move reassigns one process. Computer is an index into Problem.Computers,
// or -1 to unassign.
type Move struct {
	Process  int
	Computer int
}

func (m Move) String() string {
	if m.Computer < 0 {
		return fmt.Sprintf("process[%d] -> unassigned", m.Process)
	}
	return fmt.Sprintf("process[%d] -> computer[%d]", m.Process, m.Computer)
}

// Session is a problem loaded into its own network. Not safe for concurrent use.
type Session struct {
	problem *Problem
	net     *network.Network
}

// NewSession builds a network for constraints and inserts every fact of problem.
// The session mutates problem's processes as moves are applied.
func NewSession(problem *Problem, constraints network.ConstraintProvider, opts network.Options) (*Session, error) {
	n, err := network.Build(Definition, constraints, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build network: %w", err)
	}
	for _, fact := range problem.Facts() {
		if err := n.InsertFact(fact); err != nil {
			return nil, fmt.Errorf("failed to insert %v: %w", fact, err)
		}
	}
	return &Session{problem: problem, net: n}, nil
}

// Network returns the session's network.
func (s *Session) Network() *network.Network { return s.net }

// Problem returns the problem the session mutates.
func (s *Session) Problem() *Problem { return s.problem }

// Score returns the current score.
func (s *Session) Score() (score.Score, error) { return s.net.Score() }

// Do applies m and returns the move that reverts it.
func (s *Session) Do(m Move) (Move, error) {
	if m.Process < 0 || m.Process >= len(s.problem.Processes) {
		return Move{}, fmt.Errorf("move %s: process index out of range", m)
	}
	if m.Computer >= len(s.problem.Computers) {
		return Move{}, fmt.Errorf("move %s: computer index out of range", m)
	}
	p := s.problem.Processes[m.Process]
	undo := Move{Process: m.Process, Computer: -1}
	if p.Computer != nil {
		undo.Computer = s.problem.ComputerIndex(p.Computer.ID)
	}
	if m.Computer < 0 {
		p.Computer, p.ComputerID = nil, nil
	} else {
		c := s.problem.Computers[m.Computer]
		id := c.ID
		p.Computer, p.ComputerID = c, &id
	}
	if err := s.net.UpdateFact(p); err != nil {
		return Move{}, err
	}
	return undo, nil
}

// ChangeService moves a process to another service. Service pairs are
// precomputed, so the network is refreshed rather than updated.
func (s *Session) ChangeService(process int, service string) error {
	if process < 0 || process >= len(s.problem.Processes) {
		return fmt.Errorf("change service of process[%d]: index out of range", process)
	}
	p := s.problem.Processes[process]
	p.Service = service
	if err := s.net.RefreshFact(p); err != nil {
		return fmt.Errorf("failed to refresh %v: %w", p, err)
	}
	return nil
}

// Evaluate returns the score m would produce and leaves the session unchanged.
func (s *Session) Evaluate(m Move) (score.Score, error) {
	undo, err := s.Do(m)
	if err != nil {
		return score.Score{}, err
	}
	sc, err := s.Score()
	if err != nil {
		return score.Score{}, err
	}
	if _, err := s.Do(undo); err != nil {
		return score.Score{}, err
	}
	return sc, nil
}
