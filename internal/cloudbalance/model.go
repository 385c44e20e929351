// Package cloudbalance is a sample planning domain: assign processes to
// computers without exceeding capacity, at minimal computer cost.
package cloudbalance

import (
	"fmt"
)

// Computer is a machine processes can be assigned to.
type Computer struct {
	ID               int64  `db:"id" json:"id"`
	Name             string `db:"name" json:"name"`
	CPUPower         int64  `db:"cpu_power" json:"cpu_power"`
	Memory           int64  `db:"memory" json:"memory"`
	NetworkBandwidth int64  `db:"network_bandwidth" json:"network_bandwidth"`
	Cost             int64  `db:"cost" json:"cost"`
}

func (c *Computer) String() string { return fmt.Sprintf("computer-%d", c.ID) }

// Process needs resources on exactly one computer. Computer is nil while unassigned.
type Process struct {
	ID              int64  `db:"id" json:"id"`
	RequiredCPU     int64  `db:"required_cpu" json:"required_cpu"`
	RequiredMemory  int64  `db:"required_memory" json:"required_memory"`
	RequiredNetwork int64  `db:"required_network" json:"required_network"`
	Service         string `db:"service" json:"service"`
	ComputerID      *int64 `db:"computer_id" json:"computer_id,omitempty"`

	Computer *Computer `db:"-" json:"-"`
}

func (p *Process) String() string { return fmt.Sprintf("process-%d", p.ID) }

// Problem is one planning instance.
type Problem struct {
	Computers []*Computer
	Processes []*Process
}

// Link resolves Process.ComputerID into Process.Computer.
func (p *Problem) Link() error {
	byID := make(map[int64]*Computer, len(p.Computers))
	for _, c := range p.Computers {
		byID[c.ID] = c
	}
	for _, proc := range p.Processes {
		proc.Computer = nil
		if proc.ComputerID == nil {
			continue
		}
		c, ok := byID[*proc.ComputerID]
		if !ok {
			return fmt.Errorf("process %d references unknown computer %d", proc.ID, *proc.ComputerID)
		}
		proc.Computer = c
	}
	return nil
}

// Clone deep-copies the problem, so a clone can be mutated by its own network.
func (p *Problem) Clone() *Problem {
	c := &Problem{
		Computers: make([]*Computer, len(p.Computers)),
		Processes: make([]*Process, len(p.Processes)),
	}
	index := make(map[*Computer]*Computer, len(p.Computers))
	for i, comp := range p.Computers {
		cp := *comp
		c.Computers[i] = &cp
		index[comp] = &cp
	}
	for i, proc := range p.Processes {
		cp := *proc
		cp.Computer = index[proc.Computer]
		if proc.ComputerID != nil {
			id := *proc.ComputerID
			cp.ComputerID = &id
		}
		c.Processes[i] = &cp
	}
	return c
}

// Facts returns every computer and process, computers first.
func (p *Problem) Facts() []any {
	facts := make([]any, 0, len(p.Computers)+len(p.Processes))
	for _, c := range p.Computers {
		facts = append(facts, c)
	}
	for _, proc := range p.Processes {
		facts = append(facts, proc)
	}
	return facts
}

// ComputerIndex returns the position of the computer with id, or -1.
func (p *Problem) ComputerIndex(id int64) int {
	for i, c := range p.Computers {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// ProcessIndex returns the position of the process with id, or -1.
func (p *Problem) ProcessIndex(id int64) int {
	for i, proc := range p.Processes {
		if proc.ID == id {
			return i
		}
	}
	return -1
}
