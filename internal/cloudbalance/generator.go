package cloudbalance

import (
	"math/rand"
)

// GeneratorConfig sizes a random problem.
type GeneratorConfig struct {
	Computers int
	Processes int
	Services  int
	// Assigned is the fraction of processes given a random initial computer.
	Assigned float64
}

var (
	cpuChoices     = []int64{6, 12, 24, 48}
	memoryChoices  = []int64{4, 8, 16, 32}
	networkChoices = []int64{6, 12, 24, 48}
)

// Generate builds a reproducible random problem from seed.
func Generate(cfg GeneratorConfig, seed int64) *Problem {
	rng := rand.New(rand.NewSource(seed))
	p := &Problem{}
	for i := 0; i < cfg.Computers; i++ {
		tier := rng.Intn(len(cpuChoices))
		p.Computers = append(p.Computers, &Computer{
			ID:               int64(i + 1),
			Name:             (&Computer{ID: int64(i + 1)}).String(),
			CPUPower:         cpuChoices[tier],
			Memory:           memoryChoices[tier],
			NetworkBandwidth: networkChoices[rng.Intn(len(networkChoices))],
			Cost:             int64(tier+1)*500 + rng.Int63n(200),
		})
	}
	for i := 0; i < cfg.Processes; i++ {
		proc := &Process{
			ID:              int64(i + 1),
			RequiredCPU:     1 + rng.Int63n(8),
			RequiredMemory:  1 + rng.Int63n(6),
			RequiredNetwork: 1 + rng.Int63n(8),
		}
		if cfg.Services > 0 {
			proc.Service = string(rune('a' + rng.Intn(cfg.Services)))
		}
		if len(p.Computers) > 0 && rng.Float64() < cfg.Assigned {
			c := p.Computers[rng.Intn(len(p.Computers))]
			id := c.ID
			proc.Computer, proc.ComputerID = c, &id
		}
		p.Processes = append(p.Processes, proc)
	}
	return p
}

// RandomMoves returns n change moves drawn from rng. One in every
// len(Computers)+1 moves unassigns.
func RandomMoves(p *Problem, rng *rand.Rand, n int) []Move {
	if len(p.Processes) == 0 {
		return nil
	}
	moves := make([]Move, n)
	for i := range moves {
		moves[i] = Move{
			Process:  rng.Intn(len(p.Processes)),
			Computer: rng.Intn(len(p.Computers)+1) - 1,
		}
	}
	return moves
}
