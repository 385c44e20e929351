// Package runner evaluates candidate moves on several goroutines.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/score"
)

/*
 * Move threads.
 *
 * A network is single-threaded, so each move thread owns a session built on
 * its own deep copy of the problem. Workers stay in lockstep with the main
 * session: a move chosen for the step is applied to every copy.
 *
 * Step workflow:
 *   1. Split candidate moves round-robin across workers
 *   2. Each worker evaluates its share (do, score, undo), checking ctx
 *      between moves only
 *   3. The best score wins; ties go to the lowest candidate index so a run
 *      is reproducible for any thread count
 *   4. Climb applies the winner everywhere if it improves the main score
 */

// MoveObserver records move evaluation latency.
type MoveObserver interface {
	ObserveMove(start time.Time)
}

// Config configures a Runner.
type Config struct {
	Threads     int
	Constraints network.ConstraintProvider
	Options     network.Options
	Moves       MoveObserver
	Logger      *slog.Logger
}

// Result is the best candidate of one evaluation round.
type Result struct {
	Move      cloudbalance.Move
	Index     int
	Score     score.Score
	Evaluated int
}

// Summary describes a finished Climb.
type Summary struct {
	Initial   score.Score
	Final     score.Score
	Steps     int
	Applied   int
	Evaluated int
}

// Runner owns a main session and one session per move thread.
type Runner struct {
	cfg     Config
	log     *slog.Logger
	main    *cloudbalance.Session
	workers []*cloudbalance.Session
}

// New builds the main session on problem and a session per thread on copies.
func New(problem *cloudbalance.Problem, cfg Config) (*Runner, error) {
	if cfg.Threads <= 0 {
		return nil, fmt.Errorf("move threads must be positive, got %d", cfg.Threads)
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	main, err := cloudbalance.NewSession(problem, cfg.Constraints, cfg.Options)
	if err != nil {
		return nil, err
	}
	r := &Runner{cfg: cfg, log: log, main: main, workers: make([]*cloudbalance.Session, cfg.Threads)}

	// Worker networks skip assert mode; the main session still verifies applied moves.
	workerOpts := cfg.Options
	workerOpts.Assert = false

	g := new(errgroup.Group)
	for i := range r.workers {
		i := i
		g.Go(func() error {
			s, err := cloudbalance.NewSession(problem.Clone(), cfg.Constraints, workerOpts)
			if err != nil {
				return fmt.Errorf("move thread %d: %w", i, err)
			}
			r.workers[i] = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	log.Debug("move threads ready", "threads", cfg.Threads, "network_id", main.Network().ID())
	return r, nil
}

// Session returns the main session.
func (r *Runner) Session() *cloudbalance.Session { return r.main }

// Evaluate scores every move and returns the best. Sessions are unchanged.
func (r *Runner) Evaluate(ctx context.Context, moves []cloudbalance.Move) (Result, error) {
	if len(moves) == 0 {
		return Result{Index: -1}, nil
	}

	best := make([]Result, len(r.workers))
	g, gCtx := errgroup.WithContext(ctx)
	for w, session := range r.workers {
		w, session := w, session // Capture loop variables

		g.Go(func() error {
			res := Result{Index: -1}
			for i := w; i < len(moves); i += len(r.workers) {
				if err := gCtx.Err(); err != nil {
					return err
				}
				start := time.Now()
				sc, err := session.Evaluate(moves[i])
				if err != nil {
					return fmt.Errorf("move thread %d: %s: %w", w, moves[i], err)
				}
				if r.cfg.Moves != nil {
					r.cfg.Moves.ObserveMove(start)
				}
				res.Evaluated++
				if res.Index < 0 || better(sc, i, res.Score, res.Index) {
					res.Move, res.Index, res.Score = moves[i], i, sc
				}
			}
			best[w] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, err
	}

	out := Result{Index: -1}
	for _, res := range best {
		out.Evaluated += res.Evaluated
		if res.Index < 0 {
			continue
		}
		if out.Index < 0 || better(res.Score, res.Index, out.Score, out.Index) {
			out.Move, out.Index, out.Score = res.Move, res.Index, res.Score
		}
	}
	return out, nil
}

func better(a score.Score, ai int, b score.Score, bi int) bool {
	c := a.Compare(b)
	return c > 0 || (c == 0 && ai < bi)
}

// Apply performs m on the main session and every worker.
func (r *Runner) Apply(m cloudbalance.Move) error {
	if _, err := r.main.Do(m); err != nil {
		return err
	}
	g := new(errgroup.Group)
	for w, session := range r.workers {
		w, session := w, session
		g.Go(func() error {
			if _, err := session.Do(m); err != nil {
				return fmt.Errorf("move thread %d: %w", w, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Climb runs steps rounds of n random candidate moves drawn from rng and
// applies each round's winner when it improves the score. onStep, if set,
// is called on the main session after every round.
func (r *Runner) Climb(ctx context.Context, steps, n int, rng *rand.Rand, onStep func(step int, s *cloudbalance.Session) error) (Summary, error) {
	initial, err := r.main.Score()
	if err != nil {
		return Summary{}, err
	}
	sum := Summary{Initial: initial, Final: initial}

	for step := 0; step < steps; step++ {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		moves := cloudbalance.RandomMoves(r.main.Problem(), rng, n)
		res, err := r.Evaluate(ctx, moves)
		if err != nil {
			return sum, err
		}
		sum.Steps++
		sum.Evaluated += res.Evaluated

		if res.Index >= 0 {
			if res.Score.Compare(sum.Final) > 0 {
				if err := r.Apply(res.Move); err != nil {
					return sum, err
				}
				current, err := r.main.Score()
				if err != nil {
					return sum, err
				}
				sum.Final = current
				sum.Applied++
				r.log.Debug("move applied", "step", step, "move", res.Move.String(), "score", current.String())
			}
		}

		if onStep != nil {
			if err := onStep(step, r.main); err != nil {
				return sum, err
			}
		}
	}
	return sum, nil
}
