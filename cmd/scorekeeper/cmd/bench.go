package cmd

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/core/metrics"
	"github.com/solatis/scorekeeper/internal/core/runner"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

var benchCmd = &cobra.Command{
	Use:   "bench",
	Short: "Hill-climb a problem on move threads and report throughput",
	Long: `Bench evaluates random change moves on several move threads, each with
its own network, and applies the best improving move of every step. It reports
moves per second and the score reached. With --save on a stored problem the
final assignment and a snapshot per step are written back.`,
	RunE: runBench,
}

func init() {
	rootCmd.AddCommand(benchCmd)
	benchCmd.Flags().String("problem", "", "stored problem id (generated from config when empty)")
	benchCmd.Flags().Int("move-threads", 0, "number of move threads")
	benchCmd.Flags().Int("steps", 0, "number of steps")
	benchCmd.Flags().Int("moves", 0, "candidate moves per step")
	benchCmd.Flags().Int64("seed", 0, "random seed")
	benchCmd.Flags().String("match-policy", "", "match policy (disabled, score_only, full)")
	benchCmd.Flags().Bool("assert", false, "verify every score against a rebuilt network")
	benchCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address (e.g. :9090)")
	benchCmd.Flags().Bool("save", false, "store snapshots and the final assignment (stored problems only)")
}

func runBench(cmd *cobra.Command, args []string) error {
	cfg, log, err := loadConfig(cmd, map[string]string{
		"runner.move_threads":  "move-threads",
		"runner.steps":         "steps",
		"runner.moves":         "moves",
		"runner.seed":          "seed",
		"network.match_policy": "match-policy",
		"network.assert":       "assert",
	})
	if err != nil {
		return err
	}
	problemID, _ := cmd.Flags().GetString("problem")
	metricsAddr, _ := cmd.Flags().GetString("metrics-addr")
	save, _ := cmd.Flags().GetBool("save")

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := loadProblem(ctx, cfg, problemID, log)
	if err != nil {
		return err
	}
	defer src.close()
	if save && src.store == nil {
		return fmt.Errorf("--save requires --problem")
	}

	m := metrics.New()
	if metricsAddr != "" {
		srv := &http.Server{Addr: metricsAddr, Handler: m.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics", "addr", metricsAddr)
	}

	opts := cfg.NetworkOptions()
	opts.Observer = m
	opts.Logger = log

	start := time.Now()
	r, err := runner.New(src.problem, runner.Config{
		Threads:     cfg.Runner.MoveThreads,
		Constraints: cloudbalance.Constraints{},
		Options:     opts,
		Moves:       m,
		Logger:      log,
	})
	if err != nil {
		return err
	}
	log.Info("networks built", "threads", cfg.Runner.MoveThreads, "duration", time.Since(start))

	run := types.NewRunID()
	onStep := func(step int, s *cloudbalance.Session) error {
		n := s.Network()
		if n.Policy() >= network.MatchScoreOnly {
			if totals, err := n.ConstraintMatchTotals(); err == nil {
				m.SampleMatches(totals)
			}
		}
		if !save {
			return nil
		}
		snap, err := db.NewSnapshot(run, src.id, step, n)
		if err != nil {
			return err
		}
		return src.store.SaveSnapshot(ctx, snap)
	}

	start = time.Now()
	rng := rand.New(rand.NewSource(cfg.Runner.Seed))
	sum, err := r.Climb(ctx, cfg.Runner.Steps, cfg.Runner.Moves, rng, onStep)
	elapsed := time.Since(start)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if save {
		if err := src.store.SaveAssignments(context.WithoutCancel(ctx), src.id, src.problem); err != nil {
			return err
		}
		log.Info("assignment stored", "problem_id", src.id, "run_id", run)
	}

	rate := 0.0
	if elapsed > 0 {
		rate = float64(sum.Evaluated) / elapsed.Seconds()
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "steps:          %d (%d moves applied)\n", sum.Steps, sum.Applied)
	fmt.Fprintf(out, "moves:          %d in %s (%.0f/s)\n", sum.Evaluated, elapsed.Round(time.Millisecond), rate)
	fmt.Fprintf(out, "initial score:  %s\n", sum.Initial)
	fmt.Fprintf(out, "final score:    %s\n", sum.Final)
	return nil
}
