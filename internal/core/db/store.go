package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

/*
 * Problem and score snapshot storage.
 *
 * A problem is written once (computers + processes) and its process
 * assignments may be rewritten after a run. Snapshots record the score of a
 * run at a step, with per-constraint totals as JSON. Networks themselves are
 * never persisted: a loaded problem is scored by building a fresh network.
 *
 * Timestamps are stored as RFC3339 text on both databases.
 */

// ProblemInfo describes a stored problem.
type ProblemInfo struct {
	ID        types.ProblemID
	Name      string
	CreatedAt time.Time
}

// ConstraintTotal is the stored form of one constraint's share of a score.
type ConstraintTotal struct {
	Package string `json:"package"`
	Name    string `json:"name"`
	Score   string `json:"score"`
	Count   int    `json:"count"`
}

// Snapshot is a score recorded during a run.
type Snapshot struct {
	ID          types.SnapshotID
	RunID       types.RunID
	ProblemID   types.ProblemID
	Step        int
	Score       string
	Constraints []ConstraintTotal
	CreatedAt   time.Time
}

// Store persists problems and snapshots through named queries.
type Store struct {
	db      *sqlx.DB
	queries *Queries
}

// NewStore loads the named queries for database.
func NewStore(database *sqlx.DB) (*Store, error) {
	q, err := LoadQueries(database)
	if err != nil {
		return nil, err
	}
	return &Store{db: database, queries: q}, nil
}

func (s *Store) transact(ctx context.Context, fn func(q *Queries) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(s.queries.WithTx(tx)); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// SaveProblem stores p under a new id.
func (s *Store) SaveProblem(ctx context.Context, name string, p *cloudbalance.Problem) (types.ProblemID, error) {
	id := types.NewProblemID()
	now := time.Now().UTC().Format(time.RFC3339)

	err := s.transact(ctx, func(q *Queries) error {
		if _, err := q.Exec(ctx, "insert-problem", string(id), name, now); err != nil {
			return fmt.Errorf("failed to insert problem: %w", err)
		}
		for _, c := range p.Computers {
			if _, err := q.Exec(ctx, "insert-computer", string(id), c.ID, c.Name, c.CPUPower, c.Memory, c.NetworkBandwidth, c.Cost); err != nil {
				return fmt.Errorf("failed to insert %s: %w", c, err)
			}
		}
		for _, proc := range p.Processes {
			if _, err := q.Exec(ctx, "insert-process", string(id), proc.ID, proc.RequiredCPU, proc.RequiredMemory, proc.RequiredNetwork, proc.Service, proc.ComputerID); err != nil {
				return fmt.Errorf("failed to insert %s: %w", proc, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

type problemRow struct {
	ID        string `db:"problem_id"`
	Name      string `db:"name"`
	CreatedAt string `db:"created_at"`
}

func (r problemRow) info() ProblemInfo {
	ts, _ := time.Parse(time.RFC3339, r.CreatedAt)
	return ProblemInfo{ID: types.ProblemID(r.ID), Name: r.Name, CreatedAt: ts}
}

// GetProblem returns the description of a stored problem.
func (s *Store) GetProblem(ctx context.Context, id types.ProblemID) (ProblemInfo, error) {
	var row problemRow
	err := s.queries.Get(ctx, "get-problem", &row, string(id))
	if errors.Is(err, sql.ErrNoRows) {
		return ProblemInfo{}, fmt.Errorf("%w: %s", types.ErrProblemNotFound, id)
	}
	if err != nil {
		return ProblemInfo{}, fmt.Errorf("database error: %w", err)
	}
	return row.info(), nil
}

// ListProblems returns every stored problem, oldest first.
func (s *Store) ListProblems(ctx context.Context) ([]ProblemInfo, error) {
	var rows []problemRow
	if err := s.queries.Select(ctx, "list-problems", &rows); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	infos := make([]ProblemInfo, len(rows))
	for i, r := range rows {
		infos[i] = r.info()
	}
	return infos, nil
}

// LoadProblem reads a stored problem and links process assignments.
func (s *Store) LoadProblem(ctx context.Context, id types.ProblemID) (*cloudbalance.Problem, error) {
	if _, err := s.GetProblem(ctx, id); err != nil {
		return nil, err
	}

	p := &cloudbalance.Problem{}
	if err := s.queries.Select(ctx, "list-computers", &p.Computers, string(id)); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := s.queries.Select(ctx, "list-processes", &p.Processes, string(id)); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	if err := p.Link(); err != nil {
		return nil, fmt.Errorf("problem %s: %w", id, err)
	}
	return p, nil
}

// SaveAssignments rewrites the computer of every process of a stored problem.
func (s *Store) SaveAssignments(ctx context.Context, id types.ProblemID, p *cloudbalance.Problem) error {
	return s.transact(ctx, func(q *Queries) error {
		for _, proc := range p.Processes {
			res, err := q.Exec(ctx, "update-process-assignment", proc.ComputerID, string(id), proc.ID)
			if err != nil {
				return fmt.Errorf("failed to update %s: %w", proc, err)
			}
			if n, err := res.RowsAffected(); err == nil && n == 0 {
				return fmt.Errorf("%w: %s has no %s", types.ErrProblemNotFound, id, proc)
			}
		}
		return nil
	})
}

// NewSnapshot captures the current score of n.
// Per-constraint totals are included when n records matches.
func NewSnapshot(run types.RunID, problem types.ProblemID, step int, n *network.Network) (Snapshot, error) {
	sc, err := n.Score()
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{
		ID:        types.NewSnapshotID(),
		RunID:     run,
		ProblemID: problem,
		Step:      step,
		Score:     sc.String(),
		CreatedAt: time.Now().UTC(),
	}
	if n.Policy() == network.MatchDisabled {
		return snap, nil
	}
	totals, err := n.ConstraintMatchTotals()
	if err != nil {
		return Snapshot{}, err
	}
	for _, t := range totals {
		snap.Constraints = append(snap.Constraints, ConstraintTotal{
			Package: t.Constraint.Package,
			Name:    t.Constraint.Name,
			Score:   t.Score.String(),
			Count:   t.Count,
		})
	}
	return snap, nil
}

// SaveSnapshot stores snap.
func (s *Store) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	constraints := snap.Constraints
	if constraints == nil {
		constraints = []ConstraintTotal{}
	}
	payload, err := json.Marshal(constraints)
	if err != nil {
		return fmt.Errorf("failed to encode constraint totals: %w", err)
	}
	_, err = s.queries.Exec(ctx, "insert-score-snapshot",
		string(snap.ID), string(snap.RunID), string(snap.ProblemID), snap.Step,
		snap.Score, string(payload), snap.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return nil
}

type snapshotRow struct {
	ID          string `db:"snapshot_id"`
	RunID       string `db:"run_id"`
	ProblemID   string `db:"problem_id"`
	Step        int    `db:"step"`
	Score       string `db:"score"`
	Constraints string `db:"constraints"`
	CreatedAt   string `db:"created_at"`
}

// ListSnapshots returns the snapshots of run ordered by step.
func (s *Store) ListSnapshots(ctx context.Context, run types.RunID) ([]Snapshot, error) {
	var rows []snapshotRow
	if err := s.queries.Select(ctx, "list-score-snapshots", &rows, string(run)); err != nil {
		return nil, fmt.Errorf("database error: %w", err)
	}
	snaps := make([]Snapshot, 0, len(rows))
	for _, r := range rows {
		snap := Snapshot{
			ID:        types.SnapshotID(r.ID),
			RunID:     types.RunID(r.RunID),
			ProblemID: types.ProblemID(r.ProblemID),
			Step:      r.Step,
			Score:     r.Score,
		}
		if err := json.Unmarshal([]byte(r.Constraints), &snap.Constraints); err != nil {
			return nil, fmt.Errorf("snapshot %s: bad constraint totals: %w", r.ID, err)
		}
		snap.CreatedAt, _ = time.Parse(time.RFC3339Nano, r.CreatedAt)
		snaps = append(snaps, snap)
	}
	return snaps, nil
}
