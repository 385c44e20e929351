package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

func openTestDB(t *testing.T) *sqlx.DB {
	t.Helper()
	database, err := Open(context.Background(), "sqlite://"+filepath.Join(t.TempDir(), "scorekeeper.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	_, err = MigrateUp(context.Background(), database)
	require.NoError(t, err)
	return database
}

func testProblem() *cloudbalance.Problem {
	return cloudbalance.Generate(cloudbalance.GeneratorConfig{
		Computers: 4,
		Processes: 12,
		Services:  3,
		Assigned:  0.5,
	}, 11)
}

func TestDataSource(t *testing.T) {
	tests := []struct {
		url     string
		driver  string
		dsn     string
		wantErr string
	}{
		{url: "sqlite://scorekeeper.db", driver: "sqlite3", dsn: "file:scorekeeper.db?_busy_timeout=5000&_foreign_keys=on"},
		{url: "sqlite:///var/lib/sk.db?_busy_timeout=100", driver: "sqlite3", dsn: "file:/var/lib/sk.db?_busy_timeout=100&_foreign_keys=on"},
		{url: "postgres://sk@localhost:5432/sk?sslmode=disable", driver: "postgres", dsn: "postgres://sk@localhost:5432/sk?sslmode=disable"},
		{url: "sqlite://", wantErr: "no file path"},
		{url: "mysql://localhost/scorekeeper", wantErr: "unsupported database scheme"},
	}
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			driver, dsn, err := dataSource(tt.url)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.dsn, dsn)
		})
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	n, err := MigrateUp(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	statuses, err := MigrateStatus(ctx, database)
	require.NoError(t, err)
	require.NotEmpty(t, statuses)
	assert.Empty(t, Pending(statuses))
	for _, s := range statuses {
		assert.True(t, s.Applied, "migration %s not applied", s.ID)
		assert.NotNil(t, s.AppliedAt, "migration %s has no applied_at", s.ID)
	}
}

func TestMigrateStatus_Pending(t *testing.T) {
	ctx := context.Background()
	database, err := Open(ctx, "sqlite://"+filepath.Join(t.TempDir(), "fresh.db"))
	require.NoError(t, err)
	defer database.Close()

	statuses, err := MigrateStatus(ctx, database)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_initial_schema.sql"}, Pending(statuses))
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	ctx := context.Background()
	database := openTestDB(t)
	_, err := database.ExecContext(ctx, "UPDATE migrations SET checksum = 'edited'")
	require.NoError(t, err)

	_, err = MigrateUp(ctx, database)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch for migration 001_initial_schema.sql")
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\n-- more\nCREATE TABLE t (\n    id INTEGER -- trailing\n);\n\n-- index\nCREATE INDEX i ON t (id);\n")
	assert.Equal(t, []string{
		"CREATE TABLE t (\n    id INTEGER -- trailing\n)",
		"CREATE INDEX i ON t (id)",
	}, got)
	assert.Empty(t, splitStatements("-- only a comment\n"))
}

func TestLoadQueries_UnknownName(t *testing.T) {
	q, err := LoadQueries(openTestDB(t))
	require.NoError(t, err)

	_, err = q.Exec(context.Background(), "drop-everything")
	require.Error(t, err)
	assert.Equal(t, "query not found: drop-everything", err.Error())
}

func TestStore_ProblemRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	p := testProblem()
	id, err := store.SaveProblem(ctx, "small", p)
	require.NoError(t, err)

	infos, err := store.ListProblems(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, id, infos[0].ID)
	assert.Equal(t, "small", infos[0].Name)
	assert.False(t, infos[0].CreatedAt.IsZero())

	loaded, err := store.LoadProblem(ctx, id)
	require.NoError(t, err)
	require.Len(t, loaded.Computers, len(p.Computers))
	require.Len(t, loaded.Processes, len(p.Processes))

	for i, c := range p.Computers {
		assert.Equal(t, *c, *loaded.Computers[i])
	}
	for i, proc := range p.Processes {
		got := loaded.Processes[i]
		assert.Equal(t, proc.ID, got.ID)
		assert.Equal(t, proc.Service, got.Service)
		assert.Equal(t, proc.ComputerID, got.ComputerID)
		if proc.Computer == nil {
			assert.Nil(t, got.Computer)
		} else {
			require.NotNil(t, got.Computer)
			assert.Equal(t, proc.Computer.ID, got.Computer.ID)
		}
	}

	want, err := scoreOf(p)
	require.NoError(t, err)
	got, err := scoreOf(loaded)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func scoreOf(p *cloudbalance.Problem) (string, error) {
	s, err := cloudbalance.NewSession(p, cloudbalance.Constraints{}, network.Options{})
	if err != nil {
		return "", err
	}
	sc, err := s.Score()
	if err != nil {
		return "", err
	}
	return sc.String(), nil
}

func TestStore_SaveAssignments(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	p := testProblem()
	id, err := store.SaveProblem(ctx, "moves", p)
	require.NoError(t, err)

	s, err := cloudbalance.NewSession(p, cloudbalance.Constraints{}, network.Options{})
	require.NoError(t, err)
	_, err = s.Do(cloudbalance.Move{Process: 0, Computer: 2})
	require.NoError(t, err)
	_, err = s.Do(cloudbalance.Move{Process: 1, Computer: -1})
	require.NoError(t, err)
	require.NoError(t, store.SaveAssignments(ctx, id, p))

	loaded, err := store.LoadProblem(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, loaded.Processes[0].ComputerID)
	assert.Equal(t, p.Computers[2].ID, *loaded.Processes[0].ComputerID)
	assert.Nil(t, loaded.Processes[1].ComputerID)
}

func TestStore_ProblemNotFound(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	_, err = store.LoadProblem(ctx, types.NewProblemID())
	assert.True(t, errors.Is(err, types.ErrProblemNotFound), "err = %v", err)

	err = store.SaveAssignments(ctx, types.NewProblemID(), testProblem())
	assert.True(t, errors.Is(err, types.ErrProblemNotFound), "err = %v", err)
}

func TestStore_Snapshots(t *testing.T) {
	ctx := context.Background()
	store, err := NewStore(openTestDB(t))
	require.NoError(t, err)

	p := testProblem()
	pid, err := store.SaveProblem(ctx, "snapshots", p)
	require.NoError(t, err)

	s, err := cloudbalance.NewSession(p, cloudbalance.Constraints{}, network.Options{Policy: network.MatchScoreOnly})
	require.NoError(t, err)

	run := types.NewRunID()
	first, err := NewSnapshot(run, pid, 0, s.Network())
	require.NoError(t, err)
	require.NotEmpty(t, first.Constraints)

	_, err = s.Do(cloudbalance.Move{Process: 0, Computer: -1})
	require.NoError(t, err)
	second, err := NewSnapshot(run, pid, 1, s.Network())
	require.NoError(t, err)

	// Saved out of order; listed by step.
	require.NoError(t, store.SaveSnapshot(ctx, second))
	require.NoError(t, store.SaveSnapshot(ctx, first))

	other, err := NewSnapshot(types.NewRunID(), pid, 0, s.Network())
	require.NoError(t, err)
	require.NoError(t, store.SaveSnapshot(ctx, other))

	snaps, err := store.ListSnapshots(ctx, run)
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, first.ID, snaps[0].ID)
	assert.Equal(t, first.Score, snaps[0].Score)
	assert.Equal(t, first.Constraints, snaps[0].Constraints)
	assert.Equal(t, second.Score, snaps[1].Score)
	assert.Equal(t, 1, snaps[1].Step)
	assert.WithinDuration(t, first.CreatedAt, snaps[0].CreatedAt, 0)
}

func TestNewSnapshot_MatchesDisabled(t *testing.T) {
	s, err := cloudbalance.NewSession(testProblem(), cloudbalance.Constraints{}, network.Options{})
	require.NoError(t, err)

	snap, err := NewSnapshot(types.NewRunID(), types.NewProblemID(), 3, s.Network())
	require.NoError(t, err)
	assert.Empty(t, snap.Constraints)
	assert.NotEmpty(t, snap.Score)
}
