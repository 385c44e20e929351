package cmd

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// resetFlags restores every flag so commands can run repeatedly in one process.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.PersistentFlags().VisitAll(reset)
	c.Flags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

func run(t *testing.T, args ...string) string {
	t.Helper()
	resetFlags(rootCmd)
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--log-level", "error"))
	require.NoError(t, rootCmd.Execute(), "scorekeeper %s\n%s", strings.Join(args, " "), out.String())
	return out.String()
}

func TestScore_GeneratedProblem(t *testing.T) {
	t.Setenv("SK_PROBLEM_COMPUTERS", "4")
	t.Setenv("SK_PROBLEM_PROCESSES", "20")

	out := run(t, "score", "--match-policy", "full", "--top", "3")
	assert.Contains(t, out, "score: ")
	assert.Contains(t, out, "CONSTRAINT")
	assert.Contains(t, out, "required cpu power")
	assert.Contains(t, out, "OBJECT")

	out = run(t, "score")
	assert.Contains(t, out, "score: ")
	assert.NotContains(t, out, "CONSTRAINT")
}

func TestBench_GeneratedProblem(t *testing.T) {
	t.Setenv("SK_PROBLEM_COMPUTERS", "4")
	t.Setenv("SK_PROBLEM_PROCESSES", "20")

	out := run(t, "bench", "--steps", "5", "--moves", "8", "--move-threads", "2", "--assert")
	assert.Contains(t, out, "steps:          5")
	assert.Contains(t, out, "moves:          40 in")
	assert.Contains(t, out, "final score:")
}

func TestStoredProblemWorkflow(t *testing.T) {
	url := "sqlite://" + filepath.Join(t.TempDir(), "scorekeeper.db")

	run(t, "migrate", "up", "--db-url", url)
	status := run(t, "migrate", "status", "--db-url", url)
	assert.Contains(t, status, "001_initial_schema.sql")
	assert.Contains(t, status, "applied")
	assert.NotContains(t, status, "pending")

	id := strings.TrimSpace(run(t, "problem", "generate", "small", "--db-url", url,
		"--computers", "3", "--processes", "12", "--assigned", "0.5", "--seed", "4"))
	require.NotEmpty(t, id)

	list := run(t, "problem", "list", "--db-url", url)
	assert.Contains(t, list, id)
	assert.Contains(t, list, "small")

	before := run(t, "score", "--db-url", url, "--problem", id, "--save", "--match-policy", "score_only")
	assert.Contains(t, before, "score: ")

	bench := run(t, "bench", "--db-url", url, "--problem", id, "--steps", "4", "--moves", "6", "--move-threads", "2", "--save")
	var final string
	for _, line := range strings.Split(bench, "\n") {
		if strings.HasPrefix(line, "final score:") {
			final = strings.TrimSpace(strings.TrimPrefix(line, "final score:"))
		}
	}
	require.NotEmpty(t, final, bench)

	// The stored assignment is the one bench reached.
	after := run(t, "score", "--db-url", url, "--problem", id)
	assert.Contains(t, after, "score: "+final+" ")
}

func TestScore_SaveRequiresProblem(t *testing.T) {
	t.Setenv("SK_PROBLEM_PROCESSES", "5")
	resetFlags(rootCmd)
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs([]string{"score", "--save", "--log-level", "error"})
	err := rootCmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--save requires --problem")
}
