package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"

	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	want := Default()

	if cfg.Network.MatchPolicy != network.MatchDisabled {
		t.Errorf("MatchPolicy = %v, want %v", cfg.Network.MatchPolicy, network.MatchDisabled)
	}
	if cfg.Runner != want.Runner {
		t.Errorf("Runner = %+v, want %+v", cfg.Runner, want.Runner)
	}
	if cfg.Problem != want.Problem {
		t.Errorf("Problem = %+v, want %+v", cfg.Problem, want.Problem)
	}
	if cfg.Server != want.Server {
		t.Errorf("Server = %+v, want %+v", cfg.Server, want.Server)
	}
	if cfg.Database.URL != want.Database.URL {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, want.Database.URL)
	}
	if cfg.Log != want.Log {
		t.Errorf("Log = %+v, want %+v", cfg.Log, want.Log)
	}
}

func TestLoadConfig_File(t *testing.T) {
	path := writeConfig(t, `network:
  match_policy: full
  assert: true
runner:
  move_threads: 8
  steps: 10
  moves: 500
  seed: 42
server:
  port: 6000
  request_timeout: 5s
log:
  level: debug
  format: json
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.Network.MatchPolicy != network.MatchFull {
		t.Errorf("MatchPolicy = %v, want %v", cfg.Network.MatchPolicy, network.MatchFull)
	}
	if !cfg.Network.Assert {
		t.Errorf("Assert = false, want true")
	}
	if want := (RunnerConfig{MoveThreads: 8, Steps: 10, Moves: 500, Seed: 42}); cfg.Runner != want {
		t.Errorf("Runner = %+v, want %+v", cfg.Runner, want)
	}
	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout != 5*time.Second {
		t.Errorf("Server.RequestTimeout = %v, want 5s", cfg.Server.RequestTimeout)
	}
	if cfg.Log.Level != "debug" || cfg.Log.Format != "json" {
		t.Errorf("Log = %+v, want {debug json}", cfg.Log)
	}

	opts := cfg.NetworkOptions()
	if opts.Policy != network.MatchFull || !opts.Assert {
		t.Errorf("NetworkOptions() = %+v, want policy full with assert", opts)
	}
}

func TestLoadConfig_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"zero move threads", map[string]string{"SK_RUNNER_MOVE_THREADS": "0"}},
		{"negative moves", map[string]string{"SK_RUNNER_MOVES": "-1"}},
		{"negative steps", map[string]string{"SK_RUNNER_STEPS": "-1"}},
		{"port too large", map[string]string{"SK_SERVER_PORT": "70000"}},
		{"port zero", map[string]string{"SK_SERVER_PORT": "0"}},
		{"zero timeout", map[string]string{"SK_SERVER_REQUEST_TIMEOUT": "0s"}},
		{"unknown policy", map[string]string{"SK_NETWORK_MATCH_POLICY": "everything"}},
		{"assigned above one", map[string]string{"SK_PROBLEM_ASSIGNED": "1.5"}},
		{"negative computers", map[string]string{"SK_PROBLEM_COMPUTERS": "-3"}},
		{"unknown log level", map[string]string{"SK_LOG_LEVEL": "trace"}},
		{"unknown log format", map[string]string{"SK_LOG_FORMAT": "xml"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadConfig("")
			if !errors.Is(err, types.ErrInvalidConfig) {
				t.Errorf("LoadConfig() error = %v, want %v", err, types.ErrInvalidConfig)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestLoad_FlagPrecedence(t *testing.T) {
	t.Setenv("SK_RUNNER_SEED", "7")

	v := viper.New()
	v.Set("runner.seed", 99)

	cfg, err := Load(v, "")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Runner.Seed != 99 {
		t.Errorf("Runner.Seed = %d, want 99", cfg.Runner.Seed)
	}
}
