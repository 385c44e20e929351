// Package config loads ScoreKeeper configuration.
//
// Precedence: CLI flags > environment (SK_ prefix) > config file > defaults.
// Database credentials are environment-only: a config file whose database
// URL carries a password is rejected.
package config

import (
	"time"

	"github.com/solatis/scorekeeper/internal/network"
)

// Config is the full ScoreKeeper configuration.
type Config struct {
	Network  NetworkConfig
	Runner   RunnerConfig
	Problem  ProblemConfig
	Server   ServerConfig
	Database DatabaseConfig
	Log      LogConfig
}

// NetworkConfig holds options applied to every built network.
type NetworkConfig struct {
	MatchPolicy network.MatchPolicy
	// Assert rebuilds the network on every score calculation and compares.
	Assert bool
}

// RunnerConfig sizes move evaluation. Moves is the number of candidate
// moves evaluated per step.
type RunnerConfig struct {
	MoveThreads int
	Steps       int
	Moves       int
	Seed        int64
}

// ProblemConfig sizes generated problems when no stored problem is used.
type ProblemConfig struct {
	Computers int
	Processes int
	Services  int
	Assigned  float64
}

// ServerConfig holds gRPC listener settings.
type ServerConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
}

// DatabaseConfig holds the storage URL (sqlite:// or postgres://).
type DatabaseConfig struct {
	URL string
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Network: NetworkConfig{
			MatchPolicy: network.MatchDisabled,
		},
		Runner: RunnerConfig{
			MoveThreads: 4,
			Steps:       100,
			Moves:       64,
			Seed:        1,
		},
		Problem: ProblemConfig{
			Computers: 20,
			Processes: 200,
			Services:  5,
			Assigned:  0.5,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           50051,
			RequestTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			URL: "sqlite://scorekeeper.db",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// NetworkOptions converts the network section into build options.
func (c *Config) NetworkOptions() network.Options {
	return network.Options{
		Policy: c.Network.MatchPolicy,
		Assert: c.Network.Assert,
	}
}
