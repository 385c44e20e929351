package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"

	"github.com/solatis/scorekeeper/internal/network"
	"github.com/solatis/scorekeeper/internal/types"
)

// LoadConfig loads configuration from file using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string) (*Config, error) {
	return Load(viper.New(), configPath)
}

// Load reads configuration through v. Callers bind CLI flags on v before
// calling so that flags take precedence.
func Load(v *viper.Viper, configPath string) (*Config, error) {
	d := Default()

	// Set defaults matching Default
	v.SetDefault("network.match_policy", d.Network.MatchPolicy.String())
	v.SetDefault("network.assert", d.Network.Assert)
	v.SetDefault("runner.move_threads", d.Runner.MoveThreads)
	v.SetDefault("runner.steps", d.Runner.Steps)
	v.SetDefault("runner.moves", d.Runner.Moves)
	v.SetDefault("runner.seed", d.Runner.Seed)
	v.SetDefault("problem.computers", d.Problem.Computers)
	v.SetDefault("problem.processes", d.Problem.Processes)
	v.SetDefault("problem.services", d.Problem.Services)
	v.SetDefault("problem.assigned", d.Problem.Assigned)
	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.request_timeout", d.Server.RequestTimeout.String())
	v.SetDefault("database.url", d.Database.URL)
	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	// Bind environment variables with SK_ prefix
	v.SetEnvPrefix("SK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Credentials must come from the environment, never from a file
	if err := validateNoSecretsInConfig(configPath); err != nil {
		return nil, err
	}

	policy, err := network.ParseMatchPolicy(v.GetString("network.match_policy"))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrInvalidConfig, err)
	}

	cfg := &Config{
		Network: NetworkConfig{
			MatchPolicy: policy,
			Assert:      v.GetBool("network.assert"),
		},
		Runner: RunnerConfig{
			MoveThreads: v.GetInt("runner.move_threads"),
			Steps:       v.GetInt("runner.steps"),
			Moves:       v.GetInt("runner.moves"),
			Seed:        v.GetInt64("runner.seed"),
		},
		Problem: ProblemConfig{
			Computers: v.GetInt("problem.computers"),
			Processes: v.GetInt("problem.processes"),
			Services:  v.GetInt("problem.services"),
			Assigned:  v.GetFloat64("problem.assigned"),
		},
		Server: ServerConfig{
			Host:           v.GetString("server.host"),
			Port:           v.GetInt("server.port"),
			RequestTimeout: v.GetDuration("server.request_timeout"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func validateConfig(cfg *Config) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", types.ErrInvalidConfig, fmt.Sprintf(format, args...))
	}
	if cfg.Runner.MoveThreads <= 0 {
		return invalid("runner.move_threads must be positive, got %d", cfg.Runner.MoveThreads)
	}
	if cfg.Runner.Steps < 0 {
		return invalid("runner.steps must not be negative, got %d", cfg.Runner.Steps)
	}
	if cfg.Runner.Moves < 0 {
		return invalid("runner.moves must not be negative, got %d", cfg.Runner.Moves)
	}
	if cfg.Problem.Computers < 0 || cfg.Problem.Processes < 0 || cfg.Problem.Services < 0 {
		return invalid("problem sizes must not be negative")
	}
	if cfg.Problem.Assigned < 0 || cfg.Problem.Assigned > 1 {
		return invalid("problem.assigned must be between 0 and 1, got %v", cfg.Problem.Assigned)
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return invalid("server.port must be between 1 and 65535, got %d", cfg.Server.Port)
	}
	if cfg.Server.RequestTimeout <= 0 {
		return invalid("server.request_timeout must be positive, got %v", cfg.Server.RequestTimeout)
	}
	switch cfg.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return invalid("log.level must be debug, info, warn or error, got %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		return invalid("log.format must be text or json, got %q", cfg.Log.Format)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only credentials. The file
// is read on its own so an SK_DATABASE_URL override does not mask it.
func validateNoSecretsInConfig(configPath string) error {
	if configPath == "" {
		return nil
	}
	fv := viper.New()
	fv.SetConfigFile(configPath)
	if err := fv.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	raw := fv.GetString("database.url")
	if raw == "" {
		return nil
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: database.url: %v", types.ErrInvalidConfig, err)
	}
	if _, ok := u.User.Password(); ok {
		return fmt.Errorf("database passwords not allowed in config files (use SK_DATABASE_URL environment variable)")
	}
	return nil
}
