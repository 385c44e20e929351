package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/solatis/scorekeeper/internal/cloudbalance"
	"github.com/solatis/scorekeeper/internal/core/config"
	"github.com/solatis/scorekeeper/internal/core/db"
	"github.com/solatis/scorekeeper/internal/core/logging"
	"github.com/solatis/scorekeeper/internal/types"
)

// Version is the release version reported by the binary.
const Version = "0.1.0"

var (
	configFile string
	dbURL      string
	logLevel   string
	logFormat  string
)

var rootCmd = &cobra.Command{
	Use:           "scorekeeper",
	Short:         "ScoreKeeper incremental constraint scoring",
	Long:          `ScoreKeeper keeps the score of a planning problem up to date as its facts change, recomputing only what each change affects.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database connection URL (sqlite://path or postgres://...)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "json", "log format (json, text)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads configuration with cmd's flags taking precedence, then
// installs the configured logger as the slog default.
func loadConfig(cmd *cobra.Command, bind map[string]string) (*config.Config, *slog.Logger, error) {
	v := viper.New()
	flags := map[string]string{
		"database.url": "db-url",
		"log.level":    "log-level",
		"log.format":   "log-format",
	}
	for key, name := range bind {
		flags[key] = name
	}
	for key, name := range flags {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, nil, fmt.Errorf("failed to bind --%s: %w", name, err)
		}
	}

	cfg, err := config.Load(v, configFile)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}
	slog.SetDefault(logger)
	return cfg, logger, nil
}

// openStore opens the configured database and refuses to use a schema with
// pending migrations.
func openStore(ctx context.Context, cfg *config.Config) (*db.Store, func(), error) {
	database, err := db.Open(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	statuses, err := db.MigrateStatus(ctx, database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to check migrations: %w", err)
	}
	if pending := db.Pending(statuses); len(pending) > 0 {
		database.Close()
		return nil, nil, fmt.Errorf("migration %s not applied - run 'scorekeeper migrate up' first", pending[0])
	}
	store, err := db.NewStore(database)
	if err != nil {
		database.Close()
		return nil, nil, fmt.Errorf("failed to load queries: %w", err)
	}
	return store, func() { database.Close() }, nil
}

// problemSource is a problem either read from the store or generated.
type problemSource struct {
	problem *cloudbalance.Problem
	id      types.ProblemID
	store   *db.Store
	close   func()
}

// loadProblem loads the stored problem named by id, or generates one from
// the problem section of cfg when id is empty.
func loadProblem(ctx context.Context, cfg *config.Config, id string, log *slog.Logger) (*problemSource, error) {
	if id == "" {
		p := cloudbalance.Generate(cloudbalance.GeneratorConfig{
			Computers: cfg.Problem.Computers,
			Processes: cfg.Problem.Processes,
			Services:  cfg.Problem.Services,
			Assigned:  cfg.Problem.Assigned,
		}, cfg.Runner.Seed)
		log.Info("generated problem", "computers", len(p.Computers), "processes", len(p.Processes), "seed", cfg.Runner.Seed)
		return &problemSource{problem: p, close: func() {}}, nil
	}

	pid, err := types.ParseProblemID(id)
	if err != nil {
		return nil, err
	}
	store, closeDB, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	p, err := store.LoadProblem(ctx, pid)
	if err != nil {
		closeDB()
		return nil, err
	}
	log.Info("loaded problem", "problem_id", pid, "computers", len(p.Computers), "processes", len(p.Processes))
	return &problemSource{problem: p, id: pid, store: store, close: closeDB}, nil
}
