// Package db stores problems and score snapshots in SQLite or PostgreSQL.
//
// The driver is chosen from the URL scheme. Schema changes ship as embedded
// migration files (see MigrateUp); queries are named and loaded with dotsql.
package db

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
)

type poolLimits struct {
	maxOpen  int
	maxIdle  int
	idleTime time.Duration
	lifetime time.Duration
}

// SQLite serializes writers, so a large pool only produces SQLITE_BUSY.
var pools = map[string]poolLimits{
	"sqlite3":  {maxOpen: 4, maxIdle: 2, idleTime: 5 * time.Minute, lifetime: time.Hour},
	"postgres": {maxOpen: 16, maxIdle: 4, idleTime: 5 * time.Minute, lifetime: 30 * time.Minute},
}

// sqliteDefaults are applied to a sqlite URL unless it sets them itself.
var sqliteDefaults = map[string]string{
	"_foreign_keys": "on",
	"_busy_timeout": "5000",
}

// Open connects to dbURL and verifies the connection.
//
//	sqlite://scorekeeper.db          relative file
//	sqlite:///var/lib/sk/sk.db       absolute file
//	postgres://user@host:5432/sk     password from the environment only
func Open(ctx context.Context, dbURL string) (*sqlx.DB, error) {
	driver, dsn, err := dataSource(dbURL)
	if err != nil {
		return nil, err
	}

	database, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	lim := pools[driver]
	database.SetMaxOpenConns(lim.maxOpen)
	database.SetMaxIdleConns(lim.maxIdle)
	database.SetConnMaxIdleTime(lim.idleTime)
	database.SetConnMaxLifetime(lim.lifetime)

	if err := database.PingContext(ctx); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return database, nil
}

// dataSource maps a database URL to a driver name and its DSN.
func dataSource(dbURL string) (string, string, error) {
	u, err := url.Parse(dbURL)
	if err != nil {
		return "", "", fmt.Errorf("invalid database URL: %w", err)
	}

	switch u.Scheme {
	case "sqlite", "sqlite3":
		// sqlite://file.db parses the file name as the host.
		path := u.Host + u.Path
		if path == "" {
			return "", "", fmt.Errorf("invalid database URL: sqlite URL has no file path")
		}
		q := u.Query()
		for k, v := range sqliteDefaults {
			if !q.Has(k) {
				q.Set(k, v)
			}
		}
		return "sqlite3", "file:" + path + "?" + q.Encode(), nil
	case "postgres", "postgresql":
		return "postgres", dbURL, nil
	default:
		return "", "", fmt.Errorf("unsupported database scheme: %s (expected sqlite or postgres)", u.Scheme)
	}
}
