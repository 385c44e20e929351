package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"

	"github.com/jmoiron/sqlx"
	"github.com/qustavo/dotsql"
)

//go:embed queries/*.sql
var queriesFS embed.FS

// queryer is the part of *sqlx.DB and *sqlx.Tx the named queries run on.
type queryer interface {
	sqlx.ExecerContext
	sqlx.QueryerContext
	Rebind(query string) string
}

// Queries runs the named statements of queries/*.sql. Statement names are
// unique across files.
type Queries struct {
	dot *dotsql.DotSql
	db  queryer
}

// LoadQueries parses the embedded query files for use on database.
func LoadQueries(database *sqlx.DB) (*Queries, error) {
	files, err := fs.Glob(queriesFS, "queries/*.sql")
	if err != nil {
		return nil, err
	}
	sort.Strings(files)

	owner := make(map[string]string)
	var dots []*dotsql.DotSql
	for _, name := range files {
		content, err := queriesFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", name, err)
		}
		dot, err := dotsql.LoadFromString(string(content))
		if err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		for q := range dot.QueryMap() {
			if prev, ok := owner[q]; ok {
				return nil, fmt.Errorf("query %s defined in both %s and %s", q, prev, name)
			}
			owner[q] = name
		}
		dots = append(dots, dot)
	}

	return &Queries{dot: dotsql.Merge(dots...), db: database}, nil
}

// WithTx returns Queries running on tx.
func (q *Queries) WithTx(tx *sqlx.Tx) *Queries {
	return &Queries{dot: q.dot, db: tx}
}

func (q *Queries) raw(name string) (string, error) {
	query, err := q.dot.Raw(name)
	if err != nil {
		return "", fmt.Errorf("query not found: %s", name)
	}
	return q.db.Rebind(query), nil
}

// Exec runs a named statement.
func (q *Queries) Exec(ctx context.Context, name string, args ...any) (sql.Result, error) {
	query, err := q.raw(name)
	if err != nil {
		return nil, err
	}
	return q.db.ExecContext(ctx, query, args...)
}

// Get scans the single row of a named query into dest.
func (q *Queries) Get(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return sqlx.GetContext(ctx, q.db, dest, query, args...)
}

// Select scans every row of a named query into the slice dest.
func (q *Queries) Select(ctx context.Context, name string, dest any, args ...any) error {
	query, err := q.raw(name)
	if err != nil {
		return err
	}
	return sqlx.SelectContext(ctx, q.db, dest, query, args...)
}
