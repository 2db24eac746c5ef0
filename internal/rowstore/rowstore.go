// Package rowstore is the durable-store adapter for the trading ledger. It
// exposes a small row-oriented surface (parameterized queries returning
// row maps) over database/sql so the same ledger code runs against the
// embedded sqlite file or a Postgres instance. Connection handling is left
// to the database/sql pool: every operation checks out its own connection,
// so concurrent workers never share a session.
package rowstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/mattn/go-sqlite3"
)

// ErrNoRows is returned by QueryOne when the predicate matches nothing.
var ErrNoRows = errors.New("rowstore: no rows")

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Column is one column definition for CreateTable, in declaration order.
type Column struct {
	Name string
	Type string
}

// Querier is the query surface shared by the store and its transactions.
// SQL is written with ? placeholders; the adapter rebinds them for the
// Postgres backend.
type Querier interface {
	Exec(ctx context.Context, query string, args ...any) error
	QueryOne(ctx context.Context, query string, args ...any) (Row, error)
	QueryAll(ctx context.Context, query string, args ...any) ([]Row, error)
	Insert(ctx context.Context, table string, fields map[string]any) error
	Update(ctx context.Context, table string, fields map[string]any, where string, args ...any) error
	Delete(ctx context.Context, table string, where string, args ...any) error
}

// Store owns the database handle. All mutating ledger work should go
// through WithTx so multi-row updates commit atomically.
type Store struct {
	db     *sql.DB
	driver string
}

// Open opens the backing database. The sqlite backend runs in WAL mode
// with a single writer connection, mirroring the single-file deployment
// the game server uses; postgres uses the pgx stdlib driver.
func Open(driver, dsn string) (*Store, error) {
	switch driver {
	case DriverSQLite:
		db, err := sql.Open("sqlite3", sqliteDSN(dsn))
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1)
		return &Store{db: db, driver: driver}, nil
	case DriverPostgres:
		db, err := sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return &Store{db: db, driver: driver}, nil
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}
}

// sqliteDSN appends the WAL and busy-timeout parameters, joining with &
// when the caller's DSN already carries its own query string.
func sqliteDSN(dsn string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "_journal_mode=WAL&_busy_timeout=5000"
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// CreateTable creates the table if it does not exist yet.
func (s *Store) CreateTable(ctx context.Context, table string, cols []Column, constraints ...string) error {
	defs := make([]string, 0, len(cols)+len(constraints))
	for _, c := range cols {
		defs = append(defs, c.Name+" "+c.Type)
	}
	defs = append(defs, constraints...)
	query := "CREATE TABLE IF NOT EXISTS " + table + " (" + strings.Join(defs, ", ") + ")"
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// AutoincrementPK returns the driver-specific autoincrementing integer
// primary key column type.
func (s *Store) AutoincrementPK() string {
	if s.driver == DriverPostgres {
		return "BIGSERIAL PRIMARY KEY"
	}
	return "INTEGER PRIMARY KEY AUTOINCREMENT"
}

// WithTx runs fn inside a transaction and commits if fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&querier{run: tx, driver: s.driver}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) Exec(ctx context.Context, query string, args ...any) error {
	return (&querier{run: s.db, driver: s.driver}).Exec(ctx, query, args...)
}

func (s *Store) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	return (&querier{run: s.db, driver: s.driver}).QueryOne(ctx, query, args...)
}

func (s *Store) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	return (&querier{run: s.db, driver: s.driver}).QueryAll(ctx, query, args...)
}

func (s *Store) Insert(ctx context.Context, table string, fields map[string]any) error {
	return (&querier{run: s.db, driver: s.driver}).Insert(ctx, table, fields)
}

func (s *Store) Update(ctx context.Context, table string, fields map[string]any, where string, args ...any) error {
	return (&querier{run: s.db, driver: s.driver}).Update(ctx, table, fields, where, args...)
}

func (s *Store) Delete(ctx context.Context, table string, where string, args ...any) error {
	return (&querier{run: s.db, driver: s.driver}).Delete(ctx, table, where, args...)
}

// runner is satisfied by both *sql.DB and *sql.Tx.
type runner interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type querier struct {
	run    runner
	driver string
}

func (q *querier) Exec(ctx context.Context, query string, args ...any) error {
	if _, err := q.run.ExecContext(ctx, q.rebind(query), normalizeArgs(args)...); err != nil {
		return fmt.Errorf("exec: %w", err)
	}
	return nil
}

func (q *querier) QueryOne(ctx context.Context, query string, args ...any) (Row, error) {
	rows, err := q.QueryAll(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, ErrNoRows
	}
	return rows[0], nil
}

func (q *querier) QueryAll(ctx context.Context, query string, args ...any) ([]Row, error) {
	rows, err := q.run.QueryContext(ctx, q.rebind(query), normalizeArgs(args)...)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var out []Row
	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(Row, len(cols))
		for i, col := range cols {
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func (q *querier) Insert(ctx context.Context, table string, fields map[string]any) error {
	cols := sortedKeys(fields)
	args := make([]any, 0, len(cols))
	marks := make([]string, 0, len(cols))
	for _, c := range cols {
		args = append(args, fields[c])
		marks = append(marks, "?")
	}
	query := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + strings.Join(marks, ", ") + ")"
	return q.Exec(ctx, query, args...)
}

func (q *querier) Update(ctx context.Context, table string, fields map[string]any, where string, args ...any) error {
	cols := sortedKeys(fields)
	sets := make([]string, 0, len(cols))
	all := make([]any, 0, len(cols)+len(args))
	for _, c := range cols {
		sets = append(sets, c+" = ?")
		all = append(all, fields[c])
	}
	all = append(all, args...)
	query := "UPDATE " + table + " SET " + strings.Join(sets, ", ") + " WHERE " + where
	return q.Exec(ctx, query, all...)
}

func (q *querier) Delete(ctx context.Context, table string, where string, args ...any) error {
	return q.Exec(ctx, "DELETE FROM "+table+" WHERE "+where, args...)
}

// rebind rewrites ? placeholders to $1..$n for the postgres backend.
func (q *querier) rebind(query string) string {
	if q.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func sortedKeys(fields map[string]any) []string {
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
