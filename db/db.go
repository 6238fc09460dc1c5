package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Querier is the subset of *sql.DB and *sql.Tx the stores use.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type Store struct {
	DB      *sql.DB
	Dialect Dialect
}

// Open connects to driver ("sqlite", "postgres" or "mysql") and verifies the
// connection. Migrations are not applied; call Migrate.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	dialect, err := ParseDialect(driver)
	if err != nil {
		return nil, err
	}

	driverName := dialect.driverName()
	if dialect == SQLite {
		dsn = sqliteDSN(dsn)
	}

	conn, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}

	if dialect == SQLite {
		// one writer at a time; also keeps an in-memory database alive on a single connection
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(30 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pingCtx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}

	slog.Info("database connected", "driver", driver)
	return &Store{DB: conn, Dialect: dialect}, nil
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Conn returns a dialect-aware handle on the pool.
func (s *Store) Conn() Conn {
	return Conn{q: s.DB, dialect: s.Dialect}
}

// WithTx runs fn inside a transaction. The transaction is rolled back when fn
// returns an error or panics, and committed otherwise.
func (s *Store) WithTx(ctx context.Context, fn func(tx Conn) error) (err error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		} else if err != nil {
			tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	return fn(Conn{q: tx, dialect: s.Dialect})
}

// Conn rewrites '?' placeholders for the active dialect before delegating to
// the pool or transaction it wraps.
type Conn struct {
	q       Querier
	dialect Dialect
}

func (c Conn) Dialect() Dialect { return c.dialect }

func (c Conn) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return c.q.ExecContext(ctx, c.dialect.Rebind(query), args...)
}

func (c Conn) QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error) {
	return c.q.QueryContext(ctx, c.dialect.Rebind(query), args...)
}

func (c Conn) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return c.q.QueryRowContext(ctx, c.dialect.Rebind(query), args...)
}

// InsertID executes an INSERT and returns the generated id column.
func (c Conn) InsertID(ctx context.Context, query string, args ...any) (int64, error) {
	if c.dialect == Postgres {
		var id int64
		err := c.q.QueryRowContext(ctx, c.dialect.Rebind(query)+" RETURNING id", args...).Scan(&id)
		return id, err
	}
	res, err := c.q.ExecContext(ctx, c.dialect.Rebind(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ForUpdate is appended to SELECTs that must lock the rows they read. SQLite
// has no row locks; its single writer already serialises transactions.
func (c Conn) ForUpdate() string {
	if c.dialect == SQLite {
		return ""
	}
	return " FOR UPDATE"
}

func sqliteDSN(dsn string) string {
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	if !strings.Contains(dsn, "_pragma=foreign_keys") {
		dsn += sep + "_pragma=foreign_keys(1)"
		sep = "&"
	}
	if !strings.Contains(dsn, "_pragma=busy_timeout") {
		dsn += sep + "_pragma=busy_timeout(5000)"
		sep = "&"
	}
	if !strings.Contains(dsn, "_time_format") {
		dsn += sep + "_time_format=sqlite"
	}
	return dsn
}
