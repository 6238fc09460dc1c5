package db

import (
	"context"
	"errors"
	"testing"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openMemory(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), "sqlite", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRebind(t *testing.T) {
	q := "SELECT * FROM products WHERE id = ? AND price >= ?"
	assert.Equal(t, "SELECT * FROM products WHERE id = $1 AND price >= $2", Postgres.Rebind(q))
	assert.Equal(t, q, MySQL.Rebind(q))
	assert.Equal(t, q, SQLite.Rebind(q))
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("PostgreSQL")
	require.NoError(t, err)
	assert.Equal(t, Postgres, d)

	_, err = ParseDialect("oracle")
	assert.Error(t, err)
}

func TestMigrate_Idempotent(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx))

	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&n))
	assert.Equal(t, 3, n)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx Conn) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO users (id, email, password_hash, created_at) VALUES ('u1', 'a@b.c', 'x', CURRENT_TIMESTAMP)`)
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	assert.Panics(t, func() {
		_ = s.WithTx(ctx, func(tx Conn) error {
			_, _ = tx.ExecContext(ctx,
				`INSERT INTO users (id, email, password_hash, created_at) VALUES ('u1', 'a@b.c', 'x', CURRENT_TIMESTAMP)`)
			panic("kaboom")
		})
	})

	var n int
	require.NoError(t, s.DB.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&n))
	assert.Zero(t, n)
}

func TestIsUniqueViolation(t *testing.T) {
	s := openMemory(t)
	ctx := context.Background()
	require.NoError(t, s.Migrate(ctx))

	insert := `INSERT INTO users (id, email, password_hash, created_at) VALUES (?, 'dup@b.c', 'x', CURRENT_TIMESTAMP)`
	_, err := s.Conn().ExecContext(ctx, insert, "u1")
	require.NoError(t, err)
	_, err = s.Conn().ExecContext(ctx, insert, "u2")
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.True(t, IsUniqueViolation(&pgconn.PgError{Code: "23505"}))
	assert.False(t, IsUniqueViolation(&pgconn.PgError{Code: "23503"}))
	assert.True(t, IsUniqueViolation(&mysql.MySQLError{Number: 1062}))
	assert.False(t, IsUniqueViolation(errors.New("other")))
	assert.False(t, IsUniqueViolation(nil))
}

func TestSplitStatements(t *testing.T) {
	got := splitStatements("-- header\nCREATE TABLE a (x INT);\n\nCREATE INDEX i ON a (x);\n")
	assert.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, got)
}

func TestSQLiteDSN(t *testing.T) {
	assert.Equal(t,
		"file::memory:?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqliteDSN(":memory:"))
	assert.Equal(t,
		"file:shop.db?mode=rwc&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite",
		sqliteDSN("file:shop.db?mode=rwc"))
}
