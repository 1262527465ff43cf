package sql

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/rom/dialect"
)

func TestOpenDB(t *testing.T) {
	tests := []struct {
		name    string
		dialect string
		want    string
	}{
		{"Postgres", dialect.Postgres, dialect.Postgres},
		{"MySQL", dialect.MySQL, dialect.MySQL},
		{"SQLite", dialect.SQLite, dialect.SQLite},
		{"Wrapped", dialect.Postgres + "-otel", dialect.Postgres},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, _, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()

			drv := OpenDB(tt.dialect, db)
			assert.Equal(t, tt.want, drv.Dialect())
			assert.Same(t, db, drv.DB())
		})
	}
}

func TestDriverName(t *testing.T) {
	assert.Equal(t, dialect.Postgres, driverName(dialect.Postgres))
	// modernc.org/sqlite registers itself as "sqlite".
	assert.Equal(t, "sqlite", driverName(dialect.SQLite))
}

func TestDriverQuery(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("query_with_args", func(t *testing.T) {
		mock.ExpectQuery("SELECT name FROM users WHERE id = \\$1").
			WithArgs(1).
			WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("Alice"))

		rows := &Rows{}
		err := drv.Query(context.Background(), "SELECT name FROM users WHERE id = $1", []any{1}, rows)
		require.NoError(t, err)
		require.True(t, rows.Next())
		var name string
		require.NoError(t, rows.Scan(&name))
		assert.Equal(t, "Alice", name)
		require.NoError(t, rows.Close())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("query_error", func(t *testing.T) {
		expectedErr := errors.New("database error")
		mock.ExpectQuery("SELECT").WillReturnError(expectedErr)

		err := drv.Query(context.Background(), "SELECT", []any{}, &Rows{})
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_arguments", func(t *testing.T) {
		err := drv.Query(context.Background(), "SELECT 1", []any{}, new(int))
		assert.ErrorContains(t, err, "expect *sql.Rows")
		err = drv.Query(context.Background(), "SELECT 1", 1, &Rows{})
		assert.ErrorContains(t, err, "expect []any for args")
	})
}

func TestDriverExec(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("exec_with_result", func(t *testing.T) {
		mock.ExpectExec("UPDATE users SET name = \\$1 WHERE id = \\$2").
			WithArgs("Alice", 1).
			WillReturnResult(sqlmock.NewResult(0, 1))

		var res Result
		err := drv.Exec(context.Background(), "UPDATE users SET name = $1 WHERE id = $2", []any{"Alice", 1}, &res)
		require.NoError(t, err)
		n, err := res.RowsAffected()
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("exec_error", func(t *testing.T) {
		expectedErr := errors.New("constraint violation")
		mock.ExpectExec("DELETE").WillReturnError(expectedErr)

		err := drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil)
		require.ErrorIs(t, err, expectedErr)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("invalid_result", func(t *testing.T) {
		err := drv.Exec(context.Background(), "DELETE FROM users", []any{}, &Rows{})
		assert.ErrorContains(t, err, "expect *sql.Result")
	})
}

func TestDriverTransaction(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	drv := OpenDB(dialect.Postgres, db)

	t.Run("successful_commit", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnResult(sqlmock.NewResult(1, 1))
		mock.ExpectCommit()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.NoError(t, tx.Exec(context.Background(), "INSERT INTO users (name) VALUES ('test')", []any{}, nil))
		require.NoError(t, tx.Commit())
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("rollback", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectExec("INSERT INTO users").WillReturnError(errors.New("error"))
		mock.ExpectRollback()

		tx, err := drv.Tx(context.Background())
		require.NoError(t, err)
		require.Error(t, tx.Exec(context.Background(), "INSERT INTO users (name) VALUES ('test')", []any{}, nil))
		require.NoError(t, tx.Rollback())
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestIsValidIdentifier(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"valid_simple", "foo", true},
		{"valid_with_underscore", "foo_bar", true},
		{"valid_with_dot", "schema.table", true},
		{"invalid_empty", "", false},
		{"invalid_starting_number", "123foo", false},
		{"invalid_with_quote", "foo'bar", false},
		{"invalid_with_semicolon", "foo;DROP TABLE", false},
		{"invalid_too_long", string(make([]byte, 129)), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, isValidIdentifier(tt.input))
		})
	}
}

// =============================================================================
// Stats and Debug Driver Tests
// =============================================================================

func TestStatsDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var (
		mu   sync.Mutex
		slow []string
	)
	drv := NewStatsDriver(OpenDB(dialect.SQLite, db),
		WithSlowThreshold(time.Hour),
		WithSlowQueryHook(func(_ context.Context, query string, _ []any, _ time.Duration) {
			mu.Lock()
			defer mu.Unlock()
			slow = append(slow, query)
		}),
	)
	assert.Equal(t, time.Hour, drv.SlowThreshold())

	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(1))
	rows := &Rows{}
	require.NoError(t, drv.Query(context.Background(), "SELECT 1", []any{}, rows))
	require.NoError(t, rows.Close())

	mock.ExpectExec("DELETE").WillReturnError(errors.New("locked"))
	require.Error(t, drv.Exec(context.Background(), "DELETE FROM users", []any{}, nil))

	drv.SetSlowThreshold(0)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	require.NoError(t, tx.Exec(context.Background(), "INSERT INTO users DEFAULT VALUES", []any{}, nil))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())

	stats := drv.QueryStats().Stats()
	assert.EqualValues(t, 1, stats.TotalQueries)
	assert.EqualValues(t, 2, stats.TotalExecs)
	assert.EqualValues(t, 1, stats.Errors)
	assert.EqualValues(t, 1, stats.SlowQueries)
	assert.Equal(t, []string{"INSERT INTO users DEFAULT VALUES"}, slow)
	assert.Contains(t, stats.String(), "queries=1 execs=2")

	drv.QueryStats().Reset()
	assert.Equal(t, StatsSnapshot{}, drv.QueryStats().Stats())
	assert.Zero(t, StatsSnapshot{}.AvgDuration())
}

func TestDebugDriver(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	var logs []string
	drv := NewDebugDriver(OpenDB(dialect.MySQL, db), DebugWithLog(func(_ context.Context, v ...any) {
		logs = append(logs, fmt.Sprint(v...))
	}))

	mock.ExpectExec("UPDATE").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectBegin()
	mock.ExpectQuery("SELECT").WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	require.NoError(t, drv.Exec(context.Background(), "UPDATE users SET name = ?", []any{"Jane"}, nil))
	tx, err := drv.Tx(context.Background())
	require.NoError(t, err)
	rows := &Rows{}
	require.NoError(t, tx.Query(context.Background(), "SELECT id FROM users", []any{}, rows))
	require.NoError(t, rows.Close())
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())

	assert.Equal(t, []string{
		"exec: UPDATE users SET name = ? args: [Jane]",
		"begin transaction",
		"tx query: SELECT id FROM users args: []",
		"rollback transaction",
	}, logs)
}
