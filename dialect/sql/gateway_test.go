package sql_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/contrib/dataloader"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/dialect/memory"
	"github.com/syssam/rom/dialect/sql"
	"github.com/syssam/rom/relation"
	"github.com/syssam/rom/repository"
)

func openSQLite(t *testing.T) *sql.Gateway {
	t.Helper()
	drv, err := sql.Open(dialect.SQLite, ":memory:")
	require.NoError(t, err)
	// A single connection keeps the in-memory database alive and shared.
	drv.DB().SetMaxOpenConns(1)
	t.Cleanup(func() { drv.Close() })

	ctx := context.Background()
	for _, stmt := range []string{
		"PRAGMA foreign_keys = ON",
		"CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL UNIQUE)",
		"CREATE TABLE tasks (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER NOT NULL REFERENCES users(id), title TEXT NOT NULL)",
	} {
		require.NoError(t, drv.Exec(ctx, stmt, []any{}, nil))
	}
	return sql.NewGateway(drv)
}

func writer(t *testing.T, ds relation.Dataset) command.Writer {
	t.Helper()
	w, ok := ds.(command.Writer)
	require.True(t, ok)
	return w
}

func dataset(t *testing.T, gw *sql.Gateway, name string) relation.Dataset {
	t.Helper()
	ds, err := gw.Dataset(name)
	require.NoError(t, err)
	return ds
}

func seed(t *testing.T, gw *sql.Gateway) {
	t.Helper()
	ctx := context.Background()
	_, err := writer(t, dataset(t, gw, "users")).Insert(ctx, []rom.Tuple{{"name": "Jane"}, {"name": "Joe"}})
	require.NoError(t, err)
	_, err = writer(t, dataset(t, gw, "tasks")).Insert(ctx, []rom.Tuple{
		{"user_id": 1, "title": "Jane's task"},
		{"user_id": 2, "title": "Joe's task"},
	})
	require.NoError(t, err)
}

// =============================================================================
// SQLite Dataset Tests
// =============================================================================

func TestDataset_Read(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)
	seed(t, gw)
	users := dataset(t, gw, "users")

	rows, err := users.Where(rom.Tuple{"name": "Jane"}).Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(1), "name": "Jane"}}, rows)

	rows, err = users.In("id", []any{1, 2}).(relation.Orderer).Order("name").Fetch(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"Jane", "Joe"}, []any{rows[0]["name"], rows[1]["name"]})

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	rows, err = users.In("id", nil).Fetch(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	_, err = gw.Dataset("users; DROP TABLE users")
	assert.True(t, rom.IsArgumentError(err))
}

func TestDataset_Join(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)
	seed(t, gw)
	tasks := dataset(t, gw, "tasks").(relation.Joiner)
	users := dataset(t, gw, "users")

	joined := tasks.Join(users, map[string]string{"user_id": "id"}, "user")
	rows, err := joined.(relation.Orderer).Order("id").Fetch(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jane's task", rows[0]["title"])
	assert.Equal(t, "Jane", rows[0]["user_name"])
	assert.Equal(t, "Joe", rows[1]["user_name"])

	joined = tasks.Join(users.Where(rom.Tuple{"name": "Joe"}), map[string]string{"user_id": "id"}, "user")
	n, err := joined.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = writer(t, joined).Delete(ctx)
	assert.True(t, rom.IsArgumentError(err))

	mem, err := memory.NewGateway().Dataset("users")
	require.NoError(t, err)
	_, err = tasks.Join(mem, map[string]string{"user_id": "id"}, "user").Fetch(ctx)
	assert.True(t, rom.IsArgumentError(err))
}

func TestDataset_Write(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)
	seed(t, gw)
	users := dataset(t, gw, "users")

	rows, err := writer(t, users.Where(rom.Tuple{"name": "Joe"})).Update(ctx, rom.Tuple{"name": "Joseph"})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(2), "name": "Joseph"}}, rows)

	rows, err = writer(t, users.Where(rom.Tuple{"name": "Nobody"})).Update(ctx, rom.Tuple{"name": "X"})
	require.NoError(t, err)
	assert.Empty(t, rows)

	rows, err = writer(t, users.Where(rom.Tuple{"id": 1})).Update(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(1), "name": "Jane"}}, rows)

	rows, err = writer(t, dataset(t, gw, "tasks").Where(rom.Tuple{"user_id": 2})).Delete(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Joe's task", rows[0]["title"])

	n, err := dataset(t, gw, "tasks").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestDataset_Constraints(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)
	seed(t, gw)

	_, err := writer(t, dataset(t, gw, "users")).Insert(ctx, []rom.Tuple{{"name": "Jane"}})
	assert.True(t, rom.IsConstraintError(err))

	_, err = writer(t, dataset(t, gw, "tasks")).Insert(ctx, []rom.Tuple{{"user_id": 99, "title": "orphan"}})
	assert.True(t, rom.IsConstraintError(err))
}

func TestGateway_Tx(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)

	txgw, tx, err := gw.Tx(ctx)
	require.NoError(t, err)
	_, err = writer(t, dataset(t, txgw, "users")).Insert(ctx, []rom.Tuple{{"name": "Jane"}})
	require.NoError(t, err)
	n, err := dataset(t, txgw, "users").Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, _, err = txgw.Tx(ctx)
	assert.Error(t, err)
	require.NoError(t, tx.Rollback())

	n, err = dataset(t, gw, "users").Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

// =============================================================================
// Relation and Command Graph Tests
// =============================================================================

func TestGateway_Graphs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw := openSQLite(t)
	rels := relation.NewRegistry()
	cmds := command.NewRegistry()
	sql.Register(cmds)
	repo := repository.New(rels, cmds)

	define := func(name string, s *relation.Schema) *relation.Relation {
		rel, err := rels.Define(relation.Define(name).WithAdapter(dialect.SQLite).WithSchema(s), dataset(t, gw, name))
		require.NoError(t, err)
		return rel
	}
	users := define("users", relation.NewSchema(
		relation.Attribute{Name: "id", PrimaryKey: true},
		relation.Attribute{Name: "name"},
	).Associate(relation.Association{Name: "tasks", Type: relation.OneToMany}))
	tasks := define("tasks", relation.NewSchema(
		relation.Attribute{Name: "id", PrimaryKey: true},
		relation.Attribute{Name: "user_id", ForeignKey: "users"},
		relation.Attribute{Name: "title"},
	).Associate(relation.Association{Name: "user", Type: relation.ManyToOne, Target: "users"}))

	g, err := users.Combine("tasks")
	require.NoError(t, err)
	create, err := g.Command("create", ast.One)
	require.NoError(t, err)
	res, err := create.Call(ctx, rom.Tuple{
		"name":  "Jane",
		"tasks": []any{rom.Tuple{"title": "A"}, rom.Tuple{"title": "B"}},
	})
	require.NoError(t, err)
	jane := res.(rom.Tuple)
	assert.Equal(t, int64(1), jane["id"])

	l, err := g.Call(ctx)
	require.NoError(t, err)
	loaded := l.Tuples()
	require.Len(t, loaded, 1)
	assert.Len(t, loaded[0]["tasks"], 2)

	w, err := tasks.Wrap("user")
	require.NoError(t, err)
	l, err = w.Call(ctx)
	require.NoError(t, err)
	for _, task := range l.Tuples() {
		assert.Equal(t, "Jane", task["user"].(rom.Tuple)["name"])
	}

	del, err := repo.Command(command.Delete, "tasks")
	require.NoError(t, err)
	deleted, err := del.Where(rom.Tuple{"title": "A"}).Call(ctx)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)
}

// =============================================================================
// Mocked Dialect Tests
// =============================================================================

func mockGateway(t *testing.T, name string) (*sql.Gateway, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return sql.NewGateway(sql.OpenDB(name, db)), mock
}

func TestDataset_MySQL(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, mock := mockGateway(t, dialect.MySQL)
	users := dataset(t, gw, "users")

	mock.ExpectExec("INSERT INTO `users` (`name`) VALUES (?)").
		WithArgs("Jane").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` IN (?)").
		WithArgs(int64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(7), "Jane"))
	rows, err := writer(t, users).Insert(ctx, []rom.Tuple{{"name": "Jane"}})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(7), "name": "Jane"}}, rows)

	mock.ExpectQuery("SELECT `id` FROM `users` WHERE `name` = ?").
		WithArgs("Joe").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(int64(2)))
	mock.ExpectExec("UPDATE `users` SET `name` = ? WHERE `name` = ?").
		WithArgs("Joseph", "Joe").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` IN (?)").
		WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(2), "Joseph"))
	rows, err = writer(t, users.Where(rom.Tuple{"name": "Joe"})).Update(ctx, rom.Tuple{"name": "Joseph"})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(2), "name": "Joseph"}}, rows)

	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` = ?").
		WithArgs(1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).AddRow(int64(1), "Jane"))
	mock.ExpectExec("DELETE FROM `users` WHERE `id` = ?").
		WithArgs(1).
		WillReturnResult(sqlmock.NewResult(0, 1))
	rows, err = writer(t, users.Where(rom.Tuple{"id": 1})).Delete(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	mock.ExpectExec("INSERT INTO `users` (`id`, `name`) VALUES (?, ?)").
		WithArgs(1, "Jane").
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry '1' for key 'PRIMARY'"})
	_, err = writer(t, users).Insert(ctx, []rom.Tuple{{"id": 1, "name": "Jane"}})
	assert.True(t, rom.IsConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDataset_CacheKey(t *testing.T) {
	t.Parallel()
	gw, mock := mockGateway(t, dialect.Postgres)
	users := dataset(t, gw, "users")
	tasks := dataset(t, gw, "tasks")

	key := func(d relation.Dataset) string {
		t.Helper()
		k, ok := d.(relation.Keyer).CacheKey()
		require.True(t, ok)
		return k
	}
	assert.Equal(t, "users", key(users))
	assert.Equal(t, `users name="Jane"`, key(users.Where(rom.Tuple{"name": "Jane"})))
	assert.NotEqual(t, key(users.In("id", []any{1})), key(users.In("id", []any{2})))
	assert.NotEqual(t, key(users), key(users.(relation.Orderer).Order("name")))
	joined := tasks.(relation.Joiner).Join(users.Where(rom.Tuple{"id": 1}), map[string]string{"user_id": "id"}, "user")
	assert.Contains(t, key(joined), `join (users id=1)`)

	_, ok := tasks.(relation.Joiner).Join(joined, map[string]string{"user_id": "id"}, "x").(relation.Keyer).CacheKey()
	assert.False(t, ok)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDataset_MySQLInsertBatch(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, mock := mockGateway(t, dialect.MySQL)
	users := dataset(t, gw, "users")

	mock.ExpectExec("INSERT INTO `users` (`name`) VALUES (?)").
		WithArgs("Jane").
		WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectExec("INSERT INTO `users` (`id`, `name`) VALUES (?, ?)").
		WithArgs(3, "Joe").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` IN (?, ?)").
		WithArgs(int64(7), 3).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}).
			AddRow(int64(3), "Joe").
			AddRow(int64(7), "Jane"))
	rows, err := writer(t, users).Insert(ctx, []rom.Tuple{{"name": "Jane"}, {"id": 3, "name": "Joe"}})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(7), "name": "Jane"}, {"id": int64(3), "name": "Joe"}}, rows)

	mock.ExpectExec("INSERT INTO `users` (`name`) VALUES (?)").
		WithArgs("Ann").
		WillReturnResult(sqlmock.NewResult(9, 1))
	mock.ExpectQuery("SELECT * FROM `users` WHERE `id` IN (?)").
		WithArgs(int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name"}))
	_, err = writer(t, users).Insert(ctx, []rom.Tuple{{"name": "Ann"}})
	assert.ErrorIs(t, err, dataloader.ErrNotFound)

	rows, err = writer(t, users).Insert(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDataset_Postgres(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	gw, mock := mockGateway(t, dialect.Postgres)
	gw.PrimaryKey("accounts", "uuid")
	accounts := dataset(t, gw, "accounts")

	mock.ExpectQuery(`INSERT INTO "accounts" ("name") VALUES ($1) RETURNING *`).
		WithArgs("ops").
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).AddRow("a1", []byte("ops")))
	rows, err := writer(t, accounts).Insert(ctx, []rom.Tuple{{"name": "ops"}})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"uuid": "a1", "name": "ops"}}, rows)

	mock.ExpectQuery(`DELETE FROM "accounts" WHERE "name" = $1 AND "uuid" IN ($2, $3) RETURNING *`).
		WithArgs("ops", "a1", "a2").
		WillReturnRows(sqlmock.NewRows([]string{"uuid", "name"}).AddRow("a1", "ops"))
	rows, err = writer(t, accounts.Where(rom.Tuple{"name": "ops"}).In("uuid", []any{"a1", "a2"})).Delete(ctx)
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	mock.ExpectQuery(`INSERT INTO "accounts" ("name") VALUES ($1) RETURNING *`).
		WithArgs("ops").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"})
	_, err = writer(t, accounts).Insert(ctx, []rom.Tuple{{"name": "ops"}})
	assert.True(t, rom.IsConstraintError(err))
	require.NoError(t, mock.ExpectationsWereMet())
}
