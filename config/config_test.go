package config_test

import (
	"context"
	stdsql "database/sql"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/config"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/dialect/memory"
	"github.com/syssam/rom/relation"
)

const shop = `
defaults:
  slow_query_threshold: 250ms
gateways:
  default:
    adapter: memory
relations:
  records:
    attributes:
      - {name: id, primary_key: true}
      - created_at
  users:
    extends: records
    attributes: [name]
    associations:
      - {name: tasks, type: one_to_many}
  tasks:
    extends: records
    dataset: todo_items
    attributes:
      - {name: user_id, foreign_key: users}
      - title
`

func load(t *testing.T, src string) *config.Config {
	t.Helper()
	c, err := config.Load(strings.NewReader(src))
	require.NoError(t, err)
	return c
}

// =============================================================================
// Load Tests
// =============================================================================

func TestLoad(t *testing.T) {
	t.Parallel()
	c := load(t, shop)

	assert.Equal(t, config.Duration(250*time.Millisecond), c.Defaults.SlowQueryThreshold)
	assert.Equal(t, dialect.Memory, c.Adapter("users"))
	assert.Equal(t, []config.Attribute{{Name: "user_id", ForeignKey: "users"}, {Name: "title"}}, c.Relations["tasks"].Attributes)

	def, err := c.Definition("tasks")
	require.NoError(t, err)
	assert.Equal(t, "todo_items", def.DatasetName())
	assert.Equal(t, dialect.Memory, def.Adapter())
	s := def.Schema()
	require.NotNil(t, s)
	assert.Equal(t, "id", s.PrimaryKey())
	assert.Equal(t, []string{"id", "created_at", "user_id", "title"}, s.AttributeNames())

	_, err = c.Definition("accounts")
	assert.True(t, rom.IsArgumentError(err))
}

func TestLoad_Override(t *testing.T) {
	t.Parallel()
	c := load(t, `
gateways:
  default: {adapter: memory}
relations:
  base:
    attributes: [id, name]
  people:
    extends: base
    primary_key: name
    auto_struct: false
    attributes:
      - {name: id}
      - email
`)
	def, err := c.Definition("people")
	require.NoError(t, err)
	assert.Equal(t, "name", def.Schema().PrimaryKey())
	assert.Equal(t, []string{"id", "name", "email"}, def.Schema().AttributeNames())
}

func TestLoad_Empty(t *testing.T) {
	t.Parallel()
	c := load(t, "")
	assert.Empty(t, c.Relations)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		src   string
		check func(*testing.T, error)
	}{
		{
			name: "unknown_field",
			src:  "gateways:\n  default: {adapter: memory, dsn: x}\n",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "field dsn not found")
			},
		},
		{
			name: "bad_duration",
			src:  "defaults: {slow_query_threshold: soon}\n",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "line 1")
			},
		},
		{
			name: "bad_adapter",
			src:  "gateways:\n  default: {adapter: oracle}\n",
			check: func(t *testing.T, err error) {
				assert.True(t, rom.IsArgumentError(err))
				assert.ErrorContains(t, err, `unsupported adapter "oracle"`)
			},
		},
		{
			name: "missing_gateway",
			src:  "gateways:\n  default: {adapter: memory}\nrelations:\n  users: {gateway: legacy, attributes: [id]}\n",
			check: func(t *testing.T, err error) {
				var e *rom.MissingAdapterIdentifierError
				require.True(t, errors.As(err, &e))
				assert.Equal(t, "users", e.Relation)
			},
		},
		{
			name: "unknown_extends",
			src:  "gateways:\n  default: {adapter: memory}\nrelations:\n  users: {extends: records}\n",
			check: func(t *testing.T, err error) {
				assert.True(t, rom.IsArgumentError(err))
			},
		},
		{
			name: "association_type",
			src:  "gateways:\n  default: {adapter: memory}\nrelations:\n  users:\n    associations: [{name: tasks, type: many_to_many}]\n",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "many_to_many")
			},
		},
		{
			name: "cycle",
			src:  "gateways:\n  default: {adapter: memory}\nrelations:\n  a: {extends: b}\n  b: {extends: a}\n",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "inheritance cycle")
			},
		},
		{
			name: "attribute_sequence",
			src:  "relations:\n  users:\n    attributes: [[id]]\n",
			check: func(t *testing.T, err error) {
				assert.ErrorContains(t, err, "expected attribute name or mapping")
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Load(strings.NewReader(tt.src))
			require.Error(t, err)
			tt.check(t, err)
		})
	}
}

func TestLoadFile(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "rom.yml")
	require.NoError(t, os.WriteFile(path, []byte(shop), 0o600))

	c, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, c.Relations, 3)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// =============================================================================
// Open Tests
// =============================================================================

func TestOpen_Memory(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c := load(t, shop)

	gw := memory.NewGateway()
	s, err := c.Open(ctx,
		config.WithGateway(config.DefaultGateway, gw),
		config.WithDefinition("tasks", func(def relation.Definition) relation.Definition {
			return def.WithView("titled", 1, func(r *relation.Relation, args ...any) (*relation.Relation, error) {
				return r.Where(rom.Tuple{"title": args[0]}), nil
			})
		}),
	)
	require.NoError(t, err)
	defer s.Close()
	assert.Same(t, gw, s.Gateways[config.DefaultGateway])
	assert.Nil(t, s.Namespace)
	assert.Equal(t, []string{"records", "tasks", "users"}, s.Repository.Relations().Names())

	users, err := s.Relation("users")
	require.NoError(t, err)
	g, err := users.Combine("tasks")
	require.NoError(t, err)
	create, err := g.Command("create", ast.One)
	require.NoError(t, err)
	_, err = create.Call(ctx, rom.Tuple{
		"name":  "Jane",
		"tasks": []any{rom.Tuple{"title": "Ship"}, rom.Tuple{"title": "Test"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"records", "todo_items", "users"}, gw.Tables())

	tasks, err := s.Relation("tasks")
	require.NoError(t, err)
	titled, err := tasks.Apply("titled", "Ship")
	require.NoError(t, err)
	l, err := titled.Call(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, l.Len())
	assert.Equal(t, "Ship", l.Tuples()[0]["title"])
}

func TestOpen_SQLite(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "app.db")

	db, err := stdsql.Open("sqlite", path)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE users (id INTEGER PRIMARY KEY, name TEXT NOT NULL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	c := load(t, `
defaults:
  struct_namespace: app
  slow_query_threshold: 1s
  debug: true
gateways:
  default:
    adapter: sqlite3
    source: `+path+`
relations:
  users:
    attributes: [{name: id, primary_key: true}, name]
`)
	s, err := c.Open(ctx)
	require.NoError(t, err)
	defer func() { require.NoError(t, s.Close()) }()
	require.NotNil(t, s.Namespace)
	assert.Equal(t, "app", s.Namespace.Name())

	users, err := s.Relation("users")
	require.NoError(t, err)
	w, ok := users.Dataset().(interface {
		Insert(context.Context, []rom.Tuple) ([]rom.Tuple, error)
	})
	require.True(t, ok)
	rows, err := w.Insert(ctx, []rom.Tuple{{"name": "Jane"}})
	require.NoError(t, err)
	assert.Equal(t, []rom.Tuple{{"id": int64(1), "name": "Jane"}}, rows)

	n, err := users.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestOpen_Errors(t *testing.T) {
	t.Parallel()

	t.Run("canceled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := load(t, shop).Open(ctx)
		assert.ErrorIs(t, err, context.Canceled)
	})

	t.Run("dataset", func(t *testing.T) {
		t.Parallel()
		c := load(t, `
gateways:
  default: {adapter: sqlite3, source: ":memory:"}
relations:
  users:
    dataset: "users; DROP TABLE users"
    attributes: [id]
`)
		_, err := c.Open(context.Background())
		assert.True(t, rom.IsArgumentError(err))
	})
}
