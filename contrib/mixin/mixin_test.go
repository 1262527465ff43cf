package mixin_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/rom"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/contrib/mixin"
	"github.com/syssam/rom/dialect"
	"github.com/syssam/rom/dialect/memory"
	"github.com/syssam/rom/privacy"
	"github.com/syssam/rom/relation"
	"github.com/syssam/rom/repository"
)

var (
	t0 = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func clock(ts ...time.Time) mixin.Clock {
	return func() time.Time {
		now := ts[0]
		if len(ts) > 1 {
			ts = ts[1:]
		}
		return now
	}
}

func newRepo(t *testing.T, mixins []mixin.Mixin, attrs ...relation.Attribute) (*repository.Repository, *relation.Relation) {
	t.Helper()
	gw := memory.NewGateway()
	rels := relation.NewRegistry()
	cmds := command.NewRegistry()
	memory.Register(cmds)
	repo := repository.New(rels, cmds)

	ds, err := gw.Dataset("posts")
	require.NoError(t, err)
	rel, err := rels.Define(relation.Define("posts").WithAdapter(dialect.Memory).WithSchema(mixin.Schema(mixins, attrs...)), ds)
	require.NoError(t, err)
	repo.Compiler().Use("posts", mixin.Option(mixins...))
	return repo, rel
}

func call(t *testing.T, ctx context.Context, repo *repository.Repository, typ command.Type, where rom.Tuple, args ...any) []rom.Tuple {
	t.Helper()
	cmd, err := repo.Command(typ, "posts")
	require.NoError(t, err)
	if where != nil {
		cmd = cmd.Where(where)
	}
	res, err := cmd.Call(ctx, args...)
	require.NoError(t, err)
	return res.([]rom.Tuple)
}

// =============================================================================
// Schema Tests
// =============================================================================

func TestSchema(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		mixin mixin.Mixin
		want  []string
	}{
		{"create_time", mixin.CreateTime{}, []string{"created_at"}},
		{"update_time", mixin.UpdateTime{}, []string{"updated_at"}},
		{"time", mixin.Time{}, []string{"created_at", "updated_at"}},
		{"id", mixin.ID{}, []string{"id"}},
		{"soft_delete", mixin.SoftDelete{}, []string{"deleted_at"}},
		{"tenant_id", mixin.TenantID{}, []string{"tenant_id"}},
		{"time_soft_delete", mixin.TimeSoftDelete{}, []string{"created_at", "updated_at", "deleted_at"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			s := mixin.Schema([]mixin.Mixin{tt.mixin}, relation.Attribute{Name: "title"})
			assert.Equal(t, append(tt.want, "title"), s.AttributeNames())
		})
	}

	s := mixin.Schema([]mixin.Mixin{mixin.ID{}})
	assert.Equal(t, "id", s.PrimaryKey())
}

// =============================================================================
// Command Tests
// =============================================================================

func TestTime(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, _ := newRepo(t, []mixin.Mixin{mixin.Time{Now: clock(t0, t1)}},
		relation.Attribute{Name: "id", PrimaryKey: true},
		relation.Attribute{Name: "title"},
	)

	created := call(t, ctx, repo, command.Create, nil, rom.Tuple{"title": "Hello"})
	require.Len(t, created, 1)
	assert.Equal(t, t0, created[0]["created_at"])
	assert.Equal(t, t0, created[0]["updated_at"])

	updated := call(t, ctx, repo, command.Update, rom.Tuple{"id": created[0]["id"]}, rom.Tuple{"title": "Hi", "created_at": t1})
	require.Len(t, updated, 1)
	assert.Equal(t, "Hi", updated[0]["title"])
	assert.Equal(t, t0, updated[0]["created_at"])
	assert.Equal(t, t1, updated[0]["updated_at"])
}

func TestCreateTime_Explicit(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t, []mixin.Mixin{mixin.CreateTime{}, mixin.UpdateTime{Now: clock(t1)}},
		relation.Attribute{Name: "title"},
	)
	created := call(t, context.Background(), repo, command.Create, nil, rom.Tuple{"title": "Old", "created_at": t0})
	assert.Equal(t, t0, created[0]["created_at"])
	assert.Equal(t, t1, created[0]["updated_at"])
}

func TestID(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	repo, rel := newRepo(t, []mixin.Mixin{mixin.ID{}}, relation.Attribute{Name: "title"})

	created := call(t, ctx, repo, command.Create, nil, []any{rom.Tuple{"title": "A"}, rom.Tuple{"id": "fixed", "title": "B"}})
	require.Len(t, created, 2)
	id, ok := created[0]["id"].(string)
	require.True(t, ok)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Equal(t, "fixed", created[1]["id"])

	call(t, ctx, repo, command.Update, rom.Tuple{"id": "fixed"}, rom.Tuple{"id": "changed", "title": "C"})
	l, err := rel.ByPK("fixed").Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"C"}, l.Pluck("title"))
}

func TestSoftDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	sd := mixin.SoftDelete{}
	repo, rel := newRepo(t, []mixin.Mixin{mixin.TimeSoftDelete{Now: clock(t0)}},
		relation.Attribute{Name: "id", PrimaryKey: true},
		relation.Attribute{Name: "title"},
	)

	created := call(t, ctx, repo, command.Create, nil, []any{rom.Tuple{"title": "A"}, rom.Tuple{"title": "B"}})
	require.Len(t, created, 2)
	assert.Nil(t, created[0]["deleted_at"])

	call(t, ctx, repo, command.Update, rom.Tuple{"id": created[0]["id"]}, sd.Delete(t1))

	live, err := sd.Live(rel).Call(ctx)
	require.NoError(t, err)
	assert.Equal(t, []any{"B"}, live.Pluck("title"))
	n, err := rel.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTenantID(t *testing.T) {
	t.Parallel()
	repo, _ := newRepo(t, []mixin.Mixin{mixin.TenantID{}}, relation.Attribute{Name: "title"})

	ctx := privacy.WithViewer(context.Background(), &privacy.SimpleViewer{UserID: "u1", TenantID: "acme"})
	created := call(t, ctx, repo, command.Create, nil, rom.Tuple{"title": "A"})
	assert.Equal(t, "acme", created[0]["tenant_id"])

	updated := call(t, ctx, repo, command.Update, rom.Tuple{"title": "A"}, rom.Tuple{"tenant_id": "initech", "title": "B"})
	assert.Equal(t, "acme", updated[0]["tenant_id"])

	created = call(t, context.Background(), repo, command.Create, nil, rom.Tuple{"title": "C", "tenant_id": "initech"})
	assert.Equal(t, "initech", created[0]["tenant_id"])

	create, err := repo.Command(command.Create, "posts")
	require.NoError(t, err)
	_, err = create.Call(context.Background(), rom.Tuple{"title": "D"})
	assert.True(t, rom.IsArgumentError(err))
}
