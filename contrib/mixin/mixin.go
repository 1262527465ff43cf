// Package mixin provides common mixin implementations for rom relations.
//
// A mixin contributes attributes to a relation schema and fills them in
// before commands write. These mixins are OPTIONAL and provided as
// convenient starting points.
//
// Available mixins:
//   - CreateTime: created_at, set on create, immutable
//   - UpdateTime: updated_at, set on create and update
//   - Time: combines CreateTime and UpdateTime
//   - ID: UUID primary key generated on create, immutable
//   - SoftDelete: deleted_at, with Live to read undeleted tuples
//   - TenantID: tenant_id taken from the privacy viewer, immutable
//   - TimeSoftDelete: combines Time and SoftDelete
//
// Usage:
//
//	mixins := []mixin.Mixin{mixin.ID{}, mixin.Time{}}
//	def := relation.Define("users").WithSchema(mixin.Schema(mixins,
//		relation.Attribute{Name: "name"},
//	))
//	repo.Compiler().Use("users", mixin.Option(mixins...))
package mixin

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/syssam/rom"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/privacy"
	"github.com/syssam/rom/relation"
)

// Mixin is a reusable piece of a relation definition.
type Mixin interface {
	// Attributes returns the schema attributes of the mixin.
	Attributes() []relation.Attribute
	// Before adjusts the tuples written by a command of typ.
	Before(ctx context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error)
}

// Schema returns the schema of the mixin attributes followed by attrs.
func Schema(mixins []Mixin, attrs ...relation.Attribute) *relation.Schema {
	var all []relation.Attribute
	for _, m := range mixins {
		all = append(all, m.Attributes()...)
	}
	return relation.NewSchema(append(all, attrs...)...)
}

// Option returns a command option running the mixins before every write.
func Option(mixins ...Mixin) command.Option {
	return command.Before(func(ctx context.Context, tuples, _ []rom.Tuple) ([]rom.Tuple, error) {
		cmd, ok := command.FromContext(ctx)
		if !ok {
			return tuples, nil
		}
		var err error
		for _, m := range mixins {
			if tuples, err = m.Before(ctx, cmd.Type(), tuples); err != nil {
				return nil, err
			}
		}
		return tuples, nil
	})
}

// Clock returns the current time. The zero Clock is time.Now.
type Clock func() time.Time

func (c Clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}

// CreateTime adds the created_at attribute, set on create when missing.
// Updates never change it.
type CreateTime struct {
	Now Clock
}

// Attributes of the create time mixin.
func (CreateTime) Attributes() []relation.Attribute {
	return []relation.Attribute{{Name: "created_at"}}
}

// Before sets created_at.
func (m CreateTime) Before(_ context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	switch typ {
	case command.Create:
		return setDefault(tuples, "created_at", func() any { return m.Now.now() }), nil
	case command.Update:
		return drop(tuples, "created_at"), nil
	}
	return tuples, nil
}

// UpdateTime adds the updated_at attribute, set on every create and update.
type UpdateTime struct {
	Now Clock
}

// Attributes of the update time mixin.
func (UpdateTime) Attributes() []relation.Attribute {
	return []relation.Attribute{{Name: "updated_at"}}
}

// Before sets updated_at.
func (m UpdateTime) Before(_ context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	switch typ {
	case command.Create:
		return setDefault(tuples, "updated_at", func() any { return m.Now.now() }), nil
	case command.Update:
		return set(tuples, "updated_at", m.Now.now()), nil
	}
	return tuples, nil
}

// Time composes CreateTime and UpdateTime. Both use the same instant.
type Time struct {
	Now Clock
}

// Attributes of the time mixin.
func (Time) Attributes() []relation.Attribute {
	return append(CreateTime{}.Attributes(), UpdateTime{}.Attributes()...)
}

// Before sets created_at and updated_at.
func (m Time) Before(ctx context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	now := m.Now.now()
	clock := func() time.Time { return now }
	return chain(ctx, typ, tuples, CreateTime{Now: clock}, UpdateTime{Now: clock})
}

// ID adds a UUID primary key generated on create when missing. Updates never
// change it.
type ID struct{}

// Attributes of the ID mixin.
func (ID) Attributes() []relation.Attribute {
	return []relation.Attribute{{Name: relation.DefaultPrimaryKey, PrimaryKey: true}}
}

// Before generates ids.
func (ID) Before(_ context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	switch typ {
	case command.Create:
		return setDefault(tuples, relation.DefaultPrimaryKey, func() any { return uuid.NewString() }), nil
	case command.Update:
		return drop(tuples, relation.DefaultPrimaryKey), nil
	}
	return tuples, nil
}

// SoftDelete adds the deleted_at attribute. Tuples are marked deleted by an
// update setting deleted_at; Live reads the others.
type SoftDelete struct{}

// Attributes of the soft delete mixin.
func (SoftDelete) Attributes() []relation.Attribute {
	return []relation.Attribute{{Name: "deleted_at"}}
}

// Before clears deleted_at of created tuples.
func (SoftDelete) Before(_ context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	if typ == command.Create {
		return setDefault(tuples, "deleted_at", func() any { return nil }), nil
	}
	return tuples, nil
}

// Live restricts rel to the tuples that are not deleted.
func (SoftDelete) Live(rel *relation.Relation) *relation.Relation {
	return rel.Where(rom.Tuple{"deleted_at": nil})
}

// Delete returns the update attributes marking tuples deleted at now.
func (SoftDelete) Delete(now time.Time) rom.Tuple {
	return rom.Tuple{"deleted_at": now}
}

// TenantID adds the tenant_id attribute. Creates take it from the privacy
// viewer of the context when missing; updates never change it.
//
// Combined with privacy.TenantQueryRule("tenant_id") reads are isolated per
// tenant.
type TenantID struct{}

// Attributes of the tenant id mixin.
func (TenantID) Attributes() []relation.Attribute {
	return []relation.Attribute{{Name: "tenant_id"}}
}

// Before sets tenant_id.
func (TenantID) Before(ctx context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	switch typ {
	case command.Create:
		v := privacy.ViewerFromContext(ctx)
		if v == nil || v.GetTenantID() == "" {
			for _, t := range tuples {
				if t["tenant_id"] == nil || t["tenant_id"] == "" {
					return nil, rom.NewArgumentError(string(typ), "tenant_id is required")
				}
			}
			return tuples, nil
		}
		return setDefault(tuples, "tenant_id", func() any { return v.GetTenantID() }), nil
	case command.Update:
		return drop(tuples, "tenant_id"), nil
	}
	return tuples, nil
}

// TimeSoftDelete composes Time and SoftDelete.
type TimeSoftDelete struct {
	Now Clock
}

// Attributes of the time soft delete mixin.
func (TimeSoftDelete) Attributes() []relation.Attribute {
	return append(Time{}.Attributes(), SoftDelete{}.Attributes()...)
}

// Before sets the timestamps.
func (m TimeSoftDelete) Before(ctx context.Context, typ command.Type, tuples []rom.Tuple) ([]rom.Tuple, error) {
	return chain(ctx, typ, tuples, Time(m), SoftDelete{})
}

func chain(ctx context.Context, typ command.Type, tuples []rom.Tuple, mixins ...Mixin) ([]rom.Tuple, error) {
	var err error
	for _, m := range mixins {
		if tuples, err = m.Before(ctx, typ, tuples); err != nil {
			return nil, err
		}
	}
	return tuples, nil
}

func setDefault(tuples []rom.Tuple, attr string, v func() any) []rom.Tuple {
	out := make([]rom.Tuple, len(tuples))
	for i, t := range tuples {
		out[i] = clone(t)
		if _, ok := t[attr]; !ok {
			out[i][attr] = v()
		}
	}
	return out
}

func set(tuples []rom.Tuple, attr string, v any) []rom.Tuple {
	out := make([]rom.Tuple, len(tuples))
	for i, t := range tuples {
		out[i] = clone(t)
		out[i][attr] = v
	}
	return out
}

func drop(tuples []rom.Tuple, attr string) []rom.Tuple {
	out := make([]rom.Tuple, len(tuples))
	for i, t := range tuples {
		out[i] = clone(t)
		delete(out[i], attr)
	}
	return out
}

func clone(t rom.Tuple) rom.Tuple {
	if t == nil {
		return rom.Tuple{}
	}
	return t.Clone()
}

var (
	_ Mixin = CreateTime{}
	_ Mixin = UpdateTime{}
	_ Mixin = Time{}
	_ Mixin = ID{}
	_ Mixin = SoftDelete{}
	_ Mixin = TenantID{}
	_ Mixin = TimeSoftDelete{}
)
