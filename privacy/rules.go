package privacy

import (
	"context"
	"fmt"
	"slices"

	"github.com/syssam/rom"
)

// Viewer represents the authenticated user making a request.
// This interface should be implemented by application-specific user types.
type Viewer interface {
	// GetID returns the viewer's unique identifier.
	GetID() string
	// GetRoles returns the viewer's roles.
	GetRoles() []string
	// GetTenantID returns the viewer's tenant identifier for multi-tenancy.
	// Returns empty string if not applicable.
	GetTenantID() string
}

type viewerCtxKey struct{}

// WithViewer returns a new context with the viewer attached.
func WithViewer(ctx context.Context, viewer Viewer) context.Context {
	return context.WithValue(ctx, viewerCtxKey{}, viewer)
}

// ViewerFromContext retrieves the viewer from the context.
// Returns nil if no viewer is present.
func ViewerFromContext(ctx context.Context) Viewer {
	v, _ := ctx.Value(viewerCtxKey{}).(Viewer)
	return v
}

// SimpleViewer is a basic implementation of the Viewer interface.
type SimpleViewer struct {
	UserID   string
	Roles    []string
	TenantID string
}

// GetID returns the user ID.
func (v *SimpleViewer) GetID() string { return v.UserID }

// GetRoles returns the user's roles.
func (v *SimpleViewer) GetRoles() []string { return v.Roles }

// GetTenantID returns the tenant ID.
func (v *SimpleViewer) GetTenantID() string { return v.TenantID }

// DenyIfNoViewer returns a rule that denies access if no viewer is present
// in the context. It is typically the first rule of a policy.
func DenyIfNoViewer() QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		if ViewerFromContext(ctx) == nil {
			return Denyf("rom/privacy: viewer required")
		}
		return Skip
	})
}

// HasRole returns a rule that allows access if the viewer has the specified
// role and skips otherwise.
func HasRole(role string) QueryMutationRule {
	return HasAnyRole(role)
}

// HasAnyRole returns a rule that allows access if the viewer has any of the
// specified roles and skips otherwise.
func HasAnyRole(roles ...string) QueryMutationRule {
	return ContextQueryMutationRule(func(ctx context.Context) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		for _, role := range roles {
			if slices.Contains(viewer.GetRoles(), role) {
				return Allow
			}
		}
		return Skip
	})
}

// IsOwner returns a mutation rule that allows access if every tuple the
// mutation touches has field set to the viewer's ID. It skips when a tuple
// lacks the field or belongs to someone else.
//
//	privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.IsOwner("user_id"),
//		privacy.AlwaysDenyRule(),
//	}
func IsOwner(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Skip
		}
		tuples, err := m.Tuples(ctx)
		if err != nil {
			return err
		}
		if len(tuples) == 0 {
			return Skip
		}
		for _, t := range tuples {
			v, ok := t[field]
			if !ok || id(v) != viewer.GetID() {
				return Skip
			}
		}
		return Allow
	})
}

// OwnerQueryRule returns a query rule restricting reads to the tuples whose
// field holds the viewer's ID. Queries without a viewer are denied.
func OwnerQueryRule(field string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q *Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("rom/privacy: viewer required for owner-filtered query")
		}
		q.Where(rom.Tuple{field: viewer.GetID()})
		return Skip
	})
}

// TenantRule returns a mutation rule that allows access if every tuple the
// mutation touches belongs to the viewer's tenant and denies it otherwise.
func TenantRule(field string) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil || viewer.GetTenantID() == "" {
			return Skip
		}
		tuples, err := m.Tuples(ctx)
		if err != nil {
			return err
		}
		if len(tuples) == 0 {
			return Skip
		}
		for _, t := range tuples {
			v, ok := t[field]
			if !ok {
				return Skip
			}
			if id(v) != viewer.GetTenantID() {
				return Denyf("rom/privacy: tenant mismatch")
			}
		}
		return Allow
	})
}

// TenantQueryRule returns a query rule restricting reads to the viewer's
// tenant. Queries without a viewer or tenant are denied.
func TenantQueryRule(field string) QueryRule {
	return QueryRuleFunc(func(ctx context.Context, q *Query) error {
		viewer := ViewerFromContext(ctx)
		if viewer == nil {
			return Denyf("rom/privacy: viewer required for tenant-filtered query")
		}
		if viewer.GetTenantID() == "" {
			return Denyf("rom/privacy: tenant required")
		}
		q.Where(rom.Tuple{field: viewer.GetTenantID()})
		return Skip
	})
}

func id(v any) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
