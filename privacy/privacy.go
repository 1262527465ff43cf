package privacy

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/syssam/rom"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/relation"
)

// Policy decision sentinel errors.
//
// These errors are used as return values from policy rules to indicate
// how the policy evaluation should proceed. Use errors.Is() to check
// for these values:
//
//	if errors.Is(err, privacy.Allow) { ... }
//	if errors.Is(err, privacy.Deny) { ... }
//	if errors.Is(err, privacy.Skip) { ... }
var (
	// Allow may be returned by rules to indicate that the policy
	// evaluation should terminate with an allow decision.
	Allow = errors.New("rom/privacy: allow rule")

	// Deny may be returned by rules to indicate that the policy
	// evaluation should terminate with a deny decision.
	Deny = errors.New("rom/privacy: deny rule")

	// Skip may be returned by rules to indicate that the policy
	// evaluation should continue to the next rule in the chain.
	Skip = errors.New("rom/privacy: skip rule")
)

// Allowf returns a formatted wrapped Allow decision.
func Allowf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Allow)...)
}

// Denyf returns a formatted wrapped Deny decision.
func Denyf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Deny)...)
}

// Skipf returns a formatted wrapped Skip decision.
func Skipf(format string, a ...any) error {
	return fmt.Errorf(format+": %w", append(a, Skip)...)
}

// AlwaysAllowRule returns a rule that always returns an Allow decision.
func AlwaysAllowRule() QueryMutationRule {
	return fixedDecision{Allow}
}

// AlwaysDenyRule returns a rule that always returns a Deny decision.
func AlwaysDenyRule() QueryMutationRule {
	return fixedDecision{Deny}
}

// ContextQueryMutationRule creates a query/mutation rule from a context
// evaluation function. Returning nil is equivalent to returning Skip.
func ContextQueryMutationRule(eval func(context.Context) error) QueryMutationRule {
	return contextDecision{eval}
}

// Query is a relation read under evaluation. Query rules may narrow it
// with Where.
type Query struct {
	rel *relation.Relation
}

// NewQuery returns the query reading rel.
func NewQuery(rel *relation.Relation) *Query {
	return &Query{rel: rel}
}

// Relation returns the relation read, including the restrictions added by
// rules so far.
func (q *Query) Relation() *relation.Relation { return q.rel }

// Where restricts the query to the tuples matching cond.
func (q *Query) Where(cond rom.Tuple) { q.rel = q.rel.Where(cond) }

// Mutation is a command under evaluation.
type Mutation struct {
	cmd     *command.Command
	input   []rom.Tuple
	parents []rom.Tuple
}

// NewMutation returns the mutation of cmd writing input. Parents are the
// parent tuples of a nested command, if any.
func NewMutation(cmd *command.Command, input, parents []rom.Tuple) *Mutation {
	return &Mutation{cmd: cmd, input: input, parents: parents}
}

// Command returns the command.
func (m *Mutation) Command() *command.Command { return m.cmd }

// Type returns the command type.
func (m *Mutation) Type() command.Type { return m.cmd.Type() }

// Relation returns the relation written.
func (m *Mutation) Relation() *relation.Relation { return m.cmd.Relation() }

// Input returns the tuples to create or the update attributes. Deletes have
// no input.
func (m *Mutation) Input() []rom.Tuple { return m.input }

// Parents returns the parent tuples of a nested command.
func (m *Mutation) Parents() []rom.Tuple { return m.parents }

// Tuples returns the tuples the mutation touches: the input of a create,
// the tuples of the restricted relation of an update or delete.
func (m *Mutation) Tuples(ctx context.Context) ([]rom.Tuple, error) {
	if m.Type() == command.Create {
		return m.input, nil
	}
	l, err := m.Relation().Call(ctx)
	if err != nil {
		return nil, err
	}
	return l.Tuples(), nil
}

type (
	// QueryRule defines the interface deciding whether a
	// query is allowed and optionally modify it.
	QueryRule interface {
		EvalQuery(context.Context, *Query) error
	}

	// QueryPolicy combines multiple query rules into a single policy.
	QueryPolicy []QueryRule

	// MutationRule defines the interface deciding whether a
	// mutation is allowed.
	MutationRule interface {
		EvalMutation(context.Context, *Mutation) error
	}

	// MutationPolicy combines multiple mutation rules into a single policy.
	MutationPolicy []MutationRule

	// QueryMutationRule is an interface which groups query and mutation rules.
	QueryMutationRule interface {
		QueryRule
		MutationRule
	}
)

// QueryRuleFunc type is an adapter which allows the use of
// ordinary functions as query rules.
type QueryRuleFunc func(context.Context, *Query) error

// EvalQuery returns f(ctx, q).
func (f QueryRuleFunc) EvalQuery(ctx context.Context, q *Query) error {
	return f(ctx, q)
}

// MutationRuleFunc type is an adapter which allows the use of
// ordinary functions as mutation rules.
type MutationRuleFunc func(context.Context, *Mutation) error

// EvalMutation returns f(ctx, m).
func (f MutationRuleFunc) EvalMutation(ctx context.Context, m *Mutation) error {
	return f(ctx, m)
}

// OnCommand evaluates the given rule only on the given command types.
func OnCommand(rule MutationRule, types ...command.Type) MutationRule {
	return MutationRuleFunc(func(ctx context.Context, m *Mutation) error {
		if slices.Contains(types, m.Type()) {
			return rule.EvalMutation(ctx, m)
		}
		return Skip
	})
}

// DenyCommandRule returns a rule denying the given command types.
func DenyCommandRule(types ...command.Type) MutationRule {
	rule := MutationRuleFunc(func(_ context.Context, m *Mutation) error {
		return Denyf("rom/privacy: %s commands are not allowed on %s", m.Type(), m.Relation().Name())
	})
	return OnCommand(rule, types...)
}

// AllowCommandRule returns a rule allowing the given command types.
func AllowCommandRule(types ...command.Type) MutationRule {
	rule := MutationRuleFunc(func(context.Context, *Mutation) error {
		return Allow
	})
	return OnCommand(rule, types...)
}

// Policy groups query and mutation policies.
type Policy struct {
	Query    QueryPolicy
	Mutation MutationPolicy
}

// EvalQuery forwards evaluation to the query policy.
func (p Policy) EvalQuery(ctx context.Context, q *Query) error {
	return p.Query.EvalQuery(ctx, q)
}

// EvalMutation forwards evaluation to the mutation policy.
func (p Policy) EvalMutation(ctx context.Context, m *Mutation) error {
	return p.Mutation.EvalMutation(ctx, m)
}

// Policies combines multiple policies into a single policy. A decision
// attached to the context with DecisionContext overrides them all.
type Policies []QueryMutationRule

// EvalQuery evaluates the query policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalQuery(ctx context.Context, q *Query) error {
	return policies.eval(ctx, func(policy QueryMutationRule) error {
		return policy.EvalQuery(ctx, q)
	})
}

// EvalMutation evaluates the mutation policies. If the Allow error is returned
// from one of the policies, it stops the evaluation with a nil error.
func (policies Policies) EvalMutation(ctx context.Context, m *Mutation) error {
	return policies.eval(ctx, func(policy QueryMutationRule) error {
		return policy.EvalMutation(ctx, m)
	})
}

func (policies Policies) eval(ctx context.Context, eval func(QueryMutationRule) error) error {
	if decision, ok := DecisionFromContext(ctx); ok {
		return decision
	}
	for _, policy := range policies {
		switch decision := eval(policy); {
		case decision == nil || errors.Is(decision, Skip):
		case errors.Is(decision, Allow):
			return nil
		default:
			return decision
		}
	}
	return nil
}

// EvalQuery evaluates a query against a query policy.
func (policies QueryPolicy) EvalQuery(ctx context.Context, q *Query) error {
	for _, policy := range policies {
		switch decision := policy.EvalQuery(ctx, q); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

// EvalMutation evaluates a mutation against a mutation policy.
func (policies MutationPolicy) EvalMutation(ctx context.Context, m *Mutation) error {
	for _, policy := range policies {
		switch decision := policy.EvalMutation(ctx, m); {
		case decision == nil || errors.Is(decision, Skip):
		default:
			return decision
		}
	}
	return nil
}

type decisionCtxKey struct{}

// DecisionContext creates a new context from the given parent context with
// a policy decision attach to it.
func DecisionContext(parent context.Context, decision error) context.Context {
	if decision == nil || errors.Is(decision, Skip) {
		return parent
	}
	return context.WithValue(parent, decisionCtxKey{}, decision)
}

// DecisionFromContext retrieves the policy decision from the context.
func DecisionFromContext(ctx context.Context) (error, bool) {
	decision, ok := ctx.Value(decisionCtxKey{}).(error)
	if ok && errors.Is(decision, Allow) {
		decision = nil
	}
	return decision, ok
}

// Enforce returns a command option that evaluates policy before the
// command writes. A denied command fails with the policy's decision.
//
//	repo.Compiler().Use("tasks", privacy.Enforce(privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.IsOwner("user_id"),
//		privacy.AlwaysDenyRule(),
//	}))
func Enforce(policy MutationRule) command.Option {
	return command.Before(func(ctx context.Context, tuples, parents []rom.Tuple) ([]rom.Tuple, error) {
		cmd, ok := command.FromContext(ctx)
		if !ok {
			return nil, Denyf("rom/privacy: no command in context")
		}
		if err := decide(policy.EvalMutation(ctx, NewMutation(cmd, tuples, parents))); err != nil {
			return nil, fmt.Errorf("rom/privacy: %s: %w", cmd, err)
		}
		return tuples, nil
	})
}

// Guarded is a relation read through a query policy.
type Guarded struct {
	rel    *relation.Relation
	policy QueryRule
}

// Guard returns rel read through policy.
func Guard(rel *relation.Relation, policy QueryRule) *Guarded {
	return &Guarded{rel: rel, policy: policy}
}

// Relation returns the unguarded relation.
func (g *Guarded) Relation() *relation.Relation { return g.rel }

// Call evaluates the policy and materializes the relation as narrowed by
// the policy rules.
func (g *Guarded) Call(ctx context.Context, args ...any) (*relation.Loaded, error) {
	q := NewQuery(g.rel)
	if err := decide(g.policy.EvalQuery(ctx, q)); err != nil {
		return nil, fmt.Errorf("rom/privacy: %s: %w", g.rel.Name(), err)
	}
	return q.rel.Call(ctx, args...)
}

var _ relation.Materializable = (*Guarded)(nil)

func decide(decision error) error {
	if decision == nil || errors.Is(decision, Skip) || errors.Is(decision, Allow) {
		return nil
	}
	return decision
}

type fixedDecision struct {
	decision error
}

func (f fixedDecision) EvalQuery(context.Context, *Query) error {
	return f.decision
}

func (f fixedDecision) EvalMutation(context.Context, *Mutation) error {
	return f.decision
}

type contextDecision struct {
	eval func(context.Context) error
}

func (c contextDecision) EvalQuery(ctx context.Context, _ *Query) error {
	return c.eval(ctx)
}

func (c contextDecision) EvalMutation(ctx context.Context, _ *Mutation) error {
	return c.eval(ctx)
}
