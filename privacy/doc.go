// Package privacy provides authorization policies for relations and
// commands.
//
// Policies are evaluated before a command writes and before a guarded
// relation reads, so access control lives next to the relation definitions
// instead of in every caller.
//
// # Core Concepts
//
//   - Policy: a list of rules deciding on queries and mutations
//   - Rule: a function returning Allow, Deny or Skip
//   - Viewer: the user on whose behalf the context runs
//
// Rules are evaluated in order until one returns Allow or Deny. Skip
// continues with the next rule; a policy whose rules all skip allows the
// operation, so restrictive policies end with AlwaysDenyRule.
//
// # Commands
//
// Enforce turns a mutation policy into a command option. With a repository,
// install it for every command compiled for a relation:
//
//	repo.Compiler().Use("tasks", privacy.Enforce(privacy.MutationPolicy{
//		privacy.DenyIfNoViewer(),
//		privacy.HasRole("admin"),
//		privacy.IsOwner("user_id"),
//		privacy.AlwaysDenyRule(),
//	}))
//
// Rules see the command, its input and, for updates and deletes, the tuples
// of the restricted relation through Mutation.Tuples.
//
// # Relations
//
// Guard reads a relation through a query policy. Query rules may narrow the
// relation, which is how row level security is expressed:
//
//	tasks := privacy.Guard(rel, privacy.QueryPolicy{
//		privacy.HasRole("admin"),
//		privacy.OwnerQueryRule("user_id"),
//	})
//	loaded, err := tasks.Call(privacy.WithViewer(ctx, viewer))
//
// # Context
//
// The viewer is stored in the context:
//
//	ctx = privacy.WithViewer(ctx, &privacy.SimpleViewer{
//		UserID: "user-123",
//		Roles:  []string{"user"},
//	})
//
// DecisionContext attaches a decision that short-circuits Policies, e.g.
// privacy.DecisionContext(ctx, privacy.Allow) for system jobs.
package privacy
