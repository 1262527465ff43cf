package command

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/google/uuid"

	"github.com/syssam/rom"
)

// Graph is a root command with nodes persisting the nested parts of the same
// input. Each node is called with the root's result; lazy nodes also receive
// the original input to extract their own part from.
//
// Graphs are not transactional: when a node fails, the nodes that ran before
// it keep their effects. The returned CommandFailure names the failing node.
type Graph struct {
	root  Node
	nodes []Node
}

// NewGraph returns the graph of root and nodes.
func NewGraph(root Node, nodes ...Node) *Graph {
	return &Graph{root: root, nodes: slices.Clone(nodes)}
}

// Root returns the root node.
func (g *Graph) Root() Node { return g.root }

// Nodes returns a copy of the graph nodes.
func (g *Graph) Nodes() []Node { return slices.Clone(g.nodes) }

// Result returns the cardinality of the root.
func (g *Graph) Result() Result { return g.root.Result() }

// Call persists the root and then every node. The result is
// [[root], nodes] for a result one root and [root, nodes] otherwise.
func (g *Graph) Call(ctx context.Context, args ...any) (any, error) {
	run := uuid.NewString()
	slog.Debug("command graph started", "run", run, "root", describe(g.root), "nodes", len(g.nodes))
	left, err := g.root.Call(ctx, args...)
	if err != nil {
		slog.Warn("command graph node failed", "run", run, "node", describe(g.root), "error", err)
		return nil, rom.NewCommandFailure(g.root, err)
	}
	right := make([]any, len(g.nodes))
	for i, n := range g.nodes {
		var resp any
		if isLazy(n) {
			var input any
			if len(args) > 0 {
				input = args[0]
			}
			resp, err = n.Call(ctx, input, left)
		} else {
			resp, err = n.Call(ctx, left)
		}
		if err != nil {
			slog.Warn("command graph node failed", "run", run, "node", describe(n), "error", err)
			return nil, rom.NewCommandFailure(n, err)
		}
		if n.Result() == One && !isGraph(n) && !isCollection(resp) {
			resp = []any{resp}
		}
		right[i] = resp
	}
	slog.Debug("command graph finished", "run", run)
	if g.root.Result() == One {
		return []any{[]any{left}, right}, nil
	}
	return []any{left, right}, nil
}

// Combine returns a new graph with nodes appended.
func (g *Graph) Combine(nodes ...Node) *Graph {
	return &Graph{root: g.root, nodes: append(slices.Clone(g.nodes), nodes...)}
}

// Pipe returns g piped into right.
func (g *Graph) Pipe(right any) (*Composite, error) {
	return NewComposite(g, right)
}

// String implements fmt.Stringer.
func (g *Graph) String() string {
	parts := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		parts[i] = describe(n)
	}
	return fmt.Sprintf("%s[%s]", describe(g.root), strings.Join(parts, ", "))
}

// isLazy reports whether n evaluates its own input: lazy commands and graphs
// rooted at one.
func isLazy(n Node) bool {
	switch n := n.(type) {
	case *Lazy:
		return true
	case *Graph:
		return isLazy(n.root)
	default:
		return false
	}
}

func isCollection(v any) bool {
	switch v.(type) {
	case []rom.Tuple, []any:
		return true
	default:
		return false
	}
}

func describe(n Node) string {
	if s, ok := n.(fmt.Stringer); ok {
		return s.String()
	}
	return fmt.Sprintf("%T", n)
}
