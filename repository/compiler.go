package repository

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/go-openapi/inflect"

	"github.com/syssam/rom"
	"github.com/syssam/rom/ast"
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/relation"
)

// CommandCompiler builds command graphs mirroring the shape of relation
// graphs. Every relation node of the AST becomes a lazy command reading its
// input at the node's path of the graph input: the root is read under its
// singular name for result one and its plural name for result many, nested
// nodes under their combine names.
type CommandCompiler struct {
	relations *relation.Registry
	commands  *command.Registry
	options   map[string][]command.Option
}

// NewCommandCompiler returns a compiler resolving relations in rels and
// executors in cmds.
func NewCommandCompiler(rels *relation.Registry, cmds *command.Registry) *CommandCompiler {
	return &CommandCompiler{relations: rels, commands: cmds, options: make(map[string][]command.Option)}
}

// Use appends options applied to every command compiled for the relation,
// such as validators or hooks.
func (c *CommandCompiler) Use(relation string, opts ...command.Option) {
	c.options[relation] = append(c.options[relation], opts...)
}

// CompileCommand implements relation.CommandCompiler.
func (c *CommandCompiler) CompileCommand(node ast.Relation, typ string, result ast.CombineType) (relation.CommandNode, error) {
	return c.Compile(node, typ, result)
}

// Compile returns the command graph of typ for the AST.
func (c *CommandCompiler) Compile(node ast.Relation, typ string, result ast.CombineType) (*CommandProxy, error) {
	t, err := command.ParseType(typ)
	if err != nil {
		return nil, err
	}
	if result == "" {
		result = ast.One
	}
	key := RootKey(node, result)
	n, err := c.visit(node, t, result, []string{key}, nil)
	if err != nil {
		return nil, err
	}
	return &CommandProxy{key: key, node: n}, nil
}

// RootKey returns the key the graph input is nested under: the singular
// relation key for result one, the plural one otherwise.
func RootKey(node ast.Relation, result ast.CombineType) string {
	key := node.Key()
	if result == ast.One {
		return inflect.Singularize(key)
	}
	return key
}

func (c *CommandCompiler) visit(node ast.Relation, typ command.Type, result ast.CombineType, path []string, parent *relation.Relation) (command.Node, error) {
	rel, err := c.relations.Fetch(node.Name)
	if err != nil {
		return nil, err
	}
	opts := []command.Option{command.WithResult(result)}
	if parent != nil {
		opts = append(opts, command.WithAssociation(c.associate(parent, rel, node)))
	}
	opts = append(opts, c.options[node.Name]...)
	cmd, err := command.Build(c.commands, typ, rel, opts...)
	if err != nil {
		return nil, err
	}
	var (
		children = node.Nodes()
		exclude  = make([]string, 0, len(children))
		nodes    = make([]command.Node, 0, len(children))
	)
	for _, child := range children {
		if child.Meta.Wrap {
			continue
		}
		exclude = append(exclude, child.Key())
		res := child.Meta.CombineType
		if res == "" {
			res = ast.Many
		}
		n, err := c.visit(child, typ, res, append(slices.Clone(path), child.Key()), rel)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	lazy := command.NewLazy(cmd, command.NewInputEvaluator(strings.Join(path, "."), exclude...), restrictByPK)
	if len(nodes) == 0 {
		return lazy, nil
	}
	return command.NewGraph(lazy, nodes...), nil
}

// associate returns the parent to child attributes set on child tuples.
// Keys of the node win over the association declared on the parent.
func (c *CommandCompiler) associate(parent, rel *relation.Relation, node ast.Relation) map[string]string {
	if len(node.Meta.Keys) > 0 {
		return node.Meta.Keys
	}
	if assoc, ok := parent.Schema().Association(node.Key()); ok && !assoc.Parent() {
		return assoc.CombineKeys(parent, rel)
	}
	return relation.InferCombineKeys(parent, rel, relation.Children)
}

// restrictByPK restricts updates and deletes to the tuple identified by the
// primary key of the input, when present.
func restrictByPK(cmd *command.Command, _, tuple rom.Tuple) (*command.Command, error) {
	pk := cmd.Relation().PrimaryKey()
	v, ok := tuple[pk]
	if !ok || v == nil {
		return cmd, nil
	}
	return cmd.Restrict(relation.ByPK, v)
}

// CommandProxy calls a compiled command graph with input nested under the
// root key and returns the result of the root command.
type CommandProxy struct {
	key  string
	node command.Node
}

// Key returns the root key.
func (p *CommandProxy) Key() string { return p.key }

// Node returns the compiled command graph.
func (p *CommandProxy) Node() command.Node { return p.node }

// Result returns the cardinality of the root command.
func (p *CommandProxy) Result() command.Result { return p.node.Result() }

// Call persists input, a tuple for result one or a collection of tuples for
// result many, with its nested tuples.
func (p *CommandProxy) Call(ctx context.Context, args ...any) (any, error) {
	if len(args) == 0 {
		return nil, rom.NewArgumentError(p.String(), "missing input")
	}
	in := append([]any{rom.Tuple{p.key: args[0]}}, args[1:]...)
	resp, err := p.node.Call(ctx, in...)
	if err != nil {
		return nil, err
	}
	if _, ok := p.node.(*command.Graph); !ok {
		return resp, nil
	}
	out := resp.([]any)
	if p.node.Result() == command.One {
		return out[0].([]any)[0], nil
	}
	return out[0], nil
}

// String implements fmt.Stringer.
func (p *CommandProxy) String() string {
	return fmt.Sprintf("proxy[%s]", p.key)
}
