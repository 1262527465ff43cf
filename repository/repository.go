// Package repository ties relation and command registries together.
//
// A Repository installs a CommandCompiler into its relation registry so that
// combined relations can compile command graphs persisting input of the same
// shape they read:
//
//	repo := repository.New(rels, cmds)
//	users, _ := rels.Fetch("users")
//	g, _ := users.Combine("tasks")
//	create, _ := g.Command("create", ast.One)
//	user, err := create.Call(ctx, rom.Tuple{"name": "Jane", "tasks": []rom.Tuple{{"title": "Task"}}})
package repository

import (
	"github.com/syssam/rom/command"
	"github.com/syssam/rom/relation"
)

// Repository gives access to the relations and commands of an application.
type Repository struct {
	relations *relation.Registry
	commands  *command.Registry
	compiler  *CommandCompiler
}

// New returns a repository over rels and cmds and installs its command
// compiler into rels.
func New(rels *relation.Registry, cmds *command.Registry) *Repository {
	c := NewCommandCompiler(rels, cmds)
	rels.UseCommands(c)
	return &Repository{relations: rels, commands: cmds, compiler: c}
}

// Relations returns the relation registry.
func (r *Repository) Relations() *relation.Registry { return r.relations }

// Commands returns the executor registry.
func (r *Repository) Commands() *command.Registry { return r.commands }

// Compiler returns the installed command compiler.
func (r *Repository) Compiler() *CommandCompiler { return r.compiler }

// Relation returns the relation registered under name.
func (r *Repository) Relation(name string) (*relation.Relation, error) {
	return r.relations.Fetch(name)
}

// Command returns a command of typ for the relation registered under name.
// Options registered with the compiler for the relation apply first.
func (r *Repository) Command(typ command.Type, name string, opts ...command.Option) (*command.Command, error) {
	rel, err := r.relations.Fetch(name)
	if err != nil {
		return nil, err
	}
	opts = append(append([]command.Option(nil), r.compiler.options[name]...), opts...)
	return command.Build(r.commands, typ, rel, opts...)
}
