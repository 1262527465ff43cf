package rom_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/rom"
)

func TestTupleCountMismatchError(t *testing.T) {
	t.Run("Error", func(t *testing.T) {
		assert.Equal(t, "rom: users expects one tuple (got 3)", rom.NewTupleCountMismatchError("users", 3).Error())
		assert.Equal(t, "rom: users expects one tuple", rom.NewTupleCountMismatchError("users", -1).Error())
	})

	t.Run("Is", func(t *testing.T) {
		err := rom.NewTupleCountMismatchError("tasks", 0)
		assert.True(t, errors.Is(err, rom.ErrTupleCountMismatch))
		assert.Equal(t, 0, err.Count())
	})

	t.Run("IsTupleCountMismatch", func(t *testing.T) {
		wrapped := fmt.Errorf("wrapper: %w", rom.NewTupleCountMismatchError("tasks", 2))
		assert.True(t, rom.IsTupleCountMismatch(wrapped))
		assert.True(t, rom.IsTupleCountMismatch(rom.ErrTupleCountMismatch))
		assert.False(t, rom.IsTupleCountMismatch(errors.New("other error")))
		assert.False(t, rom.IsTupleCountMismatch(nil))
	})
}

func TestArgumentError(t *testing.T) {
	err := rom.NewArgumentError("users#by_name", "expected %d arguments, got %d", 1, 2)
	assert.Equal(t, "rom: users#by_name: expected 1 arguments, got 2", err.Error())
	assert.True(t, errors.Is(err, rom.ErrArgument))
	assert.True(t, rom.IsArgumentError(fmt.Errorf("call: %w", err)))
	assert.True(t, rom.IsArgumentError(rom.ErrArgument))
	assert.False(t, rom.IsArgumentError(rom.ErrNoMethod))
	assert.False(t, rom.IsArgumentError(nil))
}

func TestNoMethodError(t *testing.T) {
	err := rom.NewNoMethodError("users", "by_email")
	assert.Equal(t, `rom: undefined method "by_email" for users`, err.Error())
	assert.True(t, errors.Is(err, rom.ErrNoMethod))
	assert.True(t, rom.IsNoMethod(fmt.Errorf("view: %w", err)))
	assert.False(t, rom.IsNoMethod(rom.NewArgumentError("users", "bad")))
	assert.False(t, rom.IsNoMethod(nil))
}

func TestKeyMissingError(t *testing.T) {
	err := &rom.KeyMissingError{Path: []string{"user", "tasks"}, Key: "tags"}
	assert.Equal(t, `rom: key "tags" not found in input path [user tasks]`, err.Error())
	assert.True(t, errors.Is(err, rom.ErrKeyMissing))
}

func TestConfigurationErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"missing_adapter", &rom.MissingAdapterIdentifierError{Relation: "users"}, `rom: relation "users" is missing an adapter identifier`},
		{"missing_schema", &rom.MissingSchemaError{Relation: "users"}, `rom: relation "users" is missing a schema`},
		{"already_defined", &rom.RelationAlreadyDefinedError{Name: "users"}, `rom: relation "users" is already defined`},
		{"unsupported", &rom.UnsupportedRelationError{Type: "composite"}, "rom: composite cannot be used as a graph node"},
		{"adapter_not_present", &rom.AdapterNotPresentError{Adapter: "csv", Type: "create"}, `rom: adapter "csv" has no create command`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.msg, tt.err.Error())
			assert.True(t, rom.IsConfigurationError(tt.err))
			assert.True(t, rom.IsConfigurationError(fmt.Errorf("define: %w", tt.err)))
		})
	}

	assert.False(t, rom.IsConfigurationError(rom.ErrArgument))
	assert.False(t, rom.IsConfigurationError(nil))
}

type node string

func (n node) String() string { return string(n) }

func TestCommandFailure(t *testing.T) {
	cause := rom.NewConstraintError("UNIQUE constraint failed: users.name", errors.New("sqlite"))

	t.Run("Error", func(t *testing.T) {
		assert.Equal(t, "rom: command create[users] failed: rom: constraint failed: UNIQUE constraint failed: users.name",
			rom.NewCommandFailure(node("create[users]"), cause).Error())
		assert.Equal(t, "rom: command failed: boom", rom.NewCommandFailure(42, errors.New("boom")).Error())
	})

	t.Run("Unwrap", func(t *testing.T) {
		err := rom.NewCommandFailure(nil, rom.NewCommandFailure(node("create[tasks]"), cause))
		assert.True(t, rom.IsCommandFailure(err))
		assert.True(t, rom.IsConstraintError(err))

		var failure *rom.CommandFailure
		require.True(t, errors.As(err, &failure))
		assert.Nil(t, failure.Node)
		assert.False(t, rom.IsCommandFailure(cause))
		assert.False(t, rom.IsCommandFailure(nil))
	})
}

func TestValidationError(t *testing.T) {
	cause := errors.New("title is required")
	err := rom.NewValidationError("tasks", cause)
	assert.Equal(t, `rom: validation failed for "tasks": title is required`, err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, rom.IsValidationError(fmt.Errorf("create: %w", err)))
	assert.False(t, rom.IsValidationError(cause))
	assert.False(t, rom.IsValidationError(nil))
}

func TestConstraintError(t *testing.T) {
	cause := errors.New("duplicate key")
	err := rom.NewConstraintError("users_name_key", cause)
	assert.Equal(t, "rom: constraint failed: users_name_key", err.Error())
	assert.ErrorIs(t, err, cause)
	assert.True(t, rom.IsConstraintError(fmt.Errorf("insert: %w", err)))
	assert.False(t, rom.IsConstraintError(cause))
	assert.False(t, rom.IsConstraintError(nil))
}
