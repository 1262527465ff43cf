package command

import (
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/go-playground/validator/v10"

	"github.com/syssam/rom"
)

// Validator checks a tuple before it is persisted.
type Validator interface {
	Validate(t rom.Tuple) error
}

// The ValidatorFunc type is an adapter to allow the use of ordinary
// functions as Validator.
type ValidatorFunc func(rom.Tuple) error

// Validate calls f(t).
func (f ValidatorFunc) Validate(t rom.Tuple) error { return f(t) }

// RulesValidator validates tuples against validator tags per attribute,
// for example {"name": "required,max=64", "email": "omitempty,email"}.
type RulesValidator struct {
	validate *validator.Validate
	rules    map[string]any
}

// NewRulesValidator returns a validator for the given attribute rules.
func NewRulesValidator(rules map[string]string) *RulesValidator {
	r := make(map[string]any, len(rules))
	for attr, rule := range rules {
		r[attr] = rule
	}
	return &RulesValidator{validate: validator.New(), rules: r}
}

// Validate implements Validator.
func (v *RulesValidator) Validate(t rom.Tuple) error {
	errs := v.validate.ValidateMap(map[string]any(t), v.rules)
	if len(errs) == 0 {
		return nil
	}
	list := make([]error, 0, len(errs))
	for _, attr := range slices.Sorted(maps.Keys(errs)) {
		if err, ok := errs[attr].(error); ok {
			list = append(list, fmt.Errorf("%s: %w", attr, err))
			continue
		}
		list = append(list, fmt.Errorf("%s: %v", attr, errs[attr]))
	}
	return errors.Join(list...)
}
