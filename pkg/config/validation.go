package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks cfg against the `validate` struct tags declared
// throughout this package, returning every failing field in one error.
// Call it after ApplyDefaults so required-but-defaulted fields don't
// spuriously fail.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return fmt.Errorf("invalid config for validation: %w", err)
		}
		return err
	}
	return nil
}
