package core

import (
	"errors"
	"log/slog"

	"github.com/go-playground/validator/v10"

	"huddle/internal/types"
)

// Validator wraps go-playground/validator for request body validation.
// Validation failures are translated into structured AppErrors with
// per-field details so clients can surface them.
type Validator struct {
	logger   *slog.Logger
	validate *validator.Validate
}

// NewValidator creates a new Validator with the platform's validation rules.
func NewValidator(logger *slog.Logger) *Validator {
	return &Validator{
		logger:   logger,
		validate: validator.New(),
	}
}

// ValidateStruct validates the struct's `validate` tags and returns a
// *types.AppError (400, validation_invalid_body) listing the failing fields,
// or nil if the struct is valid.
func (v *Validator) ValidateStruct(s interface{}) error {
	err := v.validate.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		// Non-validation errors (e.g., passing a non-struct) are programmer
		// mistakes, not client input problems.
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fields := make(map[string]any, len(verrs))
	for _, fe := range verrs {
		fields[fe.Field()] = fe.Tag()
	}
	return types.NewAppErrorWithDetails(
		types.ErrCodeValidationBody,
		"request validation failed",
		err,
		map[string]any{"fields": fields},
	)
}
