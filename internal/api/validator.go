package api

import (
	"errors"

	"github.com/go-playground/validator/v10"

	"lovebirdz/internal/types"
)

// errCodeValidationInvalidField covers struct-tag failures that have no more
// specific domain code (length, oneof, range).
const errCodeValidationInvalidField types.ErrorCode = "validation_invalid_field"

// Validator wraps go-playground/validator and translates tag failures into
// the application's structured error codes.
type Validator struct {
	v *validator.Validate
}

// NewValidator creates a Validator with struct-tag validation enabled.
func NewValidator() *Validator {
	return &Validator{v: validator.New(validator.WithRequiredStructEnabled())}
}

// ValidateStruct validates s against its `validate` tags. The first failing
// field determines the returned AppError; clients fix one field at a time
// anyway, and a single structured error keeps the response shape stable.
func (va *Validator) ValidateStruct(s any) error {
	err := va.v.Struct(s)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return types.NewAppError(types.ErrCodeInternalUnexpected, "validation failed", err)
	}

	fe := verrs[0]
	details := map[string]any{
		"field": fe.Field(),
		"rule":  fe.Tag(),
	}

	switch fe.Tag() {
	case "required":
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationMissingField,
			"missing required field: "+fe.Field(),
			err,
			details,
		)
	case "email":
		return types.NewAppErrorWithDetails(
			types.ErrCodeValidationInvalidEmail,
			"invalid email address",
			err,
			details,
		)
	default:
		return types.NewAppErrorWithDetails(
			errCodeValidationInvalidField,
			"invalid value for field: "+fe.Field(),
			err,
			details,
		)
	}
}
