package repository

import (
	"errors"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/validation"
)

// ErrSecretsNotLoaded guards against writing back a user read with the
// default projection, which would blank the stored password hash.
var ErrSecretsNotLoaded = errors.New("save requires a user loaded with secrets")

// ValidateForSave runs entity validation unless the save opted out of it.
// Implementations call it before writing.
func ValidateForSave(u *entity.User, opts SaveOptions) error {
	if u.PasswordHash == "" {
		return apperror.Internal(ErrSecretsNotLoaded)
	}
	if opts.SkipValidation {
		return nil
	}
	err := u.Validate()
	if err == nil {
		return nil
	}
	var roleErr *entity.InvalidRoleError
	if errors.As(err, &roleErr) {
		return apperror.Validation("Invalid input data", map[string]string{"role": "must be one of: user, guide, lead-guide, admin"})
	}
	return apperror.Validation("Invalid input data", validation.ToDetails(err))
}

func ErrDuplicateEmail() error {
	return apperror.Validation("Invalid input data", map[string]string{"email": "is already in use"})
}

func ErrUserNotFound() error { return apperror.NotFound("user not found") }
