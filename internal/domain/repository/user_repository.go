package repository

import (
	"context"
	"time"

	"github.com/oksasatya/tourauth/internal/domain/entity"
)

// TokenField names the recovery token a lookup matches against.
type TokenField int

const (
	TokenConfirmEmail TokenField = iota
	TokenPasswordReset
	TokenAccountUnlock
)

// LoadOptions controls the read projection. Secrets (password hash, login
// attempts, token digests) are only loaded when asked for.
type LoadOptions struct {
	Secrets bool
}

type LoadOption func(*LoadOptions)

func WithSecrets() LoadOption { return func(o *LoadOptions) { o.Secrets = true } }

func ApplyLoadOptions(opts ...LoadOption) LoadOptions {
	var o LoadOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// SaveOptions: SkipValidation is for bookkeeping writes such as clearing a
// token after a failed send.
type SaveOptions struct {
	SkipValidation bool
}

// UserRepository defines the interface for user-related database operations.
// Lookups that match nothing return an apperror of kind NotFound.
type UserRepository interface {
	Create(ctx context.Context, u *entity.User) error
	FindByID(ctx context.Context, id string, opts ...LoadOption) (*entity.User, error)
	FindByEmail(ctx context.Context, email string, opts ...LoadOption) (*entity.User, error)
	FindByTokenHash(ctx context.Context, field TokenField, hash string) (*entity.User, error)
	Save(ctx context.Context, u *entity.User, opts SaveOptions) error
	// IncrementLoginAttempts atomically bumps the counter and returns the new value.
	IncrementLoginAttempts(ctx context.Context, id string) (int, error)
	// ResetLoginAttempts zeroes the counter unless the account is locked and
	// reports whether it did.
	ResetLoginAttempts(ctx context.Context, id string) (bool, error)
	// Lock moves an account that is not already locked to locked, dropping any
	// pending token and leaving every other column alone. It reports whether
	// this call locked it.
	Lock(ctx context.Context, id string) (bool, error)
	// ClearExpiredResets moves users whose reset window closed before now back to active.
	ClearExpiredResets(ctx context.Context, now time.Time) (int64, error)
}
