package entity

import (
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// User is the aggregate root for the account domain.
// PasswordHash holds a bcrypt hash; token fields live inside State and hold
// SHA-256 digests only. Both are empty unless the user was loaded with secrets.
type User struct {
	ID                string
	Email             string `validate:"required,email,max=254"`
	Name              string `validate:"required,max=100"`
	Photo             string
	Role              Role   `validate:"required"`
	PasswordHash      string `validate:"required"`
	LoginAttempts     int    `validate:"gte=0"`
	State             AccountState
	PasswordChangedAt time.Time
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// AccountState is the per-user flow state. Each variant carries only the
// token digest meaningful for it, so a confirmed account cannot hold a
// confirmation token and an unlocked one cannot hold an unlock token.
type AccountState interface {
	Status() Status
	accountState()
}

type Status string

const (
	StatusPendingConfirmation Status = "pending_confirmation"
	StatusActive              Status = "active"
	StatusLocked              Status = "locked"
	StatusPendingReset        Status = "pending_reset"
)

// PendingConfirmation: email not confirmed yet. TokenHash is empty when no
// confirmation link is outstanding.
type PendingConfirmation struct {
	TokenHash string
}

type Active struct{}

// Locked: too many failed logins. UnlockTokenHash is empty until an unlock
// link has been issued.
type Locked struct {
	UnlockTokenHash string
	EmailConfirmed  bool
}

// PendingReset: a password reset link is outstanding until ExpiresAt.
type PendingReset struct {
	TokenHash string
	ExpiresAt time.Time
}

func (PendingConfirmation) Status() Status { return StatusPendingConfirmation }
func (Active) Status() Status              { return StatusActive }
func (Locked) Status() Status              { return StatusLocked }
func (PendingReset) Status() Status        { return StatusPendingReset }

func (PendingConfirmation) accountState() {}
func (Active) accountState()              {}
func (Locked) accountState()              {}
func (PendingReset) accountState()        {}

// Expired reports whether the reset window has closed at now.
func (p PendingReset) Expired(now time.Time) bool { return !now.Before(p.ExpiresAt) }

// NormalizeEmail lower-cases and trims an address before storage or lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (u *User) status() Status {
	if u.State == nil {
		return StatusActive
	}
	return u.State.Status()
}

func (u *User) ConfirmedEmail() bool {
	switch s := u.State.(type) {
	case PendingConfirmation:
		return false
	case Locked:
		return s.EmailConfirmed
	default:
		return true
	}
}

func (u *User) IsLocked() bool { return u.status() == StatusLocked }

// ChangedPasswordAfter reports whether the password changed after a session
// token was issued at issuedAt. Both sides are compared at microsecond
// precision, the resolution Postgres stores.
func (u *User) ChangedPasswordAfter(issuedAt time.Time) bool {
	if u.PasswordChangedAt.IsZero() {
		return false
	}
	return u.PasswordChangedAt.Truncate(time.Microsecond).After(issuedAt.Truncate(time.Microsecond))
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the fields every persisted user must satisfy.
func (u *User) Validate() error {
	if err := validate.Struct(u); err != nil {
		return err
	}
	if !u.Role.Valid() {
		return &InvalidRoleError{Role: u.Role}
	}
	if u.State == nil {
		return ErrMissingState
	}
	return nil
}

// PublicUser is the only user representation that leaves the service.
type PublicUser struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Email          string    `json:"email"`
	Photo          string    `json:"photo,omitempty"`
	Role           Role      `json:"role"`
	ConfirmedEmail bool      `json:"confirmedEmail"`
	CreatedAt      time.Time `json:"createdAt"`
}

func (u *User) Public() PublicUser {
	return PublicUser{
		ID:             u.ID,
		Name:           u.Name,
		Email:          u.Email,
		Photo:          u.Photo,
		Role:           u.Role,
		ConfirmedEmail: u.ConfirmedEmail(),
		CreatedAt:      u.CreatedAt,
	}
}
