package application

import (
	"context"
	"errors"

	"github.com/golang-jwt/jwt/v5"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	repo "github.com/oksasatya/tourauth/internal/domain/repository"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
)

const (
	MsgNotLoggedIn      = "You are not logged in! Please log in to get access."
	MsgInvalidSession   = "Invalid token. Please log in again!"
	MsgExpiredSession   = "Your token has expired! Please log in again."
	MsgUserGone         = "The user belonging to this token no longer exists."
	MsgPasswordChanged  = "User recently changed password! Please log in again."
	MsgPermissionDenied = "You do not have permission to perform this action"
)

// Guard verifies session tokens against the current state of the user.
type Guard struct {
	Repo repo.UserRepository
	JWT  *helpers.JWTManager
}

func NewGuard(r repo.UserRepository, jwtm *helpers.JWTManager) *Guard {
	return &Guard{Repo: r, JWT: jwtm}
}

// Authenticate resolves token to its user. The user is loaded with the
// default projection.
func (g *Guard) Authenticate(ctx context.Context, token string) (*entity.User, error) {
	if token == "" {
		return nil, apperror.Authentication(MsgNotLoggedIn)
	}
	claims, err := g.JWT.Parse(token)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperror.Authentication(MsgExpiredSession)
		}
		return nil, apperror.Authentication(MsgInvalidSession)
	}
	u, err := g.Repo.FindByID(ctx, claims.UserID)
	if err != nil {
		if apperror.Is(err, apperror.KindNotFound) {
			return nil, apperror.Authentication(MsgUserGone)
		}
		return nil, err
	}
	if u.ChangedPasswordAfter(claims.IssuedAtTime()) {
		return nil, apperror.Authentication(MsgPasswordChanged)
	}
	return u, nil
}

// Authorize checks static role membership.
func Authorize(u *entity.User, roles ...entity.Role) error {
	if u == nil || !u.Role.In(roles...) {
		return apperror.Authorization(MsgPermissionDenied)
	}
	return nil
}
