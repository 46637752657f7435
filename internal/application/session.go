package application

import (
	"time"

	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/pkg/apperror"
	"github.com/oksasatya/tourauth/pkg/helpers"
)

// Session is a signed token plus what the transport needs to deliver it.
type Session struct {
	Token           string
	IssuedAt        time.Time
	ExpiresAt       time.Time
	CookieExpiresAt time.Time
	User            entity.PublicUser
}

type SessionIssuer struct {
	JWT       *helpers.JWTManager
	CookieTTL time.Duration
}

func NewSessionIssuer(jwt *helpers.JWTManager, cookieTTL time.Duration) *SessionIssuer {
	return &SessionIssuer{JWT: jwt, CookieTTL: cookieTTL}
}

func (i *SessionIssuer) Issue(u *entity.User) (*Session, error) {
	token, iat, exp, err := i.JWT.Issue(u.ID)
	if err != nil {
		return nil, apperror.Internal(err)
	}
	cookieExp := exp
	if i.CookieTTL > 0 {
		cookieExp = iat.Add(i.CookieTTL)
	}
	return &Session{
		Token:           token,
		IssuedAt:        iat,
		ExpiresAt:       exp,
		CookieExpiresAt: cookieExp,
		User:            u.Public(),
	}, nil
}
