package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	"github.com/oksasatya/tourauth/pkg/response"
)

const (
	CtxUserIDKey = "userID"
	CtxUserKey   = "user"
)

// Protect authenticates the session token and stores the user in the Gin
// context under CtxUserKey and its id under CtxUserIDKey.
func Protect(guard *application.Guard, logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := guard.Authenticate(c.Request.Context(), SessionToken(c))
		if err != nil {
			response.Fail(c, logger, err)
			return
		}
		c.Set(CtxUserKey, u)
		c.Set(CtxUserIDKey, u.ID)
		c.Next()
	}
}

// RestrictTo must run after Protect.
func RestrictTo(logger *logrus.Logger, roles ...entity.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := application.Authorize(CurrentUser(c), roles...); err != nil {
			response.Fail(c, logger, err)
			return
		}
		c.Next()
	}
}

// CurrentUser returns the user stored by Protect, nil when absent.
func CurrentUser(c *gin.Context) *entity.User {
	v, ok := c.Get(CtxUserKey)
	if !ok {
		return nil
	}
	u, _ := v.(*entity.User)
	return u
}
