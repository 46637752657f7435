package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/oksasatya/tourauth/pkg/helpers"
)

// SessionToken reads the bearer token from the Authorization header, falling
// back to the session cookie for browser clients.
func SessionToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if ok && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
		return ""
	}
	if token, err := c.Cookie(helpers.SessionCookieName); err == nil {
		return token
	}
	return ""
}
