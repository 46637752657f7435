package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	handlers "github.com/oksasatya/tourauth/internal/interface/http"
	"github.com/oksasatya/tourauth/internal/interface/middleware"
)

type AuthModule struct {
	Handler *handlers.AuthHandler
	Guard   *application.Guard
	RDB     *redis.Client
	Logger  *logrus.Logger
}

func NewAuthModule(h *handlers.AuthHandler, guard *application.Guard, rdb *redis.Client, logger *logrus.Logger) *AuthModule {
	return &AuthModule{Handler: h, Guard: guard, RDB: rdb, Logger: logger}
}

// Auth endpoint budgets; mail-sending endpoints are the tightest.
var (
	loginPolicy    = middleware.Policy{Name: "login", Max: 10, Window: time.Minute, Key: middleware.KeyByIPAndPath()}
	mailPolicy     = middleware.Policy{Name: "mail", Max: 5, Window: time.Minute, Key: middleware.KeyByIPAndPath()}
	tokenPolicy    = middleware.Policy{Name: "token", Max: 30, Window: time.Minute, Key: middleware.KeyByIPAndPath()}
	passwordPolicy = middleware.Policy{Name: "password", Max: 5, Window: time.Minute, Key: middleware.KeyByUserID()}
)

func (m *AuthModule) Register(rg *gin.RouterGroup) {
	login := middleware.RateLimit(m.RDB, loginPolicy)
	mail := middleware.RateLimit(m.RDB, mailPolicy)
	token := middleware.RateLimit(m.RDB, tokenPolicy)

	auth := rg.Group("/auth")
	auth.POST("/signup", mail, m.Handler.Signup)
	auth.POST("/confirm-email/resend", mail, m.Handler.ResendConfirmation)
	auth.PATCH("/confirm-email/:token", token, m.Handler.ConfirmEmail)
	auth.POST("/login", login, m.Handler.Login)
	auth.POST("/logout", m.Handler.Logout)
	auth.PATCH("/unlock/:token", token, m.Handler.Unlock)
	auth.POST("/forgot-password", mail, m.Handler.ForgotPassword)
	auth.PATCH("/reset-password/:token", token, m.Handler.ResetPassword)

	auth.PATCH("/update-password",
		middleware.Protect(m.Guard, m.Logger),
		middleware.RateLimit(m.RDB, passwordPolicy),
		m.Handler.UpdatePassword,
	)
}
