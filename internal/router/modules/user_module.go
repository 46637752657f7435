package modules

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/oksasatya/tourauth/internal/application"
	"github.com/oksasatya/tourauth/internal/domain/entity"
	handlers "github.com/oksasatya/tourauth/internal/interface/http"
	"github.com/oksasatya/tourauth/internal/interface/middleware"
)

// UserModule wires the signed-in user's profile and the admin directory.
// Protected: GET /users/me, PATCH /users/me/photo
// Admin: GET /users/search
type UserModule struct {
	Handler *handlers.UserHandler
	Guard   *application.Guard
	RDB     *redis.Client
	Logger  *logrus.Logger
}

func NewUserModule(h *handlers.UserHandler, guard *application.Guard, rdb *redis.Client, logger *logrus.Logger) *UserModule {
	return &UserModule{Handler: h, Guard: guard, RDB: rdb, Logger: logger}
}

func (m *UserModule) Register(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	users.Use(middleware.Protect(m.Guard, m.Logger))
	users.Use(
		middleware.RateLimit(m.RDB, middleware.Policy{Name: "users-ip", Max: 300, Window: time.Minute, Key: middleware.KeyByIP()}),
		middleware.RateLimit(m.RDB, middleware.Policy{Name: "users", Max: 120, Window: time.Minute, Key: middleware.KeyByUserID()}),
	)
	{
		users.GET("/me", m.Handler.Me)
		users.PATCH("/me/photo", m.Handler.UploadPhoto)
		users.GET("/search", middleware.RestrictTo(m.Logger, entity.RoleAdmin), m.Handler.Search)
	}
}
