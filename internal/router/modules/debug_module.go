package modules

import (
	"expvar"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/oksasatya/tourauth/internal/interface/middleware"
)

type DebugModule struct {
	RDB *redis.Client
}

func NewDebugModule(rdb *redis.Client) *DebugModule { return &DebugModule{RDB: rdb} }

func (m *DebugModule) Register(rg *gin.RouterGroup) {
	// expvar counters, private networks only, rate-limited per IP
	rl := middleware.RateLimit(m.RDB, middleware.Policy{Name: "debug", Max: 120, Window: time.Minute, Key: middleware.KeyByIP()})
	rg.GET("/debug/vars", middleware.OnlyPrivateIP(), rl, gin.WrapH(expvar.Handler()))
}
