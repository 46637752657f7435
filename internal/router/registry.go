package router

import "github.com/gin-gonic/gin"

// APIPrefix is the group every module registers under.
const APIPrefix = "/api/v1"

// Registry collects modules and mounts them under APIPrefix in one pass.
type Registry struct {
	Engine  *gin.Engine
	API     *gin.RouterGroup
	modules []Module
	mounted bool
}

func NewRegistry(engine *gin.Engine, mw ...gin.HandlerFunc) *Registry {
	return &Registry{Engine: engine, API: engine.Group(APIPrefix, mw...)}
}

func (r *Registry) Add(mods ...Module) {
	r.modules = append(r.modules, mods...)
}

// RegisterAll mounts every added module once.
func (r *Registry) RegisterAll() {
	if r.mounted {
		return
	}
	r.mounted = true
	for _, m := range r.modules {
		m.Register(r.API)
	}
}
