package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ZGRSRL/mergenlite-sub000/internal/config"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/metrics"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server/middleware"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server/respond"
)

// RouteRegistrar is implemented by domain handlers that attach their own
// routes under the versioned API group.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// NewRouter constructs the Gin engine with middleware and routes registered.
// Dependency construction happens in bootstrap; the router only wires
// handlers it is given.
func NewRouter(cfg config.Config, handlers ...RouteRegistrar) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(cfg.CORSAllowOrigins),
		middleware.RateLimit(middleware.RateLimitConfig{
			Rules: map[string]middleware.RateLimitRule{
				"DEFAULT":  {Rate: 10, Burst: 30},
				"PIPELINE": {Rate: 1, Burst: 5},
			},
			GroupFor: func(c *gin.Context) string {
				if c.Request.Method == http.MethodPost {
					switch c.FullPath() {
					case "/api/v1/opportunities/:id/analyze", "/api/v1/opportunities/:id/match":
						return "PIPELINE"
					}
				}
				return "DEFAULT"
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", func(c *gin.Context) {
		respond.JSON(c, http.StatusOK, gin.H{"ok": true})
	})
	for _, h := range handlers {
		h.RegisterRoutes(api)
	}

	return r
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
