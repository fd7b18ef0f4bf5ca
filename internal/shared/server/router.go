package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"biomrk-backend/internal/shared/config"
	"biomrk-backend/internal/shared/metrics"
	"biomrk-backend/internal/shared/server/middleware"
	"biomrk-backend/internal/shared/server/respond"
)

// RouteRegistrar is implemented by domain handlers.
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// RouterDeps carries what the router needs from bootstrap.
type RouterDeps struct {
	Config   config.Config
	Handlers []RouteRegistrar
	// Ready reports whether the backing store answers. Nil means always ready.
	Ready func(ctx context.Context) error
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	serviceName := deps.Config.ServiceName
	if serviceName == "" {
		serviceName = "biomrk-api"
	}
	r.Use(
		middleware.RequestID(),
		// outside Logging so the access log sees the request span
		otelgin.Middleware(serviceName, otelgin.WithFilter(traced)),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	api.GET("/health", healthHandler(deps.Ready))

	limited := api.Group("")
	limited.Use(middleware.RateLimit(middleware.RateLimitConfig{
		GroupFor: rateLimitGroup,
		Rules: map[string]middleware.RateLimitRule{
			"default": {Rate: deps.Config.RateLimitRPS, Burst: deps.Config.RateLimitBurst},
			// version listings are cheap so they get twice the budget
			"versions": {Rate: 2 * deps.Config.RateLimitRPS, Burst: 2 * deps.Config.RateLimitBurst},
		},
	}))
	for _, h := range deps.Handlers {
		h.RegisterRoutes(limited)
	}

	return r
}

func traced(r *http.Request) bool {
	return r.URL.Path != "/metrics" && r.URL.Path != "/api/v1/health"
}

func rateLimitGroup(c *gin.Context) string {
	if c.FullPath() == "/api/v1/snapshots/:cancerCode/versions" {
		return "versions"
	}
	return "default"
}

func healthHandler(ready func(ctx context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ready == nil {
			respond.OK(c, gin.H{"ok": true})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := ready(ctx); err != nil {
			respond.Error(c, http.StatusServiceUnavailable, "storage_unavailable", "store is not reachable", nil)
			return
		}
		respond.OK(c, gin.H{"ok": true})
	}
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
