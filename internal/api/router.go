package api

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"push-relay-backend/config"
	"push-relay-backend/internal/dispatch"
	"push-relay-backend/internal/mw"
	"push-relay-backend/internal/store"
	"push-relay-backend/internal/tenant"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(s store.Store, registry *tenant.Registry, dispatcher *dispatch.Dispatcher, cfg *config.Config) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(s, dispatcher, cfg.Push.PublicKey)

	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{cfg.Server.CORSOrigin},
		AllowMethods: []string{"GET", "POST"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))
	r.Use(mw.RateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst))

	// The VAPID key advertisement must be reachable without a token; its
	// value is fixed for the process lifetime, so responses are cached.
	cacheTTL := time.Duration(cfg.Server.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	r.GET("/vapid", mw.Cache(cacheStore, cacheTTL), handler.GetVAPIDPublicKey)

	authed := r.Group("/")
	authed.Use(mw.Auth(registry, cfg.Auth.Audience))
	{
		authed.POST("/subscription", handler.PostSubscription)
		authed.POST("/broadcast", handler.PostBroadcast)
		authed.POST("/push", handler.PostPush)
	}

	return r
}
