package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/openfetch/fetchcore/advanced"
	"github.com/openfetch/fetchcore/api/handler"
	"github.com/openfetch/fetchcore/api/middleware"
	"github.com/openfetch/fetchcore/cleaner"
	"github.com/openfetch/fetchcore/config"
	"github.com/openfetch/fetchcore/escalate"
	"github.com/openfetch/fetchcore/logging"
	"github.com/openfetch/fetchcore/pool"
	"github.com/openfetch/fetchcore/profile"
)

// NewFetchRouter creates the public fetch API: POST /api/fetch and POST
// /api/fetch/advanced, gated by the auth + rate-limit middleware chain
// (api/middleware/auth.go, ratelimit.go), the same shape as
// Easonliuliang-purify's NewRouter but without its scrape/extract/batch/
// crawl/map routes, which have no home here.
//
// Middleware chain:
//
//	Global:  Recovery → Logger
//	API:     Auth (if enabled) → RateLimit
func NewFetchRouter(sched *escalate.Scheduler, orch *advanced.Orchestrator, cl *cleaner.Cleaner, cfg *config.Config) *gin.Engine {
	gin.SetMode(cfg.Server.Mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	protected := r.Group("/api")
	if cfg.Auth.Enabled {
		protected.Use(middleware.Auth(cfg.Auth.APIKeys))
	}
	protected.Use(middleware.RateLimit(cfg.RateLimit))

	protected.POST("/fetch", handler.Fetch(sched, cl))
	protected.POST("/fetch/advanced", handler.Advanced(orch, cl))

	return r
}

// NewAdminRouter creates the admin/status API: pool status, runtime config,
// domain-profile CRUD, and the log-tail SSE stream. It listens on a
// separate port (ServerConfig.AdminPort) from the fetch API and, per §5.7,
// keeps real per-error-code HTTP status responses rather than the fetch
// API's always-200 envelope.
func NewAdminRouter(p *pool.BrowserPool, store *profile.Store, runtime *config.RuntimeStore, ring *logging.Ring, dataDir string, startTime time.Time, mode string) *gin.Engine {
	gin.SetMode(mode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.Logger())

	admin := r.Group("/api")
	admin.GET("/status", handler.Status(p, startTime))
	admin.GET("/config", handler.GetConfig(runtime))
	admin.POST("/config", handler.PostConfig(runtime, dataDir))
	admin.GET("/domain-profiles", handler.ListProfiles(store))
	admin.GET("/domain-profiles/:domain", handler.GetProfile(store))
	admin.POST("/domain-profiles", handler.UpsertProfile(store))
	admin.DELETE("/domain-profiles/:domain", handler.DeleteProfile(store))
	admin.GET("/logs/stream", handler.LogsStream(ring))

	return r
}
