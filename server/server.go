// Package server exposes the analyzers over a gin HTTP API.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/surerank/seo-analyzer/middleware"
	"github.com/surerank/seo-analyzer/stats"
	"github.com/surerank/seo-analyzer/store"
)

// Options configure the router middleware.
type Options struct {
	// CORSOrigins lists allowed origins. Empty allows every origin.
	CORSOrigins []string
	RateLimit   float64
	RateBurst   int
	Logger      *slog.Logger
	Stats       *stats.Storage
}

// NewRouter creates the gin engine with all routes configured.
func NewRouter(h *Handler, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.ErrorHandler(logger))

	corsConfig := cors.DefaultConfig()
	if len(opts.CORSOrigins) == 0 {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = opts.CORSOrigins
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", middleware.RequestIDHeader}
	corsConfig.ExposeHeaders = []string{middleware.RequestIDHeader, "Content-Disposition"}
	corsConfig.MaxAge = 12 * time.Hour
	r.Use(cors.New(corsConfig))

	if opts.Stats != nil {
		r.Use(middleware.StatsMiddleware(opts.Stats))
	}

	api := r.Group("/api")
	if opts.RateLimit > 0 {
		api.Use(middleware.NewRateLimiter(opts.RateLimit, opts.RateBurst).RateLimit())
	}
	setupRoutes(api, h)

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func setupRoutes(api *gin.RouterGroup, h *Handler) {
	api.GET("/health", h.Health)
	api.GET("/statistics", h.Statistics)

	posts := api.Group("/posts/:id")
	{
		posts.PUT("", h.PutPost)
		posts.PUT("/meta", h.PutMeta(store.KindPost))
		posts.POST("/analyze", h.AnalyzePost)
		posts.GET("/checks", h.GetChecks(store.KindPost))
		posts.POST("/links/check", h.CheckPostLinks)
		posts.GET("/report.xlsx", h.Report(store.KindPost))
	}

	terms := api.Group("/terms/:id")
	{
		terms.PUT("", h.PutTerm)
		terms.PUT("/meta", h.PutMeta(store.KindTerm))
		terms.POST("/analyze", h.AnalyzeTerm)
		terms.GET("/checks", h.GetChecks(store.KindTerm))
		terms.GET("/report.xlsx", h.Report(store.KindTerm))
	}

	site := api.Group("/site")
	{
		site.POST("/analyze", h.AnalyzeSite)
		site.GET("/checks", h.GetChecks(store.KindSite))
		site.GET("/report.xlsx", h.Report(store.KindSite))
	}
}
