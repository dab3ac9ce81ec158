package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/surerank/seo-analyzer/stats"
)

// StatsMiddleware counts API requests into the monthly statistics.
func StatsMiddleware(storage *stats.Storage) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if !strings.HasPrefix(c.Request.URL.Path, "/api/") {
			return
		}
		storage.Add(stats.Counters{APIRequests: 1})
	}
}
