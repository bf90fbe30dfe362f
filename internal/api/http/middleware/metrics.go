package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dtroode/audience-server/internal/metrics"
)

// Metrics records request counts and latencies by matched route.
func Metrics(c *gin.Context) {
	start := time.Now()

	c.Next()

	route := routeOf(c)
	metrics.HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
	metrics.HTTPRequestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
}
