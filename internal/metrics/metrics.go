// Package metrics exposes Prometheus instruments for the attendance lifecycle
// and the HTTP surface.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// CheckIns counts successful check-in transitions.
	CheckIns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_checkins_total",
		Help: "Successful member check-ins.",
	})

	// CheckOuts counts successful check-out transitions.
	CheckOuts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_checkouts_total",
		Help: "Successful member check-outs.",
	})

	// TransitionConflicts counts rejected transitions by kind.
	TransitionConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_transition_conflicts_total",
		Help: "Check-in/check-out requests rejected by the presence state machine.",
	}, []string{"transition"})

	// ConsistencyBreaches counts detected presence-flag/ledger divergences.
	ConsistencyBreaches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "membership_consistency_breaches_total",
		Help: "Observed divergences between the presence flag and the ledger.",
	})

	httpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "membership_http_request_duration_seconds",
		Help:    "HTTP request latency by route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

// HTTPMiddleware records request latency per route.
func HTTPMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		httpDuration.WithLabelValues(
			c.Request.Method, route, strconv.Itoa(c.Writer.Status()),
		).Observe(time.Since(start).Seconds())
	}
}
