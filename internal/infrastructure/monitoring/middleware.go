package monitoring

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// Middleware creates a Gin middleware for metrics collection
func Middleware(metrics *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		method := c.Request.Method

		// Unrouted requests fall through to the static handler; one label
		// keeps cardinality bounded.
		path := c.FullPath()
		if path == "" {
			path = "static"
		}

		c.Next()

		status := strconv.Itoa(c.Writer.Status())
		metrics.RecordHTTPRequest(method, path, status, time.Since(start))
	}
}

// Timer measures a module load
type Timer struct {
	start    time.Time
	metrics  *Metrics
	strategy string
}

// NewTimer creates a new timer
func NewTimer(metrics *Metrics, strategy string) *Timer {
	return &Timer{
		start:    time.Now(),
		metrics:  metrics,
		strategy: strategy,
	}
}

// Stop stops the timer and records the outcome
func (t *Timer) Stop(outcome string) {
	t.metrics.RecordModuleLoad(t.strategy, outcome, time.Since(t.start))
}
