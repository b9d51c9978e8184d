package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

// GinMiddleware instruments every request with the counter and latency
// histogram. The route template is used as the path label so IDs do
// not explode cardinality.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		durationMs := float64(time.Since(start).Milliseconds())
		RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), durationMs)
	}
}
