package middleware

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/tracing"
)

const traceHeader = "X-Trace-Id"

// WithTracing stamps every request's context with a trace id (reused from
// the inbound header if the caller already supplied one) and an operation
// name of "METHOD /path", so the logging layer and AccessLog can correlate
// a request's full lifecycle without it being threaded through by hand.
func WithTracing() gin.HandlerFunc {
	return func(c *gin.Context) {
		traceID := c.GetHeader(traceHeader)
		if traceID == "" {
			traceID = tracing.GenerateTraceID()
		}

		c.Header(traceHeader, traceID)

		ctx := tracing.WithTraceID(c.Request.Context(), traceID)
		ctx = tracing.WithOperationName(ctx, fmt.Sprintf("%s %s", c.Request.Method, c.FullPath()))

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
