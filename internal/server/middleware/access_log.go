package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/tracing"
)

// AccessLog logs method, path, status and latency for every request that
// errored or returned a 4xx/5xx; successful requests stay quiet to keep
// steady-state traffic off the log stream.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		status := c.Writer.Status()

		var errMsgs []string
		for _, e := range c.Errors {
			errMsgs = append(errMsgs, e.Error())
		}

		if status < 400 && len(errMsgs) == 0 {
			return
		}

		ctx := c.Request.Context()
		fields := []log.Field{
			log.Int("status", status),
			log.String("method", c.Request.Method),
			log.String("path", c.Request.URL.Path),
			log.Duration("latency", time.Since(start)),
			log.String("client_ip", c.ClientIP()),
		}

		if opName, ok := tracing.OperationName(ctx); ok {
			fields = append(fields, log.String("operation", opName))
		}

		if len(errMsgs) > 0 {
			fields = append(fields, log.Strings("errors", errMsgs))
		}

		log.Error(ctx, "[ACCESS]", fields...)
	}
}
