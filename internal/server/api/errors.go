package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/xerrors"
)

// writeError mirrors middleware.AbortWithError for handlers that need to
// respond without aborting a chain already past its auth/timeout layers.
func writeError(c *gin.Context, err error) {
	if xe, ok := xerrors.As(err); ok {
		if xe.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(xe.RetryAfter))
		}

		c.JSON(xe.HTTPStatus(), gin.H{"error": gin.H{
			"type":    string(xe.Kind),
			"message": xerrors.Sanitize(xe.Message),
		}})

		return
	}

	c.JSON(http.StatusInternalServerError, gin.H{"error": gin.H{
		"type":    string(xerrors.KindInternal),
		"message": "internal error",
	}})
}
