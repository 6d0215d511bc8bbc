package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/xerrors"
)

// errorBody is the client-facing error envelope for every non-2xx
// response this gateway returns.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// AbortWithError maps err's xerrors.Kind to its HTTP status and writes
// the sanitized body, recording err on the gin context for AccessLog.
func AbortWithError(c *gin.Context, err error) {
	_ = c.Error(err)

	if xe, ok := xerrors.As(err); ok {
		if xe.RetryAfter > 0 {
			c.Header("Retry-After", itoa(xe.RetryAfter))
		}

		c.AbortWithStatusJSON(xe.HTTPStatus(), errorBody{Error: errorDetail{
			Type:    string(xe.Kind),
			Message: xerrors.Sanitize(xe.Message),
		}})

		return
	}

	c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: errorDetail{
		Type:    string(xerrors.KindInternal),
		Message: "internal error",
	}})
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}

	neg := n < 0
	if neg {
		n = -n
	}

	var buf [20]byte

	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}

	if neg {
		i--
		buf[i] = '-'
	}

	return string(buf[i:])
}
