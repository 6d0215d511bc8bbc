package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/log"
)

// Recovery turns a panic anywhere downstream into a 500 instead of a
// dropped connection. A nil panic value (panic(nil)) is treated the same
// as any other: the request still fails closed.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err := asError(r)

				log.Error(c.Request.Context(), "panic recovered", log.String("path", c.Request.URL.Path), log.Cause(err))

				_ = c.Error(err)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": gin.H{
					"type":    "internal",
					"message": "internal error",
				}})
			}
		}()

		c.Next()
	}
}

func asError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}

	return fmt.Errorf("panic: %v", r)
}
