package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/tracing"
)

func TestWithTracing_GeneratesTraceIDAndOperationName(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var gotTraceID, gotOp string

	router := gin.New()
	router.Use(WithTracing())
	router.GET("/v1/models", func(c *gin.Context) {
		gotTraceID, _ = tracing.TraceID(c.Request.Context())
		gotOp, _ = tracing.OperationName(c.Request.Context())
		c.Status(http.StatusOK)
	})

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/v1/models", nil)
	router.ServeHTTP(rec, req)

	require.NotEmpty(t, gotTraceID)
	require.Equal(t, "GET /v1/models", gotOp)
	require.Equal(t, gotTraceID, rec.Header().Get(traceHeader))
}

func TestWithTracing_ReusesInboundTraceID(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(WithTracing())
	router.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(traceHeader, "trace-from-caller")
	router.ServeHTTP(rec, req)

	require.Equal(t, "trace-from-caller", rec.Header().Get(traceHeader))
}
