package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/catalog"
	"github.com/teeinfer/gateway/internal/domain"
)

type fakeCatalogStore struct {
	models []domain.Model
}

func (f *fakeCatalogStore) ListModels(context.Context) ([]domain.Model, error) { return f.models, nil }

func (f *fakeCatalogStore) PricingHistory(context.Context, string) ([]domain.Pricing, error) {
	return nil, nil
}

func TestListModels(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cat, err := catalog.New(&fakeCatalogStore{models: []domain.Model{
		{ID: "m1", CanonicalName: "llama-3", Active: true, OwnedBy: "acme", ContextLength: 8192, Verifiable: true},
	}})
	require.NoError(t, err)
	require.NoError(t, cat.Refresh(context.Background()))

	h := NewModelsHandlers(cat)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/v1/models", nil)

	h.ListModels(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "llama-3")
	require.Contains(t, rec.Body.String(), "acme")
}

func TestHealth(t *testing.T) {
	gin.SetMode(gin.TestMode)

	h := NewSystemHandlers()

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/health", nil)

	h.Health(c)

	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}
