package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/catalog"
)

type ModelsHandlers struct {
	Catalog *catalog.Catalog
}

func NewModelsHandlers(cat *catalog.Catalog) *ModelsHandlers {
	return &ModelsHandlers{Catalog: cat}
}

// ListModels handles GET /v1/models, listing the models this gateway
// exposes to API-key-authenticated callers.
func (h *ModelsHandlers) ListModels(c *gin.Context) {
	models, err := h.Catalog.ListPublic(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]gin.H, len(models))
	for i, m := range models {
		data[i] = gin.H{
			"id":             m.CanonicalName,
			"object":         "model",
			"owned_by":       m.OwnedBy,
			"context_length": m.ContextLength,
			"verifiable":     m.Verifiable,
		}
	}

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}
