package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/responsestate"
)

type ResponsesHandlers struct {
	Machine *responsestate.Machine
}

func NewResponsesHandlers(machine *responsestate.Machine) *ResponsesHandlers {
	return &ResponsesHandlers{Machine: machine}
}

// GetResponse handles GET /v1/responses/:id.
func (h *ResponsesHandlers) GetResponse(c *gin.Context) {
	resp, err := h.Machine.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, responseJSON(resp))
}

// CancelResponse handles POST /v1/responses/:id/cancel.
func (h *ResponsesHandlers) CancelResponse(c *gin.Context) {
	id := c.Param("id")
	if err := h.Machine.Cancel(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}

	resp, err := h.Machine.Get(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, responseJSON(resp))
}

// ListInputItems handles GET /v1/responses/:id/input_items.
func (h *ResponsesHandlers) ListInputItems(c *gin.Context) {
	items, err := h.Machine.Items(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	data := make([]gin.H, len(items))
	for i, item := range items {
		data[i] = gin.H{
			"id":         item.ID,
			"kind":       item.Kind,
			"payload":    item.Payload,
			"created_at": item.CreatedAt,
		}
	}

	c.JSON(http.StatusOK, gin.H{"object": "list", "data": data})
}

func responseJSON(resp domain.Response) gin.H {
	h := gin.H{
		"id":                   resp.ID,
		"status":               resp.Status,
		"model":                resp.ModelID,
		"conversation_id":      resp.ConversationID,
		"previous_response_id": resp.PreviousResponseID,
		"created_at":           resp.CreatedAt,
	}

	if resp.Usage != nil {
		h["usage"] = gin.H{
			"input_tokens":  resp.Usage.InputTokens,
			"output_tokens": resp.Usage.OutputTokens,
			"total_tokens":  resp.Usage.TotalTokens,
		}
	}

	return h
}
