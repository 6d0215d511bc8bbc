package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/contexts"
	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/responsestate"
	"github.com/teeinfer/gateway/internal/xerrors"
)

type ConversationsHandlers struct {
	Machine *responsestate.Machine
}

func NewConversationsHandlers(machine *responsestate.Machine) *ConversationsHandlers {
	return &ConversationsHandlers{Machine: machine}
}

// CreateConversation handles POST /v1/conversations.
func (h *ConversationsHandlers) CreateConversation(c *gin.Context) {
	key, ok := contexts.GetAPIKey(c.Request.Context())
	if !ok {
		writeError(c, xerrors.New(xerrors.KindUnauthorized, "missing API key"))
		return
	}

	conv, err := h.Machine.CreateConversation(c.Request.Context(), key.WorkspaceID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationJSON(conv))
}

// GetConversation handles GET /v1/conversations/:id.
func (h *ConversationsHandlers) GetConversation(c *gin.Context) {
	conv, err := h.Machine.GetConversation(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationJSON(conv))
}

// CloneConversation handles POST /v1/conversations/:id/clone.
func (h *ConversationsHandlers) CloneConversation(c *gin.Context) {
	clone, err := h.Machine.Clone(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, conversationJSON(clone))
}

// DeleteConversation handles DELETE /v1/conversations/:id.
func (h *ConversationsHandlers) DeleteConversation(c *gin.Context) {
	if err := h.Machine.DeleteConversation(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "deleted": true})
}

func conversationJSON(conv domain.Conversation) gin.H {
	rootID, hasRoot := conv.RootResponseID()

	h := gin.H{
		"id":             conv.ID,
		"workspace_id":   conv.WorkspaceID,
		"cloned_from_id": conv.ClonedFromID,
		"created_at":     conv.CreatedAt,
	}

	if hasRoot {
		h["root_response_id"] = rootID
	}

	return h
}
