package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/solvegraph/solvegraph-backend/internal/http/response"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/ctxutil"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

type ChatsHandler struct {
	chat services.ChatService
}

func NewChatsHandler(chatService services.ChatService) *ChatsHandler {
	return &ChatsHandler{chat: chatService}
}

// GET /api/chats
func (h *ChatsHandler) ListSessions(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == "" {
		e := apierr.Unauthenticated(fmt.Errorf("unauthenticated"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	sessions, err := h.chat.ListSessions(c.Request.Context(), userID)
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}
	response.RespondOK(c, gin.H{"chats": sessions})
}

// GET /api/chats/:chatId
func (h *ChatsHandler) SessionMessages(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == "" {
		e := apierr.Unauthenticated(fmt.Errorf("unauthenticated"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	messages, err := h.chat.SessionMessages(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}
	response.RespondOK(c, gin.H{"messages": messages})
}

// DELETE /api/chats/:chatId
func (h *ChatsHandler) DeleteSession(c *gin.Context) {
	userID := ctxutil.UserID(c.Request.Context())
	if userID == "" {
		e := apierr.Unauthenticated(fmt.Errorf("unauthenticated"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	deleted, err := h.chat.DeleteSession(c.Request.Context(), userID, c.Param("chatId"))
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}
	if !deleted {
		response.RespondError(c, http.StatusNotFound, "not_found",
			fmt.Errorf("chat not found"))
		return
	}
	response.RespondOK(c, gin.H{"message": "chat deleted"})
}
