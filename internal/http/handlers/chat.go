package handlers

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/solvegraph/solvegraph-backend/internal/http/response"
	"github.com/solvegraph/solvegraph-backend/internal/platform/apierr"
	"github.com/solvegraph/solvegraph-backend/internal/platform/ctxutil"
	"github.com/solvegraph/solvegraph-backend/internal/services"
)

type ChatHandler struct {
	chat services.ChatService
}

func NewChatHandler(chatService services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chatService}
}

type chatReq struct {
	Message string `json:"message"`
	ChatID  string `json:"chatId"`
}

// POST /api/chatbot
func (h *ChatHandler) Respond(c *gin.Context) {
	var req chatReq
	if err := c.ShouldBindJSON(&req); err != nil {
		e := apierr.InvalidPayload(err)
		response.RespondError(c, e.Status, e.Code, e)
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		e := apierr.InvalidPayload(fmt.Errorf("message is required"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	userID := ctxutil.UserID(c.Request.Context())
	if userID == "" {
		e := apierr.Unauthenticated(fmt.Errorf("unauthenticated"))
		response.RespondError(c, e.Status, e.Code, e)
		return
	}

	result, err := h.chat.Respond(c.Request.Context(), userID, req.Message, req.ChatID)
	if err != nil {
		response.RespondError(c, apierr.StatusOf(err), apierr.CodeOf(err), err)
		return
	}
	response.RespondOK(c, result)
}
