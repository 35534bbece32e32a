package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingotutor/services"
)

type ChatHandler struct {
	chat *services.ChatService
}

func NewChatHandler(chat *services.ChatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

// Send answers with the thread and both stored messages. When the completion
// fails the response still names the thread and the stored user message.
func (h *ChatHandler) Send(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	var req services.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	res, err := h.chat.Send(c.Request.Context(), sess, req)
	if err != nil {
		if res == nil {
			respondError(c, err)
			return
		}
		c.JSON(statusFor(err), gin.H{
			"error":        err.Error(),
			"thread":       res.Thread,
			"user_message": res.UserMessage,
		})
		return
	}

	c.JSON(http.StatusOK, res)
}
