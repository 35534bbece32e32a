package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingotutor/services"
)

type ThreadHandler struct {
	threads  *services.ThreadService
	messages *services.MessageService
	voice    *services.VoiceService
}

func NewThreadHandler(threads *services.ThreadService, messages *services.MessageService, voice *services.VoiceService) *ThreadHandler {
	return &ThreadHandler{threads: threads, messages: messages, voice: voice}
}

type RenameThreadRequest struct {
	Name string `json:"name"`
}

type AppendMessageRequest struct {
	Content  string  `json:"content" binding:"required"`
	IsUser   bool    `json:"is_user"`
	AudioURL *string `json:"audio_url"`
}

type ThreadSuggestionRequest struct {
	Topic string `json:"topic"`
}

func (h *ThreadHandler) ListThreads(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	threads, err := h.threads.List(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, threads)
}

func (h *ThreadHandler) CreateThread(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	thread, err := h.threads.Create(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, thread)
}

func (h *ThreadHandler) RenameThread(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	threadID, ok := paramID(c, "id", "thread")
	if !ok {
		return
	}

	var req RenameThreadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	thread, err := h.threads.Rename(c.Request.Context(), sess.UserID, threadID, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, thread)
}

func (h *ThreadHandler) DeleteThread(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	threadID, ok := paramID(c, "id", "thread")
	if !ok {
		return
	}

	if err := h.threads.Delete(c.Request.Context(), sess.UserID, threadID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Thread deleted successfully"})
}

func (h *ThreadHandler) ListMessages(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	threadID, ok := paramID(c, "id", "thread")
	if !ok {
		return
	}

	messages, err := h.messages.List(c.Request.Context(), sess.UserID, threadID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, messages)
}

func (h *ThreadHandler) AppendMessage(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	threadID, ok := paramID(c, "id", "thread")
	if !ok {
		return
	}

	var req AppendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	msg, err := h.messages.Append(c.Request.Context(), sess.UserID, threadID, req.Content, req.IsUser, req.AudioURL)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, msg)
}

func (h *ThreadHandler) Suggest(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	threadID, ok := paramID(c, "id", "thread")
	if !ok {
		return
	}

	var req ThreadSuggestionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	suggestion, err := h.voice.SuggestForThread(c.Request.Context(), sess.UserID, threadID, req.Topic)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}
