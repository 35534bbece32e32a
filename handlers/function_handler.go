package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingotutor/models"
	"lingotutor/services"
)

// FunctionHandler exposes the AI provider proxies with the request and
// response shapes the web client already speaks.
type FunctionHandler struct {
	replier   services.Replier
	generator services.QuestionGenerator
	banners   *services.BannerService
	voice     *services.VoiceService
}

func NewFunctionHandler(replier services.Replier, generator services.QuestionGenerator, banners *services.BannerService, voice *services.VoiceService) *FunctionHandler {
	return &FunctionHandler{
		replier:   replier,
		generator: generator,
		banners:   banners,
		voice:     voice,
	}
}

type chatCompletionRequest struct {
	Message string `json:"message" binding:"required"`
}

type suggestionRequest struct {
	Topic    string               `json:"topic"`
	Messages []models.ChatMessage `json:"messages"`
}

type generateQuestionsRequest struct {
	Topic string `json:"topic" binding:"required"`
	Count int    `json:"count"`
}

type generateBannerRequest struct {
	Topic string `json:"topic" binding:"required"`
	Title string `json:"title" binding:"required"`
}

type voiceToTextRequest struct {
	Audio string `json:"audio" binding:"required"`
}

type textToSpeechRequest struct {
	Text string `json:"text" binding:"required"`
}

type translateRequest struct {
	Text           string `json:"text" binding:"required"`
	TargetLanguage string `json:"targetLanguage" binding:"required"`
}

func (h *FunctionHandler) ChatCompletion(c *gin.Context) {
	var req chatCompletionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	reply, err := h.replier.Reply(c.Request.Context(), req.Message)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"response": reply})
}

func (h *FunctionHandler) GenerateSuggestion(c *gin.Context) {
	var req suggestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	suggestion, err := h.voice.Suggest(c.Request.Context(), req.Topic, req.Messages)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"suggestion": suggestion})
}

func (h *FunctionHandler) GenerateQuestions(c *gin.Context) {
	var req generateQuestionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	questions, err := h.generator.GenerateQuestions(c.Request.Context(), req.Topic, req.Count)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

func (h *FunctionHandler) GenerateBanner(c *gin.Context) {
	var req generateBannerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	url, err := h.banners.Generate(c.Request.Context(), req.Topic, req.Title)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *FunctionHandler) VoiceToText(c *gin.Context) {
	var req voiceToTextRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	text, err := h.voice.Transcribe(c.Request.Context(), req.Audio)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"text": text})
}

func (h *FunctionHandler) TextToSpeech(c *gin.Context) {
	var req textToSpeechRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	audio, err := h.voice.Synthesize(c.Request.Context(), req.Text)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"audioContent": audio})
}

func (h *FunctionHandler) Translate(c *gin.Context) {
	var req translateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	translation, err := h.voice.Translate(c.Request.Context(), req.Text, req.TargetLanguage)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"translation": translation})
}
