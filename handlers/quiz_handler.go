package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"lingotutor/services"
)

type QuizHandler struct {
	quizService   *services.QuizService
	bannerService *services.BannerService
	playService   *services.PlayService
}

func NewQuizHandler(quizService *services.QuizService, bannerService *services.BannerService, playService *services.PlayService) *QuizHandler {
	return &QuizHandler{
		quizService:   quizService,
		bannerService: bannerService,
		playService:   playService,
	}
}

type AnswerRequest struct {
	Answer string `json:"answer" binding:"required"`
}

func (h *QuizHandler) CreateQuiz(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	var req services.CreateQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	quiz, err := h.quizService.CreateQuiz(c.Request.Context(), sess.UserID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, quiz)
}

func (h *QuizHandler) GetUserQuizzes(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}

	quizzes, err := h.quizService.GetUserQuizzes(c.Request.Context(), sess.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quizzes)
}

func (h *QuizHandler) GetQuizByID(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	quiz, err := h.quizService.GetQuizByID(c.Request.Context(), sess.UserID, quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, quiz)
}

func (h *QuizHandler) GetQuestions(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	questions, err := h.quizService.GetQuestions(c.Request.Context(), sess.UserID, quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, questions)
}

func (h *QuizHandler) DeleteQuiz(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	if err := h.quizService.DeleteQuiz(c.Request.Context(), sess.UserID, quizID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Quiz deleted successfully"})
}

func (h *QuizHandler) RegenerateBanner(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	if err := h.bannerService.Regenerate(c.Request.Context(), sess.UserID, quizID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"message": "Banner generation started"})
}

func (h *QuizHandler) StartPlay(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	view, err := h.playService.StartPlay(c.Request.Context(), sess.UserID, quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *QuizHandler) GetPlay(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	view, err := h.playService.GetPlay(c.Request.Context(), sess.UserID, quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *QuizHandler) SubmitAnswer(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	var req AnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := h.playService.Answer(c.Request.Context(), sess.UserID, quizID, req.Answer)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *QuizHandler) NextQuestion(c *gin.Context) {
	sess, ok := currentSession(c)
	if !ok {
		return
	}
	quizID, ok := paramID(c, "id", "quiz")
	if !ok {
		return
	}

	view, err := h.playService.Next(c.Request.Context(), sess.UserID, quizID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, view)
}
