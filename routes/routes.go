package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"lingotutor/handlers"
	"lingotutor/logger"
	"lingotutor/middleware"
	"lingotutor/services"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The token is checked before the upgrade.
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

type Handlers struct {
	Auth     *handlers.AuthHandler
	Thread   *handlers.ThreadHandler
	Chat     *handlers.ChatHandler
	Quiz     *handlers.QuizHandler
	Function *handlers.FunctionHandler
}

func SetupRoutes(
	router *gin.Engine,
	log *logger.Logger,
	authMiddleware *middleware.AuthMiddleware,
	h Handlers,
	hub *services.Hub,
) {
	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", h.Auth.Register)
			auth.POST("/login", h.Auth.Login)
		}

		protected := api.Group("/")
		protected.Use(authMiddleware.RequireAuth())
		{
			protected.POST("/auth/logout", h.Auth.Logout)
			protected.GET("/auth/session", h.Auth.Session)

			threads := protected.Group("/threads")
			{
				threads.GET("", h.Thread.ListThreads)
				threads.POST("", h.Thread.CreateThread)
				threads.PUT("/:id", h.Thread.RenameThread)
				threads.DELETE("/:id", h.Thread.DeleteThread)
				threads.GET("/:id/messages", h.Thread.ListMessages)
				threads.POST("/:id/messages", h.Thread.AppendMessage)
				threads.POST("/:id/suggestion", h.Thread.Suggest)
			}

			protected.POST("/chat", h.Chat.Send)

			quizzes := protected.Group("/quizzes")
			{
				quizzes.GET("", h.Quiz.GetUserQuizzes)
				quizzes.POST("", h.Quiz.CreateQuiz)
				quizzes.GET("/:id", h.Quiz.GetQuizByID)
				quizzes.DELETE("/:id", h.Quiz.DeleteQuiz)
				quizzes.GET("/:id/questions", h.Quiz.GetQuestions)
				quizzes.POST("/:id/banner", h.Quiz.RegenerateBanner)
				quizzes.POST("/:id/play", h.Quiz.StartPlay)
				quizzes.GET("/:id/play", h.Quiz.GetPlay)
				quizzes.POST("/:id/play/answer", h.Quiz.SubmitAnswer)
				quizzes.POST("/:id/play/next", h.Quiz.NextQuestion)
			}

			functions := protected.Group("/functions")
			{
				functions.POST("/chat-completion", h.Function.ChatCompletion)
				functions.POST("/generate-suggestion", h.Function.GenerateSuggestion)
				functions.POST("/generate-questions", h.Function.GenerateQuestions)
				functions.POST("/generate-banner", h.Function.GenerateBanner)
				functions.POST("/voice-to-text", h.Function.VoiceToText)
				functions.POST("/text-to-speech", h.Function.TextToSpeech)
				functions.POST("/translate", h.Function.Translate)
			}
		}
	}

	// Browsers cannot set headers on websocket upgrades, so the token also
	// comes in as ?token=.
	router.GET("/ws", authMiddleware.RequireAuth(), func(c *gin.Context) {
		sess, ok := middleware.CurrentSession(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.Warn("WebSocket upgrade failed", "user_id", sess.UserID, "error", err)
			return
		}

		hub.RegisterClient(conn, sess.UserID, sess.TokenID)
	})

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}
