package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"lingotutor/ai"
	"lingotutor/cache"
	"lingotutor/config"
	"lingotutor/handlers"
	"lingotutor/logger"
	"lingotutor/middleware"
	"lingotutor/models"
	"lingotutor/routes"
	"lingotutor/services"
	"lingotutor/storage"
)

func main() {
	cfg := config.Load()

	log, err := logger.New(cfg.LogMode)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := config.InitDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}

	err = db.AutoMigrate(
		&models.User{},
		&models.ChatThread{},
		&models.ChatMessage{},
		&models.Quiz{},
		&models.Question{},
	)
	if err != nil {
		log.Fatal("Failed to migrate database", "error", err)
	}

	redisClient := config.InitRedis(cfg)
	store := cache.NewRedisStore(log, redisClient, cfg.RedisChannel)
	if err := store.Start(ctx); err != nil {
		log.Fatal("Failed to start cache store", "error", err)
	}
	defer store.Close()

	openaiClient := ai.NewOpenAIClient(log, cfg.OpenAIBaseURL, cfg.OpenAIAPIKey)
	chatClient := ai.NewChatClient(log, openaiClient, cfg.OpenAIModel)
	assistant := ai.NewAssistant(chatClient)
	speech := ai.NewSpeechClient(openaiClient, cfg.TTSModel, cfg.TTSVoice, cfg.STTModel)

	var images services.ImageGenerator
	if cfg.ReplicateToken != "" {
		imageClient, err := ai.NewImageClient(cfg.ReplicateToken, cfg.ReplicateModel, cfg.ReplicateBaseURL)
		if err != nil {
			log.Fatal("Failed to initialize image client", "error", err)
		}
		images = imageClient
	} else {
		log.Warn("REPLICATE_API_TOKEN not set, banners disabled")
	}

	var blobs storage.BlobStore
	gcs, err := storage.NewGCSStore(ctx, log, cfg.GCSBucket, cfg.GCSPublicBaseURL)
	if err != nil {
		log.Fatal("Failed to initialize object storage", "error", err)
	}
	if gcs != nil {
		defer gcs.Close()
		blobs = gcs
	}

	authService := services.NewAuthService(db, store, log, cfg.JWTSecret, cfg.JWTTTL)
	threadService := services.NewThreadService(db, store, blobs, log)
	messageService := services.NewMessageService(db, store, threadService, log)
	chatService := services.NewChatService(threadService, messageService, assistant, speech, blobs, log)
	bannerService := services.NewBannerService(db, store, images, blobs, log)
	quizService := services.NewQuizService(db, store, assistant, bannerService, log, cfg.QuizQuestionCount)
	playService := services.NewPlayService(quizService, store, log)
	voiceService := services.NewVoiceService(speech, speech, assistant, messageService, cfg.SuggestionWindow)

	hub := services.NewHub(store, log)
	go hub.Run()

	authMiddleware := middleware.NewAuthMiddleware(log, authService)

	h := routes.Handlers{
		Auth:     handlers.NewAuthHandler(authService),
		Thread:   handlers.NewThreadHandler(threadService, messageService, voiceService),
		Chat:     handlers.NewChatHandler(chatService),
		Quiz:     handlers.NewQuizHandler(quizService, bannerService, playService),
		Function: handlers.NewFunctionHandler(assistant, assistant, bannerService, voiceService),
	}

	if cfg.LogMode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger(log))
	router.Use(middleware.CORS(cfg.CORSOrigins))

	routes.SetupRoutes(router, log, authMiddleware, h, hub)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Server starting", "addr", cfg.Addr())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		bannerService.Wait()
		log.Info("Server stopped")
		return err
	})

	if err := g.Wait(); err != nil {
		log.Error("Server exited with error", "error", err)
	}
}
