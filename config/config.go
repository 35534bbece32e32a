package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

type Config struct {
	Port        string
	BindAddress string
	LogMode     string
	CORSOrigins []string

	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisChannel  string

	JWTSecret string
	JWTTTL    time.Duration

	OpenAIAPIKey  string
	OpenAIBaseURL string
	OpenAIModel   string
	TTSModel      string
	TTSVoice      string
	STTModel      string

	ReplicateToken   string
	ReplicateModel   string
	ReplicateBaseURL string

	GCSBucket        string
	GCSPublicBaseURL string

	QuizQuestionCount int
	SuggestionWindow  int
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present; real environment values win.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port:        getEnv("PORT", "8080"),
		BindAddress: getEnv("BIND_ADDRESS", "localhost"),
		LogMode:     getEnv("LOG_MODE", "development"),
		CORSOrigins: splitList(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080")),

		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "lingotutor"),
		DBPassword: getEnv("DB_PASSWORD", "lingotutor123"),
		DBName:     getEnv("DB_NAME", "lingotutor"),

		RedisHost:     getEnv("REDIS_HOST", "localhost"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisChannel:  getEnv("REDIS_CHANNEL", "lingotutor:invalidate"),

		JWTSecret: getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTTTL:    time.Duration(getEnvInt("JWT_TTL_HOURS", 24)) * time.Hour,

		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1/"),
		OpenAIModel:   getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		TTSModel:      getEnv("OPENAI_TTS_MODEL", "tts-1"),
		TTSVoice:      getEnv("OPENAI_TTS_VOICE", "alloy"),
		STTModel:      getEnv("OPENAI_STT_MODEL", "whisper-1"),

		ReplicateToken:   getEnv("REPLICATE_API_TOKEN", ""),
		ReplicateModel:   getEnv("REPLICATE_MODEL", "black-forest-labs/flux-schnell"),
		ReplicateBaseURL: getEnv("REPLICATE_BASE_URL", "https://api.replicate.com/v1"),

		GCSBucket:        getEnv("GCS_BUCKET", ""),
		GCSPublicBaseURL: getEnv("GCS_PUBLIC_BASE_URL", ""),

		QuizQuestionCount: getEnvInt("QUIZ_QUESTION_COUNT", 10),
		SuggestionWindow:  getEnvInt("SUGGESTION_WINDOW", 5),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultValue
	}
	return i
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (c *Config) Addr() string {
	return c.BindAddress + ":" + c.Port
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable TimeZone=UTC",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	return db, nil
}

func InitRedis(cfg *Config) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:        fmt.Sprintf("%s:%s", cfg.RedisHost, cfg.RedisPort),
		Password:    cfg.RedisPassword,
		DB:          0,
		DialTimeout: 5 * time.Second,
	})
}
