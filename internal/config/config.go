package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/autoguides/contentfix/internal/models"
)

// Config represents runtime configuration derived from environment variables.
type Config struct {
	Server    ServerConfig
	Logging   LoggingConfig
	Database  DatabaseConfig
	LLM       LLMConfig
	RateLimit RateLimitConfig
	Articles  ArticleStoreConfig
	Workflow  WorkflowConfig
	Auth      AuthConfig
}

// ServerConfig holds HTTP server runtime parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// LoggingConfig represents structured logging configuration.
type LoggingConfig struct {
	Level  slog.Level
	Format string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// LLMConfig configures the generative text backend and its call budget.
type LLMConfig struct {
	Provider         string
	APIKey           string
	BaseURL          string
	Model            string
	Temperature      float32
	MaxTokens        int
	Timeout          time.Duration
	MinInterval      time.Duration
	ThrottleCooldown time.Duration
	MaxAttempts      int
	RetryDelay       time.Duration
}

// RateLimitConfig selects where the shared "last request" state lives.
type RateLimitConfig struct {
	Backend       string
	RedisAddress  string
	RedisPassword string
	RedisDB       int
	KeyPrefix     string
}

// ArticleStoreConfig selects the article store backend and scan filter.
type ArticleStoreConfig struct {
	Backend             string
	FirestoreProjectID  string
	FirestoreCollection string
	Domain              string
	Status              string
}

// WorkflowConfig tunes the correction workflow.
type WorkflowConfig struct {
	Interval         time.Duration
	CreateLimit      int
	ProcessLimit     int
	CleanupChance    float64
	StuckAfter       time.Duration
	FailedTTL        time.Duration
	RecreateCooldown time.Duration
	Types            []models.CorrectionType
	PromptsFile      string
}

// AuthConfig holds admin API authentication settings.
type AuthConfig struct {
	JWTSecret         string
	AdminPasswordHash string
	TokenDuration     time.Duration
}

const (
	defaultPort            = "8080"
	defaultReadTimeout     = 10 * time.Second
	defaultWriteTimeout    = 30 * time.Second
	defaultShutdownTimeout = 5 * time.Second

	defaultLogFormat = "json"

	defaultMaxConnections     = 10
	defaultMaxIdleConnections = 5
	defaultConnMaxLifetime    = 5 * time.Minute
	defaultConnectTimeout     = 10 * time.Second

	defaultLLMProvider      = "openai"
	defaultLLMModel         = "gpt-4o-mini"
	defaultLLMTemperature   = 0.2
	defaultLLMMaxTokens     = 2000
	defaultLLMTimeout       = 120 * time.Second
	defaultMinInterval      = 60 * time.Second
	defaultThrottleCooldown = 5 * time.Minute
	defaultMaxAttempts      = 3
	defaultRetryDelay       = 2 * time.Second

	defaultRateLimitBackend = "memory"
	defaultRedisAddress     = "localhost:6379"
	defaultKeyPrefix        = "contentfix:llm"

	defaultArticleBackend      = "postgres"
	defaultFirestoreCollection = "articles"
	defaultArticleDomain       = "tire-pressure"
	defaultArticleStatus       = "published"

	defaultWorkflowInterval = 5 * time.Minute
	defaultCreateLimit      = 50
	defaultProcessLimit     = 5
	defaultCleanupChance    = 0.1
	defaultStuckAfter       = 2 * time.Hour
	defaultFailedTTL        = 24 * time.Hour
	defaultRecreateCooldown = 30 * 24 * time.Hour

	defaultTokenDuration = 24 * time.Hour
)

// Load reads configuration from environment variables, applying defaults when
// values are not provided or invalid.
func Load() (Config, error) {
	// Cloud Run sets PORT, but allow SERVER_PORT override for local dev
	port := getEnv("PORT", "")
	if port == "" {
		port = getEnv("SERVER_PORT", defaultPort)
	}

	cfg := Config{
		Server: ServerConfig{
			Port:            port,
			ReadTimeout:     defaultReadTimeout,
			WriteTimeout:    defaultWriteTimeout,
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:  slog.LevelInfo,
			Format: defaultLogFormat,
		},
		Database: DatabaseConfig{
			MaxConnections:     defaultMaxConnections,
			MaxIdleConnections: defaultMaxIdleConnections,
			ConnMaxLifetime:    defaultConnMaxLifetime,
			ConnectTimeout:     defaultConnectTimeout,
		},
		LLM: LLMConfig{
			Provider:         getEnv("LLM_PROVIDER", defaultLLMProvider),
			APIKey:           os.Getenv("LLM_API_KEY"),
			BaseURL:          os.Getenv("LLM_BASE_URL"),
			Model:            getEnv("LLM_MODEL", defaultLLMModel),
			Temperature:      defaultLLMTemperature,
			MaxTokens:        defaultLLMMaxTokens,
			Timeout:          defaultLLMTimeout,
			MinInterval:      defaultMinInterval,
			ThrottleCooldown: defaultThrottleCooldown,
			MaxAttempts:      defaultMaxAttempts,
			RetryDelay:       defaultRetryDelay,
		},
		RateLimit: RateLimitConfig{
			Backend:       getEnv("RATE_LIMIT_BACKEND", defaultRateLimitBackend),
			RedisAddress:  getEnv("REDIS_ADDRESS", defaultRedisAddress),
			RedisPassword: os.Getenv("REDIS_PASSWORD"),
			KeyPrefix:     getEnv("RATE_LIMIT_KEY_PREFIX", defaultKeyPrefix),
		},
		Articles: ArticleStoreConfig{
			Backend:             getEnv("ARTICLE_STORE", defaultArticleBackend),
			FirestoreProjectID:  os.Getenv("FIRESTORE_PROJECT_ID"),
			FirestoreCollection: getEnv("FIRESTORE_COLLECTION", defaultFirestoreCollection),
			Domain:              getEnv("ARTICLE_DOMAIN", defaultArticleDomain),
			Status:              getEnv("ARTICLE_STATUS", defaultArticleStatus),
		},
		Workflow: WorkflowConfig{
			Interval:         defaultWorkflowInterval,
			CreateLimit:      defaultCreateLimit,
			ProcessLimit:     defaultProcessLimit,
			CleanupChance:    defaultCleanupChance,
			StuckAfter:       defaultStuckAfter,
			FailedTTL:        defaultFailedTTL,
			RecreateCooldown: defaultRecreateCooldown,
			Types:            models.AllCorrectionTypes(),
			PromptsFile:      os.Getenv("PROMPTS_FILE"),
		},
		Auth: AuthConfig{
			JWTSecret:         os.Getenv("ADMIN_JWT_SECRET"),
			AdminPasswordHash: os.Getenv("ADMIN_PASSWORD_HASH"),
			TokenDuration:     defaultTokenDuration,
		},
	}

	dbURL, err := buildDatabaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg.Database.URL = dbURL

	durations := []struct {
		key  string
		unit time.Duration
		dst  *time.Duration
	}{
		{"SERVER_READ_TIMEOUT_SECONDS", time.Second, &cfg.Server.ReadTimeout},
		{"SERVER_WRITE_TIMEOUT_SECONDS", time.Second, &cfg.Server.WriteTimeout},
		{"SERVER_SHUTDOWN_TIMEOUT_SECONDS", time.Second, &cfg.Server.ShutdownTimeout},
		{"DB_CONNECT_TIMEOUT_SECONDS", time.Second, &cfg.Database.ConnectTimeout},
		{"LLM_TIMEOUT_SECONDS", time.Second, &cfg.LLM.Timeout},
		{"LLM_MIN_INTERVAL_SECONDS", time.Second, &cfg.LLM.MinInterval},
		{"LLM_THROTTLE_COOLDOWN_SECONDS", time.Second, &cfg.LLM.ThrottleCooldown},
		{"LLM_RETRY_DELAY_SECONDS", time.Second, &cfg.LLM.RetryDelay},
		{"WORKFLOW_INTERVAL_SECONDS", time.Second, &cfg.Workflow.Interval},
		{"WORKFLOW_STUCK_AFTER_MINUTES", time.Minute, &cfg.Workflow.StuckAfter},
		{"WORKFLOW_FAILED_TTL_HOURS", time.Hour, &cfg.Workflow.FailedTTL},
		{"WORKFLOW_RECREATE_COOLDOWN_HOURS", time.Hour, &cfg.Workflow.RecreateCooldown},
		{"ADMIN_TOKEN_HOURS", time.Hour, &cfg.Auth.TokenDuration},
	}
	for _, d := range durations {
		v := os.Getenv(d.key)
		if v == "" {
			continue
		}
		parsed, err := parseUnits(v, d.unit)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"DB_MAX_CONNECTIONS", &cfg.Database.MaxConnections},
		{"DB_MAX_IDLE_CONNECTIONS", &cfg.Database.MaxIdleConnections},
		{"LLM_MAX_TOKENS", &cfg.LLM.MaxTokens},
		{"LLM_MAX_ATTEMPTS", &cfg.LLM.MaxAttempts},
		{"REDIS_DB", &cfg.RateLimit.RedisDB},
		{"WORKFLOW_CREATE_LIMIT", &cfg.Workflow.CreateLimit},
		{"WORKFLOW_PROCESS_LIMIT", &cfg.Workflow.ProcessLimit},
	}
	for _, i := range ints {
		v := os.Getenv(i.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return Config{}, fmt.Errorf("invalid %s: must be a non-negative integer", i.key)
		}
		*i.dst = n
	}

	if cfg.LLM.MaxAttempts < 1 {
		return Config{}, fmt.Errorf("invalid LLM_MAX_ATTEMPTS: must be at least 1")
	}

	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		temp, err := strconv.ParseFloat(v, 32)
		if err != nil || temp < 0 || temp > 2 {
			return Config{}, fmt.Errorf("invalid LLM_TEMPERATURE: must be between 0 and 2")
		}
		cfg.LLM.Temperature = float32(temp)
	}

	if v := os.Getenv("WORKFLOW_CLEANUP_CHANCE"); v != "" {
		chance, err := strconv.ParseFloat(v, 64)
		if err != nil || chance < 0 || chance > 1 {
			return Config{}, fmt.Errorf("invalid WORKFLOW_CLEANUP_CHANCE: must be between 0 and 1")
		}
		cfg.Workflow.CleanupChance = chance
	}

	if v := os.Getenv("WORKFLOW_TYPES"); v != "" {
		types, err := parseCorrectionTypes(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid WORKFLOW_TYPES: %w", err)
		}
		cfg.Workflow.Types = types
	}

	switch cfg.LLM.Provider {
	case "openai", "anthropic":
	default:
		return Config{}, fmt.Errorf("invalid LLM_PROVIDER: must be 'openai' or 'anthropic'")
	}

	switch cfg.RateLimit.Backend {
	case "memory", "redis":
	default:
		return Config{}, fmt.Errorf("invalid RATE_LIMIT_BACKEND: must be 'memory' or 'redis'")
	}

	switch cfg.Articles.Backend {
	case "postgres":
	case "firestore":
		if cfg.Articles.FirestoreProjectID == "" {
			return Config{}, fmt.Errorf("FIRESTORE_PROJECT_ID is required when ARTICLE_STORE=firestore")
		}
	default:
		return Config{}, fmt.Errorf("invalid ARTICLE_STORE: must be 'postgres' or 'firestore'")
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		level, err := parseLogLevel(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid LOG_LEVEL: %w", err)
		}
		cfg.Logging.Level = level
	}

	if v := os.Getenv("LOG_FORMAT"); v != "" {
		switch v {
		case "json", "text":
			cfg.Logging.Format = v
		default:
			return Config{}, fmt.Errorf("invalid LOG_FORMAT: must be 'json' or 'text'")
		}
	}

	return cfg, nil
}

// buildDatabaseURL returns DATABASE_URL when set, otherwise a Cloud SQL unix
// socket DSN built from INSTANCE_CONNECTION_NAME and DB_* variables. An empty
// result is allowed; commands that need the database fail on connect.
func buildDatabaseURL() (string, error) {
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		return dbURL, nil
	}

	instance := os.Getenv("INSTANCE_CONNECTION_NAME")
	if instance == "" {
		return "", nil
	}

	dbUser := os.Getenv("DB_USER")
	dbName := os.Getenv("DB_NAME")
	if dbUser == "" || dbName == "" {
		return "", fmt.Errorf("DB_USER and DB_NAME must be set when using INSTANCE_CONNECTION_NAME")
	}

	socketPath := fmt.Sprintf("/cloudsql/%s", instance)
	if password := os.Getenv("DB_PASSWORD"); password != "" {
		return fmt.Sprintf("host=%s user=%s password=%s dbname=%s sslmode=disable",
			socketPath, dbUser, password, dbName), nil
	}
	// IAM authentication, no password
	return fmt.Sprintf("host=%s user=%s dbname=%s sslmode=disable", socketPath, dbUser, dbName), nil
}

func parseCorrectionTypes(raw string) ([]models.CorrectionType, error) {
	var types []models.CorrectionType
	seen := make(map[models.CorrectionType]bool)
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := models.ParseCorrectionType(part)
		if err != nil {
			return nil, err
		}
		if !seen[t] {
			seen[t] = true
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, fmt.Errorf("at least one correction type is required")
	}
	return types, nil
}

func parseUnits(raw string, unit time.Duration) (time.Duration, error) {
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("must be a non-negative integer")
	}
	return time.Duration(n) * unit, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch raw {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("must be one of debug, info, warn, error")
	}
}
