// Package app wires configuration into a running correction pipeline.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	gcfs "cloud.google.com/go/firestore"
	"github.com/redis/go-redis/v9"

	"github.com/autoguides/contentfix/internal/api"
	"github.com/autoguides/contentfix/internal/auth"
	"github.com/autoguides/contentfix/internal/config"
	"github.com/autoguides/contentfix/internal/correction"
	"github.com/autoguides/contentfix/internal/database"
	"github.com/autoguides/contentfix/internal/firestore"
	"github.com/autoguides/contentfix/internal/inference"
	"github.com/autoguides/contentfix/internal/llm"
	"github.com/autoguides/contentfix/internal/metrics"
	"github.com/autoguides/contentfix/internal/scheduler"
	"github.com/autoguides/contentfix/internal/server"
	"github.com/autoguides/contentfix/internal/validation"
)

// App holds every long-lived component of the pipeline.
type App struct {
	Config        config.Config
	DB            *sql.DB
	Store         correction.Store
	Articles      correction.ArticleStore
	InferenceLogs *database.InferenceLogRepository
	Client        *llm.Client
	Workflow      *correction.Workflow
	Scheduler     *scheduler.WorkflowScheduler
	Metrics       *metrics.Collector

	inferenceLogger *inference.Logger
	health          map[string]api.HealthChecker
	closers         []func() error
	logger          *slog.Logger
}

// New connects to the configured backends and builds the workflow. The caller
// must Close the returned App.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	a := &App{
		Config: cfg,
		health: make(map[string]api.HealthChecker),
		logger: logger,
	}

	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	cfg := a.Config

	db, err := database.Connect(ctx, database.ConfigFrom(cfg.Database))
	if err != nil {
		return err
	}
	a.DB = db
	a.closers = append(a.closers, db.Close)
	a.health["database"] = func(ctx context.Context) error { return database.HealthCheck(ctx, db) }
	a.logger.Info("database connected", "stats", database.Stats(db))

	a.Store = database.NewPostgresCorrectionRepository(db)
	a.InferenceLogs = database.NewInferenceLogRepository(db)

	articles, err := a.newArticleStore(ctx)
	if err != nil {
		return err
	}
	a.Articles = articles

	collector, err := metrics.NewCollector()
	if err != nil {
		return fmt.Errorf("failed to create metrics collector: %w", err)
	}
	a.Metrics = collector

	state, err := a.newGateState()
	if err != nil {
		return err
	}

	backend, err := newBackend(cfg.LLM)
	if err != nil {
		return err
	}

	a.inferenceLogger = inference.NewLogger(a.InferenceLogs, a.logger)

	gate := llm.NewGate(state, nil, llm.GateConfig{
		MinInterval:      cfg.LLM.MinInterval,
		ThrottleCooldown: cfg.LLM.ThrottleCooldown,
	}, a.logger)
	a.Client = llm.NewClient(backend, gate, nil, llm.ClientConfig{
		Model:       cfg.LLM.Model,
		Temperature: cfg.LLM.Temperature,
		MaxTokens:   cfg.LLM.MaxTokens,
		Timeout:     cfg.LLM.Timeout,
		Retry:       llm.RetryPolicy{MaxAttempts: cfg.LLM.MaxAttempts, Delay: cfg.LLM.RetryDelay},
	}, a.logger, a.inferenceLogger, collector)

	prompts := correction.NewPromptTemplates()
	if cfg.Workflow.PromptsFile != "" {
		prompts, err = correction.LoadPromptTemplates(cfg.Workflow.PromptsFile)
		if err != nil {
			return err
		}
		a.logger.Info("loaded prompt overrides", "path", cfg.Workflow.PromptsFile)
	}

	a.Workflow = BuildWorkflow(a.Store, a.Articles, a.Client, prompts, cfg.Workflow, cfg.Articles, a.logger, collector)
	a.Scheduler = scheduler.NewWorkflowScheduler(a.Workflow, scheduler.Config{
		Interval:     cfg.Workflow.Interval,
		CreateLimit:  cfg.Workflow.CreateLimit,
		ProcessLimit: cfg.Workflow.ProcessLimit,
	}, a.logger)

	a.logger.Info("correction pipeline ready",
		"provider", backend.Name(),
		"model", cfg.LLM.Model,
		"rate_limit_backend", cfg.RateLimit.Backend,
		"article_store", cfg.Articles.Backend,
		"types", cfg.Workflow.Types)
	return nil
}

// BuildWorkflow assembles the three phases over the given stores and client.
func BuildWorkflow(store correction.Store, articles correction.ArticleStore, client correction.Completer, prompts *correction.PromptTemplates,
	wf config.WorkflowConfig, ac config.ArticleStoreConfig, logger *slog.Logger, observers ...correction.WorkflowObserver) *correction.Workflow {
	creator := correction.NewCreator(store, articles, validation.NewRuleValidator(validation.DefaultRules()), correction.CreatorConfig{
		Types:            wf.Types,
		Domain:           ac.Domain,
		Status:           ac.Status,
		RecreateCooldown: wf.RecreateCooldown,
	}, time.Now, logger)
	processor := correction.NewProcessor(store, articles, client, correction.NewEngine(correction.PSIPatternRewriter{}), prompts, wf.Types, logger)
	cleaner := correction.NewCleaner(store, correction.CleanerConfig{
		Types:      wf.Types,
		StuckAfter: wf.StuckAfter,
		FailedTTL:  wf.FailedTTL,
	}, time.Now, logger)

	return correction.NewWorkflow(creator, processor, cleaner, correction.WorkflowConfig{
		CleanupChance: wf.CleanupChance,
	}, nil, logger, observers...)
}

func (a *App) newArticleStore(ctx context.Context) (correction.ArticleStore, error) {
	switch a.Config.Articles.Backend {
	case "firestore":
		client, err := firestore.NewClient(ctx, a.Config.Articles.FirestoreProjectID)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, client.Close)
		a.health["firestore"] = firestoreHealth(client, a.Config.Articles.FirestoreCollection)
		return firestore.NewArticleStore(client, a.Config.Articles.FirestoreCollection), nil
	default:
		return database.NewPostgresArticleRepository(a.DB), nil
	}
}

func (a *App) newGateState() (llm.StateStore, error) {
	cfg := a.Config.RateLimit
	if cfg.Backend != "redis" {
		return llm.NewMemoryState(nil), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddress,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	a.closers = append(a.closers, client.Close)
	a.health["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	return llm.NewRedisState(client, cfg.KeyPrefix), nil
}

func newBackend(cfg config.LLMConfig) (llm.Backend, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("LLM_API_KEY is required")
	}
	switch cfg.Provider {
	case "openai":
		return llm.NewOpenAIBackend(cfg.APIKey, cfg.BaseURL), nil
	case "anthropic":
		return llm.NewAnthropicBackend(cfg.APIKey, cfg.BaseURL), nil
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}

func firestoreHealth(client *gcfs.Client, collection string) api.HealthChecker {
	return func(ctx context.Context) error {
		_, err := client.Collection(collection).Limit(1).Documents(ctx).GetAll()
		return err
	}
}

// Handler builds the HTTP surface: admin API, health check and metrics.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	api.SetupRoutes(mux, api.Routes{
		Store:    a.Store,
		Workflow: a.Workflow,
		Limits: api.RunLimits{
			CreateLimit:  a.Config.Workflow.CreateLimit,
			ProcessLimit: a.Config.Workflow.ProcessLimit,
		},
		InferenceLogs: a.InferenceLogs,
		Health:        a.health,
		Auth:          auth.ConfigFrom(a.Config.Auth),
	}, a.logger)
	mux.Handle("/metrics", a.Metrics.Handler())

	return server.Recovery(server.RequestLogger(a.Metrics.InstrumentHandler(mux), a.logger), a.logger)
}

// Migrate applies pending schema migrations.
func (a *App) Migrate(ctx context.Context) (int, error) {
	return database.RunMigrations(ctx, a.DB, a.logger)
}

// Close waits for pending inference log writes and releases connections in
// reverse order of acquisition.
func (a *App) Close() error {
	if a.inferenceLogger != nil {
		a.inferenceLogger.Wait()
	}

	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
