package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/ZGRSRL/mergenlite-sub000/internal/agent"
	"github.com/ZGRSRL/mergenlite-sub000/internal/analysis"
	"github.com/ZGRSRL/mergenlite-sub000/internal/attachments"
	"github.com/ZGRSRL/mergenlite-sub000/internal/config"
	"github.com/ZGRSRL/mergenlite-sub000/internal/decisioncache"
	"github.com/ZGRSRL/mergenlite-sub000/internal/extract"
	"github.com/ZGRSRL/mergenlite-sub000/internal/jobs"
	"github.com/ZGRSRL/mergenlite-sub000/internal/llm"
	openaillm "github.com/ZGRSRL/mergenlite-sub000/internal/llm/openai"
	"github.com/ZGRSRL/mergenlite-sub000/internal/notify"
	"github.com/ZGRSRL/mergenlite-sub000/internal/opportunities"
	"github.com/ZGRSRL/mergenlite-sub000/internal/pipeline"
	"github.com/ZGRSRL/mergenlite-sub000/internal/queue"
	"github.com/ZGRSRL/mergenlite-sub000/internal/resilience"
	"github.com/ZGRSRL/mergenlite-sub000/internal/search"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/kv"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/server"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/storage/db"
	"github.com/ZGRSRL/mergenlite-sub000/internal/shared/storage/object"
	localstore "github.com/ZGRSRL/mergenlite-sub000/internal/shared/storage/object/local"
	s3store "github.com/ZGRSRL/mergenlite-sub000/internal/shared/storage/object/s3"
)

// App is the explicit dependency graph. Everything a process needs is
// constructed here exactly once and handed down; no package keeps a
// singleton of its own.
type App struct {
	Config config.Config
	Router *gin.Engine

	DB        *sql.DB
	KV        kv.Store
	Artifacts object.ObjectStore
	Queue     queue.Client

	Opps     opportunities.Repo
	AttRepo  attachments.Repo
	JobsRepo jobs.Repo

	Ledger       *jobs.Ledger
	Downloader   *attachments.Downloader
	Coordinator  *analysis.Coordinator
	Cache        *decisioncache.Cache
	Chain        *agent.Chain
	Notifier     notify.Notifier
	Orchestrator *pipeline.Orchestrator
}

// Build prepares the full dependency graph and wires the router.
func Build(cfg config.Config) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg)
	if err != nil {
		return nil, err
	}

	store, err := buildKV(ctx, cfg)
	if err != nil {
		return nil, err
	}

	artifacts, err := buildArtifacts(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(ctx, cfg)
	if err != nil {
		return nil, err
	}

	app := &App{
		Config:    cfg,
		DB:        sqlDB,
		KV:        store,
		Artifacts: artifacts,
		Queue:     queueClient,
	}

	if sqlDB != nil {
		app.Opps = &opportunities.PGRepo{DB: sqlDB}
		app.AttRepo = &attachments.PGRepo{DB: sqlDB}
		app.JobsRepo = &jobs.PGRepo{DB: sqlDB}
	} else {
		app.Opps = opportunities.NewMemoryRepo()
		app.AttRepo = attachments.NewMemoryRepo()
		app.JobsRepo = jobs.NewMemoryRepo()
	}

	var cacheRepo decisioncache.Repo
	if sqlDB != nil {
		cacheRepo = &decisioncache.PGRepo{DB: sqlDB}
	} else {
		cacheRepo = decisioncache.NewMemoryRepo()
	}
	app.Cache = decisioncache.New(cacheRepo)

	app.Ledger = &jobs.Ledger{Repo: app.JobsRepo, History: app.Opps}
	app.Downloader = &attachments.Downloader{
		Repo:    app.AttRepo,
		Ledger:  app.Ledger,
		BaseDir: cfg.LocalStoreDir,
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}

	llmClient := buildLLM(cfg)
	app.Coordinator = analysis.NewCoordinator(llmClient)

	searcher := buildSearcher(cfg)
	app.Chain = &agent.Chain{
		NewAgent: func(ctx context.Context) (agent.Recommender, error) {
			return agent.NewLLMRecommender(llmClient), nil
		},
		Breaker: resilience.NewBreaker(store, "agent", cfg.BreakerThreshold, cfg.BreakerWindow, cfg.BreakerCooldown),
		Limiter: resilience.NewLimiter(store, "agent", cfg.AgentRateBurst, cfg.AgentRateWindow),
		Search:  searcher,
		Timeout: cfg.AgentTimeout,
	}

	if cfg.NotifyWebhookURL != "" {
		app.Notifier = notify.NewWebhookNotifier(cfg.NotifyWebhookURL)
	} else {
		app.Notifier = notify.LogNotifier{}
	}

	app.Orchestrator = &pipeline.Orchestrator{
		Ledger:          app.Ledger,
		Opps:            app.Opps,
		Downloader:      app.Downloader,
		Extractor:       extract.LocalExtractor{},
		Coordinator:     app.Coordinator,
		Cache:           app.Cache,
		Chain:           app.Chain,
		Artifacts:       artifacts,
		Notifier:        app.Notifier,
		Queue:           queueClient,
		PipelineVersion: cfg.PipelineVersion,
		AgentLabel:      cfg.LLMModel,
		JobTimeout:      cfg.AgentTimeout,
	}

	app.Router = server.NewRouter(cfg,
		opportunities.NewHandler(app.Opps, app.AttRepo),
		pipeline.NewHandler(app.Orchestrator, app.JobsRepo),
	)

	return app, nil
}

// Close releases held connections.
func (a *App) Close() {
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	opts := db.OptionsFromEnv(db.DefaultServerOptions())
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return sqlDB, nil
}

// buildKV picks the shared state store behind the breaker and rate limiter.
// With Redis the counters are shared across processes; without it they are
// per-process only.
func buildKV(ctx context.Context, cfg config.Config) (kv.Store, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Printf("bootstrap: REDIS_ADDR empty; breaker and limiter state is process-local")
		return kv.NewMemoryStore(), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis ping failed; breaker and limiter state is process-local: %v", err)
			return kv.NewMemoryStore(), nil
		}
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return kv.NewRedisStore(client), nil
}

func buildArtifacts(ctx context.Context, cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "s3":
		if strings.TrimSpace(cfg.AWSRegion) == "" || strings.TrimSpace(cfg.S3Bucket) == "" {
			return nil, fmt.Errorf("OBJECT_STORE=s3 requires AWS_REGION and S3_BUCKET")
		}
		return s3store.New(ctx, cfg.AWSRegion, cfg.S3Bucket, cfg.S3Prefix, cfg.SSEKMSKeyID)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildQueue(ctx context.Context, cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.QueueURL) == "" {
		return nil, nil
	}
	return queue.NewSQSClient(ctx, cfg.QueueURL, cfg.AWSRegion)
}

func buildLLM(cfg config.Config) llm.Client {
	if strings.TrimSpace(cfg.OpenAIAPIKey) == "" {
		log.Printf("bootstrap: OPENAI_API_KEY empty; agent calls will degrade to search")
		return unavailableClient{}
	}
	client, err := openaillm.NewClient(cfg.OpenAIAPIKey, cfg.LLMModel, cfg.AgentTimeout)
	if err != nil {
		log.Printf("bootstrap: openai client init failed; agent calls will degrade to search: %v", err)
		return unavailableClient{}
	}
	return client
}

func buildSearcher(cfg config.Config) search.Searcher {
	if strings.TrimSpace(cfg.SearchBaseURL) == "" {
		log.Printf("bootstrap: SEARCH_BASE_URL empty; using in-memory hotel search")
		return search.NewMemorySearcher()
	}
	return search.NewClient(cfg.SearchBaseURL, cfg.SearchAPIKey)
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

// unavailableClient stands in when no provider is configured. Every call
// reports the provider as unavailable so the fallback chain takes over.
type unavailableClient struct{}

func (unavailableClient) Invoke(ctx context.Context, req llm.Request) (string, error) {
	return "", llm.ErrUnavailable
}
