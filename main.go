package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"corpora/apps/ingest/features/crawl"
	"corpora/apps/ingest/features/ingest"
	"corpora/apps/ingest/features/integration"
	"corpora/apps/ingest/features/job"
	"corpora/apps/ingest/features/notification"
	"corpora/apps/ingest/features/syncstate"
	"corpora/apps/ingest/internal/config"
	"corpora/apps/ingest/internal/connector"
	"corpora/apps/ingest/internal/document"
	"corpora/apps/ingest/internal/embedding"
	"corpora/apps/ingest/internal/logger"
	"corpora/apps/ingest/internal/middleware"
	"corpora/apps/ingest/internal/ratelimit"
	"corpora/apps/ingest/internal/scheduler"
	"corpora/apps/ingest/internal/secrets"
	"corpora/apps/ingest/internal/staging"
	"corpora/apps/ingest/internal/webcrawl"
	"corpora/apps/ingest/internal/worker"

	"github.com/golang-migrate/migrate/v4"
	migratepg "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"
	"github.com/nsqio/go-nsq"
	"github.com/redis/go-redis/v9"
)

// embedRequestsPerSecond throttles calls to the hosted embedding APIs; the
// batcher spreads a large job's requests under provider quotas.
const embedRequestsPerSecond = 5

func main() {
	// Initialize structured logger with correlation-id propagation
	log := slog.New(logger.NewContextHandler(slog.NewJSONHandler(os.Stdout, nil)))
	slog.SetDefault(log)

	// 1. Load Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// 2. Database Connection
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cfg.DBHost, cfg.DBPort, cfg.DBUser, cfg.DBPass, cfg.DBName)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("failed to open db connection", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Retry connection
	for i := 0; i < 10; i++ {
		if err := db.Ping(); err == nil {
			break
		}
		slog.Warn("failed to ping db, retrying...", "attempt", i+1, "max_attempts", 10)
		time.Sleep(2 * time.Second)
	}

	if err := db.Ping(); err != nil {
		slog.Error("failed to ping db after retries", "error", err)
		os.Exit(1)
	}

	// 3. Run Migrations
	driver, err := migratepg.WithInstance(db, &migratepg.Config{})
	if err != nil {
		slog.Error("failed to create migration driver", "error", err)
		os.Exit(1)
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationPath, "postgres", driver)
	if err != nil {
		slog.Error("failed to create migration instance", "error", err)
		os.Exit(1)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	slog.Info("migrations applied successfully")

	// 4. Redis (per-domain crawl rate limiter backend)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis unreachable at startup, rate limiting will fail open", "error", err)
	}

	// 5. NSQ Producer
	nsqCfg := nsq.NewConfig()
	nsqProducer, err := nsq.NewProducer(cfg.NSQDHost, nsqCfg)
	if err != nil {
		slog.Error("failed to create NSQ producer", "error", err)
		os.Exit(1)
	}

	// Pre-create topics to avoid consumer startup errors.
	// NSQ creates topics lazily on publish, but consumers querying lookupd
	// will fail 404 until then. We hit the nsqd http api explicitly.
	nsqdHTTPHost := "nsqd"
	if host, _, err := net.SplitHostPort(cfg.NSQDHost); err == nil && host != "" {
		nsqdHTTPHost = host
	}
	go func() {
		// Wait for nsqd to be ready
		time.Sleep(2 * time.Second)
		topics := []string{
			config.TopicIngestTask,
			config.TopicCrawlDiscover,
			config.TopicCrawlPage,
			config.TopicIngestOutcome,
		}
		for _, topic := range topics {
			url := fmt.Sprintf("http://%s:4151/topic/create?topic=%s", nsqdHTTPHost, topic)
			resp, err := http.Post(url, "application/json", nil)
			if err != nil {
				slog.Warn("failed to pre-create topic", "topic", topic, "error", err)
				continue
			}
			resp.Body.Close()
			if resp.StatusCode == 200 {
				slog.Info("topic pre-created", "topic", topic)
			}
		}
	}()

	// 6. Secrets, staging, embedding tiers
	box, err := secrets.NewBox(cfg.TokenCipherKey)
	if err != nil {
		slog.Error("invalid TOKEN_CIPHER_KEY", "error", err)
		os.Exit(1)
	}

	store, err := staging.NewFSStore(cfg.StagingDir)
	if err != nil {
		slog.Error("failed to create staging store", "dir", cfg.StagingDir, "error", err)
		os.Exit(1)
	}

	embedders := embedding.NewRegistry()
	local, err := embedding.NewOllamaEmbedder(cfg.OllamaHost, embedding.TierLocal.Model)
	if err != nil {
		slog.Error("failed to create local embedder", "error", err)
		os.Exit(1)
	}
	embedders.Register(embedding.TierLocal, local)

	if cfg.GeminiAPIKey != "" {
		standard, err := embedding.NewGeminiEmbedder(context.Background(), cfg.GeminiAPIKey, embedding.TierStandard.Model)
		if err != nil {
			slog.Error("failed to create standard embedder", "error", err)
			os.Exit(1)
		}
		embedders.Register(embedding.TierStandard, standard)

		premium, err := embedding.NewGeminiEmbedder(context.Background(), cfg.GeminiAPIKey, embedding.TierPremium.Model)
		if err != nil {
			slog.Error("failed to create premium embedder", "error", err)
			os.Exit(1)
		}
		embedders.Register(embedding.TierPremium, premium)
	} else {
		slog.Warn("GEMINI_API_KEY not set, hosted embedding tiers unavailable, forcing local")
		cfg.ForceLocalEmbeddings = true
	}

	// 7. Pipeline, connectors, crawl machinery
	writer := document.NewWriter(db)
	pipeline := ingest.NewPipeline(embedders, writer, cfg.ForceLocalEmbeddings, embedRequestsPerSecond)

	integrationRepo := integration.NewPostgresRepo(db, box)

	fetcher := webcrawl.NewFetcher(cfg.CrawlUserAgent)
	providerConn := connector.NewProviderConnector(cfg.DocsAPIBase, "docs", integrationRepo)
	connectors := connector.NewRegistry(
		connector.NewFileConnector(store, cfg.ParserURL),
		connector.NewWebConnector(fetcher),
		providerConn,
	)

	robots := webcrawl.NewRobotsChecker(cfg.CrawlUserAgent)
	limiter := ratelimit.New(rdb, cfg.RateLimitCeiling, time.Duration(cfg.RateLimitWindow)*time.Second)
	discoverer := webcrawl.NewDiscoverer(fetcher, fetcher, writer)

	// 8. Feature repos, services, handlers
	jobRepo := job.NewPostgresRepo(db)
	crawlRepo := crawl.NewPostgresRepo(db)
	syncRepo := syncstate.NewPostgresRepo(db)
	notificationRepo := notification.NewPostgresRepo(db)

	syncer := syncstate.NewManager(syncRepo, providerConn, pipeline)

	ingestService := ingest.NewService(jobRepo, crawlRepo, nsqProducer)
	ingestHandler := ingest.NewHandler(ingestService, store, int(cfg.MaxUploadSizeMB))
	notificationHandler := notification.NewHandler(notificationRepo)
	integrationHandler := integration.NewHandler(integrationRepo)

	// Middleware: CORS
	enableCORS := func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
			next(w, r)
		}
	}

	// Routes
	http.Handle("POST /upload", middleware.CorrelationID(enableCORS(ingestHandler.Upload)))
	http.Handle("POST /ingest", middleware.CorrelationID(enableCORS(ingestHandler.SubmitProvider)))
	http.Handle("POST /sync", middleware.CorrelationID(enableCORS(ingestHandler.SubmitSync)))
	http.Handle("POST /crawls", middleware.CorrelationID(enableCORS(ingestHandler.SubmitCrawl)))
	http.Handle("GET /jobs/{id}", middleware.CorrelationID(enableCORS(ingestHandler.GetJob)))
	http.Handle("GET /crawls/{id}", middleware.CorrelationID(enableCORS(ingestHandler.GetCrawl)))

	http.Handle("GET /notifications", middleware.CorrelationID(enableCORS(notificationHandler.List)))
	http.Handle("POST /notifications/{id}/read", middleware.CorrelationID(enableCORS(notificationHandler.MarkRead)))

	http.Handle("POST /integrations", middleware.CorrelationID(enableCORS(integrationHandler.Connect)))
	http.Handle("DELETE /integrations/{provider}", middleware.CorrelationID(enableCORS(integrationHandler.Disconnect)))

	// 9. Workers (NSQ consumers)
	ingestConsumer := worker.NewIngestConsumer(connectors, pipeline, jobRepo, store, syncer, nsqProducer)
	discoveryConsumer := worker.NewDiscoveryConsumer(crawlRepo, discoverer, nsqProducer)
	pageConsumer := worker.NewPageConsumer(crawlRepo, robots, limiter, fetcher, pipeline, nsqProducer)
	outcomeConsumer := worker.NewOutcomeConsumer(notificationRepo)

	consumers := map[string]nsq.Handler{
		config.TopicIngestTask:    ingestConsumer,
		config.TopicCrawlDiscover: discoveryConsumer,
		config.TopicCrawlPage:     pageConsumer,
		config.TopicIngestOutcome: outcomeConsumer,
	}
	for topic, handler := range consumers {
		consumer, err := nsq.NewConsumer(topic, "ingest", nsq.NewConfig())
		if err != nil {
			slog.Error("failed to create NSQ consumer", "topic", topic, "error", err)
			continue
		}
		consumer.AddHandler(handler)
		if err := consumer.ConnectToNSQLookupd(cfg.NSQLookupd); err != nil {
			slog.Error("failed to connect to NSQLookupd", "topic", topic, "error", err)
			continue
		}
		slog.Info("NSQ consumer connected", "topic", topic)
	}

	// 10. Refresh scheduler
	refresher := scheduler.New(crawlRepo, nsqProducer, cfg.RefreshScanSpec)
	if err := refresher.Start(); err != nil {
		slog.Error("failed to start refresh scheduler", "spec", cfg.RefreshScanSpec, "error", err)
		os.Exit(1)
	}

	// 11. Start Server
	http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ok"}`))
	})

	slog.Info("server starting", "port", cfg.ServerPort)
	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.ServerPort), nil); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}
