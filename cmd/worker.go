package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/agent"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/ai"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/cache"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/catalog"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/database"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/enrich"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/gateway"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/notify"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/queue"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/repository"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/results"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scanner"
	"github.com/CosmoTheDev/devsecwatch-worker/internal/scans"
	"github.com/CosmoTheDev/devsecwatch-worker/models"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var workerConcurrency int

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume scan jobs from the queue",
	Long: `Runs the scan job worker. Each worker slot takes one job at a time
through fetch, catalog, analysis, enrichment, persistence and notification,
then acknowledges or rejects the queue message.

Input failures (unreachable repository, clone timeout, no source files) are
rejected without requeue. Other failures are requeued until the queue's retry
limit moves them to the archive.

When metrics are enabled the worker also serves:
  GET /healthz   dependency health
  GET /metrics   Prometheus metrics`,
	RunE: runWorker,
}

func init() {
	workerCmd.Flags().IntVar(&workerConcurrency, "concurrency", 0,
		"worker slots (1-3, overrides config)")
}

func runWorker(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if workerConcurrency > 0 {
		cfg.Worker.Concurrency = min(workerConcurrency, 3)
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	var cacheStore cache.Store
	var redisPing func(context.Context) error
	redisClient, err := cache.NewClient(ctx, cfg.Redis)
	if err != nil {
		slog.Warn("Redis cache unavailable, using in-process explanation cache", "error", err)
		cacheStore = cache.NewMemoryStore()
		redisErr := err
		redisPing = func(context.Context) error { return redisErr }
	} else {
		defer redisClient.Close()
		cacheStore = redisClient
		redisPing = redisClient.Ping
	}

	relay := asynq.NewClient(queue.RedisOpt(cfg.Redis))
	defer relay.Close()

	orch, analyzer, err := buildOrchestrator(ctx, cfg, db, cacheStore, relay)
	if err != nil {
		return err
	}

	fmt.Println(headerStyle.Render("devsecwatch worker"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  Queue       : %s (max retry %d)", cfg.Queue.ScanQueue, cfg.Queue.MaxRetry)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  Concurrency : %d", cfg.Worker.Concurrency)))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  Analyzer    : %s", analyzer.Name())))
	fmt.Println(dimStyle.Render(fmt.Sprintf("  Database    : %s", db.Driver())))
	if cfg.Metrics.Enabled {
		fmt.Println(dimStyle.Render(fmt.Sprintf("  Metrics     : http://%s/metrics", cfg.Metrics.Addr)))
	}
	fmt.Println()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return queue.NewServer(cfg, orch).Run(gctx)
	})
	if cfg.Metrics.Enabled {
		janitor := gateway.NewJanitor(scans.NewStore(db), cfg.Janitor)
		gw := gateway.New(cfg.Metrics.Addr, janitor,
			gateway.Check{Name: "database", Fn: db.Ping},
			gateway.Check{Name: "redis", Fn: redisPing},
			gateway.Check{Name: "analyzer", Fn: func(ctx context.Context) error {
				if analyzer.Available(ctx) == "" {
					return errors.New(analyzer.Name() + " not found locally or via docker")
				}
				return nil
			}},
		)
		g.Go(func() error { return gw.Start(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("Worker stopped")
	return nil
}

// buildOrchestrator wires the pipeline stages from cfg.
func buildOrchestrator(ctx context.Context, cfg *config.Config, db database.DB, store cache.Store, relay notify.Enqueuer) (*agent.Orchestrator, *scanner.Analyzer, error) {
	explainer, err := ai.New(cfg.AI)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising AI explainer: %w", err)
	}
	if explainer.IsAvailable(ctx) {
		slog.Info("AI explanation service reachable", "url", cfg.AI.ServiceURL)
	} else {
		slog.Warn("AI explanation service not available, findings will use templates until it recovers")
	}

	templates, err := enrich.LoadTemplates(cfg.Enrichment.TemplatesFile)
	if err != nil {
		return nil, nil, err
	}
	explanations, err := cache.New[models.Explanation](store, cfg.Enrichment.CachePrefix, cfg.Enrichment.CacheTTL)
	if err != nil {
		return nil, nil, fmt.Errorf("initialising explanation cache: %w", err)
	}

	analyzer := scanner.NewAnalyzer(scanner.Options{
		Engine:       scanner.Engine(cfg.Analyzer.Engine),
		Rules:        cfg.Analyzer.Rules,
		Timeout:      cfg.Analyzer.Timeout,
		BinDir:       cfg.Analyzer.BinDir,
		PreferDocker: cfg.Analyzer.PreferDocker,
		DockerImage:  cfg.Analyzer.DockerImage,
	})

	notifier := notify.NewDispatcher(cfg.Notify, relay, cfg.Queue.NotificationQueue)

	orch := agent.NewOrchestrator(agent.Deps{
		Store:     scans.NewStore(db),
		Fetcher:   repository.NewFetcher(cfg.Workspace.Root, cfg.Workspace.CloneTimeout, cfg.Workspace.GitToken),
		Catalog:   catalog.NewBuilder(cfg.Catalog.ExtraExcludes),
		Analyzer:  analyzer,
		Enricher:  enrich.New(explainer, explanations, templates, cfg.Enrichment.Parallelism),
		Persister: results.NewPersister(db),
		Notifier:  notifier,
	})
	return orch, analyzer, nil
}
