package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kirillkom/rental-doc-intake/internal/config"
	"github.com/kirillkom/rental-doc-intake/internal/core/classify"
	"github.com/kirillkom/rental-doc-intake/internal/core/extract"
	"github.com/kirillkom/rental-doc-intake/internal/core/jobs"
	"github.com/kirillkom/rental-doc-intake/internal/core/ports"
	"github.com/kirillkom/rental-doc-intake/internal/core/reminders"
	"github.com/kirillkom/rental-doc-intake/internal/core/rules"
	"github.com/kirillkom/rental-doc-intake/internal/core/usecase"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor/pdf"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor/plaintext"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor/spreadsheet"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/extractor/word"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/queue/nats"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/resilience"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/rules/yamlfile"
	"github.com/kirillkom/rental-doc-intake/internal/infrastructure/storage/localfs"
)

// Metrics is what both processes report into. Workers additionally pass a
// jobs.Observer.
type Metrics interface {
	rules.CacheObserver
	resilience.Observer
}

type Options struct {
	Logger  *slog.Logger
	Metrics Metrics
	// Worker builds the orchestrator, the pipeline stages and the event relay.
	Worker      bool
	JobObserver jobs.Observer
}

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue     *nats.Queue
	Repo      *postgres.DocumentRepository
	Reminders *postgres.ReminderRepository
	RuleCache *rules.Cache

	IngestUC ports.DocumentIngestor
	Intake   *usecase.IntakeService
	Jobs     ports.JobScheduler

	// Set only for workers.
	Orchestrator *jobs.Orchestrator
	Relay        *usecase.JobEventRelay

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, opts Options) (*App, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	resilienceCfg := resilience.DefaultConfig()
	resilienceCfg.RetryMaxAttempts = cfg.RetryMaxAttempts
	resilienceCfg.RetryInitialBackoff = cfg.RetryInitialBackoff
	resilienceCfg.RetryMaxBackoff = cfg.RetryMaxBackoff
	resilienceCfg.BreakerEnabled = cfg.BreakerEnabled
	resilienceCfg.BreakerOpenTimeout = cfg.BreakerOpenTimeout
	resilienceCfg.Logger = logger
	if opts.Metrics != nil {
		resilienceCfg.Observer = opts.Metrics
	}
	executor := resilience.NewExecutor(resilienceCfg)

	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if cfg.EnsureDBSchema {
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure schema: %w", err)
		}
	}
	reminderRepo := postgres.NewReminderRepository(db)

	var ruleSource ports.RuleRepository
	switch cfg.RulesSource {
	case config.RulesSourceFile:
		ruleSource = yamlfile.New(cfg.RulesFile)
	default:
		ruleSource = postgres.NewRuleRepository(db, executor)
	}
	cacheOpts := rules.CacheOptions{TTL: cfg.RuleCacheTTL, Logger: logger}
	if opts.Metrics != nil {
		cacheOpts.Observer = opts.Metrics
	}
	cache := rules.NewCache(ruleSource, cacheOpts)

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	queue, err := nats.NewWithOptions(cfg.NATSURL, nats.Subjects{
		Ingest:      cfg.NATSIngestSubject,
		Jobs:        cfg.NATSJobSubject,
		EventPrefix: cfg.NATSEventSubjectPrefix,
		Rules:       cfg.NATSRulesSubject,
	}, nats.Options{
		ResilienceExecutor: executor,
		Logger:             logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	classifier := classify.NewEngine(classify.Options{
		PartialCredit: cfg.KeywordPartialCredit,
		MaxResults:    cfg.ClassifyMaxResults,
		Logger:        logger,
	})
	fieldExtractor := extract.NewEngine(extract.Options{Logger: logger})

	app := &App{
		Config:    cfg,
		Logger:    logger,
		Queue:     queue,
		Repo:      repo,
		Reminders: reminderRepo,
		RuleCache: cache,
		IngestUC:  usecase.NewIngestDocumentUseCase(repo, storage, queue),
		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}

	if opts.Worker {
		text := plaintext.NewExtractor()
		producer := extractor.NewRouter(text, logger).
			Handle(text, "text/plain", "text/csv", "text/markdown").
			Handle(pdf.NewExtractor(logger), extractor.MimePDF).
			Handle(spreadsheet.NewExtractor(), extractor.MimeXLSX).
			Handle(word.NewExtractor(logger), extractor.MimeDOCX, extractor.MimeDOC)

		app.Orchestrator = jobs.New(jobs.Options{
			MaxAttempts:  cfg.JobMaxAttempts,
			RetryBackoff: cfg.JobRetryBackoff,
			JobTimeout:   cfg.JobTimeout,
			Logger:       logger,
			Observer:     opts.JobObserver,
		})
		stages := usecase.NewPipelineStages(
			repo,
			storage,
			producer,
			reminderRepo,
			cache,
			classifier,
			fieldExtractor,
			reminders.NewDeriver(),
			usecase.StageConfig{
				AutoAssignThreshold: cfg.AutoAssignThreshold,
				GCRetention:         cfg.GCRetention(),
			},
			logger,
		)
		stages.Register(app.Orchestrator)
		app.Relay = usecase.NewJobEventRelay(app.Orchestrator, queue, repo, logger)
	}

	app.Intake = usecase.NewIntakeService(cache, classifier, fieldExtractor, app.Orchestrator, queue, logger)
	if app.Orchestrator != nil {
		app.Jobs = app.Intake
	} else {
		app.Jobs = usecase.NewRemoteJobScheduler(queue)
	}

	return app, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
