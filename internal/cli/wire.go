package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"triage/config"
	"triage/internal/adapter/cache"
	"triage/internal/adapter/embedding"
	"triage/internal/adapter/llm"
	"triage/internal/adapter/memstore"
	"triage/internal/adapter/sqlitestore"
	"triage/internal/adapter/store"
	"triage/internal/domain"
	"triage/internal/metrics"
	"triage/internal/port"
	"triage/internal/usecase"
)

// app holds the wired components for one command invocation.
type app struct {
	cfg        *config.Config
	logger     *zap.Logger
	registry   *prometheus.Registry
	metrics    *metrics.Metrics
	categories domain.CategorySet
	embedder   port.Embedder
	tickets    port.TicketStore
	memory     port.VectorMemory
	bolt       *store.BoltStore // nil for the memory backend
	prompt     *llm.Prompt
	classifier port.Classifier
	orch       *usecase.Orchestrator
	service    *usecase.Service
	closers    []func() error
}

type openOptions struct {
	// skipRebuildCheck opens the store without loading the vector memory,
	// so a memory built with another embedding setup can be reset.
	skipRebuildCheck bool
	onDone           func(usecase.Outcome, error)
}

func openApp(ctx context.Context, opts openOptions) (*app, error) {
	cfg := GetConfig()
	a := &app{cfg: cfg, logger: GetLogger()}

	if cfg.Metrics.Enabled {
		a.registry = prometheus.NewRegistry()
		a.metrics = metrics.New(a.registry, cfg.Metrics.Namespace)
	}

	var err error
	if a.categories, err = cfg.CategorySet(); err != nil {
		return nil, err
	}

	base, err := embedding.New(cfg.Embedding.Provider, cfg.Embedding.Model,
		os.Getenv(cfg.Embedding.APIKeyEnv), cfg.Embedding.BaseURL, cfg.Embedding.Dimension)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	a.embedder = base
	if cfg.Cache.EmbedCacheSize > 0 {
		a.embedder = cache.NewCachedEmbedder(base,
			cache.NewEmbeddingCache(cfg.Cache.EmbedCacheSize, cfg.Cache.EmbedCacheTTL), a.metrics)
	}

	if err := a.openStores(opts.skipRebuildCheck); err != nil {
		a.Close()
		return nil, err
	}

	if a.prompt, err = llm.NewPrompt(a.categories, cfg.Cache.MaxExampleLen); err != nil {
		a.Close()
		return nil, err
	}
	inner, err := llm.NewClassifier(llm.ProviderConfig{
		Name:        cfg.Provider.Name,
		Model:       cfg.Provider.Model,
		APIKey:      os.Getenv(cfg.Provider.APIKeyEnv),
		BaseURL:     cfg.Provider.BaseURL,
		Timeout:     cfg.Provider.Timeout,
		Temperature: cfg.Provider.Temperature,
		MaxTokens:   cfg.Provider.MaxTokens,
	}, a.prompt)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create classifier: %w", err)
	}
	a.classifier = llm.NewResilientClassifier(inner,
		llm.RetryPolicy{
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
			MaxAttempts: cfg.Retry.MaxAttempts,
		},
		llm.WithLogger(a.logger),
		llm.WithMetrics(a.metrics),
	)

	a.orch = usecase.NewOrchestrator(a.embedder, a.memory, a.classifier, a.tickets, a.categories,
		usecase.Settings{Threshold: cfg.Cache.Threshold, FewShotK: cfg.Cache.FewShotK},
		a.logger, a.metrics)

	svcOpts := []usecase.ServiceOption{
		usecase.WithConcurrency(cfg.Worker.Concurrency),
		usecase.WithServiceLogger(a.logger),
	}
	if opts.onDone != nil {
		svcOpts = append(svcOpts, usecase.WithOnDone(opts.onDone))
	}
	a.service = usecase.NewService(a.orch, a.tickets, svcOpts...)

	a.logger.Debug("triage wired",
		zap.String("store", cfg.Store.Backend),
		zap.String("embedder", a.embedder.ModelName()),
		zap.String("classifier", a.classifier.Name()),
		zap.Float64("threshold", cfg.Cache.Threshold),
	)
	return a, nil
}

// openStores opens the ticket store and vector memory for the configured
// backend:
//
//	bolt:   <dir>/triage.db holds tickets and memory
//	sqlite: <dir>/tickets.sqlite holds tickets, <dir>/memory.db the memory
//	memory: both live for the lifetime of the process
func (a *app) openStores(skipRebuildCheck bool) error {
	cfg := a.cfg
	dim := a.embedder.Dimension()

	if cfg.Store.Backend == "memory" {
		a.tickets = memstore.NewTicketStore()
		a.memory = memstore.NewVectorMemory(dim)
		return nil
	}

	if err := cfg.EnsureDataDir(GetRootDir()); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	dir := cfg.DataDir(GetRootDir())

	boltPath := filepath.Join(dir, "triage.db")
	if cfg.Store.Backend == "sqlite" {
		boltPath = filepath.Join(dir, "memory.db")
	}
	st, err := store.NewBoltStore(boltPath)
	if err != nil {
		return err
	}
	a.bolt = st
	a.closers = append(a.closers, st.Close)

	res, err := st.CheckMigration(cfg.Embedding, dim)
	if err != nil {
		return err
	}
	if res.NeedsRebuild && !skipRebuildCheck {
		return fmt.Errorf("%s: run 'triage memory reset' to rebuild the memory", res.Reason)
	}
	if res.NeedsMigration && !res.NeedsRebuild {
		a.logger.Info("migrating store", zap.String("reason", res.Reason))
		if err := st.Migrate(cfg.Embedding, dim); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	if !res.NeedsRebuild && !skipRebuildCheck {
		if a.memory, err = store.NewBoltVectorMemory(st.DB(), dim); err != nil {
			return err
		}
	}

	if cfg.Store.Backend == "sqlite" {
		ts, err := sqlitestore.Open(filepath.Join(dir, "tickets.sqlite"))
		if err != nil {
			return err
		}
		a.tickets = ts
		a.closers = append(a.closers, ts.Close)
	} else {
		a.tickets = st
	}
	return nil
}

// Close waits for background classifications, then releases stores and
// writes the metrics textfile.
func (a *app) Close() error {
	if a.service != nil {
		a.service.Close()
	}
	var errs []error
	if err := a.writeMetrics(); err != nil {
		errs = append(errs, err)
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *app) writeMetrics() error {
	if a.registry == nil {
		return nil
	}
	path := a.cfg.Metrics.Textfile
	if path == "" {
		path = filepath.Join(a.cfg.DataDir(GetRootDir()), "metrics.prom")
	}
	if err := prometheus.WriteToTextfile(path, a.registry); err != nil {
		return fmt.Errorf("failed to write metrics: %w", err)
	}
	return nil
}

// ticketCounts reports tickets per status when the store can count them.
func (a *app) ticketCounts(ctx context.Context) (map[domain.Status]int, bool, error) {
	counter, ok := a.tickets.(interface {
		CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	})
	if !ok {
		return nil, false, nil
	}
	counts, err := counter.CountByStatus(ctx)
	return counts, true, err
}

// exitCode maps errors to process exit codes: 2 for caller mistakes, 75
// (EX_TEMPFAIL) for provider exhaustion, 1 otherwise.
func exitCode(err error) int {
	switch {
	case domain.IsCallerError(err):
		return 2
	case domain.IsRetryLater(err):
		return 75
	default:
		return 1
	}
}
