package main

import (
	"context"
	"errors"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/user/catalog-crawler/internal/api"
	"github.com/user/catalog-crawler/internal/config"
	"github.com/user/catalog-crawler/internal/crawler"
	"github.com/user/catalog-crawler/internal/extract"
	"github.com/user/catalog-crawler/internal/fetch"
	"github.com/user/catalog-crawler/internal/monitoring"
	"github.com/user/catalog-crawler/internal/proxy"
	"github.com/user/catalog-crawler/internal/sites"
	"github.com/user/catalog-crawler/internal/storage"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	flags := pflag.NewFlagSet("crawler", pflag.ExitOnError)
	config.Flags(flags)
	_ = flags.Parse(os.Args[1:])

	cfg, err := config.Load(flags)
	if err != nil {
		zap.NewExample().Fatal("could not load config", zap.Error(err))
	}

	logger := newLogger(cfg.LogLevel)
	defer logger.Sync()

	siteFile, err := config.LoadSites(cfg.SitesFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Fatal("could not load site config", zap.Error(err))
		}
		logger.Warn("site config not found, using seed list only", zap.String("path", cfg.SitesFile))
		siteFile = &config.Sites{}
	}
	seeds, err := config.LoadSeeds(cfg.SeedsFile)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			logger.Fatal("could not load seed list", zap.Error(err))
		}
		logger.Warn("seed list not found", zap.String("path", cfg.SeedsFile))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	metrics := monitoring.NewMetrics(nil)
	proxyManager := proxy.NewManager(cfg.ProxyList(), nil)

	// Sinks
	sink := storage.NewMultiSink(logger)
	checks := map[string]api.Pinger{}
	fileSink, err := storage.NewFileSink(cfg.OutputDir, cfg.OutputBase)
	if err != nil {
		logger.Fatal("could not open output files", zap.Error(err))
	}
	sink.Add("file", fileSink)

	var pgSink *storage.PostgresSink
	if cfg.PostgresURL != "" {
		pgSink, err = storage.NewPostgresSink(ctx, cfg.PostgresURL, runID, storage.DefaultPostgresBatch)
		if err != nil {
			logger.Fatal("failed to connect to postgres", zap.Error(err))
		}
		if err := pgSink.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to prepare postgres schema", zap.Error(err))
		}
		sink.Add("postgres", pgSink)
		checks["postgres"] = pgSink
	}
	if cfg.SQLitePath != "" {
		sqliteSink, err := storage.NewSQLiteSink(cfg.SQLitePath)
		if err != nil {
			logger.Fatal("failed to open sqlite", zap.Error(err))
		}
		sink.Add("sqlite", sqliteSink)
	}
	if cfg.RedisAddr != "" {
		redisSink := storage.NewRedisSink(cfg.RedisAddr, cfg.RedisStream, runID, cfg.RedisMaxLen)
		sink.Add("redis", redisSink)
		checks["redis"] = redisSink
	}

	// Fetch strategies
	render := fetch.NewRenderFetcher(proxyManager, logger)
	defer render.Close()
	acquirer := fetch.NewAcquirer(logger,
		fetch.WithProvider(fetch.NewProviderFetcher(&http.Client{}, fetch.EnvCredentials{}, nil, logger)),
		fetch.WithStatic(fetch.NewStaticFetcher(proxyManager, logger)),
		fetch.WithRender(render),
		fetch.WithTimeouts(cfg.Timeouts()),
		fetch.WithMetrics(metrics),
	)

	coreCrawler := crawler.NewCrawler(acquirer, sink, crawler.Options{
		RunID:      runID,
		Workers:    cfg.CrawlWorkers,
		RunLimit:   cfg.RunLimit,
		Keywords:   siteFile.Keywords,
		Classifier: extract.NewClassifier(siteFile.OutOfStockPhrases...),
		Metrics:    metrics,
	}, logger)

	var server *api.Server
	if cfg.OpsPort != "" {
		server = api.NewServer(cfg.OpsPort, coreCrawler, checks, nil, metrics, logger)
		go func() {
			if err := server.Start(); err != nil && err != http.ErrServerClosed {
				logger.Error("ops server stopped", zap.Error(err))
			}
		}()
		logger.Info("ops server started", zap.String("port", cfg.OpsPort))
	}

	registry := sites.NewRegistry(siteFile.Sites)
	logger.Info("run configured",
		zap.String("run_id", runID),
		zap.Int("sites", registry.Len()),
		zap.Int("seeds", len(seeds)),
		zap.Int("sinks", sink.Len()),
	)

	sum, runErr := coreCrawler.Run(ctx, registry, seeds)
	logger.Debug("render browsers used", zap.Int("browsers", render.Browsers()))

	if pgSink != nil && runErr == nil {
		if err := pgSink.SaveRun(context.Background(), sum); err != nil {
			logger.Error("failed to save run summary", zap.Error(err))
		}
	}
	if err := sink.Close(); err != nil {
		logger.Error("failed to close sinks", zap.Error(err))
	}
	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("ops server forced to shutdown", zap.Error(err))
		}
	}

	if runErr != nil {
		logger.Error("run aborted", zap.Error(runErr))
		render.Close()
		logger.Sync()
		os.Exit(1)
	}
	for name, s := range sum.Sites {
		logger.Info("site finished",
			zap.String("site", name),
			zap.Int("emitted", s.Emitted),
			zap.Int("pages", s.Pages),
			zap.Int("failed_pages", s.FailedPages),
			zap.String("reason", s.DoneReason),
		)
	}
}

func newLogger(level string) *zap.Logger {
	zcfg := zap.NewProductionConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		zcfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, err := zcfg.Build()
	if err != nil {
		return zap.NewExample()
	}
	return logger
}
