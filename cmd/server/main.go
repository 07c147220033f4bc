package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udtms/txmonitor/internal/api"
	"github.com/udtms/txmonitor/internal/config"
	"github.com/udtms/txmonitor/internal/ingestion"
	"github.com/udtms/txmonitor/internal/logger"
	"github.com/udtms/txmonitor/internal/metrics"
	"github.com/udtms/txmonitor/internal/monitor"
	"github.com/udtms/txmonitor/internal/profile"
	"github.com/udtms/txmonitor/internal/reconciliation"
	"github.com/udtms/txmonitor/internal/repository"
	"github.com/udtms/txmonitor/internal/risk"
)

func main() {
	if err := run(); err != nil {
		logger.Error("[server] fatal", "error", err)
		_ = logger.Sync()
		os.Exit(1)
	}
	_ = logger.Sync()
}

func run() error {
	envFile := ""
	if _, err := os.Stat(".env"); err == nil {
		envFile = ".env"
	}
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}
	if err := logger.Configure(cfg.LogEnv); err != nil {
		return err
	}

	riskCfg, err := cfg.RiskConfig()
	if err != nil {
		return err
	}
	matchCfg, err := cfg.MatcherConfig()
	if err != nil {
		return err
	}
	pipelineCfg, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}
	healthCfg, err := cfg.HealthConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("[server] initializing database", "path", cfg.DBPath)
	db, err := repository.InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	m, err := metrics.New(cfg.MetricsNamespace, cfg.LogEnv)
	if err != nil {
		return err
	}

	var profiles profile.Store = profile.NewMemoryStore()
	if opts := cfg.RedisOptions(); opts != nil {
		client, err := profile.Connect(ctx, opts)
		if err != nil {
			return err
		}
		defer client.Close()
		profiles = profile.NewRedisStore(client, cfg.RedisPrefix, cfg.ProfileTTL)
		logger.Info("[server] using redis profile store", "addrs", opts.Addrs)
	} else {
		logger.Warn("[server] REDIS_ADDR not set, customer profiles are kept in memory")
	}

	// Create repositories.
	txnRepo := repository.NewTransactionRepo(db)
	assessRepo := repository.NewAssessmentRepo(db)
	alertRepo := repository.NewAlertRepo(db)
	runRepo := repository.NewReconciliationRepo(db)
	invRepo := repository.NewInvestigationRepo(db)
	integrationRepo := repository.NewIntegrationRepo(db)

	// Create services.
	scorer, err := risk.NewScorer(riskCfg)
	if err != nil {
		return err
	}
	outbound := monitor.NewOutbound(cfg.OutboundTimeout)
	webhooks := monitor.NewWebhookNotifier(integrationRepo, outbound, m)
	notifier := monitor.Notifiers{monitor.NewAlertNotifier(alertRepo, m), webhooks}
	pipeline := monitor.NewPipeline(scorer, profiles, assessRepo, notifier, m, pipelineCfg)
	ingestionSvc := ingestion.NewService(txnRepo, pipeline, m)
	reconSvc := reconciliation.NewService(runRepo, matchCfg, m)
	scheduler := monitor.NewScheduler(txnRepo, pipeline, cfg.ScoringInterval, cfg.ScoringBatchSize)
	integrations := monitor.NewIntegrationService(integrationRepo, outbound, webhooks, m, healthCfg)

	count, err := txnRepo.Count(ctx)
	if err != nil {
		return err
	}
	if count == 0 {
		if err := seed(ctx, ingestionSvc, cfg.SeedFile); err != nil {
			logger.Warn("[server] failed to seed transactions", "error", err)
		}
	} else {
		logger.Info("[server] database already has transactions, skipping seed", "count", count)
	}

	router := api.NewRouter(api.Services{
		Transactions:   txnRepo,
		Assessments:    assessRepo,
		Runs:           runRepo,
		Ingestion:      ingestionSvc,
		Pipeline:       pipeline,
		Alerts:         monitor.NewAlertService(alertRepo),
		Investigations: monitor.NewInvestigationService(invRepo),
		Reconciler:     reconSvc,
		Integrations:   integrations,
		Scorer:         scorer,
		Metrics:        m,
	})
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("[server] transaction monitor listening",
		"addr", "http://localhost:"+cfg.Port,
		"api", "/api/v1",
		"metrics", "/metrics",
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		scheduler.Run(gctx)
		return nil
	})
	g.Go(func() error {
		integrations.Run(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("[server] shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seed ingests a transaction feed into an empty database. Without an explicit
// file it looks for testdata/transactions.json next to the working directory
// or the executable.
func seed(ctx context.Context, svc *ingestion.Service, path string) error {
	candidates := []string{path}
	if path == "" {
		candidates = []string{filepath.Join("testdata", "transactions.json")}
		if exe, err := os.Executable(); err == nil {
			dir := filepath.Dir(exe)
			candidates = append(candidates,
				filepath.Join(dir, "testdata", "transactions.json"),
				filepath.Join(dir, "..", "..", "testdata", "transactions.json"),
			)
		}
	}

	for _, candidate := range candidates {
		data, err := os.ReadFile(candidate)
		if err != nil {
			continue
		}
		format := ingestion.FormatJSON
		if filepath.Ext(candidate) == ".csv" {
			format = ingestion.FormatCSV
		}
		res, err := svc.IngestFeed(ctx, data, filepath.Base(candidate), format)
		if err != nil {
			return err
		}
		logger.Info("[server] seeded transactions",
			"file", candidate,
			"ingested", res.RecordsIngested,
			"alerts", res.AlertsRaised,
		)
		return nil
	}
	logger.Info("[server] no seed file found, starting empty")
	return nil
}
