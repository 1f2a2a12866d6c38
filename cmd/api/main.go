package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"dialer-platform/internal/audit"
	"dialer-platform/internal/auth"
	"dialer-platform/internal/billing"
	"dialer-platform/internal/calls"
	"dialer-platform/internal/campaigns"
	"dialer-platform/internal/capacity"
	"dialer-platform/internal/config"
	"dialer-platform/internal/dialer"
	"dialer-platform/internal/httpapi"
	"dialer-platform/internal/pricing"
	"dialer-platform/internal/queue"
	"dialer-platform/internal/reporting"
	"dialer-platform/internal/scheduler"
	"dialer-platform/pkg/logger"
	"dialer-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Capacity: limits must be seeded before the ledger takes traffic.
	ledger := capacity.NewPostgresLedger(db, cfg.Capacity.UserDefault)
	limits := capacity.NewPostgresLimits(db, cfg.Capacity.SystemLimit, cfg.Capacity.UserDefault)
	if err := limits.EnsureSystemRow(rootCtx); err != nil {
		log.Error("capacity seed failed", "err", err)
		os.Exit(1)
	}

	queueStore := queue.NewPostgresStore(db)
	callStore := calls.NewPostgresStore(db)

	rates := pricing.NewService(pricing.NewPostgresRepo(db))
	gate := billing.NewWalletGate(billing.NewPostgresBalances(db), rates)

	provider := dialer.NewTwilioProvider(cfg.Twilio)

	// Completions anywhere wake processors everywhere.
	waker := scheduler.NewWaker(rdb, log)

	dispatcher := scheduler.NewDispatcher(scheduler.DispatcherConfig{
		Provider: provider,
		Ledger:   ledger,
		Calls:    callStore,
		Rate:     cfg.Scheduler.DispatchRate,
		Burst:    cfg.Scheduler.DispatchBurst,
		Timeout:  cfg.Twilio.DispatchTimeout,
		Wake:     waker.Wake,
		Log:      log,
	})

	schedulerSvc := scheduler.NewService(scheduler.ServiceConfig{
		Ledger:     ledger,
		Limits:     limits,
		Queue:      queueStore,
		Calls:      callStore,
		Gate:       gate,
		Provider:   provider,
		Dispatcher: dispatcher,
		FromNumber: cfg.Twilio.FromNumber,
		Wake:       waker.Wake,
		Log:        log,
	})

	completions := scheduler.NewCompletions(scheduler.CompletionsConfig{
		Ledger:  ledger,
		Calls:   callStore,
		Pricing: rates,
		Wake:    waker.Wake,
		Log:     log,
	})

	processor := scheduler.NewProcessor(scheduler.ProcessorConfig{
		Queue:       queueStore,
		Ledger:      ledger,
		Limits:      limits,
		Promoter:    scheduler.NewPostgresPromoter(db, cfg.Capacity.UserDefault),
		Dispatcher:  dispatcher,
		UserDefault: cfg.Capacity.UserDefault,
		Interval:    cfg.Scheduler.TickInterval,
		Wake:        waker.C(),
		Log:         log,
	})

	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	sweeper := capacity.NewSweeper(ledger, rdb, audit.NewLedgerSink(auditSvc, log), waker.Wake, log, capacity.SweeperConfig{
		StaleAfter: cfg.Capacity.StaleAfter,
	})

	campaignSvc := campaigns.NewService(campaigns.NewPostgresRepo(db), schedulerSvc, log)

	reports := reporting.NewService(reporting.StoreSources{
		Calls:  callStore,
		Queue:  queueStore,
		Ledger: ledger,
		Limits: limits,
	})

	h := httpapi.Handlers{
		Auth:      authManager,
		Scheduler: schedulerSvc,
		Campaigns: campaignSvc,
		Calls:     callStore,
		Reports:   reports,
		Ledger:    ledger,
		Limits:    limits,
		Audit:     auditSvc,
	}
	webhook := dialer.StatusWebhookHandler{Outcomes: completions}

	// Gin router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, h, webhook, auth.RequireAccessToken(authManager))

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	var loops sync.WaitGroup
	loops.Add(3)
	go func() {
		defer loops.Done()
		processor.Run(rootCtx)
	}()
	go func() {
		defer loops.Done()
		waker.Listen(rootCtx)
	}()
	go func() {
		defer loops.Done()
		sweeper.Run(rootCtx)
	}()

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	// Order matters: stop taking requests, let the loops finish their
	// tick, then drain in-flight provider dispatches.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
	loops.Wait()
	dispatcher.Shutdown(10 * time.Second)

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
