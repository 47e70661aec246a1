package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/talentgate/subscription-engine/internal/api"
	"github.com/talentgate/subscription-engine/internal/app"
	"github.com/talentgate/subscription-engine/internal/config"
	"github.com/talentgate/subscription-engine/internal/domain/payments"
	"github.com/talentgate/subscription-engine/internal/domain/plans"
	"github.com/talentgate/subscription-engine/internal/domain/subscriptions"
	"github.com/talentgate/subscription-engine/internal/domain/usage"
	"github.com/talentgate/subscription-engine/internal/infra/db"
	httpx "github.com/talentgate/subscription-engine/internal/infra/http"
	"github.com/talentgate/subscription-engine/internal/infra/logger"
	processor "github.com/talentgate/subscription-engine/internal/infra/payments"
	"github.com/talentgate/subscription-engine/internal/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func runMigrations(dsn string) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	planStore := plans.NewRepo(pool)
	subStore := subscriptions.NewRepo(pool)
	usageStore := usage.NewRepo(pool)
	payStore := payments.NewRepo(pool)

	var proc processor.Processor
	if cfg.Payments.Sandbox {
		proc = processor.NewSandbox()
		log.Warn("using sandbox payment processor")
	} else {
		proc = processor.NewGateway(cfg.Payments.GatewayURL)
	}

	var alerts app.Alerts = app.NoopAlerts()
	tg, err := notify.New(cfg.Telegram.Token, cfg.Telegram.AdminChatID)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}
	if tg != nil {
		alerts = tg
		log.Info("telegram alerts enabled", "chat_id", cfg.Telegram.AdminChatID)
	}

	ledger := app.NewLedger(payStore, proc, cfg.Billing.Currency,
		time.Duration(cfg.Payments.TimeoutSeconds)*time.Second, log)
	lifecycle := app.NewLifecycle(planStore, subStore, usageStore, ledger, alerts,
		app.LifecycleConfig{
			DowngradeCredit:     cfg.Billing.DowngradeCredit,
			PendingRecheckAfter: time.Duration(cfg.Billing.PendingRecheckMinutes) * time.Minute,
		}, log)
	catalog := app.NewCatalog(planStore, subStore, log)
	gate := app.NewGate(subStore, usageStore, log)

	jobs := app.NewJobs(lifecycle, alerts, log)
	sched := app.NewScheduler(jobs, app.Schedules{
		Expiry:    cfg.Schedules.Expiry,
		Renewal:   cfg.Schedules.Renewal,
		Reconcile: cfg.Schedules.Reconcile,
	}, log)
	sched.Start()

	handler := api.NewHandler(catalog, lifecycle, gate, ledger, log)
	srv := httpx.New(cfg.HTTP.Addr, api.NewRouter(handler, cfg.Auth.JWTSecret), cfg.Metrics.Enabled)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	<-sched.Stop().Done()
	log.Info("graceful shutdown complete")
}
