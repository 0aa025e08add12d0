package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lead-qualifier/internal/audit"
	"lead-qualifier/internal/calls"
	"lead-qualifier/internal/config"
	"lead-qualifier/internal/qualify"
	"lead-qualifier/internal/reconcile"
	"lead-qualifier/internal/telephony"
	"lead-qualifier/internal/transcript"
	"lead-qualifier/pkg/logger"
	"lead-qualifier/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"golang.org/x/sync/errgroup"
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

	if err := run(rootCtx, cfg, log); err != nil {
		log.Error("api stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	log.Info("secrets loaded", "presence", cfg.Presence())

	db, err := utils.OpenPostgres(ctx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		return fmt.Errorf("postgres init: %w", err)
	}
	defer db.Close()

	if cfg.DB.AutoMigrate {
		if err := calls.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate calls: %w", err)
		}
		if err := audit.Migrate(ctx, db); err != nil {
			return fmt.Errorf("migrate call_events: %w", err)
		}
		log.Info("schema applied")
	}

	var locker reconcile.Locker = reconcile.NewMemoryLocker()
	if cfg.RedisEnabled() {
		rdb, err := utils.OpenRedis(ctx, utils.RedisConfig{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password})
		if err != nil {
			return fmt.Errorf("redis init: %w", err)
		}
		defer rdb.Close()
		locker = reconcile.NewRedisLocker(rdb)
		log.Info("reconcile locks shared via redis", "addr", cfg.RedisAddr())
	} else {
		log.Warn("redis not configured; reconcile locks are process-local")
	}

	provider := telephony.NewBlandClient(cfg.Bland.APIKey, cfg.Bland.EncryptedKey,
		telephony.WithBaseURL(cfg.Bland.BaseURL),
		telephony.WithTimeout(cfg.Bland.Timeout),
	)

	callRepo := calls.NewPostgresRepo(db)
	callSvc := calls.NewService(callRepo)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	formatter := transcript.New(cfg.Agent.Name)

	g, gctx := errgroup.WithContext(ctx)

	poller, err := reconcile.New(gctx, reconcile.Options{
		Provider:  provider,
		Calls:     callSvc,
		Audit:     auditSvc,
		Formatter: formatter,
		Locker:    locker,
		Policy: reconcile.Policy{
			InitialDelay: cfg.Poller.InitialDelay,
			Interval:     cfg.Poller.Interval,
			MaxInterval:  cfg.Poller.MaxInterval,
			Backoff:      cfg.Poller.Backoff,
			MaxAttempts:  cfg.Poller.MaxAttempts,
			StepTimeout:  cfg.Bland.Timeout + 10*time.Second,
		},
		Logger: logger.Component(log, "reconcile"),
	})
	if err != nil {
		return err
	}

	initiator, err := qualify.NewInitiator(qualify.Options{
		Repo:      callRepo,
		Provider:  provider,
		Scheduler: poller,
		Audit:     auditSvc,
		Profile: qualify.Profile{
			AgentName:           cfg.Agent.Name,
			Company:             cfg.Agent.Company,
			TransferPhoneNumber: cfg.Agent.TransferPhoneNumber,
			VoiceID:             cfg.Agent.VoiceID,
			Language:            cfg.Agent.Language,
			Temperature:         cfg.Agent.Temperature,
			WebhookURL:          cfg.WebhookURL(),
		},
		Logger: logger.Component(log, "qualify"),
	})
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr: cfg.HTTPAddr(),
		Handler: newRouter(cfg, log, routeDeps{
			db:        db,
			calls:     callRepo,
			mutator:   callSvc,
			initiator: initiator,
			provider:  provider,
			poller:    poller,
			audit:     auditSvc,
			formatter: formatter,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	g.Go(func() error {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("shutdown initiated")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http shutdown failed", "err", err)
		}
		return nil
	})

	err = g.Wait()
	poller.Wait()
	log.Info("shutdown complete")
	return err
}
