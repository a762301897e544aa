package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"guildwarden/internal/analytics"
	"guildwarden/internal/bot"
	"guildwarden/internal/cases"
	"guildwarden/internal/config"
	"guildwarden/internal/escalation"
	"guildwarden/internal/metrics"
	"guildwarden/internal/modules/audit"
	"guildwarden/internal/ratewindow"
	"guildwarden/internal/storage"
	"guildwarden/internal/storage/memstore"
	"guildwarden/internal/storage/sqlstore"
	"guildwarden/internal/sweeper"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	ctx := context.Background()

	shutdownMetrics, err := metrics.Setup(ctx, metrics.Config{
		Enabled:      cfg.Metrics.Enabled,
		OTLPEndpoint: cfg.Metrics.OTLPEndpoint,
		Insecure:     cfg.Metrics.Insecure,
	}, logger)
	if err != nil {
		logger.Fatal("metrics init failed", zap.Error(err))
	}
	recorder, err := metrics.NewRecorder()
	if err != nil {
		logger.Fatal("metrics recorder init failed", zap.Error(err))
	}

	store, err := openStore(cfg.Storage)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	logger.Info("storage ready", zap.String("driver", cfg.Storage.Driver))

	var tracker ratewindow.Tracker = ratewindow.NewMemoryTracker()
	if cfg.Redis.Enabled {
		client, err := ratewindow.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("redis connect failed", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		defer client.Close()
		tracker = ratewindow.NewRedisTracker(client, "")
		logger.Info("rate window backed by redis", zap.String("addr", cfg.Redis.Addr))
	}

	ledger := cases.NewLedger(store, logger, recorder)
	engine := escalation.NewEngine(escalation.Config{
		TimeoutMinutes: cfg.Spam.TimeoutMinutes,
		ResetMode:      escalation.ResetMode(cfg.Spam.StrikeReset),
		Cooldown:       cfg.Spam.Cooldown(),
	}, ledger)
	auditLogger := audit.NewLogger(store, logger)
	analyticsService := analytics.New(ledger, cases.MaxListLimit)

	botSvc, err := bot.New(cfg, logger, bot.Deps{
		Store:     store,
		Ledger:    ledger,
		Tracker:   tracker,
		Engine:    engine,
		Audit:     auditLogger,
		Analytics: analyticsService,
		Metrics:   recorder,
	})
	if err != nil {
		logger.Fatal("bot init failed", zap.Error(err))
	}

	scheduler := sweeper.New(sweeper.Config{
		SweepSchedule:   cfg.Spam.SweepSchedule,
		CleanupSchedule: cfg.MessageLogs.CleanupSchedule,
		RetentionDays:   cfg.MessageLogs.RetentionDays,
	}, tracker, engine, auditLogger, logger, recorder)
	if err := scheduler.Start(); err != nil {
		logger.Fatal("scheduler start failed", zap.Error(err))
	}

	if err := botSvc.Start(); err != nil {
		logger.Fatal("bot start failed", zap.Error(err))
	}
	logger.Info("bot started")

	var server *http.Server
	if cfg.Health.Enabled {
		server = &http.Server{Addr: cfg.Health.Addr}
		http.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	botSvc.Close()
	scheduler.Stop(shutdownCtx)
	if err := shutdownMetrics(shutdownCtx); err != nil {
		logger.Warn("metrics shutdown failed", zap.Error(err))
	}
}

func openStore(cfg config.StorageConfig) (storage.Store, error) {
	if cfg.Driver == "memory" {
		if cfg.DataPath == "" {
			return memstore.New(), nil
		}
		return memstore.Open(cfg.DataPath)
	}

	store, err := sqlstore.Open(cfg.Driver, cfg.DSN)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(); err != nil {
		_ = store.Close()
		return nil, err
	}
	return store, nil
}
