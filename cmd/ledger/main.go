package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"earthworks-ledger/internal/api"
	"earthworks-ledger/internal/bot"
	"earthworks-ledger/internal/cloud"
	"earthworks-ledger/internal/config"
	"earthworks-ledger/internal/imaging"
	"earthworks-ledger/internal/repository"
	"earthworks-ledger/internal/service"
)

type cloudStore interface {
	service.CloudStore
	Close() error
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	out := io.Writer(os.Stderr)
	if cfg.LogFile != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		defer rotating.Close()
		out = io.MultiWriter(os.Stderr, rotating)
	}
	logger := log.New(out, "", log.LstdFlags)

	db, err := repository.NewDB(cfg.DatabaseURL, out)
	if err != nil {
		logger.Fatalf("db: %v", err)
	}
	sqlDB, err := db.DB()
	if err == nil {
		defer sqlDB.Close()
	}

	var remote cloudStore = cloud.Disabled{}
	if cfg.CloudEnabled() {
		remote = cloud.NewFirestoreStore(cloud.FirestoreConfig{
			ProjectID:       cfg.FirestoreProject,
			CredentialsFile: cfg.FirestoreCredentials,
			Bucket:          cfg.StorageBucket,
		}, logger)
		logger.Printf("[info] cloud store: firestore project %s", cfg.FirestoreProject)
	} else {
		logger.Println("[warn] FIRESTORE_PROJECT not set, records stay on this device")
	}

	local := repository.NewLocalStore(db, cfg.LocalBinaryStore, logger)
	settings := repository.NewSettingsRepository(db)

	syncSvc := service.NewSyncService(remote, local, settings, logger)
	invoiceSvc := service.NewInvoiceService(remote, local, imaging.NewNormalizer(), logger)
	bench := service.NewWorkbench(syncSvc, logger)
	summarySvc := service.NewSummaryService(syncSvc, invoiceSvc)
	gate := service.NewGate(settings, 0)
	entrySvc := service.NewEntryService(bench)

	scheduler := service.NewSchedulerService(time.Local, logger)
	if _, err := scheduler.ScheduleInterval(cfg.AutosaveInterval, func() {
		jobCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		bench.FlushAll(jobCtx)
	}); err != nil {
		logger.Fatalf("schedule autosave: %v", err)
	}

	var telegramBot *bot.Bot
	if cfg.BotEnabled() {
		telegramBot, err = bot.New(cfg.TelegramToken, cfg.TelegramChatID, bot.Services{
			Gate:     gate,
			Entries:  entrySvc,
			Invoices: invoiceSvc,
			Summary:  summarySvc,
		}, logger)
		if err != nil {
			logger.Fatalf("bot: %v", err)
		}
		if _, err := scheduler.ScheduleDaily(cfg.SummaryTime, func() {
			jobCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			if err := telegramBot.SendDailySummary(jobCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("[warn] summary: %v", err)
			}
		}); err != nil {
			logger.Fatalf("schedule summary: %v", err)
		}
	}
	scheduler.Start()

	handler := api.NewHandler(bench, invoiceSvc, summarySvc, gate, logger)
	server := api.NewServer(api.DefaultServerConfig(cfg.HTTPAddress), handler.Routes())
	serverErr := make(chan error, 1)
	go func() {
		logger.Printf("[info] http listening on %s", cfg.HTTPAddress)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	botDone := make(chan struct{})
	go func() {
		defer close(botDone)
		if telegramBot == nil {
			return
		}
		if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("[error] bot stopped: %v", err)
		}
	}()

	logger.Println("[info] earthworks ledger started")
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			logger.Printf("[error] http server: %v", err)
		}
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Printf("[warn] http shutdown: %v", err)
	}
	<-botDone
	scheduler.Stop()
	if n := bench.FlushAll(shutdownCtx); n > 0 {
		logger.Printf("[info] saved %d page(s) on shutdown", n)
	}
	syncSvc.Wait()
	if err := remote.Close(); err != nil {
		logger.Printf("[warn] close cloud store: %v", err)
	}
	logger.Println("[info] shutdown complete")
}
