package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kline/internal/calendar"
	"kline/internal/chartapi"
	"kline/internal/config"
	"kline/internal/series"
	"kline/internal/store"
	"kline/internal/util"
)

func main() {
	// Load config.
	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}
	if err := calendar.LoadLocation(cfg.Calendar.Timezone); err != nil {
		log.Fatalf("%v", err)
	}

	// Setup logging.
	logFileName := fmt.Sprintf("/tmp/kline-server-%s.log", time.Now().Format("2006-01-02"))
	logFile, err := os.OpenFile(logFileName, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		log.Fatalf("opening log file: %v", err)
	}
	defer logFile.Close()

	logger := util.NewLogger(io.MultiWriter(os.Stdout, logFile), cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	// Create stores and services.
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	stocks, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
	if err != nil {
		log.Fatalf("opening stock db: %v", err)
	}
	defer stocks.Close()

	svc := series.New(ps, series.Options{
		SourceMinutes: cfg.Chart.SourceMinutes,
		DefaultLimit:  cfg.Chart.DefaultLimit,
		MaxLimit:      cfg.Chart.MaxLimit,
		Workers:       cfg.Chart.Workers,
	}, logger)
	srv := chartapi.NewServer(svc, stocks, cfg.Server.Token, logger)

	refresher := chartapi.NewRefresher(srv.ClearCache, logger)
	if err := refresher.Register(cfg.Calendar.RefreshCrons...); err != nil {
		log.Fatalf("scheduling cache refresh: %v", err)
	}
	refresher.Start()
	defer refresher.Stop()

	// Start HTTP server.
	httpServer := &http.Server{
		Addr:    cfg.Server.Addr(),
		Handler: srv.Handler(),
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		logger.Info("kline server listening", "addr", httpServer.Addr, "data_dir", cfg.Storage.DataDir, "tz", cfg.Calendar.Timezone)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("HTTP server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down kline server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
}
