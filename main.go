package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"device-relay/internal/config"
	"device-relay/internal/jobs"
	"device-relay/internal/observability/metrics"
)

func main() {
	logger := log.New(os.Stdout, "", log.LstdFlags)
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("config error: %v", err)
	}

	metrics.Init()
	relay, err := newApp(cfg, logger)
	if err != nil {
		logger.Fatalf("startup error: %v", err)
	}
	defer relay.Close()

	scheduler, err := jobs.NewScheduler(logger)
	if err != nil {
		logger.Fatalf("scheduler error: %v", err)
	}
	if err := relay.housekeeping.Register(scheduler, jobs.Intervals{
		CodeSweep:        cfg.Jobs.CodeSweepInterval,
		GaugeRefresh:     cfg.Jobs.GaugeRefreshInterval,
		CommandSweep:     cfg.Jobs.CommandSweepInterval,
		CommandRetention: cfg.Jobs.CommandRetention,
	}); err != nil {
		logger.Fatalf("housekeeping error: %v", err)
	}
	scheduler.Start()
	defer func() {
		if err := scheduler.Stop(); err != nil {
			logger.Printf("scheduler stop error: %v", err)
		}
	}()

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           loggingMiddleware(relay.handler, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s (storage=%s notifier=%s)", cfg.HTTPAddr, cfg.Storage.Driver, cfg.Notifier.Driver)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Printf("http server error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		elapsed := time.Since(start)
		metrics.ObserveHTTP(r.Method, resp.status, elapsed)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, elapsed)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}
