// Package main is the entry point for the load balancer traffic simulator.
// It assembles a balancer over synthetic providers, drives configurable
// traffic at it, serves Prometheus metrics, and prints a final snapshot.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/llmlb/llmlb"
	"github.com/llmlb/llmlb/providers"
)

func main() {
	configPath := flag.String("config", "", "path to configuration file (empty runs the built-in scenario)")
	flag.Parse()

	cfg, err := LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "configuration error:", err)
		os.Exit(1)
	}

	logger := buildLogger(cfg.Logging)
	slog.SetDefault(logger)

	logger.Info("starting simulator", "version", llmlb.Version, "providers", len(cfg.Providers))

	opts := append(cfg.BalancerOptions(), llmlb.WithLogger(logger))
	for _, spec := range cfg.Providers {
		pcfg := spec.Config()
		p, err := providers.Create(spec.kind(), pcfg)
		if err != nil {
			logger.Error("failed to build provider", "id", spec.ID, "type", spec.kind(), "error", err)
			os.Exit(1)
		}
		opts = append(opts, llmlb.WithProvider(p, pcfg))
	}

	lb, err := llmlb.New(opts...)
	if err != nil {
		logger.Error("failed to build balancer", "error", err)
		os.Exit(1)
	}
	defer lb.Close()

	var server *http.Server
	if cfg.Metrics.Enabled {
		server = metricsServer(cfg.Metrics, lb)
		go func() {
			logger.Info("metrics listening", "addr", cfg.Metrics.Addr, "path", cfg.Metrics.Path)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server error", "error", err)
			}
		}()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	driver := NewDriver(lb, cfg.Traffic, logger)
	done := make(chan Report, 1)
	go func() {
		done <- driver.Run(ctx)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var report Report
	select {
	case report = <-done:
	case sig := <-quit:
		logger.Info("shutting down", "signal", sig.String())
		cancel()
		report = <-done
	}

	if server != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", "error", err)
		}
	}

	if err := printSummary(report, lb); err != nil {
		logger.Error("failed to print summary", "error", err)
		os.Exit(1)
	}
	logger.Info("simulator stopped")
}

// metricsServer exposes Prometheus metrics plus liveness and snapshot
// endpoints.
func metricsServer(cfg MetricsSpec, lb *llmlb.Balancer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("GET "+cfg.Path, promhttp.Handler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.HandleFunc("GET /snapshot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(lb.Snapshot()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
	})

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// printSummary writes the traffic tally and the balancer snapshot to stdout
// as one JSON document.
func printSummary(report Report, lb *llmlb.Balancer) error {
	summary := struct {
		Traffic  Report                  `json:"traffic"`
		Balancer *llmlb.BalancerSnapshot `json:"balancer"`
	}{
		Traffic:  report,
		Balancer: lb.Snapshot(),
	}

	out, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

// buildLogger constructs the process logger from config.
func buildLogger(cfg LoggingSpec) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
