package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"

	"github.com/psantana5/sentinel/pkg/api"
	"github.com/psantana5/sentinel/pkg/audit"
	"github.com/psantana5/sentinel/pkg/clock"
	"github.com/psantana5/sentinel/pkg/config"
	"github.com/psantana5/sentinel/pkg/logging"
	"github.com/psantana5/sentinel/pkg/metrics"
	"github.com/psantana5/sentinel/pkg/quarantine"
	"github.com/psantana5/sentinel/pkg/shutdown"
	"github.com/psantana5/sentinel/pkg/supervisor"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML config file")
	listenAddr := flag.String("listen", "", "API listen address (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sentineld: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}

	logger := logging.NewLogger(logging.ParseLevel(cfg.LogLevel), cfg.LogJSON)

	logger.Info("Starting sentinel daemon", map[string]interface{}{
		"listen_addr":  cfg.ListenAddr,
		"metrics_addr": cfg.MetricsAddr,
	})

	clk := clock.New()
	registry := quarantine.NewRegistry(clk)

	// The exporter is also an audit sink but needs the supervisor, so the
	// fan-out list is passed by pointer and extended after construction.
	sinks := audit.MultiSink{audit.NewLoggerSink(logger)}

	var (
		journal     *audit.SQLiteJournal
		journalSink *audit.AsyncSink
	)
	if cfg.JournalPath != "" {
		journal, err = audit.NewSQLiteJournal(cfg.JournalPath)
		if err != nil {
			logger.Error("Failed to open audit journal", map[string]interface{}{
				"path":  cfg.JournalPath,
				"error": err.Error(),
			})
			os.Exit(1)
		}
		// The journal writes behind a buffer so SQLite latency never
		// touches escalation decisions.
		journalSink = audit.NewAsyncSink(journal, 1024)
		sinks = append(sinks, journalSink)
	}

	sup := supervisor.New(cfg.SupervisorConfig(), clk, registry, &sinks)
	exporter := metrics.NewExporter(sup)
	sinks = append(sinks, exporter)

	handler := api.NewHandler(sup, journal, logger)
	router := mux.NewRouter()
	handler.RegisterRoutes(router)

	apiSrv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.AuthMiddleware(cfg.APIKey, api.LoggingMiddleware(logger, router)),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", exporter)
	metricsSrv := &http.Server{
		Addr:         cfg.MetricsAddr,
		Handler:      metricsMux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	// Hooks run LIFO: servers stop first, then the supervisor, then the
	// audit pipeline drains, and the journal closes last.
	mgr := shutdown.New(30*time.Second, logger)
	if journal != nil {
		mgr.Register(shutdown.CloseResource(journal, "audit journal"))
		mgr.Register(func(ctx context.Context) error {
			journalSink.Close()
			return nil
		})
	}
	mgr.Register(func(ctx context.Context) error {
		sup.Shutdown()
		return nil
	})
	mgr.Register(shutdown.StopHTTPServer(metricsSrv, "metrics"))
	mgr.Register(shutdown.StopHTTPServer(apiSrv, "api"))

	go func() {
		logger.Info("API listening", map[string]interface{}{"addr": cfg.ListenAddr})
		if err := apiSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("API server failed", map[string]interface{}{"error": err.Error()})
			os.Exit(1)
		}
	}()
	go func() {
		logger.Info("Metrics listening", map[string]interface{}{"addr": cfg.MetricsAddr})
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Metrics server failed", map[string]interface{}{"error": err.Error()})
		}
	}()

	mgr.Wait()
	mgr.Shutdown()
}
