// Command gatewise runs the gate discovery service: the scan ingest API,
// the interval-driven processing pipeline, the monitor pages, and the
// admin/debug surface, all on one HTTP listener.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"
	_ "modernc.org/sqlite"

	"github.com/gatewise-data/gatewise/internal/api"
	"github.com/gatewise-data/gatewise/internal/config"
	"github.com/gatewise-data/gatewise/internal/db"
	"github.com/gatewise-data/gatewise/internal/engine"
	"github.com/gatewise-data/gatewise/internal/metrics"
	"github.com/gatewise-data/gatewise/internal/monitor"
	"github.com/gatewise-data/gatewise/internal/pipeline"
	"github.com/gatewise-data/gatewise/internal/timeutil"
	"github.com/gatewise-data/gatewise/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "HTTP listen address")
	dbFile        = flag.String("db", "gatewise.db", "Path to the SQLite database file")
	configPath    = flag.String("config", "", "Path to tuning config JSON (built-in defaults when empty)")
	interval      = flag.Duration("interval", 0, "Processing interval, e.g. 30s (overrides config when set)")
	logDir        = flag.String("log-dir", "", "Directory for rotating engine log files (stderr only when empty)")
	reportWebhook = flag.String("report-webhook", "", "URL to POST finished cycle reports to (disabled when empty)")
)

// Main
func main() {
	flag.Parse()

	// 'gatewise migrate <action>' manages the schema out of band and exits.
	if args := flag.Args(); len(args) > 0 && args[0] == "migrate" {
		db.RunMigrateCommand(args[1:], *dbFile)
		return
	}

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	log.Printf("gatewise %s (%s) starting", version.Version, version.GitSHA)

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		cfg, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	}

	if *logDir != "" {
		setupEngineLogs(*logDir)
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	m := metrics.New()

	eng := pipeline.NewEngine(database, cfg, m, timeutil.RealClock{})
	if *reportWebhook != "" {
		eng.SetReportWebhook(pipeline.NewReportWebhook(*reportWebhook, nil, m))
		log.Printf("Delivering cycle reports to %s", *reportWebhook)
	}

	processInterval := cfg.GetProcessInterval()
	if *interval > 0 {
		processInterval = *interval
	}
	worker := pipeline.NewWorker(eng, processInterval, nil)

	// Create a wait group for the HTTP server and pipeline worker routines
	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// run the pipeline worker until the context is cancelled
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Start()
		<-ctx.Done()
		worker.Stop()
		log.Print("pipeline worker terminated")
	}()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		// API routes come with the mux; monitor pages, admin debugging
		// routes, and Prometheus metrics mount on top
		mux := api.NewServer(database, eng, cfg, m).ServeMux()
		monitor.New(database, cfg).AttachRoutes(mux)
		if err := database.AttachAdminRoutes(mux); err != nil {
			log.Printf("Failed to attach admin routes: %v", err)
		}
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting HTTP server on %s", *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		// Create a shutdown context with a timeout
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}

// setupEngineLogs points the engine's ops and diag streams at rotating
// files under dir. The trace stream stays off; it is too verbose for
// unattended operation.
func setupEngineLogs(dir string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Fatalf("Failed to create log directory: %v", err)
	}

	engine.SetLogWriters(engine.LogWriters{
		Ops: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "engine-ops.log"),
			MaxSize:    10, // megabytes
			MaxBackups: 5,
			MaxAge:     28, // days
			Compress:   false,
		},
		Diag: &lumberjack.Logger{
			Filename:   filepath.Join(dir, "engine-diag.log"),
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     7,
			Compress:   false,
		},
	})
	log.Printf("Engine logs rotating under %s", dir)
}
