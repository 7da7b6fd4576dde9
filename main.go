// Command canopy.report serves missing-tree detection for orchard surveys.
// It pulls tree records from the farming provider, runs the detection
// pipeline, and records each run in a local SQLite database.
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/grove-data/canopy.report/internal/api"
	"github.com/grove-data/canopy.report/internal/config"
	"github.com/grove-data/canopy.report/internal/httputil"
	"github.com/grove-data/canopy.report/internal/monitor"
	"github.com/grove-data/canopy.report/internal/store"
	"github.com/grove-data/canopy.report/internal/survey"
	"github.com/grove-data/canopy.report/internal/version"
)

var (
	listen     = flag.String("listen", ":8080", "Listen address")
	dbPath     = flag.String("db", "detection_runs.db", "Run history database path (empty disables recording)")
	configPath = flag.String("config", "", "Tuning config JSON path")
	debugPlots = flag.Bool("debug-plots", false, "Serve the /debug plot endpoints")
)

func main() {
	flag.Parse()

	if *listen == "" {
		log.Fatal("Listen address is required")
	}

	apiKey := os.Getenv("AEROBOTICS_API_KEY")
	if apiKey == "" {
		log.Fatal("AEROBOTICS_API_KEY environment variable is required")
	}

	cfg := config.EmptyTuningConfig()
	if *configPath != "" {
		var err error
		if cfg, err = config.LoadTuningConfig(*configPath); err != nil {
			log.Fatalf("failed to load config: %v", err)
		}
		log.Printf("loaded tuning config from %s", *configPath)
	}

	httpClient := httputil.NewStandardClient(&http.Client{Timeout: cfg.GetProviderTimeout()})
	client := survey.NewClient(httpClient, cfg.GetProviderBaseURL(), apiKey)
	client.MaxAttempts = cfg.GetRetryMaxAttempts()
	client.MinWait = cfg.GetRetryMinWait()
	client.MaxWait = cfg.GetRetryMaxWait()

	var runs *store.Store
	if *dbPath != "" {
		var err error
		if runs, err = store.Open(*dbPath); err != nil {
			log.Fatalf("failed to open run store: %v", err)
		}
		defer runs.Close()
	} else {
		log.Print("run recording disabled")
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		mux := api.NewServer(client, runs, cfg).ServeMux()
		if *debugPlots {
			monitor.NewPlotServer(client, cfg).Register(mux)
		}

		server := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(mux),
		}

		go func() {
			log.Printf("canopy.report %s listening on %s", version.Version, *listen)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
