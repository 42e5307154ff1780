package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/strideworks/sprintgate/internal/api"
	"github.com/strideworks/sprintgate/internal/db"
	"github.com/strideworks/sprintgate/internal/stream"
	"github.com/strideworks/sprintgate/internal/timeutil"
	"github.com/strideworks/sprintgate/internal/units"
	"github.com/strideworks/sprintgate/internal/version"
)

var (
	listen        = flag.String("listen", ":8080", "Listen address")
	dbFile        = flag.String("db", "sprint_results.db", "SQLite results database path")
	migrationsDir = flag.String("migrations", "internal/db/migrations", "Migrations directory")
	defaultUnits  = flag.String("units", units.KMPH, "Default speed units for results ("+units.ValidUnitsString()+")")
	showVersion   = flag.Bool("version", false, "Print version and exit")
)

func main() {
	flag.Parse()

	if *showVersion {
		log.Printf("sprintgate %s (%s, built %s)", version.Version, version.GitSHA, version.BuildTime)
		return
	}
	if *listen == "" {
		log.Fatal("Listen address is required")
	}
	if !units.IsValid(*defaultUnits) {
		log.Fatalf("invalid units %q; valid values: %s", *defaultUnits, units.ValidUnitsString())
	}

	database, err := db.NewDB(*dbFile)
	if err != nil {
		log.Fatalf("Failed to open results database: %v", err)
	}
	defer database.Close()

	if err := database.MigrateUp(*migrationsDir); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	hub := stream.NewHub()
	server := api.NewServer(database, hub, *defaultUnits, timeutil.RealClock{})

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// HTTP server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		httpServer := &http.Server{
			Addr:    *listen,
			Handler: api.LoggingMiddleware(server.ServeMux()),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("sprintgate %s listening on %s", version.Version, *listen)
			if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("failed to start server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("HTTP server shutdown error: %v", err)
		}

		log.Printf("HTTP server routine stopped")
	}()

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
