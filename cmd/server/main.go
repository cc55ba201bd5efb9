/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the recurring task engine server. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags, optionally load YAML config
  2. Initialize SQLite store
  3. Create lifecycle, API handler, and materialization scheduler
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -config  YAML config file path (optional; flags override nothing,
           they fill in where the file is absent)
  -port    HTTP server port (default: from config, 8080)
  -db      SQLite database path (default: from config)
           Use ":memory:" for in-memory database

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop the materialization scheduler
  2. Stop accepting new connections
  3. Wait for active requests to complete (30s timeout)
  4. Close database connection
  5. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/tasks.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run from a config file
  ./server -config=./config.yaml

SEE ALSO:
  - api/server.go: Router configuration
  - api/scheduler.go: Materialization heartbeat
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/recurrence-engine/api"
	"github.com/warp/recurrence-engine/config"
	"github.com/warp/recurrence-engine/store/sqlite"
	"github.com/warp/recurrence-engine/task"
)

func main() {
	// Flags
	configPath := flag.String("config", "", "YAML config file path")
	port := flag.Int("port", 0, "HTTP server port (overrides config)")
	dbPath := flag.String("db", "", "SQLite database path (overrides config)")
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *port != 0 {
		cfg.Server.Addr = fmt.Sprintf(":%d", *port)
	}
	if *dbPath != "" {
		cfg.Database.Path = *dbPath
	}

	// Initialize store
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize lifecycle and handler
	lifecycle := task.NewLifecycle(store, task.SystemClock())
	lifecycle.HorizonDays = cfg.Scheduler.HorizonDays
	handler := api.NewHandler(store, lifecycle)

	// Start the materialization heartbeat
	scheduler := api.NewMaterializationScheduler(lifecycle, store)
	scheduler.CheckInterval = cfg.Scheduler.Interval()
	scheduler.Enabled = cfg.Scheduler.Enabled
	scheduler.Start()
	defer scheduler.Stop()

	// Create router
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("🚀 Server starting on http://localhost%s", cfg.Server.Addr)
		log.Printf("📊 API available at http://localhost%s/api", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}
