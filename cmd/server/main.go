/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the cash-drawer shift service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Build shift manager and history reporter
  4. Configure HTTP router with JWT auth
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port        HTTP server port (default: 8080)
  -db          SQLite database path (default: drawer.db)
               Use ":memory:" for an in-memory database
  -jwt-secret  HS256 signing secret (falls back to JWT_SECRET env)
  -tolerance   Variance classification tolerance (default: 0.01)

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/drawer.db" -jwt-secret="..."

  # Run with in-memory database
  JWT_SECRET=dev ./server -db=":memory:"

SEE ALSO:
  - api/server.go: router configuration
  - store/sqlite/sqlite.go: database implementation
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

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/api"
	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/history"
	"github.com/compucol89/kiosco-sub004/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "drawer.db", "SQLite database path")
	jwtSecret := flag.String("jwt-secret", "", "JWT signing secret (falls back to JWT_SECRET)")
	toleranceRaw := flag.String("tolerance", "0.01", "variance classification tolerance")
	flag.Parse()

	secret := *jwtSecret
	if secret == "" {
		secret = os.Getenv("JWT_SECRET")
	}
	if secret == "" {
		log.Fatal("JWT secret required: set -jwt-secret or JWT_SECRET")
	}

	tolerance, err := decimal.NewFromString(*toleranceRaw)
	if err != nil {
		log.Fatalf("Invalid -tolerance value %q: %v", *toleranceRaw, err)
	}

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Wire domain services
	manager := drawer.NewManager(store, drawer.WithTolerance(tolerance))
	reporter := history.NewReporter(store)
	handler := api.NewHandler(manager, reporter, store, store)

	// Create router
	router := api.NewRouter(handler, secret)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Cash-drawer service starting on http://localhost:%d", *port)
		log.Printf("API available at http://localhost:%d/api", *port)
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
