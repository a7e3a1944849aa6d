/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the discount computation service. Handles
  configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router
  5. Start server with graceful shutdown

COMMAND-LINE FLAGS:
  -port    HTTP server port (default: 8080)
  -db      SQLite database path (default: discount.db)
           Use ":memory:" for an in-memory database
  -config  Optional YAML/JSON config document; becomes the default staged
           configuration for every new dataset

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./server -db="./data/discount.db"

  # Run with in-memory database
  ./server -db=":memory:"

  # Run on different port
  ./server -port=3000

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
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

	"github.com/warp/discount-engine/api"
	"github.com/warp/discount-engine/factory"
	"github.com/warp/discount-engine/store/sqlite"
)

func main() {
	// Flags
	port := flag.Int("port", 8080, "HTTP server port")
	dbPath := flag.String("db", "discount.db", "SQLite database path")
	configPath := flag.String("config", "", "Default config document (YAML or JSON)")
	flag.Parse()

	// Initialize store
	store, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer store.Close()

	// Initialize handler and router
	handler := api.NewHandler(store)
	if *configPath != "" {
		doc, err := loadDefaults(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config document: %v", err)
		}
		handler.Defaults = doc
		log.Printf("Loaded default configuration from %s", *configPath)
	}
	router := api.NewRouter(handler)

	// Create server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      router,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server starting on http://localhost:%d", *port)
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

// loadDefaults reads and validates a config document so a broken file fails
// at startup rather than on the first compute.
func loadDefaults(path string) (factory.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return factory.Document{}, err
	}
	doc, err := factory.ParseDocument(data)
	if err != nil {
		return factory.Document{}, err
	}
	_, warnings, err := doc.Build(nil)
	if err != nil {
		return factory.Document{}, err
	}
	for _, w := range warnings {
		log.Printf("Config document warning: %s", w)
	}
	return doc, nil
}
