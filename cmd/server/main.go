package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/postify/drip-engine/internal/api"
	"github.com/postify/drip-engine/internal/app"
	"github.com/postify/drip-engine/internal/config"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("address %s is already in use: %v\n"+
			"  Hint: Run 'lsof -i :<port>' to find the blocking process", addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	flag.Parse()

	log.Println("Starting drip engine API server...")

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		log.Printf("[config] %s not found, using defaults and environment", path)
		path = ""
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}
	app.ConfigureLogging(cfg.Logging)

	if err := checkPortAvailable(cfg.Server.Addr()); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if cfg.Worker.Embedded {
		if err := a.Runner.Start(); err != nil {
			log.Fatalf("Failed to start sweep runner: %v", err)
		}
		log.Println("Embedded sweep runner started")
	}
	if cfg.Server.AdminToken == "" {
		log.Println("[api] WARNING: ADMIN_TOKEN not set, /api/admin is unauthenticated")
	}

	server := api.NewServer(
		cfg.Server,
		api.NewHandlers(a.Engine, a.Runner),
		api.NewHealthChecker(a.DB, a.Redis),
		a.Metrics.Handler(),
	)

	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr())
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	if cfg.Worker.Embedded {
		a.Runner.Stop()
	}
	log.Println("Server stopped")
}
