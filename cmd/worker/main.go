package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/postify/drip-engine/internal/app"
	"github.com/postify/drip-engine/internal/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the YAML config file")
	once := flag.Bool("once", false, "run a single sweep and exit")
	flag.Parse()

	log.Println("Starting drip sweep worker...")

	path := *configPath
	if _, err := os.Stat(path); err != nil {
		path = ""
	}
	cfg, err := config.LoadFromEnv(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	app.ConfigureLogging(cfg.Logging)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer a.Close()

	if *once {
		report, err := a.Runner.RunNow(ctx)
		if err != nil {
			log.Fatalf("Sweep failed: %v", err)
		}
		log.Printf("Sweep done: checks=%d started=%d advanced=%d completed=%d cancelled=%d failures=%d (%s)",
			report.ChecksProcessed, report.SequencesStarted, report.SequencesAdvanced,
			report.SequencesCompleted, report.SequencesCancelled, report.Failures, report.Duration)
		return
	}

	if err := a.Runner.Start(); err != nil {
		log.Fatalf("Failed to start sweep runner: %v", err)
	}
	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	a.Runner.Stop()
	log.Println("Worker stopped")
}
