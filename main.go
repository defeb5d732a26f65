package main

import (
	"errors"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"visual-servo/internal/config"
	"visual-servo/internal/server"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "Path to YAML config file (optional)")
	listenAddr := flag.String("listen", "", "HTTP listen address (overrides config)")
	motionURL := flag.String("motion", "", "Motion-execution service WebSocket URL (overrides config)")
	flag.Parse()

	// Load configuration
	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
		cfg = loaded
	}
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *motionURL != "" {
		cfg.Motion.URL = *motionURL
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	// Create server
	srv := server.New(cfg)

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigCh
		log.Println("Shutting down...")
		srv.Stop()
	}()

	// Start server
	log.Printf("Visual Servo Tracker")
	log.Printf("  Listen: %s", cfg.ListenAddr)
	log.Printf("  Frames: %s -> %s", cfg.Frames.Source, cfg.Frames.World)
	log.Printf("  Control: Kp=%g Ki=%g Kd=%g period=%s clip=%g",
		cfg.Control.Kp, cfg.Control.Ki, cfg.Control.Kd, cfg.Control.SamplePeriod(), cfg.Control.ClipValue)
	if cfg.Motion.URL != "" {
		log.Printf("  Motion: %s", cfg.Motion.URL)
	}

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("Server error: %v", err)
	}
}
