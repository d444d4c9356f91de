package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/config"
	"github.com/xweng-opaida/agent-viewer/internal/infrastructure/server"
)

func main() {
	cfg := config.LoadOrDefault()

	// Flags override the environment for local runs.
	port := flag.String("port", cfg.Server.Port, "HTTP listen port")
	image := flag.String("image", cfg.Runtime.Image, "session container image")
	script := flag.String("launch-script", cfg.Launcher.Script, "session launch script")
	flag.Parse()
	cfg.Server.Port = *port
	cfg.Runtime.Image = *image
	cfg.Launcher.Script = *script

	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Rebuild session state from whatever containers already run.
	bootstrapCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	srv.Bootstrap(bootstrapCtx)
	cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := srv.Run(); err != nil {
			errChan <- err
		}
	}()

	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		if err := srv.Close(); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		log.Fatalf("Server error: %v", err)
	}
}
