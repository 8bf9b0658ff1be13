package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/lawnchairsociety/boatsim/internal/config"
	"github.com/lawnchairsociety/boatsim/internal/logger"
	"github.com/lawnchairsociety/boatsim/internal/server"
)

func main() {
	// Parse command-line flags
	configFile := flag.String("config", "boatsim.yaml", "Path to simulator config YAML file (also holds the logging section)")
	envFile := flag.String("env", ".env", "Path to an optional .env file")
	wsPort := flag.Int("wsport", -1, "WebSocket server port, 0 disables it (default: from config)")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	// Environment first so that LOG_* and BOATSIM_* overrides see it
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("Failed to load %s: %v", *envFile, err)
	}

	// Initialize logger first (before any logging)
	logConfig, err := logger.LoadConfig(*configFile)
	if err != nil {
		log.Printf("Failed to load logging config, using defaults: %v", err)
	}
	if err := logger.Initialize(logConfig); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Info("Starting boat simulator")

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		log.Fatalf("Failed to load config %s: %v", *configFile, err)
	}

	if arg := flag.Arg(0); arg != "" {
		cfg.Server.Port = parsePort(arg, cfg.Server.Port)
	}
	if *wsPort >= 0 {
		cfg.Server.WebSocketPort = *wsPort
	}

	srv := server.NewServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Start TCP server in a goroutine
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("TCP server error: %v", err)
		}
	}()

	if cfg.Server.WebSocketPort > 0 {
		if len(cfg.WebSocket.AllowedOrigins) == 0 {
			logger.Info("WebSocket CORS policy", "mode", "same-origin")
		} else if len(cfg.WebSocket.AllowedOrigins) == 1 && cfg.WebSocket.AllowedOrigins[0] == "*" {
			logger.Warning("WebSocket CORS allows all origins (not recommended for production)")
		} else {
			logger.Info("WebSocket CORS policy", "allowed_origins", cfg.WebSocket.AllowedOrigins)
		}

		wsAddr := fmt.Sprintf(":%d", cfg.Server.WebSocketPort)
		go func() {
			if err := srv.StartWebSocket(wsAddr); err != nil {
				log.Fatalf("WebSocket server error: %v", err)
			}
		}()
	}

	logger.Info("Boat simulator running",
		"port", cfg.Server.Port,
		"websocket_port", cfg.Server.WebSocketPort,
		"boat", cfg.Boat.Name,
		"serve_mode", cfg.Server.ServeMode)
	logger.Info("Press Ctrl+C to shutdown")

	<-ctx.Done()

	logger.Info("Shutting down server")
	srv.Shutdown()
	logger.Info("Server stopped")
}

// parsePort returns the port named by arg, or fallback with a warning when
// arg is not a usable port number.
func parsePort(arg string, fallback int) int {
	port, err := strconv.Atoi(arg)
	if err != nil || port < 1 || port > 65535 {
		logger.Warning("Invalid port argument, using default", "arg", arg, "port", fallback)
		return fallback
	}
	return port
}
