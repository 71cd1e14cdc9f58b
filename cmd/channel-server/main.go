package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"gamebridge/internal/app"
	"gamebridge/internal/channel"
	"gamebridge/internal/config"
	"gamebridge/internal/logging"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logger := logging.Setup(os.Stdout, "channel-server", cfg.LogLevel, cfg.LogFormat)

	endpoint, err := channel.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		log.Fatalf("Invalid endpoint: %v", err)
	}

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", "error", err.Error())
		os.Exit(1)
	}
	defer stack.Close()

	server := channel.NewServer(endpoint, stack.Handler, channel.ServerOptions{
		Session:     app.SessionOptions(cfg, cfg.ServerWriteInterval, logger),
		AcceptDelay: cfg.AcceptDelay,
		Observers:   stack.Observers,
		Logger:      logger,
	})

	logger.Info("starting_channel_server",
		"endpoint", endpoint.String(),
		"write_interval", cfg.ServerWriteInterval.String(),
		"control_enabled", cfg.ControlEnabled,
	)

	controlDone := app.StartControl(ctx, cfg, cfg.ServerHTTPPort, server, logger)

	serveDone := make(chan error, 1)
	go func() { serveDone <- server.Serve(ctx) }()

	// Wait for shutdown signal
	<-ctx.Done()
	logger.Info("received_shutdown_signal")
	<-serveDone
	<-controlDone
	logger.Info("server_stopped_gracefully")
}
