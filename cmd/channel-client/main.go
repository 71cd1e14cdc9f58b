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

	logger := logging.Setup(os.Stdout, "channel-client", cfg.LogLevel, cfg.LogFormat)

	endpoint, err := channel.ParseEndpoint(cfg.Endpoint)
	if err != nil {
		log.Fatalf("Invalid endpoint: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stack, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("startup_failed", "error", err.Error())
		os.Exit(1)
	}
	defer stack.Close()

	client := channel.NewClient(endpoint, stack.Handler, channel.ClientOptions{
		Session:       app.SessionOptions(cfg, cfg.ClientWriteInterval, logger),
		RetryInterval: cfg.RetryInterval,
		Observers:     stack.Observers,
		Logger:        logger,
	})

	logger.Info("starting_channel_client",
		"endpoint", endpoint.String(),
		"write_interval", cfg.ClientWriteInterval.String(),
		"retry_interval", cfg.RetryInterval.String(),
	)

	controlDone := app.StartControl(ctx, cfg, cfg.ClientHTTPPort, client, logger)

	runDone := make(chan error, 1)
	go func() { runDone <- client.Run(ctx) }()

	<-ctx.Done()
	logger.Info("received_shutdown_signal")
	<-runDone
	<-controlDone
	logger.Info("client_stopped_gracefully")
}
