package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"lambda-telemetry-example/internal/config"
	"lambda-telemetry-example/internal/extension"
	"lambda-telemetry-example/internal/lambdaapi"
	"lambda-telemetry-example/internal/telemetry"
)

var extensionName = filepath.Base(os.Args[0])

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Error("Failed to load configuration")
		os.Exit(1)
	}

	logger := cfg.Log.NewLogger(os.Stdout)
	log := logger.WithField("extension", extensionName)

	// No client timeout: event/next blocks for the whole invoke.
	client, err := lambdaapi.NewClient(cfg.RuntimeAPI, &http.Client{Timeout: 0})
	if err != nil {
		log.WithError(err).Error("Failed to create Lambda API client")
		os.Exit(1)
	}

	subscriberLog := log.WithField("component", "telemetry-subscriber")
	listener := telemetry.NewListener(
		cfg.Listener.Host,
		cfg.Listener.Port,
		telemetry.NewLogSink(subscriberLog),
		subscriberLog,
	)

	agent := extension.NewAgent(extension.AgentArgs{
		Name:            extensionName,
		API:             client,
		Listener:        listener,
		Telemetry:       cfg.Telemetry,
		ShutdownTimeout: cfg.Listener.ShutdownTimeout,
		Log:             log.WithField("component", "agent"),
	})

	if err := agent.Run(ctx); err != nil {
		log.WithError(err).Error("Extension stopped")
		os.Exit(1)
	}
	log.Info("Exiting")
}
