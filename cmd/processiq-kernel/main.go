package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/SkybrushThriftwood/processIQ/internal/app"
	"github.com/SkybrushThriftwood/processIQ/internal/config"
)

func main() {
	settings, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load configuration:", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: settings.LogLevel,
	}))
	logger.Info("starting processIQ kernel", "addr", settings.HTTPAddr)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		cancel()
	}()

	if err := app.RunKernel(ctx, logger, settings); err != nil {
		logger.Error("kernel exited with error", "error", err)
		os.Exit(1)
	}
	logger.Info("kernel stopped")
}
