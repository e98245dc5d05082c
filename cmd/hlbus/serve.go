package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/hlbus/internal/exchange"
	"github.com/trickstertwo/hlbus/internal/service"
	"github.com/trickstertwo/hlbus/metrics"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Consume commands from the subject and execute them",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, err := loadRuntime("hlbus-service")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	obs := metrics.NewObserver(nil)
	bus, err := service.OpenBus(cfg, logger, obs)
	if err != nil {
		logger.Error().Err(err).Msg("failed to open bus")
		return err
	}
	obs.WatchBus(bus)
	defer func() { _ = bus.Close(context.Background()) }()

	var client exchange.Client
	if cfg.DryRun {
		logger.Warn().Msg("dry run: commands are acknowledged without reaching the exchange")
		client = &exchange.DryRun{}
	} else {
		client, err = exchange.NewHTTPClient(exchange.HTTPConfig{
			BaseURL:   cfg.ExchangeURL,
			RateLimit: cfg.RateLimit,
			RateBurst: cfg.RateBurst,
		})
		if err != nil {
			return err
		}
	}

	svc, err := service.New(cfg, bus, client, logger, obs)
	if err != nil {
		return err
	}
	if err := svc.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("service stopped")
		return err
	}
	logger.Info().Msg("service stopped")
	return nil
}
