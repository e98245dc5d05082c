package main

import (
	"github.com/spf13/cobra"
	"github.com/trickstertwo/xlog"

	"github.com/trickstertwo/hlbus/internal/config"
	"github.com/trickstertwo/hlbus/internal/logging"
)

var rootCmd = &cobra.Command{
	Use:   "hlbus",
	Short: "Typed order-command bus for the exchange",
	Long: `hlbus moves typed exchange commands (orders, cancels, transfers, account
actions) over a pub/sub broker.

serve runs the consumer that executes commands; send and request publish a
single command for manual testing. Configuration comes from the environment
(NATS_URL, NATS_SUBJECT, HYPERLIQUID_API_URL, LOG_LEVEL, HLBUS_*) and an
optional YAML file named by HLBUS_CONFIG.`,
	SilenceUsage: true,
}

func loadRuntime(app string) (config.Config, *xlog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(app, cfg.LogLevel, cfg.LogConsole)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}
