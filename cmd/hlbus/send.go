package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/trickstertwo/hlbus"
	"github.com/trickstertwo/hlbus/internal/service"
	"github.com/trickstertwo/hlbus/message"
)

var (
	sendType    string
	sendPayload string
	sendSubject string
	sendTimeout time.Duration
	sendExpiry  time.Duration
)

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Publish one command without waiting for a reply",
	Example: `  hlbus send --type market_order_request \
    --payload '{"action":"market_order","coin":"ETH","is_buy":true,"sz":"0.1","tif":"Ioc"}'`,
	RunE: func(cmd *cobra.Command, _ []string) error { return runSend(cmd, false) },
}

var requestCmd = &cobra.Command{
	Use:   "request",
	Short: "Publish one command and print the reply",
	RunE:  func(cmd *cobra.Command, _ []string) error { return runSend(cmd, true) },
}

func init() {
	for _, c := range []*cobra.Command{sendCmd, requestCmd} {
		c.Flags().StringVarP(&sendType, "type", "t", "", "message type, e.g. market_order_request")
		c.Flags().StringVarP(&sendPayload, "payload", "p", "{}", "JSON payload")
		c.Flags().StringVarP(&sendSubject, "subject", "s", "", "subject (default NATS_SUBJECT)")
		c.Flags().DurationVar(&sendExpiry, "expires-in", 0, "reject the command if not handled within this duration")
		_ = c.MarkFlagRequired("type")
		rootCmd.AddCommand(c)
	}
	requestCmd.Flags().DurationVar(&sendTimeout, "timeout", 0, "reply timeout (default HLBUS_REQUEST_TIMEOUT)")
}

func runSend(cmd *cobra.Command, wait bool) error {
	cfg, logger, err := loadRuntime("hlbus-cli")
	if err != nil {
		return err
	}
	if _, err := message.Parse(sendType, []byte(sendPayload)); err != nil {
		return err
	}
	subject := sendSubject
	if subject == "" {
		subject = cfg.Subject
	}

	bus, err := service.OpenBus(cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = bus.Close(context.Background()) }()

	env, err := bus.NewEnvelope(sendType, []byte(sendPayload))
	if err != nil {
		return err
	}
	env = env.WithExpiry(sendExpiry)

	ctx := cmd.Context()
	if !wait {
		if err := bus.Send(ctx, subject, env); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), env.Header.MessageID)
		return nil
	}

	reply, err := bus.Request(ctx, subject, env, sendTimeout)
	if err != nil {
		return err
	}
	data, err := hlbus.Encode(reply)
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
