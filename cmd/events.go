/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/storefront/apiserver/config"
	"github.com/storefront/apiserver/internal/events"
	"github.com/storefront/apiserver/internal/mq"
	"github.com/storefront/apiserver/internal/services"
)

var eventsChannel string

// eventsCmd groups domain event tooling.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect domain events on the configured broker",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print events from a channel as JSON lines until interrupted",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		if queue == nil {
			return errors.New("MQ_BACKEND is not configured")
		}
		defer queue.Close()

		encoder := json.NewEncoder(cmd.OutOrStdout())
		err = queue.Subscribe(ctx, eventsChannel, func(ctx context.Context, msg mq.Message) error {
			event, err := events.Decode(msg)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "skipping message: %v\n", err)
				return nil
			}
			return encoder.Encode(event)
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)

	eventsTailCmd.Flags().StringVar(&eventsChannel, "channel", services.ChannelOrders,
		fmt.Sprintf("channel to read (%s or %s)", services.ChannelOrders, services.ChannelCatalog))
}
