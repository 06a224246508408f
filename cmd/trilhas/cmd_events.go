package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/trilhas/internal/events"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect progress events",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Consume progress events from the broker and print them as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		conn, err := events.Dial(cfg.Events.AMQPURL, cfg.Events.Queue)
		if err != nil {
			return err
		}
		defer conn.Close()

		ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		enc := json.NewEncoder(cmd.OutOrStdout())
		consumer := events.NewConsumer(conn, func(_ context.Context, e *events.ProgressEvent) error {
			return enc.Encode(e)
		}, events.ConsumerConfig{Workers: 1})
		if err := consumer.Start(ctx); err != nil {
			return err
		}
		logger.Info("tailing events", "queue", conn.Queue())

		<-ctx.Done()
		consumer.Stop()
		return nil
	},
}

func init() {
	eventsCmd.AddCommand(eventsTailCmd)
}
