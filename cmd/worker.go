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

	"github.com/prodcat/apiserver/config"
	"github.com/prodcat/apiserver/internal/mq"
	"github.com/prodcat/apiserver/internal/services"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

// workerCmd consumes product lifecycle events from the configured
// broker and writes them to the audit log. It runs until interrupted.
var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Consume product lifecycle events",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := zerolog.New(os.Stderr).With().Timestamp().Str("component", "worker").Logger()

		backend, err := newWorkerBackend(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		broker := mq.New(backend)
		defer broker.Close()

		logger.Info().Str("channel", cfg.MQ.EventsChannel).Msg("consuming product events")
		return broker.Subscribe(cmd.Context(), cfg.MQ.EventsChannel, func(ctx context.Context, msg mq.Message) error {
			var event services.ProductEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("malformed product event")
				return nil // malformed messages are dropped, not redelivered
			}
			logger.Info().
				Str("action", event.Action).
				Int("product_id", event.ProductID).
				Str("name", event.Name).
				Str("category", event.Category).
				Int("created_by", event.CreatedBy).
				Bool("is_deleted", event.IsDeleted).
				Time("occurred_at", event.OccurredAt).
				Msg("product event")
			return nil
		})
	},
}

func init() {
	rootCmd.AddCommand(workerCmd)
}

func newWorkerBackend(ctx context.Context, cfg config.Config) (mq.Backend, error) {
	switch cfg.MQ.Backend {
	case "rabbitmq":
		return mq.NewRabbitMQClient(cfg.RabbitMQ)
	case "pubsub":
		return mq.NewPubSubClient(ctx, cfg.PubSub)
	case "":
		return nil, errors.New("MQ_BACKEND is required for the worker")
	default:
		return nil, fmt.Errorf("unknown mq backend %q", cfg.MQ.Backend)
	}
}
