package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/wekeepgrowing/payment-reconciler/internal/infrastructure/events"
	"github.com/wekeepgrowing/payment-reconciler/pkg/messaging"
)

func watchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch-events",
		Short: "Stream published payment events from Redis",
		Args:  cobra.NoArgs,
		RunE:  runWatch,
	}

	cmd.Flags().String("session", "", "Only follow one session's channel")

	return cmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	e, err := setup(cmd)
	if err != nil {
		return err
	}
	defer e.logger.Sync()

	if !e.config.Redis.Enabled {
		return errors.New("redis is disabled; events are only logged")
	}

	client, err := messaging.NewRedisClient(e.config.Redis.Addr, e.config.Redis.Password, e.config.Redis.DB)
	if err != nil {
		return err
	}
	defer client.Close()

	channel := e.config.Redis.Channel
	if session := e.settings.GetString("session"); session != "" {
		channel = events.SessionChannel(channel, session)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	messages, err := client.Subscribe(ctx, channel)
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s\n", channel)
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", msg.Time.Format("15:04:05.000"), msg.Payload)
		}
	}
}

