package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/lobbywatch/internal/session"
	"github.com/thebtf/lobbywatch/pkg/models"
)

func newWatchCmd() *cobra.Command {
	var company, bill, description string

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run one investigation and print its communications",
		RunE: func(cmd *cobra.Command, args []string) error {
			if company == "" || bill == "" {
				return errors.New("--company and --bill are required")
			}
			cfg := loadConfig()

			parent := cmd.Context()
			if parent == nil {
				parent = context.Background()
			}
			ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			client, closeTrace := newClient(cfg)
			defer closeTrace()
			defer client.Disconnect()

			orch := session.NewFromConfig(client, cfg)
			defer orch.Close()

			out := cmd.OutOrStdout()
			finished := make(chan struct{}, 1)
			orch.Subscribe("cli", func(c models.Communication) {
				renderCommunication(out, c)
				switch orch.State() {
				case session.StateCompleting, session.StateErroring, session.StateStopping:
					select {
					case finished <- struct{}{}:
					default:
					}
				}
			})

			sess, err := orch.StartSession(ctx, company, bill, description)
			if err != nil {
				return err
			}
			fmt.Fprintln(out, titleStyle.Render(fmt.Sprintf("Investigating %s on %s (session %s)", sess.Company, sess.Bill, sess.ID)))

			select {
			case <-finished:
				return nil
			case <-ctx.Done():
				stopCtx, cancel := context.WithTimeout(context.Background(), cfg.StopTimeout+shutdownTimeout)
				defer cancel()
				if err := orch.StopSession(stopCtx); err != nil {
					log.Warn().Err(err).Msg("Failed to stop investigation")
				}
				return nil
			}
		},
	}
	cmd.Flags().StringVar(&company, "company", "", "Company to investigate")
	cmd.Flags().StringVar(&bill, "bill", "", "Bill identifier, e.g. s383-116")
	cmd.Flags().StringVar(&description, "description", "", "Optional free-text description")
	return cmd
}
