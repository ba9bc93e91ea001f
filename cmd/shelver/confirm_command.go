package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"shelver/internal/config"
	"shelver/internal/queue"
	"shelver/internal/workflow"
)

func newConfirmCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm <fingerprint> <category>",
		Short: "Confirm the category of an item awaiting a decision",
		Long: "Confirm records an operator decision for a classified item and queues it for moving. " +
			"A category that does not exist yet is created.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				item, err := resolveItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				registry, err := loadRegistry(cmd.Context(), cfg, store)
				if err != nil {
					return err
				}
				confirmed, err := workflow.Confirm(cmd.Context(), store, registry, item.Fingerprint, args[1])
				if err != nil {
					if errors.Is(err, workflow.ErrNotConfirmable) {
						return fmt.Errorf("cannot confirm %s: %w", item.ShortFingerprint(), err)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Confirmed %s as %s; it will be moved shortly\n", confirmed.ShortFingerprint(), confirmed.Category)
				return nil
			})
		},
	}
}
