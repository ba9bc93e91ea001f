package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shelver/internal/config"
	"shelver/internal/queue"
	"shelver/internal/txlog"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage tracked items",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueIgnoreCommand(ctx))
	queueCmd.AddCommand(newQueueHistoryCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List tracked items",
		RunE: func(cmd *cobra.Command, args []string) error {
			statuses, err := parseStatuses(listStatuses)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := store.List(cmd.Context(), statuses...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(items) == 0 {
					fmt.Fprintln(out, "Queue is empty")
					return nil
				}
				colorize := shouldColorize(out)
				fmt.Fprint(out, renderTable(
					[]string{"Fingerprint", "Name", "Status", "Category", "Confidence", "Decision", "Updated"},
					buildQueueListRows(items, colorize),
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
					colorize,
				))
				return nil
			})
		},
	}

	cmd.Flags().StringSliceVarP(&listStatuses, "status", "s", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <fingerprint>",
		Short: "Show one tracked item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				item, err := resolveItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				fmt.Fprint(cmd.OutOrStdout(), renderItemDetail(item))
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [fingerprint...]",
		Short: "Retry failed items with a fresh retry budget",
		Long:  "Retry moves error items to retry, due immediately. Without arguments every failed item is retried.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				items, err := resolveItems(cmd.Context(), store, args)
				if err != nil {
					return err
				}
				fps := make([]string, 0, len(items))
				for _, item := range items {
					fps = append(fps, item.Fingerprint)
				}
				updated, err := store.RetryFailed(cmd.Context(), fps...)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				switch {
				case updated == 0 && len(fps) > 0:
					fmt.Fprintln(out, "No matching items are in error")
				case updated == 0:
					fmt.Fprintln(out, "No failed items to retry")
				default:
					fmt.Fprintf(out, "Retrying %d item(s)\n", updated)
				}
				return nil
			})
		},
	}
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <fingerprint>",
		Short: "Reset an item to new so it is classified again",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				item, err := resolveItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				updated, err := store.Reset(cmd.Context(), item.Fingerprint)
				if err != nil {
					if errors.Is(err, queue.ErrInvalidTransition) {
						return fmt.Errorf("cannot reset %s: a move is in flight", item.ShortFingerprint())
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %s (%s); source is now %s\n", updated.ShortFingerprint(), updated.DisplayName, updated.SourcePath)
				return nil
			})
		},
	}
}

func newQueueIgnoreCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "ignore <fingerprint>",
		Short: "Stop processing an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				item, err := resolveItem(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if _, err := store.Ignore(cmd.Context(), item.Fingerprint); err != nil {
					if errors.Is(err, queue.ErrInvalidTransition) {
						return fmt.Errorf("cannot ignore %s while it is %s", item.ShortFingerprint(), item.Status)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Ignoring %s (%s)\n", item.ShortFingerprint(), item.DisplayName)
				return nil
			})
		},
	}
}

func newQueueHistoryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "history <fingerprint>",
		Short: "Show the move journal of an item",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var item *queue.Item
			err := ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var err error
				item, err = resolveItem(cmd.Context(), store, args[0])
				return err
			})
			if err != nil {
				return err
			}
			return ctx.withJournal(func(journal *txlog.Journal) error {
				entries, err := journal.History(cmd.Context(), item.Fingerprint)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(entries) == 0 {
					fmt.Fprintf(out, "No moves recorded for %s\n", item.ShortFingerprint())
					return nil
				}
				colorize := shouldColorize(out)
				fmt.Fprint(out, renderTable(
					[]string{"Seq", "Tx", "Phase", "Time", "Target"},
					buildHistoryRows(entries),
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft},
					colorize,
				))
				return nil
			})
		},
	}
}

func parseStatuses(values []string) ([]queue.Status, error) {
	statuses := make([]queue.Status, 0, len(values))
	for _, value := range values {
		status, ok := queue.ParseStatus(value)
		if !ok {
			known := make([]string, 0)
			for _, s := range queue.AllStatuses() {
				known = append(known, string(s))
			}
			return nil, fmt.Errorf("unknown status %q (expected one of %s)", value, strings.Join(known, ", "))
		}
		statuses = append(statuses, status)
	}
	return statuses, nil
}
