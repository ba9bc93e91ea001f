package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"shelver/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var (
		lines    int
		follow   bool
		item     string
		minLevel string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the daemon log",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			match := logs.MatchAll(logs.MatchFingerprint(item), logs.MatchMinLevel(minLevel))
			out := cmd.OutOrStdout()
			path := cfg.LogPath()

			opts := logs.TailOptions{Offset: -1, Limit: lines, Match: match}
			for {
				result, err := logs.Tail(cmd.Context(), path, opts)
				if err != nil {
					if errors.Is(err, cmd.Context().Err()) {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
				}
				if !follow {
					return nil
				}
				opts = logs.TailOptions{Offset: result.Offset, Follow: true, Wait: 5 * time.Second, Match: match}
			}
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&item, "item", "", "Only lines mentioning this fingerprint prefix")
	cmd.Flags().StringVar(&minLevel, "level", "", "Minimum level to show (info, warn, error)")
	return cmd
}
