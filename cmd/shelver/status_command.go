package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"shelver/internal/classification"
	"shelver/internal/config"
	"shelver/internal/daemonctl"
	"shelver/internal/discovery"
	"shelver/internal/logging"
	"shelver/internal/organizer"
	"shelver/internal/preflight"
	"shelver/internal/queue"
	"shelver/internal/stage"
	"shelver/internal/staging"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue and dependency status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *queue.Store) error {
				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				lines := make([]string, 0, 32)

				lines = append(lines, renderSectionHeader("Daemon", colorize)...)
				running, pid, err := daemonctl.ProcessInfo(cfg)
				switch {
				case err != nil:
					lines = append(lines, renderStatusLine("Daemon", statusError, err.Error(), colorize))
				case running:
					msg := "running"
					if pid > 0 {
						msg = fmt.Sprintf("running (pid %d)", pid)
					}
					lines = append(lines, renderStatusLine("Daemon", statusOK, msg, colorize))
				default:
					lines = append(lines, renderStatusLine("Daemon", statusWarn, "not running", colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Database", colorize)...)
				db, err := store.CheckHealth(cmd.Context())
				if err != nil {
					lines = append(lines, renderStatusLine("Queue database", statusError, err.Error(), colorize))
				} else {
					kind, msg := databaseStatus(db)
					lines = append(lines, renderStatusLine("Queue database", kind, msg, colorize))
				}

				if temps, err := staging.ListTemps(cfg.Paths.LibraryDir); err != nil {
					lines = append(lines, renderStatusLine("Temp files", statusWarn, err.Error(), colorize))
				} else if len(temps) > 0 {
					lines = append(lines, renderStatusLine("Temp files", statusWarn,
						fmt.Sprintf("%d partial copies in the library (removed at daemon start once stale)", len(temps)), colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Preflight", colorize)...)
				for _, check := range preflight.RunAll(cmd.Context(), cfg) {
					kind := statusOK
					if !check.Passed {
						kind = statusError
					}
					lines = append(lines, renderStatusLine(check.Name, kind, check.Detail, colorize))
				}

				lines = append(lines, "")
				lines = append(lines, renderSectionHeader("Dependencies", colorize)...)
				for _, health := range dependencyHealth(cmd, cfg, store) {
					kind := statusOK
					msg := "ready"
					if !health.Ready {
						kind = statusError
						msg = health.Detail
					}
					lines = append(lines, renderStatusLine(health.Name, kind, msg, colorize))
				}
				fmt.Fprintln(out, strings.Join(lines, "\n"))

				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintln(out)
				fmt.Fprint(out, renderTable(
					[]string{"Status", "Items"},
					buildStatsRows(stats, colorize),
					[]columnAlignment{alignLeft, alignRight},
					colorize,
				))
				return nil
			})
		},
	}
}

func databaseStatus(db queue.DatabaseHealth) (statusKind, string) {
	switch {
	case db.Error != "":
		return statusError, db.Error
	case !db.TableExists:
		return statusError, "tracked_items table missing"
	case len(db.MissingColumns) > 0:
		return statusError, "missing columns: " + strings.Join(db.MissingColumns, ", ")
	case !db.IntegrityCheck:
		return statusError, "integrity check failed"
	default:
		return statusOK, fmt.Sprintf("schema v%d, %d items", db.SchemaVersion, db.TotalItems)
	}
}

// dependencyHealth probes each pipeline dependency the daemon would use.
func dependencyHealth(cmd *cobra.Command, cfg *config.Config, store *queue.Store) []stage.Health {
	ctx := cmd.Context()
	logger := logging.NewNop()
	checks := make([]stage.Health, 0, 3)

	registry, err := loadRegistry(ctx, cfg, store)
	if err != nil {
		return append(checks, stage.Unhealthy("categories", err.Error()))
	}
	if classifier, err := classification.NewFromConfig(cfg, registry, logger); err != nil {
		checks = append(checks, stage.Unhealthy("classifier", err.Error()))
	} else {
		checks = append(checks, classification.NewEngine(cfg, classifier, registry, logger).HealthCheck(ctx))
	}

	checks = append(checks, organizer.New(cfg, store, nil, registry, nil, logger).HealthCheck(ctx))

	if disc, err := discovery.New(cfg, store, nil, logger); err != nil {
		checks = append(checks, stage.Unhealthy("discovery", err.Error()))
	} else {
		checks = append(checks, disc.HealthCheck(ctx))
	}
	return checks
}

func buildStatsRows(stats map[queue.Status]int, colorize bool) [][]string {
	rows := make([][]string, 0, len(stats))
	for _, status := range queue.AllStatuses() {
		count := stats[status]
		if count == 0 {
			continue
		}
		rows = append(rows, []string{colorStatus(status, colorize), fmt.Sprintf("%d", count)})
	}
	if len(rows) == 0 {
		rows = append(rows, []string{"(empty)", "0"})
	}
	return rows
}
