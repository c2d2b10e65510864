package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskflow/internal/service"
)

func migrateCmd(envDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			// newApp opens the database, which runs the migrations.
			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()
			a.log.Infow("schema up to date", "driver", a.cfg.DatabaseDriver)
			return nil
		},
	}
}

func tickCmd(envDir *string) *cobra.Command {
	return &cobra.Command{
		Use:       "tick recurrence|reminders",
		Short:     "Run one tick of a periodic job and print its report",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"recurrence", "reminders"},
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()

			var job service.Job = a.recurrence
			if args[0] == "reminders" {
				job = a.reminders
			}

			locker, closeLocker, err := a.locker(cmd.Context())
			if err != nil {
				return err
			}
			defer closeLocker()

			report, err := a.scheduler(locker).RunOnce(cmd.Context(), job)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned=%d produced=%d skipped=%d failed=%d\n",
				job.Name(), report.Scanned, report.Produced, report.Skipped, report.Failed)
			return nil
		},
	}
}
