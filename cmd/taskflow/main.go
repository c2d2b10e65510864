package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

func main() {
	var envDir string

	rootCmd := &cobra.Command{
		Use:           "taskflow",
		Short:         "Task lifecycle service: subtasks, recurring tasks, reminders and notifications",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&envDir, "env-dir", ".", "directory holding an optional .env file")

	rootCmd.AddCommand(serveCmd(&envDir))
	rootCmd.AddCommand(migrateCmd(&envDir))
	rootCmd.AddCommand(tickCmd(&envDir))
	rootCmd.AddCommand(userCmd(&envDir))
	rootCmd.AddCommand(teamCmd(&envDir))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
