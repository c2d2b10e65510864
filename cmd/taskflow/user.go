package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taskflow/internal/auth"
	"taskflow/internal/model"
)

func userCmd(envDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage accounts and API tokens",
	}
	cmd.AddCommand(userAddCmd(envDir))
	cmd.AddCommand(userTokenCmd(envDir))
	return cmd
}

func userAddCmd(envDir *string) *cobra.Command {
	var (
		name   string
		noPush bool
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "add <email>",
		Short: "Create a user and print an API token for it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSecret(); err != nil {
				return err
			}

			user := &model.User{
				Email:        strings.TrimSpace(args[0]),
				Name:         strings.TrimSpace(name),
				PushDisabled: noPush,
			}
			if err := a.users.Create(cmd.Context(), user); err != nil {
				return err
			}

			token, err := auth.NewTokens(a.cfg.JWTSecret).Issue(user.ID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "id:    %s\ntoken: %s\n", user.ID, token)
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().BoolVar(&noPush, "no-push", false, "store notifications without live delivery")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func userTokenCmd(envDir *string) *cobra.Command {
	var ttl time.Duration

	cmd := &cobra.Command{
		Use:   "token <user-id>",
		Short: "Issue a new API token for an existing user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSecret(); err != nil {
				return err
			}

			user, err := a.users.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			token, err := auth.NewTokens(a.cfg.JWTSecret).Issue(user.ID, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	return cmd
}

func teamCmd(envDir *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "team",
		Short: "Manage teams",
	}
	cmd.AddCommand(teamAddCmd(envDir))
	return cmd
}

func teamAddCmd(envDir *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Create a team tasks can be filed under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(*envDir)
			if err != nil {
				return err
			}
			defer a.close()

			team := &model.Team{Name: strings.TrimSpace(args[0])}
			if err := a.teams.Create(cmd.Context(), team); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), team.ID)
			return nil
		},
	}
}
