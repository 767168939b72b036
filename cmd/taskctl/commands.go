package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"taskapi/internal/auth"
	"taskapi/internal/cache"
	"taskapi/internal/clock"
	"taskapi/internal/db"
	"taskapi/internal/model"
	"taskapi/internal/repository"
	"taskapi/internal/service"
)

func newMigrateCmd(opts *globalOptions) *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			if err := db.Migrate(s.db, reset || s.cfg.ResetDB); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drop all tables first")
	return cmd
}

func newCreateUserCmd(opts *globalOptions) *cobra.Command {
	var (
		email    string
		password string
		admin    bool
	)
	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create a user, optionally with the admin role",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			role := model.RoleUser
			if admin {
				role = model.RoleAdmin
			}
			tokens := auth.NewTokenService(s.cfg.JWTSecret, s.cfg.TokenLifetime, clock.Real())
			authService := service.NewAuthService(repository.NewUserRepository(s.db), tokens, s.logger)

			user, err := authService.CreateUser(cmd.Context(), args[0], email, password, role)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "created %s %s (%s)\n", user.Role, user.Username, user.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&email, "email", "", "email address (required)")
	cmd.Flags().StringVar(&password, "password", "", "initial password (required)")
	cmd.Flags().BoolVar(&admin, "admin", false, "grant the admin role")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func newDeleteUserCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <username>",
		Short: "Delete a user and every task they own",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.open(cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			// Evict from the same cache the server reads so the user's
			// outstanding tokens stop resolving immediately.
			principalCache := auth.NewPrincipalCache(nil)
			if s.cfg.RedisAddr != "" {
				client := cache.New(s.cfg.RedisAddr, s.cfg.RedisPass, s.cfg.RedisDB)
				defer client.Close()
				principalCache = auth.NewPrincipalCache(client)
			}
			users := service.NewUserService(nil, repository.NewUserRepository(s.db), principalCache, s.logger)
			user, err := users.FindByUsername(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			removed, err := users.RemoveUser(cmd.Context(), user.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s and %d task(s)\n", user.Username, removed)
			return nil
		},
	}
}
