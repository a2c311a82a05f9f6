package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/templui/fintrack/internal/db"
	"github.com/templui/fintrack/internal/repository"
	"github.com/templui/fintrack/internal/service"
)

func UserCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Manage logins",
	}

	cmd.AddCommand(createUserCmd())
	return cmd
}

func createUserCmd() *cobra.Command {
	var email, password string

	cmd := &cobra.Command{
		Use:     "create",
		Short:   "Add a login",
		Example: "  do user create --email me@example.com --password 'correct horse battery'",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, database, err := openDB()
			if err != nil {
				return err
			}
			defer func() { _ = database.Close() }()

			err = db.RunMigrations(database.DB, cfg.DBDriver)
			if err != nil {
				return err
			}

			authService := service.NewAuthService(repository.NewUserRepository(database), cfg.JWTSecret, cfg.IsProduction(), cfg.JWTExpiry)

			user, err := authService.Register(email, password)
			if err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "created user %s (%s)\n", user.Email, user.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "email address of the new user")
	cmd.Flags().StringVar(&password, "password", "", "password (at least 12 characters)")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
