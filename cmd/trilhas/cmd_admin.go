package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/trilhas/internal/auth"
)

var grantCmd = &cobra.Command{
	Use:   "grant <account> <product>",
	Short: "Grant a product entitlement to an account",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, app.Close()) }()

		if err := app.Service.GrantEntitlement(commandContext(cmd), args[0], args[1]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "granted %s to %s\n", args[1], args[0])
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <account>",
	Short: "Delete all attempts, progress and entitlements of an account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		if yes, _ := cmd.Flags().GetBool("yes"); !yes {
			return fmt.Errorf("reset is irreversible; pass --yes to confirm")
		}
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer func() { err = errors.Join(err, app.Close()) }()

		counts, err := app.Service.ResetAccount(commandContext(cmd), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "reset %s: %d attempts, %d phase progress, %d block progress, %d entitlements\n",
			args[0], counts.AttemptsDeleted, counts.PhaseProgressDeleted, counts.BlockProgressDeleted, counts.EntitlementsDeleted)
		return nil
	},
}

var tokenCmd = &cobra.Command{
	Use:   "token <account>",
	Short: "Sign a bearer token with the configured secret (development)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, _, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		ttl, _ := cmd.Flags().GetDuration("ttl")
		var roles []string
		if admin, _ := cmd.Flags().GetBool("admin"); admin {
			roles = append(roles, auth.RoleAdmin)
		}
		tok, err := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.Issuer).Issue(args[0], ttl, roles...)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), tok)
		return nil
	},
}

func init() {
	resetCmd.Flags().Bool("yes", false, "Confirm the reset")

	tokenCmd.Flags().Duration("ttl", time.Hour, "Token lifetime")
	tokenCmd.Flags().Bool("admin", false, "Include the admin role")
}
