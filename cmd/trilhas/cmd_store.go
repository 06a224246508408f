package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/trilhas/internal/bootstrap"
	"github.com/felixgeelhaar/trilhas/internal/catalog"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations to the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		store, err := bootstrap.OpenStore(commandContext(cmd), cfg.Storage)
		if err != nil {
			return err
		}
		logger.Info("migrations applied", "driver", cfg.Storage.Driver)
		return store.Close()
	},
}

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect catalog content",
}

var catalogValidateCmd = &cobra.Command{
	Use:   "validate <dir>",
	Short: "Load and validate every trail file in a directory",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := catalog.NewLoader(args[0]).Load(commandContext(cmd))
		if err != nil {
			return err
		}
		s := c.Stats()
		fmt.Fprintf(cmd.OutOrStdout(), "ok: %d trails, %d blocks, %d phases, %d challenges, %d readings\n",
			s.Trails, s.Blocks, s.Phases, s.Challenges, s.Readings)
		return nil
	},
}

func init() {
	catalogCmd.AddCommand(catalogValidateCmd)
}
