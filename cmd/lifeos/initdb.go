package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/vthunder/lifeos/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the database and its tables",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(config.ModeStore)
		if err != nil {
			return err
		}
		closer, err := setupLogging(cfg)
		if err != nil {
			return err
		}
		defer closer.Close()

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s\n", db.Path())
		return nil
	},
}
