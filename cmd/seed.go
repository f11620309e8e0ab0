package cmd

import (
	"fmt"

	"skillset_backend/pkg/database"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create demo chairman, teacher, student and a first skill",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := database.InitDB(&cfg.Database, true)
		if err != nil {
			return err
		}
		if err := database.Seed(db); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "演示数据已就绪")
		return nil
	},
}
