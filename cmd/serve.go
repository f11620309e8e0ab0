package cmd

import (
	"skillset_backend/internal/app"

	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	serveCmd.Flags().Bool("migrate", false, "启动时强制执行数据库迁移（即使是 release 模式）")
}

func runServe(cmd *cobra.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	// release 模式默认不自动迁移
	force, _ := cmd.Flags().GetBool("migrate")
	migrate := force || cfg.Server.Mode != "release"

	application, err := app.NewApp(cfg, migrate)
	if err != nil {
		return err
	}
	application.Run()
	return nil
}
