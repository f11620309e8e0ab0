package cmd

import (
	"fmt"

	"skillset_backend/internal/app"

	"github.com/spf13/cobra"
)

// 与后台定时任务相同的补生成逻辑，用于首次部署或故障恢复后手动执行
var retryReportsCmd = &cobra.Command{
	Use:   "retry-reports",
	Short: "Regenerate reports for submitted attempts that have none",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		limit, _ := cmd.Flags().GetInt("limit")

		application, err := app.NewApp(cfg, false)
		if err != nil {
			return err
		}
		n, err := application.RetryReports(cmd.Context(), limit)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "已补生成 %d 份报告\n", n)
		return nil
	},
}

func init() {
	retryReportsCmd.Flags().Int("limit", 200, "单次最多处理的测试数量")
	rootCmd.AddCommand(retryReportsCmd)
}
