package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/embedpool/internal/poolservice"
)

// openCmd 表示open命令，用于从配置文件打开连接池
var openCmd = &cobra.Command{
	Use:   "open [source...]",
	Short: "Open connection pools from preference files",
	Long: `Open one connection pool per preference source.
A source can be a file path, a file: URL or an http(s) URL to a .properties file.
Opening a source whose db.poolid is already open returns the existing pool.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		service := GetPoolService()

		for _, source := range args {
			info, err := service.OpenPool(cmd.Context(), source)
			if err != nil {
				return fmt.Errorf("failed to open pool from %s: %w", source, err)
			}
			fmt.Print(poolservice.FormatPoolInfo(info))
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(openCmd)
}
