package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/embedpool/internal/poolservice"
)

// statsCmd 表示stats命令，用于显示连接池的统计信息
var statsCmd = &cobra.Command{
	Use:   "stats [pool-id]",
	Short: "Display pool statistics",
	Long: `Display detailed statistics for a pool.
This includes available and in-use counts, operation totals, and reaper state.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID := args[0]

		stats, err := GetPoolService().PoolStats(poolID)
		if err != nil {
			return fmt.Errorf("failed to get pool statistics: %w", err)
		}

		fmt.Printf("Statistics for pool '%s':\n\n", poolID)
		fmt.Print(poolservice.FormatPoolStats(stats))

		return nil
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
