package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// acquireCmd 表示acquire命令，从连接池取出连接并由会话持有
var acquireCmd = &cobra.Command{
	Use:   "acquire [pool-id]",
	Short: "Check a connection out of a pool",
	Long: `Check one or more connections out of a pool. The connections stay checked out
until released with 'release' or until the pool is closed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID := args[0]
		count, _ := cmd.Flags().GetInt("count")
		timeout, _ := cmd.Flags().GetDuration("timeout")

		if count <= 0 {
			count = 1
		}

		service := GetPoolService()
		for i := 0; i < count; i++ {
			// puddle 连接池在达到上限时会阻塞，用超时避免卡住会话
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			connID, err := service.Acquire(ctx, poolID)
			cancel()
			if err != nil {
				return fmt.Errorf("failed to acquire connection: %w", err)
			}
			fmt.Printf("Acquired %s\n", connID)
		}

		return nil
	},
}

// releaseCmd 表示release命令，归还会话持有的连接
var releaseCmd = &cobra.Command{
	Use:   "release [pool-id] [conn-id...]",
	Short: "Return checked-out connections to a pool",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID := args[0]
		service := GetPoolService()

		for _, connID := range args[1:] {
			if err := service.Release(poolID, connID); err != nil {
				return fmt.Errorf("failed to release %s: %w", connID, err)
			}
			fmt.Printf("Released %s\n", connID)
		}

		return nil
	},
}

func init() {
	rootCmd.AddCommand(acquireCmd)
	rootCmd.AddCommand(releaseCmd)

	acquireCmd.Flags().IntP("count", "c", 1, "Number of connections to acquire")
	acquireCmd.Flags().Duration("timeout", 5*time.Second, "Maximum time to wait for a connection")
}
