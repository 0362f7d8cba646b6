package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

// monitorCmd 表示monitor命令，用于实时监控连接池状态
var monitorCmd = &cobra.Command{
	Use:   "monitor [pool-id]",
	Short: "Monitor pool activity in real-time",
	Long: `Watch pool statistics update in real-time.
Press Ctrl+C to stop monitoring.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		poolID := args[0]

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval <= 0 {
			interval = time.Second
		}

		service := GetPoolService()

		// 检查连接池是否存在
		if _, err := service.PoolStats(poolID); err != nil {
			return fmt.Errorf("pool '%s' not found", poolID)
		}

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sigChan)

		fmt.Printf("Monitoring pool '%s' (refresh: %v, press Ctrl+C to stop)...\n\n",
			poolID, interval)

		// 记录前一次的统计信息，用于计算变化率
		var prevStats struct {
			Acquired int64
			Released int64
			Time     time.Time
		}
		prevStats.Time = time.Now()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				stats, err := service.PoolStats(poolID)
				if err != nil {
					return fmt.Errorf("failed to get pool statistics: %w", err)
				}

				// 计算每秒操作率
				now := time.Now()
				elapsed := now.Sub(prevStats.Time).Seconds()
				acquireRate := float64(stats.Acquired-prevStats.Acquired) / elapsed
				releaseRate := float64(stats.Released-prevStats.Released) / elapsed

				fmt.Print("\033[H\033[2J") // 清屏，移动光标到左上角

				fmt.Printf("Time: %s\n\n", now.Format("15:04:05"))
				fmt.Printf("Pool: %s\n", poolID)
				fmt.Printf("Connections: %d available, %d in use (max %d)\n",
					stats.Available, stats.InUse, stats.MaxConnections)
				fmt.Printf("Operations: %d acquired, %d released\n",
					stats.Acquired, stats.Released)
				fmt.Printf("Rate: %.2f acq/s, %.2f rel/s\n",
					acquireRate, releaseRate)

				if stats.Replaced > 0 {
					fmt.Printf("Replaced: %d\n", stats.Replaced)
				}

				if stats.Errors > 0 {
					fmt.Printf("Connect failures: %d\n", stats.Errors)
				}

				prevStats.Acquired = stats.Acquired
				prevStats.Released = stats.Released
				prevStats.Time = now

			case <-sigChan:
				fmt.Println("\nMonitoring stopped.")
				return nil
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().DurationP("interval", "i", time.Second, "Refresh interval")
}
