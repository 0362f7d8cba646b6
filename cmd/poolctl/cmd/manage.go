package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// reapCmd 表示reap命令，立即执行一次回收
var reapCmd = &cobra.Command{
	Use:   "reap [pool-id]",
	Short: "Run one reaper pass now",
	Long: `Trim the pool's idle connections back to its configured maximum and replace
connections found closed, without waiting for the background reaper.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		removed, err := GetPoolService().Trim(args[0])
		if err != nil {
			return fmt.Errorf("reap failed: %w", err)
		}
		fmt.Printf("Removed %d connection(s)\n", removed)
		return nil
	},
}

// traceCmd 表示trace命令，开启或关闭跟踪日志
var traceCmd = &cobra.Command{
	Use:       "trace [pool-id] [on|off]",
	Short:     "Toggle trace logging for a pool",
	Long:      `Toggle trace records for acquire, release and reaper activity. Records are logged at debug level.`,
	Args:      cobra.ExactArgs(2),
	ValidArgs: []string{"on", "off"},
	RunE: func(cmd *cobra.Command, args []string) error {
		var enabled bool
		switch strings.ToLower(args[1]) {
		case "on", "true":
			enabled = true
		case "off", "false":
			enabled = false
		default:
			return fmt.Errorf("invalid trace setting: %s, must be 'on' or 'off'", args[1])
		}

		if err := GetPoolService().SetTrace(args[0], enabled); err != nil {
			return err
		}
		fmt.Printf("Trace for pool '%s' is %s\n", args[0], strings.ToLower(args[1]))
		return nil
	},
}

// closeCmd 表示close命令，关闭并移除连接池
var closeCmd = &cobra.Command{
	Use:   "close [pool-id]",
	Short: "Shut down a pool",
	Long: `Shut down a pool. Idle connections are closed; checked-out connections have
their pending work committed and are then closed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := GetPoolService().ClosePool(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to close pool: %w", err)
		}
		fmt.Printf("Pool '%s' closed.\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reapCmd)
	rootCmd.AddCommand(traceCmd)
	rootCmd.AddCommand(closeCmd)
}
