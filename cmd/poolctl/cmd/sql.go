package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/embedpool/internal/poolservice"
)

// execCmd 表示exec命令，执行不返回行的语句
var execCmd = &cobra.Command{
	Use:   "exec [pool-id] [sql...]",
	Short: "Execute a statement on a pooled connection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args[1:], " ")

		n, err := GetPoolService().Exec(cmd.Context(), args[0], query)
		if err != nil {
			return fmt.Errorf("exec failed: %w", err)
		}
		if n < 0 {
			fmt.Println("OK")
			return nil
		}
		fmt.Printf("OK, %d row(s) affected\n", n)
		return nil
	},
}

// queryCmd 表示query命令，执行查询并以表格显示结果
var queryCmd = &cobra.Command{
	Use:   "query [pool-id] [sql...]",
	Short: "Run a query on a pooled connection",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args[1:], " ")

		result, err := GetPoolService().Query(cmd.Context(), args[0], query)
		if err != nil {
			return fmt.Errorf("query failed: %w", err)
		}
		fmt.Print(poolservice.FormatQueryResult(result))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(queryCmd)
}
