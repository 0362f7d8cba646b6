package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fyerfyer/embedpool/internal/poolservice"
)

// listCmd 表示list命令，用于列出所有连接池
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List all pools",
	Long:  `Display a list of all open pools and their basic information.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		service := GetPoolService()
		pools := service.ListPools()

		asJSON, _ := cmd.Flags().GetBool("json")
		if asJSON {
			data, err := poolservice.MarshalPoolInfos(pools)
			if err != nil {
				return err
			}
			fmt.Println(string(data))
			return nil
		}

		if len(pools) == 0 {
			fmt.Println("No pools open.")
			return nil
		}

		verbose, _ := cmd.Flags().GetBool("verbose")
		if verbose {
			// 详细模式：显示每个连接池的完整信息
			fmt.Printf("Found %d pool(s):\n\n", len(pools))
			for i, info := range pools {
				if i > 0 {
					fmt.Println("---")
				}
				fmt.Print(poolservice.FormatPoolInfo(info))
			}
			return nil
		}

		// 表格模式
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tTYPE\tAVAILABLE\tIN USE\tMAX\tOPERATIONS")
		for _, info := range pools {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d acq, %d rel\n",
				info.ID,
				info.Type,
				info.Stats.Available,
				info.Stats.InUse,
				info.Stats.MaxConnections,
				info.Stats.Acquired,
				info.Stats.Released)
		}
		w.Flush()

		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("verbose", "v", false, "Show detailed information for each pool")
	listCmd.Flags().Bool("json", false, "Print pools as JSON")
}
