package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/fyerfyer/embedpool/internal/poolservice"
	"github.com/fyerfyer/embedpool/pool/factory"
)

var (
	// 连接池服务实例，所有命令共享
	poolSvc poolservice.Service

	logLevel string
	poolType string
)

// shutdownTimeout 是退出时等待所有连接池关闭的时间
const shutdownTimeout = 10 * time.Second

// rootCmd 表示CLI工具的根命令
var rootCmd = &cobra.Command{
	Use:   "poolctl",
	Short: "A CLI tool for managing embedded database connection pools",
	Long: `poolctl opens connection pools over embedded SQLite databases from preference files
(.properties, .yaml or .toml), checks connections in and out, runs statements,
and inspects or trims pools while they run.

Without a subcommand poolctl starts an interactive session.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initService()
	},
}

// Execute 运行根命令并在结束时关闭所有连接池
func Execute() {
	err := rootCmd.Execute()

	if poolSvc != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if closeErr := poolSvc.Close(ctx); closeErr != nil {
			fmt.Fprintf(os.Stderr, "Error closing pools: %v\n", closeErr)
		}
		cancel()
	}

	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// 在 init 中设置，避免 rootCmd 与交互模式之间的初始化循环
	rootCmd.Run = func(cmd *cobra.Command, args []string) {
		// 没有子命令时进入交互模式
		runInteractiveMode()
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "Log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&poolType, "pool-type", "", "Override db.pooltype for opened pools: 'myown' or 'puddle'")
}

// initService 创建日志记录器和连接池服务，只在第一次调用时生效
func initService() error {
	if poolSvc != nil {
		return nil
	}

	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("invalid log level: %w", err)
	}

	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	var opts []factory.Option
	if poolType != "" {
		kind, err := factory.ParseKind(poolType)
		if err != nil {
			return err
		}
		opts = append(opts, factory.WithKind(kind))
	}

	poolSvc = poolservice.NewInMemoryService(logger, opts...)
	return nil
}

// GetPoolService 返回连接池服务实例，供子命令使用
func GetPoolService() poolservice.Service {
	return poolSvc
}
