package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"
)

// cliOptions 全局参数
type cliOptions struct {
	server  string
	timeout time.Duration
	json    bool
	user    string
}

func (o *cliOptions) client() *apiClient {
	return newAPIClient(o.server, o.timeout)
}

func newRootCommand() *cobra.Command {
	opts := &cliOptions{}

	rootCmd := &cobra.Command{
		Use:           "reconcilectl",
		Short:         "票务对账服务命令行工具",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	defaultServer := os.Getenv("RECON_SERVER")
	if defaultServer == "" {
		defaultServer = "http://127.0.0.1:8080"
	}
	rootCmd.PersistentFlags().StringVar(&opts.server, "server", defaultServer, "对账服务地址")
	rootCmd.PersistentFlags().DurationVar(&opts.timeout, "timeout", 2*time.Minute, "请求超时")
	rootCmd.PersistentFlags().BoolVar(&opts.json, "json", false, "以 JSON 输出")
	rootCmd.PersistentFlags().StringVar(&opts.user, "user", os.Getenv("USER"), "操作人")

	rootCmd.AddCommand(newRunCommand(opts))
	rootCmd.AddCommand(newReportsCommand(opts))
	rootCmd.AddCommand(newStatsCommand(opts))
	rootCmd.AddCommand(newPendingCommand(opts))
	rootCmd.AddCommand(newResolveCommand(opts))
	rootCmd.AddCommand(newAlertsCommand(opts))
	rootCmd.AddCommand(newAckCommand(opts))

	return rootCmd
}
