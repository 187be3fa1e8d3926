package main

import (
	"context"
	"fmt"
	"os"

	"policychat/internal/app"
	"policychat/internal/config"
	"policychat/internal/logger"

	"github.com/spf13/cobra"
)

var (
	logMode string

	cli *app.App

	rootCmd = &cobra.Command{
		Use:   "policyctl",
		Short: "Operate the housing policy index and chat pipeline from the shell",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if logMode != "" {
				cfg.Logging.Mode = logMode
			}
			log, err := logger.New(cfg.Logging.Mode)
			if err != nil {
				return fmt.Errorf("failed to build logger: %w", err)
			}
			cli, err = app.New(cmd.Context(), cfg, log)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if cli != nil {
				cli.Close()
			}
		},
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&logMode, "log", "", "log mode: production or development (default from LOG_MODE)")
	rootCmd.AddCommand(reindexCmd, searchCmd, askCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
