package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/glorpus-work/crxget/internal/cli"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	quiet      bool
	logLevel   string
	logFormat  string
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	rootCmd := newRootCmd()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		cancel()
		os.Exit(1)
	}

	cancel()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crxget",
		Short: "Download Chrome extensions as ZIP archives",
		Long: `crxget downloads Chrome extensions from the Chrome Web Store with:
- single, batch and list-file downloads with retries and a bounded worker pool
- CRX2/CRX3 conversion to verified ZIP archives
- optional unpacking and post-download hook scripts`,
		SilenceUsage: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path (default: $XDG_CONFIG_HOME/crxget/config.yaml)")
	cmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output except errors")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format (text, json)")
	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	// Set up CLI pkg variables
	cli.ConfigPath = &configPath
	cli.Verbose = &verbose
	cli.Quiet = &quiet
	cli.LogLevel = &logLevel
	cli.LogFormat = &logFormat

	// Add subcommands
	cmd.AddCommand(
		cli.NewDownloadCmd(),
		cli.NewInteractiveCmd(),
		cli.NewConfigCmd(),
		cli.NewVersionCmd(),
	)

	return cmd
}
