package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/breeze-rmm/scrap/internal/config"
	"github.com/breeze-rmm/scrap/internal/logging"
)

var (
	version = "0.1.0"
	cfgFile string

	// logCloser is set by setup and closed once the command returns.
	logCloser io.Closer
)

var log = logging.L("main")

var rootCmd = &cobra.Command{
	Use:   "scrap",
	Short: "Desktop duplication screen capture",
	Long: `scrap captures the contents of a display through the DXGI desktop
duplication API. It can list displays, write frames to PNG files or stream
them to websocket clients.`,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scrap v%s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is scrap.yaml in the config directory)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (text, json)")
	rootCmd.PersistentFlags().String("log-file", "", "also write logs to this file, rotated by size")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(displaysCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(serveCmd)
}

func main() {
	err := rootCmd.Execute()
	if logCloser != nil {
		logCloser.Close()
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads and validates the config for cmd and starts logging.
func setup(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	res := cfg.ValidateTiered()
	if res.HasFatals() {
		return nil, fmt.Errorf("invalid config: %w", res.Fatals[0])
	}

	out, closer, err := logging.Output(cfg.LogFile, cfg.LogMaxSizeMB, cfg.LogMaxBackups)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	logCloser = closer
	logging.Init(cfg.LogFormat, cfg.LogLevel, out)

	for _, w := range res.Warnings {
		log.Warn("config adjusted", "error", w)
	}
	return cfg, nil
}
