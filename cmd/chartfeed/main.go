package main

import (
	"chartfeed/config"
	"chartfeed/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:          "chartfeed",
	Short:        "Poloniex chart cache, market feed and backtester",
	SilenceUsage: true,
}

// setup loads the config named by --config and builds the logger.
func setup() (*config.Config, *zap.Logger, error) {
	// viper config
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	// zap logger
	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}

func main() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.yaml (default: config/ next to the binary)")
	rootCmd.AddCommand(serveCmd(), backtestCmd(), sweepCmd(), orderCmd())
	cobra.CheckErr(rootCmd.Execute())
}
