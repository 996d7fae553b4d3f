package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"crowdfund-ledger/config"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "crowdfund",
	Short: "Crowdfunding ledger node",
	Long: `crowdfund runs the crowdfunding ledger: a project registry, an investment
ledger, debt repayment settlement and a secondary market for equity shares,
served over HTTP with a sqlite event journal.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to a .toml or .yaml config file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logrus.Error(err)
		os.Exit(1)
	}
}

// loadConfig reads the config file and sets up logging from it.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return cfg, err
	}
	if err := setupLogging(cfg.Log); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func setupLogging(lc config.LogConfig) error {
	level, err := logrus.ParseLevel(lc.Level)
	if err != nil {
		return fmt.Errorf("log level: %w", err)
	}
	logrus.SetLevel(level)
	switch strings.ToLower(lc.Format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", lc.Format)
	}
	return nil
}
