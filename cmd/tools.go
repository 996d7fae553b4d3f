package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"crowdfund-ledger/config"
	"crowdfund-ledger/core/model"
	"crowdfund-ledger/store"
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(eventsCmd)
	rootCmd.AddCommand(refCmd)

	configShowCmd.Flags().StringP("format", "f", "toml", "Output format: toml or yaml")

	eventsCmd.Flags().String("db", "", "Journal path (overrides db.path)")
	eventsCmd.Flags().Uint64("from", 0, "First height")
	eventsCmd.Flags().Uint64("to", 0, "Last height")
	eventsCmd.Flags().String("op", "", "Only this operation, e.g. invest")
	eventsCmd.Flags().String("event", "", "Only this event, e.g. InvestmentMade")
	eventsCmd.Flags().IntP("limit", "n", 0, "Maximum number of events")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the node configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration (file, defaults and environment)",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if _, err := cfg.LedgerModel(); err != nil {
			return err
		}
		format, _ := cmd.Flags().GetString("format")
		return config.Write(cmd.OutOrStdout(), cfg, format)
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print journaled ledger events as JSON lines",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		path, _ := cmd.Flags().GetString("db")
		if path == "" {
			path = cfg.DB.Path
		}
		if path == "" {
			return fmt.Errorf("no journal configured")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("journal %s: %w", path, err)
		}

		var f store.Filter
		f.FromHeight, _ = cmd.Flags().GetUint64("from")
		f.ToHeight, _ = cmd.Flags().GetUint64("to")
		f.Op, _ = cmd.Flags().GetString("op")
		f.Event, _ = cmd.Flags().GetString("event")
		f.Limit, _ = cmd.Flags().GetInt("limit")

		j, err := store.Open(path)
		if err != nil {
			return err
		}
		defer j.Close()
		entries, err := j.List(cmd.Context(), f)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	},
}

var refCmd = &cobra.Command{
	Use:   "ref TEXT",
	Short: "Print the 32-byte listing reference derived from TEXT",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Fprintln(cmd.OutOrStdout(), model.ListingRef(args[0]).Hex())
		return nil
	},
}
