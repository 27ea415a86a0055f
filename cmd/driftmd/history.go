package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marginwatch/driftmd/internal/history"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Print recent drift reports from the history database",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.History.Path == "" {
			return errors.New("history.path is not configured")
		}

		store, err := history.Open(cfg.History.Path)
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}

		for _, entry := range entries {
			line, err := json.Marshal(map[string]any{
				"id":         entry.ID,
				"created_at": entry.CreatedAt,
				"run_id":     entry.RunID,
				"report":     entry.Result,
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(line))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "number of reports to print")
}
