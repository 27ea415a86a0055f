package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Compute the margin density of the configured source",
	Long: `score reads the configured source as one batch and prints its margin
density. Run it over held-out reference batches to gather the statistics a
density range is calibrated from.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		detector, err := buildDetector(cfg)
		if err != nil {
			return err
		}

		source, err := buildSource(cfg)
		if err != nil {
			return err
		}
		defer source.Close()

		batch, err := source.Read()
		if err != nil {
			return err
		}

		density, err := detector.Score(batch)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "margin_density=%.6f (margin=%.3f, instances=%d)\n",
			density, detector.Margin(), len(batch))
		return nil
	},
}
