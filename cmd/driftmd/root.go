package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marginwatch/driftmd/internal/config"
	"github.com/marginwatch/driftmd/pkg/drift"
	"github.com/marginwatch/driftmd/pkg/drift/margindensity"
	driftio "github.com/marginwatch/driftmd/pkg/io"
	csvsource "github.com/marginwatch/driftmd/pkg/io/csv"
	pcapsource "github.com/marginwatch/driftmd/pkg/io/pcap"
	"github.com/marginwatch/driftmd/pkg/models/linear"
)

var (
	configPath string
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "driftmd",
	Short: "Margin density drift detection for binary classifiers",
	Long: `driftmd watches the fraction of predictions a binary classifier places
near its decision boundary (margin density) and flags drift when that
fraction leaves a calibrated acceptable range. No ground-truth labels
are needed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
			Level(level).
			With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "driftmd.toml", "path to TOML configuration")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(scoreCmd, predictCmd, watchCmd, historyCmd)
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

// buildClassifier constructs the classifier the detector wraps. The
// "probability" kind treats the first column of each instance as the
// positive-class probability itself, for streams scored upstream.
func buildClassifier(cfg config.Config) (drift.Classifier, error) {
	switch cfg.Classifier.Kind {
	case config.ClassifierLinear:
		model, err := linear.LoadFile(cfg.Classifier.ModelPath)
		if err != nil {
			return nil, err
		}
		return model, nil
	case config.ClassifierProbability:
		return drift.ClassifierFunc(func(batch [][]float64) ([]float64, error) {
			probs := make([]float64, len(batch))
			for i, row := range batch {
				if len(row) == 0 {
					return nil, fmt.Errorf("instance %d has no columns", i)
				}
				probs[i] = row[0]
			}
			return probs, nil
		}), nil
	default:
		return nil, fmt.Errorf("unknown classifier kind %q", cfg.Classifier.Kind)
	}
}

func buildDetector(cfg config.Config) (*margindensity.Detector, error) {
	classifier, err := buildClassifier(cfg)
	if err != nil {
		return nil, err
	}

	opts := []margindensity.Option{margindensity.WithLogger(log.Logger)}
	if len(cfg.Detector.DensityRange) == 2 {
		opts = append(opts, margindensity.WithDensityRange(
			cfg.Detector.DensityRange[0], cfg.Detector.DensityRange[1]))
	}
	if cfg.Detector.Metadata != nil {
		opts = append(opts, margindensity.WithMetadata(cfg.Detector.Metadata))
	}

	return margindensity.New(classifier, cfg.Detector.Margin, opts...)
}

func buildSource(cfg config.Config) (driftio.Source, error) {
	switch cfg.Source.Kind {
	case config.SourceCSV:
		return csvsource.Open(cfg.Source.Path, csvsource.WithHeader(cfg.Source.CSVHeader))
	case config.SourcePcap:
		return pcapsource.OpenFile(cfg.Source.Path)
	case config.SourcePcapLive:
		return pcapsource.OpenLive(cfg.Source.Interface, 65535, true, pcapsource.DefaultTimeout)
	default:
		return nil, fmt.Errorf("unknown source kind %q", cfg.Source.Kind)
	}
}
