// Package config loads and validates the driftmd CLI configuration.
package config

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// Classifier kinds understood by the CLI.
const (
	ClassifierLinear      = "linear"
	ClassifierProbability = "probability"
)

// Source kinds understood by the CLI.
const (
	SourceCSV      = "csv"
	SourcePcap     = "pcap"
	SourcePcapLive = "pcap-live"
)

// Detector holds the drift detector parameters.
type Detector struct {
	Margin       float64        `toml:"margin"`
	DensityRange []float64      `toml:"density_range"`
	Metadata     map[string]any `toml:"metadata"`
}

// Classifier selects the classifier the detector wraps.
type Classifier struct {
	Kind      string `toml:"kind"`
	ModelPath string `toml:"model_path"`
}

// Source selects where instances come from.
type Source struct {
	Kind      string `toml:"kind"`
	Path      string `toml:"path"`
	CSVHeader bool   `toml:"csv_header"`
	Interface string `toml:"interface"`
	BatchSize int    `toml:"batch_size"`
}

// History configures the drift report log.
type History struct {
	Path string `toml:"path"`
}

// Metrics configures the Prometheus endpoint of the watch command.
type Metrics struct {
	Bind string `toml:"bind"`
}

// Output configures where reports are written.
type Output struct {
	Path string `toml:"path"`
}

// Config is the full driftmd CLI configuration.
type Config struct {
	Detector   Detector   `toml:"detector"`
	Classifier Classifier `toml:"classifier"`
	Source     Source     `toml:"source"`
	History    History    `toml:"history"`
	Metrics    Metrics    `toml:"metrics"`
	Output     Output     `toml:"output"`
}

// Default returns a configuration with sensible defaults applied.
func Default() Config {
	return Config{
		Classifier: Classifier{Kind: ClassifierProbability},
		Source:     Source{Kind: SourceCSV, CSVHeader: true, BatchSize: 256},
	}
}

// Load reads a TOML configuration file and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the TOML decoder cannot express.
// Detector parameter ranges are left to the detector's own constructor.
func (c *Config) Validate() error {
	if n := len(c.Detector.DensityRange); n != 0 && n != 2 {
		return fmt.Errorf("detector.density_range must be [low, high], got %d values", n)
	}

	switch c.Classifier.Kind {
	case ClassifierProbability:
	case ClassifierLinear:
		if c.Classifier.ModelPath == "" {
			return fmt.Errorf("classifier.model_path is required for kind %q", ClassifierLinear)
		}
	default:
		return fmt.Errorf("unknown classifier.kind %q", c.Classifier.Kind)
	}

	switch c.Source.Kind {
	case SourceCSV, SourcePcap:
		if c.Source.Path == "" {
			return fmt.Errorf("source.path is required for kind %q", c.Source.Kind)
		}
	case SourcePcapLive:
		if c.Source.Interface == "" {
			return fmt.Errorf("source.interface is required for kind %q", SourcePcapLive)
		}
	default:
		return fmt.Errorf("unknown source.kind %q", c.Source.Kind)
	}

	if c.Source.BatchSize <= 0 {
		return fmt.Errorf("source.batch_size must be positive, got %d", c.Source.BatchSize)
	}

	return nil
}
