package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/marginwatch/driftmd/internal/history"
	"github.com/marginwatch/driftmd/internal/metrics"
	driftio "github.com/marginwatch/driftmd/pkg/io"
	"github.com/marginwatch/driftmd/pkg/io/jsonl"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously score the configured source in batches",
	Long: `watch streams instances from the configured source, scores each batch of
source.batch_size instances and logs the verdicts. Reports can also be
appended to the history database, written as JSON lines and exposed as
Prometheus metrics.`,
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

		var store *history.Store
		if cfg.History.Path != "" {
			store, err = history.Open(cfg.History.Path)
			if err != nil {
				return err
			}
			defer store.Close()
		}

		var writer driftio.ReportWriter
		if cfg.Output.Path != "" {
			writer, err = jsonl.Create(cfg.Output.Path)
			if err != nil {
				return err
			}
			defer writer.Close()
		}

		collector := metrics.New()
		if cfg.Metrics.Bind != "" {
			server := &http.Server{Addr: cfg.Metrics.Bind, Handler: collector.Handler()}
			go func() {
				if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Error().Err(err).Msg("metrics server failed")
				}
			}()
			defer server.Close()
			log.Info().Str("bind", cfg.Metrics.Bind).Msg("serving metrics")
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		runID := uuid.NewString()
		log.Info().
			Str("run_id", runID).
			Str("source", cfg.Source.Kind).
			Int("batch_size", cfg.Source.BatchSize).
			Stringer("state", detector.State()).
			Msg("watching for drift")

		stream, err := source.Stream(ctx)
		if err != nil {
			return err
		}

		for {
			batch, err := driftio.Collect(ctx, stream, cfg.Source.BatchSize)
			if errors.Is(err, context.Canceled) {
				log.Info().Str("run_id", runID).Msg("watch stopped")
				return nil
			}
			if err != nil {
				return err
			}
			if batch == nil {
				log.Info().Str("run_id", runID).Msg("source drained")
				return nil
			}

			result, err := detector.Predict(batch)
			if err != nil {
				return err
			}

			event := log.Info()
			if result.Data.IsDrift == 1 {
				event = log.Warn().Str("direction", string(*result.Data.Direction))
			}
			event.
				Str("run_id", runID).
				Int("instances", len(batch)).
				Float64("margin_density", result.Data.MarginDensity).
				Int("is_drift", result.Data.IsDrift).
				Msg("batch scored")

			collector.Observe(result)
			if writer != nil {
				if err := writer.Write(result); err != nil {
					return err
				}
			}
			if store != nil {
				if err := store.Append(ctx, runID, result); err != nil {
					return err
				}
			}
		}
	},
}
