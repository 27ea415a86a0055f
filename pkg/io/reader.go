// Package io provides data ingestion and report output for drift pipelines.
package io

import (
	"context"

	"github.com/marginwatch/driftmd/pkg/drift"
)

// Source is the interface for feeding instances to a drift detector.
type Source interface {
	// Read returns the complete dataset as one batch.
	Read() ([][]float64, error)

	// Stream returns a channel of instances for windowed scoring.
	Stream(ctx context.Context) (<-chan []float64, error)

	// Close releases resources.
	Close() error
}

// ReportWriter is the interface for writing drift reports.
type ReportWriter interface {
	// Write outputs a single report.
	Write(result drift.Result) error

	// Close releases resources.
	Close() error
}

// Collect gathers up to size instances from in into a batch. It returns a
// short batch when in closes mid-window and a nil batch once in is drained.
// A canceled context returns whatever was collected plus ctx.Err().
func Collect(ctx context.Context, in <-chan []float64, size int) ([][]float64, error) {
	batch := make([][]float64, 0, size)
	for len(batch) < size {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case row, ok := <-in:
			if !ok {
				if len(batch) == 0 {
					return nil, nil
				}
				return batch, nil
			}
			batch = append(batch, row)
		}
	}
	return batch, nil
}
