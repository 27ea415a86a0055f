// Package csv provides CSV-backed instance sources for drift scoring.
package csv

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
)

// Source reads feature rows from a CSV file.
type Source struct {
	file          *os.File
	reader        *csv.Reader
	hasHeader     bool
	skipMalformed bool
	headers       []string
}

// Option configures a CSV source.
type Option func(*Source)

// WithHeader indicates whether the CSV has a header row.
func WithHeader(has bool) Option {
	return func(s *Source) {
		s.hasHeader = has
	}
}

// WithSkipMalformed drops rows that fail to parse instead of failing the
// read. Dropping rows changes the batch a detector sees, so this is off by
// default.
func WithSkipMalformed(skip bool) Option {
	return func(s *Source) {
		s.skipMalformed = skip
	}
}

// Open creates a source for a CSV file.
func Open(filename string, opts ...Option) (*Source, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}

	s := &Source{
		file:      file,
		reader:    csv.NewReader(file),
		hasHeader: true,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.hasHeader {
		headers, err := s.reader.Read()
		if err != nil {
			file.Close()
			return nil, fmt.Errorf("read csv header: %w", err)
		}
		s.headers = headers
	}

	return s, nil
}

// Headers returns the column headers, if the file has them.
func (s *Source) Headers() []string {
	return s.headers
}

// Read returns all remaining rows as a single batch.
func (s *Source) Read() ([][]float64, error) {
	var data [][]float64

	for {
		record, err := s.reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		row, err := parseRow(record)
		if err != nil {
			if s.skipMalformed {
				continue
			}
			return nil, err
		}
		data = append(data, row)
	}

	return data, nil
}

// Stream returns a channel of rows for windowed scoring. Rows that fail to
// parse end the stream unless WithSkipMalformed is set.
func (s *Source) Stream(ctx context.Context) (<-chan []float64, error) {
	out := make(chan []float64, 100)

	go func() {
		defer close(out)
		for {
			record, err := s.reader.Read()
			if err != nil {
				return
			}

			row, err := parseRow(record)
			if err != nil {
				if s.skipMalformed {
					continue
				}
				return
			}

			select {
			case out <- row:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// Close releases the underlying file.
func (s *Source) Close() error {
	if s.file != nil {
		return s.file.Close()
	}
	return nil
}

// parseRow converts a CSV record to a feature vector.
func parseRow(record []string) ([]float64, error) {
	if len(record) == 0 {
		return nil, errors.New("empty row")
	}

	row := make([]float64, len(record))
	for i, val := range record {
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = f
	}
	return row, nil
}
