// Package collector pulls every metric on a schedule and appends the
// pulled rows to a local NDJSON file through a batch processor.
package collector

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	processor "github.com/ethpandaops/go-batch-processor"
	"github.com/sirupsen/logrus"
)

// Exporter implements processor.ItemExporter by appending items to a file
// as NDJSON.
type Exporter[T any] struct {
	log  logrus.FieldLogger
	path string

	mu   sync.Mutex
	file *os.File
}

// compile-time check that Exporter implements ItemExporter.
var _ processor.ItemExporter[any] = (*Exporter[any])(nil)

// NewExporter opens path for appending, creating it and its directory.
func NewExporter[T any](log logrus.FieldLogger, path string) (*Exporter[T], error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating output directory: %w", err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening output: %w", err)
	}

	return &Exporter[T]{
		log:  log.WithField("component", "ndjson_exporter"),
		path: path,
		file: file,
	}, nil
}

// ExportItems appends a batch of items, one JSON document per line.
func (e *Exporter[T]) ExportItems(_ context.Context, items []*T) error {
	if len(items) == 0 {
		return nil
	}

	var buf bytes.Buffer
	buf.Grow(len(items) * 128)

	encoder := json.NewEncoder(&buf)

	for _, item := range items {
		if item == nil {
			continue
		}

		if err := encoder.Encode(item); err != nil {
			return fmt.Errorf("encoding item: %w", err)
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return fmt.Errorf("%s: exporter is shut down", e.path)
	}

	if _, err := e.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("writing output: %w", err)
	}

	e.log.WithFields(logrus.Fields{
		"items": len(items),
		"bytes": buf.Len(),
	}).Debug("Exported batch to file")

	return nil
}

// Shutdown syncs and closes the output file.
func (e *Exporter[T]) Shutdown(_ context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.file == nil {
		return nil
	}

	file := e.file
	e.file = nil

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return fmt.Errorf("syncing output: %w", err)
	}

	return file.Close()
}

// NewProcessor creates a BatchItemProcessor writing through a file
// exporter. Writes ship synchronously, so rows are on disk once Write
// returns and a Shutdown right after a collection round loses nothing.
func NewProcessor[T any](
	log logrus.FieldLogger,
	cfg Config,
	name string,
) (*processor.BatchItemProcessor[T], error) {
	cfg.ApplyDefaults()

	exporter, err := NewExporter[T](log, cfg.Output)
	if err != nil {
		return nil, fmt.Errorf("creating exporter: %w", err)
	}

	proc, err := processor.NewBatchItemProcessor[T](
		exporter,
		name,
		log,
		processor.WithMaxQueueSize(cfg.MaxQueueSize),
		processor.WithBatchTimeout(cfg.BatchTimeout),
		processor.WithExportTimeout(cfg.ExportTimeout),
		processor.WithMaxExportBatchSize(cfg.BatchSize),
		processor.WithWorkers(cfg.Workers),
		processor.WithShippingMethod(processor.ShippingMethodSync),
	)
	if err != nil {
		_ = exporter.Shutdown(context.Background())

		return nil, fmt.Errorf("creating processor: %w", err)
	}

	return proc, nil
}
