// Package storage provides the byte-oriented durable stores that metric
// snapshots are persisted to. Every payload is keyed by a fixed name per
// metric.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// Backend names.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// ErrNotFound is returned by Get when nothing has been stored under the
// name yet. A fresh install is expected to see it once per metric.
var ErrNotFound = errors.New("payload not found")

// Storage is a byte-oriented get/put store keyed by name.
type Storage interface {
	// Get returns the payload stored under name, or ErrNotFound.
	Get(ctx context.Context, name string) ([]byte, error)
	// Put replaces the payload stored under name.
	Put(ctx context.Context, name string, data []byte) error
	// Close releases the backend.
	Close() error
}

// Config configures the durable storage backend.
type Config struct {
	// Backend selects the store: file, sqlite or memory.
	// Defaults to file.
	Backend string `yaml:"backend"`

	// Dir is the directory holding one file per metric (file backend).
	Dir string `yaml:"dir"`

	// SQLitePath is the database file (sqlite backend).
	SQLitePath string `yaml:"sqlite_path"`

	// Compression is applied to every payload before it is stored.
	// Valid values: none, gzip, zlib, zstd, snappy. Defaults to none.
	Compression string `yaml:"compression"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendFile,
		Dir:         "/var/lib/callmetrics",
		SQLitePath:  "/var/lib/callmetrics/callmetrics.db",
		Compression: CompressionNone,
	}
}

// Validate checks the configuration for required fields.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFile, "":
		if c.Dir == "" {
			return errors.New("storage.dir is required for the file backend")
		}
	case BackendSQLite:
		if c.SQLitePath == "" {
			return errors.New("storage.sqlite_path is required for the sqlite backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Backend)
	}

	switch c.Compression {
	case CompressionNone, "", CompressionGzip, CompressionZlib,
		CompressionZstd, CompressionSnappy:
	default:
		return fmt.Errorf("unsupported compression algorithm: %s", c.Compression)
	}

	return nil
}

// New opens the backend described by cfg and wraps it with the
// configured compression.
func New(log logrus.FieldLogger, cfg Config) (Storage, error) {
	var (
		inner Storage
		err   error
	)

	switch cfg.Backend {
	case BackendFile, "":
		inner, err = NewFile(cfg.Dir)
	case BackendSQLite:
		inner, err = NewSQLite(cfg.SQLitePath)
	case BackendMemory:
		inner = NewMemory()
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}

	if err != nil {
		return nil, fmt.Errorf("opening %s storage: %w", cfg.Backend, err)
	}

	compressor, err := NewCompressor(cfg.Compression)
	if err != nil {
		_ = inner.Close()

		return nil, err
	}

	log.WithFields(logrus.Fields{
		"backend":     cfg.Backend,
		"compression": compressor.Algorithm(),
	}).Info("Storage opened")

	return NewCompressed(inner, compressor), nil
}

// Compressed frames payloads through a Compressor before they reach the
// wrapped Storage.
type Compressed struct {
	inner      Storage
	compressor *Compressor
}

var _ Storage = (*Compressed)(nil)

// NewCompressed wraps inner so that payloads are compressed on Put and
// decompressed on Get.
func NewCompressed(inner Storage, compressor *Compressor) *Compressed {
	return &Compressed{inner: inner, compressor: compressor}
}

// Get returns the decompressed payload stored under name.
func (c *Compressed) Get(ctx context.Context, name string) ([]byte, error) {
	frame, err := c.inner.Get(ctx, name)
	if err != nil {
		return nil, err
	}

	return c.compressor.Decompress(frame)
}

// Put compresses data and stores it under name.
func (c *Compressed) Put(ctx context.Context, name string, data []byte) error {
	frame, err := c.compressor.Compress(data)
	if err != nil {
		return fmt.Errorf("compressing %s: %w", name, err)
	}

	return c.inner.Put(ctx, name, frame)
}

// Close closes the wrapped store and the compressor.
func (c *Compressed) Close() error {
	return errors.Join(c.inner.Close(), c.compressor.Close())
}
