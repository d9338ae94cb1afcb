// Package di provides dependency injection container
package di

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/ssargent/tweetdb/pkg/api" //nolint:depguard
	"github.com/ssargent/tweetdb/pkg/client"
	"github.com/ssargent/tweetdb/pkg/config"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/program"
	"github.com/ssargent/tweetdb/pkg/storage"
	"github.com/ssargent/tweetdb/pkg/store"
	"github.com/ssargent/tweetdb/pkg/workspace"
)

// Container holds all the dependencies for the application
type Container struct {
	config        *config.Config
	logger        *slog.Logger
	metrics       *api.Metrics
	serverFactory api.ServerFactory
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config, logger *slog.Logger) *Container {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Container{
		config:        cfg,
		logger:        logger,
		serverFactory: api.NewServerFactory(),
	}
}

// Config returns the configuration the container was built with
func (c *Container) Config() *config.Config {
	return c.config
}

// Logger returns the application logger
func (c *Container) Logger() *slog.Logger {
	return c.logger
}

// Metrics returns the shared metrics, creating them on first use
func (c *Container) Metrics() *api.Metrics {
	if c.metrics == nil {
		c.metrics = api.NewMetrics(nil)
	}
	return c.metrics
}

// OpenBackend opens the configured storage backend under DataDir
func (c *Container) OpenBackend() (storage.Backend, error) {
	s := c.config.Storage
	switch s.Backend {
	case config.BackendMemory:
		return storage.NewMemoryBackend(), nil
	case config.BackendPebble:
		return storage.NewPebbleBackend(filepath.Join(c.config.DataDir, "pebble"), storage.PebbleOptions{
			Sync: s.FsyncInterval == 0,
		})
	case config.BackendLog:
		b, err := storage.OpenLogBackend(storage.LogConfig{
			DataDir:       filepath.Join(c.config.DataDir, "log"),
			FsyncInterval: s.FsyncInterval,
		})
		if err != nil {
			return nil, err
		}
		if r := b.Recovery(); r.FramesTruncated > 0 {
			c.logger.Warn("truncated torn log tail",
				"frames_validated", r.FramesValidated,
				"frames_truncated", r.FramesTruncated,
				"bytes_before", r.FileSizeBefore,
				"bytes_after", r.FileSizeAfter)
		}
		return b, nil
	}
	return nil, fmt.Errorf("unknown storage backend %q", s.Backend)
}

// OpenStore opens the configured backend and wraps it in a record store
func (c *Container) OpenStore() (*store.Store, error) {
	backend, err := c.OpenBackend()
	if err != nil {
		return nil, err
	}
	return store.New(backend, store.WithLogger(c.logger)), nil
}

// OpenLedger builds store, handler and ledger. When observe is set the
// ledger reports every instruction to the shared metrics.
func (c *Container) OpenLedger(observe bool) (*ledger.Ledger, error) {
	s, err := c.OpenStore()
	if err != nil {
		return nil, err
	}

	opts := []ledger.Option{ledger.WithLogger(c.logger)}
	if observe {
		opts = append(opts, ledger.WithObserver(c.Metrics().ObserveInstruction))
	}
	return ledger.New(program.NewHandler(s, program.WithLogger(c.logger)), ledger.Config{
		Commitment:  c.config.Ledger.Commitment,
		LockTimeout: c.config.Ledger.LockTimeout,
	}, opts...), nil
}

// OpenClient builds an HTTP client for endpoint; an empty endpoint uses the
// configured one
func (c *Container) OpenClient(endpoint string) (*client.Client, error) {
	cc := c.config.Client
	if endpoint == "" {
		endpoint = cc.Endpoint
	}
	return client.New(client.Config{
		Endpoint:    endpoint,
		APIKey:      c.config.Security.ClientAPIKey,
		Timeout:     cc.Timeout,
		MaxAttempts: cc.MaxAttempts,
		Backoff:     cc.Backoff,
		Logger:      c.logger,
	})
}

// OpenConnection returns a remote client when endpoint is set and a local
// ledger otherwise. The returned closer releases the local store.
func (c *Container) OpenConnection(endpoint string) (workspace.Connection, io.Closer, error) {
	if endpoint != "" {
		cl, err := c.OpenClient(endpoint)
		if err != nil {
			return nil, nil, err
		}
		return cl, nopCloser{}, nil
	}

	l, err := c.OpenLedger(false)
	if err != nil {
		return nil, nil, err
	}
	return l, l, nil
}

// GetServerFactory returns the server factory
func (c *Container) GetServerFactory() api.ServerFactory {
	return c.serverFactory
}

// SetServerFactory allows overriding the server factory (for testing)
func (c *Container) SetServerFactory(factory api.ServerFactory) {
	c.serverFactory = factory
}

// ServerConfig derives the API server settings
func (c *Container) ServerConfig() api.ServerConfig {
	return api.ServerConfig{
		Bind:   c.config.Bind,
		Port:   c.config.Port,
		APIKey: c.config.Security.ClientAPIKey,
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
