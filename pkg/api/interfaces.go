// Package api provides interfaces for dependency injection
package api

import (
	"context"

	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/store"
)

// Ledger is the transaction executor behind the API
type Ledger interface {
	Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
	Fetch(ctx context.Context, id identity.PublicKey) (store.Record, error)
	Scan(ctx context.Context, filters ...query.Filter) ([]store.Record, error)
	Stats() ledger.Stats
}

// ServerStarter defines the interface for starting the API server
type ServerStarter interface {
	// StartServer serves the API until ctx is cancelled
	StartServer(ctx context.Context, l Ledger, config ServerConfig, opts ...Option) error
}

// ServerFactory creates server instances
type ServerFactory interface {
	// CreateServerStarter creates a server starter
	CreateServerStarter() ServerStarter
}
