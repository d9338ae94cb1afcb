// Package workspace bundles a signing wallet with a connection to a
// ledger, local or remote. Callers build one explicitly and pass it where
// it is needed.
package workspace

import (
	"context"
	"errors"
	"fmt"

	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/ledger"
	"github.com/ssargent/tweetdb/pkg/program"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/store"
	"github.com/ssargent/tweetdb/pkg/validate"
)

// Connection executes transactions and reads records. *ledger.Ledger and
// *client.Client both satisfy it.
type Connection interface {
	Submit(ctx context.Context, tx *ledger.Transaction) (*ledger.Receipt, error)
	Fetch(ctx context.Context, id identity.PublicKey) (store.Record, error)
	Scan(ctx context.Context, filters ...query.Filter) ([]store.Record, error)
}

// Workspace is a wallet plus the connection it signs for
type Workspace struct {
	Wallet *identity.Keypair
	Conn   Connection
}

// New creates a workspace
func New(wallet *identity.Keypair, conn Connection) (*Workspace, error) {
	if wallet == nil {
		return nil, errors.New("workspace: wallet is required")
	}
	if conn == nil {
		return nil, errors.New("workspace: connection is required")
	}
	return &Workspace{Wallet: wallet, Conn: conn}, nil
}

// Owner returns the wallet's public key
func (w *Workspace) Owner() identity.PublicKey {
	return w.Wallet.PublicKey()
}

// SendRecord creates a record owned by the wallet under a freshly generated
// record keypair, which co-signs the transaction.
func (w *Workspace) SendRecord(ctx context.Context, topic, content string) (*ledger.Receipt, error) {
	if err := validate.Fields(topic, content); err != nil {
		return nil, err
	}

	record, err := identity.GenerateKeypair()
	if err != nil {
		return nil, fmt.Errorf("generate record keypair: %w", err)
	}
	return w.submit(ctx, program.Create(record.PublicKey(), w.Owner(), topic, content), w.Wallet, record)
}

// UpdateRecord replaces the topic and content of a record the wallet owns
func (w *Workspace) UpdateRecord(ctx context.Context, id identity.PublicKey, topic, content string) (*ledger.Receipt, error) {
	return w.submit(ctx, program.Update(id, w.Owner(), topic, content), w.Wallet)
}

// DeleteRecord removes a record the wallet owns
func (w *Workspace) DeleteRecord(ctx context.Context, id identity.PublicKey) (*ledger.Receipt, error) {
	return w.submit(ctx, program.Delete(id, w.Owner()), w.Wallet)
}

// FetchRecord reads one record
func (w *Workspace) FetchRecord(ctx context.Context, id identity.PublicKey) (store.Record, error) {
	return w.Conn.Fetch(ctx, id)
}

// ListRecords returns the records matching every filter
func (w *Workspace) ListRecords(ctx context.Context, filters ...query.Filter) ([]store.Record, error) {
	return w.Conn.Scan(ctx, filters...)
}

// RecordsByOwner returns the records owned by owner
func (w *Workspace) RecordsByOwner(ctx context.Context, owner identity.PublicKey) ([]store.Record, error) {
	return w.Conn.Scan(ctx, query.OwnerIs(owner))
}

// RecordsByTopic returns the records whose topic is exactly topic
func (w *Workspace) RecordsByTopic(ctx context.Context, topic string) ([]store.Record, error) {
	return w.Conn.Scan(ctx, query.TopicEquals(topic))
}

func (w *Workspace) submit(ctx context.Context, ix program.Instruction, signers ...*identity.Keypair) (*ledger.Receipt, error) {
	tx := ledger.NewTransaction(ix)
	if err := tx.Sign(signers...); err != nil {
		return nil, err
	}
	return w.Conn.Submit(ctx, tx)
}
