// Package ledger executes signed transactions against the record program.
//
// The ledger is the collaborator the program relies on for ordering: it
// verifies signatures, serializes transactions that touch the same record
// id, runs the instruction handler, and hands back a receipt. Transactions
// on different ids run concurrently. It never retries a rejected
// transaction; callers decide that.
package ledger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/segmentio/ksuid"

	"github.com/ssargent/tweetdb/pkg/auth"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/program"
	"github.com/ssargent/tweetdb/pkg/query"
	"github.com/ssargent/tweetdb/pkg/store"
)

// Commitment levels reported on receipts
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Config holds ledger settings
type Config struct {
	Commitment  string
	LockTimeout time.Duration // 0 waits as long as ctx allows
}

// Receipt describes an applied transaction
type Receipt struct {
	ID         ksuid.KSUID        `json:"id"`
	Signature  identity.Signature `json:"signature"`
	Slot       uint64             `json:"slot"`
	Commitment string             `json:"commitment"`
	Kind       string             `json:"kind"`
	Record     *store.Record      `json:"record,omitempty"` // nil for delete
}

// Observer is told about every instruction the ledger runs
type Observer func(kind program.Kind, outcome program.Outcome, elapsed time.Duration)

// Stats holds ledger statistics
type Stats struct {
	Records int
	Slot    uint64
}

// Option configures a Ledger
type Option func(*Ledger)

// WithLogger sets the ledger logger
func WithLogger(logger *slog.Logger) Option {
	return func(l *Ledger) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithObserver registers an observer, e.g. for metrics
func WithObserver(o Observer) Option {
	return func(l *Ledger) {
		l.observers = append(l.observers, o)
	}
}

// Ledger runs transactions through a program handler
type Ledger struct {
	handler   *program.Handler
	config    Config
	locks     *keyLocks
	slot      atomic.Uint64
	logger    *slog.Logger
	observers []Observer
}

// New creates a ledger over handler
func New(handler *program.Handler, config Config, opts ...Option) *Ledger {
	if config.Commitment == "" {
		config.Commitment = CommitmentProcessed
	}
	l := &Ledger{
		handler: handler,
		config:  config,
		locks:   newKeyLocks(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Submit verifies and executes tx. Rejections come back as *fault.Error;
// a lock wait that outlives ctx or LockTimeout returns the context error.
func (l *Ledger) Submit(ctx context.Context, tx *Transaction) (*Receipt, error) {
	ix := tx.Instruction
	if !ix.Kind.IsMutation() {
		return nil, fault.New(fault.InvalidInstruction, "%s cannot be submitted as a transaction", ix.Kind)
	}

	signers, err := tx.Verify()
	if err != nil {
		l.logger.Info("transaction rejected", "instruction", ix.Kind.String(), "record", ix.Record, "error", fault.KindOf(err).String())
		return nil, err
	}

	lockCtx := ctx
	if l.config.LockTimeout > 0 {
		var cancel context.CancelFunc
		lockCtx, cancel = context.WithTimeout(ctx, l.config.LockTimeout)
		defer cancel()
	}
	release, err := l.locks.acquire(lockCtx, ix.Record)
	if err != nil {
		return nil, fmt.Errorf("waiting for record %s: %w", ix.Record, err)
	}
	defer release()

	outcome := l.run(ix, signers)
	if !outcome.OK() {
		l.logger.Info("transaction rejected", "instruction", ix.Kind.String(), "record", ix.Record, "error", fault.KindOf(outcome.Err).String())
		return nil, outcome.Err
	}

	receipt := &Receipt{
		ID:         ksuid.New(),
		Signature:  tx.Signature(),
		Slot:       l.slot.Add(1),
		Commitment: l.config.Commitment,
		Kind:       ix.Kind.String(),
	}
	if ix.Kind != program.KindDelete {
		r := outcome.Record
		receipt.Record = &r
	}

	l.logger.Info("transaction applied", "instruction", ix.Kind.String(), "record", ix.Record, "slot", receipt.Slot, "receipt", receipt.ID.String())
	return receipt, nil
}

// Fetch reads one record
func (l *Ledger) Fetch(ctx context.Context, id identity.PublicKey) (store.Record, error) {
	if err := ctx.Err(); err != nil {
		return store.Record{}, err
	}
	outcome := l.run(program.Read(id), nil)
	return outcome.Record, outcome.Err
}

// Scan returns the records matching every filter
func (l *Ledger) Scan(ctx context.Context, filters ...query.Filter) ([]store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	outcome := l.run(program.Scan(filters...), nil)
	return outcome.Records, outcome.Err
}

// Stats returns ledger statistics
func (l *Ledger) Stats() Stats {
	return Stats{
		Records: l.handler.Store().Stats().Records,
		Slot:    l.slot.Load(),
	}
}

// Close closes the underlying store
func (l *Ledger) Close() error {
	return l.handler.Store().Close()
}

func (l *Ledger) run(ix program.Instruction, signers auth.SignerSet) program.Outcome {
	start := time.Now()
	outcome := l.handler.Handle(ix, signers)
	elapsed := time.Since(start)
	for _, o := range l.observers {
		o(ix.Kind, outcome, elapsed)
	}
	return outcome
}
