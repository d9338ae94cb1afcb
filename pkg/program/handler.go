// Package program executes instructions against the record store.
//
// Each call to Handle runs one instruction through a fixed sequence of
// phases. Mutations go Received, Validated, Authorized, Applied; reads go
// Received, Resolved. The first failing phase ends the run in Rejected and
// nothing after it executes. The handler never retries.
package program

import (
	"io"
	"log/slog"

	"github.com/ssargent/tweetdb/pkg/auth"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/store"
	"github.com/ssargent/tweetdb/pkg/validate"
)

// Phase is a step of instruction execution
type Phase int

const (
	PhaseReceived Phase = iota
	PhaseValidated
	PhaseAuthorized
	PhaseApplied
	PhaseResolved
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseReceived:
		return "received"
	case PhaseValidated:
		return "validated"
	case PhaseAuthorized:
		return "authorized"
	case PhaseApplied:
		return "applied"
	case PhaseResolved:
		return "resolved"
	case PhaseRejected:
		return "rejected"
	}
	return "unknown"
}

// Outcome is the terminal state of one instruction
type Outcome struct {
	Phase   Phase
	Trace   []Phase
	Record  store.Record   // Create, Update, Read
	Records []store.Record // Scan
	Err     error          // set when Phase is PhaseRejected
}

// OK reports whether the instruction completed
func (o Outcome) OK() bool {
	return o.Phase != PhaseRejected
}

// Handler runs instructions against a store
type Handler struct {
	store  *store.Store
	logger *slog.Logger
}

// HandlerOption configures a Handler
type HandlerOption func(*Handler)

// WithLogger sets the handler logger
func WithLogger(logger *slog.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler creates a handler over s
func NewHandler(s *store.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store:  s,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Store returns the underlying record store
func (h *Handler) Store() *store.Store {
	return h.store
}

// Handle executes ix. signers is the set of accounts that signed the
// enclosing transaction; reads ignore it.
func (h *Handler) Handle(ix Instruction, signers auth.SignerSet) Outcome {
	run := &run{outcome: Outcome{Phase: PhaseReceived, Trace: []Phase{PhaseReceived}}}

	switch ix.Kind {
	case KindRead:
		if ix.Record.IsZero() {
			return run.reject(fault.New(fault.InvalidInstruction, "read needs a record id"))
		}
		r, err := h.store.Read(ix.Record)
		if err != nil {
			return run.reject(err)
		}
		run.outcome.Record = r
		return run.advance(PhaseResolved)

	case KindScan:
		it, err := h.store.Scan(ix.Filters...)
		if err != nil {
			return run.reject(err)
		}
		defer it.Close()
		records, err := it.All()
		if err != nil {
			return run.reject(err)
		}
		run.outcome.Records = records
		return run.advance(PhaseResolved)

	case KindCreate, KindUpdate, KindDelete:
	default:
		return run.reject(fault.New(fault.InvalidInstruction, "unknown instruction kind %d", ix.Kind))
	}

	if err := validateShape(ix); err != nil {
		return run.reject(err)
	}
	run.advance(PhaseValidated)

	if err := auth.RequireSigners(signers, ix.RequiredSigners()...); err != nil {
		return run.reject(err)
	}
	run.advance(PhaseAuthorized)

	var err error
	switch ix.Kind {
	case KindCreate:
		run.outcome.Record, err = h.store.Create(ix.Record, ix.Owner, ix.Topic, ix.Content)
	case KindUpdate:
		run.outcome.Record, err = h.store.Update(ix.Record, ix.Owner, ix.Topic, ix.Content)
	case KindDelete:
		err = h.store.Delete(ix.Record, ix.Owner)
	}
	if err != nil {
		h.logger.Debug("instruction rejected", "instruction", ix.Kind.String(), "record", ix.Record, "error", fault.KindOf(err).String())
		return run.reject(err)
	}

	h.logger.Debug("instruction applied", "instruction", ix.Kind.String(), "record", ix.Record)
	return run.advance(PhaseApplied)
}

// validateShape checks what can be checked without the stored record. Field
// lengths are checked here only for Create; for Update they are checked by
// the store after the owner check.
func validateShape(ix Instruction) error {
	if ix.Record.IsZero() {
		return fault.New(fault.InvalidInstruction, "%s needs a record account", ix.Kind)
	}
	if ix.Owner.IsZero() {
		return fault.New(fault.InvalidInstruction, "%s needs an owner account", ix.Kind)
	}
	if ix.Kind == KindCreate {
		return validate.Fields(ix.Topic, ix.Content)
	}
	return nil
}

type run struct {
	outcome Outcome
}

func (r *run) advance(p Phase) Outcome {
	r.outcome.Phase = p
	r.outcome.Trace = append(r.outcome.Trace, p)
	return r.outcome
}

func (r *run) reject(err error) Outcome {
	r.outcome.Err = err
	r.outcome.Record = store.Record{}
	r.outcome.Records = nil
	return r.advance(PhaseRejected)
}
