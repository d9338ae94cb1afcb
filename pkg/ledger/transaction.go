package ledger

import (
	"encoding/json"
	"fmt"

	"github.com/ssargent/tweetdb/pkg/auth"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/program"
)

// SignedBy is one signature over a transaction message
type SignedBy struct {
	Signer    identity.PublicKey `json:"signer"`
	Signature identity.Signature `json:"signature"`
}

// Transaction wraps a mutating instruction with the signatures authorizing it
type Transaction struct {
	Instruction program.Instruction
	Signatures  []SignedBy
}

// NewTransaction creates an unsigned transaction for ix
func NewTransaction(ix program.Instruction) *Transaction {
	return &Transaction{Instruction: ix}
}

// Message returns the bytes every signer signs: the instruction's binary form
func (tx *Transaction) Message() ([]byte, error) {
	return tx.Instruction.MarshalBinary()
}

// Sign appends a signature from each keypair
func (tx *Transaction) Sign(keypairs ...*identity.Keypair) error {
	msg, err := tx.Message()
	if err != nil {
		return err
	}
	for _, kp := range keypairs {
		tx.Signatures = append(tx.Signatures, SignedBy{
			Signer:    kp.PublicKey(),
			Signature: kp.Sign(msg),
		})
	}
	return nil
}

// Verify checks every signature and returns the set of verified signers. A
// signature that does not verify fails the whole transaction with
// MissingSignature.
func (tx *Transaction) Verify() (auth.SignerSet, error) {
	msg, err := tx.Message()
	if err != nil {
		return nil, err
	}

	signers := make(auth.SignerSet, len(tx.Signatures))
	for _, s := range tx.Signatures {
		if !identity.Verify(s.Signer, msg, s.Signature) {
			return nil, fault.New(fault.MissingSignature, "signature by %s does not verify", s.Signer)
		}
		signers[s.Signer] = struct{}{}
	}
	return signers, nil
}

// Signature returns the first signature, which identifies the transaction
func (tx *Transaction) Signature() identity.Signature {
	if len(tx.Signatures) == 0 {
		return identity.Signature{}
	}
	return tx.Signatures[0].Signature
}

func (tx *Transaction) String() string {
	return fmt.Sprintf("tx{%s, %d signatures}", tx.Instruction, len(tx.Signatures))
}

// wireTransaction is the JSON form used over HTTP
type wireTransaction struct {
	Kind       string             `json:"kind"`
	Record     identity.PublicKey `json:"record"`
	Owner      identity.PublicKey `json:"owner"`
	Topic      string             `json:"topic,omitempty"`
	Content    string             `json:"content,omitempty"`
	Signatures []SignedBy         `json:"signatures"`
}

func (tx *Transaction) MarshalJSON() ([]byte, error) {
	ix := tx.Instruction
	return json.Marshal(wireTransaction{
		Kind:       ix.Kind.String(),
		Record:     ix.Record,
		Owner:      ix.Owner,
		Topic:      ix.Topic,
		Content:    ix.Content,
		Signatures: tx.Signatures,
	})
}

// UnmarshalJSON accepts only mutating instruction kinds
func (tx *Transaction) UnmarshalJSON(data []byte) error {
	var w wireTransaction
	if err := json.Unmarshal(data, &w); err != nil {
		return fault.New(fault.InvalidInstruction, "transaction: %v", err)
	}
	kind := program.ParseKind(w.Kind)
	if !kind.IsMutation() {
		return fault.New(fault.InvalidInstruction, "unknown transaction kind %q", w.Kind)
	}
	tx.Instruction = program.Instruction{
		Kind:    kind,
		Record:  w.Record,
		Owner:   w.Owner,
		Topic:   w.Topic,
		Content: w.Content,
	}
	tx.Signatures = w.Signatures
	return nil
}
