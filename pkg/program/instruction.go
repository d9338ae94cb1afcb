package program

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/query"
)

// Kind is the operation an instruction performs
type Kind int

const (
	KindUnknown Kind = iota
	KindCreate
	KindUpdate
	KindDelete
	KindRead
	KindScan
)

var kindNames = map[Kind]string{
	KindCreate: "create_tweet",
	KindUpdate: "update_tweet",
	KindDelete: "delete_tweet",
	KindRead:   "read_tweet",
	KindScan:   "scan_tweets",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// IsMutation reports whether the kind changes the store
func (k Kind) IsMutation() bool {
	return k == KindCreate || k == KindUpdate || k == KindDelete
}

// ParseKind maps an instruction name (or its short form) to a Kind
func ParseKind(name string) Kind {
	switch name {
	case "create_tweet", "create":
		return KindCreate
	case "update_tweet", "update":
		return KindUpdate
	case "delete_tweet", "delete":
		return KindDelete
	case "read_tweet", "read":
		return KindRead
	case "scan_tweets", "scan":
		return KindScan
	}
	return KindUnknown
}

const discriminatorSize = 8

// Discriminator returns the 8-byte instruction tag: sha256("global:<name>")[:8]
func (k Kind) Discriminator() [discriminatorSize]byte {
	var d [discriminatorSize]byte
	sum := sha256.Sum256([]byte("global:" + k.String()))
	copy(d[:], sum[:discriminatorSize])
	return d
}

// Instruction is one operation submitted to the handler. Record names the
// target id. Owner is the asserted owner for Create and the signing
// authority for Update and Delete.
type Instruction struct {
	Kind    Kind
	Record  identity.PublicKey
	Owner   identity.PublicKey
	Topic   string
	Content string
	Filters []query.Filter
}

// Create builds a create instruction
func Create(record, owner identity.PublicKey, topic, content string) Instruction {
	return Instruction{Kind: KindCreate, Record: record, Owner: owner, Topic: topic, Content: content}
}

// Update builds an update instruction
func Update(record, owner identity.PublicKey, topic, content string) Instruction {
	return Instruction{Kind: KindUpdate, Record: record, Owner: owner, Topic: topic, Content: content}
}

// Delete builds a delete instruction
func Delete(record, owner identity.PublicKey) Instruction {
	return Instruction{Kind: KindDelete, Record: record, Owner: owner}
}

// Read builds a read instruction
func Read(record identity.PublicKey) Instruction {
	return Instruction{Kind: KindRead, Record: record}
}

// Scan builds a scan instruction
func Scan(filters ...query.Filter) Instruction {
	return Instruction{Kind: KindScan, Filters: filters}
}

// RequiredSigners returns the accounts that must sign the instruction
func (ix Instruction) RequiredSigners() []identity.PublicKey {
	switch ix.Kind {
	case KindCreate:
		return []identity.PublicKey{ix.Record, ix.Owner}
	case KindUpdate, KindDelete:
		return []identity.PublicKey{ix.Owner}
	}
	return nil
}

// MarshalBinary encodes a mutation as
//
//	[discriminator(8)][record(32)][owner(32)][topicLen(4)][topic][contentLen(4)][content]
//
// Delete carries no topic or content. Read and Scan have no binary form.
func (ix Instruction) MarshalBinary() ([]byte, error) {
	if !ix.Kind.IsMutation() {
		return nil, fault.New(fault.InvalidInstruction, "%s has no binary form", ix.Kind)
	}

	size := discriminatorSize + 2*identity.PublicKeySize
	if ix.Kind != KindDelete {
		size += 8 + len(ix.Topic) + len(ix.Content)
	}

	buf := make([]byte, 0, size)
	d := ix.Kind.Discriminator()
	buf = append(buf, d[:]...)
	buf = append(buf, ix.Record[:]...)
	buf = append(buf, ix.Owner[:]...)
	if ix.Kind != KindDelete {
		buf = appendString(buf, ix.Topic)
		buf = appendString(buf, ix.Content)
	}
	return buf, nil
}

// UnmarshalBinary decodes the form written by MarshalBinary
func (ix *Instruction) UnmarshalBinary(data []byte) error {
	if len(data) < discriminatorSize {
		return invalid("instruction is %d bytes, too short for a discriminator", len(data))
	}

	var d [discriminatorSize]byte
	copy(d[:], data)
	kind := KindUnknown
	for _, k := range []Kind{KindCreate, KindUpdate, KindDelete} {
		if k.Discriminator() == d {
			kind = k
			break
		}
	}
	if kind == KindUnknown {
		return invalid("unknown instruction discriminator %x", d)
	}

	rest := data[discriminatorSize:]
	if len(rest) < 2*identity.PublicKeySize {
		return invalid("%s is missing accounts", kind)
	}

	out := Instruction{Kind: kind}
	copy(out.Record[:], rest[:identity.PublicKeySize])
	copy(out.Owner[:], rest[identity.PublicKeySize:2*identity.PublicKeySize])
	rest = rest[2*identity.PublicKeySize:]

	if kind != KindDelete {
		var err error
		if out.Topic, rest, err = readString(rest, "topic"); err != nil {
			return err
		}
		if out.Content, rest, err = readString(rest, "content"); err != nil {
			return err
		}
	}
	if len(rest) != 0 {
		return invalid("%s has %d trailing bytes", kind, len(rest))
	}

	*ix = out
	return nil
}

func appendString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(data []byte, name string) (string, []byte, error) {
	if len(data) < 4 {
		return "", nil, invalid("%s length prefix is truncated", name)
	}
	n := binary.LittleEndian.Uint32(data)
	data = data[4:]
	if uint64(n) > uint64(len(data)) {
		return "", nil, invalid("%s declares %d bytes, %d remain", name, n, len(data))
	}
	return string(data[:n]), data[n:], nil
}

func invalid(format string, args ...any) error {
	return fault.New(fault.InvalidInstruction, format, args...)
}

func (ix Instruction) String() string {
	switch ix.Kind {
	case KindScan:
		return fmt.Sprintf("%s(%d filters)", ix.Kind, len(ix.Filters))
	case KindRead:
		return fmt.Sprintf("%s(%s)", ix.Kind, ix.Record)
	}
	return fmt.Sprintf("%s(%s by %s)", ix.Kind, ix.Record, ix.Owner)
}
