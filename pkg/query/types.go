package query

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/mr-tron/base58"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// Filter is a predicate over encoded record bytes
type Filter interface {
	// Validate reports a malformed filter as fault.InvalidFilter
	Validate() error
	// Match reports whether the encoded record satisfies the filter
	Match(data []byte) bool
	String() string
}

// Memcmp matches when data holds Bytes at Offset. This is the raw form
// remote readers send: owner at offset 8, topic bytes at offset 52.
type Memcmp struct {
	Offset int
	Bytes  []byte
}

// Validate checks if the filter is properly formed
func (m Memcmp) Validate() error {
	if m.Offset < 0 {
		return fault.New(fault.InvalidFilter, "negative offset %d", m.Offset)
	}
	if len(m.Bytes) == 0 {
		return fault.New(fault.InvalidFilter, "memcmp bytes cannot be empty")
	}
	if m.Offset+len(m.Bytes) > codec.MaxSize {
		return fault.New(fault.InvalidFilter, "memcmp region %d+%d exceeds maximum record size %d",
			m.Offset, len(m.Bytes), codec.MaxSize)
	}
	return nil
}

// Match implements Filter
func (m Memcmp) Match(data []byte) bool {
	end := m.Offset + len(m.Bytes)
	if m.Offset < 0 || end > len(data) {
		return false
	}
	return bytes.Equal(data[m.Offset:end], m.Bytes)
}

func (m Memcmp) String() string {
	return fmt.Sprintf("memcmp(%d:%s)", m.Offset, base58.Encode(m.Bytes))
}

// OwnerIs matches records owned by owner
func OwnerIs(owner identity.PublicKey) Memcmp {
	return Memcmp{Offset: codec.OwnerOffset, Bytes: owner.Bytes()}
}

// ParseMemcmp parses the "offset:base58bytes" form used by the HTTP API and CLI
func ParseMemcmp(s string) (Memcmp, error) {
	offsetStr, encoded, ok := strings.Cut(s, ":")
	if !ok {
		return Memcmp{}, fault.New(fault.InvalidFilter, "memcmp %q must be offset:base58", s)
	}
	offset, err := strconv.Atoi(offsetStr)
	if err != nil {
		return Memcmp{}, fault.New(fault.InvalidFilter, "memcmp offset %q is not a number", offsetStr)
	}
	raw, err := base58.Decode(encoded)
	if err != nil {
		return Memcmp{}, fault.New(fault.InvalidFilter, "memcmp bytes %q are not base58", encoded)
	}

	m := Memcmp{Offset: offset, Bytes: raw}
	if err := m.Validate(); err != nil {
		return Memcmp{}, err
	}
	return m, nil
}

// FieldMatch compares a field's value located via codec.FieldOffset. With
// Prefix unset the whole field must equal Value; for topic and content that
// includes the length prefix, so "topic" does not match "topics".
type FieldMatch struct {
	Field  codec.Field
	Value  []byte
	Prefix bool
}

// TopicEquals matches records whose topic is exactly topic
func TopicEquals(topic string) FieldMatch {
	return FieldMatch{Field: codec.FieldTopic, Value: []byte(topic)}
}

// TopicPrefix matches records whose topic starts with prefix
func TopicPrefix(prefix string) FieldMatch {
	return FieldMatch{Field: codec.FieldTopic, Value: []byte(prefix), Prefix: true}
}

// ContentEquals matches records whose content is exactly content
func ContentEquals(content string) FieldMatch {
	return FieldMatch{Field: codec.FieldContent, Value: []byte(content)}
}

// ContentPrefix matches records whose content starts with prefix
func ContentPrefix(prefix string) FieldMatch {
	return FieldMatch{Field: codec.FieldContent, Value: []byte(prefix), Prefix: true}
}

// Validate checks if the filter is properly formed
func (f FieldMatch) Validate() error {
	switch f.Field {
	case codec.FieldTopic, codec.FieldContent:
	case codec.FieldOwner:
		if f.Prefix || len(f.Value) != identity.PublicKeySize {
			return fault.New(fault.InvalidFilter, "owner filter needs an exact %d-byte key", identity.PublicKeySize)
		}
		return nil
	default:
		return fault.New(fault.InvalidFilter, "field %q cannot be filtered", f.Field)
	}

	limit, _ := codec.MaxFieldLen(f.Field)
	if len(f.Value) > limit {
		return fault.New(fault.InvalidFilter, "%s filter is %d bytes, field maximum is %d", f.Field, len(f.Value), limit)
	}
	if f.Prefix && len(f.Value) == 0 {
		return fault.New(fault.InvalidFilter, "%s prefix cannot be empty", f.Field)
	}
	return nil
}

// Match implements Filter
func (f FieldMatch) Match(data []byte) bool {
	offset, err := codec.FieldOffset(data, f.Field)
	if err != nil {
		return false
	}

	if f.Field == codec.FieldOwner {
		return Memcmp{Offset: offset, Bytes: f.Value}.Match(data)
	}

	length, err := codec.FieldLength(data, f.Field)
	if err != nil {
		return false
	}
	if f.Prefix {
		if length < len(f.Value) {
			return false
		}
	} else if length != len(f.Value) {
		return false
	}
	return Memcmp{Offset: offset, Bytes: f.Value}.Match(data)
}

func (f FieldMatch) String() string {
	op := "=="
	if f.Prefix {
		op = "^="
	}
	return fmt.Sprintf("%s %s %q", f.Field, op, f.Value)
}

// ValidateAll validates every filter; a nil filter, or a nil *Memcmp or
// *FieldMatch, is invalid
func ValidateAll(filters []Filter) error {
	for i, f := range filters {
		if isNil(f) {
			return fault.New(fault.InvalidFilter, "filter %d is nil", i)
		}
		if err := f.Validate(); err != nil {
			return err
		}
	}
	return nil
}

func isNil(f Filter) bool {
	switch v := f.(type) {
	case nil:
		return true
	case *Memcmp:
		return v == nil
	case *FieldMatch:
		return v == nil
	}
	return false
}

// MatchAll reports whether data satisfies every filter. No filters match everything.
func MatchAll(filters []Filter, data []byte) bool {
	for _, f := range filters {
		if !f.Match(data) {
			return false
		}
	}
	return true
}
