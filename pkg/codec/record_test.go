package codec

import (
	"bytes"
	"encoding/binary"
	"errors"
	"strings"
	"testing"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

func testOwner() identity.PublicKey {
	var pk identity.PublicKey
	for i := range pk {
		pk[i] = byte(i + 1)
	}
	return pk
}

func TestRecordCodec_EncodeDecodeRoundTrip(t *testing.T) {
	codec := NewRecordCodec()

	testCases := []struct {
		name   string
		record Record
	}{
		{
			name:   "simple post",
			record: Record{Owner: testOwner(), CreatedAt: 1700000000, Topic: "solana", Content: "gm"},
		},
		{
			name:   "empty topic",
			record: Record{Owner: testOwner(), CreatedAt: 1700000000, Topic: "", Content: "no topic here"},
		},
		{
			name:   "empty content",
			record: Record{Owner: testOwner(), CreatedAt: 1700000000, Topic: "silence", Content: ""},
		},
		{
			name:   "both empty",
			record: Record{Owner: testOwner()},
		},
		{
			name:   "maximum lengths",
			record: Record{Owner: testOwner(), CreatedAt: 1, Topic: strings.Repeat("t", MaxTopicLen), Content: strings.Repeat("c", MaxContentLen)},
		},
		{
			name:   "negative timestamp",
			record: Record{Owner: testOwner(), CreatedAt: -86400, Topic: "past", Content: "before the epoch"},
		},
		{
			name:   "unicode",
			record: Record{Owner: testOwner(), CreatedAt: 42, Topic: "émojis", Content: "🎯 unicode value"},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			encoded, err := codec.Encode(tc.record)
			if err != nil {
				t.Fatalf("Encode failed: %v", err)
			}

			if len(encoded) != tc.record.Size() {
				t.Errorf("encoded size mismatch: got %d, want %d", len(encoded), tc.record.Size())
			}

			decoded, err := codec.Decode(encoded)
			if err != nil {
				t.Fatalf("Decode failed: %v", err)
			}

			if decoded != tc.record {
				t.Errorf("round trip mismatch: got %+v, want %+v", decoded, tc.record)
			}
		})
	}
}

func TestRecordCodec_LayoutOffsets(t *testing.T) {
	codec := NewRecordCodec()
	owner := testOwner()

	encoded, err := codec.Encode(Record{Owner: owner, CreatedAt: 1234, Topic: "topic", Content: "content"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if !bytes.Equal(encoded[0:8], Discriminator[:]) {
		t.Errorf("type tag mismatch: got %x", encoded[0:8])
	}
	if !bytes.Equal(encoded[8:40], owner[:]) {
		t.Errorf("owner not at offset 8")
	}
	if got := binary.LittleEndian.Uint64(encoded[40:48]); got != 1234 {
		t.Errorf("created_at mismatch: got %d", got)
	}
	if got := binary.LittleEndian.Uint32(encoded[48:52]); got != 5 {
		t.Errorf("topic length mismatch: got %d", got)
	}
	if string(encoded[52:57]) != "topic" {
		t.Errorf("topic not at offset 52: %q", encoded[52:57])
	}
	if got := binary.LittleEndian.Uint32(encoded[57:61]); got != 7 {
		t.Errorf("content length mismatch: got %d", got)
	}
	if string(encoded[61:]) != "content" {
		t.Errorf("content mismatch: %q", encoded[61:])
	}
}

func TestRecordCodec_EncodeRejectsOversizedFields(t *testing.T) {
	codec := NewRecordCodec()

	_, err := codec.Encode(Record{Topic: strings.Repeat("t", MaxTopicLen+1)})
	if !errors.Is(err, fault.ErrTopicTooLong) {
		t.Errorf("expected TopicTooLong, got %v", err)
	}

	_, err = codec.Encode(Record{Content: strings.Repeat("c", MaxContentLen+1)})
	if !errors.Is(err, fault.ErrContentTooLong) {
		t.Errorf("expected ContentTooLong, got %v", err)
	}
}

func TestRecordCodec_MalformedData(t *testing.T) {
	codec := NewRecordCodec()

	valid, err := codec.Encode(Record{Owner: testOwner(), CreatedAt: 7, Topic: "abc", Content: "defg"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	mutate := func(fn func(b []byte) []byte) []byte {
		b := append([]byte(nil), valid...)
		return fn(b)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "empty data",
			data: []byte{},
		},
		{
			name: "too short for header",
			data: valid[:MinSize-1],
		},
		{
			name: "wrong type tag",
			data: mutate(func(b []byte) []byte { b[0] ^= 0xFF; return b }),
		},
		{
			name: "topic length over maximum",
			data: mutate(func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[TopicPrefixOffset:], MaxTopicLen+1)
				return b
			}),
		},
		{
			name: "topic length past end",
			data: mutate(func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[TopicPrefixOffset:], 40)
				return b
			}),
		},
		{
			name: "content length over maximum",
			data: mutate(func(b []byte) []byte {
				binary.LittleEndian.PutUint32(b[TopicOffset+3:], MaxContentLen+1)
				return b
			}),
		},
		{
			name: "content shorter than declared",
			data: valid[:len(valid)-1],
		},
		{
			name: "trailing bytes",
			data: append(append([]byte(nil), valid...), 0x00),
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			record, err := codec.Decode(tc.data)
			if err == nil {
				t.Fatalf("expected decode to fail for %s", tc.name)
			}
			if !errors.Is(err, fault.ErrMalformedRecord) {
				t.Errorf("expected MalformedRecord, got %v", err)
			}
			if record != (Record{}) {
				t.Errorf("expected zero record on failure, got %+v", record)
			}
		})
	}
}

func TestFieldOffset(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode(Record{Owner: testOwner(), Topic: "solana", Content: "gm"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	testCases := []struct {
		field  Field
		offset int
	}{
		{FieldOwner, 8},
		{FieldCreatedAt, 40},
		{FieldTopic, 52},
		{FieldContent, 62},
	}

	for _, tc := range testCases {
		t.Run(string(tc.field), func(t *testing.T) {
			offset, err := FieldOffset(encoded, tc.field)
			if err != nil {
				t.Fatalf("FieldOffset failed: %v", err)
			}
			if offset != tc.offset {
				t.Errorf("offset mismatch: got %d, want %d", offset, tc.offset)
			}
		})
	}

	t.Run("unknown field", func(t *testing.T) {
		_, err := FieldOffset(encoded, Field("likes"))
		if !errors.Is(err, fault.ErrInvalidFilter) {
			t.Errorf("expected InvalidFilter, got %v", err)
		}
	})

	t.Run("content on truncated data", func(t *testing.T) {
		_, err := FieldOffset(encoded[:50], FieldContent)
		if !errors.Is(err, fault.ErrMalformedRecord) {
			t.Errorf("expected MalformedRecord, got %v", err)
		}
	})
}

func TestFieldLength(t *testing.T) {
	codec := NewRecordCodec()

	encoded, err := codec.Encode(Record{Owner: testOwner(), Topic: "solana", Content: "gm"})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if n, err := FieldLength(encoded, FieldTopic); err != nil || n != 6 {
		t.Errorf("topic length: got %d, %v", n, err)
	}
	if n, err := FieldLength(encoded, FieldContent); err != nil || n != 2 {
		t.Errorf("content length: got %d, %v", n, err)
	}
	if _, err := FieldLength(encoded, FieldOwner); err == nil {
		t.Error("expected error for fixed-size field")
	}
}

func TestDiscriminator(t *testing.T) {
	want := []byte{0xe5, 0x0d, 0x6e, 0x3a, 0x76, 0x06, 0x14, 0x4f}
	if !bytes.Equal(Discriminator[:], want) {
		t.Errorf("discriminator mismatch: got %x, want %x", Discriminator, want)
	}
}
