package codec

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
)

// Layout offsets and sizes
const (
	DiscriminatorSize = 8
	OwnerOffset       = DiscriminatorSize
	CreatedAtOffset   = OwnerOffset + identity.PublicKeySize
	TopicPrefixOffset = CreatedAtOffset + 8
	TopicOffset       = TopicPrefixOffset + lengthPrefixSize
	HeaderSize        = TopicOffset
	MinSize           = HeaderSize + lengthPrefixSize
	MaxTopicLen       = 50
	MaxContentLen     = 280
	MaxSize           = MinSize + MaxTopicLen + MaxContentLen

	lengthPrefixSize = 4
)

// Field names a filter can address
type Field string

const (
	FieldOwner     Field = "owner"
	FieldCreatedAt Field = "created_at"
	FieldTopic     Field = "topic"
	FieldContent   Field = "content"
)

// Discriminator is the type tag at offset 0 of every encoded record: the
// first 8 bytes of sha256("account:Tweet").
var Discriminator = accountDiscriminator("Tweet")

func accountDiscriminator(name string) [DiscriminatorSize]byte {
	var d [DiscriminatorSize]byte
	sum := sha256.Sum256([]byte("account:" + name))
	copy(d[:], sum[:DiscriminatorSize])
	return d
}

// Record is the persisted body of a post. The record id is the storage key
// and is not part of the encoded bytes.
type Record struct {
	Owner     identity.PublicKey `json:"owner"`
	CreatedAt int64              `json:"created_at"` // unix seconds
	Topic     string             `json:"topic"`
	Content   string             `json:"content"`
}

// Size returns the exact encoded size of the record
func (r Record) Size() int {
	return MinSize + len(r.Topic) + len(r.Content)
}

// RecordCodec encodes and decodes the record layout:
//
//	[Discriminator(8)][Owner(32)][CreatedAt(8)][TopicLen(4)][Topic][ContentLen(4)][Content]
type RecordCodec struct{}

// NewRecordCodec creates a new record codec instance
func NewRecordCodec() *RecordCodec {
	return &RecordCodec{}
}

// Encode serializes a record. Records whose fields exceed the layout
// maxima are refused, since Decode would reject their bytes.
func (c *RecordCodec) Encode(r Record) ([]byte, error) {
	if len(r.Topic) > MaxTopicLen {
		return nil, fault.New(fault.TopicTooLong, "topic is %d bytes, maximum is %d", len(r.Topic), MaxTopicLen)
	}
	if len(r.Content) > MaxContentLen {
		return nil, fault.New(fault.ContentTooLong, "content is %d bytes, maximum is %d", len(r.Content), MaxContentLen)
	}

	buf := make([]byte, r.Size())

	copy(buf[0:], Discriminator[:])
	copy(buf[OwnerOffset:], r.Owner[:])
	binary.LittleEndian.PutUint64(buf[CreatedAtOffset:], uint64(r.CreatedAt))
	binary.LittleEndian.PutUint32(buf[TopicPrefixOffset:], uint32(len(r.Topic)))
	copy(buf[TopicOffset:], r.Topic)

	contentPrefix := TopicOffset + len(r.Topic)
	binary.LittleEndian.PutUint32(buf[contentPrefix:], uint32(len(r.Content)))
	copy(buf[contentPrefix+lengthPrefixSize:], r.Content)

	return buf, nil
}

// Decode deserializes a record. On failure it returns the zero Record and a
// MalformedRecord error.
func (c *RecordCodec) Decode(data []byte) (Record, error) {
	if len(data) < MinSize {
		return Record{}, malformed("data too short for record: %d < %d", len(data), MinSize)
	}
	if [DiscriminatorSize]byte(data[:DiscriminatorSize]) != Discriminator {
		return Record{}, malformed("unexpected type tag %x", data[:DiscriminatorSize])
	}

	topicLen := binary.LittleEndian.Uint32(data[TopicPrefixOffset:])
	if topicLen > MaxTopicLen {
		return Record{}, malformed("topic length %d exceeds maximum %d", topicLen, MaxTopicLen)
	}
	contentPrefix := TopicOffset + int(topicLen)
	if len(data) < contentPrefix+lengthPrefixSize {
		return Record{}, malformed("data too short for topic of %d bytes", topicLen)
	}

	contentLen := binary.LittleEndian.Uint32(data[contentPrefix:])
	if contentLen > MaxContentLen {
		return Record{}, malformed("content length %d exceeds maximum %d", contentLen, MaxContentLen)
	}
	remaining := len(data) - contentPrefix - lengthPrefixSize
	if int(contentLen) != remaining {
		return Record{}, malformed("content length %d does not match remaining %d bytes", contentLen, remaining)
	}

	var r Record
	copy(r.Owner[:], data[OwnerOffset:CreatedAtOffset])
	r.CreatedAt = int64(binary.LittleEndian.Uint64(data[CreatedAtOffset:]))
	r.Topic = string(data[TopicOffset:contentPrefix])
	r.Content = string(data[contentPrefix+lengthPrefixSize:])
	return r, nil
}

// FieldOffset returns the byte offset of a field's value within encoded
// record bytes without decoding the record. Owner, created_at and topic sit
// at fixed offsets; the content offset depends on the topic length read from
// data.
func FieldOffset(data []byte, field Field) (int, error) {
	switch field {
	case FieldOwner:
		return OwnerOffset, nil
	case FieldCreatedAt:
		return CreatedAtOffset, nil
	case FieldTopic:
		return TopicOffset, nil
	case FieldContent:
		if len(data) < TopicOffset {
			return 0, malformed("data too short to locate content: %d bytes", len(data))
		}
		topicLen := binary.LittleEndian.Uint32(data[TopicPrefixOffset:])
		if topicLen > MaxTopicLen {
			return 0, malformed("topic length %d exceeds maximum %d", topicLen, MaxTopicLen)
		}
		offset := TopicOffset + int(topicLen) + lengthPrefixSize
		if len(data) < offset {
			return 0, malformed("data too short to locate content: %d < %d", len(data), offset)
		}
		return offset, nil
	default:
		return 0, fault.New(fault.InvalidFilter, "unknown field %q", field)
	}
}

// FieldLength returns the value of a variable-length field's length prefix
func FieldLength(data []byte, field Field) (int, error) {
	offset, err := FieldOffset(data, field)
	if err != nil {
		return 0, err
	}
	switch field {
	case FieldTopic, FieldContent:
		if len(data) < offset {
			return 0, malformed("data too short for %s length", field)
		}
		return int(binary.LittleEndian.Uint32(data[offset-lengthPrefixSize:])), nil
	default:
		return 0, fault.New(fault.InvalidFilter, "field %q has no length prefix", field)
	}
}

// MaxFieldLen returns the maximum value size of a field
func MaxFieldLen(field Field) (int, bool) {
	switch field {
	case FieldOwner:
		return identity.PublicKeySize, true
	case FieldCreatedAt:
		return 8, true
	case FieldTopic:
		return MaxTopicLen, true
	case FieldContent:
		return MaxContentLen, true
	}
	return 0, false
}

func malformed(format string, args ...any) error {
	return fault.New(fault.MalformedRecord, format, args...)
}
