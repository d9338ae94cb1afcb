// Package codec provides the binary layout of a tweetdb record.
//
// The layout is a compatibility contract: remote readers filter stored
// records by comparing raw bytes at known offsets, so field positions must
// never move.
//
// # Record Format
//
//	Offset            Size        Field
//	0                 8           type tag (Discriminator)
//	8                 32          owner public key
//	40                8           created_at, unix seconds (little-endian int64)
//	48                4           topic length (little-endian uint32)
//	52                len(topic)  topic bytes
//	52+len(topic)     4           content length (little-endian uint32)
//	56+len(topic)     len(content) content bytes
//
// There is no padding: an encoded record is exactly 56 + len(topic) +
// len(content) bytes. Topic is at most 50 bytes and content at most 280.
//
// # Usage
//
//	c := codec.NewRecordCodec()
//
//	encoded, err := c.Encode(codec.Record{Owner: owner, CreatedAt: now, Topic: "solana", Content: "gm"})
//	if err != nil {
//	    return err
//	}
//
//	record, err := c.Decode(encoded)
//	if err != nil {
//	    return err // fault.MalformedRecord
//	}
//
// FieldOffset locates a field inside encoded bytes without a full decode,
// which is what byte-level scan filters use.
//
// # Error Handling
//
// Decode fails with a fault.MalformedRecord error when the type tag is wrong,
// when a declared length exceeds its field maximum, or when the declared
// lengths do not account for exactly the bytes present. A failed decode never
// returns a partially populated Record.
package codec
