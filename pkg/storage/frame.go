package storage

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
	"time"
)

// FrameHeaderSize is CRC32(4) + KeySize(4) + ValueSize(4) + Timestamp(8)
const FrameHeaderSize = 20

// Frame is one entry of the append-only log. A frame with an empty value is
// a tombstone.
type Frame struct {
	CRC32     uint32 // over every encoded byte after the CRC field
	KeySize   uint32
	ValueSize uint32
	Timestamp uint64 // unix nanoseconds
	Key       []byte
	Value     []byte
}

// NewFrame creates a frame stamped with the current time
func NewFrame(key, value []byte) *Frame {
	return &Frame{
		KeySize:   uint32(len(key)),
		ValueSize: uint32(len(value)),
		Timestamp: uint64(time.Now().UnixNano()),
		Key:       key,
		Value:     value,
	}
}

// Size returns the encoded size of the frame
func (f *Frame) Size() int {
	return FrameHeaderSize + len(f.Key) + len(f.Value)
}

// IsTombstone reports whether the frame retires its key
func (f *Frame) IsTombstone() bool {
	return len(f.Value) == 0
}

// Validate checks the frame checksum
func (f *Frame) Validate() error {
	if sum := f.checksum(); f.CRC32 != sum {
		return fmt.Errorf("%w: crc32 %08x != %08x", ErrCorruption, f.CRC32, sum)
	}
	return nil
}

func (f *Frame) checksum() uint32 {
	var header [FrameHeaderSize - 4]byte
	binary.LittleEndian.PutUint32(header[0:], f.KeySize)
	binary.LittleEndian.PutUint32(header[4:], f.ValueSize)
	binary.LittleEndian.PutUint64(header[8:], f.Timestamp)

	crc := crc32.NewIEEE()
	crc.Write(header[:])
	crc.Write(f.Key)
	crc.Write(f.Value)
	return crc.Sum32()
}

// EncodeFrame serializes a frame, computing its checksum
// Format: [CRC32(4)][KeySize(4)][ValueSize(4)][Timestamp(8)][Key][Value]
func EncodeFrame(f *Frame) []byte {
	f.CRC32 = f.checksum()

	buf := make([]byte, f.Size())
	binary.LittleEndian.PutUint32(buf[0:], f.CRC32)
	binary.LittleEndian.PutUint32(buf[4:], f.KeySize)
	binary.LittleEndian.PutUint32(buf[8:], f.ValueSize)
	binary.LittleEndian.PutUint64(buf[12:], f.Timestamp)
	copy(buf[FrameHeaderSize:], f.Key)
	copy(buf[FrameHeaderSize+len(f.Key):], f.Value)
	return buf
}

// decodeFrameHeader reads the fixed header; key and value are left empty
func decodeFrameHeader(header []byte) (*Frame, error) {
	if len(header) < FrameHeaderSize {
		return nil, fmt.Errorf("%w: frame header is %d bytes", ErrCorruption, len(header))
	}
	return &Frame{
		CRC32:     binary.LittleEndian.Uint32(header[0:]),
		KeySize:   binary.LittleEndian.Uint32(header[4:]),
		ValueSize: binary.LittleEndian.Uint32(header[8:]),
		Timestamp: binary.LittleEndian.Uint64(header[12:]),
	}, nil
}

// DecodeFrame deserializes and validates one frame
func DecodeFrame(data []byte) (*Frame, error) {
	f, err := decodeFrameHeader(data)
	if err != nil {
		return nil, err
	}
	end := FrameHeaderSize + int(f.KeySize) + int(f.ValueSize)
	if len(data) < end {
		return nil, fmt.Errorf("%w: frame needs %d bytes, have %d", ErrCorruption, end, len(data))
	}
	f.Key = data[FrameHeaderSize : FrameHeaderSize+int(f.KeySize)]
	f.Value = data[FrameHeaderSize+int(f.KeySize) : end]
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return f, nil
}
