package storage

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
)

// frames hold one id and one encoded record; anything larger is a damaged header
const maxFrameBody = 1 << 16

// LogReader provides sequential and positional access to frames in a log file
type LogReader struct {
	file   *os.File
	reader *bufio.Reader
	offset int64
	config LogReaderConfig
}

// NewLogReader creates a new log reader for the specified file
func NewLogReader(config LogReaderConfig) (*LogReader, error) {
	file, err := os.Open(config.FilePath)
	if err != nil {
		return nil, err
	}

	if config.StartOffset > 0 {
		if _, err := file.Seek(config.StartOffset, io.SeekStart); err != nil {
			file.Close()
			return nil, err
		}
	}

	return &LogReader{
		file:   file,
		reader: bufio.NewReader(file),
		offset: config.StartOffset,
		config: config,
	}, nil
}

// ReadNext reads the frame at the current offset. It returns io.EOF at a
// clean end of file and ErrCorruption for a torn or invalid frame.
func (r *LogReader) ReadNext() (*Frame, error) {
	header := make([]byte, FrameHeaderSize)
	n, err := io.ReadFull(r.reader, header)
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: torn header at offset %d", ErrCorruption, r.offset)
		}
		return nil, err
	}

	frame, err := decodeFrameHeader(header)
	if err != nil {
		return nil, err
	}

	bodySize := int64(frame.KeySize) + int64(frame.ValueSize)
	if bodySize > maxFrameBody {
		return nil, fmt.Errorf("%w: frame at offset %d declares %d bytes", ErrCorruption, r.offset, bodySize)
	}

	body := make([]byte, bodySize)
	m, err := io.ReadFull(r.reader, body)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("%w: torn frame at offset %d", ErrCorruption, r.offset)
		}
		return nil, err
	}

	frame.Key = body[:frame.KeySize]
	frame.Value = body[frame.KeySize:]
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	r.offset += int64(n + m)
	return frame, nil
}

// ReadAt reads the frame of the given size at a specific offset without
// moving the sequential cursor
func (r *LogReader) ReadAt(offset int64, size uint32) (*Frame, error) {
	buf := make([]byte, size)
	if _, err := r.file.ReadAt(buf, offset); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: short read at offset %d", ErrCorruption, offset)
		}
		return nil, err
	}
	return DecodeFrame(buf)
}

// Seek sets the read offset
func (r *LogReader) Seek(offset int64) error {
	if _, err := r.file.Seek(offset, io.SeekStart); err != nil {
		return err
	}

	r.reader.Reset(r.file)
	r.offset = offset
	return nil
}

// Offset returns the current read offset
func (r *LogReader) Offset() int64 {
	return r.offset
}

// Close closes the log reader
func (r *LogReader) Close() error {
	return r.file.Close()
}
