package storage

import (
	"errors"
	"time"
)

// IndexEntry represents the location of a frame in the log
type IndexEntry struct {
	Offset    int64  // Byte offset within the file
	Size      uint32 // Size of the frame in bytes
	Timestamp uint64 // Frame timestamp
}

// LogWriterConfig holds configuration for the log writer
type LogWriterConfig struct {
	FilePath      string        // Path to the active data file
	FsyncInterval time.Duration // How often to fsync (0 = every write)
	BufferSize    int           // Write buffer size
}

// LogReaderConfig holds configuration for the log reader
type LogReaderConfig struct {
	FilePath    string // Path to the data file
	StartOffset int64  // Offset to start reading from
}

// LogConfig holds configuration for the log backend
type LogConfig struct {
	DataDir       string        // Directory for data files
	FsyncInterval time.Duration // Fsync interval for durability
}

// RecoveryResult describes what opening a log backend found on disk
type RecoveryResult struct {
	FramesValidated int64
	FramesTruncated int64
	FileSizeBefore  int64
	FileSizeAfter   int64
	RecoveryTime    time.Duration
}

// ErrCorruption marks a frame that failed to read or verify
var ErrCorruption = errors.New("storage: data corruption detected")
