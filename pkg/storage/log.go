package storage

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ssargent/tweetdb/pkg/identity"
)

// LogFileName is the active data file inside a log backend's directory
const LogFileName = "active.data"

// LogBackend is a Bitcask-style backend: every write appends a frame to a
// single log and an in-memory hash index points at the latest frame per id.
// Retiring an id appends a tombstone frame.
type LogBackend struct {
	config   LogConfig
	writer   *LogWriter
	reader   *LogReader
	index    *HashIndex
	dataFile string
	recovery *RecoveryResult
	mutex    sync.RWMutex
	isOpen   bool
}

// OpenLogBackend opens the log in config.DataDir, truncating a torn tail left
// by a crash, and rebuilds the index
func OpenLogBackend(config LogConfig) (*LogBackend, error) {
	if err := os.MkdirAll(config.DataDir, 0750); err != nil {
		return nil, err
	}

	b := &LogBackend{
		config:   config,
		dataFile: filepath.Join(config.DataDir, LogFileName),
		index:    NewHashIndex(),
	}

	recovery, err := recoverLogFile(b.dataFile)
	if err != nil {
		return nil, err
	}
	b.recovery = recovery

	writer, err := NewLogWriter(LogWriterConfig{
		FilePath:      b.dataFile,
		FsyncInterval: config.FsyncInterval,
		BufferSize:    64 * 1024,
	})
	if err != nil {
		return nil, err
	}
	b.writer = writer

	reader, err := NewLogReader(LogReaderConfig{FilePath: b.dataFile})
	if err != nil {
		writer.Close()
		return nil, err
	}
	b.reader = reader

	if err := b.index.BuildFromLog(reader); err != nil {
		reader.Close()
		writer.Close()
		return nil, err
	}

	b.isOpen = true
	return b, nil
}

// Recovery reports what crash recovery did when the backend was opened
func (b *LogBackend) Recovery() RecoveryResult {
	return *b.recovery
}

func (b *LogBackend) Load(id identity.PublicKey) ([]byte, SlotState, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if !b.isOpen {
		return nil, SlotEmpty, ErrClosed
	}

	entry, ok := b.index.Get(id[:])
	if !ok {
		if b.index.IsTombstoned(id[:]) {
			return nil, SlotRetired, nil
		}
		return nil, SlotEmpty, nil
	}

	frame, err := b.reader.ReadAt(entry.Offset, entry.Size)
	if err != nil {
		return nil, SlotEmpty, err
	}
	return append([]byte(nil), frame.Value...), SlotLive, nil
}

func (b *LogBackend) Store(id identity.PublicKey, data []byte) error {
	if len(data) == 0 {
		return ErrEmptyValue
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.isOpen {
		return ErrClosed
	}

	offset, size, err := b.writer.Put(id[:], data)
	if err != nil {
		return err
	}
	b.index.Put(id[:], IndexEntry{
		Offset:    offset,
		Size:      uint32(size),
		Timestamp: uint64(time.Now().UnixNano()),
	})
	return nil
}

func (b *LogBackend) Retire(id identity.PublicKey) error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.isOpen {
		return ErrClosed
	}

	if _, _, err := b.writer.Put(id[:], nil); err != nil {
		return err
	}
	b.index.Tombstone(id[:])
	return nil
}

func (b *LogBackend) LiveKeys() ([]identity.PublicKey, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if !b.isOpen {
		return nil, ErrClosed
	}

	raw := b.index.Keys()
	keys := make([]identity.PublicKey, 0, len(raw))
	for _, k := range raw {
		if len(k) != identity.PublicKeySize {
			continue
		}
		var id identity.PublicKey
		copy(id[:], k)
		keys = append(keys, id)
	}
	return keys, nil
}

func (b *LogBackend) RetiredKeys() ([]identity.PublicKey, error) {
	b.mutex.RLock()
	defer b.mutex.RUnlock()

	if !b.isOpen {
		return nil, ErrClosed
	}

	raw := b.index.TombstonedKeys()
	keys := make([]identity.PublicKey, 0, len(raw))
	for _, k := range raw {
		if len(k) != identity.PublicKeySize {
			continue
		}
		var id identity.PublicKey
		copy(id[:], k)
		keys = append(keys, id)
	}
	return keys, nil
}

func (b *LogBackend) Len() int {
	return b.index.Size()
}

// DataSize returns the size of the log file in bytes
func (b *LogBackend) DataSize() int64 {
	return b.writer.Size()
}

func (b *LogBackend) Close() error {
	b.mutex.Lock()
	defer b.mutex.Unlock()

	if !b.isOpen {
		return nil
	}
	b.isOpen = false

	werr := b.writer.Close()
	rerr := b.reader.Close()
	return errors.Join(werr, rerr)
}

// recoverLogFile validates every frame and truncates the file at the first
// frame that is torn or fails its checksum
func recoverLogFile(filePath string) (*RecoveryResult, error) {
	startTime := time.Now()

	fileInfo, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &RecoveryResult{RecoveryTime: time.Since(startTime)}, nil
		}
		return nil, err
	}

	result := &RecoveryResult{
		FileSizeBefore: fileInfo.Size(),
		FileSizeAfter:  fileInfo.Size(),
	}

	reader, err := NewLogReader(LogReaderConfig{FilePath: filePath})
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	var lastValidOffset int64
	corruptionFound := false
	for {
		_, err := reader.ReadNext()
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, ErrCorruption) {
			corruptionFound = true
			break
		}
		if err != nil {
			return nil, err
		}
		result.FramesValidated++
		lastValidOffset = reader.Offset()
	}

	if corruptionFound {
		if err := os.Truncate(filePath, lastValidOffset); err != nil {
			return nil, err
		}
		result.FileSizeAfter = lastValidOffset
		result.FramesTruncated = 1
	}

	result.RecoveryTime = time.Since(startTime)
	return result, nil
}
