// Package snapshot exports a record store to a single portable file and
// imports it back.
//
// File layout:
//
//	[magic "TWDBSNAP"(8)][version(1)][zstd(CBOR document)][blake3 keyed digest(32)]
//
// The digest covers the compressed body. The CBOR document holds each
// record's id and its encoded bytes in the record layout, so a snapshot
// carries exactly what the store persists. It also lists the ids of deleted
// records, which stay unusable in the store a snapshot is imported into.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/blake3"

	"github.com/ssargent/tweetdb/pkg/codec"
	"github.com/ssargent/tweetdb/pkg/fault"
	"github.com/ssargent/tweetdb/pkg/identity"
	"github.com/ssargent/tweetdb/pkg/store"
)

// Version is the snapshot format version written by Export
const Version = 1

const (
	magic      = "TWDBSNAP"
	digestSize = 32
)

var (
	ErrBadMagic    = errors.New("snapshot: not a tweetdb snapshot")
	ErrBadVersion  = errors.New("snapshot: unsupported version")
	ErrBadDigest   = errors.New("snapshot: digest mismatch")
	ErrBadDocument = errors.New("snapshot: invalid document")
)

// digestKey domain-separates snapshot digests from any other blake3 use
var digestKey = blake3.Sum256([]byte("tweetdb snapshot digest v1"))

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("snapshot: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("snapshot: CBOR decoder initialization failed: " + err.Error())
	}
}

type document struct {
	Version   int      `cbor:"version"`
	CreatedAt int64    `cbor:"created_at"`
	Records   []entry  `cbor:"records"`
	Retired   [][]byte `cbor:"retired,omitempty"`
}

type entry struct {
	ID   []byte `cbor:"id"`
	Data []byte `cbor:"data"`
}

// Info describes a snapshot that was written or read
type Info struct {
	Version   int
	CreatedAt time.Time
	Records   int
	Retired   int
}

func (d document) info() Info {
	return Info{
		Version:   d.Version,
		CreatedAt: time.Unix(d.CreatedAt, 0).UTC(),
		Records:   len(d.Records),
		Retired:   len(d.Retired),
	}
}

// Export writes every record in s, and the ids of deleted records, to w
func Export(w io.Writer, s *store.Store, now time.Time) (Info, error) {
	it, err := s.Scan()
	if err != nil {
		return Info{}, err
	}
	defer it.Close()

	rc := codec.NewRecordCodec()
	doc := document{Version: Version, CreatedAt: now.Unix()}
	for it.Next() {
		r := it.Record()
		data, err := rc.Encode(r.Record)
		if err != nil {
			return Info{}, fmt.Errorf("encode %s: %w", r.ID, err)
		}
		doc.Records = append(doc.Records, entry{ID: r.ID.Bytes(), Data: data})
	}
	if err := it.Err(); err != nil {
		return Info{}, err
	}

	retired, err := s.RetiredKeys()
	if err != nil {
		return Info{}, fmt.Errorf("list retired ids: %w", err)
	}
	for _, id := range retired {
		doc.Retired = append(doc.Retired, id.Bytes())
	}
	slices.SortFunc(doc.Retired, bytes.Compare)

	raw, err := encode(doc)
	if err != nil {
		return Info{}, err
	}
	if _, err := w.Write(raw); err != nil {
		return Info{}, err
	}
	return doc.info(), nil
}

func encode(doc document) ([]byte, error) {
	body, err := encMode.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, err
	}
	compressed := enc.EncodeAll(body, nil)
	enc.Close()

	var buf bytes.Buffer
	buf.WriteString(magic)
	buf.WriteByte(Version)
	buf.Write(compressed)
	buf.Write(digest(compressed))
	return buf.Bytes(), nil
}

// Import verifies a snapshot read from r and restores it into s.
//
// Nothing is written to s unless the whole snapshot can be applied: every
// record is decoded, and every id, live or retired, is checked
// against the document and against s first. An id repeated in the document
// or already used in s fails the import with DuplicateKey.
func Import(r io.Reader, s *store.Store) (Info, error) {
	raw, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}

	doc, err := decode(raw)
	if err != nil {
		return Info{}, err
	}

	seen := make(map[identity.PublicKey]struct{}, len(doc.Records)+len(doc.Retired))
	claim := func(b []byte, what string, i int) (identity.PublicKey, error) {
		var id identity.PublicKey
		if len(b) != identity.PublicKeySize {
			return id, fmt.Errorf("%w: %s %d has a %d-byte id", ErrBadDocument, what, i, len(b))
		}
		copy(id[:], b)
		if _, dup := seen[id]; dup {
			return id, fault.New(fault.DuplicateKey, "snapshot lists id %s more than once", id)
		}
		seen[id] = struct{}{}
		if err := s.CheckUnused(id); err != nil {
			return id, fmt.Errorf("restore %s: %w", id, err)
		}
		return id, nil
	}

	rc := codec.NewRecordCodec()
	records := make([]store.Record, 0, len(doc.Records))
	for i, e := range doc.Records {
		id, err := claim(e.ID, "record", i)
		if err != nil {
			return Info{}, err
		}
		decoded, err := rc.Decode(e.Data)
		if err != nil {
			return Info{}, fmt.Errorf("record %d: %w", i, err)
		}
		records = append(records, store.Record{ID: id, Record: decoded})
	}

	retired := make([]identity.PublicKey, 0, len(doc.Retired))
	for i, b := range doc.Retired {
		id, err := claim(b, "retired id", i)
		if err != nil {
			return Info{}, err
		}
		retired = append(retired, id)
	}

	for _, rec := range records {
		if err := s.Restore(rec); err != nil {
			return Info{}, fmt.Errorf("restore %s: %w", rec.ID, err)
		}
	}
	for _, id := range retired {
		if err := s.RestoreRetired(id); err != nil {
			return Info{}, fmt.Errorf("retire %s: %w", id, err)
		}
	}

	return doc.info(), nil
}

func decode(raw []byte) (document, error) {
	if len(raw) < len(magic)+1+digestSize || string(raw[:len(magic)]) != magic {
		return document{}, ErrBadMagic
	}
	if v := raw[len(magic)]; v != Version {
		return document{}, fmt.Errorf("%w: %d", ErrBadVersion, v)
	}

	compressed := raw[len(magic)+1 : len(raw)-digestSize]
	if !bytes.Equal(digest(compressed), raw[len(raw)-digestSize:]) {
		return document{}, ErrBadDigest
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return document{}, err
	}
	defer dec.Close()

	body, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		return document{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}

	var doc document
	if err := decMode.Unmarshal(body, &doc); err != nil {
		return document{}, fmt.Errorf("%w: %v", ErrBadDocument, err)
	}
	if doc.Version != Version {
		return document{}, fmt.Errorf("%w: document version %d", ErrBadVersion, doc.Version)
	}
	return doc, nil
}

func digest(data []byte) []byte {
	h, err := blake3.NewKeyed(digestKey[:])
	if err != nil {
		panic("snapshot: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	h.Write(data)
	return h.Sum(nil)
}

// ExportFile writes a snapshot to path, replacing it atomically
func ExportFile(path string, s *store.Store, now time.Time) (Info, error) {
	var buf bytes.Buffer
	info, err := Export(&buf, s, now)
	if err != nil {
		return Info{}, err
	}
	if err := writeFileAtomic(path, buf.Bytes()); err != nil {
		return Info{}, err
	}
	return info, nil
}

// ImportFile restores the snapshot at path into s
func ImportFile(path string, s *store.Store) (Info, error) {
	f, err := os.Open(path)
	if err != nil {
		return Info{}, err
	}
	defer f.Close()
	return Import(f, s)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(tmp)
		return err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	return os.Rename(tmp, path)
}
