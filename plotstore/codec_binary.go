package plotstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// ErrCorruptFile is returned by LoadBinary when a short read is found that
// is not a clean end-of-file (i.e. not exactly zero bytes).
var ErrCorruptFile = errors.New("plotstore: corrupt binary file (non-terminal short read)")

// recordSize is the on-disk layout: drone_id, node_id, timestamp (each a
// 32-bit signed int regardless of the host's native int width), latitude,
// longitude (each an IEEE-754 float32). Flags are never serialized.
const recordSize = 4 + 4 + 4 + 4 + 4

type wireRecord struct {
	DroneID   int32
	NodeID    int32
	Timestamp int32
	Latitude  float32
	Longitude float32
}

// WriteBinary writes every plot in the store, in current iteration order,
// as a concatenation of fixed 20-byte records in host byte order. It
// returns the count written.
func (s *Store) WriteBinary(path string) (int, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("create plot binary %s: %w", path, err)
	}
	defer f.Close()

	count, err := s.writeBinaryTo(f)
	if err != nil {
		return count, fmt.Errorf("write plot binary %s: %w", path, err)
	}
	return count, nil
}

// EncodeWire serializes every plot in the store into the same 20-byte
// fixed-record layout WriteBinary uses on disk, for sending as a
// replication payload over the wire.
func (s *Store) EncodeWire() ([]byte, error) {
	var buf bytes.Buffer
	if _, err := s.writeBinaryTo(&buf); err != nil {
		return nil, fmt.Errorf("plotstore: encoding wire payload: %w", err)
	}
	return buf.Bytes(), nil
}

func (s *Store) writeBinaryTo(w io.Writer) (int, error) {
	count := 0
	var writeErr error
	s.Iterate(func(it Iterator) bool {
		p := it.Plot()
		rec := wireRecord{
			DroneID:   p.DroneID,
			NodeID:    p.NodeID,
			Timestamp: int32(p.Timestamp),
			Latitude:  p.Latitude,
			Longitude: p.Longitude,
		}
		if err := binary.Write(w, binary.NativeEndian, rec); err != nil {
			writeErr = err
			return false
		}
		count++
		return true
	})
	return count, writeErr
}

// LoadBinary appends one plot per 20-byte record read from path. A final
// short read of exactly zero bytes is treated as clean end-of-file; any
// other short read is reported as ErrCorruptFile, and no further records
// after the corrupt one are loaded.
func (s *Store) LoadBinary(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open plot binary %s: %w", path, err)
	}
	defer f.Close()

	return s.loadBinaryFrom(f, 0)
}

// DecodeWireAppend decodes a replication payload produced by EncodeWire
// and appends its plots to the store, flagged NewlyReceived so the next
// reconciliation pass considers them for skew discovery.
func (s *Store) DecodeWireAppend(data []byte) (int, error) {
	return s.loadBinaryFrom(bytes.NewReader(data), NewlyReceived)
}

func (s *Store) loadBinaryFrom(r io.Reader, flags Flags) (int, error) {
	count := 0
	buf := make([]byte, recordSize)
	for {
		n, err := io.ReadFull(r, buf)
		if err == io.EOF && n == 0 {
			break
		}
		if err != nil {
			return count, ErrCorruptFile
		}
		var rec wireRecord
		if err := binary.Read(bytes.NewReader(buf), binary.NativeEndian, &rec); err != nil {
			return count, ErrCorruptFile
		}
		it := s.Append(rec.DroneID, rec.NodeID, int64(rec.Timestamp), rec.Latitude, rec.Longitude)
		if flags != 0 {
			it.Plot().SetFlag(flags)
		}
		count++
	}
	return count, nil
}
