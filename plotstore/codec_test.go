package plotstore

import (
	"os"
	"path/filepath"
	"testing"
)

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.csv")

	s := New()
	s.Append(7, 2, 1000, 10.0, 20.0)
	s.Append(8, 3, -5, -1.5, 99.25)

	n, err := s.WriteCSV(path)
	if err != nil {
		t.Fatalf("WriteCSV: %v", err)
	}
	if n != 2 {
		t.Fatalf("WriteCSV count = %d, want 2", n)
	}

	loaded := New()
	n, err = loaded.LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadCSV count = %d, want 2", n)
	}
	if loaded.Size() != 2 {
		t.Fatalf("loaded.Size() = %d, want 2", loaded.Size())
	}
}

func TestCSVSkipsEmptyLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.csv")
	if err := os.WriteFile(path, []byte("1,2,3,4.0,5.0\n\n\n6,7,8,9.0,10.0\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New()
	n, err := s.LoadCSV(path)
	if err != nil {
		t.Fatalf("LoadCSV: %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadCSV count = %d, want 2", n)
	}
}

func TestCSVParseFailureAborts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.csv")
	if err := os.WriteFile(path, []byte("1,2,3,4.0,5.0\nnot,a,valid,line\n"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New()
	_, err := s.LoadCSV(path)
	if err == nil {
		t.Fatalf("expected LoadCSV to fail on malformed line")
	}
	var perr *ErrParse
	if !asErrParse(err, &perr) {
		t.Fatalf("expected *ErrParse, got %T: %v", err, err)
	}
}

func asErrParse(err error, target **ErrParse) bool {
	if pe, ok := err.(*ErrParse); ok {
		*target = pe
		return true
	}
	return false
}

func TestBinaryRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.bin")

	s := New()
	s.Append(7, 2, 1000, 10.0, 20.0)
	s.Append(-8, 3, -5, -1.5, 99.25)

	n, err := s.WriteBinary(path)
	if err != nil {
		t.Fatalf("WriteBinary: %v", err)
	}
	if n != 2 {
		t.Fatalf("WriteBinary count = %d, want 2", n)
	}

	loaded := New()
	n, err = loaded.LoadBinary(path)
	if err != nil {
		t.Fatalf("LoadBinary: %v", err)
	}
	if n != 2 {
		t.Fatalf("LoadBinary count = %d, want 2", n)
	}

	var original, roundTripped []Plot
	s.Iterate(func(it Iterator) bool { original = append(original, *it.Plot()); return true })
	loaded.Iterate(func(it Iterator) bool { roundTripped = append(roundTripped, *it.Plot()); return true })

	for i := range original {
		a, b := original[i], roundTripped[i]
		if a.DroneID != b.DroneID || a.NodeID != b.NodeID || a.Timestamp != b.Timestamp ||
			a.Latitude != b.Latitude || a.Longitude != b.Longitude {
			t.Fatalf("record %d mismatch: got %+v, want %+v", i, b, a)
		}
	}
}

func TestBinaryLoadCorruptShortRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plots.bin")
	// 20-byte record plus 7 trailing junk bytes: a non-terminal short read.
	buf := make([]byte, recordSize+7)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New()
	n, err := s.LoadBinary(path)
	if err == nil {
		t.Fatalf("expected LoadBinary to report corruption")
	}
	if n != 1 {
		t.Fatalf("LoadBinary count = %d, want 1 (one clean record before the short read)", n)
	}
}

func TestWireEncodeDecodeRoundTrip(t *testing.T) {
	s := New()
	s.Append(7, 2, 1000, 10.0, 20.0)
	s.Append(8, 3, -5, -1.5, 99.25)

	data, err := s.EncodeWire()
	if err != nil {
		t.Fatalf("EncodeWire: %v", err)
	}

	loaded := New()
	n, err := loaded.DecodeWireAppend(data)
	if err != nil {
		t.Fatalf("DecodeWireAppend: %v", err)
	}
	if n != 2 {
		t.Fatalf("DecodeWireAppend count = %d, want 2", n)
	}

	loaded.Iterate(func(it Iterator) bool {
		if !it.Plot().HasFlag(NewlyReceived) {
			t.Fatalf("decoded plot missing NewlyReceived flag: %+v", it.Plot())
		}
		return true
	})
}

func TestBinaryLoadCleanEOF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	s := New()
	n, err := s.LoadBinary(path)
	if err != nil {
		t.Fatalf("LoadBinary on empty file: %v", err)
	}
	if n != 0 {
		t.Fatalf("LoadBinary count = %d, want 0", n)
	}
}
