package cryptobox

import (
	"bytes"
	"testing"
)

func testKey() []byte {
	return []byte("0123456789abcdef")
}

func TestSealOpenRoundTrip(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	plaintext := []byte("the quick brown fox jumps over the lazy dog")
	sealed, err := box.Seal(plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("Open() = %q, want %q", opened, plaintext)
	}
}

func TestSealProducesDistinctIVs(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	a, err := box.Seal([]byte("same message"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := box.Seal([]byte("same message"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Fatalf("two seals of the same plaintext produced identical ciphertext")
	}
}

func TestOpenRejectsShortInput(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := box.Open([]byte("short")); err != ErrShortCiphertext {
		t.Fatalf("Open(short) err = %v, want ErrShortCiphertext", err)
	}
}

func TestNewRejectsWrongKeySize(t *testing.T) {
	if _, err := New([]byte("too short")); err == nil {
		t.Fatalf("expected error for undersized key")
	}
}

func TestSealEmptyPlaintext(t *testing.T) {
	box, err := New(testKey())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sealed, err := box.Seal(nil)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	opened, err := box.Open(sealed)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if len(opened) != 0 {
		t.Fatalf("Open() = %q, want empty", opened)
	}
}
