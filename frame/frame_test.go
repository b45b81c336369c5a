package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestWrapThenExtractComplete(t *testing.T) {
	wrapped := Wrap([]byte("hello"), Rep)
	rest, payload, result, err := Extract(wrapped, Rep)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result != Complete {
		t.Fatalf("result = %v, want Complete", result)
	}
	if string(payload) != "hello" {
		t.Fatalf("payload = %q, want %q", payload, "hello")
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %q, want empty", rest)
	}
}

func TestExtractOpenerOnly(t *testing.T) {
	buf := append([]byte(nil), Ack.Open...)
	buf = append(buf, []byte("trailing")...)
	rest, payload, result, err := Extract(buf, Ack)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result != OpenerOnly {
		t.Fatalf("result = %v, want OpenerOnly", result)
	}
	if payload != nil {
		t.Fatalf("payload = %q, want nil", payload)
	}
	if string(rest) != "trailing" {
		t.Fatalf("rest = %q, want %q", rest, "trailing")
	}
}

func TestExtractNotReadyMissingCloser(t *testing.T) {
	buf := append([]byte(nil), Rep.Open...)
	buf = append(buf, []byte("partial data, no closer yet")...)
	rest, payload, result, err := Extract(buf, Rep)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result != NotReady {
		t.Fatalf("result = %v, want NotReady", result)
	}
	if payload != nil {
		t.Fatalf("payload should be nil while not ready")
	}
	if !bytes.Equal(rest, buf) {
		t.Fatalf("buffer should be untouched while not ready")
	}
}

func TestExtractEmptyBufferIsNotReady(t *testing.T) {
	_, _, result, err := Extract(nil, Rep)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result != NotReady {
		t.Fatalf("result = %v, want NotReady", result)
	}
}

func TestExtractShortPrefixIsNotReady(t *testing.T) {
	// Fewer bytes than the opener itself: can't yet tell if this is
	// the right tag or a protocol violation.
	_, _, result, err := Extract([]byte("<RE"), Rep)
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if result != NotReady {
		t.Fatalf("result = %v, want NotReady", result)
	}
}

func TestExtractWrongOpenerIsProtocolError(t *testing.T) {
	_, _, _, err := Extract([]byte("<SID>nope</SID>"), Rep)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestExtractShortBufferWrongPrefixIsProtocolError(t *testing.T) {
	// Fewer bytes than the opener, but not even a prefix of it: this can
	// never become Rep.Open no matter what arrives next.
	_, _, _, err := Extract([]byte("XY"), Rep)
	if !errors.Is(err, ErrProtocol) {
		t.Fatalf("err = %v, want ErrProtocol", err)
	}
}

func TestExtractConsumesOnlyOneFrame(t *testing.T) {
	buf := Wrap([]byte("first"), Rep)
	buf = append(buf, Wrap([]byte("second"), Rep)...)

	rest, payload, result, err := Extract(buf, Rep)
	if err != nil || result != Complete {
		t.Fatalf("Extract: result=%v err=%v", result, err)
	}
	if string(payload) != "first" {
		t.Fatalf("payload = %q, want %q", payload, "first")
	}

	rest, payload, result, err = Extract(rest, Rep)
	if err != nil || result != Complete {
		t.Fatalf("second Extract: result=%v err=%v", result, err)
	}
	if string(payload) != "second" {
		t.Fatalf("payload = %q, want %q", payload, "second")
	}
	if len(rest) != 0 {
		t.Fatalf("rest = %q, want empty", rest)
	}
}

func TestExtractEmptyPayload(t *testing.T) {
	wrapped := Wrap(nil, SID)
	_, payload, result, err := Extract(wrapped, SID)
	if err != nil || result != Complete {
		t.Fatalf("Extract: result=%v err=%v", result, err)
	}
	if len(payload) != 0 {
		t.Fatalf("payload = %q, want empty", payload)
	}
}
