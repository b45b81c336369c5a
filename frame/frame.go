// Package frame implements the tag-delimited wire framing the transport
// state machine reads and writes: every message on the wire is wrapped
// between an opening and (usually) a closing tag, e.g. "<REP>...</REP>".
package frame

import (
	"bytes"
	"errors"
)

// Tag pairs used by the connection state machine. ACK has no closer: a
// bare opener is itself the complete message.
var (
	SID  = Pair{Open: []byte("<SID>"), Close: []byte("</SID>")}
	Auth = Pair{Open: []byte("<AUTH>"), Close: []byte("</AUTH>")}
	Rep  = Pair{Open: []byte("<REP>"), Close: []byte("</REP>")}
	Ack  = Pair{Open: []byte("<ACK>"), Close: nil}
)

// Pair is an opening/closing tag pair. A nil Close means the message is
// the opener alone, with no payload and no separate closing tag.
type Pair struct {
	Open  []byte
	Close []byte
}

// ErrProtocol reports that the receive buffer's leading bytes do not
// begin with the expected opener. The wire framing requires every
// message to start at the head of the buffer; anything else means the
// two sides have fallen out of sync.
var ErrProtocol = errors.New("frame: buffer does not start with expected opener")

// Result classifies what Extract found in a buffer.
type Result int

const (
	// NotReady: the opener has not arrived yet, or the opener has
	// arrived but the closer has not. Wait for more bytes.
	NotReady Result = iota
	// OpenerOnly: a Pair with no Close tag was satisfied by the bare
	// opener. Payload is always empty.
	OpenerOnly
	// Complete: both opener and closer were found. Payload holds the
	// bytes between them.
	Complete
)

// Extract scans buf for p's opener at its head. If found and p.Close is
// nil, it consumes just the opener and reports OpenerOnly. If found and
// p.Close is non-nil, it looks for the closer later in buf; once found
// it consumes through the end of the closer and reports Complete with
// the bytes between the two tags. If the opener is missing or the
// closer hasn't arrived yet, buf is left untouched and NotReady is
// reported with a nil error (the bytes so far are not a protocol error,
// just incomplete). If buf is non-empty but does not start with the opener,
// Extract returns ErrProtocol.
//
// Extract returns the remaining buffer (with the consumed frame
// stripped off) alongside the result, so callers chain it without
// holding their own cursor.
func Extract(buf []byte, p Pair) (rest []byte, payload []byte, result Result, err error) {
	if len(buf) == 0 {
		return buf, nil, NotReady, nil
	}
	if !bytes.HasPrefix(buf, p.Open) {
		if len(buf) >= len(p.Open) || !bytes.HasPrefix(p.Open, buf) {
			return buf, nil, NotReady, ErrProtocol
		}
		// buf is a strict prefix of the opener: not enough bytes yet to
		// know whether this is the opener.
		return buf, nil, NotReady, nil
	}

	if p.Close == nil {
		return buf[len(p.Open):], nil, OpenerOnly, nil
	}

	closeIdx := bytes.Index(buf[len(p.Open):], p.Close)
	if closeIdx < 0 {
		return buf, nil, NotReady, nil
	}
	closeIdx += len(p.Open)

	payload = append([]byte(nil), buf[len(p.Open):closeIdx]...)
	rest = buf[closeIdx+len(p.Close):]
	return rest, payload, Complete, nil
}

// Wrap returns data surrounded by p's opener and closer (or just the
// opener, if p.Close is nil).
func Wrap(data []byte, p Pair) []byte {
	out := make([]byte, 0, len(p.Open)+len(data)+len(p.Close))
	out = append(out, p.Open...)
	out = append(out, data...)
	out = append(out, p.Close...)
	return out
}
