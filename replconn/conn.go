// Package replconn implements the authenticated transport state machine:
// a mutual-challenge handshake followed by a one-shot replication data
// exchange, running over a tag-framed byte stream.
package replconn

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/dronemesh/replicator/cryptobox"
	"github.com/dronemesh/replicator/frame"
	"github.com/google/uuid"
)

// ChallengeLen is the size, in bytes, of each side's random challenge.
const ChallengeLen = 64

// State names one phase of the connection's handshake/data lifecycle.
type State string

const (
	StateIdle       State = "IDLE"
	StateConnecting State = "CONNECTING"
	StateConnected  State = "CONNECTED"
	StateAuth2      State = "AUTH2"
	StateAuth3      State = "AUTH3"
	StateAuth4      State = "AUTH4"
	StateDataTx     State = "DATA_TX"
	StateDataRx     State = "DATA_RX"
	StateWaitAck    State = "WAIT_ACK"
	StateHasData    State = "HAS_DATA"
)

// ErrAuthFailed is returned by Run when the peer's challenge response
// does not match what was sent. The caller should close the connection.
var ErrAuthFailed = errors.New("replconn: peer failed challenge verification")

// Socket is the minimal byte-stream the state machine needs. A
// net.Conn satisfies it directly.
type Socket interface {
	io.Reader
	io.Writer
}

// Rng supplies the random challenge bytes used during authentication.
// Tests substitute a deterministic Rng; production code uses SystemRng.
type Rng interface {
	Challenge() ([]byte, error)
}

type systemRng struct{}

func (systemRng) Challenge() ([]byte, error) {
	buf := make([]byte, ChallengeLen)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return nil, fmt.Errorf("replconn: generating challenge: %w", err)
	}
	return buf, nil
}

// SystemRng draws challenge bytes from crypto/rand.
var SystemRng Rng = systemRng{}

type role int

const (
	roleClient role = iota
	roleServer
)

// Conn drives one connection through the handshake and a single
// replication data exchange. A Conn is built by NewClientConn or
// NewServerConn and driven to completion by Run.
type Conn struct {
	mu sync.Mutex

	sock Socket
	box  *cryptobox.Box
	rng  Rng
	log  *log.Logger

	role      role
	status    State
	localID   string
	peerID    string
	sessionID string // correlates this connection's log lines end to end

	recvBuf []byte
	outbuf  []byte // pre-framed REP payload queued by SetOutgoingData
	inbuf   []byte // REP payload received and awaiting TakeInputData
	dataReady bool

	ownChallenge []byte // most recent challenge this side generated
}

// NewClientConn builds a Conn that opens the handshake by announcing
// localID, then replicates payload to the peer once authenticated. Call
// SetOutgoingData before Run reaches StateDataTx.
func NewClientConn(sock Socket, localID string, box *cryptobox.Box, rng Rng, logger *log.Logger) *Conn {
	return &Conn{
		sock: sock, localID: localID, box: box, rng: rng, log: logger,
		role: roleClient, status: StateConnecting, sessionID: uuid.NewString(),
	}
}

// NewServerConn builds a Conn that waits for a client's SID announcement,
// completes the handshake, and receives one replication payload.
func NewServerConn(sock Socket, localID string, box *cryptobox.Box, rng Rng, logger *log.Logger) *Conn {
	return &Conn{
		sock: sock, localID: localID, box: box, rng: rng, log: logger,
		role: roleServer, status: StateConnected, sessionID: uuid.NewString(),
	}
}

// Status returns the connection's current state.
func (c *Conn) Status() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// PeerID returns the node id the other side announced, once known.
func (c *Conn) PeerID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peerID
}

// SetOutgoingData queues payload to be sent once the client reaches
// StateDataTx. Only meaningful for client connections.
func (c *Conn) SetOutgoingData(payload []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.outbuf = frame.Wrap(payload, frame.Rep)
}

// IsDataReady reports whether a replication payload has been received
// and is waiting to be claimed with TakeInputData.
func (c *Conn) IsDataReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dataReady
}

// TakeInputData returns the received replication payload and resets the
// connection to StateIdle so it can be retired by the caller.
func (c *Conn) TakeInputData() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	data := c.inbuf
	c.inbuf = nil
	c.dataReady = false
	c.status = StateIdle
	return data
}

// Run drives the connection through its handshake and the replication
// data exchange (send for the client, receive for the server), reading
// from sock as needed,
// until it reaches a terminal state (StateIdle once the client's ACK
// wait completes, or StateHasData once the server has a payload ready
// for TakeInputData), or an error occurs.
func (c *Conn) Run(ctx context.Context) error {
	readBuf := make([]byte, 4096)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		terminal, err := c.drain()
		if err != nil {
			return err
		}
		if terminal {
			return nil
		}

		n, err := c.sock.Read(readBuf)
		if n > 0 {
			c.mu.Lock()
			c.recvBuf = append(c.recvBuf, readBuf[:n]...)
			c.mu.Unlock()
		}
		if err != nil {
			if n > 0 {
				continue
			}
			return fmt.Errorf("replconn: read: %w", err)
		}
	}
}

// drain processes every complete frame currently buffered, returning
// true once a terminal state is reached, or false (with a nil error)
// once the buffer holds an incomplete frame and more bytes are needed.
func (c *Conn) drain() (bool, error) {
	for {
		status := c.Status()

		switch status {
		case StateIdle, StateHasData:
			return true, nil
		case StateConnecting:
			if err := c.beginHandshake(); err != nil {
				return false, err
			}
			continue
		}

		pair, ok := stateTags(status)
		if !ok {
			return false, fmt.Errorf("replconn: unhandled state %s", status)
		}

		c.mu.Lock()
		rest, payload, result, err := frame.Extract(c.recvBuf, pair)
		c.recvBuf = rest
		c.mu.Unlock()

		if err != nil {
			return false, fmt.Errorf("replconn: framing: %w", err)
		}
		if result == frame.NotReady {
			return false, nil
		}

		if err := c.dispatch(status, payload); err != nil {
			return false, err
		}
	}
}

// stateTags returns the tag pair used to extract a frame while in the
// given state. Idle, Connecting and HasData are handled outside the
// framing loop and are not represented here.
func stateTags(status State) (frame.Pair, bool) {
	switch status {
	case StateConnected, StateDataTx:
		return frame.SID, true
	case StateAuth2, StateAuth3, StateAuth4:
		return frame.Auth, true
	case StateDataRx:
		return frame.Rep, true
	case StateWaitAck:
		return frame.Ack, true
	default:
		return frame.Pair{}, false
	}
}

func (c *Conn) dispatch(status State, payload []byte) error {
	switch status {
	case StateConnected:
		return c.handleConnected(payload)
	case StateAuth2:
		return c.handleAuth2(payload)
	case StateAuth3:
		return c.handleAuth3(payload)
	case StateAuth4:
		return c.handleAuth4(payload)
	case StateDataTx:
		return c.handleDataTx(payload)
	case StateDataRx:
		return c.handleDataRx(payload)
	case StateWaitAck:
		return c.handleWaitAck(payload)
	default:
		return fmt.Errorf("replconn: no handler for state %s", status)
	}
}

func (c *Conn) send(data []byte) error {
	if _, err := c.sock.Write(data); err != nil {
		return fmt.Errorf("replconn: write: %w", err)
	}
	return nil
}

func (c *Conn) logf(format string, args ...interface{}) {
	if c.log != nil {
		c.log.Printf("session=%s "+format, append([]interface{}{c.sessionID}, args...)...)
	}
}

// beginHandshake is the client's first move: announce its node id.
func (c *Conn) beginHandshake() error {
	c.mu.Lock()
	localID := c.localID
	c.mu.Unlock()

	if err := c.send(frame.Wrap([]byte(localID), frame.SID)); err != nil {
		return err
	}
	c.logf("HANDSHAKE_START: local_id=%s", localID)

	c.mu.Lock()
	c.status = StateAuth2
	c.mu.Unlock()
	return nil
}

// handleConnected: server received the client's SID, responds with its
// own challenge.
func (c *Conn) handleConnected(payload []byte) error {
	challenge, err := c.rng.Challenge()
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.peerID = string(payload)
	c.ownChallenge = challenge
	c.mu.Unlock()

	if err := c.send(frame.Wrap(challenge, frame.Auth)); err != nil {
		return err
	}
	c.logf("SID_RECEIVED: peer_id=%s", string(payload))

	c.mu.Lock()
	c.status = StateAuth3
	c.mu.Unlock()
	return nil
}

// handleAuth2: client received the server's challenge. It generates its
// own challenge, proves it holds the shared key by sealing the server's
// challenge, and sends both.
func (c *Conn) handleAuth2(payload []byte) error {
	if len(payload) != ChallengeLen {
		return fmt.Errorf("replconn: auth2 challenge length = %d, want %d", len(payload), ChallengeLen)
	}

	myChallenge, err := c.rng.Challenge()
	if err != nil {
		return err
	}
	sealed, err := c.box.Seal(payload)
	if err != nil {
		return err
	}

	combined := make([]byte, 0, len(myChallenge)+len(sealed))
	combined = append(combined, myChallenge...)
	combined = append(combined, sealed...)

	c.mu.Lock()
	c.ownChallenge = myChallenge
	c.mu.Unlock()

	if err := c.send(frame.Wrap(combined, frame.Auth)); err != nil {
		return err
	}

	c.mu.Lock()
	c.status = StateAuth4
	c.mu.Unlock()
	return nil
}

// handleAuth3: server received the client's challenge plus its sealed
// proof. It verifies the proof, then proves its own key possession and
// announces its SID.
func (c *Conn) handleAuth3(payload []byte) error {
	if len(payload) <= ChallengeLen {
		return fmt.Errorf("replconn: auth3 payload too short: %d bytes", len(payload))
	}
	peerChallenge := payload[:ChallengeLen]
	sealedProof := payload[ChallengeLen:]

	proof, err := c.box.Open(sealedProof)
	if err != nil {
		return fmt.Errorf("replconn: opening auth3 proof: %w", err)
	}

	c.mu.Lock()
	expected := c.ownChallenge
	localID := c.localID
	c.mu.Unlock()

	if !bytes.Equal(proof, expected) {
		c.logf("AUTH_FAILED: stage=auth3")
		return ErrAuthFailed
	}

	sealed, err := c.box.Seal(peerChallenge)
	if err != nil {
		return err
	}
	if err := c.send(frame.Wrap(sealed, frame.Auth)); err != nil {
		return err
	}
	if err := c.send(frame.Wrap([]byte(localID), frame.SID)); err != nil {
		return err
	}
	c.logf("AUTH_OK: stage=auth3")

	c.mu.Lock()
	c.status = StateDataRx
	c.mu.Unlock()
	return nil
}

// handleAuth4: client received the server's sealed proof of its own
// challenge. Verifies it, then is ready to transmit.
func (c *Conn) handleAuth4(payload []byte) error {
	proof, err := c.box.Open(payload)
	if err != nil {
		return fmt.Errorf("replconn: opening auth4 proof: %w", err)
	}

	c.mu.Lock()
	expected := c.ownChallenge
	c.mu.Unlock()

	if !bytes.Equal(proof, expected) {
		c.logf("AUTH_FAILED: stage=auth4")
		return ErrAuthFailed
	}
	c.logf("AUTH_OK: stage=auth4")

	c.mu.Lock()
	c.status = StateDataTx
	c.mu.Unlock()
	return nil
}

// handleDataTx: client received the server's SID and sends its queued
// replication payload.
func (c *Conn) handleDataTx(payload []byte) error {
	c.mu.Lock()
	c.peerID = string(payload)
	outbuf := c.outbuf
	c.mu.Unlock()

	if err := c.send(outbuf); err != nil {
		return err
	}
	c.logf("DATA_SENT: peer_id=%s bytes=%d", string(payload), len(outbuf))

	c.mu.Lock()
	c.status = StateWaitAck
	c.mu.Unlock()
	return nil
}

// handleDataRx: server received the replication payload. Acknowledges
// it and surfaces it for TakeInputData.
func (c *Conn) handleDataRx(payload []byte) error {
	c.mu.Lock()
	c.inbuf = append([]byte(nil), payload...)
	c.dataReady = true
	peerID := c.peerID
	c.mu.Unlock()

	if err := c.send(frame.Wrap(nil, frame.Ack)); err != nil {
		return err
	}
	c.logf("DATA_RECEIVED: peer_id=%s bytes=%d", peerID, len(payload))

	c.mu.Lock()
	c.status = StateHasData
	c.mu.Unlock()
	return nil
}

// handleWaitAck: client received the server's ACK. The exchange is
// complete; the caller should disconnect.
func (c *Conn) handleWaitAck(_ []byte) error {
	c.logf("ACK_RECEIVED")
	c.mu.Lock()
	c.status = StateIdle
	c.mu.Unlock()
	return nil
}
