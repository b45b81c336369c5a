// Package logging provides the replication core's structured,
// event-named log lines.
package logging

import (
	"fmt"
	"log"
	"os"
	"time"
)

// NodeLogger writes event-named log lines prefixed with this node's id.
type NodeLogger struct {
	nodeID int32
	logger *log.Logger
}

// New creates a NodeLogger writing to stdout.
func New(nodeID int32) *NodeLogger {
	logger := log.New(os.Stdout, fmt.Sprintf("[%d] ", nodeID), log.LstdFlags|log.Lmicroseconds)
	return &NodeLogger{nodeID: nodeID, logger: logger}
}

// Logger exposes the underlying *log.Logger for packages (like
// replconn) that just want event-named Printf calls.
func (l *NodeLogger) Logger() *log.Logger {
	return l.logger
}

// Reconciled logs the outcome of one reconciliation pass.
func (l *NodeLogger) Reconciled(leader int32, edgesAdded, translated, deduped, untouched int) {
	l.logger.Printf("RECONCILE: leader=%d edges_added=%d translated=%d deduped=%d untouched=%d at=%d",
		leader, edgesAdded, translated, deduped, untouched, time.Now().UnixMilli())
}

// PeerDialed logs an outbound replication connection attempt.
func (l *NodeLogger) PeerDialed(addr string, success bool) {
	status := "OK"
	if !success {
		status = "FAILED"
	}
	l.logger.Printf("PEER_DIAL: addr=%s status=%s at=%d", addr, status, time.Now().UnixMilli())
}

// DataExchanged logs a completed replication data exchange.
func (l *NodeLogger) DataExchanged(peerID string, plots int, inbound bool) {
	direction := "sent"
	if inbound {
		direction = "received"
	}
	l.logger.Printf("DATA_EXCHANGE: peer=%s plots=%d direction=%s at=%d",
		peerID, plots, direction, time.Now().UnixMilli())
}

// Error logs a failed operation.
func (l *NodeLogger) Error(operation string, err error) {
	l.logger.Printf("ERROR: operation=%s error=%s at=%d", operation, err.Error(), time.Now().UnixMilli())
}
