// Package discovery tracks which peer nodes are reachable using SWIM
// gossip membership, and turns that membership into replication
// addresses the connection layer can dial.
package discovery

import (
	"fmt"
	"log"
	"time"

	"github.com/hashicorp/memberlist"
)

// Config configures a new Peers discovery instance.
type Config struct {
	NodeID   string   // this node's id, also its memberlist name
	BindAddr string   // address to bind the gossip transport to
	BindPort int      // gossip port, distinct from the replication port
	ReplPort int       // port the replication connection listener runs on
	Seeds    []string // initial gossip peers to join
}

// Peers wraps a memberlist cluster and exposes only what the
// replication core needs: who else is out there, and how to reach them.
type Peers struct {
	ml       *memberlist.Memberlist
	nodeID   string
	replPort int
}

type events struct {
	nodeID string
	log    *log.Logger
}

func (e *events) NotifyJoin(n *memberlist.Node) {
	if n.Name == e.nodeID {
		return
	}
	e.log.Printf("PEER_JOIN: peer=%s addr=%s", n.Name, n.Address())
}

func (e *events) NotifyLeave(n *memberlist.Node) {
	e.log.Printf("PEER_LEAVE: peer=%s", n.Name)
}

func (e *events) NotifyUpdate(n *memberlist.Node) {
	e.log.Printf("PEER_UPDATE: peer=%s", n.Name)
}

// New creates a Peers instance bound to cfg.BindAddr/BindPort and joins
// any configured seeds. logger receives join/leave/update events.
func New(cfg Config, logger *log.Logger) (*Peers, error) {
	mlCfg := memberlist.DefaultLANConfig()
	mlCfg.Name = cfg.NodeID
	mlCfg.BindAddr = cfg.BindAddr
	mlCfg.BindPort = cfg.BindPort
	mlCfg.Events = &events{nodeID: cfg.NodeID, log: logger}

	ml, err := memberlist.Create(mlCfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: creating memberlist: %w", err)
	}

	p := &Peers{ml: ml, nodeID: cfg.NodeID, replPort: cfg.ReplPort}

	seeds := make([]string, 0, len(cfg.Seeds))
	for _, s := range cfg.Seeds {
		if s != cfg.NodeID {
			seeds = append(seeds, s)
		}
	}
	if len(seeds) > 0 {
		n, err := ml.Join(seeds)
		if err != nil {
			logger.Printf("PEER_JOIN_FAILED: seeds=%v error=%v", seeds, err)
		} else {
			logger.Printf("PEER_JOIN_OK: count=%d", n)
		}
	}

	return p, nil
}

// Live returns every known member except this node.
func (p *Peers) Live() []*memberlist.Node {
	all := p.ml.Members()
	live := make([]*memberlist.Node, 0, len(all))
	for _, m := range all {
		if m.Name != p.nodeID {
			live = append(live, m)
		}
	}
	return live
}

// ReplicationAddrs returns "host:port" strings for every live peer's
// replication listener, derived from its gossip address and this
// cluster's configured replication port.
func (p *Peers) ReplicationAddrs() []string {
	live := p.Live()
	addrs := make([]string, 0, len(live))
	for _, m := range live {
		addrs = append(addrs, fmt.Sprintf("%s:%d", m.Addr.String(), p.replPort))
	}
	return addrs
}

// Join attempts to add a node to the cluster by address.
func (p *Peers) Join(addr string) (int, error) {
	n, err := p.ml.Join([]string{addr})
	if err != nil {
		return 0, fmt.Errorf("discovery: joining %s: %w", addr, err)
	}
	return n, nil
}

// Leave gracefully removes this node from the cluster.
func (p *Peers) Leave() error {
	if err := p.ml.Leave(5 * time.Second); err != nil {
		return fmt.Errorf("discovery: leaving cluster: %w", err)
	}
	return nil
}

// Shutdown tears down the gossip transport without notifying peers.
func (p *Peers) Shutdown() error {
	if err := p.ml.Shutdown(); err != nil {
		return fmt.Errorf("discovery: shutting down: %w", err)
	}
	return nil
}

// Stats reports a snapshot suitable for logging or a status endpoint.
func (p *Peers) Stats() map[string]interface{} {
	return map[string]interface{}{
		"node_id":       p.nodeID,
		"total_members": p.ml.NumMembers(),
		"live_members":  len(p.Live()),
		"local_addr":    p.ml.LocalNode().Address(),
	}
}
