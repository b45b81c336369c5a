package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/dronemesh/replicator/cryptobox"
	"github.com/dronemesh/replicator/discovery"
	"github.com/dronemesh/replicator/internal/config"
	"github.com/dronemesh/replicator/internal/logging"
	"github.com/dronemesh/replicator/internal/metrics"
	"github.com/dronemesh/replicator/plotstore"
	"github.com/dronemesh/replicator/reconcile"
	"github.com/dronemesh/replicator/replconn"
	"github.com/dronemesh/replicator/skewgraph"
)

var startTime = time.Now()

func main() {
	var (
		nodeID            = flag.Int("id", 1, "This node's id")
		bindAddr          = flag.String("bind", "0.0.0.0", "Bind address")
		replPort          = flag.Int("repl-port", 9300, "TCP port the replication listener runs on")
		gossipPort        = flag.Int("gossip-port", 7946, "SWIM gossip port")
		seeds             = flag.String("seeds", "", "Comma-separated list of gossip seed addresses")
		keyHex            = flag.String("key", "", "Hex-encoded 16-byte pre-shared AES key (required)")
		reconcileSec      = flag.Int("reconcile-sec", 10, "Reconciliation pass interval in seconds")
		importCSV         = flag.String("import-csv", "", "Load plots from a CSV file on startup")
		importBin         = flag.String("import-bin", "", "Load plots from a binary dump file on startup")
		exportCSV         = flag.String("export-csv", "", "Write plots to a CSV file before exit")
		exportBin         = flag.String("export-bin", "", "Write plots to a binary dump file before exit")
		showUsage         = flag.Bool("help", false, "Show usage help")
	)
	flag.Parse()

	if *showUsage {
		printUsage()
		return
	}

	cfg := config.DefaultConfig()
	cfg.NodeID = int32(*nodeID)
	cfg.BindAddr = *bindAddr
	cfg.ReplPort = *replPort
	cfg.GossipPort = *gossipPort
	cfg.ReconcileInterval = time.Duration(*reconcileSec) * time.Second
	cfg.ImportCSVPath = *importCSV
	cfg.ImportBinaryPath = *importBin
	cfg.ExportCSVPath = *exportCSV
	cfg.ExportBinaryPath = *exportBin
	if *seeds != "" {
		cfg.Seeds = strings.Split(*seeds, ",")
	}

	nodeLog := logging.New(cfg.NodeID)

	key, err := parseKey(*keyHex)
	if err != nil {
		nodeLog.Error("parse_key", err)
		os.Exit(1)
	}
	box, err := cryptobox.New(key)
	if err != nil {
		nodeLog.Error("init_crypto", err)
		os.Exit(1)
	}

	sink, err := metrics.New(fmt.Sprintf("replicator-%d", cfg.NodeID))
	if err != nil {
		nodeLog.Error("init_metrics", err)
		os.Exit(1)
	}

	store := plotstore.New()
	if cfg.ImportCSVPath != "" {
		n, err := store.LoadCSV(cfg.ImportCSVPath)
		if err != nil {
			nodeLog.Error("import_csv", err)
		}
		fmt.Printf("Loaded %d plots from %s\n", n, cfg.ImportCSVPath)
	}
	if cfg.ImportBinaryPath != "" {
		n, err := store.LoadBinary(cfg.ImportBinaryPath)
		if err != nil {
			nodeLog.Error("import_binary", err)
		}
		fmt.Printf("Loaded %d plots from %s\n", n, cfg.ImportBinaryPath)
	}

	graph := skewgraph.New()

	peers, err := discovery.New(discovery.Config{
		NodeID:   strconv.Itoa(int(cfg.NodeID)),
		BindAddr: cfg.BindAddr,
		BindPort: cfg.GossipPort,
		ReplPort: cfg.ReplPort,
		Seeds:    cfg.Seeds,
	}, nodeLog.Logger())
	if err != nil {
		nodeLog.Error("init_discovery", err)
		os.Exit(1)
	}

	listener, err := net.Listen("tcp", fmt.Sprintf("%s:%d", cfg.BindAddr, cfg.ReplPort))
	if err != nil {
		nodeLog.Error("listen", err)
		os.Exit(1)
	}

	node := &replicationNode{
		cfg:   cfg,
		store: store,
		graph: graph,
		box:   box,
		log:   nodeLog,
		sink:  sink,
		peers: peers,
	}

	ctx, cancel := context.WithCancel(context.Background())

	go node.acceptLoop(ctx, listener)
	go node.reconcileLoop(ctx)
	go node.pushLoop(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fmt.Printf("=== Replication node %d ===\n", cfg.NodeID)
	fmt.Printf("Replication listener: %s:%d\n", cfg.BindAddr, cfg.ReplPort)
	fmt.Printf("Gossip: %s:%d seeds=%v\n", cfg.BindAddr, cfg.GossipPort, cfg.Seeds)
	fmt.Printf("Reconciliation interval: %v\n\n", cfg.ReconcileInterval)

	<-sigCh
	fmt.Println("\nShutdown signal received, stopping...")
	cancel()
	listener.Close()
	if err := peers.Leave(); err != nil {
		nodeLog.Error("leave_cluster", err)
	}
	peers.Shutdown()

	if cfg.ExportCSVPath != "" {
		n, err := store.WriteCSV(cfg.ExportCSVPath)
		if err != nil {
			nodeLog.Error("export_csv", err)
		}
		fmt.Printf("Wrote %d plots to %s\n", n, cfg.ExportCSVPath)
	}
	if cfg.ExportBinaryPath != "" {
		n, err := store.WriteBinary(cfg.ExportBinaryPath)
		if err != nil {
			nodeLog.Error("export_binary", err)
		}
		fmt.Printf("Wrote %d plots to %s\n", n, cfg.ExportBinaryPath)
	}
}

// replicationNode ties the plot store, skew graph, and connection layer
// together for the node's background loops.
type replicationNode struct {
	cfg   *config.NodeConfig
	store *plotstore.Store
	graph *skewgraph.Graph
	box   *cryptobox.Box
	log   *logging.NodeLogger
	sink  *metrics.Sink
	peers *discovery.Peers
}

// acceptLoop accepts inbound replication connections and absorbs each
// peer's pushed data into the store.
func (n *replicationNode) acceptLoop(ctx context.Context, listener net.Listener) {
	for {
		conn, err := listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return
			default:
				n.log.Error("accept", err)
				continue
			}
		}
		go n.serveConn(ctx, conn)
	}
}

func (n *replicationNode) serveConn(ctx context.Context, conn net.Conn) {
	defer conn.Close()

	rc := replconn.NewServerConn(conn, strconv.Itoa(int(n.cfg.NodeID)), n.box, replconn.SystemRng, n.log.Logger())

	deadline := time.Now().Add(n.cfg.HandshakeTimeout)
	conn.SetDeadline(deadline)

	err := rc.Run(ctx)
	n.sink.ConnectionOutcome("server", err == nil)
	if err != nil {
		n.log.Error("serve_conn", err)
		return
	}
	if !rc.IsDataReady() {
		return
	}

	data := rc.TakeInputData()
	received, err := n.store.DecodeWireAppend(data)
	if err != nil {
		n.log.Error("decode_wire", err)
		return
	}
	n.log.DataExchanged(rc.PeerID(), received, true)
	n.sink.PlotsStored(n.store.Size())
}

// pushLoop periodically offers this node's plots to every known peer.
func (n *replicationNode) pushLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, addr := range n.peers.ReplicationAddrs() {
				n.pushTo(ctx, addr)
			}
		}
	}
}

func (n *replicationNode) pushTo(ctx context.Context, addr string) {
	conn, err := net.DialTimeout("tcp", addr, n.cfg.DialTimeout)
	if err != nil {
		n.log.PeerDialed(addr, false)
		return
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(n.cfg.HandshakeTimeout))

	payload, err := n.store.EncodeWire()
	if err != nil {
		n.log.Error("encode_wire", err)
		return
	}

	rc := replconn.NewClientConn(conn, strconv.Itoa(int(n.cfg.NodeID)), n.box, replconn.SystemRng, n.log.Logger())
	rc.SetOutgoingData(payload)

	err = rc.Run(ctx)
	n.sink.ConnectionOutcome("client", err == nil)
	n.log.PeerDialed(addr, err == nil)
	if err != nil {
		n.log.Error("push_to_peer", err)
		return
	}
	n.log.DataExchanged(rc.PeerID(), n.store.Size(), false)
}

// reconcileLoop periodically runs the reconciliation pass over the
// store and the skew graph built from received data.
func (n *replicationNode) reconcileLoop(ctx context.Context) {
	ticker := time.NewTicker(n.cfg.ReconcileInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			stats := reconcile.Reconcile(n.store, n.graph)
			n.log.Reconciled(stats.Leader, stats.SkewEdgesAdded, stats.PlotsTranslated, stats.PlotsDeduped, stats.PlotsUntouched)
			n.sink.ReconcilePass(stats.SkewEdgesAdded, stats.PlotsTranslated, stats.PlotsDeduped, stats.PlotsUntouched)
			n.sink.ReconcileDuration(time.Since(start))
			n.sink.PlotsStored(n.store.Size())
			n.sink.SkewEdgesKnown(n.graph.Len())
		}
	}
}

func parseKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("main: -key is required (hex-encoded %d-byte AES key)", cryptobox.KeySize)
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("main: decoding -key: %w", err)
	}
	if len(key) != cryptobox.KeySize {
		return nil, fmt.Errorf("main: -key must decode to %d bytes, got %d", cryptobox.KeySize, len(key))
	}
	return key, nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `
=== Drone Plot Replication Node ===

USAGE:
  %s [options]

EXAMPLES:
  %s -id=1 -key=000102030405060708090a0b0c0d0e0f -repl-port=9300
  %s -id=2 -key=000102030405060708090a0b0c0d0e0f -seeds=10.0.0.1:7946

OPTIONS:
`, os.Args[0], os.Args[0], os.Args[0])

	flag.PrintDefaults()
}
