// Package replica implements a server node of the replicated counter.
//
// A replica binds one TCP port and speaks the framed wire protocol with four
// kinds of peers: clients sending requests, local fault detectors sending
// heartbeats, sibling replicas syncing state, and — in passive mode — a
// primary streaming checkpoints or backups receiving them. Every inbound
// connection opens with a handshake frame whose data field names the role;
// the accept loop hands the connection to the matching handler.
//
// Two replication modes:
//
//   - active: every replica executes every client request independently and
//     the client reconciles the duplicate responses.
//   - passive: one elected primary executes requests and ships periodic
//     checkpoints to its backups, which buffer incoming requests in a log
//     until they catch up.
package replica

import (
	"net"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"replicated-counter/internal/state"
	"replicated-counter/internal/wire"
)

// Config holds the configuration for a single replica.
type Config struct {
	ID       string
	Host     string        // bind host; defaults to os.Hostname()
	Port     int           // 0 picks an ephemeral port
	Peers    []string      // ordered peer host:ports; index positions are stable
	Interval time.Duration // checkpoint cadence when acting as passive primary
	Active   bool          // active replication instead of primary/backup
}

// Replica is a single server node. Construct with New, then Start/Stop.
//
// All shared state that participates in the replication invariants — the
// sum, the pending log, the request count, readiness, the primary flags and
// the per-peer connection table — sits behind one coarse mutex. Critical
// sections stay short and do no socket I/O, with one deliberate exception:
// the election sends (the vote reply and the send that commits an outcome)
// happen under the lock so a concurrent vote handler cannot re-enter the
// election mid-handshake.
type Replica struct {
	cfg    Config
	logger *zap.Logger

	ln       net.Listener
	hostport string

	mu            sync.Mutex
	sum           *state.State
	pending       []string // raw request values buffered while not ready to execute
	numRequests   int
	ready         bool
	primary       bool
	primaryIndex  int // index of the current primary in cfg.Peers, -1 when none
	peerConns     []net.Conn
	peerConnected []bool
	conns         map[net.Conn]struct{}

	backoff func() time.Duration // pre-election delay after losing the primary

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// Status is a point-in-time snapshot of the replica's shared state.
type Status struct {
	Sum         int  `json:"sum"`
	NumRequests int  `json:"num_requests"`
	Pending     int  `json:"pending"`
	Ready       bool `json:"ready"`
	Primary     bool `json:"primary"`
}

// New creates a cold replica. Nothing is bound until Start.
func New(cfg Config, logger *zap.Logger) *Replica {
	if cfg.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		cfg.Host = host
	}
	return &Replica{
		cfg:           cfg,
		logger:        logger.Named("server").With(zap.String("server", cfg.ID)),
		sum:           state.New(),
		primaryIndex:  -1,
		peerConns:     make([]net.Conn, len(cfg.Peers)),
		peerConnected: make([]bool, len(cfg.Peers)),
		conns:         make(map[net.Conn]struct{}),
		backoff:       electionBackoff,
	}
}

// Start binds the listen socket and launches the replica worker.
func (r *Replica) Start() error {
	ln, err := net.Listen("tcp", wire.Hostport(r.cfg.Host, r.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "replica: listen")
	}
	r.ln = ln
	r.hostport = wire.Hostport(r.cfg.Host, ln.Addr().(*net.TCPAddr).Port)
	r.done = make(chan struct{})
	r.running.Store(true)
	r.logger.Info("starting", zap.String("hostport", r.hostport))

	r.wg.Add(1)
	go r.run()
	return nil
}

// Stop terminates the worker and releases every socket.
func (r *Replica) Stop() {
	if !r.running.CompareAndSwap(true, false) {
		return
	}
	r.logger.Info("stopping server")
	close(r.done)
	r.ln.Close()

	r.mu.Lock()
	for i := range r.peerConns {
		if r.peerConns[i] != nil {
			r.peerConns[i].Close()
			r.peerConns[i] = nil
			r.peerConnected[i] = false
		}
	}
	for conn := range r.conns {
		conn.Close()
	}
	r.mu.Unlock()

	r.wg.Wait()
}

// IsRunning reports whether the worker is live.
func (r *Replica) IsRunning() bool {
	return r.running.Load()
}

// Hostport returns the bound host:port. Valid after Start.
func (r *Replica) Hostport() string {
	return r.hostport
}

// IsActive reports whether the replica runs active replication.
func (r *Replica) IsActive() bool {
	return r.cfg.Active
}

// IsPrimary reports whether this replica is the passive-mode primary.
func (r *Replica) IsPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primary
}

// Status snapshots the replica state for tests and the admin surface.
func (r *Replica) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Status{
		Sum:         r.sum.Sum(),
		NumRequests: r.numRequests,
		Pending:     len(r.pending),
		Ready:       r.ready,
		Primary:     r.primary,
	}
}

// run connects the peer group, settles the initial role, then accepts
// connections until the listener is closed. Unconnected peers are retried
// before every accept.
func (r *Replica) run() {
	defer r.wg.Done()

	for i := range r.cfg.Peers {
		r.connectPeer(i)
	}
	if r.cfg.Active {
		r.mu.Lock()
		r.ready = true
		r.mu.Unlock()
	} else {
		r.elect()
	}

	for {
		for i := range r.cfg.Peers {
			r.connectPeer(i)
		}
		conn, err := r.ln.Accept()
		if err != nil {
			return
		}
		r.track(conn)
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			defer r.untrack(conn)
			r.serve(conn)
		}()
	}
}

// connectPeer dials peer i and performs the "server" handshake. The reply
// carries the peer's request count and serialised state; a peer that is
// ahead donates its state, and the local pending log is replayed on top of
// the adopted snapshot.
func (r *Replica) connectPeer(i int) {
	r.mu.Lock()
	connected := r.peerConnected[i]
	r.mu.Unlock()
	if connected {
		return
	}

	conn, err := net.Dial("tcp", r.cfg.Peers[i])
	if err != nil {
		return
	}
	if err := wire.Send(conn, r.cfg.ID, 0, "server", ""); err != nil {
		conn.Close()
		return
	}
	msg, err := wire.Recv(conn)
	if err != nil {
		conn.Close()
		return
	}
	r.logger.Info("connected to server", zap.String("peer", msg.ID))

	r.mu.Lock()
	if !r.running.Load() {
		r.mu.Unlock()
		conn.Close()
		return
	}
	if msg.Number > r.numRequests {
		if snapshot, perr := state.Parse(msg.State); perr == nil {
			r.logger.Info("updating state",
				zap.String("state", msg.State),
				zap.Int("num_requests", msg.Number))
			r.sum = snapshot
			r.numRequests = msg.Number
			if len(r.pending) > 0 {
				r.logger.Info("clearing log", zap.Int("buffered", len(r.pending)))
			}
			r.replayPendingLocked()
		}
	}
	r.ready = true
	r.peerConns[i] = conn
	r.peerConnected[i] = true
	r.mu.Unlock()
}

// replayPendingLocked applies every buffered request to the sum in arrival
// order and clears the log. Caller holds r.mu.
func (r *Replica) replayPendingLocked() {
	for _, raw := range r.pending {
		value, err := strconv.Atoi(raw)
		if err != nil {
			continue
		}
		r.sum.Update(value)
	}
	r.pending = nil
}

// serve reads the handshake frame and dispatches the connection to its
// role-specific loop. Frames that do not claim the connection ("server"
// sync probes, election votes) are answered in place and the loop keeps
// reading.
func (r *Replica) serve(conn net.Conn) {
	msg, err := wire.Recv(conn)
	if err != nil {
		return
	}
	for {
		switch {
		case msg.Data == "lfd":
			wire.Send(conn, r.cfg.ID, msg.Number, "server", "")
			r.echoHeartbeats(conn, msg.ID)
			return
		case msg.Data == "client":
			wire.Send(conn, r.cfg.ID, msg.Number, "server", "")
			r.serveClient(conn, msg.ID)
			return
		case msg.Data == "server":
			r.mu.Lock()
			count, snapshot := r.numRequests, r.sum.String()
			r.mu.Unlock()
			if wire.Send(conn, r.cfg.ID, count, "server", snapshot) != nil {
				return
			}
		case !r.cfg.Active && msg.Data == "elect":
			r.vote(conn, msg.Number)
		case !r.cfg.Active && strings.HasPrefix(msg.Data, "primary"):
			r.followPrimary(conn, msg)
			return
		case !r.cfg.Active && msg.Data == "backup":
			if r.IsPrimary() {
				r.sendCheckpoints(conn, msg.ID)
				return
			}
		}
		msg, err = wire.Recv(conn)
		if err != nil {
			return
		}
	}
}

func (r *Replica) track(conn net.Conn) {
	r.mu.Lock()
	r.conns[conn] = struct{}{}
	r.mu.Unlock()
}

func (r *Replica) untrack(conn net.Conn) {
	r.mu.Lock()
	delete(r.conns, conn)
	r.mu.Unlock()
	conn.Close()
}

func (r *Replica) peerIndex(hostport string) int {
	for i, hp := range r.cfg.Peers {
		if hp == hostport {
			return i
		}
	}
	return -1
}
