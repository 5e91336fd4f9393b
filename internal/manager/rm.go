// Package manager implements the replication manager (RM), the fleet-level
// membership aggregator above the global fault detector.
package manager

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"replicated-counter/internal/membership"
	"replicated-counter/internal/wire"
)

var rmMembers = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "replicated_counter",
	Subsystem: "rm",
	Name:      "members",
	Help:      "Members in the fleet view relayed by the GFD.",
}, []string{"rm"})

// Config holds the configuration for a replication manager.
type Config struct {
	ID   string
	Host string // bind host; defaults to os.Hostname()
	Port int    // 0 picks an ephemeral port
}

// RM mirrors the GFD's membership view. Each "add"/"remove" frame relayed by
// the GFD mutates the member list; losing the GFD link clears it entirely.
type RM struct {
	cfg    Config
	logger *zap.Logger

	ln       net.Listener
	hostport string
	members  *membership.List

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// New creates a cold replication manager.
func New(cfg Config, logger *zap.Logger) *RM {
	if cfg.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		cfg.Host = host
	}
	return &RM{
		cfg:     cfg,
		logger:  logger.Named("rm").With(zap.String("rm", cfg.ID)),
		members: membership.NewList(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listen socket and launches the accept loop.
func (m *RM) Start() error {
	ln, err := net.Listen("tcp", wire.Hostport(m.cfg.Host, m.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "rm: listen")
	}
	m.ln = ln
	m.hostport = wire.Hostport(m.cfg.Host, ln.Addr().(*net.TCPAddr).Port)
	m.running.Store(true)
	m.logger.Info("starting", zap.String("hostport", m.hostport))

	m.wg.Add(1)
	go m.listen()
	return nil
}

// Stop terminates the worker and releases every socket.
func (m *RM) Stop() {
	if !m.running.CompareAndSwap(true, false) {
		return
	}
	m.logger.Info("stopping rm")
	m.ln.Close()
	m.connMu.Lock()
	for conn := range m.conns {
		conn.Close()
	}
	m.connMu.Unlock()
	m.wg.Wait()
}

// IsRunning reports whether the accept loop is live.
func (m *RM) IsRunning() bool {
	return m.running.Load()
}

// Hostport returns the bound host:port. Valid after Start.
func (m *RM) Hostport() string {
	return m.hostport
}

// Members returns the current fleet view in arrival order.
func (m *RM) Members() []string {
	return m.members.All()
}

func (m *RM) listen() {
	defer m.wg.Done()
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}
		msg, err := wire.Recv(conn)
		if err != nil {
			conn.Close()
			continue
		}
		wire.Send(conn, m.cfg.ID, msg.Number, "rm", "")
		if msg.Data != "gfd" {
			conn.Close()
			continue
		}

		m.connMu.Lock()
		m.conns[conn] = struct{}{}
		m.connMu.Unlock()
		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			defer func() {
				m.connMu.Lock()
				delete(m.conns, conn)
				m.connMu.Unlock()
				conn.Close()
			}()
			m.handleGFD(conn, msg.ID)
		}()
	}
}

// handleGFD consumes relayed membership events from one GFD. The identifier
// field of each frame carries the member the event concerns. When the GFD
// link closes, the whole fleet view goes with it.
func (m *RM) handleGFD(conn net.Conn, gfdID string) {
	m.logger.Info("connection from gfd", zap.String("gfd", gfdID))
	for {
		msg, err := wire.Recv(conn)
		if err != nil {
			break
		}
		switch msg.Data {
		case "add":
			m.members.Add(msg.ID)
			rmMembers.WithLabelValues(m.cfg.ID).Set(float64(m.members.Len()))
			m.logger.Info("added member",
				zap.String("member", msg.ID),
				zap.Strings("members", m.members.All()))
		case "remove":
			m.members.Remove(msg.ID)
			rmMembers.WithLabelValues(m.cfg.ID).Set(float64(m.members.Len()))
			m.logger.Info("removed member",
				zap.String("member", msg.ID),
				zap.Strings("members", m.members.All()))
		}
	}

	m.logger.Info("connection closed by gfd", zap.String("gfd", gfdID))
	for _, member := range m.members.Clear() {
		m.logger.Info("removed member", zap.String("member", member))
	}
	rmMembers.WithLabelValues(m.cfg.ID).Set(0)
}
