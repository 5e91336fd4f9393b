package detect

import (
	"net"
	"os"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"replicated-counter/internal/membership"
	"replicated-counter/internal/wire"
)

// GFDConfig holds the configuration for a global fault detector.
type GFDConfig struct {
	ID   string
	Host string // bind host; defaults to os.Hostname()
	Port int    // 0 picks an ephemeral port
	RM   string // hostport of the replication manager; empty disables relaying
}

// GFD aggregates membership reports from local fault detectors.
//
// Every "add"/"remove" event mutates the member list and is relayed to the
// replication manager; the RM connection is dialed lazily and redialed on
// the next event after a failure. An LFD whose link closes takes its member
// down with it.
type GFD struct {
	cfg    GFDConfig
	logger *zap.Logger

	ln       net.Listener
	hostport string
	members  *membership.List

	rmMu   sync.Mutex
	rmConn net.Conn

	connMu sync.Mutex
	conns  map[net.Conn]struct{}

	running atomic.Bool
	wg      sync.WaitGroup
}

// NewGFD creates a cold detector.
func NewGFD(cfg GFDConfig, logger *zap.Logger) *GFD {
	if cfg.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}
		cfg.Host = host
	}
	return &GFD{
		cfg:     cfg,
		logger:  logger.Named("gfd").With(zap.String("gfd", cfg.ID)),
		members: membership.NewList(),
		conns:   make(map[net.Conn]struct{}),
	}
}

// Start binds the listen socket and launches the accept loop.
func (g *GFD) Start() error {
	ln, err := net.Listen("tcp", wire.Hostport(g.cfg.Host, g.cfg.Port))
	if err != nil {
		return errors.Wrap(err, "gfd: listen")
	}
	g.ln = ln
	g.hostport = wire.Hostport(g.cfg.Host, ln.Addr().(*net.TCPAddr).Port)
	g.running.Store(true)
	g.logger.Info("starting", zap.String("hostport", g.hostport))

	g.wg.Add(1)
	go g.listen()
	return nil
}

// Stop terminates the worker and releases every socket.
func (g *GFD) Stop() {
	if !g.running.CompareAndSwap(true, false) {
		return
	}
	g.logger.Info("stopping gfd")
	g.ln.Close()
	g.connMu.Lock()
	for conn := range g.conns {
		conn.Close()
	}
	g.connMu.Unlock()
	g.rmMu.Lock()
	if g.rmConn != nil {
		g.rmConn.Close()
		g.rmConn = nil
	}
	g.rmMu.Unlock()
	g.wg.Wait()
}

// IsRunning reports whether the accept loop is live.
func (g *GFD) IsRunning() bool {
	return g.running.Load()
}

// Hostport returns the bound host:port. Valid after Start.
func (g *GFD) Hostport() string {
	return g.hostport
}

// Members returns the current membership view in arrival order.
func (g *GFD) Members() []string {
	return g.members.All()
}

func (g *GFD) listen() {
	defer g.wg.Done()
	for {
		conn, err := g.ln.Accept()
		if err != nil {
			return
		}
		msg, err := wire.Recv(conn)
		if err != nil {
			conn.Close()
			continue
		}
		wire.Send(conn, g.cfg.ID, msg.Number, "gfd", "")
		if msg.Data != "lfd" {
			conn.Close()
			continue
		}

		g.connMu.Lock()
		g.conns[conn] = struct{}{}
		g.connMu.Unlock()
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			defer func() {
				g.connMu.Lock()
				delete(g.conns, conn)
				g.connMu.Unlock()
				conn.Close()
			}()
			g.handleLFD(conn, msg.ID)
		}()
	}
}

// handleLFD consumes membership events from one LFD until its link closes.
// Link close drops the member as if a final "remove" had arrived.
func (g *GFD) handleLFD(conn net.Conn, lfdID string) {
	g.logger.Info("connection from lfd", zap.String("lfd", lfdID))
	for {
		msg, err := wire.Recv(conn)
		if err != nil {
			break
		}
		switch msg.Data {
		case "add":
			g.members.Add(lfdID)
			gfdMembers.WithLabelValues(g.cfg.ID).Set(float64(g.members.Len()))
			g.logger.Info("added member",
				zap.String("member", lfdID),
				zap.Strings("members", g.members.All()))
			g.relay(lfdID, "add")
		case "remove":
			g.members.Remove(lfdID)
			gfdMembers.WithLabelValues(g.cfg.ID).Set(float64(g.members.Len()))
			g.logger.Info("removed member",
				zap.String("member", lfdID),
				zap.Strings("members", g.members.All()))
			g.relay(lfdID, "remove")
		}
	}

	g.logger.Info("connection closed by lfd", zap.String("lfd", lfdID))
	if g.members.Remove(lfdID) {
		gfdMembers.WithLabelValues(g.cfg.ID).Set(float64(g.members.Len()))
		g.logger.Info("removed member",
			zap.String("member", lfdID),
			zap.Strings("members", g.members.All()))
	}
}

// relay forwards a membership event to the replication manager, dialing it
// lazily. A relay that fails drops the connection; the next event redials.
func (g *GFD) relay(memberID, event string) {
	if g.cfg.RM == "" {
		return
	}
	g.rmMu.Lock()
	defer g.rmMu.Unlock()

	if g.rmConn == nil {
		conn, err := net.Dial("tcp", g.cfg.RM)
		if err != nil {
			g.logger.Warn("rm unreachable", zap.String("rm", g.cfg.RM))
			return
		}
		if err := wire.Send(conn, g.cfg.ID, 0, "gfd", ""); err != nil {
			conn.Close()
			return
		}
		if _, err := wire.Recv(conn); err != nil {
			conn.Close()
			return
		}
		g.rmConn = conn
		g.logger.Info("connected to rm", zap.String("rm", g.cfg.RM))
	}

	if wire.Send(g.rmConn, memberID, 0, event, "") != nil {
		g.logger.Warn("connection closed by rm")
		g.rmConn.Close()
		g.rmConn = nil
	}
}
