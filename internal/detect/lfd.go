// Package detect implements the two fault-detection tiers: the local fault
// detector (LFD) that heartbeats a single replica, and the global fault
// detector (GFD) that aggregates LFD reports into a membership view and
// relays them to the replication manager.
package detect

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"replicated-counter/internal/wire"
)

// LFDConfig holds the configuration for a local fault detector.
type LFDConfig struct {
	ID       string
	Server   string        // hostport of the watched replica
	GFD      string        // hostport of the global fault detector
	Interval time.Duration // heartbeat cadence
}

// LFD probes one replica with periodic heartbeats and reports up/down
// transitions to the GFD.
//
// The detector walks three states: disconnected from its replica, connected,
// and member (connected and announced to the GFD). A heartbeat reply moves
// it to member; a missed reply drops the replica socket and, if the replica
// was a member, sends the matching "remove".
type LFD struct {
	cfg    LFDConfig
	logger *zap.Logger

	gfdConn    net.Conn
	serverConn net.Conn
	serverID   string
	member     bool

	mu      sync.Mutex // guards the conns for Stop
	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewLFD creates a cold detector.
func NewLFD(cfg LFDConfig, logger *zap.Logger) *LFD {
	return &LFD{
		cfg:    cfg,
		logger: logger.Named("lfd").With(zap.String("lfd", cfg.ID)),
	}
}

// Start connects to the GFD — which is mandatory — and launches the
// heartbeat worker.
func (d *LFD) Start() error {
	conn, err := net.Dial("tcp", d.cfg.GFD)
	if err != nil {
		return errors.Wrap(err, "lfd: connect gfd")
	}
	if err := wire.Send(conn, d.cfg.ID, 0, "lfd", ""); err != nil {
		conn.Close()
		return errors.Wrap(err, "lfd: gfd handshake")
	}
	if _, err := wire.Recv(conn); err != nil {
		conn.Close()
		return errors.Wrap(err, "lfd: gfd handshake")
	}
	d.gfdConn = conn
	d.done = make(chan struct{})
	d.running.Store(true)
	d.logger.Info("starting", zap.String("server", d.cfg.Server), zap.String("gfd", d.cfg.GFD))

	d.wg.Add(1)
	go d.heartbeat()
	return nil
}

// Stop terminates the worker and closes both sockets.
func (d *LFD) Stop() {
	if !d.running.CompareAndSwap(true, false) {
		return
	}
	d.logger.Info("stopping lfd")
	close(d.done)
	d.mu.Lock()
	if d.serverConn != nil {
		d.serverConn.Close()
	}
	if d.gfdConn != nil {
		d.gfdConn.Close()
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// IsRunning reports whether the heartbeat worker is live.
func (d *LFD) IsRunning() bool {
	return d.running.Load()
}

// IsMember reports whether the watched replica is currently announced to
// the GFD.
func (d *LFD) IsMember() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.member
}

// heartbeat is the detector loop: reconnect the replica if needed, probe it,
// and reconcile membership with the GFD on every transition.
func (d *LFD) heartbeat() {
	defer d.wg.Done()

	number := 1
	for {
		if d.serverConn == nil {
			d.connectServer()
		}
		if d.serverConn != nil {
			d.logger.Info("sending heartbeat",
				zap.Int("number", number),
				zap.String("server", d.serverID))
			err := wire.Send(d.serverConn, d.cfg.ID, number, "heartbeat", "")
			var reply wire.Message
			if err == nil {
				reply, err = wire.Recv(d.serverConn)
			}
			number++

			if err != nil || reply.Data == "" {
				d.logger.Info("no response from server", zap.String("server", d.serverID))
				d.dropServer()
				if d.member {
					d.report("remove")
					d.setMember(false)
				}
			} else {
				d.logger.Info("heartbeat response",
					zap.Int("number", reply.Number),
					zap.String("server", reply.ID))
				heartbeats.WithLabelValues(d.cfg.ID).Inc()
				if !d.member {
					d.report("add")
					d.setMember(true)
				}
			}
		}

		select {
		case <-d.done:
			return
		case <-time.After(d.cfg.Interval):
		}
	}
}

// connectServer dials the replica and performs the "lfd" handshake.
func (d *LFD) connectServer() {
	conn, err := net.Dial("tcp", d.cfg.Server)
	if err != nil {
		return
	}
	if err := wire.Send(conn, d.cfg.ID, 0, "lfd", ""); err != nil {
		conn.Close()
		return
	}
	msg, err := wire.Recv(conn)
	if err != nil {
		d.logger.Info("connection closed by server", zap.String("server", d.cfg.Server))
		conn.Close()
		return
	}
	d.mu.Lock()
	d.serverConn = conn
	d.mu.Unlock()
	d.serverID = msg.ID
	d.logger.Info("connected to server", zap.String("server", msg.ID))
}

func (d *LFD) dropServer() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.serverConn != nil {
		d.serverConn.Close()
		d.serverConn = nil
	}
}

func (d *LFD) setMember(member bool) {
	d.mu.Lock()
	d.member = member
	d.mu.Unlock()
}

// report sends a membership event for the watched replica to the GFD.
func (d *LFD) report(event string) {
	d.logger.Info("reporting to gfd", zap.String("event", event))
	if wire.Send(d.gfdConn, d.cfg.ID, 0, event, "") != nil {
		d.logger.Warn("connection closed by gfd")
	}
}
