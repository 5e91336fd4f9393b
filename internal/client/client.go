// Package client implements the fan-out client of the replicated counter.
//
// The client holds one connection per replica and, every interval, sends the
// same numbered request to every replica it can reach. The first substantive
// response per request number is the reported answer; further responses with
// the same number are duplicates from sibling replicas and are only counted.
// Passive backups acknowledge with "ok" — a buffered-log receipt, not an
// answer. Lost replicas are retried at the top of every cycle, so a replica
// that comes back mid-session rejoins the fan-out transparently.
package client

import (
	"math/rand/v2"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"replicated-counter/internal/wire"
)

// Config holds the client configuration.
type Config struct {
	ID        string
	Hostports []string      // replica host:ports, index-addressed
	Interval  time.Duration // delay between request cycles
}

// Stats counts what the client observed during its session.
type Stats struct {
	Completed  int // request cycles finished
	Responses  int // authoritative responses (first per request number)
	Duplicates int // further responses for an already-answered number
	Buffered   int // "ok" receipts from passive backups
}

// Client fans requests out to a set of replicas. Construct with New, then
// Start/Stop.
type Client struct {
	cfg    Config
	logger *zap.Logger

	conns     []net.Conn
	connected []bool
	serverIDs []string

	mu    sync.Mutex
	stats Stats

	running atomic.Bool
	done    chan struct{}
	wg      sync.WaitGroup
}

// New creates a cold client. No connections are opened until Start.
func New(cfg Config, logger *zap.Logger) *Client {
	return &Client{
		cfg:       cfg,
		logger:    logger.Named("client").With(zap.String("client", cfg.ID)),
		conns:     make([]net.Conn, len(cfg.Hostports)),
		connected: make([]bool, len(cfg.Hostports)),
		serverIDs: make([]string, len(cfg.Hostports)),
	}
}

// Start launches the request worker. A limit of 0 runs unbounded.
func (c *Client) Start(limit int) {
	c.done = make(chan struct{})
	c.running.Store(true)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer c.running.Store(false)
		c.request(limit)
	}()
}

// Stop terminates the worker and closes every connection.
func (c *Client) Stop() {
	if !c.running.CompareAndSwap(true, false) {
		return
	}
	c.logger.Info("stopping client")
	close(c.done)
	c.closeAll()
	c.wg.Wait()
}

// IsRunning reports whether the request worker is live.
func (c *Client) IsRunning() bool {
	return c.running.Load()
}

// Wait blocks until the request worker finishes, either by reaching its
// limit, by running out of reachable servers, or via Stop.
func (c *Client) Wait() {
	c.wg.Wait()
}

// Stats returns a snapshot of the session counters.
func (c *Client) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// request is the main client loop: reconnect, fan out, collect, sleep.
func (c *Client) request(limit int) {
	for number := 1; limit == 0 || number <= limit; number++ {
		for i := range c.conns {
			if conn, _ := c.link(i); conn == nil {
				c.reconnect(i)
			}
		}
		if !c.anyConnected() {
			c.logger.Info("stopping client: no servers reachable",
				zap.Int("completed", number-1))
			c.closeAll()
			return
		}

		request := rand.IntN(10) + 1
		sent := make([]bool, len(c.conns))
		for i := range c.conns {
			conn, serverID := c.link(i)
			if conn == nil {
				continue
			}
			c.logger.Info("sending request",
				zap.Int("number", number),
				zap.Int("request", request),
				zap.String("server", serverID))
			if wire.Send(conn, c.cfg.ID, number, strconv.Itoa(request), "") != nil {
				c.drop(i)
				continue
			}
			sent[i] = true
		}

		answered := false
		for i := range c.conns {
			conn, serverID := c.link(i)
			if !sent[i] || conn == nil {
				continue
			}
			msg, err := wire.Recv(conn)
			if err != nil {
				c.logger.Info("connection closed by server",
					zap.String("server", serverID))
				c.drop(i)
				continue
			}
			switch {
			case msg.Data == "ok":
				c.count(func(s *Stats) { s.Buffered++ })
				c.logger.Info("request buffered by server",
					zap.Int("number", msg.Number),
					zap.String("server", serverID))
			case !answered:
				answered = true
				c.count(func(s *Stats) { s.Responses++ })
				c.logger.Info("received response",
					zap.Int("number", msg.Number),
					zap.String("response", msg.Data),
					zap.String("server", serverID))
			default:
				c.count(func(s *Stats) { s.Duplicates++ })
				c.logger.Info("received duplicate response",
					zap.Int("number", msg.Number),
					zap.String("response", msg.Data),
					zap.String("server", serverID))
			}
		}
		c.count(func(s *Stats) { s.Completed++ })

		select {
		case <-c.done:
			return
		case <-time.After(c.cfg.Interval):
		}
	}

	c.logger.Info("completed requests", zap.Int("count", limit))
	c.closeAll()
}

// reconnect dials replica i and performs the "client" handshake. Failures
// are not fatal; the next cycle tries again.
func (c *Client) reconnect(i int) {
	hostport := c.cfg.Hostports[i]
	conn, err := net.Dial("tcp", hostport)
	if err != nil {
		return
	}
	if err := wire.Send(conn, c.cfg.ID, 0, "client", ""); err != nil {
		conn.Close()
		return
	}
	msg, err := wire.Recv(conn)
	if err != nil {
		c.logger.Info("connection closed by server", zap.String("hostport", hostport))
		conn.Close()
		return
	}
	c.mu.Lock()
	c.conns[i] = conn
	c.connected[i] = true
	c.serverIDs[i] = msg.ID
	c.mu.Unlock()
	c.logger.Info("connected to server", zap.String("server", msg.ID))
}

// drop retires the connection to replica i. Also called from Stop, so the
// table mutation is locked; the in-flight worker sees the closed socket as
// a peer-closed read.
func (c *Client) drop(i int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conns[i] != nil {
		c.conns[i].Close()
		c.conns[i] = nil
	}
	c.connected[i] = false
}

// link snapshots the connection and server id for replica i. Stop can
// retire connections concurrently with the worker, so the table is never
// read bare.
func (c *Client) link(i int) (net.Conn, string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected[i] {
		return nil, c.serverIDs[i]
	}
	return c.conns[i], c.serverIDs[i]
}

func (c *Client) anyConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ok := range c.connected {
		if ok {
			return true
		}
	}
	return false
}

func (c *Client) closeAll() {
	for i := range c.conns {
		c.drop(i)
	}
}

func (c *Client) count(update func(*Stats)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	update(&c.stats)
}
