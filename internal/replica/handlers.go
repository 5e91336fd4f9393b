package replica

import (
	"net"
	"strconv"

	"go.uber.org/zap"

	"replicated-counter/internal/wire"
)

// echoHeartbeats answers each LFD heartbeat with the same number and payload
// until the detector goes away.
func (r *Replica) echoHeartbeats(conn net.Conn, lfdID string) {
	r.logger.Info("connection from lfd", zap.String("lfd", lfdID))
	for {
		msg, err := wire.Recv(conn)
		if err != nil {
			break
		}
		if wire.Send(conn, r.cfg.ID, msg.Number, msg.Data, "") != nil {
			break
		}
	}
	r.logger.Info("connection closed by lfd", zap.String("lfd", lfdID))
}

// serveClient runs the per-connection request loop. Each request is either
// applied to the state or buffered in the pending log; the decision and the
// mutation happen under the replica mutex, the reply send does not.
func (r *Replica) serveClient(conn net.Conn, clientID string) {
	r.logger.Info("connection from client", zap.String("client", clientID))
	for {
		msg, err := wire.Recv(conn)
		if err != nil {
			break
		}
		r.logger.Info("received request",
			zap.Int("number", msg.Number),
			zap.String("request", msg.Data),
			zap.String("client", clientID))

		reply, ok := r.applyOrBuffer(msg.Data)
		if !ok {
			break
		}
		if reply != "ok" {
			r.logger.Info("sending response",
				zap.Int("number", msg.Number),
				zap.String("response", reply),
				zap.String("client", clientID))
		}
		if wire.Send(conn, r.cfg.ID, msg.Number, reply, "") != nil {
			break
		}
	}
	r.logger.Info("connection closed by client", zap.String("client", clientID))
}

// applyOrBuffer executes one client request under the replica mutex.
//
// A replica that is not ready, or that is a passive non-primary, buffers the
// raw request and acknowledges with "ok"; otherwise the request is applied
// and the new sum is the reply.
func (r *Replica) applyOrBuffer(raw string) (reply string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.ready || (!r.cfg.Active && !r.primary) {
		r.pending = append(r.pending, raw)
		requestsBuffered.WithLabelValues(r.cfg.ID).Inc()
		r.logger.Info("added request to log", zap.Int("buffered", len(r.pending)))
		return "ok", true
	}

	value, err := strconv.Atoi(raw)
	if err != nil {
		r.logger.Warn("dropping malformed request", zap.String("request", raw))
		return "", false
	}
	reply = strconv.Itoa(r.sum.Update(value))
	r.numRequests++
	requestsApplied.WithLabelValues(r.cfg.ID).Inc()
	return reply, true
}
