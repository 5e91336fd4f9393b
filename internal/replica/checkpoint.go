package replica

import (
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"

	"replicated-counter/internal/state"
	"replicated-counter/internal/wire"
)

// sendCheckpoints streams the current state to one backup every interval.
// The data field carries the request count, the state field the serialised
// sum. A missing acknowledgement ends the stream; the backup reacquires it
// with its next inbound handshake.
func (r *Replica) sendCheckpoints(conn net.Conn, backupID string) {
	number := 1
	for {
		r.mu.Lock()
		count, snapshot := r.numRequests, r.sum.String()
		r.mu.Unlock()

		r.logger.Info("sending checkpoint",
			zap.Int("number", number),
			zap.String("state", snapshot),
			zap.String("backup", backupID))

		err := wire.Send(conn, r.cfg.ID, number, strconv.Itoa(count), snapshot)
		var ack wire.Message
		if err == nil {
			ack, err = wire.Recv(conn)
		}
		if err != nil || ack.Data == "" {
			r.logger.Info("connection closed by backup", zap.String("backup", backupID))
			return
		}
		checkpointsSent.WithLabelValues(r.cfg.ID).Inc()

		number++
		select {
		case <-r.done:
			return
		case <-time.After(r.cfg.Interval):
		}
	}
}

// receiveCheckpoints applies the primary's checkpoint stream on a backup.
//
// A checkpoint is adopted only when its request count is ahead of the local
// one: the snapshot replaces the sum, buffered requests are replayed on top,
// and the log is cleared. When the stream dies the backup clears its
// primary if it still points at the peer this stream came from, sleeps a
// random backoff and runs an election.
func (r *Replica) receiveCheckpoints(conn net.Conn) {
	r.mu.Lock()
	following := r.primaryIndex
	r.mu.Unlock()

	for {
		msg, err := wire.Recv(conn)
		if err != nil || msg.State == "" {
			break
		}
		r.logger.Info("received checkpoint",
			zap.Int("number", msg.Number),
			zap.String("state", msg.State))

		if count, cerr := strconv.Atoi(msg.Data); cerr == nil {
			r.mu.Lock()
			if count > r.numRequests {
				if snapshot, perr := state.Parse(msg.State); perr == nil {
					r.sum = snapshot
					r.numRequests = count
					r.replayPendingLocked()
				}
			}
			r.mu.Unlock()
			checkpointsReceived.WithLabelValues(r.cfg.ID).Inc()
		}

		if wire.Send(conn, r.cfg.ID, msg.Number, "ok", "") != nil {
			break
		}
	}

	r.mu.Lock()
	if idx := r.primaryIndex; idx != -1 && idx == following {
		r.logger.Info("connection closed by primary")
		if r.peerConns[idx] != nil {
			r.peerConns[idx].Close()
			r.peerConns[idx] = nil
		}
		r.peerConnected[idx] = false
		r.primaryIndex = -1
	}
	r.mu.Unlock()

	select {
	case <-r.done:
		return
	case <-time.After(r.backoff()):
	}
	r.elect()
}
