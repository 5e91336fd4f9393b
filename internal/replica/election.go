package replica

import (
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"replicated-counter/internal/wire"
)

// electionBackoff returns the random [1s, 6s) delay a backup waits after
// losing its primary, which keeps the surviving backups from all probing
// each other at the same instant.
func electionBackoff() time.Duration {
	return time.Second + time.Duration(rand.Int64N(int64(5*time.Second)))
}

// elect negotiates a primary with each peer in order.
//
// The negotiation is optimistic and quorum-less: the first peer to answer
// "approve" makes this replica primary, the first to answer "primary|<hp>"
// makes it that peer's backup, and anything else moves on to the next peer.
// A replica whose peers all stay silent declares itself default primary.
//
// The mutex is held across the send that commits an outcome — this and the
// vote reply are the only socket writes made under the lock, and it prevents
// a concurrent vote handler from re-entering the election mid-handshake.
func (r *Replica) elect() {
	electionsStarted.WithLabelValues(r.cfg.ID).Inc()

	for i := range r.cfg.Peers {
		r.mu.Lock()
		conn := r.peerConns[i]
		r.mu.Unlock()
		if conn == nil {
			continue
		}
		if wire.Send(conn, r.cfg.ID, 0, "elect", "") != nil {
			continue
		}
		msg, err := wire.Recv(conn)
		if err != nil {
			continue
		}

		r.mu.Lock()
		if r.primaryIndex != -1 {
			// A concurrent handler already adopted a primary.
			r.mu.Unlock()
			return
		}
		switch {
		case strings.HasPrefix(msg.Data, "primary"):
			r.primary = false
			r.ready = false
			r.primaryIndex = i
			wire.Send(conn, r.cfg.ID, msg.Number, "backup", "")
			r.logger.Info("primary", zap.String("primary", msg.ID))
			r.mu.Unlock()
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.receiveCheckpoints(conn)
			}()
			return
		case msg.Data == "approve":
			r.primary = true
			r.ready = true
			r.primaryIndex = -1
			wire.Send(conn, r.cfg.ID, msg.Number, "primary|"+r.hostport, "")
			r.logger.Info("elected primary")
			r.mu.Unlock()
			backupID := msg.ID
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.awaitBackup(conn, backupID)
			}()
			return
		}
		r.mu.Unlock()
	}

	// No peer answered usefully.
	r.mu.Lock()
	r.primary = true
	r.ready = true
	r.primaryIndex = -1
	r.mu.Unlock()
	r.logger.Info("default primary")
}

// vote answers an election probe from a peer. A replica with neither a
// primary nor the primary role grants its approve; one that already follows
// a primary disapproves; the primary itself announces its hostport. The
// primaryIndex check under the lock keeps a replica from flipping
// allegiance while a grant is still in flight.
func (r *Replica) vote(conn net.Conn, number int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch {
	case !r.primary && r.primaryIndex == -1:
		wire.Send(conn, r.cfg.ID, number, "approve", "")
	case r.primaryIndex != -1:
		wire.Send(conn, r.cfg.ID, number, "disapprove", "")
	default:
		wire.Send(conn, r.cfg.ID, number, "primary|"+r.hostport, "")
	}
}

// awaitBackup waits for the freshly demoted peer to announce itself with a
// "backup" frame on the election socket, then streams checkpoints to it.
func (r *Replica) awaitBackup(conn net.Conn, backupID string) {
	msg, err := wire.Recv(conn)
	if err != nil || msg.Data != "backup" {
		return
	}
	r.sendCheckpoints(conn, backupID)
}

// followPrimary accepts the sender of a "primary|<hostport>" frame as the
// new primary: demote, answer "backup", and turn this connection into the
// checkpoint stream.
func (r *Replica) followPrimary(conn net.Conn, msg wire.Message) {
	r.mu.Lock()
	if r.primaryIndex == -1 {
		r.logger.Info("primary", zap.String("primary", msg.ID))
	}
	r.primary = false
	r.ready = false
	r.primaryIndex = r.peerIndex(primaryHostport(msg.Data))
	r.mu.Unlock()

	wire.Send(conn, r.cfg.ID, msg.Number, "backup", "")
	r.receiveCheckpoints(conn)
}

// primaryHostport extracts the hostport from a "primary|<hostport>"
// announcement; the bare "primary" tag yields an empty string.
func primaryHostport(data string) string {
	if _, hostport, ok := strings.Cut(data, "|"); ok {
		return hostport
	}
	return ""
}
