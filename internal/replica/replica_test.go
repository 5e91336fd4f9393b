package replica

import (
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"replicated-counter/internal/wire"
)

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func newTestReplica(t *testing.T, id string, port int, peers []string, active bool) *Replica {
	t.Helper()
	return New(Config{
		ID:       id,
		Host:     "127.0.0.1",
		Port:     port,
		Peers:    peers,
		Interval: 50 * time.Millisecond,
		Active:   active,
	}, zaptest.NewLogger(t))
}

// dialAs opens a connection to hostport and performs the role handshake.
func dialAs(t *testing.T, hostport, id, role string) net.Conn {
	t.Helper()
	conn, err := net.Dial("tcp", hostport)
	require.NoError(t, err)
	require.NoError(t, wire.Send(conn, id, 0, role, ""))
	msg, err := wire.Recv(conn)
	require.NoError(t, err)
	require.NotEmpty(t, msg.ID)
	return conn
}

// sendRequest sends one numbered client request and returns the reply.
func sendRequest(t *testing.T, conn net.Conn, id string, number, value int) wire.Message {
	t.Helper()
	require.NoError(t, wire.Send(conn, id, number, strconv.Itoa(value), ""))
	msg, err := wire.Recv(conn)
	require.NoError(t, err)
	return msg
}

func TestActiveReplicaAppliesRequests(t *testing.T) {
	r := newTestReplica(t, "s1", 0, nil, true)
	require.NoError(t, r.Start())
	defer r.Stop()

	conn := dialAs(t, r.Hostport(), "c1", "client")
	defer conn.Close()

	for i, tc := range []struct {
		request  int
		response string
	}{
		{3, "3"},
		{7, "10"},
		{2, "12"},
	} {
		msg := sendRequest(t, conn, "c1", i+1, tc.request)
		assert.Equal(t, i+1, msg.Number)
		assert.Equal(t, tc.response, msg.Data)
	}

	status := r.Status()
	assert.Equal(t, 12, status.Sum)
	assert.Equal(t, 3, status.NumRequests)
}

func TestActiveReplicaSyncsFromPeer(t *testing.T) {
	r1 := newTestReplica(t, "s1", 0, nil, true)
	require.NoError(t, r1.Start())
	defer r1.Stop()

	conn := dialAs(t, r1.Hostport(), "c1", "client")
	sendRequest(t, conn, "c1", 1, 5)
	conn.Close()

	r2 := newTestReplica(t, "s2", 0, []string{r1.Hostport()}, true)
	require.NoError(t, r2.Start())
	defer r2.Stop()

	require.Eventually(t, func() bool {
		status := r2.Status()
		return status.Sum == 5 && status.NumRequests == 1 && status.Ready
	}, 5*time.Second, 20*time.Millisecond)
}

func TestHeartbeatEcho(t *testing.T) {
	r := newTestReplica(t, "s1", 0, nil, true)
	require.NoError(t, r.Start())
	defer r.Stop()

	conn := dialAs(t, r.Hostport(), "lfd1", "lfd")
	defer conn.Close()

	for number := 1; number <= 3; number++ {
		require.NoError(t, wire.Send(conn, "lfd1", number, "heartbeat", ""))
		msg, err := wire.Recv(conn)
		require.NoError(t, err)
		assert.Equal(t, "s1", msg.ID)
		assert.Equal(t, number, msg.Number)
		assert.Equal(t, "heartbeat", msg.Data)
	}
}

func TestSoloPassiveReplicaAnswersElectionAsPrimary(t *testing.T) {
	r := newTestReplica(t, "s1", 0, nil, false)
	require.NoError(t, r.Start())
	defer r.Stop()

	require.Eventually(t, r.IsPrimary, 5*time.Second, 10*time.Millisecond)

	conn, err := net.Dial("tcp", r.Hostport())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.Send(conn, "s9", 0, "elect", ""))
	msg, err := wire.Recv(conn)
	require.NoError(t, err)
	assert.Equal(t, "primary|"+r.Hostport(), msg.Data)
}

func TestCheckpointAcceptReplaysPendingLog(t *testing.T) {
	r := newTestReplica(t, "s1", 0, nil, false)
	r.done = make(chan struct{})
	r.backoff = func() time.Duration { return time.Millisecond }
	r.pending = []string{"3", "4"}

	local, remote := net.Pipe()
	finished := make(chan struct{})
	go func() {
		r.receiveCheckpoints(remote)
		close(finished)
	}()
	defer func() {
		close(r.done)
		local.Close()
		<-finished
	}()

	// Checkpoint ahead of the local count: sum 10 at 2 requests.
	require.NoError(t, wire.Send(local, "p1", 1, "2", "10"))
	ack, err := wire.Recv(local)
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.Data)

	status := r.Status()
	assert.Equal(t, 17, status.Sum) // checkpoint plus replayed log
	assert.Equal(t, 2, status.NumRequests)
	assert.Zero(t, status.Pending)

	// A stale checkpoint is acknowledged but not adopted.
	require.NoError(t, wire.Send(local, "p1", 2, "1", "99"))
	ack, err = wire.Recv(local)
	require.NoError(t, err)
	assert.Equal(t, "ok", ack.Data)
	assert.Equal(t, 17, r.Status().Sum)
}

func TestPassiveGroupElectionAndFailover(t *testing.T) {
	port1, port2, port3 := freePort(t), freePort(t), freePort(t)
	hp1 := wire.Hostport("127.0.0.1", port1)
	hp2 := wire.Hostport("127.0.0.1", port2)
	hp3 := wire.Hostport("127.0.0.1", port3)

	r1 := newTestReplica(t, "s1", port1, []string{hp2, hp3}, false)
	r2 := newTestReplica(t, "s2", port2, []string{hp1, hp3}, false)
	r3 := newTestReplica(t, "s3", port3, []string{hp1, hp2}, false)
	// Distinct backoffs keep the surviving backups from electing at the
	// same instant after the primary dies.
	r2.backoff = func() time.Duration { return 50 * time.Millisecond }
	r3.backoff = func() time.Duration { return 400 * time.Millisecond }

	require.NoError(t, r1.Start())
	defer r1.Stop()
	require.Eventually(t, r1.IsPrimary, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, r2.Start())
	require.Eventually(t, func() bool {
		return r2.Status().NumRequests == 0 && !r2.IsPrimary() && r1.IsPrimary()
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, r3.Start())
	defer r2.Stop()
	defer r3.Stop()

	primaries := func() int {
		count := 0
		for _, r := range []*Replica{r1, r2, r3} {
			if r.IsRunning() && r.IsPrimary() {
				count++
			}
		}
		return count
	}
	require.Eventually(t, func() bool {
		return primaries() == 1 && !r3.IsPrimary()
	}, 5*time.Second, 10*time.Millisecond)

	// Buffer a request on both backups first, then apply it on the primary:
	// the next checkpoint must clear the backups' logs and replay them.
	backup2 := dialAs(t, hp2, "c1", "client")
	defer backup2.Close()
	backup3 := dialAs(t, hp3, "c1", "client")
	defer backup3.Close()
	assert.Equal(t, "ok", sendRequest(t, backup2, "c1", 1, 4).Data)
	assert.Equal(t, "ok", sendRequest(t, backup3, "c1", 1, 4).Data)

	primaryConn := dialAs(t, hp1, "c1", "client")
	defer primaryConn.Close()
	assert.Equal(t, "4", sendRequest(t, primaryConn, "c1", 1, 4).Data)
	assert.Equal(t, 1, r1.Status().NumRequests)

	// Checkpoint plus replayed log on each backup.
	require.Eventually(t, func() bool {
		s2, s3 := r2.Status(), r3.Status()
		return s2.Sum == 8 && s2.NumRequests == 1 && s2.Pending == 0 &&
			s3.Sum == 8 && s3.NumRequests == 1 && s3.Pending == 0
	}, 5*time.Second, 20*time.Millisecond)

	// Kill the primary: the survivors re-elect exactly one, state intact.
	r1.Stop()
	require.Eventually(t, func() bool {
		return primaries() == 1
	}, 10*time.Second, 20*time.Millisecond)

	assert.Equal(t, 8, r2.Status().Sum)
	assert.Equal(t, 8, r3.Status().Sum)
	assert.Equal(t, 1, r2.Status().NumRequests)
	assert.Equal(t, 1, r3.Status().NumRequests)
}
