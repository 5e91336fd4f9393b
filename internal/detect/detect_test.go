package detect

import (
	"net"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"replicated-counter/internal/manager"
	"replicated-counter/internal/replica"
	"replicated-counter/internal/wire"
)

func startGFD(t *testing.T, rm string) *GFD {
	t.Helper()
	g := NewGFD(GFDConfig{
		ID:   "gfd1",
		Host: "127.0.0.1",
		RM:   rm,
	}, zaptest.NewLogger(t))
	require.NoError(t, g.Start())
	return g
}

func TestMembershipPropagatesToRM(t *testing.T) {
	rm := manager.New(manager.Config{ID: "rm1", Host: "127.0.0.1"}, zaptest.NewLogger(t))
	require.NoError(t, rm.Start())
	defer rm.Stop()

	gfd := startGFD(t, rm.Hostport())
	defer gfd.Stop()

	rep := replica.New(replica.Config{
		ID:       "s1",
		Host:     "127.0.0.1",
		Interval: 50 * time.Millisecond,
		Active:   true,
	}, zaptest.NewLogger(t))
	require.NoError(t, rep.Start())
	defer rep.Stop()

	lfd := NewLFD(LFDConfig{
		ID:       "lfd1",
		Server:   rep.Hostport(),
		GFD:      gfd.Hostport(),
		Interval: 20 * time.Millisecond,
	}, zaptest.NewLogger(t))
	require.NoError(t, lfd.Start())
	defer lfd.Stop()

	// One heartbeat round is enough to become a member everywhere.
	require.Eventually(t, func() bool {
		return lfd.IsMember() &&
			slices.Contains(gfd.Members(), "lfd1") &&
			slices.Contains(rm.Members(), "lfd1")
	}, 5*time.Second, 10*time.Millisecond)

	// Kill the replica: the LFD reports the loss up the pipeline.
	rep.Stop()
	require.Eventually(t, func() bool {
		return !lfd.IsMember() &&
			!slices.Contains(gfd.Members(), "lfd1") &&
			!slices.Contains(rm.Members(), "lfd1")
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGFDMirrorsLFDEvents(t *testing.T) {
	gfd := startGFD(t, "")
	defer gfd.Stop()

	conn, err := net.Dial("tcp", gfd.Hostport())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, wire.Send(conn, "lfd1", 0, "lfd", ""))
	msg, err := wire.Recv(conn)
	require.NoError(t, err)
	assert.Equal(t, "gfd", msg.Data)

	// Duplicate adds are kept; remove drops one occurrence.
	require.NoError(t, wire.Send(conn, "lfd1", 0, "add", ""))
	require.Eventually(t, func() bool {
		return len(gfd.Members()) == 1
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, wire.Send(conn, "lfd1", 0, "add", ""))
	require.Eventually(t, func() bool {
		return len(gfd.Members()) == 2
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, wire.Send(conn, "lfd1", 0, "remove", ""))
	require.Eventually(t, func() bool {
		return len(gfd.Members()) == 1
	}, 5*time.Second, 10*time.Millisecond)
}

func TestGFDDropsMemberOnLinkClose(t *testing.T) {
	gfd := startGFD(t, "")
	defer gfd.Stop()

	conn, err := net.Dial("tcp", gfd.Hostport())
	require.NoError(t, err)
	require.NoError(t, wire.Send(conn, "lfd1", 0, "lfd", ""))
	_, err = wire.Recv(conn)
	require.NoError(t, err)

	require.NoError(t, wire.Send(conn, "lfd1", 0, "add", ""))
	require.Eventually(t, func() bool {
		return slices.Contains(gfd.Members(), "lfd1")
	}, 5*time.Second, 10*time.Millisecond)

	// Link close acts as a final remove.
	conn.Close()
	require.Eventually(t, func() bool {
		return !slices.Contains(gfd.Members(), "lfd1")
	}, 5*time.Second, 10*time.Millisecond)
}
