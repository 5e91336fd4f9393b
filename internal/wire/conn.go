package wire

import (
	"net"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Send writes exactly one frame to conn. A write failure is reported as
// ErrPeerClosed; the caller retires the connection either way.
func Send(conn net.Conn, id string, number int, data, state string) error {
	if _, err := conn.Write(Encode(id, number, data, state)); err != nil {
		return ErrPeerClosed
	}
	return nil
}

// Recv reads exactly one frame from conn. Read errors, zero-length reads and
// malformed frames all report ErrPeerClosed: the peer is gone or talking
// garbage, and in both cases the connection is done.
func Recv(conn net.Conn) (Message, error) {
	buf := make([]byte, RecvSize)
	n, err := conn.Read(buf)
	if err != nil || n == 0 {
		return Message{}, ErrPeerClosed
	}
	msg, err := Decode(buf[:n])
	if err != nil {
		return Message{}, ErrPeerClosed
	}
	return msg, nil
}

// Hostport joins host and port into the "<host>:<port>" form used throughout
// the system.
func Hostport(host string, port int) string {
	return host + ":" + strconv.Itoa(port)
}

// SplitHostport splits a "<host>:<port>" string on the first ":".
func SplitHostport(hostport string) (string, int, error) {
	host, portText, ok := strings.Cut(hostport, ":")
	if !ok {
		return "", 0, errors.Errorf("wire: hostport %q missing port", hostport)
	}
	port, err := strconv.Atoi(portText)
	if err != nil {
		return "", 0, errors.Wrapf(err, "wire: hostport %q", hostport)
	}
	return host, port, nil
}
