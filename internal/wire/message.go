// Package wire implements the framed text protocol spoken by every component
// in the system: replicas, clients, fault detectors, and the replication
// manager all exchange the same four-field frame.
//
// A frame is four UTF-8 text fields joined by the literal separator "\n\n":
//
//	identifier \n\n number \n\n data \n\n state
//
// An empty data or state field means "absent". One logical frame is exactly
// one send and one receive; senders never pipeline two frames into a single
// write, and receivers consume a whole frame with a single read.
package wire

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// separator joins the four frame fields. No field may contain it.
const separator = "\n\n"

// RecvSize is the upper bound for a single frame on the wire. One physical
// read of up to RecvSize bytes is one logical frame.
const RecvSize = 4096

// ErrPeerClosed reports that the remote end closed the connection. It is the
// only error most callers inspect; every network-level failure on a
// connection collapses into it so the connection can be retired and replaced.
var ErrPeerClosed = errors.New("wire: peer closed connection")

// Message is a decoded frame.
//
// Number 0 is reserved for handshake and control traffic; application
// requests and heartbeats carry increasing positive numbers.
type Message struct {
	ID     string
	Number int
	Data   string
	State  string
}

// Encode serialises one frame. Empty data and state encode the absent value.
func Encode(id string, number int, data, state string) []byte {
	combined := []string{id, strconv.Itoa(number), data, state}
	return []byte(strings.Join(combined, separator))
}

// Decode parses a received frame. Empty input is invalid and reports
// ErrPeerClosed: a zero-length read is how a closed peer manifests.
func Decode(b []byte) (Message, error) {
	if len(b) == 0 {
		return Message{}, ErrPeerClosed
	}
	parts := strings.SplitN(string(b), separator, 4)
	if len(parts) != 4 {
		return Message{}, errors.Errorf("wire: malformed frame %q", b)
	}
	number, err := strconv.Atoi(parts[1])
	if err != nil {
		return Message{}, errors.Wrap(err, "wire: bad sequence number")
	}
	return Message{
		ID:     parts[0],
		Number: number,
		Data:   parts[2],
		State:  parts[3],
	}, nil
}
