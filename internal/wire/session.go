package wire

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
)

// connState models the server-side session states from spec.md §4.7 for
// logging and test assertions.
type connState int

const (
	stateAccepted connState = iota
	stateHandshake
	stateRecvReq
	stateAckReq
	stateMerge
	stateSendReply
	stateClosed
)

func (c connState) String() string {
	switch c {
	case stateAccepted:
		return "ACCEPTED"
	case stateHandshake:
		return "HANDSHAKE"
	case stateRecvReq:
		return "RECV_REQ"
	case stateAckReq:
		return "ACK_REQ"
	case stateMerge:
		return "MERGE"
	case stateSendReply:
		return "SEND_REPLY"
	default:
		return "CLOSED"
	}
}

// RunClient drives the client side of one sync session over rw: version
// handshake, send the local request frame, read the peer's ack, read
// the peer's reply frame, send our own ack. It returns the peer's reply
// frame and the measured Stats.
func RunClient(rw io.ReadWriter, req Frame) (Frame, Stats, error) {
	rtt, err := handshake(rw, true)
	if err != nil {
		return Frame{}, Stats{}, err
	}

	upStart := time.Now()
	sent, err := writeFrame(rw, req)
	if err != nil {
		return Frame{}, Stats{}, fmt.Errorf("wire: send request: %w", err)
	}
	upElapsed := time.Since(upStart)

	ack, _, err := readUint32(rw)
	if err != nil {
		return Frame{}, Stats{}, fmt.Errorf("wire: read request ack: %w", err)
	}
	if int(ack) != sent {
		return Frame{}, Stats{}, fmt.Errorf("%w: sent %d acked %d", ErrAckMismatch, sent, ack)
	}

	downStart := time.Now()
	reply, received, err := readFrame(rw)
	if err != nil {
		return Frame{}, Stats{}, fmt.Errorf("wire: read reply: %w", err)
	}
	downElapsed := time.Since(downStart)

	if _, err := writeUint32(rw, uint32(received)); err != nil {
		return Frame{}, Stats{}, fmt.Errorf("wire: send reply ack: %w", err)
	}

	return reply, Stats{
		RTT:      rtt,
		UpMbps:   mbps(sent, upElapsed),
		DownMbps: mbps(received, downElapsed),
	}, nil
}

// ServerHandler merges an incoming request frame into local state and
// returns the reply frame to send back (typically the merged or
// current local state for the same type).
type ServerHandler func(req Frame) (Frame, error)

// RunServer drives the server side of one sync session accepted on rw,
// logging each spec.md §4.7 state transition. Any I/O failure or
// malformed frame transitions directly to CLOSED after the error is
// logged; the caller is responsible for closing the connection. It
// returns the Stats the server itself measured: the handshake's third
// message (the client's echo of the server's reply) gives the server
// its own send-to-recv span to compute RTT from, rather than trusting
// whatever RTT the client reports.
func RunServer(rw io.ReadWriter, log *logrus.Logger, handle ServerHandler) (Stats, error) {
	state := stateAccepted
	trace := func(s connState) {
		state = s
		log.WithField("state", s.String()).Trace("wire: server session state")
	}
	fail := func(stage connState, err error) (Stats, error) {
		log.WithFields(logrus.Fields{"state": stage.String(), "error": err}).Warn("wire: server session failed")
		trace(stateClosed)
		return Stats{}, err
	}

	trace(stateHandshake)
	rtt, err := handshake(rw, false)
	if err != nil {
		return fail(stateHandshake, err)
	}

	trace(stateRecvReq)
	upStart := time.Now()
	req, received, err := readFrame(rw)
	if err != nil {
		return fail(stateRecvReq, err)
	}
	upElapsed := time.Since(upStart)

	trace(stateAckReq)
	if _, err := writeUint32(rw, uint32(received)); err != nil {
		return fail(stateAckReq, err)
	}

	trace(stateMerge)
	reply, err := handle(req)
	if err != nil {
		return fail(stateMerge, err)
	}

	trace(stateSendReply)
	downStart := time.Now()
	sent, err := writeFrame(rw, reply)
	if err != nil {
		return fail(stateSendReply, err)
	}
	downElapsed := time.Since(downStart)

	ack, _, err := readUint32(rw)
	if err != nil {
		return fail(stateSendReply, err)
	}
	if int(ack) != sent {
		return fail(stateSendReply, fmt.Errorf("%w: sent %d acked %d", ErrAckMismatch, sent, ack))
	}

	trace(stateClosed)
	_ = state
	return Stats{
		RTT:      rtt,
		UpMbps:   mbps(received, upElapsed),
		DownMbps: mbps(sent, downElapsed),
	}, nil
}

func mbps(bytes int, elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	bits := float64(bytes) * 8
	return (bits / elapsed.Seconds()) / 1_000_000
}
