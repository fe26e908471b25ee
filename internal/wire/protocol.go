// Package wire implements the shared-state synchronisation protocol: a
// length-prefixed, strictly request/reply exchange over a single TCP
// connection, with a version handshake and mutual byte-count
// acknowledgement (spec.md §4.7).
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"time"
)

// Port is the well-known shared-state synchronisation port.
const Port = 3490

// ProtoVersion is the wire handshake version. A mismatch on either side
// is a protocol error and closes the connection.
const ProtoVersion uint32 = 1

// TypeNameLenMax and DataLenMax bound the two length-prefixed fields of
// a request/reply frame.
const (
	TypeNameLenMin = 1
	TypeNameLenMax = 255
	DataLenMin     = 2
	DataLenMax     = 1 << 30
)

// ErrVersionMismatch is returned when the peer's handshake version does
// not equal ProtoVersion.
var ErrVersionMismatch = errors.New("wire: protocol version mismatch")

// ErrAckMismatch is returned when the peer's acknowledged byte count
// does not equal the number of bytes actually sent.
var ErrAckMismatch = errors.New("wire: ack byte count mismatch")

// ErrFrameLength is returned when a length prefix is out of the bounds
// above.
var ErrFrameLength = errors.New("wire: frame length out of range")

// Frame is the on-wire envelope for one type's state slice.
type Frame struct {
	TypeName string
	Data     []byte
}

// Stats records the round-trip timing and derived bandwidth of one
// completed sync session, as measured by the side that computed it.
type Stats struct {
	RTT      time.Duration
	UpMbps   float64
	DownMbps float64
}

func writeUint32(w io.Writer, v uint32) (int, error) {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	return w.Write(buf[:])
}

func readUint32(r io.Reader) (uint32, int, error) {
	var buf [4]byte
	n, err := io.ReadFull(r, buf[:])
	if err != nil {
		return 0, n, err
	}
	return binary.BigEndian.Uint32(buf[:]), n, nil
}

// writeFrame writes the length-prefixed type name and data, returning
// the total number of bytes written.
func writeFrame(w io.Writer, f Frame) (int, error) {
	if len(f.TypeName) < TypeNameLenMin || len(f.TypeName) > TypeNameLenMax {
		return 0, ErrFrameLength
	}
	if len(f.Data) < DataLenMin || len(f.Data) > DataLenMax {
		return 0, ErrFrameLength
	}

	total := 0
	if err := writeByte(w, byte(len(f.TypeName))); err != nil {
		return total, err
	}
	total++
	n, err := w.Write([]byte(f.TypeName))
	total += n
	if err != nil {
		return total, err
	}
	n, err = writeUint32(w, uint32(len(f.Data)))
	total += n
	if err != nil {
		return total, err
	}
	n, err = w.Write(f.Data)
	total += n
	return total, err
}

func writeByte(w io.Writer, b byte) error {
	_, err := w.Write([]byte{b})
	return err
}

// readFrame reads a length-prefixed type name and data frame, returning
// the total number of bytes read.
func readFrame(r io.Reader) (Frame, int, error) {
	var lenBuf [1]byte
	total := 0
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Frame{}, total, err
	}
	total++
	nameLen := int(lenBuf[0])
	if nameLen < TypeNameLenMin || nameLen > TypeNameLenMax {
		return Frame{}, total, ErrFrameLength
	}

	nameBuf := make([]byte, nameLen)
	if _, err := io.ReadFull(r, nameBuf); err != nil {
		return Frame{}, total, err
	}
	total += nameLen

	dataLen, n, err := readUint32(r)
	total += n
	if err != nil {
		return Frame{}, total, err
	}
	if dataLen < DataLenMin || dataLen > DataLenMax {
		return Frame{}, total, ErrFrameLength
	}

	data := make([]byte, dataLen)
	if _, err := io.ReadFull(r, data); err != nil {
		return Frame{}, total, err
	}
	total += int(dataLen)

	return Frame{TypeName: string(nameBuf), Data: data}, total, nil
}

// handshake exchanges ProtoVersion with the peer in three messages, so
// both sides get their own send-to-recv span to measure RTT from
// instead of only the client: client sends its version, the peer
// replies with its own, and the client echoes that reply back so the
// peer's own wait also resolves. asClient controls which side goes
// first: the client sends then waits for the reply then echoes it
// back; the server waits for the version, then times its own
// reply-send-to-echo-recv span before validating the echo.
func handshake(rw io.ReadWriter, asClient bool) (time.Duration, error) {
	if asClient {
		start := time.Now()
		if _, err := writeUint32(rw, ProtoVersion); err != nil {
			return 0, fmt.Errorf("wire: send version: %w", err)
		}
		v, _, err := readUint32(rw)
		if err != nil {
			return 0, fmt.Errorf("wire: read version reply: %w", err)
		}
		rtt := time.Since(start)
		if v != ProtoVersion {
			return rtt, fmt.Errorf("%w: got %d want %d", ErrVersionMismatch, v, ProtoVersion)
		}
		if _, err := writeUint32(rw, v); err != nil {
			return rtt, fmt.Errorf("wire: echo version back: %w", err)
		}
		return rtt, nil
	}

	v, _, err := readUint32(rw)
	if err != nil {
		return 0, fmt.Errorf("wire: read client version: %w", err)
	}
	if v != ProtoVersion {
		return 0, fmt.Errorf("%w: got %d want %d", ErrVersionMismatch, v, ProtoVersion)
	}

	start := time.Now()
	if _, err := writeUint32(rw, ProtoVersion); err != nil {
		return 0, fmt.Errorf("wire: send version reply: %w", err)
	}
	echo, _, err := readUint32(rw)
	if err != nil {
		return 0, fmt.Errorf("wire: read client echo: %w", err)
	}
	rtt := time.Since(start)
	if echo != ProtoVersion {
		return rtt, fmt.Errorf("%w: echo got %d want %d", ErrVersionMismatch, echo, ProtoVersion)
	}
	return rtt, nil
}
