package wire

import (
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func discardLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func TestFrameRoundTrip(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	req := Frame{TypeName: "hosts", Data: []byte(`{"k1":{"ip":"10.0.0.1"}}`)}
	reply := Frame{TypeName: "hosts", Data: []byte(`{"k1":{"ip":"10.0.0.1"},"k2":{"ip":"10.0.0.2"}}`)}

	type serverResult struct {
		stats Stats
		err   error
	}
	done := make(chan serverResult, 1)
	go func() {
		stats, err := RunServer(server, discardLogger(), func(got Frame) (Frame, error) {
			if got.TypeName != req.TypeName || string(got.Data) != string(req.Data) {
				t.Errorf("server received unexpected frame: %+v", got)
			}
			return reply, nil
		})
		done <- serverResult{stats, err}
	}()

	gotReply, clientStats, err := RunClient(client, req)
	if err != nil {
		t.Fatalf("RunClient: %v", err)
	}
	if gotReply.TypeName != reply.TypeName || string(gotReply.Data) != string(reply.Data) {
		t.Fatalf("client got unexpected reply: %+v", gotReply)
	}
	if clientStats.RTT <= 0 {
		t.Fatalf("expected positive client RTT, got %v", clientStats.RTT)
	}

	result := <-done
	if result.err != nil {
		t.Fatalf("RunServer: %v", result.err)
	}
	if result.stats.RTT <= 0 {
		t.Fatalf("expected positive server-measured RTT, got %v", result.stats.RTT)
	}
}

// TestHandshakeThirdMessageGivesServerOwnRTT confirms the handshake's
// third message (the client echoing the server's reply back) lets the
// server measure its own send-to-recv span, independent of whatever
// RTT the client observed.
func TestHandshakeThirdMessageGivesServerOwnRTT(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct {
		rtt time.Duration
		err error
	}, 1)
	go func() {
		rtt, err := handshake(server, false)
		done <- struct {
			rtt time.Duration
			err error
		}{rtt, err}
	}()

	if _, err := handshake(client, true); err != nil {
		t.Fatalf("client handshake: %v", err)
	}

	result := <-done
	if result.err != nil {
		t.Fatalf("server handshake: %v", result.err)
	}
	if result.rtt <= 0 {
		t.Fatalf("expected server to measure a positive RTT from its own send/recv span, got %v", result.rtt)
	}
}

func TestVersionMismatchAborts(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan error, 1)
	go func() {
		_, _, err := readUint32(server)
		if err != nil {
			done <- err
			return
		}
		// Echo a wrong version to force the client to fail.
		_, err = writeUint32(server, 999)
		done <- err
	}()

	_, err := handshake(client, true)
	if err == nil {
		t.Fatalf("expected version mismatch error")
	}
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	<-done
}

func TestAckMismatchAborts(t *testing.T) {
	server, client := net.Pipe()
	defer server.Close()
	defer client.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = handshake(server, false)
		f, n, err := readFrame(server)
		if err != nil {
			return
		}
		_ = f
		// Ack one byte fewer than actually received.
		_, _ = writeUint32(server, uint32(n-1))
	}()

	req := Frame{TypeName: "hosts", Data: []byte(`{"k1":1}`)}
	_, _, err := RunClient(client, req)
	if err == nil {
		t.Fatalf("expected ack mismatch error")
	}
	if !errors.Is(err, ErrAckMismatch) {
		t.Fatalf("expected ErrAckMismatch, got %v", err)
	}
	<-done
}

func TestFrameLengthBounds(t *testing.T) {
	pr, pw := io.Pipe()
	go func() {
		_, _ = writeFrame(pw, Frame{TypeName: "", Data: []byte("ab")})
		pw.Close()
	}()
	if _, _, err := readFrame(pr); err == nil {
		t.Fatalf("expected error reading frame with empty type name")
	}
}

func TestMbpsHelper(t *testing.T) {
	if v := mbps(0, time.Second); v != 0 {
		t.Fatalf("expected 0 mbps for 0 bytes, got %f", v)
	}
	if v := mbps(125000, time.Second); v < 0.99 || v > 1.01 {
		t.Fatalf("expected ~1 Mbps for 125000 bytes/sec, got %f", v)
	}
}
