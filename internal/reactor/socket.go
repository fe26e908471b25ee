package reactor

import (
	"context"
	"fmt"
	"io"
	"net"

	"golang.org/x/sys/unix"
)

// backlog is the listen() backlog used by setupListener (spec.md §4.5).
const backlog = 8

// Listener is a non-blocking, dual-stack IPv6 listening socket attached
// read-only to a Reactor.
type Listener struct {
	fd *FD
	r  *Reactor
}

// Listen creates an IPv6 dual-stack socket (IPV6_V6ONLY=0) with
// SO_REUSEADDR, binds "::port", listens with backlog 8, and attaches
// read-only to r.
func Listen(r *Reactor, port int) (*Listener, error) {
	sock, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: socket: %w", err)
	}
	if err := unix.SetsockoptInt(sock, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(sock)
		return nil, fmt.Errorf("reactor: setsockopt SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(sock, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(sock)
		return nil, fmt.Errorf("reactor: setsockopt IPV6_V6ONLY: %w", err)
	}
	addr := &unix.SockaddrInet6{Port: port}
	if err := unix.Bind(sock, addr); err != nil {
		unix.Close(sock)
		return nil, fmt.Errorf("reactor: bind :::%d: %w", port, err)
	}
	if err := unix.Listen(sock, backlog); err != nil {
		unix.Close(sock)
		return nil, fmt.Errorf("reactor: listen: %w", err)
	}

	fd, err := NewFD(sock)
	if err != nil {
		unix.Close(sock)
		return nil, err
	}
	if err := r.Attach(fd, ModeRead); err != nil {
		unix.Close(sock)
		return nil, err
	}
	return &Listener{fd: fd, r: r}, nil
}

// Accept awaits and returns the next inbound connection.
func (l *Listener) Accept(ctx context.Context) (*Conn, error) {
	nfd, sa, err := Accept(ctx, l.fd)
	if err != nil {
		return nil, err
	}
	fd, err := NewFD(nfd)
	if err != nil {
		unix.Close(nfd)
		return nil, err
	}
	if err := l.r.Attach(fd, ModeRead|ModeWrite); err != nil {
		unix.Close(nfd)
		return nil, err
	}
	return &Conn{fd: fd, r: l.r, remote: sockaddrToNetAddr(sa)}, nil
}

// Close releases the listening socket via the reactor's async close.
func (l *Listener) Close() error {
	return l.r.CloseFD(l.fd)
}

// Dial creates a non-blocking IPv6 socket, attaches write-only, issues
// connect, and on write-readiness confirms success via getpeername,
// falling back to a one-byte read on ENOTCONN to surface the real
// connect error (spec.md §4.5).
func Dial(ctx context.Context, r *Reactor, host string, port int) (*Conn, error) {
	ip := mapToIPv6(host)
	sock, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, fmt.Errorf("reactor: socket: %w", err)
	}
	fd, err := NewFD(sock)
	if err != nil {
		unix.Close(sock)
		return nil, err
	}
	if err := r.Attach(fd, ModeWrite); err != nil {
		unix.Close(sock)
		return nil, err
	}

	var addr unix.SockaddrInet6
	copy(addr.Addr[:], ip)
	addr.Port = port

	if err := Connect(ctx, fd, &addr); err != nil {
		r.CloseFD(fd)
		return nil, fmt.Errorf("reactor: connect: %w", err)
	}

	if _, err := unix.Getpeername(fd.raw); err != nil {
		if err == unix.ENOTCONN {
			var probe [1]byte
			if _, rerr := unix.Read(fd.raw, probe[:]); rerr != nil {
				err = rerr
			}
		}
		r.CloseFD(fd)
		return nil, fmt.Errorf("reactor: connect did not complete: %w", err)
	}

	r.WatchRead(fd)
	return &Conn{fd: fd, r: r, remote: &net.TCPAddr{IP: net.IP(ip), Port: port}}, nil
}

// Conn is a connected, non-blocking TCP socket.
type Conn struct {
	fd     *FD
	r      *Reactor
	remote net.Addr
}

// Read implements io.Reader, looping until buf is full or the peer
// closes; once the peer has closed and nothing was read it returns
// io.EOF.
func (c *Conn) Read(buf []byte) (int, error) {
	n, err := Recv(context.Background(), c.fd, buf)
	if n == 0 && err == nil && len(buf) > 0 {
		return 0, io.EOF
	}
	return n, err
}

// Write implements io.Writer, looping until buf is fully sent.
func (c *Conn) Write(buf []byte) (int, error) {
	return Send(context.Background(), c.fd, buf)
}

// RemoteAddr returns the peer's address, used by the store's
// loopback/own-authorship merge guard.
func (c *Conn) RemoteAddr() net.Addr { return c.remote }

// Close releases the connection via the reactor's async close.
func (c *Conn) Close() error { return c.r.CloseFD(c.fd) }

func mapToIPv6(host string) []byte {
	ip := net.ParseIP(host)
	if ip == nil {
		ip = net.IPv6loopback
	}
	if v4 := ip.To4(); v4 != nil {
		return v4.To16()
	}
	return ip.To16()
}

func sockaddrToNetAddr(sa unix.Sockaddr) net.Addr {
	switch v := sa.(type) {
	case *unix.SockaddrInet6:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	case *unix.SockaddrInet4:
		return &net.TCPAddr{IP: append([]byte(nil), v.Addr[:]...), Port: v.Port}
	default:
		return nil
	}
}
