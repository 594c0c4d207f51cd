package edgenet

import (
	"net"
	"time"
)

// UDPSocket is the slice of *net.UDPConn the listener actually touches. The
// read loop arms a short deadline before every read so it can poll its
// context between datagrams, which is why SetReadDeadline is part of the
// contract.
type UDPSocket interface {
	ReadFromUDP(b []byte) (int, *net.UDPAddr, error)
	SetReadBuffer(bytes int) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// UDPSocketFactory opens the socket a listener reads from. Production code
// uses RealUDPSocketFactory; tests substitute a factory that hands back a
// canned socket so the ingest path runs without binding a port.
type UDPSocketFactory interface {
	ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error)
}

// RealUDPSocketFactory opens kernel UDP sockets.
type RealUDPSocketFactory struct{}

func (RealUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	return net.ListenUDP(network, laddr)
}

// MockUDPPacket is one datagram a MockUDPSocket will deliver.
type MockUDPPacket struct {
	Data []byte
	Addr *net.UDPAddr
}

// MockUDPSocket replays a fixed sequence of datagrams and then behaves like
// an idle socket: every further read times out. Draining into timeouts (as
// opposed to EOF) matches a quiet edge node and lets tests cancel the
// listener's context without racing its read loop.
type MockUDPSocket struct {
	packets []MockUDPPacket
	next    int
	closed  bool
}

// NewMockUDPSocket returns a socket that delivers the given packets in order.
// A packet with a nil Addr is reported as sent from localhost.
func NewMockUDPSocket(packets []MockUDPPacket) *MockUDPSocket {
	return &MockUDPSocket{packets: packets}
}

func (m *MockUDPSocket) ReadFromUDP(b []byte) (int, *net.UDPAddr, error) {
	if m.closed {
		return 0, nil, net.ErrClosed
	}
	if m.next >= len(m.packets) {
		return 0, nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	pkt := m.packets[m.next]
	m.next++
	addr := pkt.Addr
	if addr == nil {
		addr = &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: DefaultUDPPort}
	}
	return copy(b, pkt.Data), addr, nil
}

func (m *MockUDPSocket) SetReadBuffer(bytes int) error     { return nil }
func (m *MockUDPSocket) SetReadDeadline(t time.Time) error { return nil }

func (m *MockUDPSocket) Close() error {
	m.closed = true
	return nil
}

// MockUDPSocketFactory records ListenUDP calls and returns a prepared socket.
type MockUDPSocketFactory struct {
	Socket      UDPSocket
	ListenCalls []MockListenCall
}

// MockListenCall captures the arguments of one ListenUDP invocation.
type MockListenCall struct {
	Network string
	Laddr   *net.UDPAddr
}

// NewMockUDPSocketFactory returns a factory whose ListenUDP always succeeds
// with the given socket.
func NewMockUDPSocketFactory(socket UDPSocket) *MockUDPSocketFactory {
	return &MockUDPSocketFactory{Socket: socket}
}

func (f *MockUDPSocketFactory) ListenUDP(network string, laddr *net.UDPAddr) (UDPSocket, error) {
	f.ListenCalls = append(f.ListenCalls, MockListenCall{Network: network, Laddr: laddr})
	return f.Socket, nil
}

// timeoutError satisfies net.Error so a drained mock looks exactly like a
// real read deadline expiring.
type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }
