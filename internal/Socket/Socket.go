package Socket

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type EventMask uint32

const (
	EvRead EventMask = 1 << iota
	EvWrite
)

func (m EventMask) String() string {
	switch m {
	case EvRead:
		return "read"
	case EvWrite:
		return "write"
	case EvRead | EvWrite:
		return "read|write"
	}
	return "none"
}

const DefaultWaitTimeout = 5 * time.Second

var ErrNetTimeout = errors.New("socket wait ready timeout")

// Socket is a non-blocking TCP/IPv4 socket on a raw file descriptor.
// Would-block conditions come back as unix.EAGAIN or unix.EINPROGRESS;
// see IsWouldBlock.
type Socket struct {
	fd          int
	bound       bool
	connecting  bool
	connected   bool
	WaitTimeout time.Duration
}

func NewSocket() *Socket {
	return &Socket{fd: -1, WaitTimeout: DefaultWaitTimeout}
}

func (s *Socket) Fd() int {
	return s.fd
}

func (s *Socket) IsOpen() bool {
	return s.fd >= 0
}

func (s *Socket) IsBound() bool {
	return s.bound
}

func (s *Socket) IsConnected() bool {
	return s.connected
}

func (s *Socket) Open() error {
	if s.fd >= 0 {
		return nil
	}
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		return errors.Wrap(err, "socket open")
	}
	unix.CloseOnExec(fd)
	if err = unix.SetNonblock(fd, true); err != nil {
		_ = unix.Close(fd)
		return errors.Wrap(err, "socket set nonblock")
	}
	s.fd = fd
	return nil
}

func (s *Socket) NoDelay() error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket nodelay")
	}
	return errors.Wrap(unix.SetsockoptInt(s.fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1), "socket nodelay")
}

func (s *Socket) KeepAlive() error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket keepalive")
	}
	return errors.Wrap(unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1), "socket keepalive")
}

// SetBufferSizes sets SO_SNDBUF and SO_RCVBUF; zero leaves a size alone.
func (s *Socket) SetBufferSizes(sndBuf, rcvBuf int) error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket buffer sizes")
	}
	if sndBuf > 0 {
		if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sndBuf); err != nil {
			return errors.Wrap(err, "socket sndbuf")
		}
	}
	if rcvBuf > 0 {
		if err := unix.SetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_RCVBUF, rcvBuf); err != nil {
			return errors.Wrap(err, "socket rcvbuf")
		}
	}
	return nil
}

// Bind with a nil ip binds the wildcard address.
func (s *Socket) Bind(ip net.IP, port int) error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket bind")
	}
	if err := unix.Bind(s.fd, sockaddr(ip, port)); err != nil {
		return errors.Wrap(err, "socket bind")
	}
	s.bound = true
	return nil
}

// Connect starts a connection. When the kernel reports the connect is in
// progress the socket stays in a connecting state and unix.EINPROGRESS is
// returned; call Connect again once writable to complete it.
func (s *Socket) Connect(ip net.IP, port int) error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket connect")
	}
	if s.connected {
		return nil
	}
	if s.connecting {
		return s.finishConnect()
	}
	for {
		err := unix.Connect(s.fd, sockaddr(ip, port))
		switch err {
		case nil:
			s.connected = true
			return nil
		case unix.EINTR:
			continue
		case unix.EINPROGRESS, unix.EAGAIN, unix.EALREADY:
			s.connecting = true
			return unix.EINPROGRESS
		case unix.EISCONN:
			s.connected = true
			return nil
		}
		return errors.Wrap(err, "socket connect")
	}
}

func (s *Socket) finishConnect() error {
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLOUT}}
	n, err := unix.Poll(fds, 0)
	if err != nil && err != unix.EINTR {
		return errors.Wrap(err, "socket connect poll")
	}
	if n == 0 {
		return unix.EINPROGRESS
	}
	soErr, err := unix.GetsockoptInt(s.fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return errors.Wrap(err, "socket connect so_error")
	}
	s.connecting = false
	if soErr != 0 {
		return errors.Wrap(unix.Errno(soErr), "socket connect")
	}
	s.connected = true
	return nil
}

// Send performs one write. It returns unix.EAGAIN when the kernel buffer is
// full and unix.ENOTCONN when the socket is not connected.
func (s *Socket) Send(p []byte) (int, error) {
	if !s.connected {
		return 0, unix.ENOTCONN
	}
	for {
		n, err := unix.Write(s.fd, p)
		if err == nil {
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, unix.EAGAIN
		}
		s.connected = false
		return 0, errors.Wrap(err, "socket send")
	}
}

// Read reports a peer close as unix.ENOTCONN and marks the socket
// disconnected.
func (s *Socket) Read(p []byte) (int, error) {
	if !s.connected {
		return 0, unix.ENOTCONN
	}
	if len(p) == 0 {
		return 0, nil
	}
	for {
		n, err := unix.Read(s.fd, p)
		if err == nil {
			if n == 0 {
				s.connected = false
				return 0, unix.ENOTCONN
			}
			return n, nil
		}
		if err == unix.EINTR {
			continue
		}
		if err == unix.EAGAIN {
			return 0, unix.EAGAIN
		}
		s.connected = false
		return 0, errors.Wrap(err, "socket read")
	}
}

// WaitReady blocks until the socket is ready for mask or timeout passes.
// It returns nil, ErrNetTimeout, or the poll error.
func (s *Socket) WaitReady(mask EventMask, timeout time.Duration) error {
	if s.fd < 0 {
		return errors.Wrap(unix.EBADF, "socket wait ready")
	}
	if mask == 0 {
		mask = EvRead | EvWrite
	}
	var events int16
	if mask&EvRead != 0 {
		events |= unix.POLLIN
	}
	if mask&EvWrite != 0 {
		events |= unix.POLLOUT
	}
	fds := []unix.PollFd{{Fd: int32(s.fd), Events: events}}
	deadline := time.Now().Add(timeout)
	for {
		wait := time.Until(deadline)
		if wait < 0 {
			wait = 0
		}
		n, err := unix.Poll(fds, int(wait/time.Millisecond))
		if err == unix.EINTR {
			if time.Now().After(deadline) {
				return ErrNetTimeout
			}
			continue
		}
		if err != nil {
			return errors.Wrap(err, "socket wait ready")
		}
		if n == 0 {
			return ErrNetTimeout
		}
		if fds[0].Revents&unix.POLLNVAL != 0 {
			return errors.Wrap(unix.EBADF, "socket wait ready")
		}
		return nil
	}
}

// LocalAddr returns the bound local address.
func (s *Socket) LocalAddr() (net.IP, int, error) {
	if s.fd < 0 {
		return nil, 0, errors.Wrap(unix.EBADF, "socket local addr")
	}
	sa, err := unix.Getsockname(s.fd)
	if err != nil {
		return nil, 0, errors.Wrap(err, "socket local addr")
	}
	in4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return nil, 0, errors.Errorf("socket local addr: unexpected family %T", sa)
	}
	return net.IPv4(in4.Addr[0], in4.Addr[1], in4.Addr[2], in4.Addr[3]), in4.Port, nil
}

// RequestEvent waits for mask with the socket's own timeout.
func (s *Socket) RequestEvent(mask EventMask) error {
	return s.WaitReady(mask, s.WaitTimeout)
}

func (s *Socket) Close() error {
	if s.fd < 0 {
		return nil
	}
	err := unix.Close(s.fd)
	s.fd = -1
	s.bound, s.connecting, s.connected = false, false, false
	return errors.Wrap(err, "socket close")
}

func sockaddr(ip net.IP, port int) *unix.SockaddrInet4 {
	sa := &unix.SockaddrInet4{Port: port}
	if ip4 := ip.To4(); ip4 != nil {
		copy(sa.Addr[:], ip4)
	}
	return sa
}

// IsWouldBlock reports the transient errors a caller retries after a
// readiness wait.
func IsWouldBlock(err error) bool {
	return errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINPROGRESS) || errors.Is(err, unix.EALREADY)
}

// Errno extracts the OS error number carried by err, or 0.
func Errno(err error) int {
	var errno unix.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return 0
}
