package Socket

import (
	"bytes"
	"fmt"
	"net"
	"time"

	"github.com/pkg/errors"
)

const SendBufferLen = 2048

var (
	ErrSendBufferFull = errors.New("data exceeds send queue capacity")
	ErrSendInProgress = errors.New("send called with new data while queue not drained")
)

// ClientSocket is a connecting TCP client with an outbound queue. A Send
// that cannot finish leaves the rest queued; the caller waits on
// EventMask and calls Send again with the same data (or nil) to resume.
type ClientSocket struct {
	hostAddr  net.IP
	hostPort  int
	sock      *Socket
	eventMask EventMask
	sendBuf   [SendBufferLen]byte
	sendLen   int
	sentLen   int
}

func NewClientSocket(addr net.IP, port int) *ClientSocket {
	return &ClientSocket{
		hostAddr: addr,
		hostPort: port,
		sock:     NewSocket(),
	}
}

func (c *ClientSocket) Set(addr net.IP, port int) {
	c.hostAddr = addr
	c.hostPort = port
}

func (c *ClientSocket) HostAddr() string {
	return fmt.Sprintf("%s:%d", c.hostAddr, c.hostPort)
}

func (c *ClientSocket) Socket() *Socket {
	return c.sock
}

func (c *ClientSocket) EventMask() EventMask {
	return c.eventMask
}

// Pending is the number of queued bytes not yet written.
func (c *ClientSocket) Pending() int {
	return c.sendLen - c.sentLen
}

func (c *ClientSocket) open() error {
	if c.sock.IsBound() {
		return nil
	}
	if err := c.sock.Open(); err != nil {
		return err
	}
	if err := c.sock.NoDelay(); err != nil {
		return err
	}
	if err := c.sock.Bind(nil, 0); err != nil {
		return err
	}
	return c.sock.KeepAlive()
}

// Connect is a no-op once connected. An in-progress connect records
// interest in both read and write readiness.
func (c *ClientSocket) Connect() error {
	if err := c.open(); err != nil {
		return err
	}
	if c.sock.IsConnected() {
		return nil
	}
	err := c.sock.Connect(c.hostAddr, c.hostPort)
	if IsWouldBlock(err) {
		c.eventMask = EvRead | EvWrite
	}
	return err
}

func (c *ClientSocket) Send(p []byte) error {
	if c.sendLen == 0 {
		if len(p) > len(c.sendBuf) {
			return errors.Wrapf(ErrSendBufferFull, "%d > %d", len(p), len(c.sendBuf))
		}
		c.sendLen = copy(c.sendBuf[:], p)
		c.sentLen = 0
	} else if p != nil && !bytes.Equal(p, c.sendBuf[:c.sendLen]) {
		return ErrSendInProgress
	}
	if err := c.Connect(); err != nil {
		return err
	}
	return c.flush()
}

func (c *ClientSocket) flush() error {
	for c.sentLen < c.sendLen {
		n, err := c.sock.Send(c.sendBuf[c.sentLen:c.sendLen])
		c.sentLen += n
		if err != nil {
			c.eventMask = EvWrite
			return err
		}
	}
	c.sendLen, c.sentLen = 0, 0
	return nil
}

func (c *ClientSocket) Read(p []byte) (int, error) {
	if err := c.Connect(); err != nil {
		return 0, err
	}
	n, err := c.sock.Read(p)
	if err != nil {
		c.eventMask = EvRead
	}
	return n, err
}

// Write is a single direct write that bypasses the queue.
func (c *ClientSocket) Write(p []byte) (int, error) {
	if err := c.Connect(); err != nil {
		return 0, err
	}
	n, err := c.sock.Send(p)
	if err != nil {
		c.eventMask = EvWrite
	}
	return n, err
}

func (c *ClientSocket) RequestEvent(mask EventMask) error {
	return c.sock.RequestEvent(mask)
}

// WaitReady blocks until the socket is ready for mask or timeout passes.
func (c *ClientSocket) WaitReady(mask EventMask, timeout time.Duration) error {
	return c.sock.WaitReady(mask, timeout)
}

func (c *ClientSocket) Close() error {
	c.sendLen, c.sentLen = 0, 0
	c.eventMask = 0
	return c.sock.Close()
}
