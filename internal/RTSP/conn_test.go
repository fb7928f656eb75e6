package RTSP

import (
	"bytes"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/Socket"
	"golang.org/x/sys/unix"
)

// fakeConn replays scripted reads and records what the client writes.
// With no read queued, Read would block.
type fakeConn struct {
	reads     [][]byte
	readSizes []int
	sent      bytes.Buffer
	sends     int
	written   bytes.Buffer
	lastWrite []byte
	// per Write call: bytes accepted, or -1 for would-block
	writeLimits []int
	writeErr    error
	keepWrites  bool
	mask        Socket.EventMask
	closed      bool
	waits       int
}

func newFakeConn(reads ...string) *fakeConn {
	f := &fakeConn{keepWrites: true}
	for _, r := range reads {
		f.reads = append(f.reads, []byte(r))
	}
	return f
}

func (f *fakeConn) queue(reads ...string) {
	for _, r := range reads {
		f.reads = append(f.reads, []byte(r))
	}
}

func (f *fakeConn) Send(p []byte) error {
	f.sends++
	f.sent.Write(p)
	return nil
}

func (f *fakeConn) Read(p []byte) (int, error) {
	f.readSizes = append(f.readSizes, len(p))
	if len(f.reads) == 0 {
		f.mask = Socket.EvRead
		return 0, unix.EAGAIN
	}
	n := copy(p, f.reads[0])
	f.reads[0] = f.reads[0][n:]
	if len(f.reads[0]) == 0 {
		f.reads = f.reads[1:]
	}
	return n, nil
}

func (f *fakeConn) Write(p []byte) (int, error) {
	if f.writeErr != nil {
		return 0, f.writeErr
	}
	n := len(p)
	if len(f.writeLimits) > 0 {
		limit := f.writeLimits[0]
		f.writeLimits = f.writeLimits[1:]
		if limit < 0 {
			f.mask = Socket.EvWrite
			return 0, unix.EAGAIN
		}
		if limit < n {
			n = limit
		}
	}
	f.lastWrite = append(f.lastWrite[:0], p[:n]...)
	if f.keepWrites {
		f.written.Write(p[:n])
	}
	return n, nil
}

func (f *fakeConn) EventMask() Socket.EventMask {
	return f.mask
}

func (f *fakeConn) RequestEvent(mask Socket.EventMask) error {
	f.waits++
	return nil
}

func (f *fakeConn) WaitReady(mask Socket.EventMask, timeout time.Duration) error {
	f.waits++
	return nil
}

func (f *fakeConn) Close() error {
	f.closed = true
	return nil
}
