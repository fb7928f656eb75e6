package RichConn

import (
	"bufio"
	"io"
)

// ReaderWriter buffers both directions of a connection. The first read
// or write error sticks and is returned by every later call.
type ReaderWriter struct {
	*bufio.ReadWriter
	readErr  error
	writeErr error
}

func NewReaderWriter(rw io.ReadWriter, bufSize int) *ReaderWriter {
	return &ReaderWriter{
		ReadWriter: bufio.NewReadWriter(bufio.NewReaderSize(rw, bufSize), bufio.NewWriterSize(rw, bufSize)),
	}
}

// ReadFull fills p completely.
func (rw *ReaderWriter) ReadFull(p []byte) (int, error) {
	if rw.readErr != nil {
		return 0, rw.readErr
	}
	n, err := io.ReadFull(rw.Reader, p)
	rw.readErr = err
	return n, err
}

// ReadUintBE reads an n byte big-endian integer.
func (rw *ReaderWriter) ReadUintBE(n int) (uint32, error) {
	if rw.readErr != nil {
		return 0, rw.readErr
	}
	ret := uint32(0)
	for i := 0; i < n; i++ {
		b, err := rw.Reader.ReadByte()
		if err != nil {
			rw.readErr = err
			return 0, err
		}
		ret = ret<<8 + uint32(b)
	}
	return ret, nil
}

// WriteFlush writes p and flushes it out.
func (rw *ReaderWriter) WriteFlush(p []byte) error {
	if rw.writeErr != nil {
		return rw.writeErr
	}
	if _, err := rw.Writer.Write(p); err != nil {
		rw.writeErr = err
		return err
	}
	if err := rw.Writer.Flush(); err != nil {
		rw.writeErr = err
		return err
	}
	return nil
}
