package Formatter

import (
	"fmt"
	"strconv"
)

const EOL = "\r\n"

// Formatter appends text into a fixed-capacity buffer. Writes that do not
// fit are truncated at capacity and the formatter is marked truncated.
type Formatter struct {
	buf          []byte
	offset       int
	bytesWritten int
	truncated    bool
}

func NewFormatter(capacity int) *Formatter {
	return &Formatter{buf: make([]byte, capacity)}
}

// Wrap uses buf as the backing storage; nothing is allocated.
func Wrap(buf []byte) *Formatter {
	return &Formatter{buf: buf}
}

func (f *Formatter) Put(data []byte) bool {
	n := copy(f.buf[f.offset:], data)
	f.offset += n
	f.bytesWritten += n
	if n < len(data) {
		f.truncated = true
		return false
	}
	return true
}

func (f *Formatter) PutString(s string) bool {
	n := copy(f.buf[f.offset:], s)
	f.offset += n
	f.bytesWritten += n
	if n < len(s) {
		f.truncated = true
		return false
	}
	return true
}

func (f *Formatter) PutChar(c byte) bool {
	if f.offset >= len(f.buf) {
		f.truncated = true
		return false
	}
	f.buf[f.offset] = c
	f.offset++
	f.bytesWritten++
	return true
}

func (f *Formatter) PutInt(v int64) bool {
	var tmp [20]byte
	return f.Put(strconv.AppendInt(tmp[:0], v, 10))
}

func (f *Formatter) PutSpace() bool {
	return f.PutChar(' ')
}

func (f *Formatter) PutEOL() bool {
	return f.PutString(EOL)
}

// PutFmt printf-formats into the remaining space and reports false when
// the output had to be cut.
func (f *Formatter) PutFmt(format string, args ...interface{}) bool {
	return f.PutString(fmt.Sprintf(format, args...))
}

// Bytes returns the formatted content. The slice aliases the buffer.
func (f *Formatter) Bytes() []byte {
	return f.buf[:f.offset]
}

func (f *Formatter) String() string {
	return string(f.buf[:f.offset])
}

func (f *Formatter) Offset() int {
	return f.offset
}

func (f *Formatter) SpaceLeft() int {
	return len(f.buf) - f.offset
}

func (f *Formatter) Capacity() int {
	return len(f.buf)
}

// BytesWritten counts every byte ever put, across Reset calls.
func (f *Formatter) BytesWritten() int {
	return f.bytesWritten
}

func (f *Formatter) Truncated() bool {
	return f.truncated
}

// Reset rewinds to offset keep, clamped to the current offset.
func (f *Formatter) Reset(keep int) {
	if keep < 0 {
		keep = 0
	}
	if keep > f.offset {
		keep = f.offset
	}
	f.offset = keep
	f.truncated = false
}
