package RTSP

import (
	"encoding/binary"
	"io"
	"math"

	"github.com/pkg/errors"
)

const interleavedHeaderLen = 4

// interleavedParams tracks a framed packet the socket only partly took.
// While extraLen > 0 no new packet may be framed.
type interleavedParams struct {
	buf      [interleavedHeaderLen + ReqBufSize]byte
	offset   int
	extraLen int
	channel  uint8
}

// SendInterleavedWrite frames payload as '$' channel len16 payload and
// writes it once. If an earlier packet is still partly unsent, payload is
// ignored, getNext is false and only the remainder is retried. Would-block
// errors are returned as is; the remainder is kept for the next call.
func (c *RtspClient) SendInterleavedWrite(channel uint8, payload []byte) (getNext bool, err error) {
	p := &c.interleaved
	var send []byte
	if p.extraLen > 0 {
		getNext = false
		send = p.buf[p.offset : p.offset+p.extraLen]
	} else {
		if len(payload) > ReqBufSize || len(payload) > math.MaxUint16 {
			return false, errors.Wrapf(ErrInterleavedTooLarge, "%d bytes", len(payload))
		}
		getNext = true
		p.buf[0] = MagicChar
		p.buf[1] = channel
		binary.BigEndian.PutUint16(p.buf[2:4], uint16(len(payload)))
		copy(p.buf[interleavedHeaderLen:], payload)
		send = p.buf[:interleavedHeaderLen+len(payload)]
		p.offset = 0
		p.channel = channel
	}

	n, err := c.conn.Write(send)
	if err != nil {
		n = 0
	}
	switch {
	case err == nil && n < len(send):
		p.offset += n
		p.extraLen = len(send) - n
	case err == nil:
		p.offset, p.extraLen = 0, 0
	case p.extraLen == 0:
		// nothing went out, keep the whole packet
		p.extraLen = len(send)
	}
	return getNext, err
}

// PutMediaPacket sends payload on the channel negotiated for trackID.
func (c *RtspClient) PutMediaPacket(trackID uint32, isRTCP bool, payload []byte) (getNext bool, err error) {
	for ch, elem := range c.channels {
		if elem.Used && elem.TrackID == trackID && elem.IsRTCP == isRTCP {
			return c.SendInterleavedWrite(uint8(ch), payload)
		}
	}
	return false, errors.Wrapf(ErrNoChannel, "track %d rtcp %v", trackID, isRTCP)
}

func (c *RtspClient) InterleavedPending() bool {
	return c.interleaved.extraLen > 0
}

// FlushInterleaved writes out a partly sent packet, if any, and returns nil
// once nothing is pending.
func (c *RtspClient) FlushInterleaved() error {
	for c.interleaved.extraLen > 0 {
		before := c.interleaved.extraLen
		if _, err := c.SendInterleavedWrite(c.interleaved.channel, nil); err != nil {
			return err
		}
		if c.interleaved.extraLen == before {
			return errors.Wrap(io.ErrShortWrite, "interleaved flush")
		}
	}
	return nil
}

// DropInterleaved abandons a partly sent packet.
func (c *RtspClient) DropInterleaved() {
	c.interleaved.offset, c.interleaved.extraLen = 0, 0
}
