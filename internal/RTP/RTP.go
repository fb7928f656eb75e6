package RTP

import (
	"encoding/binary"
	"fmt"

	"github.com/pion/rtp"
	"github.com/pkg/errors"
)

/*
    0                   1                   2                   3
    0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |V=2|P|X|  CC   |M|     PT      |       sequence number         |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |                           timestamp                           |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
   |           synchronization source (SSRC) identifier            |
   +=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+=+
   |            contributing source (CSRC) identifiers             |
   |                             ....                              |
   +-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
*/

const (
	HeaderSize = 12
	Version    = 2
)

var ErrShortPacket = errors.New("rtp packet shorter than header")

// Packet frames an RTP header in place over a caller supplied buffer.
type Packet []byte

// MarshalHeader writes a version 2 header in place. Padding, extension
// and CSRC count are zero.
func (p Packet) MarshalHeader(payloadType uint8, marker bool, seq uint16, ts, ssrc uint32) error {
	h := rtp.Header{
		Version:        Version,
		Marker:         marker,
		PayloadType:    payloadType & 0x7f,
		SequenceNumber: seq,
		Timestamp:      ts,
		SSRC:           ssrc,
	}
	if _, err := h.MarshalTo(p); err != nil {
		return errors.Wrapf(err, "rtp header into %d bytes", len(p))
	}
	return nil
}

func (p Packet) PayloadType() uint8 {
	return p[1] & 0x7f
}

func (p Packet) Marker() bool {
	return p[1]&0x80 != 0
}

func (p Packet) SeqNum() uint16 {
	return binary.BigEndian.Uint16(p[2:4])
}

func (p Packet) TimeStamp() uint32 {
	return binary.BigEndian.Uint32(p[4:8])
}

func (p Packet) SSRC() uint32 {
	return binary.BigEndian.Uint32(p[8:12])
}

// HeaderLen includes the CSRC list.
func (p Packet) HeaderLen() int {
	return HeaderSize + 4*int(p[0]&0x0f)
}

// HeaderIsValid checks the length and version only. Any payload type is
// accepted.
func (p Packet) HeaderIsValid() bool {
	if len(p) < HeaderSize {
		return false
	}
	if p[0]>>6 != Version {
		return false
	}
	return p.HeaderLen() <= len(p)
}

// SetBody copies body after the fixed header and returns the packet cut to
// the framed length. A body that does not fit is truncated.
func (p Packet) SetBody(body []byte) Packet {
	n := copy(p[HeaderSize:], body)
	return p[:HeaderSize+n]
}

func (p Packet) Body() []byte {
	return p[p.HeaderLen():]
}

type RTPPack struct {
	Mark        int
	PayloadType int
	Seq         int
	Ts          int
	SSRC        int
	PadLen      int
	Data        []byte
}

func (p RTPPack) String() string {
	return fmt.Sprintf("seq:%v Mark:%v PayLoadType:%v Ts:%v SSRC:%v PadLen:%v", p.Seq, p.Mark, p.PayloadType, p.Ts, p.SSRC, p.PadLen)
}

func ParseRTPPack(src []byte) (RTPPack, error) {
	if len(src) < HeaderSize {
		return RTPPack{}, errors.Wrapf(ErrShortPacket, "len %d", len(src))
	}
	var h rtp.Header
	start, err := h.Unmarshal(src)
	if err != nil {
		return RTPPack{}, errors.Wrap(err, "rtp header")
	}
	if h.Version != Version {
		return RTPPack{}, errors.Errorf("rtp version %d", h.Version)
	}
	end := len(src)
	var padLen int
	if h.Padding {
		padLen = int(src[end-1])
		if start+padLen > end {
			return RTPPack{}, errors.New("rtp padding exceeds packet")
		}
		end -= padLen
	}
	m := 0
	if h.Marker {
		m = 1
	}
	return RTPPack{
		Mark:        m,
		PayloadType: int(h.PayloadType),
		Seq:         int(h.SequenceNumber),
		Ts:          int(h.Timestamp),
		SSRC:        int(h.SSRC),
		PadLen:      padLen,
		Data:        src[start:end],
	}, nil
}
