package RTP

import (
	"testing"

	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalHeader(t *testing.T) {
	assert := assert.New(t)
	buf := make([]byte, 64)
	p := Packet(buf)
	require.NoError(t, p.MarshalHeader(0x0E, true, 0x1234, 0xDEADBEEF, 0x01020304))
	p = p.SetBody([]byte{0xAA, 0xBB})

	assert.Equal([]byte{0x80, 0x8E, 0x12, 0x34, 0xDE, 0xAD, 0xBE, 0xEF, 0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB}, []byte(p))
	assert.True(p.HeaderIsValid())
	assert.Equal(uint8(0x0E), p.PayloadType())
	assert.True(p.Marker())
	assert.Equal(uint16(0x1234), p.SeqNum())
	assert.Equal(uint32(0xDEADBEEF), p.TimeStamp())
	assert.Equal(uint32(0x01020304), p.SSRC())

	require.NoError(t, p.MarshalHeader(0x00, false, 0, 0, 0))
	assert.Equal(byte(0x80), p[0])
	assert.Equal(byte(0x00), p[1])
	assert.False(p.Marker())

	assert.Error(Packet(make([]byte, 8)).MarshalHeader(0, false, 1, 1, 1))
}

func TestPacketMatchesPion(t *testing.T) {
	buf := make([]byte, 1500)
	p := Packet(buf)
	require.NoError(t, p.MarshalHeader(0x05, true, 65535, 160, 0x1A2B3C))
	p = p.SetBody([]byte("payload"))

	var pkt rtp.Packet
	require.NoError(t, pkt.Unmarshal(p))
	assert.Equal(t, uint8(2), pkt.Version)
	assert.True(t, pkt.Marker)
	assert.Equal(t, uint8(5), pkt.PayloadType)
	assert.Equal(t, uint16(65535), pkt.SequenceNumber)
	assert.Equal(t, uint32(160), pkt.Timestamp)
	assert.Equal(t, uint32(0x1A2B3C), pkt.SSRC)
	assert.Equal(t, []byte("payload"), pkt.Payload)

	ref, err := (&rtp.Packet{
		Header: rtp.Header{
			Version:        2,
			Marker:         true,
			PayloadType:    5,
			SequenceNumber: 65535,
			Timestamp:      160,
			SSRC:           0x1A2B3C,
		},
		Payload: []byte("payload"),
	}).Marshal()
	require.NoError(t, err)
	assert.Equal(t, ref, []byte(p))
}

func TestHeaderIsValid(t *testing.T) {
	assert := assert.New(t)
	assert.False(Packet(make([]byte, 11)).HeaderIsValid())
	bad := make([]byte, 12)
	bad[0] = 0x40
	assert.False(Packet(bad).HeaderIsValid())
	csrc := make([]byte, 12)
	csrc[0] = 0x82
	assert.False(Packet(csrc).HeaderIsValid())
	good := make([]byte, 12)
	require.NoError(t, Packet(good).MarshalHeader(127, false, 0, 0, 0))
	assert.True(Packet(good).HeaderIsValid())
}

func TestParseRTPPack(t *testing.T) {
	assert := assert.New(t)
	buf := make([]byte, 32)
	p := Packet(buf)
	require.NoError(t, p.MarshalHeader(96, true, 7, 9000, 42))
	p = p.SetBody([]byte{1, 2, 3, 4, 0, 0, 3})
	p[0] |= 0x20

	pack, err := ParseRTPPack(p)
	require.NoError(t, err)
	assert.Equal(1, pack.Mark)
	assert.Equal(96, pack.PayloadType)
	assert.Equal(7, pack.Seq)
	assert.Equal(9000, pack.Ts)
	assert.Equal(42, pack.SSRC)
	assert.Equal(3, pack.PadLen)
	assert.Equal([]byte{1, 2, 3, 4}, pack.Data)

	_, err = ParseRTPPack([]byte{0x80, 0})
	assert.ErrorIs(err, ErrShortPacket)

	csrc := make([]byte, 12)
	csrc[0] = 0x82
	_, err = ParseRTPPack(csrc)
	assert.Error(err)

	version1 := make([]byte, 12)
	version1[0] = 0x40
	_, err = ParseRTPPack(version1)
	assert.Error(err)
}
