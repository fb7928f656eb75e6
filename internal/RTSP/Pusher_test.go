package RTSP

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/RTP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/Socket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

var g711 = MediaInfo{AudioCodec: AudioCodecG711, AudioSamplerate: 8000, AudioChannel: 1}

type callbackLog struct {
	states   []PusherState
	statuses []int
}

func (l *callbackLog) record(state PusherState, status int, ctx interface{}) {
	l.states = append(l.states, state)
	l.statuses = append(l.statuses, status)
}

func (l *callbackLog) last() (PusherState, int) {
	if len(l.states) == 0 {
		return 0, 0
	}
	return l.states[len(l.states)-1], l.statuses[len(l.statuses)-1]
}

// pushingPusher returns a Pusher already past PLAY on a fake connection.
func pushingPusher(t *testing.T, mi MediaInfo) (*Pusher, *fakeConn, *callbackLog) {
	u, err := ParseRtspUrl(testUrl)
	require.NoError(t, err)
	conn := newFakeConn()
	log := &callbackLog{}
	p := NewPusher()
	p.SetCallback(log.record, nil)
	p.attach(conn, u, "", "")
	p.media = mi
	p.timestampBase = 0
	p.client.mapChannel(RtpChannel, AudioTrackID, false)
	p.state = PushPushing
	return p, conn, log
}

// lastPacket strips the interleaved header from the last write.
func lastPacket(t *testing.T, conn *fakeConn) RTP.Packet {
	require.True(t, len(conn.lastWrite) > 4+RTP.HeaderSize)
	require.Equal(t, byte(MagicChar), conn.lastWrite[0])
	return RTP.Packet(append([]byte(nil), conn.lastWrite[4:]...))
}

func TestPushBeforeStart(t *testing.T) {
	assert := assert.New(t)
	p := NewPusher()
	assert.ErrorIs(p.PushFrame(&MediaFrame{FrameData: []byte{1}}), ErrNotInPushingState)
	assert.ErrorIs(p.Close(context.Background()), ErrNotConnected)

	u, _ := ParseRtspUrl(testUrl)
	conn := newFakeConn()
	p.attach(conn, u, "", "")
	assert.ErrorIs(p.PushFrame(&MediaFrame{FrameData: []byte{1}}), ErrNotInPushingState)
	assert.Equal(0, conn.sends)
	assert.Equal(0, conn.written.Len())
}

func TestPushFrameFraming(t *testing.T) {
	assert := assert.New(t)
	p, conn, log := pushingPusher(t, g711)
	data := bytes.Repeat([]byte{0x55}, 160)

	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: data, TimestampSec: 1}))
	assert.Equal([]byte{'$', RtpChannel, 0, 172}, conn.lastWrite[:4])
	pkt := lastPacket(t, conn)
	assert.True(pkt.HeaderIsValid())
	assert.Equal(uint8(0), pkt.PayloadType())
	assert.True(pkt.Marker())
	assert.Equal(uint16(1), pkt.SeqNum())
	assert.Equal(uint32(8000), pkt.TimeStamp())
	assert.Equal(p.ssrc, pkt.SSRC())
	assert.Equal(data, pkt.Body())
	assert.Equal([]PusherState{PusherPushing}, log.states)

	// a server assigned ssrc wins over the local one
	p.client.setSSRC(AudioTrackID, 0xDEADBEEF)
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: data}))
	pkt = lastPacket(t, conn)
	assert.Equal(uint32(0xDEADBEEF), pkt.SSRC())
	assert.Equal(uint16(2), pkt.SeqNum())
}

func TestPushFrameMP3Header(t *testing.T) {
	assert := assert.New(t)
	p, conn, _ := pushingPusher(t, MediaInfo{AudioCodec: AudioCodecMP3, AudioSamplerate: 44100, AudioChannel: 2})

	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("abc")}))
	assert.Equal([]byte{'$', RtpChannel, 0, 19}, conn.lastWrite[:4])
	pkt := lastPacket(t, conn)
	assert.Equal(uint8(14), pkt.PayloadType())
	assert.Equal([]byte{0, 0, 0, 0, 'a', 'b', 'c'}, pkt.Body())

	err := p.PushFrame(&MediaFrame{FrameData: make([]byte, MaxRtpPayload-3)})
	assert.ErrorIs(err, ErrFrameTooLarge)
}

func TestPushFrameTooLarge(t *testing.T) {
	p, conn, _ := pushingPusher(t, g711)
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: make([]byte, MaxRtpPayload)}))
	assert.Equal(t, 4+RTP.HeaderSize+MaxRtpPayload, len(conn.lastWrite))
	assert.ErrorIs(t, p.PushFrame(&MediaFrame{FrameData: make([]byte, MaxRtpPayload+1)}), ErrFrameTooLarge)
	assert.Equal(t, PushPushing, p.State())
}

func TestPushSeqWraps(t *testing.T) {
	assert := assert.New(t)
	p, conn, _ := pushingPusher(t, g711)
	conn.keepWrites = false
	frame := &MediaFrame{FrameData: []byte{1, 2}}

	for i := 0; i < 65535; i++ {
		require.NoError(t, p.PushFrame(frame))
	}
	assert.Equal(uint16(65535), lastPacket(t, conn).SeqNum())
	require.NoError(t, p.PushFrame(frame))
	assert.Equal(uint16(0), lastPacket(t, conn).SeqNum())
	require.NoError(t, p.PushFrame(frame))
	assert.Equal(uint16(1), lastPacket(t, conn).SeqNum())
}

func TestPushTimestamps(t *testing.T) {
	assert := assert.New(t)
	p, conn, _ := pushingPusher(t, g711)
	times := [][2]uint32{{0, 0}, {0, 20000}, {0, 40000}, {1, 0}, {1, 999999}, {2, 0}}
	want := []uint32{0, 160, 320, 8000, 16000, 16000}

	var prev uint32
	for i, tm := range times {
		require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte{0}, TimestampSec: tm[0], TimestampUsec: tm[1]}))
		ts := lastPacket(t, conn).TimeStamp()
		assert.Equal(want[i], ts)
		assert.True(ts >= prev)
		prev = ts
	}

	base := uint32(0xFFFFFF00)
	p.timestampBase = base
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte{0}, TimestampSec: 1}))
	assert.Equal(base+8000, lastPacket(t, conn).TimeStamp())
}

func TestPushBlockedFrameResumes(t *testing.T) {
	assert := assert.New(t)
	p, conn, log := pushingPusher(t, g711)

	conn.writeLimits = []int{-1}
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("first")}))
	assert.True(p.FramePending())
	assert.Equal(1, conn.waits)
	assert.Empty(log.states)

	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("second")}))
	assert.False(p.FramePending())
	assert.Equal(0, p.DroppedFrames())
	assert.Equal([]PusherState{PusherPushing, PusherPushing}, log.states)

	out := conn.written.Bytes()
	require.Len(t, out, 4+RTP.HeaderSize+5+4+RTP.HeaderSize+6)
	first := RTP.Packet(out[4 : 4+RTP.HeaderSize+5])
	second := RTP.Packet(out[4+RTP.HeaderSize+5+4:])
	assert.Equal("first", string(first.Body()))
	assert.Equal("second", string(second.Body()))
	assert.Equal(first.SeqNum()+1, second.SeqNum())
}

func TestPushDropsWhilePending(t *testing.T) {
	assert := assert.New(t)
	p, conn, _ := pushingPusher(t, g711)

	conn.writeLimits = []int{-1, -1}
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("first")}))
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("second")}))
	assert.Equal(1, p.DroppedFrames())
	assert.True(p.FramePending())

	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("third")}))
	assert.False(p.FramePending())
	assert.Contains(conn.written.String(), "first")
	assert.NotContains(conn.written.String(), "second")
	assert.Contains(conn.written.String(), "third")

	// the dropped frame took no sequence number
	out := conn.written.Bytes()
	require.Len(t, out, 4+RTP.HeaderSize+5+4+RTP.HeaderSize+5)
	first := RTP.Packet(out[4 : 4+RTP.HeaderSize+5])
	third := RTP.Packet(out[4+RTP.HeaderSize+5+4:])
	assert.Equal("third", string(third.Body()))
	assert.Equal(first.SeqNum()+1, third.SeqNum())
}

func TestPushHardError(t *testing.T) {
	assert := assert.New(t)
	p, conn, log := pushingPusher(t, g711)

	conn.writeErr = unix.ECONNRESET
	err := p.PushFrame(&MediaFrame{FrameData: []byte{1}})
	assert.ErrorIs(err, unix.ECONNRESET)
	assert.Equal(PushFailed, p.State())
	assert.True(conn.closed)
	state, status := log.last()
	assert.Equal(PusherError, state)
	assert.Equal(int(unix.ECONNRESET), status)
	// the unsent packet is abandoned, not kept for a later flush
	assert.False(p.FramePending())
	assert.False(p.Client().InterleavedPending())

	assert.ErrorIs(p.PushFrame(&MediaFrame{FrameData: []byte{1}}), ErrNotInPushingState)
	assert.ErrorIs(p.Close(context.Background()), ErrNotConnected)
}

func TestPusherAdvance(t *testing.T) {
	assert := assert.New(t)
	u, err := ParseRtspUrl("rtsp://user:pw@10.0.0.1:554/live/test")
	require.NoError(t, err)
	conn := newFakeConn()
	log := &callbackLog{}
	p := NewPusher()
	p.SetCallback(log.record, nil)
	p.attach(conn, u, "", "override")
	p.sdp = "v=0\r\n"
	assert.Equal("user", p.Client().Name())
	assert.Equal("override", p.Client().Password())

	err = p.Advance()
	assert.True(Socket.IsWouldBlock(err))
	assert.Equal(Socket.EvRead, p.EventMask())
	assert.Equal(PushSendingOptions, p.State())

	conn.queue(
		"RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n",
		"RTSP/1.0 200 OK\r\nCSeq: 2\r\n\r\n",
		"RTSP/1.0 200 OK\r\nCSeq: 3\r\nSession: 42\r\nTransport: RTP/AVP/TCP;unicast;mode=record;interleaved=0-1\r\n\r\n",
		"RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n",
	)
	for p.State() != PushPushing {
		require.NoError(t, p.Advance())
	}
	assert.Equal([]PusherState{PusherConnected}, log.states)
	assert.Contains(conn.sent.String(), "SETUP rtsp://10.0.0.1:554/live/test/trackID=1 RTSP/1.0\r\n")
	assert.NotContains(conn.sent.String(), "user:pw")

	// a frame left half written goes out before TEARDOWN
	conn.writeLimits = []int{-1}
	require.NoError(t, p.PushFrame(&MediaFrame{FrameData: []byte("tail")}))
	assert.True(p.FramePending())

	conn.queue("RTSP/1.0 200 OK\r\nCSeq: 5\r\n\r\n")
	require.NoError(t, p.Close(context.Background()))
	assert.Equal(PushDone, p.State())
	assert.False(p.FramePending())
	assert.Contains(conn.written.String(), "tail")
	assert.Contains(conn.sent.String(), "TEARDOWN rtsp://10.0.0.1:554/live/test RTSP/1.0\r\nCSeq: 5\r\nSession: 42\r\n")
	assert.True(conn.closed)
	state, _ := log.last()
	assert.Equal(PusherDisconnected, state)
	assert.NoError(p.Close(context.Background()))
}

func TestPusherAdvanceRejected(t *testing.T) {
	u, _ := ParseRtspUrl(testUrl)
	conn := newFakeConn("RTSP/1.0 200 OK\r\n\r\n", "RTSP/1.0 403 Forbidden\r\n\r\n")
	p := NewPusher()
	p.attach(conn, u, "", "")
	require.NoError(t, p.Advance())
	assert.ErrorIs(t, p.Advance(), ErrUnexpectedStatus)
	assert.Equal(t, PushSendingAnnounce, p.State())
	assert.Equal(t, 403, p.Client().Status())
}

func TestStartRejectsInput(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name     string
		url      string
		connType ConnectType
		media    MediaInfo
		err      error
	}{
		{"bad url", "http://127.0.0.1/live", RtpOverTCP, g711, ErrBadURLFormat},
		{"udp", "rtsp://127.0.0.1/live", RtpOverUDP, g711, ErrUnsupportedTransport},
		{"codec", "rtsp://127.0.0.1/live", RtpOverTCP, MediaInfo{AudioCodec: 0x7F, AudioSamplerate: 8000}, ErrUnsupportedCodec},
		{"no host", "rtsp://:554/live", RtpOverTCP, g711, ErrBadURLFormat},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &callbackLog{}
			p := NewPusher()
			p.SetCallback(log.record, nil)
			err := p.Start(ctx, tt.url, tt.connType, "", "", 0, tt.media)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, []PusherState{PusherConnectFailed}, log.states)
			assert.Equal(t, PushFailed, p.State())
		})
	}
}

func TestStartAbortedByContext(t *testing.T) {
	log := &callbackLog{}
	p := NewPusher()
	p.SetCallback(log.record, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := p.Start(ctx, "rtsp://127.0.0.1:1/live", RtpOverTCP, "", "", 0, g711)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, []PusherState{PusherConnecting, PusherConnectAbort}, log.states)
}

func TestStartTimesOut(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	log := &callbackLog{}
	p := NewPusher()
	p.SetCallback(log.record, nil)
	p.WaitTimeout = 100 * time.Millisecond
	url := fmt.Sprintf("rtsp://127.0.0.1:%d/live", l.Addr().(*net.TCPAddr).Port)
	err = p.Start(context.Background(), url, RtpOverTCP, "", "", 0, g711)
	assert.ErrorIs(t, err, Socket.ErrNetTimeout)
	assert.Equal(t, PushFailed, p.State())
	state, status := log.last()
	assert.Equal(t, PusherError, state)
	assert.Equal(t, 0, status)
}

func TestReleaseThenUse(t *testing.T) {
	assert := assert.New(t)
	p, conn, _ := pushingPusher(t, g711)
	assert.NoError(p.Release())
	assert.True(conn.closed)
	assert.ErrorIs(p.Release(), ErrReleased)
	assert.ErrorIs(p.PushFrame(&MediaFrame{FrameData: []byte{1}}), ErrReleased)
	assert.ErrorIs(p.Close(context.Background()), ErrReleased)
	assert.ErrorIs(p.Start(context.Background(), testUrl, RtpOverTCP, "", "", 0, g711), ErrReleased)
}

