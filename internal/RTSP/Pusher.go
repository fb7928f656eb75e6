package RTSP

import (
	"context"
	"math/rand"
	"net"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/RTP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/SDP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/Socket"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Snowflake"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	MaxPacketSize  = 1500
	MaxRtpPayload  = 1400
	AudioTrackID   = SDP.TrackID
	RtpChannel     = 0
	RtcpChannel    = 1
	mpegAudioHdrSz = 4
)

// Pusher announces one audio stream and pushes RTP over the RTSP
// connection. It is not safe for concurrent use.
type Pusher struct {
	Id       int64
	callback Callback
	cbCtx    interface{}

	url       RtspUrl
	connType  ConnectType
	reconnect int
	media     MediaInfo
	sdp       string

	conn        Conn
	client      *RtspClient
	state       PushState
	pusherState PusherState

	rtpSeq        uint16
	ssrc          uint32
	timestampBase uint32
	packetBuf     [MaxPacketSize]byte
	dropped       int

	// WriteWaitTimeout bounds the wait for writability after a blocked
	// frame. Zero returns at once.
	WriteWaitTimeout time.Duration
	// WaitTimeout bounds each readiness wait of the handshake.
	WaitTimeout time.Duration

	released bool
}

func NewPusher() *Pusher {
	r := rand.New(rand.NewSource(time.Now().UnixNano()))
	return &Pusher{
		Id:               Snowflake.GenerateId(),
		ssrc:             r.Uint32(),
		timestampBase:    r.Uint32(),
		WriteWaitTimeout: Socket.DefaultWaitTimeout,
		WaitTimeout:      Socket.DefaultWaitTimeout,
	}
}

func (p *Pusher) SetCallback(cb Callback, ctx interface{}) {
	p.callback = cb
	p.cbCtx = ctx
}

func (p *Pusher) State() PushState {
	return p.state
}

func (p *Pusher) PusherState() PusherState {
	return p.pusherState
}

func (p *Pusher) Client() *RtspClient {
	return p.client
}

func (p *Pusher) Sdp() string {
	return p.sdp
}

func (p *Pusher) ReconnectCount() int {
	return p.reconnect
}

// FramePending reports a frame still partly unsent on the connection.
func (p *Pusher) FramePending() bool {
	return p.client != nil && p.client.InterleavedPending()
}

// DroppedFrames counts frames refused because an earlier frame was
// still being flushed.
func (p *Pusher) DroppedFrames() int {
	return p.dropped
}

// EventMask is the readiness the handshake waits for after Advance
// returned a would-block error.
func (p *Pusher) EventMask() Socket.EventMask {
	if p.conn == nil {
		return 0
	}
	return p.conn.EventMask()
}

func (p *Pusher) logger() *zap.Logger {
	return Logger.GetLogger().With(zap.Int64("pusher_id", p.Id), zap.String("rtsp_addr", p.url.RequestUrl()))
}

func (p *Pusher) notify(state PusherState, status int) {
	p.pusherState = state
	if p.callback != nil {
		p.callback(state, status, p.cbCtx)
	}
}

// Prepare parses the URL, builds the SDP and opens the transport without
// doing any I/O. Explicit username and password override the URL's.
func (p *Pusher) Prepare(ctx context.Context, rawURL string, connType ConnectType, username, password string, reconnect int, mi MediaInfo) error {
	if p.released {
		return ErrReleased
	}
	u, err := ParseRtspUrl(rawURL)
	if err != nil {
		return err
	}
	p.url = u
	if connType != RtpOverTCP {
		return errors.Wrapf(ErrUnsupportedTransport, "connect type %d", connType)
	}
	encoding := mi.AudioCodec.EncodingName()
	if encoding == "" {
		return errors.Wrapf(ErrUnsupportedCodec, "codec 0x%02x", uint8(mi.AudioCodec))
	}
	ip, err := resolveIPv4(ctx, u.Host)
	if err != nil {
		return err
	}
	p.sdp, err = SDP.BuildAnnounceSdp(ip.String(), SDP.AudioTrack{
		PayloadType:  mi.AudioCodec.PayloadType(),
		EncodingName: encoding,
		SampleRate:   mi.AudioSamplerate,
		Channels:     mi.AudioChannel,
	})
	if err != nil {
		return err
	}

	p.connType = connType
	p.reconnect = reconnect
	p.media = mi

	cs := Socket.NewClientSocket(ip, u.Port)
	cs.Socket().WaitTimeout = p.WaitTimeout
	p.attach(cs, u, username, password)
	return nil
}

func (p *Pusher) attach(conn Conn, u RtspUrl, username, password string) {
	p.url = u
	p.conn = conn
	p.client = NewRtspClient(conn, u.RequestUrl())
	p.client.SetTransportMode(TransportModePush)
	if u.HasUser {
		p.client.SetName(u.Username)
		p.client.SetPassword(u.Password)
	}
	if username != "" {
		p.client.SetName(username)
	}
	if password != "" {
		p.client.SetPassword(password)
	}
	p.state = PushSendingOptions
}

// Start runs OPTIONS, ANNOUNCE, SETUP and PLAY to completion, waiting on
// socket readiness between steps. It returns once pushing or failed.
func (p *Pusher) Start(ctx context.Context, rawURL string, connType ConnectType, username, password string, reconnect int, mi MediaInfo) error {
	if p.released {
		return ErrReleased
	}
	if p.client != nil && p.state != PushFailed && p.state != PushDone {
		return nil
	}
	if err := p.Prepare(ctx, rawURL, connType, username, password, reconnect, mi); err != nil {
		p.logger().Error("pusher start fail: " + err.Error())
		p.state = PushFailed
		p.notify(PusherConnectFailed, 0)
		return err
	}
	p.notify(PusherConnecting, 0)
	p.logger().Info("pusher connecting")
	if err := p.drive(ctx, PushPushing); err != nil {
		if ctx.Err() != nil {
			p.fail(PusherConnectAbort, err)
		} else {
			p.fail(PusherError, err)
		}
		return err
	}
	return nil
}

// drive advances the state machine until target, waiting for readiness
// whenever the transport would block.
func (p *Pusher) drive(ctx context.Context, target PushState) error {
	for p.state != target {
		if err := ctx.Err(); err != nil {
			return errors.Wrapf(err, "while %s", p.state)
		}
		err := p.Advance()
		if err == nil {
			continue
		}
		if !Socket.IsWouldBlock(err) {
			return err
		}
		if err = p.conn.RequestEvent(p.conn.EventMask()); err != nil {
			return errors.Wrapf(err, "while %s", p.state)
		}
	}
	return nil
}

// Advance takes one step of the session state machine. A would-block
// error means the caller should wait for EventMask and call again.
func (p *Pusher) Advance() error {
	if p.client == nil {
		return ErrNotConnected
	}
	switch p.state {
	case PushSendingOptions:
		if err := p.client.SendOptions(); err != nil {
			return err
		}
		if err := p.expectOK(OPTIONS); err != nil {
			return err
		}
		p.state = PushSendingAnnounce
	case PushSendingAnnounce:
		if err := p.client.SendAnnounce(p.sdp); err != nil {
			return err
		}
		if err := p.expectOK(ANNOUNCE); err != nil {
			return err
		}
		p.state = PushSendingSetup
	case PushSendingSetup:
		if err := p.client.SendTCPSetup(AudioTrackID, RtpChannel, RtcpChannel, ""); err != nil {
			return err
		}
		if err := p.expectOK(SETUP); err != nil {
			return err
		}
		p.state = PushSendingPlay
	case PushSendingPlay:
		if err := p.client.SendPlay(0, 1); err != nil {
			return err
		}
		if err := p.expectOK(PLAY); err != nil {
			return err
		}
		p.state = PushPushing
		p.logger().Info("pusher connected", zap.String("session", p.client.SessionID()))
		p.notify(PusherConnected, 0)
	case PushSendingTeardown:
		if err := p.client.FlushInterleaved(); err != nil {
			return err
		}
		if err := p.client.SendTeardown(); err != nil {
			return err
		}
		p.state = PushDone
		p.closeTransport()
		p.logger().Info("pusher disconnected", zap.Int("status", p.client.Status()))
		p.notify(PusherDisconnected, 0)
	}
	return nil
}

func (p *Pusher) expectOK(method string) error {
	if status := p.client.Status(); status != StatusOK {
		return errors.Wrapf(ErrUnexpectedStatus, "%s answered %d", method, status)
	}
	return nil
}

// PushFrame frames one audio frame as RTP and writes it interleaved. If
// the socket blocks, the unsent part is kept and the call succeeds; a
// frame arriving while that part is still unsent is dropped.
func (p *Pusher) PushFrame(frame *MediaFrame) error {
	if p.released {
		return ErrReleased
	}
	if frame == nil || p.state != PushPushing {
		return ErrNotInPushingState
	}
	gap := 0
	if p.media.AudioCodec == AudioCodecMP3 {
		gap = mpegAudioHdrSz
	}
	if gap+len(frame.FrameData) > MaxRtpPayload {
		return errors.Wrapf(ErrFrameTooLarge, "%d bytes", len(frame.FrameData))
	}

	// the sequence number is only taken once the packet is accepted, so a
	// dropped frame leaves no gap
	seq := p.rtpSeq + 1
	pkt := RTP.Packet(p.packetBuf[:])
	if err := pkt.MarshalHeader(p.media.AudioCodec.PayloadType(), true, seq, p.timestamp(frame), p.currentSSRC()); err != nil {
		return errors.Wrap(err, "rtp header")
	}
	// RFC 2250 MPEG audio header: MBZ and fragment offset, all zero
	for i := 0; i < gap; i++ {
		p.packetBuf[RTP.HeaderSize+i] = 0
	}
	n := RTP.HeaderSize + gap + copy(p.packetBuf[RTP.HeaderSize+gap:], frame.FrameData)
	packet := p.packetBuf[:n]

	for {
		getNext, err := p.client.PutMediaPacket(AudioTrackID, false, packet)
		if err != nil && !Socket.IsWouldBlock(err) {
			p.fail(PusherError, err)
			return errors.Wrap(err, "push frame")
		}
		if getNext {
			p.rtpSeq = seq
		}
		if p.client.InterleavedPending() {
			if !getNext {
				p.dropped++
				p.logger().Debug("frame dropped, previous frame still pending", zap.Uint16("seq", seq))
			}
			p.waitWritable()
			return nil
		}
		p.notify(PusherPushing, 0)
		if getNext {
			return nil
		}
	}
}

// timestamp is base + round(rate * capture time), wrapping at 32 bits.
func (p *Pusher) timestamp(frame *MediaFrame) uint32 {
	rate := p.media.AudioSamplerate
	inc := rate * frame.TimestampSec
	inc += uint32(float64(rate)*(float64(frame.TimestampUsec)/1000000.0) + 0.5)
	return p.timestampBase + inc
}

func (p *Pusher) currentSSRC() uint32 {
	if ssrc, ok := p.client.SSRCByTrack(AudioTrackID); ok {
		return ssrc
	}
	return p.ssrc
}

func (p *Pusher) waitWritable() {
	if p.WriteWaitTimeout <= 0 {
		return
	}
	_ = p.conn.WaitReady(Socket.EvWrite, p.WriteWaitTimeout)
}

// Close flushes a pending frame, sends TEARDOWN and waits for its answer,
// retrying on would-block like Start.
func (p *Pusher) Close(ctx context.Context) error {
	if p.released {
		return ErrReleased
	}
	switch p.state {
	case PushDone:
		return nil
	case PushFailed:
		return ErrNotConnected
	}
	if p.client == nil || p.conn == nil {
		return ErrNotConnected
	}
	if p.state != PushSendingTeardown {
		if p.client.IsTransactionInProgress() {
			// an unfinished handshake step cannot be resumed under TEARDOWN
			p.fail(PusherDisconnected, ErrNotConnected)
			return ErrNotConnected
		}
		p.state = PushSendingTeardown
	}
	if err := p.drive(ctx, PushDone); err != nil {
		p.fail(PusherError, err)
		return err
	}
	return nil
}

// Release closes the transport. The Pusher must not be used afterwards.
func (p *Pusher) Release() error {
	if p.released {
		return ErrReleased
	}
	p.closeTransport()
	if p.client != nil {
		p.client.DropInterleaved()
	}
	p.client = nil
	p.sdp = ""
	p.rtpSeq = 0
	p.released = true
	return nil
}

func (p *Pusher) closeTransport() {
	if p.conn == nil {
		return
	}
	if err := p.conn.Close(); err != nil {
		p.logger().Warn("close transport fail: " + err.Error())
	}
}

// fail moves to the failed state, closes the transport and reports the
// RTSP status, or the OS error when the server never refused. A partly
// sent frame is abandoned.
func (p *Pusher) fail(state PusherState, err error) {
	p.state = PushFailed
	p.closeTransport()
	status := 0
	if p.client != nil {
		p.client.DropInterleaved()
		status = p.client.Status()
	}
	if status == 0 || status == StatusOK {
		status = Socket.Errno(err)
	}
	p.logger().Error("pusher fail: "+err.Error(), zap.String("state", state.String()), zap.Int("status", status))
	p.notify(state, status)
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if ip4 := ip.To4(); ip4 != nil {
			return ip4, nil
		}
		return nil, errors.Wrapf(ErrBadURLFormat, "%s is not an IPv4 address", host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", host)
	}
	for _, addr := range addrs {
		if ip4 := addr.IP.To4(); ip4 != nil {
			return ip4, nil
		}
	}
	return nil, errors.Errorf("no IPv4 address for %s", host)
}
