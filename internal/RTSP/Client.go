package RTSP

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/Formatter"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/Socket"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Conn is the transport under an RtspClient. Socket.ClientSocket
// implements it.
type Conn interface {
	Send(p []byte) error
	Read(p []byte) (int, error)
	Write(p []byte) (int, error)
	EventMask() Socket.EventMask
	RequestEvent(mask Socket.EventMask) error
	WaitReady(mask Socket.EventMask, timeout time.Duration) error
	Close() error
}

type SSRCMapElem struct {
	TrackID uint32
	SSRC    uint32
}

type channelElem struct {
	Used    bool
	TrackID uint32
	IsRTCP  bool
}

// RtspClient runs one RTSP transaction at a time over a non-blocking
// Conn. Every Send* method may return a would-block error; calling the
// same method again resumes the outstanding transaction without
// rebuilding the request.
type RtspClient struct {
	conn Conn
	url  string

	name      string
	password  string
	userAgent string
	controlID string
	auth      Authenticator

	transportMode TransportMode
	bandwidth     uint32
	setupHeaders  string
	setupTrackID  uint32

	cseq    uint32
	state   TransactionState
	method  string
	request *Formatter.Formatter

	status        int
	sessionID     string
	serverPort    uint16
	contentLength int
	response      Response

	headerBuf      [HeaderBufSize]byte
	headerRecvLen  int
	headerLen      int
	content        []byte
	contentRecvLen int
	packetData     []byte

	ssrcMap  []SSRCMapElem
	channels []channelElem

	interleaved interleavedParams
}

func NewRtspClient(conn Conn, url string) *RtspClient {
	c := &RtspClient{
		conn:          conn,
		userAgent:     DefaultUserAgent,
		controlID:     DefaultControlID,
		transportMode: TransportModePush,
		cseq:          1,
		request:       Formatter.NewFormatter(ReqBufSize),
	}
	c.Set(url)
	c.auth = AuthDisabled{Url: c.url}
	return c
}

// Set stores the request target, adding a leading '/' to a bare path.
func (c *RtspClient) Set(url string) {
	if !strings.HasPrefix(strings.ToLower(url), "rtsp://") && !strings.HasPrefix(url, "/") {
		url = "/" + url
	}
	c.url = url
}

func (c *RtspClient) Url() string {
	return c.url
}

func (c *RtspClient) SetName(name string) {
	c.name = name
}

func (c *RtspClient) SetPassword(password string) {
	c.password = password
}

func (c *RtspClient) SetUserAgent(ua string) {
	c.userAgent = ua
}

func (c *RtspClient) SetControlID(id string) {
	c.controlID = id
}

func (c *RtspClient) SetTransportMode(m TransportMode) {
	c.transportMode = m
}

func (c *RtspClient) SetBandwidth(bps uint32) {
	c.bandwidth = bps
}

func (c *RtspClient) SetAuthenticator(a Authenticator) {
	c.auth = a
}

// SetSetupHeaders adds raw header lines to SETUP requests in play mode.
// Each line must end with CRLF.
func (c *RtspClient) SetSetupHeaders(h string) {
	c.setupHeaders = h
}

func (c *RtspClient) Name() string {
	return c.name
}

func (c *RtspClient) Password() string {
	return c.password
}

func (c *RtspClient) Status() int {
	return c.status
}

func (c *RtspClient) CSeq() uint32 {
	return c.cseq
}

func (c *RtspClient) SessionID() string {
	return c.sessionID
}

func (c *RtspClient) ServerPort() uint16 {
	return c.serverPort
}

func (c *RtspClient) ContentLength() int {
	return c.contentLength
}

func (c *RtspClient) Response() Response {
	return c.response
}

func (c *RtspClient) State() TransactionState {
	return c.state
}

func (c *RtspClient) IsTransactionInProgress() bool {
	return c.state != TransactionIdle
}

// ContentBody returns the entity received with the last response.
func (c *RtspClient) ContentBody() []byte {
	return c.content[:c.contentRecvLen]
}

// PacketData returns interleaved bytes that followed the last response
// in the same read.
func (c *RtspClient) PacketData() []byte {
	return c.packetData
}

func (c *RtspClient) SSRCByTrack(trackID uint32) (uint32, bool) {
	for _, elem := range c.ssrcMap {
		if elem.TrackID == trackID {
			return elem.SSRC, true
		}
	}
	return 0, false
}

func (c *RtspClient) SendOptions() error {
	return c.transact(OPTIONS, func(f *Formatter.Formatter) {
		c.putRequestLine(f, OPTIONS, "*")
		c.putCSeq(f)
		c.putUserAgent(f)
		f.PutEOL()
	})
}

func (c *RtspClient) SendDescribe() error {
	return c.transact(DESCRIBE, func(f *Formatter.Formatter) {
		c.putRequestLine(f, DESCRIBE, c.url)
		c.putCSeq(f)
		f.PutFmt("%s: %s\r\n", Accept, MimeSdp)
		c.putUserAgent(f)
		c.putBandwidth(f)
		f.PutEOL()
	})
}

// SendAnnounce posts sdp as the session description. An empty sdp asks
// the server for one instead.
func (c *RtspClient) SendAnnounce(sdp string) error {
	if len(sdp) > ReqBufSize {
		return errors.Wrapf(ErrRequestTooLarge, "sdp of %d bytes", len(sdp))
	}
	return c.transact(ANNOUNCE, func(f *Formatter.Formatter) {
		c.putRequestLine(f, ANNOUNCE, c.url)
		c.putCSeq(f)
		if sdp == "" {
			f.PutFmt("%s: %s\r\n", Accept, MimeSdp)
			c.putUserAgent(f)
			f.PutEOL()
			return
		}
		f.PutFmt("%s: %s\r\n", ContentType, MimeSdp)
		c.putUserAgent(f)
		f.PutFmt("%s: %d\r\n", ContentLength, len(sdp))
		f.PutEOL()
		f.PutString(sdp)
	})
}

// SendTCPSetup requests interleaved delivery of trackID on the given
// channel pair. trackName defaults to "<controlID>=<trackID>".
func (c *RtspClient) SendTCPSetup(trackID uint32, rtpChannel, rtcpChannel uint8, trackName string) error {
	c.setupTrackID = trackID
	if trackName == "" {
		trackName = fmt.Sprintf("%s=%d", c.controlID, trackID)
	}
	return c.transact(SETUP, func(f *Formatter.Formatter) {
		c.putRequestLine(f, SETUP, c.url+"/"+trackName)
		c.putCSeq(f)
		c.putSession(f)
		if c.transportMode == TransportModePush {
			f.PutFmt("%s: RTP/AVP/TCP;unicast;mode=record;interleaved=%d-%d\r\n", Transport, rtpChannel, rtcpChannel)
		} else {
			f.PutFmt("%s: RTP/AVP/TCP;unicast;interleaved=%d-%d\r\n", Transport, rtpChannel, rtcpChannel)
			f.PutString(c.setupHeaders)
		}
		c.putUserAgent(f)
		c.putBandwidth(f)
		f.PutEOL()
		c.mapChannel(rtpChannel, trackID, false)
		c.mapChannel(rtcpChannel, trackID, true)
	})
}

func (c *RtspClient) SendUDPSetup(trackID uint32, clientPort uint16) error {
	c.setupTrackID = trackID
	return c.transact(SETUP, func(f *Formatter.Formatter) {
		c.putRequestLine(f, SETUP, fmt.Sprintf("%s/%s=%d", c.url, c.controlID, trackID))
		c.putCSeq(f)
		c.putSession(f)
		if c.transportMode == TransportModePush {
			f.PutFmt("%s: RTP/AVP;unicast;client_port=%d-%d;mode=record\r\n", Transport, clientPort, clientPort+1)
		} else {
			f.PutFmt("%s: RTP/AVP;unicast;client_port=%d-%d\r\n", Transport, clientPort, clientPort+1)
			f.PutString(c.setupHeaders)
		}
		c.putUserAgent(f)
		c.putBandwidth(f)
		f.PutEOL()
	})
}

func (c *RtspClient) SendPlay(startSec uint32, speed float32) error {
	return c.transact(PLAY, func(f *Formatter.Formatter) {
		c.putRequestLine(f, PLAY, c.url)
		c.putCSeq(f)
		c.putSession(f)
		f.PutFmt("%s: npt=%d.0-\r\n", Range, startSec)
		if speed != 1 && speed != 0 {
			f.PutFmt("%s: %.2f\r\n", Speed, speed)
		}
		f.PutFmt("%s: maxtime=3.0\r\n", XPrebuffer)
		c.putUserAgent(f)
		c.putBandwidth(f)
		f.PutEOL()
	})
}

func (c *RtspClient) SendSetParameter() error {
	return c.transact(SET_PARAMETER, func(f *Formatter.Formatter) {
		c.putRequestLine(f, SET_PARAMETER, c.url)
		c.putCSeq(f)
		c.putSession(f)
		c.putUserAgent(f)
		f.PutEOL()
	})
}

func (c *RtspClient) SendTeardown() error {
	return c.transact(TEARDOWN, func(f *Formatter.Formatter) {
		c.putRequestLine(f, TEARDOWN, c.url)
		c.putCSeq(f)
		c.putSession(f)
		c.putUserAgent(f)
		f.PutEOL()
	})
}

// SendRTSPRequest sends caller built request text unchanged.
func (c *RtspClient) SendRTSPRequest(parts ...[]byte) error {
	method := ""
	if len(parts) > 0 {
		if i := bytes.IndexByte(parts[0], ' '); i > 0 {
			method = string(parts[0][:i])
		}
	}
	return c.transact(method, func(f *Formatter.Formatter) {
		for _, p := range parts {
			f.Put(p)
		}
	})
}

func (c *RtspClient) putRequestLine(f *Formatter.Formatter, method, target string) {
	f.PutFmt("%s %s %s\r\n", method, target, RTSP_VERSION)
	f.PutString(c.auth.Header(method, target))
}

func (c *RtspClient) putCSeq(f *Formatter.Formatter) {
	f.PutFmt("%s: %d\r\n", CSeq, c.cseq)
}

func (c *RtspClient) putSession(f *Formatter.Formatter) {
	if c.sessionID != "" {
		f.PutString(SessionID + ": " + c.sessionID)
	}
}

func (c *RtspClient) putUserAgent(f *Formatter.Formatter) {
	f.PutFmt("%s: %s\r\n", UserAgent, c.userAgent)
}

func (c *RtspClient) putBandwidth(f *Formatter.Formatter) {
	if c.bandwidth != 0 {
		f.PutFmt("%s: %d\r\n", Bandwidth, c.bandwidth)
	}
}

// transact formats a new request when idle, then drives the transaction.
// Calling again with the outstanding method resumes it; any other method
// is refused until it completes.
func (c *RtspClient) transact(method string, build func(f *Formatter.Formatter)) error {
	if c.state != TransactionIdle && method != c.method {
		return errors.Wrapf(ErrTransactionInProgress, "%s while %s is outstanding", method, c.method)
	}
	if c.state == TransactionIdle {
		c.request.Reset(0)
		build(c.request)
		if c.request.Truncated() {
			c.request.Reset(0)
			return errors.Wrapf(ErrRequestTooLarge, "%s request", method)
		}
		c.method = method
	}
	return c.DoTransaction()
}

// DoTransaction advances the outstanding transaction as far as the
// transport allows. It returns nil once a complete response is parsed.
func (c *RtspClient) DoTransaction() error {
	for {
		switch c.state {
		case TransactionIdle:
			c.cseq++
			c.packetData = c.packetData[:0]
			c.state = TransactionSending
		case TransactionSending:
			if err := c.conn.Send(c.request.Bytes()); err != nil {
				return c.transactionError(err)
			}
			Logger.GetLogger().Debug("rtsp request sent", zap.String("rtsp_addr", c.url),
				zap.String("method", c.method), zap.Uint32("cseq", c.cseq-1))
			c.headerRecvLen = 0
			c.headerLen = 0
			c.contentRecvLen = 0
			c.state = TransactionReceivingHeader
		case TransactionReceivingHeader, TransactionHeaderReceived:
			if err := c.receiveResponse(); err != nil {
				return c.transactionError(err)
			}
			c.state = TransactionIdle
			Logger.GetLogger().Debug("rtsp response", zap.String("rtsp_addr", c.url),
				zap.String("method", c.method), zap.Int("status", c.status))
			return nil
		}
	}
}

// transactionError keeps the transaction open for would-block errors and
// abandons it otherwise.
func (c *RtspClient) transactionError(err error) error {
	if Socket.IsWouldBlock(err) {
		return err
	}
	Logger.GetLogger().Error("rtsp transaction fail: "+err.Error(), zap.String("rtsp_addr", c.url),
		zap.String("method", c.method), zap.String("state", c.state.String()))
	c.state = TransactionIdle
	return err
}

func (c *RtspClient) receiveResponse() error {
	for c.state == TransactionReceivingHeader {
		n, err := c.conn.Read(c.headerBuf[c.headerRecvLen:])
		if err != nil {
			return err
		}
		c.headerRecvLen += n

		// Media data may precede the response on an interleaved
		// connection. Drop everything before the status line.
		data := c.headerBuf[:c.headerRecvLen]
		start := bytes.Index(data, rtspMarker)
		if start < 0 {
			keep := len(rtspMarker) - 1
			if c.headerRecvLen > keep {
				copy(c.headerBuf[:], data[c.headerRecvLen-keep:])
				c.headerRecvLen = keep
			}
			continue
		}
		if start > 0 {
			copy(c.headerBuf[:], data[start:])
			c.headerRecvLen -= start
			data = c.headerBuf[:c.headerRecvLen]
		}

		end := bytes.Index(data, []byte("\r\n\r\n"))
		if end < 0 {
			if c.headerRecvLen == len(c.headerBuf) {
				return errors.Wrapf(ErrResponseTooLarge, "no header end in %d bytes", c.headerRecvLen)
			}
			continue
		}
		c.headerLen = end + 4
		c.contentRecvLen = c.headerRecvLen - c.headerLen
		c.state = TransactionHeaderReceived
		if err := c.parseHeader(string(data[:end])); err != nil {
			return err
		}
		if c.contentRecvLen > c.contentLength {
			c.packetData = append(c.packetData[:0], c.headerBuf[c.headerLen+c.contentLength:c.headerRecvLen]...)
			c.contentRecvLen = c.contentLength
		}
	}

	for c.contentRecvLen < c.contentLength {
		n, err := c.conn.Read(c.content[c.contentRecvLen:c.contentLength])
		if err != nil {
			return err
		}
		c.contentRecvLen += n
	}
	c.response.Body = string(c.content[:c.contentRecvLen])
	return nil
}

func (c *RtspClient) parseHeader(block string) error {
	c.serverPort = 0
	c.status = 0
	c.contentLength = 0
	c.content = c.content[:0]

	lines := strings.Split(block, "\n")
	resp, err := parseStatusLine(lines[0])
	if err != nil {
		return err
	}
	c.response = resp
	c.status = resp.StatusCode

	lastHeader := ""
	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		// folded continuation of the previous header
		if line[0] == ' ' || line[0] == '\t' {
			if strings.EqualFold(lastHeader, RTPInfo) {
				c.parseRTPInfo(strings.TrimSpace(line))
			}
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			continue
		}
		name := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		c.response.Header[name] = value
		lastHeader = name

		switch strings.ToLower(name) {
		case "session":
			if c.sessionID == "" {
				if j := strings.IndexByte(value, ';'); j >= 0 {
					value = value[:j]
				}
				if value = strings.TrimSpace(value); value != "" {
					c.sessionID = value + "\r\n"
				}
			}
		case "content-length":
			if err := c.setContentLength(value); err != nil {
				return err
			}
		case "transport":
			c.parseTransport(value)
		case "www-authenticate":
			c.auth.Challenge(value)
		case "rtp-info":
			c.parseRTPInfo(value)
		}
	}
	return nil
}

// setContentLength sizes the content buffer and moves in any body bytes
// that arrived with the header.
func (c *RtspClient) setContentLength(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 {
		return errors.Wrapf(ErrMalformedResponse, "content length %q", value)
	}
	if n > MaxContentLength {
		return errors.Wrapf(ErrContentTooLarge, "%d bytes", n)
	}
	c.contentLength = n
	if cap(c.content) < n {
		c.content = make([]byte, n)
	}
	c.content = c.content[:n]
	already := c.contentRecvLen
	if already > n {
		already = n
	}
	copy(c.content, c.headerBuf[c.headerLen:c.headerLen+already])
	return nil
}

func (c *RtspClient) parseTransport(value string) {
	for _, sub := range strings.Split(value, ";") {
		sub = strings.TrimSpace(sub)
		key, val := sub, ""
		if i := strings.IndexByte(sub, '='); i >= 0 {
			key, val = strings.TrimSpace(sub[:i]), strings.TrimSpace(sub[i+1:])
		}
		switch strings.ToLower(key) {
		case "server_port":
			c.serverPort = uint16(leadingInt(val))
		case "ssrc":
			if f := strings.Fields(val); len(f) > 0 {
				ssrc, err := strconv.ParseUint(f[0], 16, 32)
				if err != nil {
					Logger.GetLogger().Warn("bad transport ssrc "+val, zap.String("rtsp_addr", c.url))
					continue
				}
				c.setSSRC(c.setupTrackID, uint32(ssrc))
			}
		case "interleaved":
			if m := TcpRegexp.FindStringSubmatch(sub); m != nil {
				rtp, _ := strconv.Atoi(m[1])
				c.mapChannel(uint8(rtp), c.setupTrackID, false)
				if m[3] != "" {
					rtcp, _ := strconv.Atoi(m[3])
					c.mapChannel(uint8(rtcp), c.setupTrackID, true)
				}
			}
		}
	}
}

// parseRTPInfo is inert: RTP-Info carries seq and rtptime per stream,
// which a pushing client has no use for.
func (c *RtspClient) parseRTPInfo(value string) {}

func (c *RtspClient) setSSRC(trackID, ssrc uint32) {
	for i := range c.ssrcMap {
		if c.ssrcMap[i].TrackID == trackID {
			c.ssrcMap[i].SSRC = ssrc
			return
		}
	}
	c.ssrcMap = append(c.ssrcMap, SSRCMapElem{TrackID: trackID, SSRC: ssrc})
}

func (c *RtspClient) mapChannel(channel uint8, trackID uint32, isRTCP bool) {
	for int(channel) >= len(c.channels) {
		c.channels = append(c.channels, channelElem{})
	}
	// a channel moved by the server leaves the old slot stale
	for i := range c.channels {
		if c.channels[i].Used && c.channels[i].TrackID == trackID && c.channels[i].IsRTCP == isRTCP {
			c.channels[i] = channelElem{}
		}
	}
	c.channels[channel] = channelElem{Used: true, TrackID: trackID, IsRTCP: isRTCP}
}

func leadingInt(s string) int {
	n := 0
	for i := 0; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		n = n*10 + int(s[i]-'0')
	}
	return n
}
