package RTSPTest

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net"
	"strconv"
	"strings"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/RTP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/RTSP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/RichConn"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/SDP"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Snowflake"
	"go.uber.org/zap"
)

// Packet is one interleaved frame as it came off the wire.
type Packet struct {
	Channel byte
	Data    RTP.Packet
}

// Session is everything one client connection sent. It is complete once
// Server.Next hands it out.
type Session struct {
	ID           string
	Requests     []RTSP.Request
	Packets      []Packet
	SdpInfo      map[string]*SDP.SdpInfo
	AudioChannel int
	Err          error

	server *Server
	conn   *RichConn.ConnRich
	rw     *RichConn.ReaderWriter
	nonce  string
	stop   bool
}

func newSession(conn net.Conn, server *Server, id string) *Session {
	rich := RichConn.NewConnRich(conn, server.readTimeout, server.readTimeout)
	return &Session{
		ID:           id,
		AudioChannel: -1,
		server:       server,
		conn:         rich,
		rw:           RichConn.NewReaderWriter(rich, 4096),
	}
}

// Methods lists the request methods in arrival order.
func (s *Session) Methods() []string {
	var methods []string
	for _, req := range s.Requests {
		methods = append(methods, req.Method)
	}
	return methods
}

// ChannelPackets returns the packets sent on channel.
func (s *Session) ChannelPackets(channel byte) []RTP.Packet {
	var out []RTP.Packet
	for _, pkt := range s.Packets {
		if pkt.Channel == channel {
			out = append(out, pkt.Data)
		}
	}
	return out
}

func (s *Session) start() {
	defer s.conn.Close()
	for !s.stop {
		b, err := s.rw.Reader.Peek(1)
		if err != nil {
			s.Err = err
			return
		}
		if b[0] == RTSP.MagicChar {
			if err = s.readInterleaved(); err != nil {
				s.Err = err
				return
			}
			continue
		}
		req, err := RTSP.ReadRequest(s.rw.Reader)
		if err != nil {
			s.Err = err
			return
		}
		s.Requests = append(s.Requests, req)
		if err = s.handleRequest(req); err != nil {
			s.Err = err
			return
		}
	}
}

func (s *Session) readInterleaved() error {
	if _, err := s.rw.ReadByte(); err != nil {
		return err
	}
	channel, err := s.rw.ReadUintBE(1)
	if err != nil {
		return err
	}
	size, err := s.rw.ReadUintBE(2)
	if err != nil {
		return err
	}
	data := make([]byte, size)
	if _, err = s.rw.ReadFull(data); err != nil {
		return err
	}
	s.Packets = append(s.Packets, Packet{Channel: byte(channel), Data: data})
	return nil
}

func (s *Session) handleRequest(req RTSP.Request) error {
	ctx := &context{req: req}
	if code, ok := s.server.statuses[req.Method]; ok {
		ctx.reply(code, "Refused", nil)
	} else {
		switch req.Method {
		case RTSP.OPTIONS:
			s.options(ctx)
		case RTSP.ANNOUNCE:
			s.announce(ctx)
		case RTSP.SETUP:
			s.setup(ctx)
		case RTSP.PLAY, RTSP.RECORD:
			s.record(ctx)
		case RTSP.TEARDOWN:
			s.teardown(ctx)
		default:
			ctx.reply(405, "Method Not Allowed", nil)
		}
	}
	if ctx.resp.Header == nil {
		ctx.resp.Header = make(map[string]string)
	}
	ctx.resp.Header[RTSP.CSeq] = req.Header[RTSP.CSeq]
	if ctx.resp.StatusCode != RTSP.StatusOK {
		Logger.GetLogger().Info("rtsp test server refused request", zap.String("method", req.Method),
			zap.Int("status", ctx.resp.StatusCode))
		s.stop = true
	}
	return s.rw.WriteFlush([]byte(ctx.resp.String()))
}

func (s *Session) options(ctx *context) {
	ctx.reply(RTSP.StatusOK, "OK", map[string]string{
		RTSP.Public: "OPTIONS, ANNOUNCE, SETUP, PLAY, RECORD, TEARDOWN",
	})
}

func (s *Session) announce(ctx *context) {
	if s.server.requireAuth && !s.checkAuth(ctx) {
		return
	}
	if ctx.req.Header[RTSP.ContentType] != RTSP.MimeSdp {
		ctx.reply(415, "Unsupported Media Type", nil)
		return
	}
	info, err := SDP.ParseSdp(ctx.req.Body)
	if err != nil || info["audio"] == nil {
		ctx.reply(400, "Bad Request", nil)
		return
	}
	s.SdpInfo = info
	ctx.reply(RTSP.StatusOK, "OK", nil)
}

// checkAuth challenges a request without credentials.
func (s *Session) checkAuth(ctx *context) bool {
	if ctx.req.Header[RTSP.Authorization] != "" {
		return true
	}
	if s.nonce == "" {
		sum := md5.Sum([]byte(strconv.FormatInt(Snowflake.GenerateId(), 10)))
		s.nonce = hex.EncodeToString(sum[:])
	}
	ctx.reply(RTSP.StatusUnauthorized, "Unauthorized", map[string]string{
		RTSP.WWW_Authenticate: fmt.Sprintf(`Digest realm="%s", nonce="%s"`, s.server.realm, s.nonce),
	})
	return false
}

func (s *Session) setup(ctx *context) {
	transport := ctx.req.Header[RTSP.Transport]
	if !strings.Contains(transport, "/TCP;") {
		ctx.reply(461, "Unsupported Transport", nil)
		return
	}
	audio := s.SdpInfo["audio"]
	if audio == nil || !strings.HasSuffix(ctx.req.URL, "/"+audio.Control) {
		ctx.reply(404, "Stream Not Found", nil)
		return
	}
	matches := RTSP.TcpRegexp.FindStringSubmatch(transport)
	if matches == nil {
		ctx.reply(461, "Unsupported Transport", nil)
		return
	}
	s.AudioChannel, _ = strconv.Atoi(matches[1])
	if s.server.ssrc != "" {
		transport += ";ssrc=" + s.server.ssrc
	}
	ctx.reply(RTSP.StatusOK, "OK", map[string]string{
		RTSP.SessionID: s.ID + ";timeout=60",
		RTSP.Transport: transport,
	})
}

func (s *Session) record(ctx *context) {
	if s.AudioChannel < 0 {
		ctx.reply(455, "Method Not Valid in This State", nil)
		return
	}
	ctx.reply(RTSP.StatusOK, "OK", map[string]string{
		RTSP.SessionID: s.ID,
		RTSP.Range:     "npt=0.000-",
	})
}

func (s *Session) teardown(ctx *context) {
	s.stop = true
	ctx.reply(RTSP.StatusOK, "OK", map[string]string{RTSP.SessionID: s.ID})
}
