// Package RTSPTest is a loopback RTSP server that accepts an ANNOUNCE and
// RECORD style push over TCP and records what it receives.
package RTSPTest

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Snowflake"
	"github.com/pkg/errors"
)

var ErrNoSession = errors.New("no finished session")

type Server struct {
	listener net.Listener
	sessions chan *Session

	sessionID   string
	ssrc        string
	statuses    map[string]int
	realm       string
	requireAuth bool
	readTimeout time.Duration
}

type ModOptions func(s *Server)

// SetSessionID fixes the Session header value; the default is a fresh id.
func SetSessionID(id string) ModOptions {
	return func(s *Server) {
		s.sessionID = id
	}
}

// SetSSRC makes SETUP answers carry ";ssrc=<hex>".
func SetSSRC(ssrc string) ModOptions {
	return func(s *Server) {
		s.ssrc = ssrc
	}
}

// SetStatus answers method with code instead of handling it.
func SetStatus(method string, code int) ModOptions {
	return func(s *Server) {
		s.statuses[method] = code
	}
}

// SetRequireAuth challenges ANNOUNCE requests that carry no
// Authorization header.
func SetRequireAuth(realm string) ModOptions {
	return func(s *Server) {
		s.requireAuth = true
		s.realm = realm
	}
}

func SetReadTimeout(d time.Duration) ModOptions {
	return func(s *Server) {
		s.readTimeout = d
	}
}

// NewServer listens on a loopback port and serves connections until Close.
func NewServer(opts ...ModOptions) (*Server, error) {
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		return nil, errors.Wrap(err, "rtsp test server listen")
	}
	s := &Server{
		listener:    listener,
		sessions:    make(chan *Session, 8),
		statuses:    make(map[string]int),
		readTimeout: 10 * time.Second,
	}
	for _, item := range opts {
		item(s)
	}
	go s.handleConn()
	return s, nil
}

func (s *Server) Port() int {
	return s.listener.Addr().(*net.TCPAddr).Port
}

// Url is the push target for path, which starts with '/'.
func (s *Server) Url(path string) string {
	return fmt.Sprintf("rtsp://127.0.0.1:%d%s", s.Port(), path)
}

func (s *Server) handleConn() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		id := s.sessionID
		if id == "" {
			id = strconv.FormatInt(Snowflake.GenerateId(), 10)
		}
		session := newSession(conn, s, id)
		go func() {
			session.start()
			s.sessions <- session
		}()
	}
}

// Next waits for a connection to end and returns its session.
func (s *Server) Next(timeout time.Duration) (*Session, error) {
	select {
	case session := <-s.sessions:
		return session, nil
	case <-time.After(timeout):
		return nil, errors.Wrapf(ErrNoSession, "after %s", timeout)
	}
}

func (s *Server) Close() error {
	if err := s.listener.Close(); err != nil {
		Logger.GetLogger().Warn("rtsp test server close: " + err.Error())
		return err
	}
	return nil
}
