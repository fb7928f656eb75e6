// Package Pusher is the handle based entry point for pushing one audio
// stream to an RTSP server. Every call returns an integer result code.
package Pusher

import (
	"context"
	"sync"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/internal/RTSP"
	"git.hub.com/wangyl/RTSP_PUSHER/internal/Socket"
	"github.com/pkg/errors"
)

const (
	NoErr             = 0
	NotEnoughSpace    = -1
	BadURLFormat      = -2
	NotInPushingState = -3
	NotConn           = -4
	InvalidHandle     = -1
)

type (
	AudioCodec  = RTSP.AudioCodec
	MediaInfo   = RTSP.MediaInfo
	MediaFrame  = RTSP.MediaFrame
	PusherState = RTSP.PusherState
	ConnectType = RTSP.ConnectType
	Callback    = RTSP.Callback
)

const (
	AudioCodecG711        = RTSP.AudioCodecG711
	AudioCodecIMAADPCM8K  = RTSP.AudioCodecIMAADPCM8K
	AudioCodecIMAADPCM16K = RTSP.AudioCodecIMAADPCM16K
	AudioCodecMP3         = RTSP.AudioCodecMP3

	RtpOverTCP = RTSP.RtpOverTCP
	RtpOverUDP = RTSP.RtpOverUDP

	StateConnecting    = RTSP.PusherConnecting
	StateConnected     = RTSP.PusherConnected
	StateConnectFailed = RTSP.PusherConnectFailed
	StateConnectAbort  = RTSP.PusherConnectAbort
	StatePushing       = RTSP.PusherPushing
	StateDisconnected  = RTSP.PusherDisconnected
	StateError         = RTSP.PusherError
)

// Handle owns one pusher. Calls on a handle are serialized; the callback
// runs inside them and must not call back into the handle.
type Handle struct {
	mu     sync.Mutex
	pusher *RTSP.Pusher
}

func Create() *Handle {
	return &Handle{pusher: RTSP.NewPusher()}
}

// Id is the pusher id carried in its log lines.
func (h *Handle) Id() int64 {
	return h.pusher.Id
}

// DroppedFrames counts frames refused while an earlier one was still
// being written.
func (h *Handle) DroppedFrames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pusher.DroppedFrames()
}

// ErrorCode maps an error from the RTSP layer to a result code.
func ErrorCode(err error) int {
	switch {
	case err == nil:
		return NoErr
	case errors.Is(err, RTSP.ErrReleased):
		return InvalidHandle
	case errors.Is(err, RTSP.ErrBadURLFormat):
		return BadURLFormat
	case errors.Is(err, RTSP.ErrNotInPushingState):
		return NotInPushingState
	case errors.Is(err, RTSP.ErrFrameTooLarge),
		errors.Is(err, RTSP.ErrRequestTooLarge),
		errors.Is(err, Socket.ErrSendBufferFull):
		return NotEnoughSpace
	}
	return NotConn
}

func SetCallback(h *Handle, cb Callback, ctx interface{}) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pusher.SetCallback(cb, ctx)
	return NoErr
}

// SetWaitTimeout bounds each readiness wait of the handshake and of a
// blocked frame.
func SetWaitTimeout(h *Handle, handshakeMs, writeMs int) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pusher.WaitTimeout = time.Duration(handshakeMs) * time.Millisecond
	h.pusher.WriteWaitTimeout = time.Duration(writeMs) * time.Millisecond
	return NoErr
}

func StartStream(h *Handle, url string, connType ConnectType, username, password string, reconnect int, mi MediaInfo) int {
	return StartStreamContext(context.Background(), h, url, connType, username, password, reconnect, mi)
}

// StartStreamContext is StartStream with a context that aborts the
// handshake between readiness waits.
func StartStreamContext(ctx context.Context, h *Handle, url string, connType ConnectType, username, password string, reconnect int, mi MediaInfo) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return ErrorCode(h.pusher.Start(ctx, url, connType, username, password, reconnect, mi))
}

func PushFrame(h *Handle, frame *MediaFrame) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return ErrorCode(h.pusher.PushFrame(frame))
}

func CloseStream(h *Handle) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return ErrorCode(h.pusher.Close(context.Background()))
}

func Release(h *Handle) int {
	if h == nil {
		return InvalidHandle
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return ErrorCode(h.pusher.Release())
}
