package RTSP

import "github.com/pkg/errors"

var (
	ErrRequestTooLarge       = errors.New("rtsp request exceeds request buffer")
	ErrResponseTooLarge      = errors.New("rtsp response header exceeds header buffer")
	ErrContentTooLarge       = errors.New("rtsp response content too large")
	ErrMalformedResponse     = errors.New("malformed rtsp response")
	ErrInterleavedTooLarge   = errors.New("interleaved payload too large")
	ErrNoChannel             = errors.New("no interleaved channel for track")
	ErrUnexpectedStatus      = errors.New("unexpected rtsp status")
	ErrTransactionInProgress = errors.New("another rtsp transaction in progress")

	ErrBadURLFormat         = errors.New("bad rtsp url format")
	ErrNotInPushingState    = errors.New("pusher not in pushing state")
	ErrNotConnected         = errors.New("pusher not connected")
	ErrFrameTooLarge        = errors.New("frame exceeds rtp payload size")
	ErrUnsupportedTransport = errors.New("unsupported transport")
	ErrUnsupportedCodec     = errors.New("unsupported audio codec")
	ErrReleased             = errors.New("pusher released")
)
