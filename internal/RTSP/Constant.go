package RTSP

import "regexp"

type TransportMode int

const (
	TransportModePlay TransportMode = iota
	TransportModePush
	TransportModeRecord
)

type TransactionState int

const (
	TransactionIdle TransactionState = iota
	TransactionSending
	TransactionReceivingHeader
	TransactionHeaderReceived
)

func (s TransactionState) String() string {
	switch s {
	case TransactionIdle:
		return "idle"
	case TransactionSending:
		return "sending"
	case TransactionReceivingHeader:
		return "receiving header"
	case TransactionHeaderReceived:
		return "header received"
	}
	return "unknown"
}

const MagicChar = 0x24

const (
	DefaultUserAgent = "RTSPPusherNode"
	DefaultControlID = "trackID"

	ReqBufSize       = 4096
	HeaderBufSize    = 4096
	MaxContentLength = 64 * 1024

	StatusOK           = 200
	StatusUnauthorized = 401
)

var TcpRegexp = regexp.MustCompile("interleaved=(\\d+)(-(\\d+))?")

var rtspMarker = []byte("RTSP/")
