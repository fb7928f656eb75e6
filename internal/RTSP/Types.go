package RTSP

type AudioCodec uint8

const (
	AudioCodecG711        AudioCodec = 0x00
	AudioCodecIMAADPCM8K  AudioCodec = 0x05
	AudioCodecIMAADPCM16K AudioCodec = 0x06
	AudioCodecMP3         AudioCodec = 0x0E
)

// EncodingName is the rtpmap encoding for the codec, or "" if unknown.
func (c AudioCodec) EncodingName() string {
	switch c {
	case AudioCodecG711:
		return "PCMU"
	case AudioCodecMP3:
		return "MPA"
	case AudioCodecIMAADPCM8K, AudioCodecIMAADPCM16K:
		return "DVI4"
	}
	return ""
}

// PayloadType is the RTP payload type, equal to the codec id.
func (c AudioCodec) PayloadType() uint8 {
	return uint8(c)
}

type MediaInfo struct {
	AudioCodec      AudioCodec
	AudioSamplerate uint32
	AudioChannel    uint32
}

// MediaFrame is one encoded audio frame. FrameData is copied on push and
// not retained.
type MediaFrame struct {
	FrameData     []byte
	TimestampSec  uint32
	TimestampUsec uint32
	// playout duration in milliseconds
	Duration float64
}

type PusherState int

const (
	PusherConnecting PusherState = iota + 1
	PusherConnected
	PusherConnectFailed
	PusherConnectAbort
	PusherPushing
	PusherDisconnected
	PusherError
)

func (s PusherState) String() string {
	switch s {
	case PusherConnecting:
		return "connecting"
	case PusherConnected:
		return "connected"
	case PusherConnectFailed:
		return "connect failed"
	case PusherConnectAbort:
		return "connect abort"
	case PusherPushing:
		return "pushing"
	case PusherDisconnected:
		return "disconnected"
	case PusherError:
		return "error"
	}
	return "unknown"
}

type ConnectType int

const (
	RtpOverTCP ConnectType = iota + 1
	RtpOverUDP
)

// Callback receives state changes with the RTSP status, or the OS error
// number when no failing status is known.
type Callback func(state PusherState, status int, ctx interface{})

type PushState int

const (
	PushSendingOptions PushState = iota
	PushSendingAnnounce
	PushSendingSetup
	PushSendingPlay
	PushPushing
	PushSendingTeardown
	PushDone
	PushFailed
)

func (s PushState) String() string {
	switch s {
	case PushSendingOptions:
		return "sending options"
	case PushSendingAnnounce:
		return "sending announce"
	case PushSendingSetup:
		return "sending setup"
	case PushSendingPlay:
		return "sending play"
	case PushPushing:
		return "pushing"
	case PushSendingTeardown:
		return "sending teardown"
	case PushDone:
		return "done"
	case PushFailed:
		return "failed"
	}
	return "unknown"
}
