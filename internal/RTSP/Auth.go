package RTSP

import (
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"go.uber.org/zap"
)

// Authenticator produces credentials for requests after a
// WWW-Authenticate challenge.
type Authenticator interface {
	// Header returns a full "Authorization: ...\r\n" line, or "" when the
	// request goes out without credentials.
	Header(method, uri string) string
	// Challenge takes the WWW-Authenticate value of a 401 and reports
	// whether the request should be sent again.
	Challenge(value string) bool
}

// AuthDisabled never answers a challenge. A 401 completes the transaction
// and the caller sees the status.
type AuthDisabled struct {
	Url string
}

func (a AuthDisabled) Header(method, uri string) string {
	return ""
}

func (a AuthDisabled) Challenge(value string) bool {
	Logger.GetLogger().Warn("authentication is disabled, challenge ignored",
		zap.String("rtsp_addr", a.Url), zap.String("challenge", value))
	return false
}
