package RTSP

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	DefaultPort   = 554
	maxHostLength = 100
	urlPrefix     = "rtsp://"
)

type RtspUrl struct {
	Username string
	Password string
	HasUser  bool
	Host     string
	Port     int
	// Path starts with '/' when present.
	Path string
}

// ParseRtspUrl parses rtsp://[user[:pass]@]host[:port][/path].
func ParseRtspUrl(raw string) (u RtspUrl, err error) {
	if len(raw) < len(urlPrefix) || !strings.EqualFold(raw[:len(urlPrefix)], urlPrefix) {
		return u, errors.Wrapf(ErrBadURLFormat, "%q has no %s prefix", raw, urlPrefix)
	}
	rest := raw[len(urlPrefix):]

	// credentials end at an '@' found before the first '/'
	authority := rest
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		authority = rest[:i]
	}
	if at := strings.IndexByte(authority, '@'); at >= 0 {
		userInfo := authority[:at]
		u.HasUser = true
		if colon := strings.IndexByte(userInfo, ':'); colon >= 0 {
			u.Username, u.Password = userInfo[:colon], userInfo[colon+1:]
		} else {
			u.Username = userInfo
		}
		rest = rest[at+1:]
	}

	end := strings.IndexAny(rest, ":/")
	if end < 0 {
		end = len(rest)
	}
	u.Host = rest[:end]
	if u.Host == "" {
		return u, errors.Wrapf(ErrBadURLFormat, "%q has no host", raw)
	}
	if len(u.Host) >= maxHostLength {
		return u, errors.Wrapf(ErrBadURLFormat, "host longer than %d", maxHostLength-1)
	}
	rest = rest[end:]

	u.Port = DefaultPort
	if strings.HasPrefix(rest, ":") {
		rest = rest[1:]
		digits := 0
		for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
			digits++
		}
		if digits == 0 {
			return u, errors.Wrapf(ErrBadURLFormat, "%q has no port number after ':'", raw)
		}
		port, perr := strconv.Atoi(rest[:digits])
		if perr != nil || port < 1 || port > 65535 {
			return u, errors.Wrapf(ErrBadURLFormat, "bad port %q", rest[:digits])
		}
		u.Port = port
		rest = rest[digits:]
	}
	if rest != "" && rest[0] != '/' {
		return u, errors.Wrapf(ErrBadURLFormat, "unexpected %q after host", rest)
	}
	u.Path = rest
	return u, nil
}

// RequestUrl is the URL sent on the request line, without credentials.
func (u RtspUrl) RequestUrl() string {
	return fmt.Sprintf("%s%s:%d%s", urlPrefix, u.Host, u.Port, u.Path)
}

func (u RtspUrl) String() string {
	return u.RequestUrl()
}
