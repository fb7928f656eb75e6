package RTSP

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	RTSP_VERSION = "RTSP/1.0"
)

const (
	OPTIONS = "OPTIONS"

	DESCRIBE = "DESCRIBE"

	ANNOUNCE = "ANNOUNCE"

	SETUP = "SETUP"

	PLAY = "PLAY"

	RECORD = "RECORD"

	SET_PARAMETER = "SET_PARAMETER"

	TEARDOWN = "TEARDOWN"
)

const (
	ContentLength    = "Content-Length"
	ContentType      = "Content-Type"
	UserAgent        = "User-agent"
	Authorization    = "Authorization"
	SessionID        = "Session"
	WWW_Authenticate = "WWW-Authenticate"
	Accept           = "Accept"
	Transport        = "Transport"
	Range            = "Range"
	CSeq             = "CSeq"
	Public           = "Public"
	Bandwidth        = "Bandwidth"
	Speed            = "Speed"
	RTPInfo          = "RTP-Info"
	XPrebuffer       = "x-prebuffer"
)

const MimeSdp = "application/sdp"

type Request struct {
	Method  string
	URL     string
	Version string
	Header  map[string]string
	Body    string
}

// ReadRequest parses one request as a server would see it.
func ReadRequest(r *bufio.Reader) (req Request, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return
	}
	//Request-Line
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) != 3 {
		err = errors.New("Request Line Format Error")
		return
	}
	req.Method = parts[0]
	req.URL = parts[1]
	req.Version = parts[2]
	req.Header = make(map[string]string)
	for {
		line, err = r.ReadString('\n')
		if err != nil {
			err = errors.Wrap(err, "Read Request Header Error")
			return
		}
		if len(strings.TrimSpace(line)) == 0 {
			break
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			err = errors.New("Request Header Format Error")
			return
		}
		req.Header[strings.TrimSpace(parts[0])] = strings.TrimSpace(parts[1])
	}
	if contentLength := req.GetLength(); contentLength > 0 {
		data := make([]byte, contentLength)
		if _, err = io.ReadFull(r, data); err != nil {
			err = errors.Wrap(err, "Request Body Error")
			return
		}
		req.Body = string(data)
	}
	return
}

func (r *Request) String() string {
	var str strings.Builder
	str.WriteString(fmt.Sprintf("%s %s %s\r\n", r.Method, r.URL, r.Version))
	for key, val := range r.Header {
		str.WriteString(fmt.Sprintf("%s: %s\r\n", key, val))
	}
	str.WriteString("\r\n")
	str.WriteString(r.Body)
	return str.String()
}

func (r *Request) GetLength() int {
	v, err := strconv.ParseInt(r.Header[ContentLength], 10, 64)
	if err != nil {
		return 0
	} else {
		return int(v)
	}
}
