package RTSP

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

type Response struct {
	Version    string
	StatusCode int
	Status     string
	Header     map[string]string
	Body       string
}

// parseStatusLine reads "RTSP/1.0 200 OK".
func parseStatusLine(line string) (resp Response, err error) {
	parts := strings.SplitN(strings.TrimSpace(line), " ", 3)
	if len(parts) < 2 {
		err = errors.Wrapf(ErrMalformedResponse, "status line %q", line)
		return
	}
	resp.Version = parts[0]
	resp.StatusCode, err = strconv.Atoi(parts[1])
	if err != nil {
		err = errors.Wrapf(ErrMalformedResponse, "status code %q", parts[1])
		return
	}
	if len(parts) == 3 {
		resp.Status = parts[2]
	}
	resp.Header = make(map[string]string)
	return
}

func GenerateResponse(code int, desc string, header map[string]string, body string) (resp Response) {
	resp.Version = RTSP_VERSION
	resp.StatusCode = code
	resp.Status = desc
	resp.Header = header
	resp.Body = body
	return
}

func (r *Response) String() string {
	var str strings.Builder
	str.WriteString(fmt.Sprintf("%s %d %s\r\n", r.Version, r.StatusCode, r.Status))
	for key, value := range r.Header {
		str.WriteString(fmt.Sprintf("%s: %s\r\n", key, value))
	}
	str.WriteString("\r\n")
	str.WriteString(r.Body)
	return str.String()
}
