package RTSP

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequest(t *testing.T) {
	assert := assert.New(t)
	data := "ANNOUNCE rtsp://192.0.1.100:554/live/a RTSP/1.0\r\nCSeq: 2\r\nContent-Type: application/sdp\r\n" +
		"Content-Length: 5\r\n\r\nv=0\r\nOPTIONS rtsp://192.0.1.100:554/live/a RTSP/1.0\r\nCSeq: 3\r\n\r\n"
	r := bufio.NewReader(strings.NewReader(data))

	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(ANNOUNCE, req.Method)
	assert.Equal("rtsp://192.0.1.100:554/live/a", req.URL)
	assert.Equal(RTSP_VERSION, req.Version)
	assert.Equal("2", req.Header[CSeq])
	assert.Equal(5, req.GetLength())
	assert.Equal("v=0\r\n", req.Body)

	req, err = ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(OPTIONS, req.Method)
	assert.Empty(req.Body)

	_, err = ReadRequest(r)
	assert.Error(err)
}

func TestReadRequestMalformed(t *testing.T) {
	for _, data := range []string{
		"OPTIONS\r\n\r\n",
		"OPTIONS * RTSP/1.0\r\nCSeq 1\r\n\r\n",
		"ANNOUNCE * RTSP/1.0\r\nContent-Length: 10\r\n\r\nshort",
	} {
		_, err := ReadRequest(bufio.NewReader(strings.NewReader(data)))
		assert.Error(t, err, data)
	}
}

func TestResponseString(t *testing.T) {
	resp := GenerateResponse(StatusOK, "OK", map[string]string{CSeq: "4"}, "")
	assert.Equal(t, "RTSP/1.0 200 OK\r\nCSeq: 4\r\n\r\n", resp.String())

	parsed, err := parseStatusLine("RTSP/1.0 454 Session Not Found\r\n")
	require.NoError(t, err)
	assert.Equal(t, 454, parsed.StatusCode)
	assert.Equal(t, "Session Not Found", parsed.Status)
	assert.NotNil(t, parsed.Header)

	_, err = parseStatusLine("RTSP/1.0 abc\r\n")
	assert.ErrorIs(t, err, ErrMalformedResponse)
}
