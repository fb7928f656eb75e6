package SDP

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	V_SDP = "video"
	A_SDP = "audio"
)

const (
	SessionName = "PusherClient"
	SessionInfo = "RTSP PusherNode"
	TrackID     = 1
)

var ErrNoMedia = errors.New("Not Found Media Info")

type SdpInfo struct {
	Codec       string
	Encoding    string
	TimeScale   int
	Channels    int
	Control     string
	Rtpmap      int
	SpsPps      [][]byte
	PayloadType int
}

// AudioTrack describes the single announced audio stream.
type AudioTrack struct {
	PayloadType  uint8
	EncodingName string
	SampleRate   uint32
	Channels     uint32
}

// BuildAnnounceSdp renders the ANNOUNCE body for one audio track. addr is
// the server address placed on the c= line.
func BuildAnnounceSdp(addr string, track AudioTrack) (string, error) {
	if track.EncodingName == "" {
		return "", errors.Errorf("no encoding name for payload type %d", track.PayloadType)
	}
	if track.SampleRate == 0 {
		return "", errors.New("sample rate must be positive")
	}
	var b strings.Builder
	b.WriteString("v=0\r\n")
	b.WriteString("o=- 2813265695 2813265695 IN IP4 127.0.0.1\r\n")
	b.WriteString("s=" + SessionName + "\r\n")
	b.WriteString("i=" + SessionInfo + "\r\n")
	b.WriteString(fmt.Sprintf("c=IN IP4 %s\r\n", addr))
	b.WriteString("t=0 0\r\n")
	b.WriteString("a=x-qt-text-nam:" + SessionName + "\r\n")
	b.WriteString("a=x-qt-text-inf:" + SessionInfo + "\r\n")
	b.WriteString("a=x-qt-text-cmt:source application:" + SessionName + "\r\n")
	b.WriteString("a=x-qt-text-aut:\r\n")
	b.WriteString("a=x-qt-text-cpy:\r\n")
	b.WriteString(fmt.Sprintf("m=audio 0 RTP/AVP %d\r\n", track.PayloadType))
	b.WriteString(fmt.Sprintf("a=control:trackID=%d\r\n", TrackID))
	b.WriteString(fmt.Sprintf("a=rtpmap:%d %s/%d/%d\r\n", track.PayloadType, track.EncodingName, track.SampleRate, track.Channels))
	return b.String(), nil
}

func ParseSdp(data string) (sdpInfo map[string]*SdpInfo, err error) {
	sdpInfo = make(map[string]*SdpInfo)
	var sdp *SdpInfo
	for _, line := range strings.Split(data, "\n") {
		line := strings.TrimSpace(line)
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		switch parts[0] {
		case "m":
			fields := strings.SplitN(parts[1], " ", 4)
			if len(fields) == 4 {
				switch fields[0] {
				case V_SDP, A_SDP:
					sdp = new(SdpInfo)
					sdpInfo[fields[0]] = sdp
					sdp.PayloadType, _ = strconv.Atoi(fields[3])
				}
			}
		case "a":
			if sdp != nil {
				parseAttribute(sdp, parts[1])
			}
		}
	}
	if len(sdpInfo) == 0 {
		err = ErrNoMedia
	}
	return
}

func parseAttribute(sdp *SdpInfo, attr string) {
	fields := strings.Split(attr, " ")
	for i := 0; i < len(fields); i++ {
		if pFields := strings.SplitN(fields[i], ":", 2); len(pFields) == 2 {
			switch pFields[0] {
			case "rtpmap":
				sdp.Rtpmap, _ = strconv.Atoi(pFields[1])
				if i+1 < len(fields) {
					parseEncoding(sdp, fields[i+1])
				}
			case "control":
				sdp.Control = pFields[1]
			}
		}
		for _, item := range strings.Split(fields[i], ";") {
			if mFields := strings.SplitN(item, "=", 2); len(mFields) == 2 {
				switch mFields[0] {
				case "sprop-parameter-sets":
					for _, spspp := range strings.Split(mFields[1], ",") {
						info, _ := base64.StdEncoding.DecodeString(spspp)
						sdp.SpsPps = append(sdp.SpsPps, info)
					}
				}
			}
		}
	}
}

// parseEncoding reads "<name>/<rate>[/<channels>]".
func parseEncoding(sdp *SdpInfo, s string) {
	pFields := strings.SplitN(s, "/", 3)
	if len(pFields) < 2 {
		return
	}
	sdp.Encoding = pFields[0]
	switch strings.ToUpper(pFields[0]) {
	case "H264":
		sdp.Codec = "h264"
	case "PCMU":
		sdp.Codec = "pcm"
	case "MPA":
		sdp.Codec = "mp3"
	case "DVI4":
		sdp.Codec = "adpcm"
	}
	sdp.TimeScale, _ = strconv.Atoi(pFields[1])
	sdp.Channels = 1
	if len(pFields) == 3 {
		sdp.Channels, _ = strconv.Atoi(pFields[2])
	}
}
