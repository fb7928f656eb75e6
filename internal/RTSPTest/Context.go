package RTSPTest

import "git.hub.com/wangyl/RTSP_PUSHER/internal/RTSP"

// context carries one request and the answer built for it.
type context struct {
	req  RTSP.Request
	resp RTSP.Response
}

func (ctx *context) reply(code int, desc string, header map[string]string) {
	ctx.resp = RTSP.GenerateResponse(code, desc, header, "")
}
