package app

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Pusher"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Settings"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// PushService streams a raw audio file to one RTSP server, one frame of
// FrameSize bytes every FrameDuration.
type PushService struct {
	cfg           Settings.Config
	media         Pusher.MediaInfo
	frameSize     int
	frameDuration time.Duration

	handle *Pusher.Handle
	source io.ReadCloser
	ctx    context.Context
	cancel context.CancelFunc
	failed chan Pusher.PusherState
	pushed int
}

func ParseCodec(name string) (Pusher.AudioCodec, error) {
	switch strings.ToLower(name) {
	case "g711", "pcmu":
		return Pusher.AudioCodecG711, nil
	case "mp3", "mpa":
		return Pusher.AudioCodecMP3, nil
	case "adpcm", "adpcm8k":
		return Pusher.AudioCodecIMAADPCM8K, nil
	case "adpcm16k":
		return Pusher.AudioCodecIMAADPCM16K, nil
	}
	return 0, errors.Errorf("unknown codec %q", name)
}

// frameTime is the capture time of frame index when frames are d apart.
func frameTime(index int, d time.Duration) (sec, usec uint32) {
	at := time.Duration(index) * d
	return uint32(at / time.Second), uint32((at % time.Second) / time.Microsecond)
}

func (s *PushService) Init(cfg Settings.Config) error {
	codec, err := ParseCodec(cfg.Media.Codec)
	if err != nil {
		return err
	}
	source, err := os.Open(cfg.Media.File)
	if err != nil {
		return errors.Wrap(err, "open media file")
	}
	s.cfg = cfg
	s.media = Pusher.MediaInfo{
		AudioCodec:      codec,
		AudioSamplerate: cfg.Media.SampleRate,
		AudioChannel:    cfg.Media.Channels,
	}
	s.frameSize = cfg.Media.FrameSize
	s.frameDuration = time.Duration(cfg.Media.FrameDuration) * time.Millisecond
	s.source = source
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.failed = make(chan Pusher.PusherState, 1)
	s.handle = Pusher.Create()
	Pusher.SetCallback(s.handle, s.onState, nil)
	Pusher.SetWaitTimeout(s.handle, cfg.App.WaitTimeoutMs, int(s.frameDuration.Milliseconds())*2)
	return nil
}

func (s *PushService) onState(state Pusher.PusherState, status int, ctx interface{}) {
	Logger.GetLogger().Info("pusher state "+state.String(), zap.Int64("pusher_id", s.handle.Id()),
		zap.String("rtsp_addr", s.cfg.App.Url), zap.Int("status", status))
	if state == Pusher.StateError {
		select {
		case s.failed <- state:
		default:
		}
	}
}

// StartWork connects, pushes the file until it ends or Stop is called,
// then tears the session down. It returns once the pusher is released.
func (s *PushService) StartWork() error {
	defer s.release()
	conf := s.cfg.App
	if code := Pusher.StartStreamContext(s.ctx, s.handle, conf.Url, Pusher.RtpOverTCP,
		conf.Username, conf.Password, conf.Reconnect, s.media); code != Pusher.NoErr {
		return errors.Errorf("start stream %s fail, code %d", conf.Url, code)
	}

	ticker := time.NewTicker(s.frameDuration)
	defer ticker.Stop()
	buf := make([]byte, s.frameSize)
	for index := 0; ; index++ {
		select {
		case <-s.ctx.Done():
			return s.close()
		case state := <-s.failed:
			return errors.Errorf("pusher stopped in state %s", state)
		case <-ticker.C:
		}
		n, err := io.ReadFull(s.source, buf)
		if n > 0 {
			sec, usec := frameTime(index, s.frameDuration)
			frame := &Pusher.MediaFrame{
				FrameData:     buf[:n],
				TimestampSec:  sec,
				TimestampUsec: usec,
				Duration:      float64(s.frameDuration.Milliseconds()),
			}
			if code := Pusher.PushFrame(s.handle, frame); code != Pusher.NoErr {
				return errors.Errorf("push frame %d fail, code %d", index, code)
			}
			s.pushed++
		}
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			Logger.GetLogger().Info("media file end", zap.Int("frames", s.pushed),
				zap.Int("dropped", s.handle.DroppedFrames()))
			return s.close()
		}
		if err != nil {
			return errors.Wrap(err, "read media file")
		}
	}
}

func (s *PushService) close() error {
	if code := Pusher.CloseStream(s.handle); code != Pusher.NoErr {
		return errors.Errorf("close stream fail, code %d", code)
	}
	return nil
}

func (s *PushService) release() {
	s.cancel()
	Pusher.Release(s.handle)
	if err := s.source.Close(); err != nil {
		Logger.GetLogger().Warn("close media file fail: " + err.Error())
	}
}

// Stop makes StartWork tear down the session and return.
func (s *PushService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *PushService) Pushed() int {
	return s.pushed
}
