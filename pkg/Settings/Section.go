package Settings

import (
	"strings"

	"github.com/pkg/errors"
)

type Config struct {
	App    App    `toml:"App" yaml:"App"`
	Media  Media  `toml:"Media" yaml:"Media"`
	Logger Logger `toml:"Logger" yaml:"Logger"`
}

func (c *Config) fixme() {
	if c.App.Transport == "" {
		c.App.Transport = "tcp"
	}
	if c.App.WaitTimeoutMs == 0 {
		c.App.WaitTimeoutMs = 5000
	}
	if c.Media.Codec == "" {
		c.Media.Codec = "g711"
	}
	if c.Media.SampleRate == 0 {
		c.Media.SampleRate = 8000
	}
	if c.Media.Channels == 0 {
		c.Media.Channels = 1
	}
	if c.Media.FrameSize == 0 {
		c.Media.FrameSize = 160
	}
	if c.Media.FrameDuration == 0 {
		c.Media.FrameDuration = 20
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
}

func (c *Config) Validate() error {
	if c.App.Url == "" {
		return errors.New("App.Url is empty")
	}
	if !strings.EqualFold(c.App.Transport, "tcp") {
		return errors.Errorf("App.Transport %q not supported, only tcp", c.App.Transport)
	}
	if c.Media.FrameSize < 0 || c.Media.FrameSize > MaxFrameSize {
		return errors.Errorf("Media.FrameSize %d out of range 1..%d", c.Media.FrameSize, MaxFrameSize)
	}
	if c.Media.FrameDuration < 0 {
		return errors.Errorf("Media.FrameDuration %d is negative", c.Media.FrameDuration)
	}
	return nil
}

// MaxFrameSize keeps a frame inside one RTP packet.
const MaxFrameSize = 1396

type App struct {
	Url           string `toml:"Url" yaml:"Url"`
	Transport     string `toml:"Transport" yaml:"Transport"`
	Username      string `toml:"Username" yaml:"Username"`
	Password      string `toml:"Password" yaml:"Password"`
	Reconnect     int    `toml:"Reconnect" yaml:"Reconnect"`
	UserAgent     string `toml:"UserAgent" yaml:"UserAgent"`
	WaitTimeoutMs int    `toml:"WaitTimeoutMs" yaml:"WaitTimeoutMs"`
}

type Media struct {
	Codec      string `toml:"Codec" yaml:"Codec"`
	SampleRate uint32 `toml:"SampleRate" yaml:"SampleRate"`
	Channels   uint32 `toml:"Channels" yaml:"Channels"`
	File       string `toml:"File" yaml:"File"`
	// bytes per frame read from File
	FrameSize int `toml:"FrameSize" yaml:"FrameSize"`
	// milliseconds per frame
	FrameDuration int `toml:"FrameDuration" yaml:"FrameDuration"`
}

type Logger struct {
	Level       string `toml:"Level" yaml:"Level"`
	Dir         string `toml:"Dir" yaml:"Dir"`
	MaxSize     int    `toml:"MaxSize" yaml:"MaxSize"`
	MaxBackups  int    `toml:"MaxBackups" yaml:"MaxBackups"`
	MaxAge      int    `toml:"MaxAge" yaml:"MaxAge"`
	Development bool   `toml:"Development" yaml:"Development"`
	Console     bool   `toml:"Console" yaml:"Console"`
}
