package Global

import (
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Settings"
)

var (
	ConfigPath string
	// command line overrides
	Url  string
	File string
)

func GlobalInit() (err error) {
	//init config
	if err = Settings.ReadConfig(ConfigPath); err != nil {
		return err
	}
	if err = Settings.Apply(func(c *Settings.Config) {
		if Url != "" {
			c.App.Url = Url
		}
		if File != "" {
			c.Media.File = File
		}
	}); err != nil {
		return err
	}
	//init Logger
	cfg := Settings.GetConfig().Logger
	if err = Logger.Init(
		Logger.SetLevel(Logger.ParseLevel(cfg.Level)),
		Logger.SetLogFileDir(cfg.Dir),
		Logger.SetDevelopment(cfg.Development),
		Logger.SetConsole(cfg.Console),
		Logger.SetMaxAge(cfg.MaxAge),
		Logger.SetMaxBackups(cfg.MaxBackups),
		Logger.SetMaxSize(cfg.MaxSize),
	); err != nil {
		return err
	}
	return
}
