package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"git.hub.com/wangyl/RTSP_PUSHER/Global"
	"git.hub.com/wangyl/RTSP_PUSHER/app"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Logger"
	"git.hub.com/wangyl/RTSP_PUSHER/pkg/Settings"
	"gopkg.in/alecthomas/kingpin.v2"
)

func main() {
	a := kingpin.New(filepath.Base(os.Args[0]), "rtsp audio pusher")
	a.HelpFlag.Short('h')
	a.Flag("config", "config path (.toml or .yaml)").Short('c').StringVar(&Global.ConfigPath)
	a.Flag("url", "rtsp url to push to, overrides App.Url").Short('u').StringVar(&Global.Url)
	a.Flag("file", "raw audio file, overrides Media.File").Short('f').StringVar(&Global.File)
	if _, err := a.Parse(os.Args[1:]); err != nil {
		Logger.GetLogger().Error("init flag fail: " + err.Error())
		os.Exit(-1)
	}
	if err := Global.GlobalInit(); err != nil {
		Logger.GetLogger().Error("init fail: " + err.Error())
		os.Exit(-1)
	}
	defer Logger.Sync()

	//start service
	var pushService app.PushService
	if err := pushService.Init(Settings.GetConfig()); err != nil {
		Logger.GetLogger().Error("init push service fail: " + err.Error())
		os.Exit(-1)
	}
	done := make(chan error, 1)
	go func() {
		done <- pushService.StartWork()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	var err error
	select {
	case s := <-quit:
		Logger.GetLogger().Info("receive signal " + s.String())
		pushService.Stop()
		err = <-done
	case err = <-done:
	}
	if err != nil {
		Logger.GetLogger().Error("push service stop: " + err.Error())
		Logger.Sync()
		os.Exit(1)
	}
	Logger.GetLogger().Info("push service done")
}
