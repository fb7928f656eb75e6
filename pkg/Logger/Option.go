package Logger

import (
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Option struct {
	LogDir      string
	FileName    string
	Level       zapcore.Level
	MaxSize     int // MB before a log file is rotated
	MaxBackups  int
	MaxAge      int // days
	Development bool
	// Console mirrors file output to stdout.
	Console bool
}

func (i *Option) fixup() {
	if i.LogDir == "" {
		dir, _ := filepath.Abs(".")
		i.LogDir = filepath.Join(dir, "logs")
	}
	if i.FileName == "" {
		i.FileName = filepath.Base(os.Args[0])
	}
	if i.MaxBackups == 0 {
		i.MaxBackups = 5
	}
	if i.MaxSize == 0 {
		i.MaxSize = 100
	}
	if i.MaxAge == 0 {
		i.MaxAge = 7
	}
}

type ModOptions func(options *Option)

func SetMaxSize(MaxSize int) ModOptions {
	return func(option *Option) {
		option.MaxSize = MaxSize
	}
}

func SetMaxBackups(MaxBackups int) ModOptions {
	return func(option *Option) {
		option.MaxBackups = MaxBackups
	}
}

func SetMaxAge(MaxAge int) ModOptions {
	return func(option *Option) {
		option.MaxAge = MaxAge
	}
}

func SetLogFileDir(LogFileDir string) ModOptions {
	return func(option *Option) {
		option.LogDir = LogFileDir
	}
}

func SetFileName(FileName string) ModOptions {
	return func(option *Option) {
		option.FileName = FileName
	}
}

func SetLevel(Level zapcore.Level) ModOptions {
	return func(option *Option) {
		option.Level = Level
	}
}

func SetDevelopment(Development bool) ModOptions {
	return func(option *Option) {
		option.Development = Development
	}
}

func SetConsole(Console bool) ModOptions {
	return func(option *Option) {
		option.Console = Console
	}
}

// ParseLevel maps a config level name to a zap level. Unknown names
// fall back to debug.
func ParseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "info":
		return zapcore.InfoLevel
	case "warn":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	case "dpanic":
		return zapcore.DPanicLevel
	case "panic":
		return zapcore.PanicLevel
	case "fatal":
		return zapcore.FatalLevel
	default:
		return zapcore.DebugLevel
	}
}
