package Logger

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/natefinch/lumberjack"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	mu     sync.RWMutex
	logger = newConsoleLogger(zapcore.InfoLevel)
	inited bool

	debugConsoleWS = zapcore.Lock(os.Stdout)
	errorConsoleWS = zapcore.Lock(os.Stderr)
)

// GetLogger returns the process logger. Before Init it is a console
// logger at info level.
func GetLogger() *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

func Sync() error {
	return GetLogger().Sync()
}

func newConsoleLogger(level zapcore.Level) *zap.Logger {
	return zap.New(zapcore.NewCore(newConsoleEncoder(), errorConsoleWS, level), zap.AddCaller())
}

// Init replaces the console logger with per level rotating files. Only
// the first call has an effect.
func Init(opts ...ModOptions) (err error) {
	mu.Lock()
	defer mu.Unlock()
	if inited {
		logger.Info("[NewLogger] logger Inited")
		return nil
	}
	o := new(Option)
	for _, item := range opts {
		item(o)
	}
	o.fixup()
	if err = os.MkdirAll(o.LogDir, 0755); err != nil {
		return errors.Wrap(err, "create log dir")
	}

	var cfg zap.Config
	if o.Development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.EncoderConfig.EncodeTime = timeEncoder
	cfg.DisableStacktrace = true
	cfg.Level.SetLevel(o.Level)

	log, err := cfg.Build(cores(o, cfg))
	if err != nil {
		return errors.Wrap(err, "build logger")
	}
	logger, inited = log, true
	return nil
}

func rotating(o *Option, level string) zapcore.WriteSyncer {
	return zapcore.AddSync(&lumberjack.Logger{
		Filename:   filepath.Join(o.LogDir, fmt.Sprintf("%s-%s.log", o.FileName, level)),
		MaxSize:    o.MaxSize,
		MaxAge:     o.MaxAge,
		MaxBackups: o.MaxBackups,
		LocalTime:  true,
	})
}

func cores(o *Option, cfg zap.Config) zap.Option {
	fileEncoder := zapcore.NewJSONEncoder(cfg.EncoderConfig)
	consoleEncoder := newConsoleEncoder()
	only := func(level zapcore.Level) zap.LevelEnablerFunc {
		return func(lvl zapcore.Level) bool {
			return lvl == level && cfg.Level.Enabled(lvl)
		}
	}
	errPriority := zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
		return lvl >= zapcore.ErrorLevel && cfg.Level.Enabled(lvl)
	})

	cores := []zapcore.Core{
		zapcore.NewCore(fileEncoder, rotating(o, "error"), errPriority),
		zapcore.NewCore(fileEncoder, rotating(o, "warn"), only(zapcore.WarnLevel)),
		zapcore.NewCore(fileEncoder, rotating(o, "info"), only(zapcore.InfoLevel)),
		zapcore.NewCore(fileEncoder, rotating(o, "debug"), only(zapcore.DebugLevel)),
	}
	if o.Development || o.Console {
		cores = append(cores,
			zapcore.NewCore(consoleEncoder, errorConsoleWS, errPriority),
			zapcore.NewCore(consoleEncoder, debugConsoleWS, zap.LevelEnablerFunc(func(lvl zapcore.Level) bool {
				return lvl < zapcore.ErrorLevel && cfg.Level.Enabled(lvl)
			})),
		)
	}
	return zap.WrapCore(func(core zapcore.Core) zapcore.Core {
		return zapcore.NewTee(cores...)
	})
}

func timeEncoder(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
	enc.AppendString(t.Format("2006-01-02 15:04:05"))
}
