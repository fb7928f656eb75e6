package Logger

import (
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap/buffer"
	"go.uber.org/zap/zapcore"
)

const (
	Red     = 31
	Yellow  = 33
	Magenta = 35
	Cyan    = 36
)

var _pool = buffer.NewPool()

// consoleEncoder writes one colored line per entry:
// LEVEL<tab>time<tab>caller<tab>message<tab><key:value ...>
type consoleEncoder struct {
	*zapcore.MapObjectEncoder
}

func newConsoleEncoder() zapcore.Encoder {
	return &consoleEncoder{MapObjectEncoder: zapcore.NewMapObjectEncoder()}
}

func (c *consoleEncoder) Clone() zapcore.Encoder {
	m := zapcore.NewMapObjectEncoder()
	for k, v := range c.Fields {
		m.Fields[k] = v
	}
	return &consoleEncoder{MapObjectEncoder: m}
}

func levelColor(level zapcore.Level) int {
	switch level {
	case zapcore.DebugLevel:
		return Magenta
	case zapcore.InfoLevel:
		return Cyan
	case zapcore.WarnLevel:
		return Yellow
	}
	return Red
}

func (c *consoleEncoder) EncodeEntry(ent zapcore.Entry, fields []zapcore.Field) (*buffer.Buffer, error) {
	line := _pool.Get()
	line.AppendString(fmt.Sprintf("\x1b[%dm%s\x1b[0m", levelColor(ent.Level), strings.ToUpper(ent.Level.String())))
	line.AppendByte('\t')
	line.AppendString(ent.Time.Format("2006-01-02 15:04:05"))
	line.AppendByte('\t')
	if ent.Caller.Defined {
		line.AppendString(ent.Caller.TrimmedPath())
		line.AppendByte('\t')
	}
	line.AppendString(ent.Message)

	all := c.Clone().(*consoleEncoder)
	for _, field := range fields {
		field.AddTo(all)
	}
	if len(all.Fields) > 0 {
		keys := make([]string, 0, len(all.Fields))
		for k := range all.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		line.AppendString("\t<")
		for i, k := range keys {
			if i > 0 {
				line.AppendByte(' ')
			}
			line.AppendString(fmt.Sprintf("%s:%v", k, all.Fields[k]))
		}
		line.AppendByte('>')
	}
	line.AppendString(zapcore.DefaultLineEnding)
	return line, nil
}
