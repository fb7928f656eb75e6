package Logger

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestDefaultLogger(t *testing.T) {
	require.NotNil(t, GetLogger())
	assert.True(t, GetLogger().Core().Enabled(zapcore.InfoLevel))
	assert.False(t, GetLogger().Core().Enabled(zapcore.DebugLevel))
}

func TestConsoleEncoder(t *testing.T) {
	assert := assert.New(t)
	var buf bytes.Buffer
	log := zap.New(zapcore.NewCore(newConsoleEncoder(), zapcore.AddSync(&buf), zapcore.DebugLevel)).
		With(zap.Int64("pusher_id", 7))
	log.Info("pusher connected", zap.String("rtsp_addr", "rtsp://10.0.0.1:554/live"), zap.Int("status", 200))
	log.Debug("bare")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(string(lines[0]), "INFO")
	assert.Contains(string(lines[0]), "\tpusher connected\t<pusher_id:7 rtsp_addr:rtsp://10.0.0.1:554/live status:200>")
	assert.Contains(string(lines[1]), "\tbare\t<pusher_id:7>")
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, zapcore.WarnLevel, ParseLevel("WARN"))
	assert.Equal(t, zapcore.ErrorLevel, ParseLevel("error"))
	assert.Equal(t, zapcore.DebugLevel, ParseLevel("verbose"))
}

func TestInit(t *testing.T) {
	assert := assert.New(t)
	dir := t.TempDir()
	require.NoError(t, Init(SetLogFileDir(dir), SetFileName("pusher"), SetLevel(zapcore.InfoLevel)))
	GetLogger().Info("written to file")
	GetLogger().Debug("filtered")
	GetLogger().Error("failure")
	_ = Sync()

	info, err := os.ReadFile(filepath.Join(dir, "pusher-info.log"))
	require.NoError(t, err)
	assert.Contains(string(info), "written to file")
	assert.NotContains(string(info), "failure")
	errs, err := os.ReadFile(filepath.Join(dir, "pusher-error.log"))
	require.NoError(t, err)
	assert.Contains(string(errs), "failure")
	_, err = os.Stat(filepath.Join(dir, "pusher-debug.log"))
	assert.True(os.IsNotExist(err))

	// later calls keep the first configuration
	assert.NoError(Init(SetLogFileDir(t.TempDir())))
}
