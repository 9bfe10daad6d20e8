package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dkeye/Huddle/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inDir runs the test from a temporary working directory.
func inDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inDir(t)
	t.Setenv("CONFIG_ENV", "missing")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, int64(65536), cfg.ReadLimit)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 5*time.Second, cfg.RouterWait)
	assert.Equal(t, 5, cfg.RateLimit.CreateRoom)
	assert.Equal(t, time.Minute, cfg.RateLimit.Interval)
	assert.Equal(t, "pion", cfg.Media.Engine)
	assert.Equal(t, 1, cfg.Media.NumWorkers)
	assert.Equal(t, uint16(40000), cfg.Media.RTCMinPort)
	assert.Equal(t, uint16(49999), cfg.Media.RTCMaxPort)
	assert.Equal(t, uint32(1500000), cfg.Media.MaxIncomingBitrate)
	assert.Equal(t, 2*time.Second, cfg.Media.WorkerExitDelay)
	assert.NotEmpty(t, cfg.Secret)
	assert.Empty(t, cfg.Media.RouterCodecs())
}

func TestLoad_FileAndEnv(t *testing.T) {
	dir := inDir(t)
	require.NoError(t, os.Mkdir(filepath.Join(dir, "config"), 0o755))
	yaml := `
mode: debug
port: 9000
secret: s3cr3t
media:
  engine: loopback
  num_workers: 4
  codecs:
    - kind: audio
      mime_type: audio/opus
      clock_rate: 48000
      channels: 2
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config", "config.test.yaml"), []byte(yaml), 0o644))
	t.Setenv("CONFIG_ENV", "test")
	t.Setenv("HUDDLE_PORT", "9100")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 9100, cfg.Port)
	assert.Equal(t, "s3cr3t", cfg.Secret)
	assert.Equal(t, "loopback", cfg.Media.Engine)
	assert.Equal(t, 4, cfg.Media.NumWorkers)
	assert.Equal(t, []domain.RtpCodecCapability{
		{Kind: domain.KindAudio, MimeType: "audio/opus", ClockRate: 48000, Channels: 2},
	}, cfg.Media.RouterCodecs())
}

func TestLoad_Invalid(t *testing.T) {
	inDir(t)
	t.Setenv("CONFIG_ENV", "missing")
	t.Setenv("HUDDLE_MEDIA_NUM_WORKERS", "0")

	_, err := Load()
	require.ErrorIs(t, err, ErrInvalidConfig)
}
