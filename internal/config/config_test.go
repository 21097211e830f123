package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, time.Second, cfg.Highlights.BufferBefore)
	assert.Equal(t, time.Second, cfg.Highlights.BufferAfter)
	assert.Equal(t, []string{".avi"}, cfg.Highlights.Extensions)
	assert.Equal(t, 14.0, cfg.BestClips.Window)
	assert.Equal(t, 0.2, cfg.Detector.BirdThreshold)
	assert.Equal(t, 0.3, cfg.Detector.PersonThreshold)
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "config.yaml", `
ffmpeg:
  threads: 4
  hwaccel: false
highlights:
  buffer_before: 2s
  crossfade: 500ms
  web: true
best_clips:
  window_s: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.FFmpeg.Threads)
	assert.False(t, cfg.FFmpeg.HWAccel)
	assert.Equal(t, 2*time.Second, cfg.Highlights.BufferBefore)
	assert.Equal(t, time.Second, cfg.Highlights.BufferAfter)
	assert.Equal(t, 500*time.Millisecond, cfg.Highlights.Crossfade)
	assert.True(t, cfg.Highlights.Web)
	assert.Equal(t, 10.0, cfg.BestClips.Window)
	assert.Equal(t, "ffmpeg", cfg.FFmpeg.BinaryPath)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Highlights, cfg.Highlights)
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", "highlights: [unclosed"))
	assert.Error(t, err)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	_, err := Load(writeFile(t, "config.yaml", `
detector:
  bird_threshold: 1.5
best_clips:
  window_s: 0
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bird_threshold")
	assert.Contains(t, err.Error(), "window_s")
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("FEEDERREEL_FFMPEG_PATH", "/opt/ffmpeg/bin/ffmpeg")
	t.Setenv("FEEDERREEL_THREADS", "8")
	t.Setenv("FEEDERREEL_HWACCEL", "false")
	t.Setenv("FEEDERREEL_MODEL_PATH", "/models/birds.onnx")
	t.Setenv("FEEDERREEL_METRICS_TEXTFILE", "/var/lib/node_exporter/feederreel.prom")

	cfg, err := Load(writeFile(t, "config.yaml", "ffmpeg:\n  threads: 4\n"))
	require.NoError(t, err)
	assert.Equal(t, "/opt/ffmpeg/bin/ffmpeg", cfg.FFmpeg.BinaryPath)
	assert.Equal(t, 8, cfg.FFmpeg.Threads)
	assert.False(t, cfg.FFmpeg.HWAccel)
	assert.Equal(t, "/models/birds.onnx", cfg.Detector.ModelPath)
	assert.Equal(t, "/var/lib/node_exporter/feederreel.prom", cfg.Metrics.Textfile)
}

func TestEnvOverrideIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("FEEDERREEL_THREADS", "lots")
	cfg, err := Load(writeFile(t, "config.yaml", "ffmpeg:\n  threads: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.FFmpeg.Threads)
}

func TestLoadEnvFile(t *testing.T) {
	const key = "FEEDERREEL_TEST_ENV_FILE_VALUE"
	t.Cleanup(func() { os.Unsetenv(key) })

	path := writeFile(t, ".env", key+"=from-dotenv\n")
	require.NoError(t, LoadEnvFile(path))
	assert.Equal(t, "from-dotenv", os.Getenv(key))

	assert.NoError(t, LoadEnvFile(filepath.Join(t.TempDir(), "missing.env")))
}

func TestSaveRoundTrip(t *testing.T) {
	cfg := Default()
	cfg.Highlights.Crossfade = 750 * time.Millisecond
	cfg.Detector.LibraryPath = "/usr/lib/libonnxruntime.so"

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Highlights, loaded.Highlights)
	assert.Equal(t, cfg.Detector, loaded.Detector)
}

func TestContext(t *testing.T) {
	assert.Equal(t, Default().BestClips, FromContext(context.Background()).BestClips)

	cfg := Default()
	cfg.BestClips.Window = 20
	ctx := WithConfig(context.Background(), cfg)
	assert.Same(t, cfg, FromContext(ctx))
}
