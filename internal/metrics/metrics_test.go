package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteTextfile(t *testing.T) {
	m := New()
	m.IncClipsScanned()
	m.IncClipsScanned()
	m.IncClipsWithBirds()
	m.IncProbeCalls()
	m.IncSegmentsExtracted()
	m.IncSegmentsDropped()
	m.IncEncoderFallbacks()
	m.SetEncoder("h264_vaapi")
	m.SetReelSeconds(42.5)

	path := filepath.Join(t.TempDir(), "feederreel.prom")
	require.NoError(t, m.WriteTextfile(path))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(raw)

	assert.Contains(t, out, "feederreel_clips_scanned_total 2")
	assert.Contains(t, out, "feederreel_clips_with_birds_total 1")
	assert.Contains(t, out, "feederreel_segments_dropped_total 1")
	assert.Contains(t, out, `feederreel_video_encoder{encoder="h264_vaapi"} 1`)
	assert.Contains(t, out, "feederreel_reel_duration_seconds 42.5")
	assert.Contains(t, out, "# HELP feederreel_probe_calls_total")
}

func TestSetEncoderReplacesPrevious(t *testing.T) {
	m := New()
	m.SetEncoder("h264_nvenc")
	m.SetEncoder("libx264")

	families, err := m.Registry().Gather()
	require.NoError(t, err)

	for _, f := range families {
		if f.GetName() != "feederreel_video_encoder" {
			continue
		}
		require.Len(t, f.GetMetric(), 1)
		assert.Equal(t, "libx264", f.GetMetric()[0].GetLabel()[0].GetValue())
		return
	}
	t.Fatal("encoder gauge not gathered")
}
