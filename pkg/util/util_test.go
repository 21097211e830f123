package util

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "00:00:00.000", FormatDuration(0))
	assert.Equal(t, "01:02:03.500", FormatDuration(time.Hour+2*time.Minute+3500*time.Millisecond))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "1.000", FormatSeconds(time.Second))
	assert.Equal(t, "12.345", FormatSeconds(12345*time.Millisecond))
}

func TestParseTimestamp(t *testing.T) {
	cases := map[string]time.Duration{
		"45.5":       45500 * time.Millisecond,
		"01:30":      90 * time.Second,
		"01:00:01.5": time.Hour + 1500*time.Millisecond,
	}
	for in, want := range cases {
		got, err := ParseTimestamp(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseTimestamp("1:2:3:4")
	assert.Error(t, err)
	_, err = ParseTimestamp("abc")
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	assert.InDelta(t, 29.97, ParseFrameRate("30000/1001"), 0.01)
	assert.Equal(t, 0.0, ParseFrameRate("30/0"))
	assert.Equal(t, 0.0, ParseFrameRate("30"))
}

func TestListFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.avi", "a.AVI", "c.mp4", "notes.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), nil, 0644))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub.avi"), 0755))

	files, err := ListFiles(dir, []string{".avi"})
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(dir, "a.AVI"), filepath.Join(dir, "b.avi")}, files)
}
