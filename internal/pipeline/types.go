package pipeline

import (
	"errors"
	"fmt"
	"time"

	"github.com/keagan/feederreel/internal/clips"
	"github.com/keagan/feederreel/internal/ffmpeg"
)

var (
	// ErrNoClips means the input directory holds no matching clips
	ErrNoClips = errors.New("no clips found")
	// ErrNoBirdSegments means no clip in the batch showed activity
	ErrNoBirdSegments = errors.New("no bird segments found in any clips")
	// ErrNoSegmentsExtracted means every segment was dropped during extraction
	ErrNoSegmentsExtracted = errors.New("failed to extract any segments")
)

// Config holds pipeline-specific configuration
type Config struct {
	Buffers   clips.Buffers
	Precision time.Duration
	// Crossfade > 0 joins segments with transitions, falling back to a
	// stream copy when the filter graph fails
	Crossfade time.Duration
	Web       bool

	Extensions []string
	// DetectionsFile is looked up inside the input directory
	DetectionsFile string
	// TempDir hosts the per-run segment directory; empty uses the OS default
	TempDir string
}

// DefaultConfig returns the settings used by the feeder cameras
func DefaultConfig() *Config {
	return &Config{
		Buffers:        clips.Buffers{Before: time.Second, After: time.Second},
		Precision:      time.Second,
		Extensions:     []string{".avi"},
		DetectionsFile: "detections.json",
	}
}

// Stats describes a highlights run
type Stats struct {
	RunID string
	// OriginalDuration is the summed length of every input clip
	OriginalDuration time.Duration
	// BirdClipsDuration is the summed length of clips with activity
	BirdClipsDuration time.Duration
	FinalDuration     time.Duration

	ClipCount         int
	SegmentCount      int
	ExtractedCount    int
	Encoder           string
	SoftwareFallbacks int
	Method            ffmpeg.ConcatMethod
	Output            string
}

// Summary renders the durations in minutes for the terminal
func (s Stats) Summary() string {
	return fmt.Sprintf("Original footage: %.1f min (%d clips)\n"+
		"Clips with birds: %.1f min\n"+
		"Final highlights: %.1f min (%d segments, %d extracted)",
		s.OriginalDuration.Minutes(), s.ClipCount,
		s.BirdClipsDuration.Minutes(),
		s.FinalDuration.Minutes(), s.SegmentCount, s.ExtractedCount)
}
