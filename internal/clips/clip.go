package clips

import (
	"math"
	"path/filepath"
	"time"
)

// Clip is one camera recording, immutable once probed
type Clip struct {
	Path       string
	Duration   time.Duration
	FPS        float64
	FrameCount int64
}

// Name returns the file name used to key cached detections
func (c Clip) Name() string {
	return filepath.Base(c.Path)
}

// FrameAt returns the index of the frame shown at offset t
func (c Clip) FrameAt(t time.Duration) int64 {
	if c.FPS <= 0 || t <= 0 {
		return 0
	}
	return int64(t.Seconds() * c.FPS)
}

// FrameTime returns the presentation time of frame n
func (c Clip) FrameTime(n int64) time.Duration {
	if c.FPS <= 0 {
		return 0
	}
	return time.Duration(math.Round(float64(n) / c.FPS * float64(time.Second)))
}

// Segment is a padded, clamped sub-range of a clip
type Segment struct {
	Source Clip
	Start  time.Duration
	End    time.Duration
}

// Duration returns End - Start
func (s Segment) Duration() time.Duration {
	return s.End - s.Start
}

// Buffers pad the detected activity on both sides
type Buffers struct {
	Before time.Duration
	After  time.Duration
}

// BuildSegment pads [first, last] by the buffers and clamps the result to the
// clip. ok is false when the clamped range is empty.
func BuildSegment(clip Clip, first, last time.Duration, buf Buffers) (Segment, bool) {
	start := first - buf.Before
	if start < 0 {
		start = 0
	}
	end := last + buf.After
	if end > clip.Duration {
		end = clip.Duration
	}
	if end <= start {
		return Segment{}, false
	}
	return Segment{Source: clip, Start: start, End: end}, true
}
