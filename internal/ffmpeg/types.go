package ffmpeg

import "time"

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath   string
	Duration   time.Duration
	Width      int
	Height     int
	FPS        float64
	FrameCount int64
	Bitrate    int64
	VideoCodec string
	HasAudio   bool
	AudioCodec string
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame   int
	FPS     float64
	Bitrate string
	Time    string
	OutTime time.Duration
	Speed   string
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler ProgressFunc
	LogHandler      func(line string)
}

// Default encoding settings
const (
	SoftwareVideoCodec = "libx264"
	DefaultAudioCodec  = "aac"
	SoftwarePreset     = "fast"

	// QualityHigh keeps the source frame rate at a near-transparent target
	QualityHigh = 18
	// QualityWeb trades quality for size and pins the frame rate
	QualityWeb = 28
	WebFPS     = 24.0
)

// Timeouts for the cheap capability checks. Transcodes run unbounded.
const (
	ListEncodersTimeout = 10 * time.Second
	TestEncodeTimeout   = 15 * time.Second
)
