package ffmpeg

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/feederreel/pkg/util"
)

// FilterBuilder helps construct comma-joined ffmpeg filter chains
type FilterBuilder struct {
	filters []string
}

// NewFilterBuilder creates a new filter builder
func NewFilterBuilder() *FilterBuilder {
	return &FilterBuilder{
		filters: make([]string, 0),
	}
}

// FPS adds an fps filter
func (fb *FilterBuilder) FPS(fps float64) *FilterBuilder {
	if fps <= 0 {
		return fb
	}
	fb.filters = append(fb.filters, "fps="+strconv.FormatFloat(fps, 'f', -1, 64))
	return fb
}

// Custom adds custom filter strings
func (fb *FilterBuilder) Custom(filters ...string) *FilterBuilder {
	fb.filters = append(fb.filters, filters...)
	return fb
}

// Build returns the complete filter string joined with commas
func (fb *FilterBuilder) Build() string {
	return strings.Join(fb.filters, ",")
}

// CrossfadeGraph builds a filter_complex that chains xfade/acrossfade across
// inputs left to right. Each transition starts exactly fade before the end
// of the running concatenation. Output labels are [vout] and [aout].
func CrossfadeGraph(durations []time.Duration, fade time.Duration) (string, error) {
	n := len(durations)
	if n < 2 {
		return "", fmt.Errorf("crossfade needs at least 2 inputs, got %d", n)
	}
	if fade <= 0 {
		return "", fmt.Errorf("crossfade duration must be positive")
	}

	video := make([]string, 0, n-1)
	audio := make([]string, 0, n-1)
	fadeStr := util.FormatSeconds(fade)

	cumulative := durations[0]
	for i := 1; i < n; i++ {
		offset := cumulative - fade
		if offset < 0 {
			offset = 0
		}

		prevV, prevA := "0:v", "0:a"
		if i > 1 {
			prevV, prevA = fmt.Sprintf("v%d", i-2), fmt.Sprintf("a%d", i-2)
		}
		outV, outA := fmt.Sprintf("v%d", i-1), fmt.Sprintf("a%d", i-1)
		if i == n-1 {
			outV, outA = "vout", "aout"
		}

		video = append(video, fmt.Sprintf("[%s][%d:v]xfade=transition=fade:duration=%s:offset=%s[%s]",
			prevV, i, fadeStr, util.FormatSeconds(offset), outV))
		audio = append(audio, fmt.Sprintf("[%s][%d:a]acrossfade=d=%s:c1=tri:c2=tri[%s]",
			prevA, i, fadeStr, outA))

		cumulative += durations[i] - fade
	}

	return strings.Join(append(video, audio...), ";"), nil
}
