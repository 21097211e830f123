package pipeline

import (
	"context"
	"fmt"
	"math"
	"path/filepath"
	"time"

	"github.com/keagan/feederreel/internal/clips"
	"github.com/keagan/feederreel/internal/logging"
	"github.com/keagan/feederreel/pkg/util"
)

// FilterStats describes a filter run
type FilterStats struct {
	RunID       string
	Total       int
	WithBirds   int
	FilteredOut int
	Failed      int
	Output      string
}

// Summary renders the clip counts for the terminal
func (s FilterStats) Summary() string {
	return fmt.Sprintf("Processed %d clips: %d with birds, %d filtered out, %d failed",
		s.Total, s.WithBirds, s.FilteredOut, s.Failed)
}

// Filter samples every clip in inputDir for a first sighting and writes the
// detections file the highlights run starts from. limit > 0 caps the number
// of clips.
func (p *Pipeline) Filter(ctx context.Context, inputDir string, limit int) (*FilterStats, error) {
	logger, runID := logging.WithRun(p.logger)

	if p.config.DetectionsFile == "" {
		return nil, fmt.Errorf("detections file name cannot be empty")
	}

	paths, err := util.ListFiles(inputDir, p.config.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no %v clips in %s", ErrNoClips, p.config.Extensions, inputDir)
	}
	if limit > 0 && len(paths) > limit {
		paths = paths[:limit]
	}

	stats := &FilterStats{
		RunID:  runID,
		Total:  len(paths),
		Output: filepath.Join(inputDir, p.config.DetectionsFile),
	}

	logger.Info().
		Str("input", inputDir).
		Int("clips", len(paths)).
		Msg("starting filter pass")

	probe := p.countingProbe()
	detections := make(Detections)

	for _, path := range paths {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		clip, err := p.readClip(ctx, path)
		if err != nil {
			logger.Warn().Err(err).Str("clip", filepath.Base(path)).Msg("skipping unreadable clip")
			p.metrics.IncClipsFailed()
			stats.Failed++
			continue
		}
		p.metrics.IncClipsScanned()

		var (
			found  *CachedDetection
			failed bool
		)
		for _, at := range SampleOffsets(clip) {
			pr, err := probe.Probe(ctx, clip, at)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				logger.Warn().Err(err).Str("clip", clip.Name()).Msg("detection failed, skipping clip")
				failed = true
				break
			}
			if pr.Present {
				first := at.Seconds()
				found = &CachedDetection{FirstBird: &first, Confidence: round3(pr.Confidence)}
				break
			}
		}

		switch {
		case failed:
			p.metrics.IncClipsFailed()
			stats.Failed++
			continue
		case found == nil:
			stats.FilteredOut++
			continue
		}

		stats.WithBirds++
		p.metrics.IncClipsWithBirds()
		detections[clip.Name()] = *found

		logger.Debug().
			Str("clip", clip.Name()).
			Float64("first_bird", *found.FirstBird).
			Float64("confidence", found.Confidence).
			Msg("bird found")
	}

	if err := SaveDetections(detections, stats.Output); err != nil {
		return nil, err
	}

	logger.Info().
		Int("with_birds", stats.WithBirds).
		Int("filtered_out", stats.FilteredOut).
		Str("output", stats.Output).
		Msg("filter pass complete")

	return stats, nil
}

// SampleOffsets returns the frame times a filter pass looks at: about four
// per second during the first second, where the motion trigger fired, then
// one per second.
func SampleOffsets(clip clips.Clip) []time.Duration {
	if clip.FPS <= 0 {
		var offsets []time.Duration
		for t := time.Duration(0); t < clip.Duration; {
			offsets = append(offsets, t)
			if t < time.Second {
				t += 250 * time.Millisecond
			} else {
				t += time.Second
			}
		}
		return offsets
	}

	firstSecond := int64(clip.FPS)
	early := max(1, int64(clip.FPS/4))
	late := max(1, int64(clip.FPS))

	total := clip.FrameCount
	if total <= 0 {
		total = clip.FrameAt(clip.Duration)
	}

	var offsets []time.Duration
	for n := int64(0); n < total; n++ {
		interval := late
		if n < firstSecond {
			interval = early
		}
		if n%interval == 0 {
			offsets = append(offsets, clip.FrameTime(n))
		}
	}
	return offsets
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
