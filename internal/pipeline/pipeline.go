package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/keagan/feederreel/internal/boundary"
	"github.com/keagan/feederreel/internal/clips"
	"github.com/keagan/feederreel/internal/ffmpeg"
	"github.com/keagan/feederreel/internal/logging"
	"github.com/keagan/feederreel/internal/metrics"
	"github.com/keagan/feederreel/pkg/util"
)

// Pipeline turns a directory of feeder clips into one highlights reel.
// Clips and segments are processed one at a time: the probe is backed by a
// single model session and extraction is sized for small hosts.
type Pipeline struct {
	logger  zerolog.Logger
	config  *Config
	ffmpeg  *ffmpeg.Executor
	probe   boundary.Probe
	metrics *metrics.Metrics
}

// New creates a new pipeline instance. m may be nil.
func New(logger zerolog.Logger, cfg *Config, exec *ffmpeg.Executor, probe boundary.Probe, m *metrics.Metrics) *Pipeline {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if m == nil {
		m = metrics.New()
	}

	return &Pipeline{
		logger:  logger.With().Str("component", "pipeline").Logger(),
		config:  cfg,
		ffmpeg:  exec,
		probe:   probe,
		metrics: m,
	}
}

// Generate builds the highlights reel for the clips in inputDir and writes
// it to output. Per-clip and per-segment failures are logged and skipped;
// finding nothing, extracting nothing or failing to assemble ends the run.
func (p *Pipeline) Generate(ctx context.Context, inputDir, output string) (*Stats, error) {
	logger, runID := logging.WithRun(p.logger)
	stats := &Stats{RunID: runID, Output: output}

	logger.Info().
		Str("input", inputDir).
		Str("output", output).
		Msg("starting highlights pipeline")

	if output == "" {
		return nil, fmt.Errorf("output path cannot be empty")
	}

	// Stage 1: discover clips and cached detections
	paths, err := util.ListFiles(inputDir, p.config.Extensions)
	if err != nil {
		return nil, fmt.Errorf("failed to list clips: %w", err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w: no %v clips in %s", ErrNoClips, p.config.Extensions, inputDir)
	}
	stats.ClipCount = len(paths)

	var cached Detections
	if p.config.DetectionsFile != "" {
		cached, err = LoadDetections(filepath.Join(inputDir, p.config.DetectionsFile))
		if err != nil {
			logger.Warn().Err(err).Msg("ignoring unreadable detections cache")
		} else if cached != nil {
			logger.Info().Int("clips", len(cached)).Msg("using cached detections")
		}
	}

	// Stage 2: locate activity and build segments
	segments := p.findSegments(ctx, logger, paths, cached, stats)
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if len(segments) == 0 {
		return nil, ErrNoBirdSegments
	}
	stats.SegmentCount = len(segments)

	logger.Info().
		Int("clips", stats.ClipCount).
		Int("segments", len(segments)).
		Msg("bird segments located")

	// Stage 3: extract segments into a run-scoped temp directory
	tmpDir, err := os.MkdirTemp(p.config.TempDir, "feederreel-segments-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp directory: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	stats.Encoder = encoderLabel(p.ffmpeg.Encoders().Select(ctx))
	p.metrics.SetEncoder(stats.Encoder)

	files, err := p.extractSegments(ctx, logger, segments, tmpDir, stats)
	if err != nil {
		return nil, err
	}
	if len(files) == 0 {
		return nil, ErrNoSegmentsExtracted
	}
	stats.ExtractedCount = len(files)

	// Stage 4: assemble
	if err := util.EnsureDir(filepath.Dir(output)); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	method, err := p.ffmpeg.Concat(ctx, ffmpeg.ConcatOptions{
		Inputs:    files,
		Output:    output,
		Crossfade: p.config.Crossfade,
	})
	if err != nil {
		util.CleanupFiles(output)
		return nil, fmt.Errorf("failed to assemble highlights: %w", err)
	}
	stats.Method = method
	if method == ffmpeg.ConcatFallback {
		p.metrics.IncAssemblyFallbacks()
	}

	if info, err := p.ffmpeg.ProbeVideo(ctx, output); err == nil {
		stats.FinalDuration = info.Duration
	} else {
		logger.Warn().Err(err).Msg("could not probe highlights, estimating duration")
		for _, seg := range segments {
			stats.FinalDuration += seg.Duration()
		}
	}
	p.metrics.SetReelSeconds(stats.FinalDuration.Seconds())

	logger.Info().
		Str("output", output).
		Str("method", string(method)).
		Dur("duration", stats.FinalDuration).
		Int("segments", stats.ExtractedCount).
		Msg("highlights pipeline complete")

	return stats, nil
}

// findSegments searches every clip in order. A clip that cannot be read or
// probed contributes nothing.
func (p *Pipeline) findSegments(ctx context.Context, logger zerolog.Logger, paths []string, cached Detections, stats *Stats) []clips.Segment {
	locator := boundary.NewLocator(logger, p.countingProbe(), boundary.Options{Precision: p.config.Precision})

	var segments []clips.Segment
	for _, path := range paths {
		if ctx.Err() != nil {
			return nil
		}

		clip, err := p.readClip(ctx, path)
		if err != nil {
			logger.Warn().Err(err).Str("clip", filepath.Base(path)).Msg("skipping unreadable clip")
			p.metrics.IncClipsFailed()
			continue
		}
		stats.OriginalDuration += clip.Duration
		p.metrics.IncClipsScanned()

		window, err := locator.Locate(ctx, clip, cached.Hint(clip.Name()))
		if err != nil {
			logger.Warn().Err(err).Str("clip", clip.Name()).Msg("detection failed, skipping clip")
			p.metrics.IncClipsFailed()
			continue
		}
		if window == nil {
			logger.Debug().Str("clip", clip.Name()).Msg("no birds found")
			continue
		}

		seg, ok := clips.BuildSegment(clip, window.First, window.Last, p.config.Buffers)
		if !ok {
			logger.Debug().Str("clip", clip.Name()).Msg("activity window empty after clamping")
			continue
		}

		stats.BirdClipsDuration += clip.Duration
		p.metrics.IncClipsWithBirds()
		segments = append(segments, seg)

		logger.Info().
			Str("clip", clip.Name()).
			Dur("start", seg.Start).
			Dur("end", seg.End).
			Msg("segment found")
	}
	return segments
}

// extractSegments writes each segment to tmpDir in order and returns the
// files that were produced. Only cancellation is returned as an error.
func (p *Pipeline) extractSegments(ctx context.Context, logger zerolog.Logger, segments []clips.Segment, tmpDir string, stats *Stats) ([]string, error) {
	files := make([]string, 0, len(segments))
	for i, seg := range segments {
		out := filepath.Join(tmpDir, fmt.Sprintf("segment_%04d.mp4", i))

		started := time.Now()
		res, err := p.ffmpeg.ExtractClip(ctx, seg.Source.Path, ffmpeg.ClipOptions{
			Start:  seg.Start,
			End:    seg.End,
			Output: out,
			Web:    p.config.Web,
			ProgressFunc: func(pr *ffmpeg.Progress) {
				logger.Trace().
					Int("segment", i).
					Dur("done", pr.OutTime).
					Dur("total", seg.Duration()).
					Str("speed", pr.Speed).
					Msg("extracting")
			},
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Str("clip", seg.Source.Name()).Int("segment", i).Msg("dropping segment")
			p.metrics.IncSegmentsDropped()
			continue
		}
		if res.FellBack {
			stats.SoftwareFallbacks++
			p.metrics.IncEncoderFallbacks()
		}
		p.metrics.IncSegmentsExtracted()

		logger.Debug().
			Int("segment", i).
			Str("encoder", res.Encoder).
			Dur("elapsed", time.Since(started)).
			Msg("segment extracted")

		files = append(files, out)
	}
	return files, nil
}

func (p *Pipeline) readClip(ctx context.Context, path string) (clips.Clip, error) {
	info, err := p.ffmpeg.ProbeVideo(ctx, path)
	if err != nil {
		return clips.Clip{}, err
	}
	return clips.Clip{
		Path:       path,
		Duration:   info.Duration,
		FPS:        info.FPS,
		FrameCount: info.FrameCount,
	}, nil
}

// countingProbe feeds the probe call counter
func (p *Pipeline) countingProbe() boundary.Probe {
	return boundary.ProbeFunc(func(ctx context.Context, clip clips.Clip, at time.Duration) (boundary.Presence, error) {
		p.metrics.IncProbeCalls()
		return p.probe.Probe(ctx, clip, at)
	})
}

func encoderLabel(hw *ffmpeg.HWEncoder) string {
	if hw == nil {
		return ffmpeg.SoftwareVideoCodec
	}
	return hw.Name
}
