package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/keagan/feederreel/pkg/util"
)

// ErrExtractionFailed means neither the chosen nor the software encoder
// produced the segment
var ErrExtractionFailed = errors.New("segment extraction failed")

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start  time.Duration
	End    time.Duration
	Output string
	// Web lowers the quality target and pins the frame rate to WebFPS
	Web          bool
	ProgressFunc ProgressFunc
}

// ClipResult reports how a clip was produced
type ClipResult struct {
	Encoder  string
	FellBack bool
}

// ExtractClip cuts [Start, End) out of input and re-encodes it with the
// selected encoder. A failing hardware encode is retried once in software
// with the same trim and filter arguments. On error no usable file exists at
// opts.Output.
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) (ClipResult, error) {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return ClipResult{}, fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.Output == "" {
		return ClipResult{}, fmt.Errorf("output path is required")
	}

	hw := e.encoders.Select(ctx)

	e.logger.Info().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Str("encoder", encoderName(hw)).
		Bool("web", opts.Web).
		Msg("extracting clip")

	_, err := e.Run(ctx, e.clipRunOptions(input, opts, hw))
	if err == nil {
		return ClipResult{Encoder: encoderName(hw)}, nil
	}
	if ctx.Err() != nil {
		util.CleanupFiles(opts.Output)
		return ClipResult{}, ctx.Err()
	}
	if hw == nil {
		util.CleanupFiles(opts.Output)
		e.logger.Warn().Err(err).Str("input", input).Msg("software extraction failed")
		return ClipResult{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	event := e.logger.Warn().Err(err).Str("encoder", hw.Name)
	if encoderUnavailable(err) {
		event.Msg("hardware encoder unavailable for this clip, retrying with " + SoftwareVideoCodec)
	} else {
		event.Msg("hardware extraction failed, retrying with " + SoftwareVideoCodec)
	}

	if _, err := e.Run(ctx, e.clipRunOptions(input, opts, nil)); err != nil {
		util.CleanupFiles(opts.Output)
		if ctx.Err() != nil {
			return ClipResult{}, ctx.Err()
		}
		e.logger.Warn().Err(err).Str("input", input).Msg("software fallback failed")
		return ClipResult{}, fmt.Errorf("%w: %v", ErrExtractionFailed, err)
	}

	e.logger.Info().Str("output", opts.Output).Msg("clip extraction complete (software fallback)")
	return ClipResult{Encoder: SoftwareVideoCodec, FellBack: true}, nil
}

// clipArgs builds the trim and encode arguments. hw == nil selects libx264.
func (e *Executor) clipArgs(input string, opts ClipOptions, hw *HWEncoder) []string {
	var args []string
	if hw != nil {
		args = append(args, hw.PreInputArgs...)
	}
	args = append(args,
		"-ss", util.FormatSeconds(opts.Start),
		"-i", input,
		"-t", util.FormatSeconds(opts.End-opts.Start),
	)

	quality := QualityHigh
	fb := NewFilterBuilder()
	if opts.Web {
		quality = QualityWeb
		fb.FPS(WebFPS)
	}
	if hw != nil {
		fb.Custom(hw.Filters...)
	}
	if filter := fb.Build(); filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, "-c:v", encoderName(hw))
	args = append(args, hw.QualityArgs(quality)...)
	args = append(args, "-c:a", DefaultAudioCodec)
	if e.threads > 0 {
		args = append(args, "-threads", strconv.Itoa(e.threads))
	}

	return append(args, opts.Output)
}

func (e *Executor) clipRunOptions(input string, opts ClipOptions, hw *HWEncoder) RunOptions {
	return RunOptions{
		Args:            e.clipArgs(input, opts, hw),
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("clip extraction")
		},
	}
}

func encoderName(hw *HWEncoder) string {
	if hw == nil {
		return SoftwareVideoCodec
	}
	return hw.Name
}

// encoderUnavailable spots the stderr signatures of an encoder that cannot
// run on this input or device
func encoderUnavailable(err error) bool {
	var exitErr *ExitError
	if !errors.As(err, &exitErr) {
		return false
	}
	msg := strings.ToLower(exitErr.Stderr)
	for _, marker := range []string{"unknown encoder", "not supported", "no device available", "error initializing output stream"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// ExtractFrame decodes the frame shown at timestamp and returns it PNG encoded
func (e *Executor) ExtractFrame(ctx context.Context, input string, timestamp time.Duration) ([]byte, error) {
	if input == "" {
		return nil, fmt.Errorf("input path is required")
	}

	res, err := e.Run(ctx, RunOptions{
		Args: []string{
			"-ss", util.FormatSeconds(timestamp),
			"-i", input,
			"-frames:v", "1",
			"-f", "image2pipe",
			"-vcodec", "png",
			"-",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("frame extraction failed: %w", err)
	}
	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("no frame at %s in %s", util.FormatSeconds(timestamp), input)
	}
	return res.Stdout, nil
}
