package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrNoSegments is returned when there is nothing to assemble
var ErrNoSegments = errors.New("no segments to assemble")

// ConcatMethod records which path produced the output
type ConcatMethod string

const (
	ConcatCopy      ConcatMethod = "copy"
	ConcatDemuxer   ConcatMethod = "concat"
	ConcatCrossfade ConcatMethod = "crossfade"
	// ConcatFallback is a demuxer concat after the crossfade graph failed
	ConcatFallback ConcatMethod = "concat-fallback"
)

// ConcatOptions defines concatenation parameters
type ConcatOptions struct {
	Inputs []string
	Output string
	// Crossfade > 0 requests xfade transitions of that length
	Crossfade    time.Duration
	ProgressFunc ProgressFunc
}

// Concat merges the inputs, in order, into one file. A single input is stream
// copied; several inputs go through the concat demuxer unless a crossfade is
// requested, in which case a failed filter graph falls back to the demuxer.
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) (ConcatMethod, error) {
	if len(opts.Inputs) == 0 {
		return "", ErrNoSegments
	}
	if opts.Output == "" {
		return "", fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Dur("crossfade", opts.Crossfade).
		Msg("concatenating videos")

	if len(opts.Inputs) == 1 {
		if err := e.copySingle(ctx, opts); err != nil {
			return "", err
		}
		return ConcatCopy, nil
	}

	if opts.Crossfade > 0 {
		err := e.crossfade(ctx, opts)
		if err == nil {
			return ConcatCrossfade, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		e.logger.Warn().Err(err).Msg("crossfade failed, falling back to simple concatenation")
		if err := e.concatDemuxer(ctx, opts); err != nil {
			return "", err
		}
		return ConcatFallback, nil
	}

	if err := e.concatDemuxer(ctx, opts); err != nil {
		return "", err
	}
	return ConcatDemuxer, nil
}

func (e *Executor) copySingle(ctx context.Context, opts ConcatOptions) error {
	_, err := e.Run(ctx, RunOptions{
		Args:            []string{"-i", opts.Inputs[0], "-c", "copy", opts.Output},
		ProgressHandler: opts.ProgressFunc,
	})
	if err != nil {
		return fmt.Errorf("copy failed: %w", err)
	}
	return nil
}

func (e *Executor) concatDemuxer(ctx context.Context, opts ConcatOptions) error {
	concatFile, err := e.createConcatFile(opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	_, err = e.Run(ctx, RunOptions{
		Args: []string{
			"-f", "concat",
			"-safe", "0",
			"-i", concatFile,
			"-c", "copy",
			opts.Output,
		},
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("concatenating")
		},
	})
	if err != nil {
		return fmt.Errorf("concat failed: %w", err)
	}
	return nil
}

func (e *Executor) crossfade(ctx context.Context, opts ConcatOptions) error {
	durations := make([]time.Duration, len(opts.Inputs))
	for i, input := range opts.Inputs {
		info, err := e.ProbeVideo(ctx, input)
		if err != nil {
			return err
		}
		durations[i] = info.Duration
	}

	graph, err := CrossfadeGraph(durations, opts.Crossfade)
	if err != nil {
		return err
	}

	args := make([]string, 0, 2*len(opts.Inputs)+16)
	for _, input := range opts.Inputs {
		args = append(args, "-i", input)
	}
	args = append(args,
		"-filter_complex", graph,
		"-map", "[vout]",
		"-map", "[aout]",
		"-c:v", SoftwareVideoCodec,
	)
	args = append(args, softwareQualityArgs(QualityHigh)...)
	args = append(args, "-c:a", DefaultAudioCodec, opts.Output)

	if _, err := e.Run(ctx, RunOptions{Args: args, ProgressHandler: opts.ProgressFunc}); err != nil {
		return fmt.Errorf("crossfade render failed: %w", err)
	}
	return nil
}

// createConcatFile generates a temporary file list for ffmpeg concat
func (e *Executor) createConcatFile(inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp("", "feederreel-concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}
		// concat demuxer quoting: close the quote, escape, reopen
		quoted := strings.ReplaceAll(absPath, "'", `'\''`)
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", quoted); err != nil {
			os.Remove(tmpFile.Name())
			return "", err
		}
	}

	return tmpFile.Name(), nil
}
