package ffmpeg

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"

	"github.com/keagan/feederreel/pkg/util"
)

const (
	FFmpegInstallURL = "https://ffmpeg.org/download.html"
)

// DependencyError reports a missing external binary
type DependencyError struct {
	Name       string
	InstallURL string
}

func (e *DependencyError) Error() string {
	return fmt.Sprintf("%s not found. Install from: %s", e.Name, e.InstallURL)
}

// Options configures an Executor
type Options struct {
	FFmpegPath  string
	FFprobePath string
	// Threads is the per-invocation thread budget; 0 lets ffmpeg decide
	Threads int
	// Runner overrides process execution. Binary paths are used verbatim
	// when a Runner is supplied.
	Runner Runner
	// Encoders shares one encoder selection between executors
	Encoders *EncoderSelector
}

// Executor handles all ffmpeg operations with progress streaming
type Executor struct {
	logger      zerolog.Logger
	ffmpegPath  string
	ffprobePath string
	threads     int
	runner      Runner
	encoders    *EncoderSelector
}

// New creates a new ffmpeg executor
func New(logger zerolog.Logger, opts Options) (*Executor, error) {
	ffmpegPath := opts.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	ffprobePath := opts.FFprobePath
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	runner := opts.Runner
	if runner == nil {
		var err error
		if ffmpegPath, err = lookPath(ffmpegPath); err != nil {
			return nil, err
		}
		if ffprobePath, err = lookPath(ffprobePath); err != nil {
			return nil, err
		}
		runner = ExecRunner{}
	}

	encoders := opts.Encoders
	if encoders == nil {
		encoders = NewEncoderSelector(logger, runner, ffmpegPath)
	}

	return &Executor{
		logger:      logger.With().Str("component", "ffmpeg").Logger(),
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		threads:     opts.Threads,
		runner:      runner,
		encoders:    encoders,
	}, nil
}

func lookPath(name string) (string, error) {
	path, err := exec.LookPath(name)
	if err != nil {
		return "", &DependencyError{Name: name, InstallURL: FFmpegInstallURL}
	}
	return path, nil
}

// Encoders returns the executor's encoder selector
func (e *Executor) Encoders() *EncoderSelector {
	return e.encoders
}

// Run executes ffmpeg with the given arguments and streams progress
func (e *Executor) Run(ctx context.Context, opts RunOptions) (Result, error) {
	if len(opts.Args) == 0 {
		return Result{}, fmt.Errorf("no arguments provided")
	}

	args := []string{"-y", "-hide_banner", "-nostdin", "-loglevel", "error"}
	if opts.ProgressHandler != nil {
		args = append(args, "-progress", "pipe:2")
	}
	args = append(args, opts.Args...)

	e.logger.Debug().
		Str("cmd", "ffmpeg").
		Strs("args", args).
		Msg("executing ffmpeg")

	parser := &progressParser{handler: opts.ProgressHandler}
	res, err := e.runner.Run(ctx, Command{
		Path: e.ffmpegPath,
		Args: args,
		OnLine: func(line string) {
			parser.feed(line)
			if opts.LogHandler != nil {
				opts.LogHandler(line)
			}
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		return res, fmt.Errorf("ffmpeg execution failed: %w", err)
	}

	e.logger.Debug().Msg("ffmpeg execution completed")
	return res, nil
}

// progressParser folds -progress key=value blocks into Progress values
type progressParser struct {
	handler ProgressFunc
	current Progress
}

func (p *progressParser) feed(line string) {
	if p.handler == nil {
		return
	}

	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	value = strings.TrimSpace(value)

	switch key {
	case "frame":
		fmt.Sscanf(value, "%d", &p.current.Frame)
	case "fps":
		fmt.Sscanf(value, "%f", &p.current.FPS)
	case "bitrate":
		p.current.Bitrate = value
	case "out_time":
		p.current.Time = value
		if d, err := util.ParseTimestamp(value); err == nil {
			p.current.OutTime = d
		}
	case "speed":
		p.current.Speed = value
	case "progress":
		// End of progress block
		if p.current.Frame > 0 {
			snapshot := p.current
			p.handler(&snapshot)
		}
		p.current = Progress{}
	}
}
