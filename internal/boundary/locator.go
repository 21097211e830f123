package boundary

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/feederreel/internal/clips"
	"github.com/rs/zerolog"
)

const (
	// DefaultPrecision is how tight the binary searches converge
	DefaultPrecision = time.Second

	// minSearchable clips shorter than this are never searched
	minSearchable = time.Second
	tailMargin    = time.Second
)

// Options tunes the locator
type Options struct {
	Precision time.Duration
}

// Locator finds activity boundaries with as few probe calls as possible.
// Activity is assumed to be one contiguous interval per clip.
type Locator struct {
	logger    zerolog.Logger
	probe     Probe
	precision time.Duration
}

// NewLocator creates a locator around probe
func NewLocator(logger zerolog.Logger, probe Probe, opts Options) *Locator {
	precision := opts.Precision
	if precision <= 0 {
		precision = DefaultPrecision
	}
	return &Locator{
		logger:    logger.With().Str("component", "boundary").Logger(),
		probe:     probe,
		precision: precision,
	}
}

// Locate returns the activity window of clip, nil when there is none. A probe
// error aborts the search and is returned; callers treat it as no activity.
func (l *Locator) Locate(ctx context.Context, clip clips.Clip, hint Hint) (*Window, error) {
	if clip.Duration < minSearchable {
		l.logger.Debug().Str("clip", clip.Name()).Dur("duration", clip.Duration).Msg("clip too short, skipping")
		return nil, nil
	}

	if hint == nil {
		hint = Unknown{}
	}

	var (
		w   *Window
		err error
	)
	switch h := hint.(type) {
	case KnownEntry:
		w, err = l.locateFromEntry(ctx, clip, h.At)
	case Unknown:
		w, err = l.locateUnknown(ctx, clip)
	default:
		return nil, fmt.Errorf("unsupported hint %T", hint)
	}
	if err != nil {
		return nil, fmt.Errorf("locate %s: %w", clip.Name(), err)
	}

	if w != nil {
		l.logger.Debug().
			Str("clip", clip.Name()).
			Dur("first", w.First).
			Dur("last", w.Last).
			Msg("activity located")
	}
	return w, nil
}

// endProbeTime never probes the final second, nor earlier than 1s in
func endProbeTime(duration time.Duration) time.Duration {
	end := duration - tailMargin
	if end < tailMargin {
		end = tailMargin
	}
	return end
}

// Checkpoints returns the coarse sampling offsets used when nothing is known
func Checkpoints(duration time.Duration) []time.Duration {
	return []time.Duration{
		0,
		500 * time.Millisecond,
		duration / 3,
		duration * 2 / 3,
		endProbeTime(duration),
	}
}

func (l *Locator) locateFromEntry(ctx context.Context, clip clips.Clip, first time.Duration) (*Window, error) {
	end := endProbeTime(clip.Duration)
	if first < 0 {
		first = 0
	}

	p, err := l.probe.Probe(ctx, clip, end)
	if err != nil {
		return nil, err
	}

	last := end
	if !p.Present {
		last, err = l.searchExit(ctx, clip, first, end)
		if err != nil {
			return nil, err
		}
	}

	if last < first {
		last = first
	}
	return &Window{First: first, Last: last}, nil
}

func (l *Locator) locateUnknown(ctx context.Context, clip clips.Clip) (*Window, error) {
	end := endProbeTime(clip.Duration)

	var (
		first, last time.Duration
		found       bool
	)
	for _, t := range Checkpoints(clip.Duration) {
		p, err := l.probe.Probe(ctx, clip, t)
		if err != nil {
			return nil, err
		}
		if !p.Present {
			continue
		}
		// checkpoints are not time-ordered on very short clips
		if !found || t < first {
			first = t
		}
		if !found || t > last {
			last = t
		}
		found = true
	}

	if !found {
		return nil, nil
	}

	var err error
	if first > 0 {
		first, err = l.searchEntry(ctx, clip, 0, first)
		if err != nil {
			return nil, err
		}
	}
	if last < end {
		last, err = l.searchExit(ctx, clip, last, end)
		if err != nil {
			return nil, err
		}
	}

	return &Window{First: first, Last: last}, nil
}
