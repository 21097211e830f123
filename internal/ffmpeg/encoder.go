package ffmpeg

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// QualityStyle names the rate-control flag an encoder understands
type QualityStyle int

const (
	QualityCRF    QualityStyle = iota // -crf (libx264)
	QualityCQ                         // -cq (nvenc)
	QualityGlobal                     // -global_quality (qsv)
	QualityQP                         // -qp (vaapi)
)

// HWEncoder describes a hardware H.264 encoder and how to drive it
type HWEncoder struct {
	Name    string
	Quality QualityStyle
	// PreInputArgs go before -i (device initialisation)
	PreInputArgs []string
	// Filters are appended to the video filter chain (upload to the device)
	Filters []string
	// TestArgs go before the synthetic input when verifying the encoder
	TestArgs []string
}

// QualityArgs renders quality target q in the encoder's own convention
func (h *HWEncoder) QualityArgs(q int) []string {
	if h == nil {
		return softwareQualityArgs(q)
	}
	v := strconv.Itoa(q)
	switch h.Quality {
	case QualityCQ:
		return []string{"-preset", "p4", "-cq", v, "-b:v", "0"}
	case QualityGlobal:
		return []string{"-preset", "veryfast", "-global_quality", v}
	case QualityQP:
		return []string{"-qp", v}
	default:
		return softwareQualityArgs(q)
	}
}

func softwareQualityArgs(q int) []string {
	return []string{"-preset", SoftwarePreset, "-crf", strconv.Itoa(q)}
}

// DefaultHWEncoders lists hardware encoders, highest priority first
func DefaultHWEncoders() []HWEncoder {
	return []HWEncoder{
		{
			Name:    "h264_nvenc",
			Quality: QualityCQ,
		},
		{
			Name:     "h264_qsv",
			Quality:  QualityGlobal,
			TestArgs: []string{"-init_hw_device", "qsv=hw:/dev/dri/renderD128"},
		},
		{
			Name:         "h264_vaapi",
			Quality:      QualityQP,
			PreInputArgs: []string{"-init_hw_device", "vaapi=va:/dev/dri/renderD128", "-filter_hw_device", "va"},
			Filters:      []string{"format=nv12", "hwupload"},
			TestArgs:     []string{"-init_hw_device", "vaapi=va:/dev/dri/renderD128", "-filter_hw_device", "va"},
		},
	}
}

// EncoderSelector picks the fastest usable encoder once and remembers it
type EncoderSelector struct {
	logger      zerolog.Logger
	runner      Runner
	ffmpegPath  string
	candidates  []HWEncoder
	listTimeout time.Duration
	testTimeout time.Duration

	mu       sync.Mutex
	selected bool
	choice   *HWEncoder
}

// NewEncoderSelector creates a selector over DefaultHWEncoders
func NewEncoderSelector(logger zerolog.Logger, runner Runner, ffmpegPath string) *EncoderSelector {
	return &EncoderSelector{
		logger:      logger.With().Str("component", "hwaccel").Logger(),
		runner:      runner,
		ffmpegPath:  ffmpegPath,
		candidates:  DefaultHWEncoders(),
		listTimeout: ListEncodersTimeout,
		testTimeout: TestEncodeTimeout,
	}
}

// WithCandidates replaces the candidate list. It must be called before the
// first Select.
func (s *EncoderSelector) WithCandidates(candidates []HWEncoder) *EncoderSelector {
	s.candidates = candidates
	return s
}

// Select returns the hardware encoder to use, or nil for software. The first
// completed detection is cached; one cut short by ctx is not.
func (s *EncoderSelector) Select(ctx context.Context) *HWEncoder {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected {
		return s.choice
	}

	choice := s.detect(ctx)
	if ctx.Err() != nil {
		return nil
	}
	s.choice = choice
	s.selected = true
	return s.choice
}

func (s *EncoderSelector) detect(ctx context.Context) *HWEncoder {
	if len(s.candidates) == 0 {
		s.logger.Info().Msg("hardware encoding disabled, using " + SoftwareVideoCodec)
		return nil
	}

	listed, err := s.listEncoders(ctx)
	if err != nil {
		s.logger.Info().Err(err).Msg("cannot list encoders, using " + SoftwareVideoCodec)
		return nil
	}

	for i := range s.candidates {
		enc := s.candidates[i]
		if !listed[enc.Name] {
			continue
		}
		if err := s.testEncoder(ctx, enc); err != nil {
			s.logger.Info().Err(err).Str("encoder", enc.Name).Msg("encoder compiled in but hardware test failed")
			continue
		}
		s.logger.Info().Str("encoder", enc.Name).Msg("detected hardware H.264 encoder")
		return &enc
	}

	s.logger.Info().Msg("no hardware encoder available, using " + SoftwareVideoCodec)
	return nil
}

func (s *EncoderSelector) listEncoders(ctx context.Context) (map[string]bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.listTimeout)
	defer cancel()

	res, err := s.runner.Run(ctx, Command{
		Path: s.ffmpegPath,
		Args: []string{"-hide_banner", "-encoders"},
	})
	if err != nil {
		return nil, err
	}

	listed := make(map[string]bool)
	for _, field := range strings.Fields(string(res.Stdout)) {
		listed[field] = true
	}
	return listed, nil
}

// testEncoder encodes one frame of a generated pattern with enc
func (s *EncoderSelector) testEncoder(ctx context.Context, enc HWEncoder) error {
	ctx, cancel := context.WithTimeout(ctx, s.testTimeout)
	defer cancel()

	args := []string{"-hide_banner", "-v", "error"}
	args = append(args, enc.TestArgs...)
	args = append(args,
		"-f", "lavfi", "-i", "color=black:s=64x64:d=0.1:r=1",
		"-frames:v", "1", "-an",
	)
	if len(enc.Filters) > 0 {
		args = append(args, "-vf", strings.Join(enc.Filters, ","))
	}
	args = append(args, "-c:v", enc.Name, "-f", "null", "-")

	_, err := s.runner.Run(ctx, Command{Path: s.ffmpegPath, Args: args})
	return err
}
