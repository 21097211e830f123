// Package detect implements boundary.Probe with a YOLOv8 ONNX model run on
// single decoded frames.
package detect

import (
	"bytes"
	"context"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/nfnt/resize"
	"github.com/rs/zerolog"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/keagan/feederreel/internal/boundary"
	"github.com/keagan/feederreel/internal/clips"
)

// COCO class ids of interest
const (
	PersonClass = 0
	BirdClass   = 14
)

// YOLOv8 export geometry: [1,3,640,640] in, [1,84,8400] out
const (
	inputSize  = 640
	numClasses = 80
	numAnchors = 8400
	numRows    = 4 + numClasses
)

// Config tunes the detector
type Config struct {
	ModelPath string
	// LibraryPath points at the onnxruntime shared library when it is not
	// on the default search path
	LibraryPath     string
	BirdThreshold   float64
	PersonThreshold float64
}

// DefaultConfig returns the thresholds used by the feeder filter pass
func DefaultConfig() Config {
	return Config{
		ModelPath:       "models/yolov8n.onnx",
		BirdThreshold:   0.2,
		PersonThreshold: 0.3,
	}
}

// FrameSource decodes a single frame of a video. *ffmpeg.Executor
// satisfies it.
type FrameSource interface {
	ExtractFrame(ctx context.Context, input string, timestamp time.Duration) ([]byte, error)
}

// YOLOProbe answers presence questions with a YOLOv8 model. The ONNX session
// is not safe for concurrent use; calls are serialised.
type YOLOProbe struct {
	logger zerolog.Logger
	frames FrameSource
	cfg    Config

	mu      sync.Mutex
	session *ort.DynamicAdvancedSession
	// infer runs the model on a CHW float32 image and returns the raw output
	infer func(pixels []float32) ([]float32, error)
}

var _ boundary.Probe = (*YOLOProbe)(nil)

// NewYOLOProbe loads the model at cfg.ModelPath
func NewYOLOProbe(logger zerolog.Logger, frames FrameSource, cfg Config) (*YOLOProbe, error) {
	if _, err := os.Stat(cfg.ModelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", cfg.ModelPath)
	}

	if cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", err)
		}
	}

	inputNames := []string{"images"}
	outputNames := []string{"output0"}

	sess, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, outputNames, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create YOLO session: %w", err)
	}

	logger.Info().
		Str("model", cfg.ModelPath).
		Float64("bird_threshold", cfg.BirdThreshold).
		Float64("person_threshold", cfg.PersonThreshold).
		Msg("YOLO model loaded")

	p := &YOLOProbe{
		logger:  logger.With().Str("component", "detector").Logger(),
		frames:  frames,
		cfg:     cfg,
		session: sess,
	}
	p.infer = p.runSession
	return p, nil
}

// Probe decodes the frame shown at offset at and reports whether a bird, or
// a person standing in for a close-range bird, is visible
func (p *YOLOProbe) Probe(ctx context.Context, clip clips.Clip, at time.Duration) (boundary.Presence, error) {
	ts := clip.FrameTime(clip.FrameAt(at))

	data, err := p.frames.ExtractFrame(ctx, clip.Path, ts)
	if err != nil {
		return boundary.Presence{}, fmt.Errorf("read frame at %s: %w", ts, err)
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return boundary.Presence{}, fmt.Errorf("decode frame at %s: %w", ts, err)
	}

	p.mu.Lock()
	output, err := p.infer(preprocess(img))
	p.mu.Unlock()
	if err != nil {
		return boundary.Presence{}, fmt.Errorf("YOLO inference failed: %w", err)
	}

	kind, conf := classify(output, p.cfg.BirdThreshold, p.cfg.PersonThreshold)

	p.logger.Debug().
		Str("clip", clip.Name()).
		Dur("at", ts).
		Str("kind", kind.String()).
		Float64("confidence", conf).
		Msg("probe")

	return boundary.Presence{
		Timestamp:  ts,
		Present:    kind != boundary.KindNone,
		Confidence: conf,
		Kind:       kind,
	}, nil
}

func (p *YOLOProbe) runSession(pixels []float32) ([]float32, error) {
	in, err := ort.NewTensor(ort.NewShape(1, 3, inputSize, inputSize), pixels)
	if err != nil {
		return nil, fmt.Errorf("failed to create images tensor: %w", err)
	}
	defer in.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, numRows, numAnchors))
	if err != nil {
		return nil, fmt.Errorf("failed to create output0 tensor: %w", err)
	}
	defer out.Destroy()

	if err := p.session.Run([]ort.Value{in}, []ort.Value{out}); err != nil {
		return nil, err
	}

	// the tensor's backing memory is released by Destroy
	return append([]float32(nil), out.GetData()...), nil
}

// preprocess resizes img to the model input and lays it out as CHW floats in
// [0, 1]
func preprocess(img image.Image) []float32 {
	resized := resize.Resize(inputSize, inputSize, img, resize.Bilinear)

	plane := inputSize * inputSize
	data := make([]float32, 3*plane)
	bounds := resized.Bounds()

	i := 0
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			r, g, b, _ := resized.At(x, y).RGBA()
			data[i] = float32(r>>8) / 255.0
			data[plane+i] = float32(g>>8) / 255.0
			data[2*plane+i] = float32(b>>8) / 255.0
			i++
		}
	}
	return data
}

// classify scans the raw [1,84,8400] output for the strongest bird and
// person scores. A bird above its threshold wins over a person; a person
// only counts when no bird qualifies.
func classify(output []float32, birdThreshold, personThreshold float64) (boundary.Kind, float64) {
	if len(output) < numRows*numAnchors {
		return boundary.KindNone, 0
	}

	bird := maxScore(output, BirdClass)
	person := maxScore(output, PersonClass)

	switch {
	case bird >= birdThreshold && bird >= person:
		return boundary.KindBird, bird
	case person >= personThreshold:
		return boundary.KindPerson, person
	case bird >= birdThreshold:
		return boundary.KindBird, bird
	default:
		return boundary.KindNone, 0
	}
}

// maxScore returns the best score of class over all anchors. Row 4+class of
// the output holds that class's score for every anchor.
func maxScore(output []float32, class int) float64 {
	row := output[(4+class)*numAnchors : (5+class)*numAnchors]
	var best float32
	for _, v := range row {
		if v > best {
			best = v
		}
	}
	return float64(best)
}

// Close releases the session and the ONNX environment
func (p *YOLOProbe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.logger.Info().Msg("closing YOLO session")
	if p.session != nil {
		if err := p.session.Destroy(); err != nil {
			return err
		}
		p.session = nil
	}
	if ort.IsInitialized() {
		return ort.DestroyEnvironment()
	}
	return nil
}
