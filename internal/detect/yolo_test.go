package detect

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/feederreel/internal/boundary"
	"github.com/keagan/feederreel/internal/clips"
)

// output builds a raw model output with the given per-class peak scores
func output(scores map[int]float32) []float32 {
	out := make([]float32, numRows*numAnchors)
	anchor := 17
	for class, s := range scores {
		out[(4+class)*numAnchors+anchor] = s
		anchor += 100
	}
	return out
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		scores map[int]float32
		kind   boundary.Kind
		conf   float64
	}{
		{"empty", nil, boundary.KindNone, 0},
		{"bird above threshold", map[int]float32{BirdClass: 0.25}, boundary.KindBird, 0.25},
		{"bird below threshold", map[int]float32{BirdClass: 0.15}, boundary.KindNone, 0},
		{"person above threshold", map[int]float32{PersonClass: 0.5}, boundary.KindPerson, 0.5},
		{"person below threshold", map[int]float32{PersonClass: 0.25}, boundary.KindNone, 0},
		{"stronger bird wins", map[int]float32{BirdClass: 0.75, PersonClass: 0.5}, boundary.KindBird, 0.75},
		{"stronger person wins", map[int]float32{BirdClass: 0.25, PersonClass: 0.5}, boundary.KindPerson, 0.5},
		{"weak person does not hide bird", map[int]float32{BirdClass: 0.25, PersonClass: 0.28}, boundary.KindBird, 0.25},
		{"other classes ignored", map[int]float32{2: 0.9}, boundary.KindNone, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, conf := classify(output(tt.scores), 0.2, 0.3)
			assert.Equal(t, tt.kind, kind)
			assert.InDelta(t, tt.conf, conf, 1e-6)
		})
	}
}

func TestClassifyShortOutput(t *testing.T) {
	kind, _ := classify(make([]float32, 10), 0.2, 0.3)
	assert.Equal(t, boundary.KindNone, kind)
}

func TestPreprocess(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 32, 18))
	for y := 0; y < 18; y++ {
		for x := 0; x < 32; x++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}

	data := preprocess(img)
	plane := inputSize * inputSize
	require.Len(t, data, 3*plane)
	assert.InDelta(t, 1.0, data[0], 0.01)
	assert.InDelta(t, 0.0, data[plane], 0.01)
	assert.InDelta(t, 0.0, data[2*plane+plane/2], 0.01)
}

type fakeFrames struct {
	data  []byte
	err   error
	times []time.Duration
}

func (f *fakeFrames) ExtractFrame(_ context.Context, _ string, ts time.Duration) ([]byte, error) {
	f.times = append(f.times, ts)
	return f.data, f.err
}

func pngFrame(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

func newTestProbe(frames FrameSource, infer func([]float32) ([]float32, error)) *YOLOProbe {
	return &YOLOProbe{
		logger: zerolog.Nop(),
		frames: frames,
		cfg:    DefaultConfig(),
		infer:  infer,
	}
}

func TestProbeSnapsToFrameAndReportsBird(t *testing.T) {
	frames := &fakeFrames{data: pngFrame(t)}
	p := newTestProbe(frames, func(pixels []float32) ([]float32, error) {
		assert.Len(t, pixels, 3*inputSize*inputSize)
		return output(map[int]float32{BirdClass: 0.6}), nil
	})

	clip := clips.Clip{Path: "/feeder/clip.avi", Duration: 10 * time.Second, FPS: 25}
	res, err := p.Probe(context.Background(), clip, 1030*time.Millisecond)
	require.NoError(t, err)

	assert.Equal(t, []time.Duration{time.Second}, frames.times)
	assert.True(t, res.Present)
	assert.Equal(t, boundary.KindBird, res.Kind)
	assert.Equal(t, time.Second, res.Timestamp)
	assert.InDelta(t, 0.6, res.Confidence, 1e-6)
}

func TestProbeNothingPresent(t *testing.T) {
	p := newTestProbe(&fakeFrames{data: pngFrame(t)}, func([]float32) ([]float32, error) {
		return output(nil), nil
	})

	res, err := p.Probe(context.Background(), clips.Clip{Path: "c.avi", FPS: 10}, 0)
	require.NoError(t, err)
	assert.False(t, res.Present)
	assert.Equal(t, boundary.KindNone, res.Kind)
}

func TestProbeErrors(t *testing.T) {
	clip := clips.Clip{Path: "c.avi", FPS: 10}
	infer := func([]float32) ([]float32, error) { return output(nil), nil }

	_, err := newTestProbe(&fakeFrames{err: errors.New("seek failed")}, infer).Probe(context.Background(), clip, 0)
	assert.ErrorContains(t, err, "seek failed")

	_, err = newTestProbe(&fakeFrames{data: []byte("not an image")}, infer).Probe(context.Background(), clip, 0)
	assert.ErrorContains(t, err, "decode frame")

	failing := func([]float32) ([]float32, error) { return nil, errors.New("session closed") }
	_, err = newTestProbe(&fakeFrames{data: pngFrame(t)}, failing).Probe(context.Background(), clip, 0)
	assert.ErrorContains(t, err, "session closed")
}

func TestNewYOLOProbeMissingModel(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ModelPath = "does/not/exist.onnx"
	_, err := NewYOLOProbe(zerolog.Nop(), &fakeFrames{}, cfg)
	assert.ErrorContains(t, err, "model file not found")
}
