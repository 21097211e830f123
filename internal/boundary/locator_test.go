package boundary

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/keagan/feederreel/internal/clips"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeProbe reports presence inside [from, to] and records every call
type fakeProbe struct {
	from, to time.Duration
	failAt   int
	calls    []time.Duration
}

func (f *fakeProbe) Probe(_ context.Context, _ clips.Clip, at time.Duration) (Presence, error) {
	f.calls = append(f.calls, at)
	if f.failAt > 0 && len(f.calls) == f.failAt {
		return Presence{}, errors.New("detector exploded")
	}
	present := at >= f.from && at <= f.to
	p := Presence{Timestamp: at, Present: present}
	if present {
		p.Kind = KindBird
		p.Confidence = 0.8
	}
	return p, nil
}

func never() *fakeProbe {
	return &fakeProbe{from: time.Hour, to: 0}
}

func newTestLocator(p Probe, precision time.Duration) *Locator {
	return NewLocator(zerolog.Nop(), p, Options{Precision: precision})
}

func clipOf(d time.Duration) clips.Clip {
	return clips.Clip{Path: "/clips/1408301500.avi", Duration: d, FPS: 30}
}

func TestLocateShortClipNeverProbes(t *testing.T) {
	for _, d := range []time.Duration{0, 10 * time.Millisecond, 999 * time.Millisecond} {
		p := &fakeProbe{from: 0, to: time.Hour}
		l := newTestLocator(p, 0)

		w, err := l.Locate(context.Background(), clipOf(d), Unknown{})
		require.NoError(t, err)
		assert.Nil(t, w)

		w, err = l.Locate(context.Background(), clipOf(d), KnownEntry{At: 0})
		require.NoError(t, err)
		assert.Nil(t, w)
		assert.Empty(t, p.calls, "duration %v", d)
	}
}

func TestLocateNoActivityAtCheckpoints(t *testing.T) {
	p := never()
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(10*time.Second), Unknown{})
	require.NoError(t, err)
	assert.Nil(t, w)
	assert.Equal(t, Checkpoints(10*time.Second), p.calls)
}

func TestCheckpoints(t *testing.T) {
	assert.Equal(t, []time.Duration{0, 500 * time.Millisecond, 3 * time.Second, 6 * time.Second, 8 * time.Second},
		Checkpoints(9*time.Second))
	// end probe never drops below one second
	assert.Equal(t, time.Second, Checkpoints(1500*time.Millisecond)[4])
}

func TestLocateUnknownRefinesBothEdges(t *testing.T) {
	p := &fakeProbe{from: 2300 * time.Millisecond, to: 7600 * time.Millisecond}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(12*time.Second), Unknown{})
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.GreaterOrEqual(t, w.First, p.from)
	assert.LessOrEqual(t, w.First, p.from+DefaultPrecision)
	assert.LessOrEqual(t, w.Last, p.to)
	assert.GreaterOrEqual(t, w.Last, p.to-DefaultPrecision)
	assert.LessOrEqual(t, w.First, w.Last)
}

func TestLocateUnknownPresentThroughout(t *testing.T) {
	p := &fakeProbe{from: 0, to: time.Hour}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(10*time.Second), Unknown{})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, time.Duration(0), w.First)
	assert.Equal(t, 9*time.Second, w.Last)
	// only the five checkpoints, no refinement needed
	assert.Len(t, p.calls, 5)
}

func TestLocateUnknownShortClipOrdersCheckpoints(t *testing.T) {
	// d/3 falls before the fixed 0.5s checkpoint on a 1.2s clip
	p := &fakeProbe{from: 350 * time.Millisecond, to: 600 * time.Millisecond}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(1200*time.Millisecond), Unknown{})
	require.NoError(t, err)
	require.NotNil(t, w)

	assert.Equal(t, []time.Duration{0, 500 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second}, p.calls)
	assert.Equal(t, 400*time.Millisecond, w.First)
	assert.Equal(t, 500*time.Millisecond, w.Last)
	assert.LessOrEqual(t, w.First, w.Last)
}

func TestLocateKnownEntrySkipsCheckpoints(t *testing.T) {
	clip := clipOf(30 * time.Second)
	p := &fakeProbe{from: 4 * time.Second, to: 17 * time.Second}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clip, KnownEntry{At: 4 * time.Second})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 4*time.Second, w.First)
	assert.LessOrEqual(t, w.Last, 17*time.Second)
	assert.GreaterOrEqual(t, w.Last, 16*time.Second)

	// first probe is the end probe, the rest are exit search midpoints
	require.NotEmpty(t, p.calls)
	assert.Equal(t, 29*time.Second, p.calls[0])
	uncached := Checkpoints(clip.Duration)[:4]
	for _, c := range p.calls {
		assert.NotContains(t, uncached, c)
		assert.GreaterOrEqual(t, c, 4*time.Second)
	}
}

func TestLocateKnownEntryStillPresentAtEnd(t *testing.T) {
	p := &fakeProbe{from: 0, to: time.Hour}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(10*time.Second), KnownEntry{At: 2 * time.Second})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.Equal(t, 2*time.Second, w.First)
	assert.Equal(t, 9*time.Second, w.Last)
	assert.Len(t, p.calls, 1)
}

func TestLocateKnownEntryPastEndProbe(t *testing.T) {
	p := never()
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(5*time.Second), KnownEntry{At: 4500 * time.Millisecond})
	require.NoError(t, err)
	require.NotNil(t, w)
	assert.LessOrEqual(t, w.First, w.Last)
}

func TestLocateNilHintIsUnknown(t *testing.T) {
	p := never()
	l := newTestLocator(p, 0)

	_, err := l.Locate(context.Background(), clipOf(10*time.Second), nil)
	require.NoError(t, err)
	assert.Len(t, p.calls, 5)
}

func TestLocateProbeErrorAbortsClip(t *testing.T) {
	for failAt := 1; failAt <= 6; failAt++ {
		p := &fakeProbe{from: 2 * time.Second, to: 7 * time.Second, failAt: failAt}
		l := newTestLocator(p, 0)

		w, err := l.Locate(context.Background(), clipOf(12*time.Second), Unknown{})
		assert.Error(t, err)
		assert.Nil(t, w)
		assert.Len(t, p.calls, failAt, "search must stop at the failing probe")
	}
}

func TestSearchEntryConverges(t *testing.T) {
	for _, precision := range []time.Duration{250 * time.Millisecond, 500 * time.Millisecond, time.Second} {
		for threshold := 100 * time.Millisecond; threshold < 20*time.Second; threshold += 730 * time.Millisecond {
			p := &fakeProbe{from: threshold, to: time.Hour}
			l := newTestLocator(p, precision)

			got, err := l.searchEntry(context.Background(), clipOf(time.Minute), 0, 20*time.Second)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, got, threshold)
			assert.LessOrEqual(t, got, threshold+precision)
		}
	}
}

func TestSearchExitConverges(t *testing.T) {
	p := &fakeProbe{from: 0, to: 7 * time.Second}
	l := newTestLocator(p, 500*time.Millisecond)

	got, err := l.searchExit(context.Background(), clipOf(time.Minute), 3*time.Second, 10*time.Second)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, got, 6500*time.Millisecond)
	assert.LessOrEqual(t, got, 7*time.Second)
}

func TestProbeCallsAreLogarithmic(t *testing.T) {
	p := &fakeProbe{from: 1100 * time.Second, to: 2345 * time.Second}
	l := newTestLocator(p, 0)

	w, err := l.Locate(context.Background(), clipOf(3600*time.Second), Unknown{})
	require.NoError(t, err)
	require.NotNil(t, w)
	// 5 checkpoints, entry search over 1200s, exit search over 2399s
	assert.LessOrEqual(t, len(p.calls), 5+11+12)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "bird", KindBird.String())
	assert.Equal(t, "person", KindPerson.String())
	assert.Equal(t, "none", KindNone.String())
}
