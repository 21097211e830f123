// Package boundary locates the first and last instants of bird activity in a
// clip while keeping detector invocations to a minimum.
package boundary

import (
	"context"
	"time"

	"github.com/keagan/feederreel/internal/clips"
)

// Kind distinguishes which class of subject a probe matched
type Kind int

const (
	KindNone Kind = iota
	KindBird
	// KindPerson is a proxy class: close-range birds are often
	// misclassified as people by general-purpose detectors.
	KindPerson
)

func (k Kind) String() string {
	switch k {
	case KindBird:
		return "bird"
	case KindPerson:
		return "person"
	default:
		return "none"
	}
}

// Presence is the outcome of a single probe
type Presence struct {
	Timestamp  time.Duration
	Present    bool
	Confidence float64
	Kind       Kind
}

// Probe checks a single frame of a clip for a subject. Implementations are
// expensive and may hold stateful model resources.
type Probe interface {
	Probe(ctx context.Context, clip clips.Clip, at time.Duration) (Presence, error)
}

// ProbeFunc adapts a function to the Probe interface
type ProbeFunc func(ctx context.Context, clip clips.Clip, at time.Duration) (Presence, error)

// Probe calls f
func (f ProbeFunc) Probe(ctx context.Context, clip clips.Clip, at time.Duration) (Presence, error) {
	return f(ctx, clip, at)
}

// Hint carries what is already known about a clip before searching it.
// It is either Unknown or KnownEntry.
type Hint interface {
	isHint()
}

// Unknown means no earlier pass has examined the clip
type Unknown struct{}

// KnownEntry means an earlier filtering pass already proved presence at At
type KnownEntry struct {
	At time.Duration
}

func (Unknown) isHint()    {}
func (KnownEntry) isHint() {}

// Window is the located span of activity
type Window struct {
	First time.Duration
	Last  time.Duration
}
