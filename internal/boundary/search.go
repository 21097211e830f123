package boundary

import (
	"context"
	"time"

	"github.com/keagan/feederreel/internal/clips"
)

// searchEntry narrows [low, high] where the subject is absent at low and
// present at high. It returns the earliest offset seen present, so a true
// positive is never cut off.
func (l *Locator) searchEntry(ctx context.Context, clip clips.Clip, low, high time.Duration) (time.Duration, error) {
	firstSeen := high
	for high-low > l.precision {
		mid := low + (high-low)/2
		p, err := l.probe.Probe(ctx, clip, mid)
		if err != nil {
			return 0, err
		}
		if p.Present {
			firstSeen = mid
			high = mid
		} else {
			low = mid
		}
	}
	return firstSeen, nil
}

// searchExit is the mirror of searchEntry: present at low, absent or unknown
// at high. It returns the latest offset seen present.
func (l *Locator) searchExit(ctx context.Context, clip clips.Clip, low, high time.Duration) (time.Duration, error) {
	lastSeen := low
	for high-low > l.precision {
		mid := low + (high-low)/2
		p, err := l.probe.Probe(ctx, clip, mid)
		if err != nil {
			return 0, err
		}
		if p.Present {
			lastSeen = mid
			low = mid
		} else {
			high = mid
		}
	}
	return lastSeen, nil
}
