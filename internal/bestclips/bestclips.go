// Package bestclips picks, per species, the fixed-length window of a
// detection timeline with the highest summed confidence.
package bestclips

import (
	"math"
	"sort"
)

// DefaultWindow is the preview window length in seconds
const DefaultWindow = 14.0

// Detection is one species sighting on the reel timeline
type Detection struct {
	Timestamp  float64 `json:"timestamp_s"`
	Species    string  `json:"species"`
	Confidence float64 `json:"confidence"`
}

// BestClip is the highest scoring window for a species. End is always
// Start plus the window length, not the span of the contained detections.
type BestClip struct {
	Species string  `json:"-"`
	Start   float64 `json:"start_s"`
	End     float64 `json:"end_s"`
	Score   float64 `json:"score"`
	Count   int     `json:"detection_count"`
}

// FindBestClip returns the best window of length window for species. ok is
// false when species has no detections.
func FindBestClip(detections []Detection, species string, window float64) (BestClip, bool) {
	var events []Detection
	for _, d := range detections {
		if d.Species == species {
			events = append(events, d)
		}
	}
	return sweep(events, species, window)
}

// FindAll returns the best window of every species present in detections
func FindAll(detections []Detection, window float64) map[string]BestClip {
	grouped := make(map[string][]Detection)
	for _, d := range detections {
		grouped[d.Species] = append(grouped[d.Species], d)
	}

	result := make(map[string]BestClip, len(grouped))
	for species, events := range grouped {
		if clip, ok := sweep(events, species, window); ok {
			result[species] = clip
		}
	}
	return result
}

// sweep runs the two-pointer scan over events of a single species. events
// is sorted in place.
func sweep(events []Detection, species string, window float64) (BestClip, bool) {
	if len(events) == 0 {
		return BestClip{}, false
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp < events[j].Timestamp
	})

	var (
		found               bool
		best, sum           float64
		bestLeft, bestRight int
		left                int
	)
	for right := range events {
		sum += events[right].Confidence

		// a span of exactly window stays inside
		for events[right].Timestamp-events[left].Timestamp > window {
			sum -= events[left].Confidence
			left++
		}

		if !found || sum > best {
			found = true
			best = sum
			bestLeft, bestRight = left, right
		}
	}

	start := events[bestLeft].Timestamp
	return BestClip{
		Species: species,
		Start:   start,
		End:     start + window,
		Score:   round3(best),
		Count:   bestRight - bestLeft + 1,
	}, true
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
