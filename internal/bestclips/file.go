package bestclips

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keagan/feederreel/pkg/util"
)

// ErrSpeciesDataNotFound is returned when the species timeline file is missing
var ErrSpeciesDataNotFound = errors.New("species data not found")

// SpeciesSummary is the per-species rollup written next to the timeline
type SpeciesSummary struct {
	Count         int     `json:"count"`
	AvgConfidence float64 `json:"avg_confidence"`
}

// SpeciesData is the species timeline file
type SpeciesData struct {
	Detections []Detection                `json:"detections"`
	Summary    map[string]SpeciesSummary `json:"species_summary,omitempty"`
}

// Report is the persisted best clips document
type Report struct {
	Window       float64             `json:"window_duration_s"`
	SpeciesCount int                 `json:"species_count"`
	Clips        map[string]BestClip `json:"clips"`
}

// LoadSpeciesFile reads a species timeline. A missing file wraps
// ErrSpeciesDataNotFound and names the path.
func LoadSpeciesFile(path string) (*SpeciesData, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSpeciesDataNotFound, path)
		}
		return nil, fmt.Errorf("failed to read species data: %w", err)
	}

	var sd SpeciesData
	if err := json.Unmarshal(data, &sd); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return &sd, nil
}

// Best returns the best window per species. When the file carries a species
// summary only the summarised species are reported.
func (sd *SpeciesData) Best(window float64) map[string]BestClip {
	if len(sd.Summary) == 0 {
		return FindAll(sd.Detections, window)
	}

	all := FindAll(sd.Detections, window)
	result := make(map[string]BestClip, len(sd.Summary))
	for species := range sd.Summary {
		if clip, ok := all[species]; ok {
			result[species] = clip
		}
	}
	return result
}

// FindAllInFile loads path and computes the best window per species
func FindAllInFile(path string, window float64) (map[string]BestClip, error) {
	sd, err := LoadSpeciesFile(path)
	if err != nil {
		return nil, err
	}
	return sd.Best(window), nil
}

// SaveBestClips writes clips as indented JSON to path
func SaveBestClips(clips map[string]BestClip, path string, window float64) error {
	if clips == nil {
		clips = map[string]BestClip{}
	}
	report := Report{
		Window:       window,
		SpeciesCount: len(clips),
		Clips:        clips,
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode best clips: %w", err)
	}

	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// LoadBestClips reads a document written by SaveBestClips
func LoadBestClips(path string) (*Report, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var report Report
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	for species, clip := range report.Clips {
		clip.Species = species
		report.Clips[species] = clip
	}
	return &report, nil
}
