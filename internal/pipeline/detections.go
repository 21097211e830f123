package pipeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/keagan/feederreel/internal/boundary"
	"github.com/keagan/feederreel/pkg/util"
)

// CachedDetection is what the filter pass recorded for one clip
type CachedDetection struct {
	FirstBird  *float64 `json:"first_bird"`
	Confidence float64  `json:"confidence"`
}

// Detections maps clip file names to their cached detection
type Detections map[string]CachedDetection

// LoadDetections reads a detections file. A missing file is not an error;
// it yields nil and every clip is searched from scratch.
func LoadDetections(path string) (Detections, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read detections: %w", err)
	}

	var d Detections
	if err := json.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return d, nil
}

// SaveDetections writes d as indented JSON, creating parent directories
func SaveDetections(d Detections, path string) error {
	if d == nil {
		d = Detections{}
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("failed to create detections directory: %w", err)
	}

	data, err := json.MarshalIndent(d, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal detections: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write detections: %w", err)
	}
	return nil
}

// Hint returns what the cache knows about clipName
func (d Detections) Hint(clipName string) boundary.Hint {
	entry, ok := d[clipName]
	if !ok || entry.FirstBird == nil || *entry.FirstBird < 0 {
		return boundary.Unknown{}
	}
	return boundary.KnownEntry{At: util.Seconds(*entry.FirstBird)}
}
