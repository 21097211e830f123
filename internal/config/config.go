package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// EnvPrefix prefixes every environment override
const EnvPrefix = "FEEDERREEL_"

// Config holds all application configuration
type Config struct {
	// Core settings
	TempDir string `yaml:"temp_dir"`
	Verbose bool   `yaml:"verbose"`

	FFmpeg     FFmpegConfig     `yaml:"ffmpeg"`
	Highlights HighlightsConfig `yaml:"highlights"`
	Detector   DetectorConfig   `yaml:"detector"`
	BestClips  BestClipsConfig  `yaml:"best_clips"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

type FFmpegConfig struct {
	BinaryPath string `yaml:"binary_path"`
	ProbePath  string `yaml:"probe_path"`
	Threads    int    `yaml:"threads"`
	// HWAccel=false skips hardware encoder detection entirely
	HWAccel bool `yaml:"hwaccel"`
}

type HighlightsConfig struct {
	Extensions     []string      `yaml:"extensions"`
	DetectionsFile string        `yaml:"detections_file"`
	Output         string        `yaml:"output"`
	BufferBefore   time.Duration `yaml:"buffer_before"`
	BufferAfter    time.Duration `yaml:"buffer_after"`
	Precision      time.Duration `yaml:"precision"`
	// Crossfade of 0 joins segments with a plain stream copy
	Crossfade time.Duration `yaml:"crossfade"`
	Web       bool          `yaml:"web"`
}

type DetectorConfig struct {
	ModelPath       string  `yaml:"model_path"`
	LibraryPath     string  `yaml:"library_path"`
	BirdThreshold   float64 `yaml:"bird_threshold"`
	PersonThreshold float64 `yaml:"person_threshold"`
}

type BestClipsConfig struct {
	SpeciesFile string  `yaml:"species_file"`
	Output      string  `yaml:"output"`
	Window      float64 `yaml:"window_s"`
}

type MetricsConfig struct {
	// Textfile is a node-exporter textfile collector target; empty disables
	Textfile string `yaml:"textfile"`
}

// Load reads configuration from file or returns defaults. A .env file in the
// working directory is loaded first, and FEEDERREEL_* variables override
// values from the file.
func Load(path string) (*Config, error) {
	if err := LoadEnvFile(); err != nil {
		return nil, err
	}

	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
		default:
			return nil, err
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadEnvFile loads the given .env files (".env" by default) without
// overriding variables already set. Missing files are ignored.
func LoadEnvFile(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings the pipeline cannot run with
func (c *Config) Validate() error {
	var errs []error
	if c.Highlights.BufferBefore < 0 || c.Highlights.BufferAfter < 0 {
		errs = append(errs, errors.New("highlights buffers must not be negative"))
	}
	if c.Highlights.Precision <= 0 {
		errs = append(errs, errors.New("highlights precision must be positive"))
	}
	if c.Highlights.Crossfade < 0 {
		errs = append(errs, errors.New("highlights crossfade must not be negative"))
	}
	if len(c.Highlights.Extensions) == 0 {
		errs = append(errs, errors.New("highlights extensions must not be empty"))
	}
	for name, v := range map[string]float64{
		"bird_threshold":   c.Detector.BirdThreshold,
		"person_threshold": c.Detector.PersonThreshold,
	} {
		if v < 0 || v > 1 {
			errs = append(errs, fmt.Errorf("detector %s must be within [0, 1], got %g", name, v))
		}
	}
	if c.BestClips.Window <= 0 {
		errs = append(errs, errors.New("best_clips window_s must be positive"))
	}
	if c.FFmpeg.Threads < 0 {
		errs = append(errs, errors.New("ffmpeg threads must not be negative"))
	}
	return errors.Join(errs...)
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		TempDir: os.TempDir(),
		FFmpeg: FFmpegConfig{
			BinaryPath: "ffmpeg",
			ProbePath:  "ffprobe",
			Threads:    2,
			HWAccel:    true,
		},
		Highlights: HighlightsConfig{
			Extensions:     []string{".avi"},
			DetectionsFile: "detections.json",
			Output:         "highlights.mp4",
			BufferBefore:   time.Second,
			BufferAfter:    time.Second,
			Precision:      time.Second,
		},
		Detector: DetectorConfig{
			ModelPath:       "./models/yolov8n.onnx",
			BirdThreshold:   0.2,
			PersonThreshold: 0.3,
		},
		BestClips: BestClipsConfig{
			SpeciesFile: "species.json",
			Output:      "best_clips.json",
			Window:      14.0,
		},
	}
}

func (c *Config) applyEnv() {
	c.FFmpeg.BinaryPath = getEnv("FFMPEG_PATH", c.FFmpeg.BinaryPath)
	c.FFmpeg.ProbePath = getEnv("FFPROBE_PATH", c.FFmpeg.ProbePath)
	c.FFmpeg.Threads = getEnvInt("THREADS", c.FFmpeg.Threads)
	c.FFmpeg.HWAccel = getEnvBool("HWACCEL", c.FFmpeg.HWAccel)
	c.Detector.ModelPath = getEnv("MODEL_PATH", c.Detector.ModelPath)
	c.Detector.LibraryPath = getEnv("ORT_LIBRARY", c.Detector.LibraryPath)
	c.Metrics.Textfile = getEnv("METRICS_TEXTFILE", c.Metrics.Textfile)
	c.TempDir = getEnv("TEMP_DIR", c.TempDir)
	c.Verbose = getEnvBool("VERBOSE", c.Verbose)
}

// getEnv returns the value of EnvPrefix+key, or fallback if unset or empty
func getEnv(key, fallback string) string {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		return s
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if s := os.Getenv(EnvPrefix + key); s != "" {
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
	}
	return fallback
}

func findConfigFile() string {
	candidates := []string{
		"./config.yaml",
		"./config.yml",
	}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".feederreel", "config.yaml"))
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
