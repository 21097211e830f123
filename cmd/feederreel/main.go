package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/keagan/feederreel/internal/bestclips"
	"github.com/keagan/feederreel/internal/clips"
	"github.com/keagan/feederreel/internal/config"
	"github.com/keagan/feederreel/internal/detect"
	"github.com/keagan/feederreel/internal/ffmpeg"
	"github.com/keagan/feederreel/internal/logging"
	"github.com/keagan/feederreel/internal/metrics"
	"github.com/keagan/feederreel/internal/pipeline"
	"github.com/keagan/feederreel/pkg/util"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "feederreel",
	Short:         "feederreel - bird feeder highlights toolkit",
	Long:          "Turns long bird feeder camera recordings into a short highlights reel and finds the best moment for every species.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Load config
		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		// Initialize logging
		logging.Init(verbose || cfg.Verbose)

		// Store config in context
		ctx := config.WithConfig(cmd.Context(), cfg)
		cmd.SetContext(ctx)

		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	highlightsCmd.Flags().StringP("output", "o", "", "output file (default: <input>/highlights.mp4)")
	highlightsCmd.Flags().Duration("buffer-before", 0, "context kept before the first bird")
	highlightsCmd.Flags().Duration("buffer-after", 0, "context kept after the last bird")
	highlightsCmd.Flags().Duration("crossfade", 0, "crossfade between segments (0 = stream copy)")
	highlightsCmd.Flags().Bool("web", false, "smaller 24fps output")

	filterCmd.Flags().Int("limit", 0, "process at most this many clips (0 = all)")
	filterCmd.Flags().Float64("bird-confidence", 0, "minimum bird confidence")

	bestClipsCmd.Flags().Float64("window", 0, "window length in seconds")
	bestClipsCmd.Flags().StringP("output", "o", "", "output file (default: best_clips.json next to the input)")

	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)

	rootCmd.AddCommand(filterCmd)
	rootCmd.AddCommand(highlightsCmd)
	rootCmd.AddCommand(bestClipsCmd)
	rootCmd.AddCommand(encoderCmd)
	rootCmd.AddCommand(configCmd)
}

var highlightsCmd = &cobra.Command{
	Use:   "highlights [clip directory]",
	Short: "Build a highlights reel from a directory of clips",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		applyHighlightsFlags(cmd, cfg)

		inputDir := args[0]
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = filepath.Join(inputDir, cfg.Highlights.Output)
		}

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}

		probe, err := newProbe(cfg, exec)
		if err != nil {
			return err
		}
		defer probe.Close()

		m := metrics.New()
		defer writeMetrics(cfg, m)

		pipe := pipeline.New(log.Logger, pipelineConfig(cfg), exec, probe, m)
		stats, err := pipe.Generate(cmd.Context(), inputDir, output)
		if err != nil {
			logger := logging.WithComponent("cli")
			logger.Error().Err(err).Msg("highlights failed")
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
		fmt.Fprintf(cmd.OutOrStdout(), "Saved to %s\n", stats.Output)
		return nil
	},
}

var filterCmd = &cobra.Command{
	Use:   "filter [clip directory]",
	Short: "Record the first bird sighting of every clip",
	Long:  "Samples each clip (four frames in the first second, then one per second) and writes the detections file the highlights command starts from.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		if cmd.Flags().Changed("bird-confidence") {
			cfg.Detector.BirdThreshold, _ = cmd.Flags().GetFloat64("bird-confidence")
		}
		limit, _ := cmd.Flags().GetInt("limit")

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}

		probe, err := newProbe(cfg, exec)
		if err != nil {
			return err
		}
		defer probe.Close()

		m := metrics.New()
		defer writeMetrics(cfg, m)

		pipe := pipeline.New(log.Logger, pipelineConfig(cfg), exec, probe, m)
		stats, err := pipe.Filter(cmd.Context(), args[0], limit)
		if err != nil {
			logger := logging.WithComponent("cli")
			logger.Error().Err(err).Msg("filter failed")
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), stats.Summary())
		fmt.Fprintf(cmd.OutOrStdout(), "Saved detections to %s\n", stats.Output)
		return nil
	},
}

var bestClipsCmd = &cobra.Command{
	Use:   "best-clips [species.json]",
	Short: "Find the best window for every species",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		input := cfg.BestClips.SpeciesFile
		if len(args) == 1 {
			input = args[0]
		}
		window := cfg.BestClips.Window
		if cmd.Flags().Changed("window") {
			window, _ = cmd.Flags().GetFloat64("window")
		}
		if window <= 0 {
			return fmt.Errorf("window must be positive, got %g", window)
		}
		output, _ := cmd.Flags().GetString("output")
		if output == "" {
			output = filepath.Join(filepath.Dir(input), cfg.BestClips.Output)
		}

		logger := logging.WithComponent("bestclips")

		found, err := bestclips.FindAllInFile(input, window)
		if err != nil {
			logger.Error().Err(err).Msg("best clips failed")
			return err
		}

		if err := bestclips.SaveBestClips(found, output, window); err != nil {
			return err
		}

		m := metrics.New()
		m.SetBestClipsSpecies(len(found))
		writeMetrics(cfg, m)

		species := make([]string, 0, len(found))
		for s := range found {
			species = append(species, s)
		}
		sort.Strings(species)

		w := cmd.OutOrStdout()
		for _, s := range species {
			c := found[s]
			fmt.Fprintf(w, "%-24s %s - %s  score %.3f  (%d detections)\n", s,
				util.FormatDuration(util.Seconds(c.Start)), util.FormatDuration(util.Seconds(c.End)), c.Score, c.Count)
		}
		fmt.Fprintf(w, "Saved %d best clips to %s\n", len(found), output)

		logger.Info().
			Str("input", input).
			Str("output", output).
			Int("species", len(found)).
			Msg("best clips complete")
		return nil
	},
}

var encoderCmd = &cobra.Command{
	Use:   "encoder",
	Short: "Show the video encoder this host would use",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())

		exec, err := newExecutor(cfg)
		if err != nil {
			return err
		}

		hw := exec.Encoders().Select(cmd.Context())
		if hw == nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s (software)\n", ffmpeg.SoftwareVideoCodec)
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (hardware)\n", hw.Name)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Config management commands",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.FromContext(cmd.Context())
		enc := yaml.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write the default configuration",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "config.yaml"
		if len(args) == 1 {
			path = args[0]
		}
		if util.FileExists(path) {
			return fmt.Errorf("%s already exists", path)
		}
		if err := config.Default().Save(path); err != nil {
			return err
		}
		log.Info().Str("path", path).Msg("config written")
		return nil
	},
}

func newExecutor(cfg *config.Config) (*ffmpeg.Executor, error) {
	exec, err := ffmpeg.New(log.Logger, ffmpeg.Options{
		FFmpegPath:  cfg.FFmpeg.BinaryPath,
		FFprobePath: cfg.FFmpeg.ProbePath,
		Threads:     cfg.FFmpeg.Threads,
	})
	if err != nil {
		return nil, err
	}
	if !cfg.FFmpeg.HWAccel {
		exec.Encoders().WithCandidates(nil)
	}
	return exec, nil
}

func newProbe(cfg *config.Config, exec *ffmpeg.Executor) (*detect.YOLOProbe, error) {
	return detect.NewYOLOProbe(log.Logger, exec, detect.Config{
		ModelPath:       cfg.Detector.ModelPath,
		LibraryPath:     cfg.Detector.LibraryPath,
		BirdThreshold:   cfg.Detector.BirdThreshold,
		PersonThreshold: cfg.Detector.PersonThreshold,
	})
}

func applyHighlightsFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("buffer-before") {
		cfg.Highlights.BufferBefore, _ = flags.GetDuration("buffer-before")
	}
	if flags.Changed("buffer-after") {
		cfg.Highlights.BufferAfter, _ = flags.GetDuration("buffer-after")
	}
	if flags.Changed("crossfade") {
		cfg.Highlights.Crossfade, _ = flags.GetDuration("crossfade")
	}
	if flags.Changed("web") {
		cfg.Highlights.Web, _ = flags.GetBool("web")
	}
}

func pipelineConfig(cfg *config.Config) *pipeline.Config {
	return &pipeline.Config{
		Buffers: clips.Buffers{
			Before: cfg.Highlights.BufferBefore,
			After:  cfg.Highlights.BufferAfter,
		},
		Precision:      cfg.Highlights.Precision,
		Crossfade:      cfg.Highlights.Crossfade,
		Web:            cfg.Highlights.Web,
		Extensions:     cfg.Highlights.Extensions,
		DetectionsFile: cfg.Highlights.DetectionsFile,
		TempDir:        cfg.TempDir,
	}
}

func writeMetrics(cfg *config.Config, m *metrics.Metrics) {
	if cfg.Metrics.Textfile == "" {
		return
	}
	if err := m.WriteTextfile(cfg.Metrics.Textfile); err != nil {
		log.Warn().Err(err).Str("path", cfg.Metrics.Textfile).Msg("failed to write metrics")
	}
}
