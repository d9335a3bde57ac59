package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/infer"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/notify"
	"github.com/kozaktomas/facewatch/internal/people"
	"github.com/kozaktomas/facewatch/internal/pipeline"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

var replayCmd = &cobra.Command{
	Use:   "replay <directory>",
	Short: "Replay a directory of frames through the recognition pipeline",
	Long: `Replay still frames from a directory as if they came from a camera,
in filename order. Useful for tuning classifiers and notification
settings against recorded footage.

Frames get synthetic timestamps spaced by --interval, so debouncing
behaves exactly as it would live.

Examples:
  # Replay a recording with classifiers
  facewatch replay ./recording --classifiers ./models

  # Write annotated frames for review
  facewatch replay ./recording --classifiers ./models --out ./annotated`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().String("classifiers", "", "Directory with classifier artifacts (empty = detection-only)")
	replayCmd.Flags().String("people", "", "YAML people directory for notification details")
	replayCmd.Flags().Float64("threshold", 0, "Minimum face detection score")
	replayCmd.Flags().Bool("mask", false, "Remove frame backgrounds in the sidecar before detection")
	replayCmd.Flags().String("out", "", "Write annotated frames into this directory")
	replayCmd.Flags().Duration("interval", 200*time.Millisecond, "Simulated time between frames")
}

func runReplay(cmd *cobra.Command, args []string) error {
	cfg := config.Load()

	classifierDir := mustGetString(cmd, "classifiers")
	if classifierDir == "" {
		classifierDir = cfg.Watch.ClassifierDir
	}
	peopleFile := mustGetString(cmd, "people")
	if peopleFile == "" {
		peopleFile = cfg.Watch.PeopleFile
	}
	threshold := mustGetFloat64(cmd, "threshold")
	if threshold <= 0 {
		threshold = cfg.Watch.DetectThreshold
	}
	mask := mustGetBool(cmd, "mask") || cfg.Watch.Mask
	outDir := mustGetString(cmd, "out")
	interval := mustGetDuration(cmd, "interval")

	ctx := context.Background()

	log, err := logging.New(debugMode)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Sync()

	sidecar := infer.NewClient(cfg.Infer.URL, cfg.Infer.Timeout)

	store := classifier.NewStore(classifierDir, logging.WithComponent(log, "classifier"))
	if classifierDir != "" {
		if err := store.Reload(); err != nil {
			return fmt.Errorf("failed to load classifiers: %w", err)
		}
	}

	directory, err := people.Load(peopleFile)
	if err != nil {
		return fmt.Errorf("failed to load people directory: %w", err)
	}

	var masker pipeline.Masker
	if mask {
		masker = sidecar
	}

	pipe, err := pipeline.New(pipeline.Options{
		Store:    store,
		Engine:   recognize.NewEngine(debugMode, logging.WithComponent(log, "fusion")),
		Detector: sidecar,
		Embedder: sidecar,
		Masker:   masker,
		Notifier: notify.NewConsole(nil),
		People:   directory,
		Config: pipeline.Config{
			DetectThreshold: threshold,
			InputSize:       cfg.Infer.InputSize,
			Window: notify.Config{
				Period:    cfg.Watch.NotifyPeriod,
				Threshold: cfg.Watch.NotifyThreshold,
				Stay:      cfg.Watch.StayNotified,
			},
		},
		Log: logging.WithComponent(log, "pipeline"),
	})
	if err != nil {
		return err
	}

	// No pacing here: timestamps are synthetic, real sleeps would only
	// slow the replay down.
	source, err := pipeline.NewDirectorySource(args[0], 0)
	if err != nil {
		return err
	}
	defer source.Close()

	if outDir != "" {
		if err := os.MkdirAll(outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Replaying %d frames from %s\n\n", source.Len(), args[0])

	bar := progressbar.NewOptions(source.Len(),
		progressbar.OptionSetDescription("Processing frames"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("frames"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
	)

	start := time.Now()
	var processed, faces, recognized, errorCount int

	for i := 0; ; i++ {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			log.Warn("skipping unreadable frame", zap.Error(err))
			errorCount++
			bar.Add(1)
			continue
		}

		result, err := pipe.ProcessFrame(ctx, frame, start.Add(time.Duration(i)*interval))
		if err != nil {
			log.Warn("frame skipped", zap.Error(err))
			errorCount++
			bar.Add(1)
			continue
		}

		processed++
		faces += result.Faces
		for _, v := range result.Verdicts {
			if v.Detected {
				recognized++
			}
		}

		if outDir != "" {
			if err := writeAnnotatedFrame(outDir, i, result); err != nil {
				log.Warn("could not write annotated frame", zap.Error(err))
			}
		}
		bar.Add(1)
	}

	fmt.Println()

	fmt.Printf("\nCompleted: %d frames processed, %d errors\n", processed, errorCount)
	fmt.Printf("Faces seen: %d, recognized: %d\n", faces, recognized)
	return nil
}

// writeAnnotatedFrame renders the verdict overlays onto the frame and
// stores it as frame-NNNN.jpg.
func writeAnnotatedFrame(outDir string, idx int, result *pipeline.FrameResult) error {
	overlays := make([]imaging.Overlay, len(result.Verdicts))
	for i, v := range result.Verdicts {
		overlays[i] = imaging.Overlay{
			Box:   v.Box,
			Color: v.Color(),
			Thin:  v.Thin(),
			Label: v.OverlayText(),
		}
	}

	data, err := imaging.EncodeJPEG(imaging.Render(result.Frame, overlays))
	if err != nil {
		return err
	}
	name := filepath.Join(outDir, fmt.Sprintf("frame-%04d.jpg", idx))
	return os.WriteFile(name, data, 0o644)
}
