package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/config"
	"github.com/kozaktomas/facewatch/internal/control"
	"github.com/kozaktomas/facewatch/internal/infer"
	"github.com/kozaktomas/facewatch/internal/journal"
	"github.com/kozaktomas/facewatch/internal/logging"
	"github.com/kozaktomas/facewatch/internal/notify"
	"github.com/kozaktomas/facewatch/internal/people"
	"github.com/kozaktomas/facewatch/internal/pipeline"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch a camera stream and notify on recognized people",
	Long: `Watch an MJPEG camera stream, recognize the people in it and raise
debounced notifications when someone known shows up.

Without a classifier directory the watcher runs detection-only: faces
are tracked but never named. With FACEWATCH_DATABASE_URL set, every
notification is journaled to PostgreSQL.

A control server answers runtime commands (reload, status, debug):

  curl -X POST localhost:8080/api/command -d '{"command": "status"}'`,
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)

	watchCmd.Flags().String("camera", "", "MJPEG stream URL (or FACEWATCH_CAMERA_URL)")
	watchCmd.Flags().String("classifiers", "", "Directory with classifier artifacts (empty = detection-only)")
	watchCmd.Flags().String("people", "", "YAML people directory for notification details")
	watchCmd.Flags().String("control", "", "Control server listen address")
	watchCmd.Flags().Float64("threshold", 0, "Minimum face detection score")
	watchCmd.Flags().Bool("mask", false, "Remove frame backgrounds in the sidecar before detection")
	watchCmd.Flags().String("out", "", "Write annotated frames into this directory")
}

// watchSettings are the effective settings after flags override the
// environment.
type watchSettings struct {
	camera        string
	classifierDir string
	peopleFile    string
	controlAddr   string
	outDir        string
	threshold     float64
	mask          bool
}

func resolveWatchSettings(cmd *cobra.Command, cfg *config.Config) watchSettings {
	s := watchSettings{
		camera:        mustGetString(cmd, "camera"),
		classifierDir: mustGetString(cmd, "classifiers"),
		peopleFile:    mustGetString(cmd, "people"),
		controlAddr:   mustGetString(cmd, "control"),
		outDir:        mustGetString(cmd, "out"),
		threshold:     mustGetFloat64(cmd, "threshold"),
		mask:          mustGetBool(cmd, "mask") || cfg.Watch.Mask,
	}
	if s.camera == "" {
		s.camera = cfg.Watch.CameraURL
	}
	if s.classifierDir == "" {
		s.classifierDir = cfg.Watch.ClassifierDir
	}
	if s.peopleFile == "" {
		s.peopleFile = cfg.Watch.PeopleFile
	}
	if s.controlAddr == "" {
		s.controlAddr = cfg.Control.Addr
	}
	if s.threshold <= 0 {
		s.threshold = cfg.Watch.DetectThreshold
	}
	return s
}

// buildNotifier assembles the notification fan-out: console always,
// the PostgreSQL journal when a database is configured.
func buildNotifier(cfg *config.Config, log *zap.Logger) (notify.Notifier, func(), error) {
	sinks := notify.Multi{notify.NewConsole(nil)}
	cleanup := func() {}

	if cfg.Database.URL != "" {
		store, err := journal.Open(&cfg.Database, logging.WithComponent(log, "journal"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open event journal: %w", err)
		}
		sinks = append(sinks, store)
		cleanup = func() { _ = store.Close() }
		fmt.Println("Event journal enabled (PostgreSQL)")
	}
	return sinks, cleanup, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	settings := resolveWatchSettings(cmd, cfg)
	if settings.camera == "" {
		return errors.New("camera stream URL is required (--camera or FACEWATCH_CAMERA_URL)")
	}

	log, err := logging.New(debugMode)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer log.Sync()

	sidecar := infer.NewClient(cfg.Infer.URL, cfg.Infer.Timeout)
	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := sidecar.Healthy(healthCtx); err != nil {
		log.Warn("inference sidecar not healthy yet", zap.Error(err))
	}
	healthCancel()

	store := classifier.NewStore(settings.classifierDir, logging.WithComponent(log, "classifier"))
	if settings.classifierDir != "" {
		if err := store.Reload(); err != nil {
			return fmt.Errorf("failed to load classifiers: %w", err)
		}
	} else {
		log.Warn("no classifier directory configured, running detection-only")
	}

	directory, err := people.Load(settings.peopleFile)
	if err != nil {
		return fmt.Errorf("failed to load people directory: %w", err)
	}

	notifier, cleanupNotifier, err := buildNotifier(cfg, log)
	if err != nil {
		return err
	}
	defer cleanupNotifier()

	engine := recognize.NewEngine(debugMode, logging.WithComponent(log, "fusion"))

	var masker pipeline.Masker
	if settings.mask {
		masker = sidecar
	}

	pipe, err := pipeline.New(pipeline.Options{
		Store:    store,
		Engine:   engine,
		Detector: sidecar,
		Embedder: sidecar,
		Masker:   masker,
		Notifier: notifier,
		People:   directory,
		Config: pipeline.Config{
			DetectThreshold: settings.threshold,
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

	server := control.NewServer(control.Options{
		Addr:    settings.controlAddr,
		Store:   store,
		Engine:  engine,
		Tracker: pipe,
		Log:     logging.WithComponent(log, "control"),
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	go func() {
		if err := server.Start(); err != nil {
			log.Error("control server failed", zap.Error(err))
		}
	}()

	source, err := pipeline.NewMJPEGSource(ctx, settings.camera)
	if err != nil {
		return fmt.Errorf("failed to open camera stream: %w", err)
	}
	defer source.Close()

	if settings.outDir != "" {
		if err := os.MkdirAll(settings.outDir, 0o755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	fmt.Printf("Watching %s\n", settings.camera)
	fmt.Println("Press Ctrl+C to stop")

	watchFrames(ctx, source, pipe, settings.outDir, log)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("control server shutdown failed", zap.Error(err))
	}
	return nil
}

// watchFrames pumps frames from the source into the pipeline until
// the stream ends or the context is cancelled. Frame-level failures
// never stop the watch.
func watchFrames(ctx context.Context, source pipeline.FrameSource, pipe *pipeline.Pipeline, outDir string, log *zap.Logger) {
	for i := 0; ; i++ {
		frame, err := source.Next(ctx)
		if errors.Is(err, io.EOF) {
			log.Info("camera stream ended")
			return
		}
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			log.Warn("could not read frame", zap.Error(err))
			time.Sleep(time.Second)
			continue
		}

		result, err := pipe.ProcessFrame(ctx, frame, time.Now())
		if err != nil {
			log.Warn("frame skipped", zap.Error(err))
			continue
		}
		if outDir != "" {
			if err := writeAnnotatedFrame(outDir, i, result); err != nil {
				log.Warn("could not write annotated frame", zap.Error(err))
			}
		}
	}
}
