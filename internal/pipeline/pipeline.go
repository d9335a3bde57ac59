// Package pipeline runs the per-frame recognition loop: mask, detect,
// embed, score, debounce, notify.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/infer"
	"github.com/kozaktomas/facewatch/internal/notify"
	"github.com/kozaktomas/facewatch/internal/people"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

// Detector finds faces in an encoded frame.
type Detector interface {
	Detect(ctx context.Context, frameJPEG []byte, threshold float64) ([]infer.Detection, error)
}

// Embedder turns an aligned face crop into an embedding vector.
type Embedder interface {
	Embed(ctx context.Context, faceJPEG []byte) ([]float32, error)
}

// Masker removes the background from an encoded frame.
type Masker interface {
	Mask(ctx context.Context, frameJPEG []byte) ([]byte, error)
}

// Config tunes the per-frame processing.
type Config struct {
	// DetectThreshold is the minimum face detection score.
	DetectThreshold float64
	// CropMargin widens face boxes before embedding, as a fraction
	// of the box size per side.
	CropMargin float64
	// InputSize is the square face size the embedder expects.
	InputSize int
	// Window configures the per-identity notification debouncing.
	Window notify.Config
}

const (
	DefaultDetectThreshold = 0.6
	DefaultCropMargin      = 0.1
	DefaultInputSize       = 160
)

func (c Config) withDefaults() Config {
	if c.DetectThreshold <= 0 {
		c.DetectThreshold = DefaultDetectThreshold
	}
	if c.CropMargin < 0 {
		c.CropMargin = DefaultCropMargin
	}
	if c.InputSize <= 0 {
		c.InputSize = DefaultInputSize
	}
	return c
}

// Options wires the pipeline collaborators. Store, Engine, Detector
// and Embedder are required; the rest are optional.
type Options struct {
	Store    *classifier.Store
	Engine   *recognize.Engine
	Detector Detector
	Embedder Embedder
	Masker   Masker
	Notifier notify.Notifier
	People   *people.Directory
	Config   Config
	Log      *zap.Logger
}

// Pipeline processes frames one at a time and keeps the per-identity
// notification windows between frames.
type Pipeline struct {
	store    *classifier.Store
	engine   *recognize.Engine
	detector Detector
	embedder Embedder
	masker   Masker
	notifier notify.Notifier
	people   *people.Directory
	cfg      Config
	log      *zap.Logger

	mu      sync.Mutex
	windows map[string]*notify.Window
	bestEmb map[string][]float32
}

// FrameResult is what one frame produced.
type FrameResult struct {
	// Frame is the image the verdicts refer to (the masked frame
	// when background masking is on).
	Frame    image.Image
	Faces    int
	Verdicts []recognize.Verdict
}

func New(opts Options) (*Pipeline, error) {
	if opts.Store == nil || opts.Engine == nil || opts.Detector == nil || opts.Embedder == nil {
		return nil, errors.New("pipeline requires a classifier store, fusion engine, detector and embedder")
	}
	if opts.People == nil {
		opts.People = people.NewDirectory()
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	return &Pipeline{
		store:    opts.Store,
		engine:   opts.Engine,
		detector: opts.Detector,
		embedder: opts.Embedder,
		masker:   opts.Masker,
		notifier: opts.Notifier,
		people:   opts.People,
		cfg:      opts.Config.withDefaults(),
		log:      opts.Log,
		windows:  make(map[string]*notify.Window),
		bestEmb:  make(map[string][]float32),
	}, nil
}

type scoredFace struct {
	verdict   recognize.Verdict
	embedding []float32
}

// ProcessFrame runs one frame through the pipeline. A detector error
// skips the whole frame; a failure on a single face degrades that
// face to a not-detected verdict. ProcessFrame is meant to be called
// from a single goroutine with non-decreasing timestamps.
func (p *Pipeline) ProcessFrame(ctx context.Context, frame image.Image, at time.Time) (*FrameResult, error) {
	frameJPEG, err := imaging.EncodeJPEG(frame)
	if err != nil {
		return nil, fmt.Errorf("could not encode frame: %w", err)
	}

	if p.masker != nil {
		frame, frameJPEG = p.maskFrame(ctx, frame, frameJPEG)
	}

	detections, err := p.detector.Detect(ctx, frameJPEG, p.cfg.DetectThreshold)
	if err != nil {
		return nil, fmt.Errorf("could not detect faces: %w", err)
	}

	ensemble := p.store.Current()
	faces := make([]scoredFace, 0, len(detections))
	for _, det := range detections {
		box, ok := detectionBox(det)
		if !ok {
			p.log.Debug("skipping degenerate detection box", zap.Float64s("bbox", det.BBox))
			continue
		}
		if ensemble.Empty() {
			// Detection-only mode: report the face, never guess.
			faces = append(faces, scoredFace{verdict: recognize.Verdict{Box: box}})
			continue
		}
		faces = append(faces, p.scoreFace(ctx, frame, box, ensemble))
	}

	p.debounce(ctx, at, frame, faces)

	verdicts := make([]recognize.Verdict, len(faces))
	for i, f := range faces {
		verdicts[i] = f.verdict
	}
	p.log.Debug("frame processed",
		zap.Int("faces", len(detections)),
		zap.Int("scored", len(verdicts)))
	return &FrameResult{Frame: frame, Faces: len(detections), Verdicts: verdicts}, nil
}

// Tracked lists the identities with a live notification window,
// sorted by name.
func (p *Pipeline) Tracked() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	names := make([]string, 0, len(p.windows))
	for name := range p.windows {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// maskFrame asks the sidecar for a background-masked frame. Any
// failure keeps the raw frame.
func (p *Pipeline) maskFrame(ctx context.Context, frame image.Image, frameJPEG []byte) (image.Image, []byte) {
	masked, err := p.masker.Mask(ctx, frameJPEG)
	if err != nil {
		p.log.Warn("background mask failed, keeping raw frame", zap.Error(err))
		return frame, frameJPEG
	}
	img, err := imaging.Decode(masked)
	if err != nil {
		p.log.Warn("could not decode masked frame, keeping raw frame", zap.Error(err))
		return frame, frameJPEG
	}
	return img, masked
}

func (p *Pipeline) scoreFace(ctx context.Context, frame image.Image, box image.Rectangle, ensemble *classifier.Ensemble) scoredFace {
	miss := scoredFace{verdict: recognize.Verdict{Box: box}}

	crop := imaging.Crop(frame, box, p.cfg.CropMargin)
	if crop == nil {
		p.log.Debug("face box outside the frame", zap.Stringer("box", box))
		return miss
	}
	faceJPEG, err := imaging.EncodeJPEG(imaging.Square(crop, p.cfg.InputSize))
	if err != nil {
		p.log.Warn("could not encode face crop", zap.Error(err))
		return miss
	}
	embedding, err := p.embedder.Embed(ctx, faceJPEG)
	if err != nil {
		p.log.Warn("embedding failed for face", zap.Stringer("box", box), zap.Error(err))
		return miss
	}

	verdict := p.engine.Score(embedding, ensemble)
	verdict.Box = box
	return scoredFace{verdict: verdict, embedding: embedding}
}

// debounce feeds this frame's verdicts into the per-identity windows
// and fans out whatever notifications became due.
func (p *Pipeline) debounce(ctx context.Context, at time.Time, frame image.Image, faces []scoredFace) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Best detected verdict per label; one identity can only appear
	// once per frame.
	best := make(map[string]scoredFace)
	for _, f := range faces {
		if !f.verdict.Detected || f.verdict.Label == "" {
			continue
		}
		if cur, ok := best[f.verdict.Label]; !ok || f.verdict.Confidence > cur.verdict.Confidence {
			best[f.verdict.Label] = f
		}
	}

	for label := range best {
		if _, ok := p.windows[label]; !ok {
			p.windows[label] = notify.NewWindow(p.cfg.Window)
			p.log.Info("tracking identity", zap.String("name", label))
		}
	}

	// Every live window sees exactly one observation per frame.
	for label, w := range p.windows {
		if f, ok := best[label]; ok {
			if f.verdict.Confidence > w.Best() {
				p.bestEmb[label] = f.embedding
			}
			w.Observe(at, &f.verdict, frame)
		} else {
			w.Observe(at, nil, nil)
		}
	}

	for label, w := range p.windows {
		if w.ConsumePending() {
			p.emit(ctx, at, label, w)
		}
	}

	for label, w := range p.windows {
		if w.Ended() {
			delete(p.windows, label)
			delete(p.bestEmb, label)
			p.log.Info("identity left", zap.String("name", label))
		}
	}
}

func (p *Pipeline) emit(ctx context.Context, at time.Time, label string, w *notify.Window) {
	event := notify.Event{
		ID:         uuid.New(),
		Name:       label,
		Confidence: w.Best(),
		Labels:     w.Labels(),
		Snapshot:   w.Snapshot(),
		Embedding:  p.bestEmb[label],
		At:         at,
	}
	if person, ok := p.people.Lookup(label); ok {
		event.Position = person.Position
		event.Company = person.Company
	}

	p.log.Info("person detected",
		zap.String("name", label),
		zap.Float64("confidence", event.Confidence))
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, event); err != nil {
		p.log.Error("notification delivery failed", zap.String("name", label), zap.Error(err))
	}
}

// detectionBox converts a sidecar bounding box to pixel coordinates.
func detectionBox(det infer.Detection) (image.Rectangle, bool) {
	if len(det.BBox) < 4 {
		return image.Rectangle{}, false
	}
	box := image.Rect(int(det.BBox[0]), int(det.BBox[1]), int(det.BBox[2]), int(det.BBox[3]))
	return box, !box.Empty()
}
