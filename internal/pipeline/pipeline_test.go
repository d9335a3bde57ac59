package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/kozaktomas/facewatch/internal/classifier"
	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/infer"
	"github.com/kozaktomas/facewatch/internal/notify"
	"github.com/kozaktomas/facewatch/internal/people"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

const svmArtifact = `{
  "version": 1,
  "class_names": ["alice", "bob"],
  "class_stats": {"alice": {"embeddings": 4}, "bob": {"embeddings": 3}},
  "svm": {"weights": [[2, 0, 0, 0], [0, 2, 0, 0]], "bias": [0, 0]}
}`

type fakeInfer struct {
	detections  []infer.Detection
	detectErr   error
	embedding   []float32
	embedErr    error
	masked      []byte
	maskErr     error
	detectCalls int
	embedCalls  int
	lastFrame   []byte
}

func (f *fakeInfer) Detect(_ context.Context, frameJPEG []byte, _ float64) ([]infer.Detection, error) {
	f.detectCalls++
	f.lastFrame = frameJPEG
	if f.detectErr != nil {
		return nil, f.detectErr
	}
	return f.detections, nil
}

func (f *fakeInfer) Embed(_ context.Context, _ []byte) ([]float32, error) {
	f.embedCalls++
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return f.embedding, nil
}

func (f *fakeInfer) Mask(_ context.Context, _ []byte) ([]byte, error) {
	if f.maskErr != nil {
		return nil, f.maskErr
	}
	return f.masked, nil
}

type captureNotifier struct {
	events []notify.Event
}

func (c *captureNotifier) Notify(_ context.Context, event notify.Event) error {
	c.events = append(c.events, event)
	return nil
}

func loadedStore(t *testing.T) *classifier.Store {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "01-svm.json"), []byte(svmArtifact), 0o644); err != nil {
		t.Fatalf("could not write artifact: %v", err)
	}
	store := classifier.NewStore(dir, nil)
	if err := store.Reload(); err != nil {
		t.Fatalf("Reload() failed: %v", err)
	}
	return store
}

func emptyStore(t *testing.T) *classifier.Store {
	t.Helper()
	return classifier.NewStore(t.TempDir(), nil)
}

func cameraFrame() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 100, 100))
}

func pipelineAt(seconds float64) time.Time {
	return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC).
		Add(time.Duration(seconds * float64(time.Second)))
}

func newTestPipeline(t *testing.T, opts Options) *Pipeline {
	t.Helper()
	if opts.Engine == nil {
		opts.Engine = recognize.NewEngine(false, nil)
	}
	p, err := New(opts)
	if err != nil {
		t.Fatalf("New() failed: %v", err)
	}
	return p
}

func TestProcessFrameDetectionOnly(t *testing.T) {
	sidecar := &fakeInfer{detections: []infer.Detection{
		{BBox: []float64{10, 10, 40, 40}, Score: 0.9},
		{BBox: []float64{50, 10, 90, 50}, Score: 0.8},
	}}
	p := newTestPipeline(t, Options{
		Store:    emptyStore(t),
		Detector: sidecar,
		Embedder: sidecar,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed: %v", err)
	}
	if result.Faces != 2 || len(result.Verdicts) != 2 {
		t.Fatalf("got %d faces, %d verdicts; want 2 and 2", result.Faces, len(result.Verdicts))
	}
	for i, v := range result.Verdicts {
		if v.Detected {
			t.Errorf("verdict %d detected without any classifiers", i)
		}
	}
	if got := result.Verdicts[0].Box; got != image.Rect(10, 10, 40, 40) {
		t.Errorf("got box %v; want (10,10)-(40,40)", got)
	}
	if sidecar.embedCalls != 0 {
		t.Errorf("embedder called %d times in detection-only mode; want 0", sidecar.embedCalls)
	}
}

func TestProcessFrameRecognizesAndNotifies(t *testing.T) {
	sidecar := &fakeInfer{
		detections: []infer.Detection{{BBox: []float64{10, 10, 40, 40}, Score: 0.9}},
		embedding:  []float32{1, 0, 0, 0},
	}
	sink := &captureNotifier{}
	p := newTestPipeline(t, Options{
		Store:    loadedStore(t),
		Detector: sidecar,
		Embedder: sidecar,
		Notifier: sink,
		People: people.NewDirectory(
			people.Person{Name: "Alice", Position: "Engineer", Company: "ACME"},
		),
		Config: Config{Window: notify.Config{Period: 2 * time.Second}},
	})

	frame := cameraFrame()
	for s := 0; s <= 3; s++ {
		result, err := p.ProcessFrame(context.Background(), frame, pipelineAt(float64(s)))
		if err != nil {
			t.Fatalf("ProcessFrame() at t=%d failed: %v", s, err)
		}
		v := result.Verdicts[0]
		if !v.Detected || v.Label != "alice" || v.Confidence != 1.0 {
			t.Fatalf("got verdict %+v; want alice detected at 1.0", v)
		}
	}

	if len(sink.events) != 1 {
		t.Fatalf("got %d notifications; want exactly 1", len(sink.events))
	}
	event := sink.events[0]
	if event.ID == uuid.Nil {
		t.Error("notification has no event id")
	}
	if event.Name != "alice" || event.Position != "Engineer" || event.Company != "ACME" {
		t.Errorf("got event %s/%s/%s; want alice/Engineer/ACME", event.Name, event.Position, event.Company)
	}
	if event.Confidence != 1.0 {
		t.Errorf("got confidence %v; want 1.0", event.Confidence)
	}
	if !slices.Equal(event.Labels, []string{"alice"}) {
		t.Errorf("got labels %v; want [alice]", event.Labels)
	}
	if event.Snapshot == nil {
		t.Error("notification carries no snapshot")
	}
	if !slices.Equal(event.Embedding, []float32{1, 0, 0, 0}) {
		t.Errorf("got embedding %v; want the best sighting's embedding", event.Embedding)
	}
	if !event.At.Equal(pipelineAt(3)) {
		t.Errorf("got event time %v; want %v", event.At, pipelineAt(3))
	}
}

func TestProcessFrameDetectorErrorSkipsFrame(t *testing.T) {
	sidecar := &fakeInfer{detectErr: errors.New("sidecar down")}
	p := newTestPipeline(t, Options{
		Store:    loadedStore(t),
		Detector: sidecar,
		Embedder: sidecar,
	})

	if _, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0)); err == nil {
		t.Fatal("ProcessFrame() swallowed a detector error")
	}
}

func TestProcessFrameEmbedderErrorDegrades(t *testing.T) {
	sidecar := &fakeInfer{
		detections: []infer.Detection{{BBox: []float64{10, 10, 40, 40}, Score: 0.9}},
		embedErr:   errors.New("no embedding today"),
	}
	sink := &captureNotifier{}
	p := newTestPipeline(t, Options{
		Store:    loadedStore(t),
		Detector: sidecar,
		Embedder: sidecar,
		Notifier: sink,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed on an embedder error: %v", err)
	}
	if len(result.Verdicts) != 1 {
		t.Fatalf("got %d verdicts; want 1", len(result.Verdicts))
	}
	if v := result.Verdicts[0]; v.Detected || v.Box != image.Rect(10, 10, 40, 40) {
		t.Errorf("got verdict %+v; want not-detected with its box kept", v)
	}
	if len(sink.events) != 0 {
		t.Errorf("got %d notifications from a degraded face; want 0", len(sink.events))
	}
}

func TestProcessFrameDropsWindowAfterAbsence(t *testing.T) {
	sidecar := &fakeInfer{
		detections: []infer.Detection{{BBox: []float64{10, 10, 40, 40}, Score: 0.9}},
		embedding:  []float32{1, 0, 0, 0},
	}
	sink := &captureNotifier{}
	p := newTestPipeline(t, Options{
		Store:    loadedStore(t),
		Detector: sidecar,
		Embedder: sidecar,
		Notifier: sink,
		Config:   Config{Window: notify.Config{Period: 2 * time.Second}},
	})

	frame := cameraFrame()
	for s := 0; s <= 3; s++ {
		if _, err := p.ProcessFrame(context.Background(), frame, pipelineAt(float64(s))); err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
	}
	if got := p.Tracked(); !slices.Equal(got, []string{"alice"}) {
		t.Fatalf("got tracked %v; want [alice]", got)
	}

	// The identity leaves; once the window drains the pipeline must
	// forget it without a second notification.
	sidecar.detections = nil
	for s := 4; s <= 7; s++ {
		if _, err := p.ProcessFrame(context.Background(), frame, pipelineAt(float64(s))); err != nil {
			t.Fatalf("ProcessFrame() failed: %v", err)
		}
	}
	if got := p.Tracked(); len(got) != 0 {
		t.Errorf("got tracked %v after absence; want none", got)
	}
	if len(sink.events) != 1 {
		t.Errorf("got %d notifications; want the single original one", len(sink.events))
	}
}

func TestProcessFrameOneWindowPerLabel(t *testing.T) {
	// Two boxes that resolve to the same identity share one window.
	sidecar := &fakeInfer{
		detections: []infer.Detection{
			{BBox: []float64{10, 10, 40, 40}, Score: 0.9},
			{BBox: []float64{50, 10, 90, 50}, Score: 0.8},
		},
		embedding: []float32{1, 0, 0, 0},
	}
	p := newTestPipeline(t, Options{
		Store:    loadedStore(t),
		Detector: sidecar,
		Embedder: sidecar,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed: %v", err)
	}
	if len(result.Verdicts) != 2 {
		t.Fatalf("got %d verdicts; want 2", len(result.Verdicts))
	}
	if got := p.Tracked(); !slices.Equal(got, []string{"alice"}) {
		t.Errorf("got tracked %v; want a single alice window", got)
	}
}

func TestProcessFrameMasking(t *testing.T) {
	maskedJPEG, err := imaging.EncodeJPEG(image.NewRGBA(image.Rect(0, 0, 80, 60)))
	if err != nil {
		t.Fatalf("could not encode masked fixture: %v", err)
	}

	sidecar := &fakeInfer{masked: maskedJPEG}
	p := newTestPipeline(t, Options{
		Store:    emptyStore(t),
		Detector: sidecar,
		Embedder: sidecar,
		Masker:   sidecar,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed: %v", err)
	}
	if got := result.Frame.Bounds(); got.Dx() != 80 || got.Dy() != 60 {
		t.Errorf("got frame bounds %v; want the masked 80x60 frame", got)
	}
	if !bytes.Equal(sidecar.lastFrame, maskedJPEG) {
		t.Error("detector did not receive the masked frame")
	}
}

func TestProcessFrameMaskerErrorKeepsRawFrame(t *testing.T) {
	sidecar := &fakeInfer{maskErr: errors.New("mask model missing")}
	p := newTestPipeline(t, Options{
		Store:    emptyStore(t),
		Detector: sidecar,
		Embedder: sidecar,
		Masker:   sidecar,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed on a masker error: %v", err)
	}
	if got := result.Frame.Bounds(); got.Dx() != 100 || got.Dy() != 100 {
		t.Errorf("got frame bounds %v; want the raw 100x100 frame", got)
	}
}

func TestProcessFrameSkipsDegenerateBoxes(t *testing.T) {
	sidecar := &fakeInfer{detections: []infer.Detection{
		{BBox: []float64{5, 5, 5, 20}, Score: 0.9},
		{BBox: []float64{1, 2}, Score: 0.9},
	}}
	p := newTestPipeline(t, Options{
		Store:    emptyStore(t),
		Detector: sidecar,
		Embedder: sidecar,
	})

	result, err := p.ProcessFrame(context.Background(), cameraFrame(), pipelineAt(0))
	if err != nil {
		t.Fatalf("ProcessFrame() failed: %v", err)
	}
	if result.Faces != 2 {
		t.Errorf("got %d faces; want the raw detection count 2", result.Faces)
	}
	if len(result.Verdicts) != 0 {
		t.Errorf("got %d verdicts from degenerate boxes; want 0", len(result.Verdicts))
	}
}

func TestNewValidatesCollaborators(t *testing.T) {
	if _, err := New(Options{}); err == nil {
		t.Error("New() accepted empty options")
	}
}
