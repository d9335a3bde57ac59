// Package notify debounces per-frame verdicts into discrete
// notification events and delivers them to configured sinks.
package notify

import (
	"image"
	"slices"
	"sort"
	"time"

	"github.com/kozaktomas/facewatch/internal/imaging"
	"github.com/kozaktomas/facewatch/internal/recognize"
)

// Debounce defaults; every value is configurable per window.
const (
	DefaultPeriod    = 3 * time.Second
	DefaultThreshold = 0.5
	DefaultStay      = 120 * time.Second
)

// snapshotMargin widens the captured face crop a little so the
// notification image shows more than a tight face box.
const snapshotMargin = 0.1

// Config tunes one presence window. Zero values fall back to the
// defaults above.
type Config struct {
	// Period is the sliding window span the presence probability is
	// averaged over.
	Period time.Duration
	// Threshold is the presence probability that raises a
	// notification edge.
	Threshold float64
	// Stay suppresses re-notification while the identity stays
	// continuously present; once it elapses the window re-arms.
	Stay time.Duration
}

func (c Config) withDefaults() Config {
	if c.Period <= 0 {
		c.Period = DefaultPeriod
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.Stay <= 0 {
		c.Stay = DefaultStay
	}
	return c
}

// Window turns one identity's per-frame presence into edge-triggered
// notifications. It keeps a sliding window of presence bits; once the
// window spans more than Period, every pruning recomputes the presence
// probability and drives the idle/notified state machine.
//
// The probability deliberately stays at zero until the window has
// filled Period once: recompute only ever runs together with pruning.
// Changing that would shift notification timing.
//
// A Window belongs to exactly one stream and must not be shared
// between goroutines.
type Window struct {
	cfg Config

	bits   []int
	stamps []time.Time

	probability float64
	notified    bool
	notifiedAt  time.Time
	pending     bool
	ended       bool

	best     float64
	snapshot image.Image
	labels   []string
}

// NewWindow creates an idle window.
func NewWindow(cfg Config) *Window {
	return &Window{cfg: cfg.withDefaults()}
}

// Observe feeds one frame's outcome for this identity: the verdict
// when a matching face was fused this frame, nil for absence. The
// frame is only needed for snapshot capture and may be nil. Timestamps
// must be non-decreasing across calls; call exactly once per frame.
func (w *Window) Observe(now time.Time, verdict *recognize.Verdict, frame image.Image) {
	bit := 0
	if verdict != nil && verdict.Detected {
		bit = 1
	}
	w.bits = append(w.bits, bit)
	w.stamps = append(w.stamps, now)

	pruned := false
	for len(w.stamps) > 1 && now.Sub(w.stamps[0]) > w.cfg.Period {
		w.stamps = w.stamps[1:]
		w.bits = w.bits[1:]
		pruned = true
	}

	if pruned {
		sum := 0
		for _, b := range w.bits {
			sum += b
		}
		w.probability = float64(sum) / float64(len(w.bits))

		if w.notified && now.Sub(w.notifiedAt) > w.cfg.Stay {
			w.notified = false
			w.notifiedAt = time.Time{}
		}
		if w.probability > w.cfg.Threshold && !w.notified {
			w.notified = true
			w.pending = true
			w.notifiedAt = now
		}
		if w.probability == 0 {
			w.ended = true
		}
	}

	if verdict != nil {
		if verdict.Label != "" {
			w.addLabel(verdict.Label)
		}
		if verdict.Detected && verdict.Confidence > w.best && frame != nil {
			w.best = verdict.Confidence
			w.snapshot = imaging.Crop(frame, verdict.Box, snapshotMargin)
		}
	}
}

// ConsumePending reports a raised notification edge exactly once.
// The edge is only visible while the notified latch still holds.
func (w *Window) ConsumePending() bool {
	if w.notified && w.pending {
		w.pending = false
		return true
	}
	return false
}

// Probability is the current windowed presence probability.
func (w *Window) Probability() float64 { return w.probability }

// Notified reports whether the window sits in the notified state.
func (w *Window) Notified() bool { return w.notified }

// Ended reports that the presence probability reached zero: the
// identity has fully left the stream. The owner usually drops the
// window once this fires.
func (w *Window) Ended() bool { return w.ended }

// Best is the highest verdict confidence seen by this window.
func (w *Window) Best() float64 { return w.best }

// Snapshot is the face crop captured at the best-confidence sighting,
// nil before the first detected verdict arrives with a frame.
func (w *Window) Snapshot() image.Image { return w.snapshot }

// Labels lists every class name this window has been matched to,
// sorted and deduplicated.
func (w *Window) Labels() []string {
	return slices.Clone(w.labels)
}

func (w *Window) addLabel(label string) {
	if slices.Contains(w.labels, label) {
		return
	}
	w.labels = append(w.labels, label)
	sort.Strings(w.labels)
}
