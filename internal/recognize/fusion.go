package recognize

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/kozaktomas/facewatch/internal/classifier"
)

// Engine turns one face embedding plus the classifier ensemble into a
// Verdict. Scoring is pure: the same embedding against the same
// ensemble always yields the same verdict. Per-face degradations
// (shape mismatches, unsupported kinds, scoring failures) skip the
// offending classifier and never fail the frame.
type Engine struct {
	debug atomic.Bool
	log   *zap.Logger
}

// NewEngine creates a fusion engine. Debug mode adds per-classifier
// evidence lines to every verdict and can be toggled at runtime.
func NewEngine(debug bool, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	e := &Engine{log: log}
	e.debug.Store(debug)
	return e
}

// SetDebug flips debug mode; safe to call while frames are scored.
func (e *Engine) SetDebug(on bool) { e.debug.Store(on) }

// Debug reports whether debug mode is on.
func (e *Engine) Debug() bool { return e.debug.Load() }

// Score fuses every usable classifier's vote on one embedding.
// The face counts as detected only when all contributing classifiers
// agree on the class and every contributed probability is positive.
func (e *Engine) Score(emb []float32, ens *classifier.Ensemble) Verdict {
	debug := e.debug.Load()

	var (
		indices      []int
		probs        []float64
		debugLines   []string
		firstLabel   string
		summaryLabel string
	)
	probDetected := true

	for _, member := range ens.Members() {
		if member.EmbeddingSize() != len(emb) {
			e.log.Debug("embedding does not fit classifier",
				zap.String("classifier", member.Name()),
				zap.Int("embedding_size", len(emb)),
				zap.Int("classifier_size", member.EmbeddingSize()),
			)
			continue
		}

		dist, err := member.Probabilities(emb)
		if err != nil {
			e.log.Debug("classifier skipped",
				zap.String("classifier", member.Name()),
				zap.Error(err),
			)
			continue
		}

		best := argmax(dist)
		if best < 0 {
			continue
		}
		label := ens.Class(best)

		var prob float64
		var evidence string
		switch member.Kind() {
		case classifier.KindKNN:
			nn, ok := member.(classifier.NeighborSearcher)
			if !ok {
				continue
			}
			prob, evidence, err = e.scoreKNN(nn, ens, best, emb)
			if err != nil {
				e.log.Debug("knn scoring failed",
					zap.String("classifier", member.Name()),
					zap.Error(err),
				)
				continue
			}
		case classifier.KindSVM:
			p := dist[best]
			prob = clamp01(10 * p)
			evidence = fmt.Sprintf("%.1f%%", p*100)
		default:
			e.log.Debug("unsupported model type",
				zap.String("classifier", member.Name()),
			)
			continue
		}

		indices = append(indices, best)
		probs = append(probs, prob)
		if prob <= 0 {
			probDetected = false
		}
		if firstLabel == "" {
			firstLabel = label
		}
		summaryLabel = label
		if debug {
			debugLines = append(debugLines,
				fmt.Sprintf("%s: %.1f%% %s (%s)", member.Name(), prob*100, label, evidence))
		}
	}

	// Detected only when every contributor named the same class and
	// nobody scored a zero.
	agreed := len(indices) > 0
	for i := 1; i < len(indices); i++ {
		if indices[i] != indices[0] {
			agreed = false
			break
		}
	}
	detected := agreed && probDetected

	var confidence float64
	if detected {
		var sum float64
		for _, p := range probs {
			sum += p
		}
		confidence = sum / float64(len(probs))
	}

	if debug {
		if detected {
			debugLines = append(debugLines, fmt.Sprintf("Summary: %.1f%% %s", confidence*100, summaryLabel))
		} else {
			debugLines = append(debugLines, "Summary: not detected")
		}
	}

	return Verdict{
		Detected:   detected,
		Label:      firstLabel,
		Confidence: confidence,
		DebugLines: debugLines,
	}
}

// scoreKNN applies the nearest-neighbor probability rule: a long
// leading run of same-class references (25% of the class's training
// count contributes nothing, 75% saturates) weighted by how close the
// single nearest reference is (distance 0.5 keeps full weight, 0.833
// zeroes it).
func (e *Engine) scoreKNN(nn classifier.NeighborSearcher, ens *classifier.Ensemble, best int, emb []float32) (float64, string, error) {
	class := ens.Class(best)
	stats, ok := ens.Stats(class)
	if !ok || stats.Embeddings < 1 {
		return 0, "", fmt.Errorf("no training stats for class %q", class)
	}
	cnt := stats.Embeddings

	nbrs, err := nn.Neighbors(emb, cnt)
	if err != nil {
		return 0, "", err
	}
	if len(nbrs) == 0 {
		return 0, "", fmt.Errorf("no neighbors for class %q", class)
	}

	firstRun := 0
	for _, n := range nbrs {
		if n.Class != best {
			break
		}
		firstRun++
	}
	d := nbrs[0].Distance

	prob := clamp01(2*float64(firstRun)/float64(cnt)-0.5) * clamp01(2.5-3*d)
	evidence := fmt.Sprintf("%.3f %d/%d", d, firstRun, cnt)
	return prob, evidence, nil
}

func argmax(dist []float64) int {
	best := -1
	for i, p := range dist {
		if best < 0 || p > dist[best] {
			best = i
		}
	}
	return best
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
